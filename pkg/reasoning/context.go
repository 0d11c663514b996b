package reasoning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/retrieval"
	"github.com/papercomputeco/strata/pkg/tools"
)

// DefaultRecentWindow is how far back the builder reaches for the current
// interaction window.
const DefaultRecentWindow = time.Hour

// ToolInfo is one catalog entry rendered into the provider context.
type ToolInfo struct {
	Name        string
	Description string
	Category    string
}

// Context is the assembled material one iteration reasons over.
type Context struct {
	Query       string
	Window      []*memory.Item
	Memories    []retrieval.Result
	ToolCatalog []ToolInfo
	Constraints []string
}

// Render flattens the context into the provider's prompt text.
func (c *Context) Render() string {
	var b strings.Builder

	if len(c.Window) > 0 {
		b.WriteString("Recent interactions:\n")
		for _, item := range c.Window {
			fmt.Fprintf(&b, "- %s\n", item.Content)
		}
		b.WriteString("\n")
	}

	if len(c.Memories) > 0 {
		b.WriteString("Relevant memories:\n")
		for _, r := range c.Memories {
			fmt.Fprintf(&b, "- [%s] %s\n", r.Item.Type, r.Item.Content)
		}
		b.WriteString("\n")
	}

	if len(c.ToolCatalog) > 0 {
		b.WriteString("Available tools:\n")
		for _, t := range c.ToolCatalog {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// BuilderConfig holds configuration for the context builder.
type BuilderConfig struct {
	// Coordinator serves the recent window and the comprehensive search.
	Coordinator *retrieval.Coordinator

	// Executor supplies the tool catalog. Nil leaves the catalog empty.
	Executor *tools.Executor

	// Window overrides DefaultRecentWindow when positive.
	Window time.Duration

	// MaxMemories bounds the comprehensive retrieval. Zero means the
	// coordinator default.
	MaxMemories int

	// Constraints are passed through to every context.
	Constraints []string

	// Clock overrides time.Now for tests.
	Clock func() time.Time

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// ContextBuilder assembles per-iteration contexts.
type ContextBuilder struct {
	coordinator *retrieval.Coordinator
	executor    *tools.Executor
	window      time.Duration
	maxMemories int
	constraints []string
	clock       func() time.Time
	logger      *zap.Logger
}

// NewContextBuilder creates a builder over the coordinator and executor.
func NewContextBuilder(c BuilderConfig) (*ContextBuilder, error) {
	if c.Coordinator == nil {
		return nil, fmt.Errorf("a retrieval coordinator is required")
	}

	if c.Window <= 0 {
		c.Window = DefaultRecentWindow
	}

	if c.Clock == nil {
		c.Clock = time.Now
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	return &ContextBuilder{
		coordinator: c.Coordinator,
		executor:    c.Executor,
		window:      c.Window,
		maxMemories: c.MaxMemories,
		constraints: c.Constraints,
		clock:       c.Clock,
		logger:      c.Logger,
	}, nil
}

// Build assembles the context for one iteration. Retrieval failures degrade
// to a thinner context instead of failing the iteration.
func (b *ContextBuilder) Build(ctx context.Context, query string) *Context {
	out := &Context{Query: query, Constraints: b.constraints}

	since := b.clock().UTC().Add(-b.window)
	window, err := b.coordinator.RecentWindow(ctx, since, 0)
	if err != nil {
		b.logger.Warn("recent window unavailable, continuing without it", zap.Error(err))
	} else {
		out.Window = window
	}

	memories, err := b.coordinator.Search(ctx, retrieval.Request{
		Query:      query,
		Strategy:   retrieval.StrategyComprehensive,
		MaxResults: b.maxMemories,
	})
	if err != nil {
		b.logger.Warn("memory search unavailable, continuing without it", zap.Error(err))
	} else {
		out.Memories = memories
	}

	if b.executor != nil {
		for _, t := range b.executor.Catalog() {
			out.ToolCatalog = append(out.ToolCatalog, ToolInfo{
				Name:        t.Name(),
				Description: t.Description(),
				Category:    t.Category(),
			})
		}
	}

	return out
}
