package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single tool execution.
const DefaultTimeout = 30 * time.Second

// Stats aggregates call outcomes for one tool.
type Stats struct {
	Calls        int
	Failures     int
	TotalLatency time.Duration
}

// Config holds configuration for the executor.
type Config struct {
	// Authorizer gates calls. Defaults to AllowAll.
	Authorizer Authorizer

	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration

	// Clock overrides time.Now for tests.
	Clock func() time.Time

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Executor registers tools and runs them with validation, authorization,
// and a bounded execution time.
type Executor struct {
	authorizer Authorizer
	timeout    time.Duration
	clock      func() time.Time
	logger     *zap.Logger

	mu    sync.RWMutex
	tools map[string]Tool
	stats map[string]*Stats
}

// NewExecutor creates an executor with no tools registered.
func NewExecutor(c Config) *Executor {
	if c.Authorizer == nil {
		c.Authorizer = AllowAll{}
	}

	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}

	if c.Clock == nil {
		c.Clock = time.Now
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	return &Executor{
		authorizer: c.Authorizer,
		timeout:    c.Timeout,
		clock:      c.Clock,
		logger:     c.Logger,
		tools:      make(map[string]Tool),
		stats:      make(map[string]*Stats),
	}
}

// Register adds a tool. Names must be unique.
func (e *Executor) Register(t Tool) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("tool must have a name")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.tools[t.Name()]; exists {
		return fmt.Errorf("tool %s is already registered", t.Name())
	}

	e.tools[t.Name()] = t
	e.stats[t.Name()] = &Stats{}

	e.logger.Debug("registered tool",
		zap.String("tool", t.Name()),
		zap.String("category", t.Category()),
	)

	return nil
}

// Catalog lists the registered tools sorted by name.
func (e *Executor) Catalog() []Tool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Tool, 0, len(e.tools))
	for _, t := range e.tools {
		out = append(out, t)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })

	return out
}

// Stats returns a copy of the named tool's call statistics.
func (e *Executor) Stats(tool string) Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if s, ok := e.stats[tool]; ok {
		return *s
	}

	return Stats{}
}

// Execute runs one tool call end to end. All failure paths return a
// *Failure so callers can classify the outcome.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	e.mu.RLock()
	tool, ok := e.tools[name]
	e.mu.RUnlock()

	if !ok {
		return "", &Failure{Tool: name, Kind: FailureValidation,
			Err: fmt.Errorf("unknown tool")}
	}

	args = e.authorizer.Sanitize(name, args)

	if err := e.authorizer.Authorize(name, args); err != nil {
		e.record(name, 0, false)
		return "", &Failure{Tool: name, Kind: FailurePermission, Err: err}
	}

	if err := validateArgs(tool.Schema(), args); err != nil {
		e.record(name, 0, false)
		return "", &Failure{Tool: name, Kind: FailureValidation, Err: err}
	}

	started := e.clock()
	observation, err := e.run(ctx, tool, args)
	elapsed := e.clock().Sub(started)

	e.record(name, elapsed, err == nil)

	if err != nil {
		e.logger.Warn("tool call failed",
			zap.String("tool", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return "", err
	}

	e.logger.Debug("tool call succeeded",
		zap.String("tool", name),
		zap.Duration("elapsed", elapsed),
	)

	return observation, nil
}

// run executes the tool under the configured timeout. The goroutine is left
// to finish on its own if the deadline fires; the result channel is
// buffered so it never leaks blocked.
func (e *Executor) run(ctx context.Context, tool Tool, args map[string]any) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		observation string
		err         error
	}

	done := make(chan outcome, 1)

	go func() {
		observation, err := tool.Execute(execCtx, args)
		done <- outcome{observation: observation, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return "", &Failure{Tool: tool.Name(), Kind: FailureExecution, Err: out.err}
		}
		return out.observation, nil
	case <-execCtx.Done():
		return "", &Failure{Tool: tool.Name(), Kind: FailureTimeout, Err: execCtx.Err()}
	}
}

func (e *Executor) record(tool string, elapsed time.Duration, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.stats[tool]
	if s == nil {
		return
	}

	s.Calls++
	s.TotalLatency += elapsed
	if !ok {
		s.Failures++
	}
}

func validateArgs(schema map[string]any, args map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	if args == nil {
		args = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if !result.Valid() {
		details := make([]string, len(result.Errors()))
		for i, verr := range result.Errors() {
			details[i] = verr.String()
		}
		return fmt.Errorf("invalid arguments: %v", details)
	}

	return nil
}
