// Package core assembles the full memory and reasoning stack from a loaded
// configuration. CLI commands build a Core instead of wiring tiers by hand.
package core

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/strata/pkg/completion"
	completionollama "github.com/papercomputeco/strata/pkg/completion/ollama"
	"github.com/papercomputeco/strata/pkg/config"
	"github.com/papercomputeco/strata/pkg/consolidation"
	"github.com/papercomputeco/strata/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/strata/pkg/embeddings/utils"
	"github.com/papercomputeco/strata/pkg/events"
	"github.com/papercomputeco/strata/pkg/events/kafka"
	"github.com/papercomputeco/strata/pkg/events/nop"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/memory/durable"
	"github.com/papercomputeco/strata/pkg/memory/recent"
	"github.com/papercomputeco/strata/pkg/memory/semantic"
	"github.com/papercomputeco/strata/pkg/memory/working"
	"github.com/papercomputeco/strata/pkg/retrieval"
	"github.com/papercomputeco/strata/pkg/tools"
	"github.com/papercomputeco/strata/pkg/tools/builtin"
	"github.com/papercomputeco/strata/pkg/vector"
	vectorutils "github.com/papercomputeco/strata/pkg/vector/utils"
)

const sqliteFile = "strata.sqlite"

// Config holds what a Core needs beyond the loaded settings.
type Config struct {
	// Settings is the loaded strata configuration.
	Settings *config.Config

	// DataDir is the resolved .strata/ directory. When empty and no
	// explicit sqlite path is configured, all stores run in memory.
	DataDir string

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Core is the assembled tier ladder plus the coordinator, executor, and
// event publisher that ride on top of it.
type Core struct {
	Working     *working.Tier
	Recent      *recent.Tier
	Semantic    *semantic.Tier
	Durable     *durable.Tier
	Coordinator *retrieval.Coordinator
	Executor    *tools.Executor
	Publisher   events.Publisher

	embedder embeddings.Embedder
	logger   *zap.Logger
}

// New assembles a Core from the loaded settings.
func New(ctx context.Context, c Config) (*Core, error) {
	if c.Settings == nil {
		return nil, fmt.Errorf("settings are required")
	}

	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	cfg := c.Settings
	dbPath := sqlitePath(cfg, c.DataDir)

	publisher, err := newPublisher(cfg, c.Logger)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	vec, err := newVectorDriver(ctx, cfg, dbPath, c.Logger)
	if err != nil {
		embedder.Close()
		return nil, err
	}

	workingTier := working.New(working.Config{
		TTL:       time.Duration(cfg.Memory.WorkingTTLSeconds) * time.Second,
		Capacity:  int(cfg.Memory.WorkingCapacity),
		Publisher: publisher,
		Logger:    c.Logger,
	})

	recentTier, err := recent.New(recent.Config{
		DBPath:   dbPath,
		TTL:      time.Duration(cfg.Memory.RecentTTLHours) * time.Hour,
		Capacity: int(cfg.Memory.RecentCapacity),
		Logger:   c.Logger,
	})
	if err != nil {
		embedder.Close()
		vec.Close()
		return nil, fmt.Errorf("building recent tier: %w", err)
	}

	semanticTier, err := semantic.New(semantic.Config{
		DBPath:         dbPath,
		Embedder:       embedder,
		Vector:         vec,
		ImportanceGate: cfg.Memory.SemanticGate,
		Logger:         c.Logger,
	})
	if err != nil {
		recentTier.Close()
		embedder.Close()
		vec.Close()
		return nil, fmt.Errorf("building semantic tier: %w", err)
	}

	durableTier, err := newDurableTier(ctx, cfg, dbPath, c.Logger)
	if err != nil {
		semanticTier.Close()
		recentTier.Close()
		embedder.Close()
		return nil, err
	}

	coordinator, err := retrieval.New(retrieval.Config{
		Tiers: []memory.Tier{workingTier, recentTier, semanticTier, durableTier},
		Weights: retrieval.Weights{
			Importance: cfg.Retrieval.ImportanceWeight,
			Recency:    cfg.Retrieval.RecencyWeight,
			Frequency:  cfg.Retrieval.FrequencyWeight,
			Similarity: cfg.Retrieval.SimilarityWeight,
		},
		Publisher: publisher,
		Logger:    c.Logger,
	})
	if err != nil {
		durableTier.Close()
		semanticTier.Close()
		recentTier.Close()
		embedder.Close()
		return nil, fmt.Errorf("building retrieval coordinator: %w", err)
	}

	executor := tools.NewExecutor(tools.Config{
		Timeout: time.Duration(cfg.Tools.TimeoutSeconds) * time.Second,
		Logger:  c.Logger,
	})
	for _, tool := range []tools.Tool{
		builtin.NewMemorySearch(coordinator),
		builtin.NewMemoryStore(workingTier),
		builtin.NewClock(time.Now),
	} {
		if err := executor.Register(tool); err != nil {
			durableTier.Close()
			semanticTier.Close()
			recentTier.Close()
			embedder.Close()
			return nil, fmt.Errorf("registering tool %s: %w", tool.Name(), err)
		}
	}

	return &Core{
		Working:     workingTier,
		Recent:      recentTier,
		Semantic:    semanticTier,
		Durable:     durableTier,
		Coordinator: coordinator,
		Executor:    executor,
		Publisher:   publisher,
		embedder:    embedder,
		logger:      c.Logger,
	}, nil
}

// Tiers returns the ladder in promotion order.
func (c *Core) Tiers() []memory.Tier {
	return []memory.Tier{c.Working, c.Recent, c.Semantic, c.Durable}
}

// NewConsolidator builds a consolidation scheduler over the ladder.
func (c *Core) NewConsolidator(cfg *config.Config) (*consolidation.Scheduler, error) {
	interval, err := time.ParseDuration(cfg.Consolidation.Interval)
	if err != nil {
		return nil, fmt.Errorf("parsing consolidation interval: %w", err)
	}

	return consolidation.New(consolidation.Config{
		Working:   c.Working,
		Recent:    c.Recent,
		Semantic:  c.Semantic,
		Durable:   c.Durable,
		Interval:  interval,
		BatchSize: int(cfg.Consolidation.BatchSize),
		Publisher: c.Publisher,
		Logger:    c.logger,
	})
}

// NewProvider builds the configured completion provider.
func NewProvider(cfg *config.Config) (completion.Provider, error) {
	switch cfg.Reasoning.Provider {
	case "ollama", "":
		return completionollama.NewProvider(completionollama.Config{
			BaseURL: cfg.Reasoning.Target,
			Model:   cfg.Reasoning.Model,
		})
	default:
		return nil, fmt.Errorf("unknown reasoning provider %q", cfg.Reasoning.Provider)
	}
}

// Close releases every resource the Core owns. The first error wins but
// every component still gets its Close call.
func (c *Core) Close() error {
	var first error
	for _, closer := range []func() error{
		c.Durable.Close,
		c.Semantic.Close,
		c.Recent.Close,
		c.Working.Close,
		c.embedder.Close,
		c.Publisher.Close,
	} {
		if err := closer(); err != nil && first == nil {
			first = err
		}
	}

	return first
}

// sqlitePath resolves the SQLite file shared by the recent, semantic, and
// durable tiers. An explicit config path wins, then the data directory,
// then an in-memory store.
func sqlitePath(cfg *config.Config, dataDir string) string {
	if cfg.Storage.SQLitePath != "" {
		return cfg.Storage.SQLitePath
	}

	if dataDir != "" {
		return filepath.Join(dataDir, sqliteFile)
	}

	return ":memory:"
}

func newPublisher(cfg *config.Config, logger *zap.Logger) (events.Publisher, error) {
	switch cfg.Events.Provider {
	case "nop", "":
		return nop.NewPublisher(), nil
	case "kafka":
		return kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Events.Topic,
			Logger:  logger,
		})
	default:
		return nil, fmt.Errorf("unknown events provider %q", cfg.Events.Provider)
	}
}

func newEmbedder(cfg *config.Config) (embeddings.Embedder, error) {
	provider := cfg.Embedding.Provider
	if provider == "" {
		provider = "hashed"
	}

	return embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: provider,
		TargetURL:    cfg.Embedding.Target,
		Model:        cfg.Embedding.Model,
		Dimensions:   cfg.Embedding.Dimensions,
	})
}

func newVectorDriver(ctx context.Context, cfg *config.Config, dbPath string, logger *zap.Logger) (vector.Driver, error) {
	provider := cfg.VectorStore.Provider
	if provider == "" {
		provider = "sqlite"
	}

	opts := &vectorutils.NewVectorDriverOpts{
		ProviderType: provider,
		DBPath:       dbPath,
		Dimensions:   cfg.Embedding.Dimensions,
		Logger:       logger,
	}

	if provider == "qdrant" {
		host, portStr, err := net.SplitHostPort(cfg.VectorStore.Target)
		if err != nil {
			return nil, fmt.Errorf("parsing qdrant target %q: %w", cfg.VectorStore.Target, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("parsing qdrant port %q: %w", portStr, err)
		}
		opts.Host = host
		opts.Port = port
	}

	return vectorutils.NewVectorDriver(ctx, opts)
}

func newDurableTier(ctx context.Context, cfg *config.Config, dbPath string, logger *zap.Logger) (*durable.Tier, error) {
	base := durable.Config{
		ImportanceGate: cfg.Memory.DurableGate,
		Logger:         logger,
	}

	switch cfg.Storage.DurableBackend {
	case "sqlite", "":
		tier, err := durable.NewSQLite(durable.SQLiteConfig{Config: base, DBPath: dbPath})
		if err != nil {
			return nil, fmt.Errorf("building durable tier: %w", err)
		}
		return tier, nil
	case "postgres":
		tier, err := durable.NewPostgres(ctx, durable.PostgresConfig{Config: base, ConnStr: cfg.Storage.PostgresConn})
		if err != nil {
			return nil, fmt.Errorf("building durable tier: %w", err)
		}
		return tier, nil
	default:
		return nil, fmt.Errorf("unknown durable backend %q", cfg.Storage.DurableBackend)
	}
}
