package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/strata/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the STRATA_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (STRATA_STORAGE_SQLITE_PATH, STRATA_REASONING_MODEL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: STRATA_MEMORY_WORKING_CAPACITY, STRATA_EVENTS_TOPIC, etc.
	v.SetEnvPrefix("STRATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.durable_backend", d.Storage.DurableBackend)
	v.SetDefault("storage.postgres_conn", d.Storage.PostgresConn)

	// Vector store
	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.target", d.VectorStore.Target)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	// Memory tiers
	v.SetDefault("memory.working_ttl_seconds", d.Memory.WorkingTTLSeconds)
	v.SetDefault("memory.working_capacity", d.Memory.WorkingCapacity)
	v.SetDefault("memory.recent_ttl_hours", d.Memory.RecentTTLHours)
	v.SetDefault("memory.recent_capacity", d.Memory.RecentCapacity)
	v.SetDefault("memory.semantic_gate", d.Memory.SemanticGate)
	v.SetDefault("memory.durable_gate", d.Memory.DurableGate)

	// Retrieval
	v.SetDefault("retrieval.importance_weight", d.Retrieval.ImportanceWeight)
	v.SetDefault("retrieval.recency_weight", d.Retrieval.RecencyWeight)
	v.SetDefault("retrieval.frequency_weight", d.Retrieval.FrequencyWeight)
	v.SetDefault("retrieval.similarity_weight", d.Retrieval.SimilarityWeight)
	v.SetDefault("retrieval.max_results", d.Retrieval.MaxResults)

	// Consolidation
	v.SetDefault("consolidation.interval", d.Consolidation.Interval)
	v.SetDefault("consolidation.batch_size", d.Consolidation.BatchSize)

	// Reasoning
	v.SetDefault("reasoning.provider", d.Reasoning.Provider)
	v.SetDefault("reasoning.target", d.Reasoning.Target)
	v.SetDefault("reasoning.model", d.Reasoning.Model)
	v.SetDefault("reasoning.max_iterations", d.Reasoning.MaxIterations)

	// Tools
	v.SetDefault("tools.timeout_seconds", d.Tools.TimeoutSeconds)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
}
