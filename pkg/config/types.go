package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent strata configuration stored as config.toml
// in the .strata/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version       int                 `toml:"version"`
	Storage       StorageConfig       `toml:"storage"`
	VectorStore   VectorStoreConfig   `toml:"vector_store"`
	Embedding     EmbeddingConfig     `toml:"embedding"`
	Memory        MemoryConfig        `toml:"memory"`
	Retrieval     RetrievalConfig     `toml:"retrieval"`
	Consolidation ConsolidationConfig `toml:"consolidation"`
	Reasoning     ReasoningConfig     `toml:"reasoning"`
	Tools         ToolsConfig         `toml:"tools"`
	Events        EventsConfig        `toml:"events"`
}

// StorageConfig holds settings for the durable tiers backed by SQL stores.
// DurableBackend selects "sqlite" or "postgres"; PostgresConn is only
// consulted when the backend is postgres.
type StorageConfig struct {
	SQLitePath     string `toml:"sqlite_path,omitempty"`
	DurableBackend string `toml:"durable_backend,omitempty"`
	PostgresConn   string `toml:"postgres_conn,omitempty"`
}

// VectorStoreConfig holds vector store settings for the semantic tier.
type VectorStoreConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// MemoryConfig holds per-tier retention and admission settings.
type MemoryConfig struct {
	WorkingTTLSeconds uint    `toml:"working_ttl_seconds,omitempty"`
	WorkingCapacity   uint    `toml:"working_capacity,omitempty"`
	RecentTTLHours    uint    `toml:"recent_ttl_hours,omitempty"`
	RecentCapacity    uint    `toml:"recent_capacity,omitempty"`
	SemanticGate      float64 `toml:"semantic_gate,omitempty"`
	DurableGate       float64 `toml:"durable_gate,omitempty"`
}

// RetrievalConfig holds the ranking weights and result cap used by the
// retrieval coordinator. Weights should sum to 1.0.
type RetrievalConfig struct {
	ImportanceWeight float64 `toml:"importance_weight,omitempty"`
	RecencyWeight    float64 `toml:"recency_weight,omitempty"`
	FrequencyWeight  float64 `toml:"frequency_weight,omitempty"`
	SimilarityWeight float64 `toml:"similarity_weight,omitempty"`
	MaxResults       uint    `toml:"max_results,omitempty"`
}

// ConsolidationConfig holds the background promotion schedule.
type ConsolidationConfig struct {
	Interval  string `toml:"interval,omitempty"`
	BatchSize uint   `toml:"batch_size,omitempty"`
}

// ReasoningConfig holds settings for the bounded reasoning loop and its
// completion provider.
type ReasoningConfig struct {
	Provider      string `toml:"provider,omitempty"`
	Target        string `toml:"target,omitempty"`
	Model         string `toml:"model,omitempty"`
	MaxIterations uint   `toml:"max_iterations,omitempty"`
}

// ToolsConfig holds tool executor settings.
type ToolsConfig struct {
	TimeoutSeconds uint `toml:"timeout_seconds,omitempty"`
}

// EventsConfig holds event publisher settings. Provider is "nop" or "kafka";
// Brokers and Topic are only consulted for kafka.
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func uintKey(get func(c *Config) uint, set func(c *Config, n uint), name string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if get(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(get(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			set(c, uint(n))
			return nil
		},
	}
}

func floatKey(get func(c *Config) float64, set func(c *Config, f float64), name string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if get(c) == 0 {
				return ""
			}
			return strconv.FormatFloat(get(c), 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			set(c, f)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.durable_backend": {
		get: func(c *Config) string { return c.Storage.DurableBackend },
		set: func(c *Config, v string) error { c.Storage.DurableBackend = v; return nil },
	},
	"storage.postgres_conn": {
		get: func(c *Config) string { return c.Storage.PostgresConn },
		set: func(c *Config, v string) error { c.Storage.PostgresConn = v; return nil },
	},
	"vector_store.provider": {
		get: func(c *Config) string { return c.VectorStore.Provider },
		set: func(c *Config, v string) error { c.VectorStore.Provider = v; return nil },
	},
	"vector_store.target": {
		get: func(c *Config) string { return c.VectorStore.Target },
		set: func(c *Config, v string) error { c.VectorStore.Target = v; return nil },
	},
	"embedding.provider": {
		get: func(c *Config) string { return c.Embedding.Provider },
		set: func(c *Config, v string) error { c.Embedding.Provider = v; return nil },
	},
	"embedding.target": {
		get: func(c *Config) string { return c.Embedding.Target },
		set: func(c *Config, v string) error { c.Embedding.Target = v; return nil },
	},
	"embedding.model": {
		get: func(c *Config) string { return c.Embedding.Model },
		set: func(c *Config, v string) error { c.Embedding.Model = v; return nil },
	},
	"embedding.dimensions": uintKey(
		func(c *Config) uint { return c.Embedding.Dimensions },
		func(c *Config, n uint) { c.Embedding.Dimensions = n },
		"embedding.dimensions",
	),
	"memory.working_ttl_seconds": uintKey(
		func(c *Config) uint { return c.Memory.WorkingTTLSeconds },
		func(c *Config, n uint) { c.Memory.WorkingTTLSeconds = n },
		"memory.working_ttl_seconds",
	),
	"memory.working_capacity": uintKey(
		func(c *Config) uint { return c.Memory.WorkingCapacity },
		func(c *Config, n uint) { c.Memory.WorkingCapacity = n },
		"memory.working_capacity",
	),
	"memory.recent_ttl_hours": uintKey(
		func(c *Config) uint { return c.Memory.RecentTTLHours },
		func(c *Config, n uint) { c.Memory.RecentTTLHours = n },
		"memory.recent_ttl_hours",
	),
	"memory.recent_capacity": uintKey(
		func(c *Config) uint { return c.Memory.RecentCapacity },
		func(c *Config, n uint) { c.Memory.RecentCapacity = n },
		"memory.recent_capacity",
	),
	"memory.semantic_gate": floatKey(
		func(c *Config) float64 { return c.Memory.SemanticGate },
		func(c *Config, f float64) { c.Memory.SemanticGate = f },
		"memory.semantic_gate",
	),
	"memory.durable_gate": floatKey(
		func(c *Config) float64 { return c.Memory.DurableGate },
		func(c *Config, f float64) { c.Memory.DurableGate = f },
		"memory.durable_gate",
	),
	"retrieval.importance_weight": floatKey(
		func(c *Config) float64 { return c.Retrieval.ImportanceWeight },
		func(c *Config, f float64) { c.Retrieval.ImportanceWeight = f },
		"retrieval.importance_weight",
	),
	"retrieval.recency_weight": floatKey(
		func(c *Config) float64 { return c.Retrieval.RecencyWeight },
		func(c *Config, f float64) { c.Retrieval.RecencyWeight = f },
		"retrieval.recency_weight",
	),
	"retrieval.frequency_weight": floatKey(
		func(c *Config) float64 { return c.Retrieval.FrequencyWeight },
		func(c *Config, f float64) { c.Retrieval.FrequencyWeight = f },
		"retrieval.frequency_weight",
	),
	"retrieval.similarity_weight": floatKey(
		func(c *Config) float64 { return c.Retrieval.SimilarityWeight },
		func(c *Config, f float64) { c.Retrieval.SimilarityWeight = f },
		"retrieval.similarity_weight",
	),
	"retrieval.max_results": uintKey(
		func(c *Config) uint { return c.Retrieval.MaxResults },
		func(c *Config, n uint) { c.Retrieval.MaxResults = n },
		"retrieval.max_results",
	),
	"consolidation.interval": {
		get: func(c *Config) string { return c.Consolidation.Interval },
		set: func(c *Config, v string) error { c.Consolidation.Interval = v; return nil },
	},
	"consolidation.batch_size": uintKey(
		func(c *Config) uint { return c.Consolidation.BatchSize },
		func(c *Config, n uint) { c.Consolidation.BatchSize = n },
		"consolidation.batch_size",
	),
	"reasoning.provider": {
		get: func(c *Config) string { return c.Reasoning.Provider },
		set: func(c *Config, v string) error { c.Reasoning.Provider = v; return nil },
	},
	"reasoning.target": {
		get: func(c *Config) string { return c.Reasoning.Target },
		set: func(c *Config, v string) error { c.Reasoning.Target = v; return nil },
	},
	"reasoning.model": {
		get: func(c *Config) string { return c.Reasoning.Model },
		set: func(c *Config, v string) error { c.Reasoning.Model = v; return nil },
	},
	"reasoning.max_iterations": uintKey(
		func(c *Config) uint { return c.Reasoning.MaxIterations },
		func(c *Config, n uint) { c.Reasoning.MaxIterations = n },
		"reasoning.max_iterations",
	),
	"tools.timeout_seconds": uintKey(
		func(c *Config) uint { return c.Tools.TimeoutSeconds },
		func(c *Config, n uint) { c.Tools.TimeoutSeconds = n },
		"tools.timeout_seconds",
	),
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error { c.Events.Provider = v; return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
}
