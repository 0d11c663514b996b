package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/strata/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .strata/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Always set targetPath when the directory exists so SaveConfig
	// can create or overwrite the file.
	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns the sorted list of all supported configuration key names.
func ValidConfigKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}

	// Return in a stable, logical order matching the TOML section layout.
	ordered := []string{
		"storage.sqlite_path",
		"storage.durable_backend",
		"storage.postgres_conn",
		"vector_store.provider",
		"vector_store.target",
		"embedding.provider",
		"embedding.target",
		"embedding.model",
		"embedding.dimensions",
		"memory.working_ttl_seconds",
		"memory.working_capacity",
		"memory.recent_ttl_hours",
		"memory.recent_capacity",
		"memory.semantic_gate",
		"memory.durable_gate",
		"retrieval.importance_weight",
		"retrieval.recency_weight",
		"retrieval.frequency_weight",
		"retrieval.similarity_weight",
		"retrieval.max_results",
		"consolidation.interval",
		"consolidation.batch_size",
		"reasoning.provider",
		"reasoning.target",
		"reasoning.model",
		"reasoning.max_iterations",
		"tools.timeout_seconds",
		"events.provider",
		"events.topic",
	}

	// Sanity: only return keys that actually exist in the map.
	result := make([]string, 0, len(ordered))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
		}
	}

	// Append any keys in the map that we missed in the ordered list.
	seen := make(map[string]bool, len(result))
	for _, k := range result {
		seen[k] = true
	}
	for _, k := range keys {
		if !seen[k] {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target .strata/
// directory. If the file does not exist, returns NewDefaultConfig() so callers
// always receive a fully-populated Config with sane defaults. Fields explicitly
// set in the file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	// Merge in defaults: fill in any zero-value fields from the loaded config
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	if cfg.Storage.DurableBackend == "" {
		cfg.Storage.DurableBackend = defaults.Storage.DurableBackend
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = defaults.VectorStore.Provider
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = defaults.Embedding.Provider
	}
	if cfg.Embedding.Target == "" {
		cfg.Embedding.Target = defaults.Embedding.Target
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = defaults.Embedding.Model
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = defaults.Embedding.Dimensions
	}

	if cfg.Memory.WorkingTTLSeconds == 0 {
		cfg.Memory.WorkingTTLSeconds = defaults.Memory.WorkingTTLSeconds
	}
	if cfg.Memory.WorkingCapacity == 0 {
		cfg.Memory.WorkingCapacity = defaults.Memory.WorkingCapacity
	}
	if cfg.Memory.RecentTTLHours == 0 {
		cfg.Memory.RecentTTLHours = defaults.Memory.RecentTTLHours
	}
	if cfg.Memory.RecentCapacity == 0 {
		cfg.Memory.RecentCapacity = defaults.Memory.RecentCapacity
	}
	if cfg.Memory.SemanticGate == 0 {
		cfg.Memory.SemanticGate = defaults.Memory.SemanticGate
	}
	if cfg.Memory.DurableGate == 0 {
		cfg.Memory.DurableGate = defaults.Memory.DurableGate
	}

	// Ranking weights default as a set. A partially specified set would
	// silently skew scores, so zero weights across the board means "use
	// the defaults" rather than "weight nothing".
	if cfg.Retrieval.ImportanceWeight == 0 &&
		cfg.Retrieval.RecencyWeight == 0 &&
		cfg.Retrieval.FrequencyWeight == 0 &&
		cfg.Retrieval.SimilarityWeight == 0 {
		cfg.Retrieval.ImportanceWeight = defaults.Retrieval.ImportanceWeight
		cfg.Retrieval.RecencyWeight = defaults.Retrieval.RecencyWeight
		cfg.Retrieval.FrequencyWeight = defaults.Retrieval.FrequencyWeight
		cfg.Retrieval.SimilarityWeight = defaults.Retrieval.SimilarityWeight
	}
	if cfg.Retrieval.MaxResults == 0 {
		cfg.Retrieval.MaxResults = defaults.Retrieval.MaxResults
	}

	if cfg.Consolidation.Interval == "" {
		cfg.Consolidation.Interval = defaults.Consolidation.Interval
	}
	if cfg.Consolidation.BatchSize == 0 {
		cfg.Consolidation.BatchSize = defaults.Consolidation.BatchSize
	}

	if cfg.Reasoning.Provider == "" {
		cfg.Reasoning.Provider = defaults.Reasoning.Provider
	}
	if cfg.Reasoning.Target == "" {
		cfg.Reasoning.Target = defaults.Reasoning.Target
	}
	if cfg.Reasoning.Model == "" {
		cfg.Reasoning.Model = defaults.Reasoning.Model
	}
	if cfg.Reasoning.MaxIterations == 0 {
		cfg.Reasoning.MaxIterations = defaults.Reasoning.MaxIterations
	}

	if cfg.Tools.TimeoutSeconds == 0 {
		cfg.Tools.TimeoutSeconds = defaults.Tools.TimeoutSeconds
	}

	if cfg.Events.Provider == "" {
		cfg.Events.Provider = defaults.Events.Provider
	}
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = defaults.Events.Topic
	}
}

// SaveConfig persists the configuration to config.toml in the target .strata/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}
