package config

const (
	defaultDurableBackend = "sqlite"

	defaultVectorProvider = "sqlite"

	defaultEmbeddingProvider   = "hashed"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768

	defaultWorkingTTLSeconds = 600
	defaultWorkingCapacity   = 100
	defaultRecentTTLHours    = 24
	defaultRecentCapacity    = 1000
	defaultSemanticGate      = 0.5
	defaultDurableGate       = 0.8

	defaultImportanceWeight = 0.4
	defaultRecencyWeight    = 0.3
	defaultFrequencyWeight  = 0.2
	defaultSimilarityWeight = 0.1
	defaultMaxResults       = 10

	defaultConsolidationInterval  = "30m"
	defaultConsolidationBatchSize = 100

	defaultReasoningProvider = "ollama"
	defaultReasoningTarget   = "http://localhost:11434"
	defaultReasoningModel    = "llama3.2"
	defaultMaxIterations     = 10

	defaultToolTimeoutSeconds = 30

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "strata.events"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			DurableBackend: defaultDurableBackend,
		},
		VectorStore: VectorStoreConfig{
			Provider: defaultVectorProvider,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Memory: MemoryConfig{
			WorkingTTLSeconds: defaultWorkingTTLSeconds,
			WorkingCapacity:   defaultWorkingCapacity,
			RecentTTLHours:    defaultRecentTTLHours,
			RecentCapacity:    defaultRecentCapacity,
			SemanticGate:      defaultSemanticGate,
			DurableGate:       defaultDurableGate,
		},
		Retrieval: RetrievalConfig{
			ImportanceWeight: defaultImportanceWeight,
			RecencyWeight:    defaultRecencyWeight,
			FrequencyWeight:  defaultFrequencyWeight,
			SimilarityWeight: defaultSimilarityWeight,
			MaxResults:       defaultMaxResults,
		},
		Consolidation: ConsolidationConfig{
			Interval:  defaultConsolidationInterval,
			BatchSize: defaultConsolidationBatchSize,
		},
		Reasoning: ReasoningConfig{
			Provider:      defaultReasoningProvider,
			Target:        defaultReasoningTarget,
			Model:         defaultReasoningModel,
			MaxIterations: defaultMaxIterations,
		},
		Tools: ToolsConfig{
			TimeoutSeconds: defaultToolTimeoutSeconds,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}
