package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	default:
		return unknownDescription
	}
}

// StoreBackend selects the vector store implementation.
type StoreBackend string

// Available vector store backends.
const (
	StoreBackendSQLite StoreBackend = "sqlite"
	StoreBackendMemory StoreBackend = "memory"
	StoreBackendQdrant StoreBackend = "qdrant"
)

// IsValid returns true if the backend is recognised.
func (b StoreBackend) IsValid() bool {
	switch b {
	case StoreBackendSQLite, StoreBackendMemory, StoreBackendQdrant:
		return true
	default:
		return false
	}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (for Ollama).
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() || e.Provider == AIProviderAnthropic {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings holds LLM provider configuration.
type LLMSettings struct {
	Provider AIProvider
	Model    string
	BaseURL  string
	APIKey   string
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// StoreSettings holds vector store configuration.
type StoreSettings struct {
	Backend StoreBackend

	// Path is the SQLite database file.
	Path string

	// URL is the Qdrant endpoint.
	URL string

	// APIKey authenticates against Qdrant Cloud.
	APIKey string
}

// IngestSettings holds ingestion pipeline configuration.
type IngestSettings struct {
	// ImageDir is where extracted images and manifests are written.
	ImageDir string

	// Workers bounds how many sources are ingested concurrently.
	Workers int

	// Department is the default department tag.
	Department string

	// Collection is the default target collection.
	Collection string
}

// ChunkerSettings holds text splitting configuration.
type ChunkerSettings struct {
	Size    int
	Overlap int
}

// Validate checks the chunker preconditions.
func (c ChunkerSettings) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidInput, c.Size)
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return fmt.Errorf("%w: overlap %d must be in [0, %d)", ErrInvalidInput, c.Overlap, c.Size)
	}
	return nil
}

// WebSettings holds web search configuration.
type WebSettings struct {
	// GoogleAPIKey and GoogleCX enable Google Custom Search.
	GoogleAPIKey string
	GoogleCX     string

	// Timeout bounds each provider call.
	Timeout time.Duration

	MaxResults int

	// Weather enables the weather card provider.
	Weather bool
}

// AnswerSettings holds answer assembly configuration.
type AnswerSettings struct {
	TopK     int
	MinScore float64
	Timeout  time.Duration
	WebMode  WebMode
}

// AppSettings holds all application settings.
type AppSettings struct {
	Embedding EmbeddingSettings
	LLM       LLMSettings
	Store     StoreSettings
	Ingest    IngestSettings
	Chunker   ChunkerSettings
	Web       WebSettings
	Answer    AnswerSettings
}

// Validate checks settings that would otherwise fail deep inside a service.
func (s AppSettings) Validate() error {
	if !s.Store.Backend.IsValid() {
		return fmt.Errorf("%w: store backend %q", ErrUnsupportedType, s.Store.Backend)
	}
	if s.Store.Backend == StoreBackendQdrant && s.Store.URL == "" {
		return fmt.Errorf("%w: qdrant backend requires store.url", ErrInvalidInput)
	}
	if err := s.Chunker.Validate(); err != nil {
		return err
	}
	if s.Ingest.Workers < 1 {
		return fmt.Errorf("%w: ingest workers must be at least 1", ErrInvalidInput)
	}
	if !s.Answer.WebMode.IsValid() {
		return fmt.Errorf("%w: web mode %q", ErrInvalidInput, s.Answer.WebMode)
	}
	return nil
}

// DefaultAppSettings returns settings with sensible defaults.
// Embeddings default to a local Ollama model; the LLM is left unconfigured.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Embedding: EmbeddingSettings{
			Provider: AIProviderOllama,
			Model:    DefaultEmbeddingModels()[AIProviderOllama],
		},
		LLM: LLMSettings{},
		Store: StoreSettings{
			Backend: StoreBackendSQLite,
		},
		Ingest: IngestSettings{
			Workers:    2,
			Collection: CollectionDocuments,
		},
		Chunker: ChunkerSettings{
			Size:    2000,
			Overlap: 300,
		},
		Web: WebSettings{
			Timeout:    10 * time.Second,
			MaxResults: 5,
			Weather:    true,
		},
		Answer: AnswerSettings{
			TopK:     5,
			MinScore: 0.35,
			Timeout:  120 * time.Second,
			WebMode:  WebModeAuto,
		},
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
	}
}

// AllLLMProviders returns providers that support LLM operations.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderAnthropic,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		"nomic-embed-text":                      768,
		"mxbai-embed-large":                     1024,
		"all-minilm":                            384,
		"paraphrase-multilingual":               768,
		"paraphrase-multilingual-MiniLM-L12-v2": 384,
		"text-embedding-3-small":                1536,
		"text-embedding-3-large":                3072,
		"text-embedding-ada-002":                1536,
	}
}

// PipelineConfig holds post-processor pipeline configuration.
// New processors can be added without modifying this struct.
type PipelineConfig struct {
	// Processors is the ordered list of processor names to run.
	Processors []string

	// ProcessorConfigs holds per-processor configuration keyed by processor name.
	ProcessorConfigs map[string]map[string]any
}

// GetProcessorConfig returns config for a specific processor, or nil if not set.
func (c *PipelineConfig) GetProcessorConfig(name string) map[string]any {
	if c.ProcessorConfigs == nil {
		return nil
	}
	return c.ProcessorConfigs[name]
}

// PipelineConfigFor builds the default pipeline from chunker settings.
func PipelineConfigFor(c ChunkerSettings) PipelineConfig {
	return PipelineConfig{
		Processors: []string{"chunker", "metadata"},
		ProcessorConfigs: map[string]map[string]any{
			"chunker": {
				"chunk_size": c.Size,
				"overlap":    c.Overlap,
			},
		},
	}
}

// DefaultPipelineConfig returns the default pipeline configuration.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfigFor(DefaultAppSettings().Chunker)
}
