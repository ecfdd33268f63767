package services

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
	"github.com/custodia-labs/bilgi/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// DefaultOllamaURL is the base URL assumed for a local Ollama instance.
const DefaultOllamaURL = "http://localhost:11434"

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyEmbedProvider    = "embedding.provider"
	keyEmbedModel       = "embedding.model"
	keyEmbedBaseURL     = "embedding.base_url"
	keyEmbedAPIKey      = "embedding.api_key"
	keyLLMProvider      = "llm.provider"
	keyLLMModel         = "llm.model"
	keyLLMBaseURL       = "llm.base_url"
	keyLLMAPIKey        = "llm.api_key"
	keyStoreBackend     = "store.backend"
	keyStorePath        = "store.path"
	keyStoreURL         = "store.url"
	keyStoreAPIKey      = "store.api_key"
	keyIngestImageDir   = "ingest.image_dir"
	keyIngestWorkers    = "ingest.workers"
	keyIngestDepartment = "ingest.department"
	keyIngestCollection = "ingest.collection"
	keyChunkerSize      = "chunker.size"
	keyChunkerOverlap   = "chunker.overlap"
	keyWebGoogleAPIKey  = "web.google_api_key"
	keyWebGoogleCX      = "web.google_cx"
	keyWebTimeout       = "web.timeout"
	keyWebMaxResults    = "web.max_results"
	keyWebWeather       = "web.weather"
	keyAnswerTopK       = "answer.top_k"
	keyAnswerMinScore   = "answer.min_score"
	keyAnswerTimeout    = "answer.timeout"
	keyAnswerWebMode    = "answer.web_mode"
)

type settingValue struct {
	key   string
	value any
}

// keyKind is how a setting value is parsed by Set.
type keyKind int

const (
	kindString keyKind = iota
	kindInt
	kindFloat
	kindBool
	kindDuration
)

var settingKeys = map[string]keyKind{
	keyEmbedProvider:    kindString,
	keyEmbedModel:       kindString,
	keyEmbedBaseURL:     kindString,
	keyEmbedAPIKey:      kindString,
	keyLLMProvider:      kindString,
	keyLLMModel:         kindString,
	keyLLMBaseURL:       kindString,
	keyLLMAPIKey:        kindString,
	keyStoreBackend:     kindString,
	keyStorePath:        kindString,
	keyStoreURL:         kindString,
	keyStoreAPIKey:      kindString,
	keyIngestImageDir:   kindString,
	keyIngestWorkers:    kindInt,
	keyIngestDepartment: kindString,
	keyIngestCollection: kindString,
	keyChunkerSize:      kindInt,
	keyChunkerOverlap:   kindInt,
	keyWebGoogleAPIKey:  kindString,
	keyWebGoogleCX:      kindString,
	keyWebTimeout:       kindDuration,
	keyWebMaxResults:    kindInt,
	keyWebWeather:       kindBool,
	keyAnswerTopK:       kindInt,
	keyAnswerMinScore:   kindFloat,
	keyAnswerTimeout:    kindDuration,
	keyAnswerWebMode:    kindString,
}

// SettingKeys returns every key accepted by Set, sorted.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingKeys))
	for k := range settingKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
	}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Embedding: domain.EmbeddingSettings{
			Provider: s.getProvider(keyEmbedProvider, defaults.Embedding.Provider),
			Model:    s.getString(keyEmbedModel, defaults.Embedding.Model),
			BaseURL:  s.configStore.GetString(keyEmbedBaseURL), // No default - empty is valid for cloud providers
			APIKey:   s.configStore.GetString(keyEmbedAPIKey),
		},
		LLM: domain.LLMSettings{
			Provider: s.getProvider(keyLLMProvider, defaults.LLM.Provider),
			Model:    s.getString(keyLLMModel, defaults.LLM.Model),
			BaseURL:  s.configStore.GetString(keyLLMBaseURL),
			APIKey:   s.configStore.GetString(keyLLMAPIKey),
		},
		Store: domain.StoreSettings{
			Backend: s.getBackend(defaults.Store.Backend),
			Path:    s.configStore.GetString(keyStorePath),
			URL:     s.configStore.GetString(keyStoreURL),
			APIKey:  s.configStore.GetString(keyStoreAPIKey),
		},
		Ingest: domain.IngestSettings{
			ImageDir:   s.configStore.GetString(keyIngestImageDir),
			Workers:    s.getInt(keyIngestWorkers, defaults.Ingest.Workers),
			Department: s.configStore.GetString(keyIngestDepartment),
			Collection: s.getString(keyIngestCollection, defaults.Ingest.Collection),
		},
		Chunker: domain.ChunkerSettings{
			Size:    s.getInt(keyChunkerSize, defaults.Chunker.Size),
			Overlap: s.getInt(keyChunkerOverlap, defaults.Chunker.Overlap),
		},
		Web: domain.WebSettings{
			GoogleAPIKey: s.configStore.GetString(keyWebGoogleAPIKey),
			GoogleCX:     s.configStore.GetString(keyWebGoogleCX),
			Timeout:      s.getDuration(keyWebTimeout, defaults.Web.Timeout),
			MaxResults:   s.getInt(keyWebMaxResults, defaults.Web.MaxResults),
			Weather:      s.getBool(keyWebWeather, defaults.Web.Weather),
		},
		Answer: domain.AnswerSettings{
			TopK:     s.getInt(keyAnswerTopK, defaults.Answer.TopK),
			MinScore: s.getFloat(keyAnswerMinScore, defaults.Answer.MinScore),
			Timeout:  s.getDuration(keyAnswerTimeout, defaults.Answer.Timeout),
			WebMode:  s.getWebMode(defaults.Answer.WebMode),
		},
	}

	if settings.Embedding.Provider == domain.AIProviderOllama && settings.Embedding.BaseURL == "" {
		settings.Embedding.BaseURL = DefaultOllamaURL
	}
	if settings.LLM.Provider == domain.AIProviderOllama && settings.LLM.BaseURL == "" {
		settings.LLM.BaseURL = DefaultOllamaURL
	}

	return settings, nil
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []settingValue{
		{keyEmbedProvider, settings.Embedding.Provider.String()},
		{keyEmbedModel, settings.Embedding.Model},
		{keyEmbedBaseURL, settings.Embedding.BaseURL},
		{keyLLMProvider, settings.LLM.Provider.String()},
		{keyLLMModel, settings.LLM.Model},
		{keyLLMBaseURL, settings.LLM.BaseURL},
		{keyStoreBackend, string(settings.Store.Backend)},
		{keyStorePath, settings.Store.Path},
		{keyStoreURL, settings.Store.URL},
		{keyIngestImageDir, settings.Ingest.ImageDir},
		{keyIngestWorkers, settings.Ingest.Workers},
		{keyIngestDepartment, settings.Ingest.Department},
		{keyIngestCollection, settings.Ingest.Collection},
		{keyChunkerSize, settings.Chunker.Size},
		{keyChunkerOverlap, settings.Chunker.Overlap},
		{keyWebGoogleCX, settings.Web.GoogleCX},
		{keyWebTimeout, settings.Web.Timeout.String()},
		{keyWebMaxResults, settings.Web.MaxResults},
		{keyWebWeather, settings.Web.Weather},
		{keyAnswerTopK, settings.Answer.TopK},
		{keyAnswerMinScore, settings.Answer.MinScore},
		{keyAnswerTimeout, settings.Answer.Timeout.String()},
		{keyAnswerWebMode, string(settings.Answer.WebMode)},
	}
	// Secrets are only written when set so a partial save never clears them.
	for key, secret := range map[string]string{
		keyEmbedAPIKey:     settings.Embedding.APIKey,
		keyLLMAPIKey:       settings.LLM.APIKey,
		keyStoreAPIKey:     settings.Store.APIKey,
		keyWebGoogleAPIKey: settings.Web.GoogleAPIKey,
	} {
		if secret != "" {
			values = append(values, settingValue{key, secret})
		}
	}

	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}
	return nil
}

// Set updates a single setting from its string form.
func (s *SettingsService) Set(key, value string) error {
	kind, ok := settingKeys[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}
	value = strings.TrimSpace(value)

	var parsed any
	switch kind {
	case kindString:
		if err := validateEnum(key, value); err != nil {
			return err
		}
		parsed = value
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidInput, key)
		}
		parsed = n
	case kindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: %s must be a number", domain.ErrInvalidInput, key)
		}
		parsed = f
	case kindBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be true or false", domain.ErrInvalidInput, key)
		}
		parsed = b
	case kindDuration:
		d, err := parseDuration(value)
		if err != nil {
			return fmt.Errorf("%w: %s must be a duration such as 10s", domain.ErrInvalidInput, key)
		}
		parsed = d.String()
	}

	return s.configStore.Set(key, parsed)
}

func validateEnum(key, value string) error {
	switch key {
	case keyEmbedProvider:
		if !slices.Contains(domain.AllEmbeddingProviders(), domain.AIProvider(value)) {
			return fmt.Errorf("%w: provider %s does not support embeddings", domain.ErrUnsupportedType, value)
		}
	case keyLLMProvider:
		if value != "" && !domain.AIProvider(value).IsValid() {
			return fmt.Errorf("%w: LLM provider %s", domain.ErrUnsupportedType, value)
		}
	case keyStoreBackend:
		if !domain.StoreBackend(value).IsValid() {
			return fmt.Errorf("%w: store backend %s", domain.ErrUnsupportedType, value)
		}
	case keyAnswerWebMode:
		if !domain.WebMode(value).IsValid() {
			return fmt.Errorf("%w: web mode %s", domain.ErrInvalidInput, value)
		}
	}
	return nil
}

// SetEmbeddingProvider configures the embedding provider.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid embedding provider: %s", provider)
	}
	if !slices.Contains(domain.AllEmbeddingProviders(), provider) {
		return fmt.Errorf("provider %s does not support embeddings", provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.Embedding.Provider = provider
	if model != "" {
		settings.Embedding.Model = model
	} else if defaultModel, ok := domain.DefaultEmbeddingModels()[provider]; ok {
		settings.Embedding.Model = defaultModel
	}

	if provider == domain.AIProviderOllama {
		if settings.Embedding.BaseURL == "" {
			settings.Embedding.BaseURL = DefaultOllamaURL
		}
	} else {
		settings.Embedding.BaseURL = ""
	}
	settings.Embedding.APIKey = apiKey

	return s.Save(settings)
}

// SetLLMProvider configures the LLM provider.
func (s *SettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("invalid LLM provider: %s", provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" {
		return fmt.Errorf("API key required for %s", provider)
	}

	settings, err := s.Get()
	if err != nil {
		return err
	}

	settings.LLM.Provider = provider
	if model != "" {
		settings.LLM.Model = model
	} else if defaultModel, ok := domain.DefaultLLMModels()[provider]; ok {
		settings.LLM.Model = defaultModel
	}

	if provider == domain.AIProviderOllama {
		if settings.LLM.BaseURL == "" {
			settings.LLM.BaseURL = DefaultOllamaURL
		}
	} else {
		settings.LLM.BaseURL = ""
	}
	settings.LLM.APIKey = apiKey

	return s.Save(settings)
}

// Validate checks the current settings. Ingestion and retrieval need an
// embedding provider; the LLM is optional.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if !settings.Embedding.IsConfigured() {
		return fmt.Errorf("%w: embedding provider %q is not configured", domain.ErrEmbeddingUnavailable, settings.Embedding.Provider)
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(&settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig() error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(&settings.LLM)
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetFloat(key)
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); !exists {
		return defaultVal
	}
	return s.configStore.GetBool(key)
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	d, err := parseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		return defaultVal
	}
	return provider
}

func (s *SettingsService) getBackend(defaultVal domain.StoreBackend) domain.StoreBackend {
	backend := domain.StoreBackend(s.configStore.GetString(keyStoreBackend))
	if !backend.IsValid() {
		return defaultVal
	}
	return backend
}

func (s *SettingsService) getWebMode(defaultVal domain.WebMode) domain.WebMode {
	mode := domain.WebMode(s.configStore.GetString(keyAnswerWebMode))
	if !mode.IsValid() {
		return defaultVal
	}
	return mode
}

// parseDuration accepts Go duration strings and bare seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}
