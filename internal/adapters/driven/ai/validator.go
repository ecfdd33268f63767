package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
)

// Ensure ConfigValidator implements the interface.
var _ driven.AIConfigValidator = (*ConfigValidator)(nil)

// validateTimeout bounds one validation, test encode included.
const validateTimeout = 30 * time.Second

// validationText is encoded to prove the embedding model is installed.
const validationText = "bağlantı testi"

// ConfigValidator checks provider settings before they are saved.
//
// A reachable Ollama server may still lack the configured model, so
// embedding settings are accepted only after a test encode succeeds.
type ConfigValidator struct {
	timeout      time.Duration
	newEmbedding func(*domain.EmbeddingSettings) (driven.EmbeddingService, error)
	newLLM       func(*domain.LLMSettings) (driven.LLMService, error)
}

// NewConfigValidator creates a validator backed by the real providers.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		timeout:      validateTimeout,
		newEmbedding: CreateEmbeddingService,
		newLLM:       CreateLLMService,
	}
}

// ValidateEmbedding pings the provider and encodes a test sentence.
// Unconfigured settings are valid.
func (v *ConfigValidator) ValidateEmbedding(settings *domain.EmbeddingSettings) error {
	svc, err := v.newEmbedding(settings)
	if err != nil || svc == nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		return fmt.Errorf("%s unreachable: %w", settings.Provider, err)
	}
	vec, err := svc.Embed(ctx, validationText)
	if err != nil {
		return fmt.Errorf("model %s: %w", svc.ModelName(), err)
	}
	if len(vec) == 0 {
		return fmt.Errorf("model %s: %w", svc.ModelName(), domain.ErrEmptyEmbedding)
	}
	return nil
}

// ValidateLLM pings the provider. Unconfigured settings are valid.
func (v *ConfigValidator) ValidateLLM(settings *domain.LLMSettings) error {
	svc, err := v.newLLM(settings)
	if err != nil || svc == nil {
		return err
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		return fmt.Errorf("%s unreachable: %w", settings.Provider, err)
	}
	return nil
}
