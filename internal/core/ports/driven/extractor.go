package driven

import (
	"context"

	"github.com/custodia-labs/bilgi/internal/core/domain"
)

// Extractor pulls text and images out of a source document.
// Each extractor handles specific source types (e.g., PDF, plain text).
type Extractor interface {
	// SupportedTypes returns the source types this extractor handles.
	SupportedTypes() []domain.SourceType

	// Extract reads the document and returns its pages.
	// A missing external tool fails the whole call with domain.ErrDependencyMissing.
	// Failures confined to one page are counted in Extraction.PageErrors.
	Extract(ctx context.Context, source string, data []byte) (*domain.Extraction, error)
}

// ExtractorRegistry selects the extractor for a source type.
type ExtractorRegistry interface {
	// Register adds an extractor for all types it supports.
	Register(e Extractor)

	// Get returns the extractor for a source type.
	// Returns domain.ErrUnsupportedType if none is registered.
	Get(t domain.SourceType) (Extractor, error)
}
