package extractors

import (
	"fmt"
	"sync"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.ExtractorRegistry = (*Registry)(nil)

// Registry maps source types to extractors.
// When two extractors claim the same type, the last registered wins.
type Registry struct {
	mu         sync.RWMutex
	extractors map[domain.SourceType]driven.Extractor
}

// NewRegistry creates an empty extractor registry.
func NewRegistry() *Registry {
	return &Registry{
		extractors: make(map[domain.SourceType]driven.Extractor),
	}
}

// Register adds an extractor for all types it supports.
func (r *Registry) Register(e driven.Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range e.SupportedTypes() {
		r.extractors[t] = e
	}
}

// Get returns the extractor for a source type.
func (r *Registry) Get(t domain.SourceType) (driven.Extractor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.extractors[t]
	if !ok {
		return nil, fmt.Errorf("%w: no extractor for %q", domain.ErrUnsupportedType, t)
	}
	return e, nil
}
