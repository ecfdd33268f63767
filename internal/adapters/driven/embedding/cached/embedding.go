// Package cached wraps an embedding service with dimension discovery and a
// small cache of recent vectors.
//
// Providers rarely document the vector size of custom models, so the first
// call to Dimensions runs a test encode and remembers the size.
package cached

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
	"github.com/custodia-labs/bilgi/internal/logger"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// DefaultCacheSize is the number of vectors kept when no size is given.
const DefaultCacheSize = 256

// dimensionText is encoded once to learn the vector size.
const dimensionText = "boyut testi"

// discoverTimeout bounds the test encode.
const discoverTimeout = 30 * time.Second

// EmbeddingService decorates another embedding service.
type EmbeddingService struct {
	inner driven.EmbeddingService

	discoverMu sync.Mutex
	dim     int

	mu    sync.Mutex
	size  int
	order []string
	cache map[string][]float32
}

// New wraps inner. A cacheSize of zero uses DefaultCacheSize, a negative
// size disables the vector cache.
func New(inner driven.EmbeddingService, cacheSize int) *EmbeddingService {
	if cacheSize == 0 {
		cacheSize = DefaultCacheSize
	}
	return &EmbeddingService{
		inner: inner,
		size:  cacheSize,
		cache: make(map[string][]float32),
	}
}

// Discover learns the vector size, running a test encode when the wrapped
// service does not know it. Once learned the size is kept; a failed test
// encode is retried on the next call.
func (s *EmbeddingService) Discover(ctx context.Context) (int, error) {
	s.discoverMu.Lock()
	defer s.discoverMu.Unlock()

	if s.dim > 0 {
		return s.dim, nil
	}
	if d := s.inner.Dimensions(); d > 0 {
		s.dim = d
		return d, nil
	}
	vec, err := s.inner.Embed(ctx, dimensionText)
	if err != nil {
		return 0, fmt.Errorf("discover embedding dimension: %w", err)
	}
	if len(vec) == 0 {
		return 0, fmt.Errorf("discover embedding dimension: %w", domain.ErrEmptyEmbedding)
	}
	s.dim = len(vec)
	logger.Debug("embedding model %s produces %d-dimensional vectors", s.inner.ModelName(), s.dim)
	return s.dim, nil
}

// Dimensions returns the vector size, discovering it on first use.
// Returns zero when discovery failed.
func (s *EmbeddingService) Dimensions() int {
	ctx, cancel := context.WithTimeout(context.Background(), discoverTimeout)
	defer cancel()

	dim, err := s.Discover(ctx)
	if err != nil {
		logger.Warn("%v", err)
		return 0
	}
	return dim
}

// Embed returns the cached vector for text, calling the wrapped service on a miss.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := s.lookup(text); ok {
		return vec, nil
	}
	vec, err := s.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	s.store(text, vec)
	return clone(vec), nil
}

// EmbedBatch embeds only the texts missing from the cache.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if vec, ok := s.lookup(text); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := s.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts", len(vecs), len(missing))
	}
	for j, vec := range vecs {
		s.store(missing[j], vec)
		out[missingIdx[j]] = clone(vec)
	}
	return out, nil
}

// ModelName returns the wrapped model name.
func (s *EmbeddingService) ModelName() string {
	return s.inner.ModelName()
}

// Ping delegates to the wrapped service.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return s.inner.Ping(ctx)
}

// Close closes the wrapped service.
func (s *EmbeddingService) Close() error {
	return s.inner.Close()
}

func (s *EmbeddingService) lookup(text string) ([]float32, bool) {
	if s.size < 0 {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	vec, ok := s.cache[text]
	if !ok {
		return nil, false
	}
	return clone(vec), true
}

func (s *EmbeddingService) store(text string, vec []float32) {
	if s.size < 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cache[text]; ok {
		return
	}
	for len(s.order) >= s.size {
		delete(s.cache, s.order[0])
		s.order = s.order[1:]
	}
	s.cache[text] = clone(vec)
	s.order = append(s.order, text)
}

func clone(vec []float32) []float32 {
	return append([]float32(nil), vec...)
}
