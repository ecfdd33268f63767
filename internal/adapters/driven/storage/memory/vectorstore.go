package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/custodia-labs/bilgi/internal/adapters/driven/storage/similarity"
	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
)

// Ensure VectorStore implements the interfaces.
var (
	_ driven.VectorStore = (*VectorStore)(nil)
	_ driven.Collection  = (*Collection)(nil)
)

// VectorStore is an in-memory implementation of driven.VectorStore.
// Nothing survives Close; it backs tests and ephemeral runs.
type VectorStore struct {
	mu          sync.RWMutex
	collections map[string]*Collection
}

// NewVectorStore creates an empty in-memory vector store.
func NewVectorStore() *VectorStore {
	return &VectorStore{
		collections: make(map[string]*Collection),
	}
}

// ListCollections returns collection names in sorted order.
func (s *VectorStore) ListCollections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := slices.Collect(maps.Keys(s.collections))
	sort.Strings(names)
	return names, nil
}

// GetOrCreateCollection opens a collection, creating it when missing.
func (s *VectorStore) GetOrCreateCollection(
	_ context.Context, name string, metadata map[string]string,
) (driven.Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: collection name is required", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	c := &Collection{
		name:     name,
		metadata: maps.Clone(metadata),
		index:    make(map[string]int),
	}
	if c.metadata == nil {
		c.metadata = map[string]string{}
	}
	s.collections[name] = c
	return c, nil
}

// DeleteCollection removes a collection.
func (s *VectorStore) DeleteCollection(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		return domain.ErrNotFound
	}
	delete(s.collections, name)
	return nil
}

// Close drops every collection.
func (s *VectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string]*Collection)
	return nil
}

// Collection is an in-memory collection. Chunks are kept in insertion order.
type Collection struct {
	name     string
	metadata map[string]string

	mu     sync.RWMutex
	chunks []domain.Chunk
	index  map[string]int
	dim    int
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Metadata returns a copy of the collection metadata.
func (c *Collection) Metadata() map[string]string { return maps.Clone(c.metadata) }

// Upsert inserts chunks whose IDs are not yet present.
func (c *Collection) Upsert(ctx context.Context, chunks []domain.Chunk) (domain.UpsertResult, error) {
	var result domain.UpsertResult
	if err := ctx.Err(); err != nil {
		return result, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Validate the whole batch before touching state.
	dim := c.dim
	seen := make(map[string]bool, len(chunks))
	fresh := make([]domain.Chunk, 0, len(chunks))
	for _, ch := range chunks {
		if ch.ID == "" {
			return domain.UpsertResult{}, fmt.Errorf("%w: chunk id is required", domain.ErrInvalidInput)
		}
		if _, exists := c.index[ch.ID]; exists || seen[ch.ID] {
			result.Skipped++
			continue
		}
		if len(ch.Embedding) == 0 {
			return domain.UpsertResult{}, fmt.Errorf("chunk %s: %w", ch.ID, domain.ErrEmptyEmbedding)
		}
		if dim == 0 {
			dim = len(ch.Embedding)
		} else if len(ch.Embedding) != dim {
			return domain.UpsertResult{}, fmt.Errorf("chunk %s has %d dimensions, collection %s has %d: %w",
				ch.ID, len(ch.Embedding), c.name, dim, domain.ErrDimensionMismatch)
		}
		seen[ch.ID] = true
		fresh = append(fresh, cloneChunk(ch, true))
	}

	for _, ch := range fresh {
		c.index[ch.ID] = len(c.chunks)
		c.chunks = append(c.chunks, ch)
	}
	c.dim = dim
	result.Inserted = len(fresh)
	return result, nil
}

// Get returns chunks selected by ID and metadata, ordered by ID.
func (c *Collection) Get(_ context.Context, q domain.GetQuery) ([]domain.Chunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var candidates []domain.Chunk
	if len(q.IDs) > 0 {
		for _, id := range q.IDs {
			if i, ok := c.index[id]; ok {
				candidates = append(candidates, c.chunks[i])
			}
		}
	} else {
		candidates = c.chunks
	}

	out := make([]domain.Chunk, 0, len(candidates))
	for _, ch := range candidates {
		if q.Where.Matches(ch.Metadata) {
			out = append(out, cloneChunk(ch, q.IncludeEmbeddings))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	out = slices.CompactFunc(out, func(a, b domain.Chunk) bool { return a.ID == b.ID })

	return page(out, q.Offset, q.Limit), nil
}

// Delete removes chunks by ID.
func (c *Collection) Delete(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	kept := c.chunks[:0]
	for _, ch := range c.chunks {
		if !drop[ch.ID] {
			kept = append(kept, ch)
		}
	}
	clear(c.chunks[len(kept):])
	c.chunks = kept

	c.index = make(map[string]int, len(c.chunks))
	for i, ch := range c.chunks {
		c.index[ch.ID] = i
	}
	if len(c.chunks) == 0 {
		c.dim = 0
	}
	return nil
}

// Query returns the k most similar chunks.
func (c *Collection) Query(ctx context.Context, embedding []float32, k int) ([]domain.ScoredChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.chunks) == 0 || k <= 0 {
		return nil, nil
	}
	if len(embedding) != c.dim {
		return nil, fmt.Errorf("query has %d dimensions, collection %s has %d: %w",
			len(embedding), c.name, c.dim, domain.ErrDimensionMismatch)
	}

	top := similarity.NewTopK(k)
	for i, ch := range c.chunks {
		top.Offer(i, similarity.Cosine(embedding, ch.Embedding))
	}

	hits := top.Results()
	out := make([]domain.ScoredChunk, len(hits))
	for i, h := range hits {
		out[i] = domain.ScoredChunk{
			Chunk:      cloneChunk(c.chunks[h.Index], false),
			Collection: c.name,
			Score:      h.Score,
		}
	}
	return out, nil
}

// Count returns the number of chunks.
func (c *Collection) Count(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.chunks), nil
}

// Dimension returns the collection dimensionality, zero when empty.
func (c *Collection) Dimension(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dim, nil
}

func cloneChunk(ch domain.Chunk, withEmbedding bool) domain.Chunk {
	out := ch
	out.Embedding = nil
	if withEmbedding {
		out.Embedding = slices.Clone(ch.Embedding)
	}
	out.Metadata.Extra = maps.Clone(ch.Metadata.Extra)
	return out
}

func page(chunks []domain.Chunk, offset, limit int) []domain.Chunk {
	if offset > 0 {
		if offset >= len(chunks) {
			return []domain.Chunk{}
		}
		chunks = chunks[offset:]
	}
	if limit > 0 && limit < len(chunks) {
		chunks = chunks[:limit]
	}
	return chunks
}
