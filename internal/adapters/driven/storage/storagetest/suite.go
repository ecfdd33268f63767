// Package storagetest holds the behaviour every driven.VectorStore backend
// must share. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
)

// Factory returns a fresh, empty store. The store is closed by the suite.
type Factory func(t *testing.T) driven.VectorStore

// Run executes the shared vector store suite.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s driven.VectorStore)
	}{
		{"GetOrCreateCollection", testGetOrCreate},
		{"ListAndDeleteCollections", testListAndDelete},
		{"UpsertSkipsExisting", testUpsertSkipsExisting},
		{"UpsertDimensionMismatch", testUpsertDimensionMismatch},
		{"UpsertBatchIsAtomic", testUpsertBatchAtomic},
		{"GetByIDsAndFilter", testGetByIDsAndFilter},
		{"GetPaging", testGetPaging},
		{"GetEmbeddings", testGetEmbeddings},
		{"MetadataRoundTrip", testMetadataRoundTrip},
		{"Delete", testDelete},
		{"QueryRanksByCosine", testQueryRanks},
		{"QueryEmptyCollection", testQueryEmpty},
		{"ConcurrentUpserts", testConcurrentUpserts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// NewChunk builds a chunk for source with the given index and vector.
func NewChunk(source string, n int, vec ...float32) domain.Chunk {
	return domain.Chunk{
		ID:        domain.ChunkID(source, n),
		Text:      fmt.Sprintf("%s parça %d", source, n),
		Embedding: vec,
		Metadata: domain.ChunkMetadata{
			Source:     source,
			Type:       domain.SourceTypePDF,
			ChunkIndex: n,
		},
	}
}

func open(t *testing.T, s driven.VectorStore, name string) driven.Collection {
	t.Helper()
	c, err := s.GetOrCreateCollection(context.Background(), name, nil)
	require.NoError(t, err)
	return c
}

func testGetOrCreate(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()

	c, err := s.GetOrCreateCollection(ctx, "company_documents", map[string]string{"hnsw:space": "cosine"})
	require.NoError(t, err)
	assert.Equal(t, "company_documents", c.Name())
	assert.Equal(t, "cosine", c.Metadata()["hnsw:space"])

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	dim, err := c.Dimension(ctx)
	require.NoError(t, err)
	assert.Zero(t, dim)

	_, err = c.Upsert(ctx, []domain.Chunk{NewChunk("a.pdf", 0, 1, 0)})
	require.NoError(t, err)

	// Reopening sees the same data and keeps the original metadata.
	again, err := s.GetOrCreateCollection(ctx, "company_documents", map[string]string{"hnsw:space": "l2"})
	require.NoError(t, err)
	n, err = again.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "cosine", again.Metadata()["hnsw:space"])

	_, err = s.GetOrCreateCollection(ctx, "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func testListAndDelete(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()
	open(t, s, "learned_knowledge")
	open(t, s, "company_documents")

	names, err := s.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"company_documents", "learned_knowledge"}, names)

	require.NoError(t, s.DeleteCollection(ctx, "learned_knowledge"))
	names, err = s.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"company_documents"}, names)

	assert.ErrorIs(t, s.DeleteCollection(ctx, "learned_knowledge"), domain.ErrNotFound)
}

func testUpsertSkipsExisting(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()
	c := open(t, s, "docs")

	res, err := c.Upsert(ctx, []domain.Chunk{
		NewChunk("a.pdf", 0, 1, 0, 0),
		NewChunk("a.pdf", 1, 0, 1, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertResult{Inserted: 2}, res)

	changed := NewChunk("a.pdf", 0, 0, 0, 1)
	changed.Text = "değişti"
	res, err = c.Upsert(ctx, []domain.Chunk{changed, NewChunk("a.pdf", 2, 0, 0, 1)})
	require.NoError(t, err)
	assert.Equal(t, domain.UpsertResult{Inserted: 1, Skipped: 1}, res)

	got, err := c.Get(ctx, domain.GetQuery{IDs: []string{"a.pdf_0"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a.pdf parça 0", got[0].Text)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func testUpsertDimensionMismatch(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()
	c := open(t, s, "docs")

	_, err := c.Upsert(ctx, []domain.Chunk{NewChunk("a.pdf", 0, 1, 2, 3)})
	require.NoError(t, err)

	_, err = c.Upsert(ctx, []domain.Chunk{NewChunk("b.pdf", 0, 1, 2)})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	dim, err := c.Dimension(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, dim)
}

func testUpsertBatchAtomic(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()
	c := open(t, s, "docs")

	_, err := c.Upsert(ctx, []domain.Chunk{
		NewChunk("a.pdf", 0, 1, 0),
		NewChunk("a.pdf", 1, 0, 1),
		NewChunk("a.pdf", 2, 1, 1, 1),
	})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	dim, err := c.Dimension(ctx)
	require.NoError(t, err)
	assert.Zero(t, dim)
}

func seed(t *testing.T, c driven.Collection) {
	t.Helper()
	chunks := []domain.Chunk{
		NewChunk("b.pdf", 0, 1, 0),
		NewChunk("a.pdf", 1, 0, 1),
		NewChunk("a.pdf", 0, 1, 1),
		NewChunk("c.txt", 0, 1, -1),
	}
	chunks[3].Metadata.Type = domain.SourceTypeManual
	chunks[3].Metadata.Department = "İK"
	_, err := c.Upsert(context.Background(), chunks)
	require.NoError(t, err)
}

func ids(chunks []domain.Chunk) []string {
	out := make([]string, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.ID
	}
	return out
}

func testGetByIDsAndFilter(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()
	c := open(t, s, "docs")
	seed(t, c)

	all, err := c.Get(ctx, domain.GetQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf_0", "a.pdf_1", "b.pdf_0", "c.txt_0"}, ids(all))

	bySource, err := c.Get(ctx, domain.GetQuery{Where: domain.MetadataFilter{Source: "a.pdf"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf_0", "a.pdf_1"}, ids(bySource))

	byDept, err := c.Get(ctx, domain.GetQuery{Where: domain.MetadataFilter{Department: "İK"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"c.txt_0"}, ids(byDept))

	byIDs, err := c.Get(ctx, domain.GetQuery{IDs: []string{"c.txt_0", "missing", "a.pdf_1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf_1", "c.txt_0"}, ids(byIDs))

	both, err := c.Get(ctx, domain.GetQuery{
		IDs:   []string{"a.pdf_0", "b.pdf_0"},
		Where: domain.MetadataFilter{Source: "b.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b.pdf_0"}, ids(both))

	none, err := c.Get(ctx, domain.GetQuery{Where: domain.MetadataFilter{Source: "yok.pdf"}})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testGetPaging(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()
	c := open(t, s, "docs")
	seed(t, c)

	first, err := c.Get(ctx, domain.GetQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf_0", "a.pdf_1"}, ids(first))

	second, err := c.Get(ctx, domain.GetQuery{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"b.pdf_0", "c.txt_0"}, ids(second))

	past, err := c.Get(ctx, domain.GetQuery{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, past)
}

func testGetEmbeddings(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()
	c := open(t, s, "docs")
	seed(t, c)

	without, err := c.Get(ctx, domain.GetQuery{IDs: []string{"c.txt_0"}})
	require.NoError(t, err)
	require.Len(t, without, 1)
	assert.Nil(t, without[0].Embedding)

	with, err := c.Get(ctx, domain.GetQuery{IDs: []string{"c.txt_0"}, IncludeEmbeddings: true})
	require.NoError(t, err)
	require.Len(t, with, 1)
	assert.Equal(t, []float32{1, -1}, with[0].Embedding)
}

func testMetadataRoundTrip(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()
	c := open(t, s, "docs")

	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	ch := NewChunk("tarama.pdf", 0, 0.5, 0.5)
	ch.Metadata = domain.ChunkMetadata{
		Source:       "tarama.pdf",
		Type:         domain.SourceTypeOCR,
		ChunkIndex:   0,
		TotalChunks:  3,
		CreatedAt:    created,
		Department:   "Muhasebe",
		OCRProcessed: true,
		PageCount:    3,
		Extra:        map[string]any{"author": "Ayşe"},
	}
	_, err := c.Upsert(ctx, []domain.Chunk{ch})
	require.NoError(t, err)

	got, err := c.Get(ctx, domain.GetQuery{IDs: []string{ch.ID}})
	require.NoError(t, err)
	require.Len(t, got, 1)

	m := got[0].Metadata
	assert.Equal(t, "tarama.pdf", m.Source)
	assert.Equal(t, domain.SourceTypeOCR, m.Type)
	assert.Equal(t, 3, m.TotalChunks)
	assert.True(t, created.Equal(m.CreatedAt))
	assert.Equal(t, "Muhasebe", m.Department)
	assert.True(t, m.OCRProcessed)
	assert.Equal(t, 3, m.PageCount)
	assert.Equal(t, "Ayşe", m.Extra["author"])
	assert.Equal(t, ch.Text, got[0].Text)
}

func testDelete(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()
	c := open(t, s, "docs")
	seed(t, c)

	require.NoError(t, c.Delete(ctx, []string{"a.pdf_0", "a.pdf_1", "unknown"}))
	require.NoError(t, c.Delete(ctx, nil))

	all, err := c.Get(ctx, domain.GetQuery{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b.pdf_0", "c.txt_0"}, ids(all))

	// A deleted id can be inserted again.
	res, err := c.Upsert(ctx, []domain.Chunk{NewChunk("a.pdf", 0, 1, 1)})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
}

func testQueryRanks(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()
	c := open(t, s, "docs")
	seed(t, c)

	hits, err := c.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "b.pdf_0", hits[0].Chunk.ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Contains(t, []string{"a.pdf_0", "c.txt_0"}, hits[1].Chunk.ID)
	assert.InDelta(t, 0.7071, hits[1].Score, 1e-3)
	assert.Equal(t, "docs", hits[0].Collection)
	assert.Equal(t, "b.pdf", hits[0].Chunk.Metadata.Source)
	assert.NotEmpty(t, hits[0].Chunk.Text)

	all, err := c.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].Score, all[i].Score)
	}
}

func testQueryEmpty(t *testing.T, s driven.VectorStore) {
	c := open(t, s, "docs")
	hits, err := c.Query(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func testConcurrentUpserts(t *testing.T, s driven.VectorStore) {
	ctx := context.Background()
	c := open(t, s, "docs")

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				src := fmt.Sprintf("w%d.pdf", w)
				_, err := c.Upsert(ctx, []domain.Chunk{NewChunk(src, i, float32(w+1), float32(i+1))})
				assert.NoError(t, err)
				_, err = c.Query(ctx, []float32{1, 1}, 3)
				assert.NoError(t, err)
			}
		}(w)
	}
	wg.Wait()

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}
