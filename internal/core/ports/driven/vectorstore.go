package driven

import (
	"context"

	"github.com/custodia-labs/bilgi/internal/core/domain"
)

// VectorStore manages named collections of embedded chunks.
// The store exclusively owns persisted chunk data.
type VectorStore interface {
	// ListCollections returns the names of all collections.
	ListCollections(ctx context.Context) ([]string, error)

	// GetOrCreateCollection opens a collection, creating it when missing.
	// Metadata is only applied on creation.
	GetOrCreateCollection(ctx context.Context, name string, metadata map[string]string) (Collection, error)

	// DeleteCollection removes a collection and all of its chunks.
	// Returns domain.ErrNotFound if it does not exist.
	DeleteCollection(ctx context.Context, name string) error

	// Close releases resources.
	Close() error
}

// Collection is a named set of chunks sharing one embedding dimensionality.
//
// Writes to a collection are serialised; reads may run concurrently.
type Collection interface {
	// Name returns the collection name.
	Name() string

	// Upsert inserts chunks whose IDs are not yet present.
	// Chunks with an existing ID are skipped and counted, never overwritten.
	// The batch is atomic: on error nothing is inserted.
	// A vector whose length differs from the collection dimensionality
	// fails with domain.ErrDimensionMismatch.
	Upsert(ctx context.Context, chunks []domain.Chunk) (domain.UpsertResult, error)

	// Get returns chunks selected by ID and/or metadata, ordered by ID.
	Get(ctx context.Context, q domain.GetQuery) ([]domain.Chunk, error)

	// Delete removes chunks by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Query returns the k chunks most similar to the embedding by cosine similarity.
	Query(ctx context.Context, embedding []float32, k int) ([]domain.ScoredChunk, error)

	// Count returns the number of chunks.
	Count(ctx context.Context) (int, error)

	// Dimension returns the embedding dimensionality, sampled from a stored
	// vector. Zero means the collection is empty.
	Dimension(ctx context.Context) (int, error)

	// Metadata returns the collection-level metadata.
	Metadata() map[string]string
}
