package driving

import (
	"context"

	"github.com/custodia-labs/bilgi/internal/core/domain"
)

// IngestService turns source documents into stored chunks.
type IngestService interface {
	// Ingest processes one source. A source with a manifest is skipped unless
	// the request is forced. Concurrent calls for the same source wait.
	Ingest(ctx context.Context, req domain.SourceRequest) domain.IngestReport

	// TryIngest is Ingest that fails with domain.ErrIngestInProgress instead of waiting.
	TryIngest(ctx context.Context, req domain.SourceRequest) domain.IngestReport

	// IngestAll processes many sources on a bounded worker pool.
	IngestAll(ctx context.Context, reqs []domain.SourceRequest) domain.IngestSummary

	// Delete removes all chunks and the manifest of a source.
	// Returns the number of chunks deleted.
	Delete(ctx context.Context, collection, source string) (int, error)

	// Status returns the state of an in-flight ingestion, or nil.
	Status(sourceID string) *domain.IngestStatus
}
