package driving

import (
	"context"

	"github.com/custodia-labs/bilgi/internal/core/domain"
)

// CollectionSynchronizer moves collections between deployments.
// Imports are additive and idempotent: existing IDs are never overwritten.
type CollectionSynchronizer interface {
	// Collections describes every collection in the local store.
	Collections(ctx context.Context) ([]domain.CollectionInfo, error)

	// Export reads the named collections (all when empty) into a bundle.
	Export(ctx context.Context, collections []string) (domain.ExportBundle, error)

	// Import merges a bundle into the local store, re-embedding records
	// whose dimensionality does not fit the target.
	Import(ctx context.Context, bundle domain.ExportBundle) ([]domain.ImportReport, error)
}
