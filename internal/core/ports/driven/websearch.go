package driven

import (
	"context"

	"github.com/custodia-labs/bilgi/internal/core/domain"
)

// SearchProvider is one source of live web results.
// Providers are consulted in sequence; a failing provider contributes nothing.
type SearchProvider interface {
	// Name identifies the provider in logs and results.
	Name() string

	// Search returns up to max results and any rich cards for the query.
	Search(ctx context.Context, query string, max int) ([]domain.WebResult, []domain.RichCard, error)
}
