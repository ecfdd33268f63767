package driving

import (
	"context"

	"github.com/custodia-labs/bilgi/internal/core/domain"
)

// WebAugmenter fetches live web results to supplement local knowledge.
type WebAugmenter interface {
	// Search consults every provider and merges their results.
	// It never fails: providers that error or time out contribute nothing.
	Search(ctx context.Context, query string, maxResults int) domain.WebSearchResult

	// SearchAndSummarize renders the results as a context block for the LLM.
	// Returns false when nothing was found.
	SearchAndSummarize(ctx context.Context, query string, maxResults int) (string, bool)
}
