package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
	"github.com/custodia-labs/bilgi/internal/core/ports/driving"
	"github.com/custodia-labs/bilgi/internal/logger"
)

// Ensure WebSearchService implements the interfaces.
var (
	_ driving.WebAugmenter    = (*WebSearchService)(nil)
	_ driven.PromptStoreAware = (*WebSearchService)(nil)
)

const (
	maxTitleRunes   = 200
	maxSnippetRunes = 500

	// DefaultWebTimeout bounds each provider call when none is configured.
	DefaultWebTimeout = 10 * time.Second
)

// WebSearchService consults web search providers in sequence and merges
// their results.
type WebSearchService struct {
	providers   []driven.SearchProvider
	timeout     time.Duration
	promptStore driven.PromptStore
}

// NewWebSearchService creates a web search service. Providers are consulted
// in the order given.
func NewWebSearchService(timeout time.Duration, providers ...driven.SearchProvider) *WebSearchService {
	if timeout <= 0 {
		timeout = DefaultWebTimeout
	}
	return &WebSearchService{providers: providers, timeout: timeout}
}

// SetPromptStore sets the prompt store used for the summary header.
func (s *WebSearchService) SetPromptStore(store driven.PromptStore) {
	s.promptStore = store
}

// Providers returns the names of the configured providers.
func (s *WebSearchService) Providers() []string {
	names := make([]string, len(s.providers))
	for i, p := range s.providers {
		names[i] = p.Name()
	}
	return names
}

// Search consults providers until maxResults results are collected.
// A provider that fails, panics or times out contributes nothing.
func (s *WebSearchService) Search(ctx context.Context, query string, maxResults int) domain.WebSearchResult {
	var out domain.WebSearchResult
	query = strings.TrimSpace(query)
	if query == "" || maxResults <= 0 {
		return out
	}

	seen := make(map[string]bool)
	for _, p := range s.providers {
		if len(out.Results) >= maxResults {
			break
		}
		if ctx.Err() != nil {
			logger.Warn("web search cancelled: %v", ctx.Err())
			break
		}

		results, cards, err := s.consult(ctx, p, query, maxResults-len(out.Results))
		if err != nil {
			logger.Warn("web provider %s failed: %v", p.Name(), err)
			continue
		}

		for _, r := range results {
			if len(out.Results) >= maxResults {
				break
			}
			if r.URL != "" {
				if seen[r.URL] {
					continue
				}
				seen[r.URL] = true
			}
			r.Title = truncateRunes(strings.TrimSpace(r.Title), maxTitleRunes)
			r.Snippet = truncateRunes(strings.TrimSpace(r.Snippet), maxSnippetRunes)
			if r.Source == "" {
				r.Source = p.Name()
			}
			out.Results = append(out.Results, r)
		}
		out.Cards = append(out.Cards, cards...)
		logger.Debug("web provider %s: %d results, %d cards", p.Name(), len(results), len(cards))
	}
	return out
}

// consult calls one provider under its own timeout and turns a panic into an error.
func (s *WebSearchService) consult(
	ctx context.Context, p driven.SearchProvider, query string, limit int,
) (results []domain.WebResult, cards []domain.RichCard, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			results, cards = nil, nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	results, cards, err = p.Search(ctx, query, limit)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, nil, err
	}
	return results, cards, nil
}

// SearchAndSummarize renders the results as a context block headed with a
// notice that the content comes from the web.
func (s *WebSearchService) SearchAndSummarize(ctx context.Context, query string, maxResults int) (string, bool) {
	res := s.Search(ctx, query, maxResults)
	if len(res.Results) == 0 {
		return "", false
	}
	return s.summarize(res.Results), true
}

func (s *WebSearchService) summarize(results []domain.WebResult) string {
	var b strings.Builder
	b.WriteString(loadPrompt(s.promptStore, driven.PromptWebHeader, defaultWebHeaderPrompt))
	for i, r := range results {
		fmt.Fprintf(&b, "\n\n%d. %s", i+1, r.Title)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "\n%s", r.Snippet)
		}
		if r.URL != "" {
			fmt.Fprintf(&b, "\nKaynak: %s", r.URL)
		}
	}
	return b.String()
}

// truncateRunes cuts s to at most n runes, marking the cut with an ellipsis.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-1]) + "…"
}
