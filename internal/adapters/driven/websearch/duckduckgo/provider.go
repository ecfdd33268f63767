// Package duckduckgo searches the DuckDuckGo instant answer API.
package duckduckgo

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/bilgi/internal/adapters/driven/websearch"
	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.SearchProvider = (*Provider)(nil)

// Name identifies results from this provider.
const Name = "duckduckgo"

// DefaultBaseURL is the instant answer endpoint.
const DefaultBaseURL = "https://api.duckduckgo.com/"

// Config holds provider configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration

	// Region biases results, e.g. "tr-tr".
	Region string
}

// Provider queries DuckDuckGo. The API needs no key.
type Provider struct {
	client  *http.Client
	baseURL string
	region  string
	limiter *websearch.RateLimiter
}

type topic struct {
	Text     string  `json:"Text"`
	FirstURL string  `json:"FirstURL"`
	Name     string  `json:"Name"`
	Topics   []topic `json:"Topics"`
}

type response struct {
	Heading        string  `json:"Heading"`
	AbstractText   string  `json:"AbstractText"`
	AbstractURL    string  `json:"AbstractURL"`
	AbstractSource string  `json:"AbstractSource"`
	Answer         string  `json:"Answer"`
	Definition     string  `json:"Definition"`
	DefinitionURL  string  `json:"DefinitionURL"`
	Results        []topic `json:"Results"`
	RelatedTopics  []topic `json:"RelatedTopics"`
}

// New creates a DuckDuckGo provider.
func New(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Region == "" {
		cfg.Region = "tr-tr"
	}
	return &Provider{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		region:  cfg.Region,
		limiter: websearch.NewRateLimiter(1, 3),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return Name }

// Search returns the abstract, direct results and related topics, in that order.
func (p *Provider) Search(ctx context.Context, query string, max int) ([]domain.WebResult, []domain.RichCard, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")
	params.Set("kl", p.region)

	var resp response
	if err := websearch.GetJSON(ctx, p.client, p.limiter, p.baseURL+"?"+params.Encode(), &resp); err != nil {
		return nil, nil, err
	}
	return parse(resp, max), nil, nil
}

func parse(resp response, max int) []domain.WebResult {
	var out []domain.WebResult
	add := func(title, snippet, link string) {
		if len(out) >= max || snippet == "" || link == "" {
			return
		}
		out = append(out, domain.WebResult{Title: title, Snippet: snippet, URL: link, Source: Name})
	}

	if resp.AbstractText != "" {
		title := resp.Heading
		if title == "" {
			title = resp.AbstractSource
		}
		add(title, resp.AbstractText, resp.AbstractURL)
	}
	if resp.Definition != "" {
		add(resp.Heading, resp.Definition, resp.DefinitionURL)
	}
	for _, t := range resp.Results {
		add(titleOf(t.Text), t.Text, t.FirstURL)
	}
	for _, t := range flatten(resp.RelatedTopics) {
		add(titleOf(t.Text), t.Text, t.FirstURL)
	}
	return out
}

// flatten expands grouped related topics.
func flatten(topics []topic) []topic {
	var out []topic
	for _, t := range topics {
		if len(t.Topics) > 0 {
			out = append(out, flatten(t.Topics)...)
			continue
		}
		out = append(out, t)
	}
	return out
}

// titleOf uses the text before the first " - " as a title.
func titleOf(text string) string {
	if i := strings.Index(text, " - "); i > 0 {
		return text[:i]
	}
	return websearch.Truncate(text, 80)
}
