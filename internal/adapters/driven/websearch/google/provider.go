// Package google searches the Google Custom Search JSON API.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/custodia-labs/bilgi/internal/adapters/driven/websearch"
	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
	"github.com/custodia-labs/bilgi/internal/logger"
)

// Ensure Provider implements the interface.
var _ driven.SearchProvider = (*Provider)(nil)

// Name identifies results from this provider.
const Name = "google"

// DefaultBaseURL is the Custom Search endpoint.
const DefaultBaseURL = "https://customsearch.googleapis.com/customsearch/v1"

// maxPerRequest is the most results the API returns per call.
const maxPerRequest = 10

// imageCardSize is the number of images in a gallery card.
const imageCardSize = 6

// imageWords mark a query as asking for pictures.
var imageWords = []string{"resim", "görsel", "fotoğraf", "foto", "logo", "image", "photo", "picture"}

// Config holds provider configuration.
type Config struct {
	APIKey  string
	CX      string
	BaseURL string
	Timeout time.Duration

	// Language restricts results, e.g. "lang_tr". Empty means any language.
	Language string
}

// Provider queries Google Custom Search.
type Provider struct {
	client   *http.Client
	apiKey   string
	cx       string
	baseURL  string
	language string
	limiter  *websearch.RateLimiter
}

type item struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Image   *struct {
		ContextLink   string `json:"contextLink"`
		ThumbnailLink string `json:"thumbnailLink"`
	} `json:"image,omitempty"`
}

type response struct {
	Items []item `json:"items"`
}

// New creates a Google provider. Both the API key and the search engine id are required.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" || cfg.CX == "" {
		return nil, errors.New("google: API key and search engine id (cx) are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Provider{
		client:   &http.Client{Timeout: cfg.Timeout},
		apiKey:   cfg.APIKey,
		cx:       cfg.CX,
		baseURL:  cfg.BaseURL,
		language: cfg.Language,
		limiter:  websearch.NewRateLimiter(5, 5),
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return Name }

// Search returns web results. Queries asking for pictures also get an
// image gallery card; a failed image lookup only loses the card.
func (p *Provider) Search(ctx context.Context, query string, max int) ([]domain.WebResult, []domain.RichCard, error) {
	var resp response
	if err := websearch.GetJSON(ctx, p.client, p.limiter, p.url(query, max, false), &resp); err != nil {
		return nil, nil, err
	}

	results := make([]domain.WebResult, 0, len(resp.Items))
	for _, it := range resp.Items {
		if it.Link == "" {
			continue
		}
		results = append(results, domain.WebResult{
			Title:   it.Title,
			Snippet: strings.TrimSpace(it.Snippet),
			URL:     it.Link,
			Source:  Name,
		})
	}

	var cards []domain.RichCard
	if WantsImages(query) {
		card, err := p.images(ctx, query)
		if err != nil {
			logger.Warn("google image search failed: %v", err)
		} else if card != nil {
			cards = append(cards, *card)
		}
	}
	return results, cards, nil
}

func (p *Provider) images(ctx context.Context, query string) (*domain.RichCard, error) {
	var resp response
	if err := websearch.GetJSON(ctx, p.client, p.limiter, p.url(query, imageCardSize, true), &resp); err != nil {
		return nil, err
	}

	card := domain.RichCard{Type: domain.CardTypeImages}
	for _, it := range resp.Items {
		img := domain.ImageItem{Title: it.Title, Thumbnail: it.Link, SourceURL: it.Link}
		if it.Image != nil {
			if it.Image.ThumbnailLink != "" {
				img.Thumbnail = it.Image.ThumbnailLink
			}
			if it.Image.ContextLink != "" {
				img.SourceURL = it.Image.ContextLink
			}
		}
		card.Images = append(card.Images, img)
	}
	if len(card.Images) == 0 {
		return nil, nil
	}
	return &card, nil
}

func (p *Provider) url(query string, n int, images bool) string {
	if n <= 0 || n > maxPerRequest {
		n = maxPerRequest
	}
	params := url.Values{}
	params.Set("key", p.apiKey)
	params.Set("cx", p.cx)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(n))
	if p.language != "" {
		params.Set("lr", p.language)
	}
	if images {
		params.Set("searchType", "image")
		params.Set("safe", "active")
	}
	return fmt.Sprintf("%s?%s", p.baseURL, params.Encode())
}

// WantsImages reports whether the query asks for pictures.
func WantsImages(query string) bool {
	q := strings.ToLowerSpecial(unicode.TurkishCase, query)
	for _, w := range imageWords {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}
