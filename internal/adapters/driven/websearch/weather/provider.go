// Package weather produces weather cards from the wttr.in JSON API.
package weather

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/custodia-labs/bilgi/internal/adapters/driven/websearch"
	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.SearchProvider = (*Provider)(nil)

// Name identifies results from this provider.
const Name = "weather"

// DefaultBaseURL is the wttr.in endpoint.
const DefaultBaseURL = "https://wttr.in"

// intentWords mark a query as asking about the weather.
var intentWords = []string{
	"hava durumu", "hava nasıl", "havalar nasıl", "sıcaklık", "derece", "yağmur", "yağış", "kar yağ",
	"rüzgar", "nem oranı", "weather", "temperature", "forecast",
}

// noiseWords are dropped when looking for a place name.
var noiseWords = map[string]bool{
	"hava": true, "durumu": true, "nasıl": true, "havalar": true, "sıcaklık": true, "derece": true,
	"bugün": true, "yarın": true, "şu": true, "an": true, "şimdi": true, "kaç": true, "ne": true,
	"mi": true, "mı": true, "mu": true, "mü": true, "yağmur": true, "yağacak": true, "yağış": true,
	"var": true, "rüzgar": true, "nem": true, "oranı": true, "için": true, "the": true, "weather": true,
	"in": true, "today": true, "what": true, "is": true, "temperature": true, "forecast": true,
}

// locativeSuffix strips Turkish locative and genitive endings: İzmir'de, Ankara'nın.
var locativeSuffix = regexp.MustCompile(`['’](da|de|ta|te|nın|nin|nun|nün|ın|in|un|ün)$`)

// Config holds provider configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration

	// DefaultLocation is used when the query names no place.
	DefaultLocation string
}

// Provider answers weather questions with a single card.
type Provider struct {
	client   *http.Client
	baseURL  string
	fallback string
	limiter  *websearch.RateLimiter
}

type valueList []struct {
	Value string `json:"value"`
}

func (v valueList) first() string {
	if len(v) == 0 {
		return ""
	}
	return v[0].Value
}

type response struct {
	CurrentCondition []struct {
		TempC         string    `json:"temp_C"`
		FeelsLikeC    string    `json:"FeelsLikeC"`
		Humidity      string    `json:"humidity"`
		WindspeedKmph string    `json:"windspeedKmph"`
		WeatherDesc   valueList `json:"weatherDesc"`
		LangTR        valueList `json:"lang_tr"`
	} `json:"current_condition"`
	NearestArea []struct {
		AreaName valueList `json:"areaName"`
		Country  valueList `json:"country"`
	} `json:"nearest_area"`
}

// New creates a weather provider.
func New(cfg Config) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.DefaultLocation == "" {
		cfg.DefaultLocation = "İstanbul"
	}
	return &Provider{
		client:   &http.Client{Timeout: cfg.Timeout},
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		fallback: cfg.DefaultLocation,
		limiter:  websearch.NewRateLimiter(1, 2),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return Name }

// Search returns a weather card for weather questions and nothing otherwise.
func (p *Provider) Search(ctx context.Context, query string, _ int) ([]domain.WebResult, []domain.RichCard, error) {
	if !IsWeatherQuery(query) {
		return nil, nil, nil
	}

	location := ExtractLocation(query, p.fallback)
	params := url.Values{}
	params.Set("format", "j1")
	params.Set("lang", "tr")
	endpoint := fmt.Sprintf("%s/%s?%s", p.baseURL, url.PathEscape(location), params.Encode())

	var resp response
	if err := websearch.GetJSON(ctx, p.client, p.limiter, endpoint, &resp); err != nil {
		return nil, nil, err
	}
	if len(resp.CurrentCondition) == 0 {
		return nil, nil, fmt.Errorf("weather: no current conditions for %s", location)
	}

	cur := resp.CurrentCondition[0]
	card := &domain.WeatherCard{
		Location:    location,
		TempC:       parseFloat(cur.TempC),
		FeelsLikeC:  parseFloat(cur.FeelsLikeC),
		Humidity:    int(parseFloat(cur.Humidity)),
		WindKmph:    parseFloat(cur.WindspeedKmph),
		Description: cur.LangTR.first(),
	}
	if card.Description == "" {
		card.Description = strings.TrimSpace(cur.WeatherDesc.first())
	}
	if len(resp.NearestArea) > 0 {
		if area := resp.NearestArea[0].AreaName.first(); area != "" {
			card.Location = area
		}
	}

	result := domain.WebResult{
		Title:   card.Location + " hava durumu",
		Snippet: fmt.Sprintf("%s, %.0f°C (hissedilen %.0f°C), nem %%%d, rüzgar %.0f km/s", card.Description, card.TempC, card.FeelsLikeC, card.Humidity, card.WindKmph),
		URL:     fmt.Sprintf("%s/%s", p.baseURL, url.PathEscape(location)),
		Source:  Name,
	}
	return []domain.WebResult{result}, []domain.RichCard{{Type: domain.CardTypeWeather, Weather: card}}, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// IsWeatherQuery reports whether the query asks about the weather.
func IsWeatherQuery(query string) bool {
	q := strings.ToLowerSpecial(unicode.TurkishCase, query)
	for _, w := range intentWords {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}

// ExtractLocation picks the place name out of a weather question, falling
// back when none is found. "İzmir'de hava nasıl?" yields "İzmir".
func ExtractLocation(query, fallback string) string {
	var place []string
	for _, field := range strings.Fields(query) {
		word := strings.TrimFunc(field, func(r rune) bool {
			return unicode.IsPunct(r) && r != '\'' && r != '’'
		})
		word = locativeSuffix.ReplaceAllString(word, "")
		if word == "" || noiseWords[strings.ToLowerSpecial(unicode.TurkishCase, word)] {
			continue
		}
		place = append(place, word)
	}
	if len(place) == 0 {
		return fallback
	}
	return strings.Join(place, " ")
}
