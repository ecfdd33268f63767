package domain

// WebResult is a single result from a web search provider.
type WebResult struct {
	Title   string
	Snippet string
	URL     string

	// Source names the provider that produced the result.
	Source string
}

// CardType identifies the kind of rich data card.
type CardType string

// Card types.
const (
	CardTypeWeather CardType = "weather"
	CardTypeImages  CardType = "images"
)

// RichCard is structured data returned alongside web results.
// Cards are shown to the user and never persisted.
type RichCard struct {
	Type    CardType
	Weather *WeatherCard
	Images  []ImageItem
}

// WeatherCard is the current weather at a location.
type WeatherCard struct {
	Location    string
	TempC       float64
	FeelsLikeC  float64
	Humidity    int
	WindKmph    float64
	Description string
}

// ImageItem is one entry of an image gallery card.
type ImageItem struct {
	Title     string
	Thumbnail string
	SourceURL string
}

// WebSearchResult is the merged output of all providers.
type WebSearchResult struct {
	Results []WebResult
	Cards   []RichCard
}

// IsEmpty returns true if no provider produced anything.
func (r WebSearchResult) IsEmpty() bool {
	return len(r.Results) == 0 && len(r.Cards) == 0
}
