// Package websearch holds the pieces shared by the web search providers:
// a rate limiter that honours Retry-After and a JSON GET helper.
//
// The providers themselves live in subpackages:
//
//   - duckduckgo: DuckDuckGo instant answers, no key required
//   - google: Google Custom Search web results and image gallery cards
//   - weather: current conditions from wttr.in as a weather card
package websearch
