package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/bilgi/internal/core/domain"
)

// defaultLimit is used when a tool call does not set a limit.
const defaultLimit = 5

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question    string   `json:"question" jsonschema:"the question to answer from company knowledge"`
	WebMode     string   `json:"web_mode,omitempty" jsonschema:"web search mode: auto, always or never (default auto)"`
	Collections []string `json:"collections,omitempty" jsonschema:"collections to search (default company_documents and learned_knowledge)"`
	TopK        int      `json:"top_k,omitempty" jsonschema:"passages to take from each collection"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer     string          `json:"answer"`
	Sources    []PassageOutput `json:"sources,omitempty"`
	WebResults []WebOutput     `json:"web_results,omitempty"`
	UsedWeb    bool            `json:"used_web"`
	Degraded   bool            `json:"degraded"`
}

// KnowledgeSearchInput is the input schema for the knowledge_search tool.
type KnowledgeSearchInput struct {
	Query       string   `json:"query" jsonschema:"the text to search stored knowledge for"`
	Limit       int      `json:"limit,omitempty" jsonschema:"maximum number of passages per collection (default 5)"`
	Collections []string `json:"collections,omitempty" jsonschema:"collections to search"`
}

// KnowledgeSearchOutput is the output schema for the knowledge_search tool.
type KnowledgeSearchOutput struct {
	Results []PassageOutput `json:"results"`
	Count   int             `json:"count"`
}

// PassageOutput is one retrieved chunk.
type PassageOutput struct {
	ID         string  `json:"id"`
	Source     string  `json:"source"`
	Collection string  `json:"collection"`
	ChunkIndex int     `json:"chunk_index"`
	Department string  `json:"department,omitempty"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

// WebSearchInput is the input schema for the web_search tool.
type WebSearchInput struct {
	Query string `json:"query" jsonschema:"the web search query"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results (default 5)"`
}

// WebSearchOutput is the output schema for the web_search tool.
type WebSearchOutput struct {
	Results []WebOutput  `json:"results"`
	Cards   []CardOutput `json:"cards,omitempty"`
	Count   int          `json:"count"`
}

// WebOutput is one web search result.
type WebOutput struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet,omitempty"`
	Provider string `json:"provider,omitempty"`
}

// CardOutput is a rich data card flattened to text.
type CardOutput struct {
	Type    string `json:"type"`
	Summary string `json:"summary"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question using company documents, learned knowledge and, when needed, the web",
	}, s.handleAsk)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "knowledge_search",
		Description: "Semantic search over stored company knowledge without generating an answer",
	}, s.handleKnowledgeSearch)

	if s.ports.Web != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "web_search",
			Description: "Search the web and return results with weather and image cards",
		}, s.handleWebSearch)
	}
}

func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	mode := domain.WebMode(input.WebMode)
	if mode != "" && !mode.IsValid() {
		return nil, AskOutput{}, fmt.Errorf("%w: web mode %q", domain.ErrInvalidInput, input.WebMode)
	}

	answer, err := s.ports.Answer.Answer(ctx, domain.AnswerRequest{
		Question:    input.Question,
		Collections: input.Collections,
		TopK:        input.TopK,
		WebMode:     mode,
	})
	if err != nil {
		return nil, AskOutput{}, err
	}

	return nil, AskOutput{
		Answer:     answer.Text,
		Sources:    passages(answer.Sources),
		WebResults: webOutputs(answer.WebResults),
		UsedWeb:    answer.UsedWeb,
		Degraded:   answer.Degraded,
	}, nil
}

func (s *Server) handleKnowledgeSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input KnowledgeSearchInput,
) (*mcp.CallToolResult, KnowledgeSearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	hits, err := s.ports.Answer.Retrieve(ctx, input.Query, input.Collections, limit)
	if err != nil {
		return nil, KnowledgeSearchOutput{}, err
	}

	return nil, KnowledgeSearchOutput{
		Results: passages(hits),
		Count:   len(hits),
	}, nil
}

func (s *Server) handleWebSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input WebSearchInput,
) (*mcp.CallToolResult, WebSearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	res := s.ports.Web.Search(ctx, input.Query, limit)

	output := WebSearchOutput{
		Results: webOutputs(res.Results),
		Count:   len(res.Results),
	}
	for _, c := range res.Cards {
		if summary := cardSummary(c); summary != "" {
			output.Cards = append(output.Cards, CardOutput{Type: string(c.Type), Summary: summary})
		}
	}
	return nil, output, nil
}

func passages(hits []domain.ScoredChunk) []PassageOutput {
	out := make([]PassageOutput, len(hits))
	for i, h := range hits {
		out[i] = PassageOutput{
			ID:         h.Chunk.ID,
			Source:     h.Chunk.Metadata.Source,
			Collection: h.Collection,
			ChunkIndex: h.Chunk.Metadata.ChunkIndex,
			Department: h.Chunk.Metadata.Department,
			Score:      h.Score,
			Text:       h.Chunk.Text,
		}
	}
	return out
}

func webOutputs(results []domain.WebResult) []WebOutput {
	out := make([]WebOutput, len(results))
	for i, r := range results {
		out[i] = WebOutput{
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  r.Snippet,
			Provider: r.Source,
		}
	}
	return out
}

func cardSummary(c domain.RichCard) string {
	switch {
	case c.Type == domain.CardTypeWeather && c.Weather != nil:
		w := c.Weather
		return fmt.Sprintf("%s: %.0f°C, feels like %.0f°C, %s, humidity %d%%, wind %.0f km/h",
			w.Location, w.TempC, w.FeelsLikeC, w.Description, w.Humidity, w.WindKmph)
	case c.Type == domain.CardTypeImages && len(c.Images) > 0:
		return fmt.Sprintf("%d images, first: %s", len(c.Images), c.Images[0].SourceURL)
	}
	return ""
}
