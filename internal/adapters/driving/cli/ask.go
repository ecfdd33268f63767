package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/bilgi/internal/core/domain"
)

// noInformation is printed when neither documents nor the web yield anything.
const noInformation = "Bilgi bulunamadı."

var (
	askWebMode     string
	askTopK        int
	askCollections []string
	askRemember    bool
	askJSON        bool

	searchTopK        int
	searchCollections []string
	searchJSON        bool

	webMaxResults int
	webJSON       bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the knowledge base",
	Long: `Retrieves the most relevant passages and asks the language model to answer
using only them. The web is consulted when no stored passage is relevant
(--web auto), on every question (--web always) or never (--web never).`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search stored knowledge",
	Long:  `Performs semantic search across the stored collections and prints the best passages.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

var webCmd = &cobra.Command{
	Use:   "web [query]",
	Short: "Search the web",
	Long:  `Consults the configured web search providers and prints their merged results.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runWeb,
}

func init() {
	askCmd.Flags().StringVar(&askWebMode, "web", "", "web search mode: auto, always or never")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "passages to retrieve (0 = configured default)")
	askCmd.Flags().StringSliceVarP(&askCollections, "collection", "c", nil, "collections to search")
	askCmd.Flags().BoolVar(&askRemember, "remember", false, "store the answer as learned knowledge")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")

	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 5, "maximum number of passages")
	searchCmd.Flags().StringSliceVarP(&searchCollections, "collection", "c", nil, "collections to search")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")

	webCmd.Flags().IntVarP(&webMaxResults, "limit", "n", 5, "maximum number of results")
	webCmd.Flags().BoolVar(&webJSON, "json", false, "output results as JSON")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(webCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if answerService == nil {
		return fmt.Errorf("answer service %w", errNotConfigured)
	}
	ctx := commandContext(cmd)

	answer, err := answerService.Answer(ctx, domain.AnswerRequest{
		Question:    args[0],
		Collections: askCollections,
		TopK:        askTopK,
		WebMode:     domain.WebMode(askWebMode),
	})
	if err != nil {
		return fmt.Errorf("answer failed: %w", err)
	}

	if askRemember && !answer.Degraded && len(answer.Sources)+len(answer.WebResults) > 0 {
		if err := answerService.Remember(ctx, args[0], answer.Text); err != nil {
			cmd.PrintErrf("Warning: could not remember answer: %v\n", err)
		}
	}

	if askJSON {
		return printJSON(cmd, answer)
	}

	cmd.Println(answer.Text)
	printCards(cmd, answer.Cards)
	if len(answer.Sources) > 0 || len(answer.WebResults) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for _, s := range answer.Sources {
			cmd.Printf("  - %s (%.2f)\n", sourceLabel(s), s.Score)
		}
		for _, r := range answer.WebResults {
			cmd.Printf("  - %s\n", r.URL)
		}
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	if answerService == nil {
		return fmt.Errorf("answer service %w", errNotConfigured)
	}

	hits, err := answerService.Retrieve(commandContext(cmd), args[0], searchCollections, searchTopK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return printJSON(cmd, hits)
	}
	if len(hits) == 0 {
		cmd.Println(noInformation)
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, h := range hits {
		cmd.Printf("  [%d] %s (%.2f)\n", i+1, sourceLabel(h), h.Score)
		cmd.Printf("      %s\n", snippet(h.Chunk.Text, 200))
		cmd.Println()
	}
	return nil
}

func runWeb(cmd *cobra.Command, args []string) error {
	if webAugmenter == nil {
		return fmt.Errorf("web search %w", errNotConfigured)
	}

	res := webAugmenter.Search(commandContext(cmd), args[0], webMaxResults)
	if webJSON {
		return printJSON(cmd, res)
	}
	if res.IsEmpty() {
		cmd.Println(noInformation)
		return nil
	}

	printCards(cmd, res.Cards)
	for i, r := range res.Results {
		cmd.Printf("  [%d] %s\n", i+1, r.Title)
		if r.Snippet != "" {
			cmd.Printf("      %s\n", r.Snippet)
		}
		cmd.Printf("      %s (%s)\n", r.URL, r.Source)
		cmd.Println()
	}
	return nil
}

func printCards(cmd *cobra.Command, cards []domain.RichCard) {
	for _, c := range cards {
		switch {
		case c.Type == domain.CardTypeWeather && c.Weather != nil:
			w := c.Weather
			cmd.Printf("[Hava durumu] %s: %.0f°C (hissedilen %.0f°C), %s, nem %%%d, rüzgar %.0f km/s\n",
				w.Location, w.TempC, w.FeelsLikeC, w.Description, w.Humidity, w.WindKmph)
		case c.Type == domain.CardTypeImages:
			cmd.Printf("[Görseller] %d görsel\n", len(c.Images))
		}
	}
}

func sourceLabel(h domain.ScoredChunk) string {
	label := h.Chunk.Metadata.Source
	if label == "" {
		label = h.Chunk.ID
	}
	return fmt.Sprintf("%s #%d [%s]", label, h.Chunk.Metadata.ChunkIndex, h.Collection)
}

// snippet flattens whitespace and cuts text to at most n runes.
func snippet(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
