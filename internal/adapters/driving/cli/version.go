package cli

import (
	"github.com/spf13/cobra"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/extractors/pdf"
)

// Tool checks, replaced in tests.
var (
	checkPDFTools = pdf.CheckAvailable
	checkOCRTools = pdf.CheckOCRAvailable
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and configured backends",
	Long: `Prints the version, the configured vector store and models, and whether
the PDF and OCR command line tools are installed.`,
	Args: cobra.NoArgs,
	Run:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, _ []string) {
	cmd.Printf("bilgi version %s\n", version)

	if settingsService != nil {
		if s, err := settingsService.Get(); err == nil {
			cmd.Printf("  store:      %s\n", storeLabel(s.Store))
			cmd.Printf("  embedding:  %s\n", modelLabel(s.Embedding.Provider, s.Embedding.Model, s.Embedding.IsConfigured()))
			cmd.Printf("  llm:        %s\n", modelLabel(s.LLM.Provider, s.LLM.Model, s.LLM.IsConfigured()))
		}
	}
	cmd.Printf("  pdf tools:  %s\n", toolStatus(checkPDFTools()))
	cmd.Printf("  ocr tools:  %s\n", toolStatus(checkOCRTools()))
}

func storeLabel(s domain.StoreSettings) string {
	switch s.Backend {
	case domain.StoreBackendQdrant:
		return "qdrant " + s.URL
	case domain.StoreBackendMemory:
		return "memory"
	default:
		if s.Path == "" {
			return "sqlite (default path)"
		}
		return "sqlite " + s.Path
	}
}

func modelLabel(provider domain.AIProvider, model string, configured bool) string {
	if !configured {
		return "not configured"
	}
	if model == "" {
		return string(provider)
	}
	return string(provider) + " " + model
}

func toolStatus(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}
