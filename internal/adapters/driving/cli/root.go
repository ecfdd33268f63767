// Package cli is the bilgi command line interface.
package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
	"github.com/custodia-labs/bilgi/internal/core/ports/driving"
	"github.com/custodia-labs/bilgi/internal/logger"
)

// version is set at build time.
var version = "dev"

var verbose bool

// StoreOpener opens a vector store described by settings. Used by sync copy
// to read from a second deployment.
type StoreOpener func(ctx context.Context, settings domain.StoreSettings) (driven.VectorStore, error)

// Services holds the services the commands run against.
type Services struct {
	Settings     driving.SettingsService
	Ingest       driving.IngestService
	Answer       driving.AnswerService
	Web          driving.WebAugmenter
	Synchronizer driving.CollectionSynchronizer
	Copier       Copier
	OpenStore    StoreOpener
}

// Copier copies collections from another store into the local one.
type Copier interface {
	Copy(ctx context.Context, from driven.VectorStore, collections []string) ([]domain.ImportReport, error)
}

var (
	settingsService driving.SettingsService
	ingestService   driving.IngestService
	answerService   driving.AnswerService
	webAugmenter    driving.WebAugmenter
	synchronizer    driving.CollectionSynchronizer
	copier          Copier
	openStore       StoreOpener
)

var rootCmd = &cobra.Command{
	Use:   "bilgi",
	Short: "Company knowledge base",
	Long: `bilgi ingests company documents into a vector store and answers
questions grounded on them, consulting the web when local knowledge is missing.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print debug output")
}

// SetServices wires the services used by the commands.
func SetServices(s *Services) {
	settingsService = s.Settings
	ingestService = s.Ingest
	answerService = s.Answer
	webAugmenter = s.Web
	synchronizer = s.Synchronizer
	copier = s.Copier
	openStore = s.OpenStore
}

// SetVersion sets the version printed by the version command.
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

var errNotConfigured = errors.New("not configured")
