package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/services"
)

var (
	exportOutput string

	copyFrom domain.StoreSettings
)

var collectionsCmd = &cobra.Command{
	Use:   "collections",
	Short: "List collections",
	Long:  `Lists the collections in the local vector store with their size and embedding dimension.`,
	Args:  cobra.NoArgs,
	RunE:  runCollections,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Move collections between deployments",
	Long: `Exports collections to a bundle file and imports bundles into the local store.
Imports are additive: records whose IDs already exist are never overwritten.
Records embedded with a model of another dimension are re-embedded locally.`,
}

var syncExportCmd = &cobra.Command{
	Use:   "export [collection...]",
	Short: "Export collections to a bundle",
	Long:  `Writes the named collections, or all of them, to a JSON bundle.`,
	RunE:  runSyncExport,
}

var syncImportCmd = &cobra.Command{
	Use:   "import [bundle]",
	Short: "Import a bundle into the local store",
	Args:  cobra.ExactArgs(1),
	RunE:  runSyncImport,
}

var syncCopyCmd = &cobra.Command{
	Use:   "copy [collection...]",
	Short: "Copy collections from another store",
	Long: `Reads collections directly from another vector store and imports them
into the local one.

Examples:
  bilgi sync copy --from-backend sqlite --from-path /mnt/eski/bilgi.db
  bilgi sync copy --from-backend qdrant --from-url http://10.0.0.5:6333 company_documents`,
	RunE: runSyncCopy,
}

func init() {
	syncExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "bundle file (default stdout)")

	f := syncCopyCmd.Flags()
	f.StringVar((*string)(&copyFrom.Backend), "from-backend", string(domain.StoreBackendSQLite), "source store backend")
	f.StringVar(&copyFrom.Path, "from-path", "", "source SQLite database")
	f.StringVar(&copyFrom.URL, "from-url", "", "source Qdrant URL")
	f.StringVar(&copyFrom.APIKey, "from-api-key", "", "source Qdrant API key")

	syncCmd.AddCommand(syncExportCmd)
	syncCmd.AddCommand(syncImportCmd)
	syncCmd.AddCommand(syncCopyCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(collectionsCmd)
}

func runCollections(cmd *cobra.Command, _ []string) error {
	if synchronizer == nil {
		return fmt.Errorf("synchronizer %w", errNotConfigured)
	}

	infos, err := synchronizer.Collections(commandContext(cmd))
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		cmd.Println("No collections.")
		return nil
	}
	for _, info := range infos {
		cmd.Printf("  %-24s %6d records  dim %d\n", info.Name, info.Count, info.Dimension)
	}
	return nil
}

func runSyncExport(cmd *cobra.Command, args []string) error {
	if synchronizer == nil {
		return fmt.Errorf("synchronizer %w", errNotConfigured)
	}

	bundle, err := synchronizer.Export(commandContext(cmd), args)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	if exportOutput == "" {
		return services.WriteBundle(cmd.OutOrStdout(), bundle)
	}

	f, err := os.Create(exportOutput)
	if err != nil {
		return err
	}
	if err := services.WriteBundle(f, bundle); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	for name, exp := range bundle {
		cmd.PrintErrf("Exported %s: %d records (dim %d)\n", name, exp.Len(), exp.EmbedDim)
	}
	return nil
}

func runSyncImport(cmd *cobra.Command, args []string) error {
	if synchronizer == nil {
		return fmt.Errorf("synchronizer %w", errNotConfigured)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	bundle, err := services.ReadBundle(f)
	if err != nil {
		return fmt.Errorf("read bundle: %w", err)
	}

	reports, err := synchronizer.Import(commandContext(cmd), bundle)
	printImportReports(cmd, reports)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	return nil
}

func runSyncCopy(cmd *cobra.Command, args []string) error {
	if copier == nil || openStore == nil {
		return fmt.Errorf("store copy %w", errNotConfigured)
	}
	if !copyFrom.Backend.IsValid() {
		return fmt.Errorf("%w: store backend %q", domain.ErrUnsupportedType, copyFrom.Backend)
	}
	ctx := commandContext(cmd)

	from, err := openStore(ctx, copyFrom)
	if err != nil {
		return fmt.Errorf("open source store: %w", err)
	}
	defer from.Close()

	reports, err := copier.Copy(ctx, from, args)
	printImportReports(cmd, reports)
	if err != nil {
		return fmt.Errorf("copy failed: %w", err)
	}
	return nil
}

func printImportReports(cmd *cobra.Command, reports []domain.ImportReport) {
	for _, r := range reports {
		cmd.Printf("  %s: added %d, skipped %d, re-embedded %d", r.Collection, r.Added, r.Skipped, r.ReEmbedded)
		if r.NoModel > 0 {
			cmd.Printf(", no embedding model %d", r.NoModel)
		}
		if r.Failed > 0 {
			cmd.Printf(", failed %d", r.Failed)
		}
		if r.SourceDim != r.TargetDim && r.SourceDim > 0 {
			cmd.Printf(" (dim %d -> %d)", r.SourceDim, r.TargetDim)
		}
		cmd.Println()
	}
}
