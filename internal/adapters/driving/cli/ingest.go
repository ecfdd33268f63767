package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/bilgi/internal/connectors/filesystem"
	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driving"
	"github.com/custodia-labs/bilgi/internal/logger"
)

var (
	ingestForce      bool
	ingestDepartment string
	ingestCollection string
	watchSkipInitial bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Ingest documents into the knowledge base",
	Long: `Extracts, chunks and embeds documents and stores them in a collection.
Directories are searched recursively for PDF, text, Markdown and HTML files.

A document that was already ingested is skipped unless --force is given,
in which case its previous chunks are replaced.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var ingestWatchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest a directory and keep it in sync",
	Long: `Ingests every document under the directory, then watches it.
New files are ingested, changed files re-ingested and deleted files removed
from the collection. Stop with Ctrl+C.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngestWatch,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [source]",
	Short: "Remove a document from the knowledge base",
	Long:  `Deletes every chunk of the source and its manifest, so it is ingested again next time.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	for _, c := range []*cobra.Command{ingestCmd, ingestWatchCmd} {
		c.Flags().StringVarP(&ingestDepartment, "department", "d", "", "department tag for every chunk")
		c.Flags().StringVarP(&ingestCollection, "collection", "c", "", "target collection")
	}
	ingestCmd.Flags().BoolVarP(&ingestForce, "force", "f", false, "re-ingest documents that were already ingested")
	ingestWatchCmd.Flags().BoolVar(&watchSkipInitial, "skip-initial", false, "do not ingest existing files before watching")
	deleteCmd.Flags().StringVarP(&ingestCollection, "collection", "c", "", "collection to delete from")

	ingestCmd.AddCommand(ingestWatchCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(deleteCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return fmt.Errorf("ingest service %w", errNotConfigured)
	}
	ctx := commandContext(cmd)

	files, err := collectPaths(ctx, args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no supported documents found")
	}

	reqs := make([]domain.SourceRequest, len(files))
	for i, f := range files {
		reqs[i] = sourceRequest(f, ingestForce)
	}

	cmd.Printf("Ingesting %d document(s)...\n", len(reqs))
	summary := ingestWithProgress(ctx, cmd, reqs)
	printSummary(cmd, summary)

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d documents failed", summary.Failed, len(reqs))
	}
	return nil
}

// sourceFile is a document to ingest with the source id it is stored under.
type sourceFile struct {
	path string
	id   string
}

// collectPaths expands directories into the supported files they contain.
// Files found in a directory are named relative to it. Two files that would
// share a source id are rejected.
func collectPaths(ctx context.Context, args []string) ([]sourceFile, error) {
	var files []sourceFile
	byID := make(map[string]string)
	for _, arg := range args {
		path := filesystem.ResolvePath(arg)
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", arg, err)
		}

		found := []sourceFile{{path: path, id: domain.SourceIDFromPath(path)}}
		if info.IsDir() {
			paths, err := filesystem.New(path).Discover(ctx)
			if err != nil {
				return nil, err
			}
			found = found[:0]
			for _, p := range paths {
				found = append(found, sourceFile{path: p, id: domain.SourceIDUnder(path, p)})
			}
		} else if domain.DetectSourceType(path) == "" {
			return nil, fmt.Errorf("%s: %w", arg, domain.ErrUnsupportedType)
		}

		for _, f := range found {
			prev, seen := byID[f.id]
			if seen && prev == f.path {
				continue
			}
			if seen {
				return nil, fmt.Errorf("%w: %s and %s are both named %q",
					domain.ErrInvalidInput, prev, f.path, f.id)
			}
			byID[f.id] = f.path
			files = append(files, f)
		}
	}
	return files, nil
}

func sourceRequest(f sourceFile, force bool) domain.SourceRequest {
	return domain.SourceRequest{
		SourceID:   f.id,
		Path:       f.path,
		Department: ingestDepartment,
		Collection: ingestCollection,
		Force:      force,
	}
}

// ingestWithProgress runs the batch while redrawing the in-flight sources on
// a terminal.
func ingestWithProgress(ctx context.Context, cmd *cobra.Command, reqs []domain.SourceRequest) domain.IngestSummary {
	done := make(chan domain.IngestSummary, 1)
	go func() {
		done <- ingestService.IngestAll(ctx, reqs)
	}()

	out := cmd.OutOrStdout()
	if !isTerminal(out) {
		return <-done
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case summary := <-done:
			fmt.Fprint(out, "\r\033[K")
			return summary
		case <-ticker.C:
			fmt.Fprintf(out, "\r\033[K%s", inFlight(ingestService, reqs))
		}
	}
}

func inFlight(svc driving.IngestService, reqs []domain.SourceRequest) string {
	var parts []string
	for _, r := range reqs {
		if st := svc.Status(r.SourceID); st != nil {
			parts = append(parts, fmt.Sprintf("%s: %s", st.SourceID, st.State))
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, "  ")
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func printSummary(cmd *cobra.Command, summary domain.IngestSummary) {
	for _, r := range summary.Reports {
		printReport(cmd, r)
	}
	cmd.Println()
	cmd.Printf("Succeeded: %d  Skipped: %d  Failed: %d  Chunks: %d  Images: %d\n",
		summary.Succeeded, summary.Skipped, summary.Failed, summary.Chunks, summary.Images)
}

func printReport(cmd *cobra.Command, r domain.IngestReport) {
	switch r.State {
	case domain.IngestStatePersisted:
		line := fmt.Sprintf("  ok      %s: %d chunks, %d images, %d pages", r.SourceID, r.Chunks, r.Images, r.Pages)
		if r.OCR {
			line += " (OCR)"
		}
		if r.Superseded > 0 {
			line += fmt.Sprintf(", replaced %d", r.Superseded)
		}
		if r.PageErrors > 0 {
			line += fmt.Sprintf(", %d page errors", r.PageErrors)
		}
		cmd.Println(line)
	case domain.IngestStateSkipped:
		cmd.Printf("  skipped %s: already ingested\n", r.SourceID)
	default:
		cmd.Printf("  failed  %s: %v\n", r.SourceID, r.Err)
	}
}

func runIngestWatch(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return fmt.Errorf("ingest service %w", errNotConfigured)
	}
	ctx := commandContext(cmd)

	conn := filesystem.New(args[0])
	defer conn.Close()
	if err := conn.Validate(ctx); err != nil {
		return err
	}

	if !watchSkipInitial {
		paths, err := conn.Discover(ctx)
		if err != nil {
			return err
		}
		reqs := make([]domain.SourceRequest, len(paths))
		for i, p := range paths {
			reqs[i] = sourceRequest(sourceFile{path: p, id: domain.SourceIDUnder(conn.Root(), p)}, false)
		}
		printSummary(cmd, ingestWithProgress(ctx, cmd, reqs))
	}

	changes, err := conn.Watch(ctx)
	if err != nil {
		return err
	}
	cmd.Printf("Watching %s for changes...\n", conn.Root())

	for change := range changes {
		handleChange(ctx, cmd, conn.Root(), change)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// handleChange applies one watched change under root to the collection.
func handleChange(ctx context.Context, cmd *cobra.Command, root string, change domain.SourceChange) {
	logger.Debug("%s %s", change.Op, change.Path)
	f := sourceFile{path: change.Path, id: domain.SourceIDUnder(root, change.Path)}
	switch change.Op {
	case domain.ChangeDeleted:
		source := f.id
		n, err := ingestService.Delete(ctx, ingestCollection, source)
		if err != nil {
			cmd.Printf("  failed  %s: %v\n", source, err)
			return
		}
		cmd.Printf("  removed %s: %d chunks\n", source, n)
	default:
		printReport(cmd, ingestService.Ingest(ctx, sourceRequest(f, change.Op == domain.ChangeModified)))
	}
}

func runDelete(cmd *cobra.Command, args []string) error {
	if ingestService == nil {
		return fmt.Errorf("ingest service %w", errNotConfigured)
	}

	n, err := ingestService.Delete(commandContext(cmd), ingestCollection, args[0])
	if err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	if n == 0 {
		cmd.Printf("No chunks found for %s.\n", args[0])
		return nil
	}
	cmd.Printf("Deleted %d chunks of %s.\n", n, args[0])
	return nil
}
