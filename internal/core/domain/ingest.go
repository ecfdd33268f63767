package domain

import (
	"path/filepath"
	"strings"
	"time"
)

// SourceRequest asks the ingestion pipeline to process one document.
type SourceRequest struct {
	// SourceID is the stable identifier of the document, usually its filename.
	SourceID string

	// Path is the file to read. Ignored when Data is set.
	Path string

	// Data is the raw document content.
	Data []byte

	// Type is the kind of source. Detected from the file extension when empty.
	Type SourceType

	// Department tags every chunk produced from this source.
	Department string

	// Collection is the target collection. Defaults to CollectionDocuments.
	Collection string

	// Force re-ingests a source that already has a manifest.
	Force bool
}

// SourceIDFromPath derives a source identifier from a file path.
func SourceIDFromPath(path string) string {
	return filepath.Base(path)
}

// SourceIDUnder derives a source identifier for a file found under root.
// The identifier is the slash-separated path relative to root, so files of
// the same name in sibling directories stay distinct. Files outside root
// fall back to SourceIDFromPath.
func SourceIDUnder(root, path string) string {
	if root == "" {
		return SourceIDFromPath(path)
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return SourceIDFromPath(path)
	}
	return filepath.ToSlash(rel)
}

// DetectSourceType guesses the source type from a file name.
// Returns an empty type for unsupported files.
func DetectSourceType(name string) SourceType {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return SourceTypePDF
	case ".txt", ".md", ".markdown":
		return SourceTypeManual
	case ".html", ".htm":
		return SourceTypeWeb
	default:
		return ""
	}
}

// IngestState is a step in the life of one ingestion.
type IngestState string

// Ingestion states. Skipped and Failed are terminal alongside Persisted.
const (
	IngestStateDiscovered IngestState = "discovered"
	IngestStateExtracting IngestState = "extracting"
	IngestStateChunking   IngestState = "chunking"
	IngestStateEmbedding  IngestState = "embedding"
	IngestStatePersisted  IngestState = "persisted"
	IngestStateSkipped    IngestState = "skipped"
	IngestStateFailed     IngestState = "failed"
)

// IsTerminal returns true when the ingestion has finished.
func (s IngestState) IsTerminal() bool {
	return s == IngestStatePersisted || s == IngestStateSkipped || s == IngestStateFailed
}

// IngestReport is the outcome of ingesting one source.
type IngestReport struct {
	SourceID   string
	Collection string
	State      IngestState
	Chunks     int
	Superseded int
	Images     int
	Pages      int
	PageErrors int
	OCR        bool
	Duration   time.Duration
	Err        error
}

// IngestSummary aggregates reports from a batch ingestion.
type IngestSummary struct {
	Reports   []IngestReport
	Succeeded int
	Skipped   int
	Failed    int
	Images    int
	Chunks    int
}

// Add records a report in the summary.
func (s *IngestSummary) Add(r IngestReport) {
	s.Reports = append(s.Reports, r)
	switch r.State {
	case IngestStatePersisted:
		s.Succeeded++
		s.Images += r.Images
		s.Chunks += r.Chunks
	case IngestStateSkipped:
		s.Skipped++
	case IngestStateFailed:
		s.Failed++
	}
}

// IngestStatus describes an ingestion that is currently running.
type IngestStatus struct {
	SourceID  string
	State     IngestState
	StartedAt time.Time
}

// Document is extracted text ready to be split into chunks.
type Document struct {
	Source     string
	Type       SourceType
	Department string
	Text       string
	PageCount  int
	OCR        bool

	// CreatedAt is stamped once per ingestion run and shared by every chunk.
	CreatedAt time.Time
}

// ChangeOp is the kind of change observed on a watched source.
type ChangeOp string

// Change operations.
const (
	ChangeCreated  ChangeOp = "created"
	ChangeModified ChangeOp = "modified"
	ChangeDeleted  ChangeOp = "deleted"
)

// SourceChange is a change to a source file reported by a connector.
type SourceChange struct {
	Path string
	Op   ChangeOp
}
