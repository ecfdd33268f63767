package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SourceType classifies where the text of a chunk came from.
type SourceType string

// Known source types.
const (
	SourceTypePDF    SourceType = "pdf"
	SourceTypeWeb    SourceType = "web"
	SourceTypeManual SourceType = "manual"
	SourceTypeOCR    SourceType = "ocr"
)

// IsValid returns true if the source type is recognised.
func (t SourceType) IsValid() bool {
	switch t {
	case SourceTypePDF, SourceTypeWeb, SourceTypeManual, SourceTypeOCR:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (t SourceType) String() string {
	return string(t)
}

// Well-known collection names.
const (
	// CollectionDocuments holds chunks of ingested company documents.
	CollectionDocuments = "company_documents"

	// CollectionLearned holds question/answer pairs learned from conversations.
	CollectionLearned = "learned_knowledge"

	// CollectionMemory holds long-lived facts about the company.
	CollectionMemory = "company_memory"
)

// Chunk is the unit of retrieval: a span of text with its embedding.
// The ID is stable across ingestions of the same source, see ChunkID.
type Chunk struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  ChunkMetadata
}

// ChunkID returns the identifier of the n-th chunk of a source.
func ChunkID(source string, n int) string {
	return fmt.Sprintf("%s_%d", source, n)
}

// ChunkMetadata is the fixed metadata carried by every chunk.
// Keys not known to this struct are kept in Extra so that records
// imported from other deployments keep everything they arrived with.
type ChunkMetadata struct {
	Source       string
	Type         SourceType
	ChunkIndex   int
	TotalChunks  int
	CreatedAt    time.Time
	Department   string
	OCRProcessed bool
	PageCount    int
	Extra        map[string]any
}

// Metadata keys used on the wire.
const (
	MetaSource       = "source"
	MetaType         = "type"
	MetaChunkIndex   = "chunk_index"
	MetaTotalChunks  = "total_chunks"
	MetaCreatedAt    = "created_at"
	MetaDepartment   = "department"
	MetaOCRProcessed = "ocr_processed"
	MetaPageCount    = "page_count"
)

// ToMap flattens the metadata into the wire representation.
func (m ChunkMetadata) ToMap() map[string]any {
	out := make(map[string]any, len(m.Extra)+8)
	for k, v := range m.Extra {
		out[k] = v
	}
	out[MetaSource] = m.Source
	out[MetaType] = string(m.Type)
	out[MetaChunkIndex] = m.ChunkIndex
	out[MetaTotalChunks] = m.TotalChunks
	if !m.CreatedAt.IsZero() {
		out[MetaCreatedAt] = m.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if m.Department != "" {
		out[MetaDepartment] = m.Department
	}
	if m.OCRProcessed {
		out[MetaOCRProcessed] = true
	}
	if m.PageCount > 0 {
		out[MetaPageCount] = m.PageCount
	}
	return out
}

// MetadataFromMap builds metadata from its wire representation.
// Values of the wrong type are ignored rather than rejected.
func MetadataFromMap(raw map[string]any) ChunkMetadata {
	var m ChunkMetadata
	for k, v := range raw {
		switch k {
		case MetaSource:
			m.Source = asString(v)
		case MetaType:
			m.Type = SourceType(asString(v))
		case MetaChunkIndex:
			m.ChunkIndex = asInt(v)
		case MetaTotalChunks:
			m.TotalChunks = asInt(v)
		case MetaCreatedAt:
			m.CreatedAt = ParseTimestamp(asString(v))
		case MetaDepartment:
			m.Department = asString(v)
		case MetaOCRProcessed:
			m.OCRProcessed = asBool(v)
		case MetaPageCount:
			m.PageCount = asInt(v)
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[k] = v
		}
	}
	return m
}

// MarshalJSON encodes the metadata as a flat JSON object.
func (m ChunkMetadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.ToMap())
}

// UnmarshalJSON decodes a flat JSON object, keeping unknown keys in Extra.
func (m *ChunkMetadata) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = ChunkMetadata{}
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode chunk metadata: %w", err)
	}
	*m = MetadataFromMap(raw)
	return nil
}

// timestampLayouts are tried in order by ParseTimestamp.
// The last two cover ISO timestamps written without a zone.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses an ISO-8601 timestamp, returning the zero time when
// the value cannot be parsed.
func ParseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func asInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case float64:
		return int(x)
	case json.Number:
		n, _ := x.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(x)
		return n
	default:
		return 0
	}
}

func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(x)
		return b
	default:
		return false
	}
}

// MetadataFilter selects chunks by exact metadata match.
// Empty fields match everything.
type MetadataFilter struct {
	Source     string
	Type       SourceType
	Department string
}

// IsEmpty returns true if the filter matches every chunk.
func (f MetadataFilter) IsEmpty() bool {
	return f.Source == "" && f.Type == "" && f.Department == ""
}

// Matches reports whether the metadata satisfies the filter.
func (f MetadataFilter) Matches(m ChunkMetadata) bool {
	if f.Source != "" && f.Source != m.Source {
		return false
	}
	if f.Type != "" && f.Type != m.Type {
		return false
	}
	if f.Department != "" && f.Department != m.Department {
		return false
	}
	return true
}

// GetQuery selects chunks from a collection.
type GetQuery struct {
	// IDs restricts the result to these identifiers. Empty means all.
	IDs []string

	// Where restricts the result by metadata.
	Where MetadataFilter

	// Limit caps the number of results. Zero means no limit.
	Limit int

	// Offset skips this many results, in id order.
	Offset int

	// IncludeEmbeddings loads vectors along with text and metadata.
	IncludeEmbeddings bool
}

// UpsertResult reports what an insert batch did.
type UpsertResult struct {
	Inserted int
	Skipped  int
}

// ScoredChunk is a chunk returned from a similarity query.
type ScoredChunk struct {
	Chunk      Chunk
	Collection string
	Score      float64
}
