package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Vector is an embedding as it appears in an export bundle.
// Older exporters wrote vectors as arrays of numbers, arrays of numeric
// strings, or null for records without an embedding. All decode to []float32.
type Vector []float32

// UnmarshalJSON accepts numeric arrays, numeric-string arrays and null.
func (v *Vector) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = nil
		return nil
	}

	// A whole vector serialised as a JSON string, e.g. "[0.1, 0.2]".
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode vector: %w", err)
		}
		if s == "" {
			*v = nil
			return nil
		}
		return v.UnmarshalJSON([]byte(s))
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode vector: %w", err)
	}
	out := make([]float32, len(raw))
	for i, elem := range raw {
		f, err := decodeFloat(elem)
		if err != nil {
			return fmt.Errorf("decode vector element %d: %w", i, err)
		}
		out[i] = f
	}
	*v = out
	return nil
}

func decodeFloat(elem json.RawMessage) (float32, error) {
	var f float64
	if err := json.Unmarshal(elem, &f); err == nil {
		return float32(f), nil
	}
	var s string
	if err := json.Unmarshal(elem, &s); err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, err
	}
	return float32(f), nil
}

// CollectionExport is one collection in an export bundle.
// The slices are parallel: element i of each describes the same record.
type CollectionExport struct {
	IDs        []string        `json:"ids"`
	Documents  []string        `json:"documents"`
	Metadatas  []ChunkMetadata `json:"metadatas"`
	Embeddings []Vector        `json:"embeddings"`
	EmbedDim   int             `json:"embed_dim"`

	// Metadata is the collection metadata. Other deployments may store
	// numbers or booleans here, e.g. {"hnsw:M": 16}.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ExportMetadata converts store collection metadata to its bundle form.
func ExportMetadata(m map[string]string) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StoreMetadata returns the collection metadata as strings, the form vector
// stores keep. Numbers and booleans are formatted, nested values are JSON
// encoded and nulls are dropped.
func (c CollectionExport) StoreMetadata() map[string]string {
	if len(c.Metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(c.Metadata))
	for k, v := range c.Metadata {
		switch v := v.(type) {
		case nil:
		case string:
			out[k] = v
		case float64:
			out[k] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			out[k] = strconv.FormatBool(v)
		default:
			data, err := json.Marshal(v)
			if err != nil {
				out[k] = fmt.Sprint(v)
				continue
			}
			out[k] = string(data)
		}
	}
	return out
}

// Len returns the number of records.
func (c CollectionExport) Len() int {
	return len(c.IDs)
}

// Validate checks that the parallel slices line up.
func (c CollectionExport) Validate() error {
	n := len(c.IDs)
	if len(c.Documents) != n || len(c.Metadatas) != n || len(c.Embeddings) != n {
		return fmt.Errorf("%w: ids=%d documents=%d metadatas=%d embeddings=%d",
			ErrInvalidInput, n, len(c.Documents), len(c.Metadatas), len(c.Embeddings))
	}
	return nil
}

// Chunk returns record i as a chunk.
func (c CollectionExport) Chunk(i int) Chunk {
	return Chunk{
		ID:        c.IDs[i],
		Text:      c.Documents[i],
		Embedding: []float32(c.Embeddings[i]),
		Metadata:  c.Metadatas[i],
	}
}

// Append adds a chunk to the export, updating the observed dimension.
func (c *CollectionExport) Append(ch Chunk) {
	c.IDs = append(c.IDs, ch.ID)
	c.Documents = append(c.Documents, ch.Text)
	c.Metadatas = append(c.Metadatas, ch.Metadata)
	c.Embeddings = append(c.Embeddings, Vector(ch.Embedding))
	if c.EmbedDim == 0 && len(ch.Embedding) > 0 {
		c.EmbedDim = len(ch.Embedding)
	}
}

// ExportBundle maps collection names to their exported content.
type ExportBundle map[string]CollectionExport

// ImportReport summarises the import of one collection.
type ImportReport struct {
	Collection string
	Added      int

	// Skipped counts records whose IDs already exist in the target.
	Skipped    int
	ReEmbedded int

	// NoModel counts records that needed re-embedding while no embedding
	// model was configured.
	NoModel   int
	Failed    int
	SourceDim int
	TargetDim int
}

// CollectionInfo describes a collection for listing.
type CollectionInfo struct {
	Name      string
	Count     int
	Dimension int
	Metadata  map[string]string
}
