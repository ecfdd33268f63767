package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkID(t *testing.T) {
	assert.Equal(t, "rapor.pdf_0", ChunkID("rapor.pdf", 0))
	assert.Equal(t, "İK El Kitabı.pdf_12", ChunkID("İK El Kitabı.pdf", 12))
}

// TestSourceType_IsValid tests all valid and invalid source types
func TestSourceType_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		typ      SourceType
		expected bool
	}{
		{"pdf is valid", SourceTypePDF, true},
		{"web is valid", SourceTypeWeb, true},
		{"manual is valid", SourceTypeManual, true},
		{"ocr is valid", SourceTypeOCR, true},
		{"empty is invalid", SourceType(""), false},
		{"docx is invalid", SourceType("docx"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.typ.IsValid())
		})
	}
}

func TestChunkMetadata_JSONRoundTripKeepsExtras(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	meta := ChunkMetadata{
		Source:       "rapor.pdf",
		Type:         SourceTypeOCR,
		ChunkIndex:   3,
		TotalChunks:  7,
		CreatedAt:    created,
		Department:   "insan_kaynaklari",
		OCRProcessed: true,
		PageCount:    12,
		Extra:        map[string]any{"yazar": "Ayşe"},
	}

	data, err := json.Marshal(meta)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "rapor.pdf", raw["source"])
	assert.Equal(t, "ocr", raw["type"])
	assert.Equal(t, "Ayşe", raw["yazar"])

	var decoded ChunkMetadata
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, meta.Source, decoded.Source)
	assert.Equal(t, meta.Type, decoded.Type)
	assert.Equal(t, 3, decoded.ChunkIndex)
	assert.Equal(t, 7, decoded.TotalChunks)
	assert.True(t, created.Equal(decoded.CreatedAt))
	assert.Equal(t, "insan_kaynaklari", decoded.Department)
	assert.True(t, decoded.OCRProcessed)
	assert.Equal(t, 12, decoded.PageCount)
	assert.Equal(t, "Ayşe", decoded.Extra["yazar"])
}

func TestChunkMetadata_UnmarshalLenientValues(t *testing.T) {
	input := `{"source":"a.pdf","type":"pdf","chunk_index":"4","total_chunks":9.0,` +
		`"created_at":"2024-05-06T07:08:09.123456","ocr_processed":"true"}`

	var m ChunkMetadata
	require.NoError(t, json.Unmarshal([]byte(input), &m))

	assert.Equal(t, 4, m.ChunkIndex)
	assert.Equal(t, 9, m.TotalChunks)
	assert.True(t, m.OCRProcessed)
	assert.Equal(t, 2024, m.CreatedAt.Year())
	assert.Equal(t, time.May, m.CreatedAt.Month())
	assert.Nil(t, m.Extra)
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   string
		zero bool
	}{
		{"rfc3339", "2024-01-02T03:04:05Z", false},
		{"rfc3339 with offset", "2024-01-02T03:04:05+03:00", false},
		{"iso without zone", "2024-01-02T03:04:05", false},
		{"iso with micros", "2024-01-02T03:04:05.000123", false},
		{"empty", "", true},
		{"garbage", "dün", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.zero, ParseTimestamp(tt.in).IsZero())
		})
	}
}

func TestMetadataFilter_Matches(t *testing.T) {
	meta := ChunkMetadata{Source: "a.pdf", Type: SourceTypePDF, Department: "finans"}

	tests := []struct {
		name     string
		filter   MetadataFilter
		expected bool
	}{
		{"empty filter matches", MetadataFilter{}, true},
		{"source matches", MetadataFilter{Source: "a.pdf"}, true},
		{"source differs", MetadataFilter{Source: "b.pdf"}, false},
		{"type and department match", MetadataFilter{Type: SourceTypePDF, Department: "finans"}, true},
		{"department differs", MetadataFilter{Source: "a.pdf", Department: "hukuk"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.filter.Matches(meta))
		})
	}

	assert.True(t, MetadataFilter{}.IsEmpty())
	assert.False(t, MetadataFilter{Type: SourceTypeWeb}.IsEmpty())
}
