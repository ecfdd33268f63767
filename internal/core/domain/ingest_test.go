package domain

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectSourceType(t *testing.T) {
	assert.Equal(t, SourceTypePDF, DetectSourceType("/belgeler/Rapor.PDF"))
	assert.Equal(t, SourceTypeManual, DetectSourceType("notlar.md"))
	assert.Equal(t, SourceTypeManual, DetectSourceType("notlar.txt"))
	assert.Equal(t, SourceTypeWeb, DetectSourceType("duyuru.HTML"))
	assert.Equal(t, SourceType(""), DetectSourceType("tablo.xlsx"))
}

func TestSourceIDFromPath(t *testing.T) {
	assert.Equal(t, "rapor.pdf", SourceIDFromPath("/data/docs/rapor.pdf"))
}

func TestSourceIDUnder(t *testing.T) {
	root := filepath.Join("srv", "belgeler")
	tests := []struct {
		name     string
		root     string
		path     string
		expected string
	}{
		{"top level file", root, filepath.Join(root, "izin.pdf"), "izin.pdf"},
		{"nested file", root, filepath.Join(root, "ik", "politika.txt"), "ik/politika.txt"},
		{"sibling with same name", root, filepath.Join(root, "finans", "politika.txt"), "finans/politika.txt"},
		{"outside root", root, filepath.Join("tmp", "politika.txt"), "politika.txt"},
		{"no root", "", filepath.Join(root, "ik", "politika.txt"), "politika.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SourceIDUnder(tt.root, tt.path))
		})
	}
}

func TestIngestState_IsTerminal(t *testing.T) {
	assert.True(t, IngestStatePersisted.IsTerminal())
	assert.True(t, IngestStateSkipped.IsTerminal())
	assert.True(t, IngestStateFailed.IsTerminal())
	assert.False(t, IngestStateEmbedding.IsTerminal())
	assert.False(t, IngestStateDiscovered.IsTerminal())
}

func TestIngestSummary_Add(t *testing.T) {
	var s IngestSummary
	s.Add(IngestReport{State: IngestStatePersisted, Images: 3, Chunks: 10})
	s.Add(IngestReport{State: IngestStatePersisted, Images: 1, Chunks: 2})
	s.Add(IngestReport{State: IngestStateSkipped})
	s.Add(IngestReport{State: IngestStateFailed})

	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 4, s.Images)
	assert.Equal(t, 12, s.Chunks)
	assert.Len(t, s.Reports, 4)
}
