package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/services"
)

func testBundle() domain.ExportBundle {
	var exp domain.CollectionExport
	exp.Append(domain.Chunk{
		ID:        "izin.pdf_0",
		Text:      "Yıllık izin 14 gündür.",
		Embedding: []float32{0.1, 0.2, 0.3},
		Metadata:  domain.ChunkMetadata{Source: "izin.pdf", Type: domain.SourceTypePDF},
	})
	return domain.ExportBundle{domain.CollectionDocuments: exp}
}

func TestCollectionsCmd(t *testing.T) {
	t.Run("lists collections", func(t *testing.T) {
		ts := setupTestServices(t)
		ts.syncer.infos = []domain.CollectionInfo{
			{Name: domain.CollectionDocuments, Count: 120, Dimension: 768},
			{Name: domain.CollectionLearned, Count: 4, Dimension: 768},
		}

		out, err := executeCommand(t, "collections")

		require.NoError(t, err)
		assert.Contains(t, out, "  company_documents           120 records  dim 768")
		assert.Contains(t, out, "  learned_knowledge             4 records  dim 768")
	})

	t.Run("empty store", func(t *testing.T) {
		setupTestServices(t)

		out, err := executeCommand(t, "collections")

		require.NoError(t, err)
		assert.Contains(t, out, "No collections.")
	})
}

func TestSyncExportImport(t *testing.T) {
	ts := setupTestServices(t)
	ts.syncer.bundle = testBundle()
	ts.syncer.reports = []domain.ImportReport{
		{Collection: domain.CollectionDocuments, Added: 1, SourceDim: 3, TargetDim: 768, ReEmbedded: 1},
	}
	path := filepath.Join(t.TempDir(), "bundle.json")

	out, err := executeCommand(t, "sync", "export", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported company_documents: 1 records (dim 3)")

	f, err := os.Open(path)
	require.NoError(t, err)
	written, err := services.ReadBundle(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	assert.Equal(t, 1, written[domain.CollectionDocuments].Len())

	out, err = executeCommand(t, "sync", "import", path)
	require.NoError(t, err)
	assert.Contains(t, out, "  company_documents: added 1, skipped 0, re-embedded 1 (dim 3 -> 768)")
	require.Contains(t, ts.syncer.imported, domain.CollectionDocuments)
	assert.Equal(t, "izin.pdf_0", ts.syncer.imported[domain.CollectionDocuments].IDs[0])
}

func TestSyncExport_Stdout(t *testing.T) {
	ts := setupTestServices(t)
	ts.syncer.bundle = testBundle()

	out, err := executeCommand(t, "sync", "export")

	require.NoError(t, err)
	assert.Contains(t, out, `"izin.pdf_0"`)
	assert.Contains(t, out, `"embed_dim":3`)
}

func TestSyncImport_Errors(t *testing.T) {
	setupTestServices(t)
	dir := t.TempDir()

	_, err := executeCommand(t, "sync", "import", filepath.Join(dir, "yok.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))
	_, err = executeCommand(t, "sync", "import", bad)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSyncCopy(t *testing.T) {
	ts := setupTestServices(t)
	ts.copier.reports = []domain.ImportReport{{Collection: domain.CollectionLearned, Added: 2, Skipped: 1, Failed: 1}}

	out, err := executeCommand(t, "sync", "copy", "--from-backend", "memory", domain.CollectionLearned)

	require.NoError(t, err)
	assert.Contains(t, out, "  learned_knowledge: added 2, skipped 1, re-embedded 0, failed 1")
	require.Len(t, ts.opened, 1)
	assert.Equal(t, domain.StoreBackendMemory, ts.opened[0].Backend)
	assert.NotNil(t, ts.copier.from)
	assert.Equal(t, []string{domain.CollectionLearned}, ts.copier.collections)
}

func TestPrintImportReports_NoModel(t *testing.T) {
	cmd, buf := bufferedCommand()

	printImportReports(cmd, []domain.ImportReport{
		{Collection: domain.CollectionDocuments, Skipped: 2, NoModel: 4, SourceDim: 768, TargetDim: 384},
	})

	assert.Equal(t, "  company_documents: added 0, skipped 2, re-embedded 0, no embedding model 4 (dim 768 -> 384)\n", buf.String())
}

func TestSyncCopy_InvalidBackend(t *testing.T) {
	ts := setupTestServices(t)

	_, err := executeCommand(t, "sync", "copy", "--from-backend", "chroma")

	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
	assert.Empty(t, ts.opened)
}
