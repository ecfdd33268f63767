package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/bilgi/internal/adapters/driven/storage/storagetest"
	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "bilgi-test-*")
	require.NoError(t, err)

	store, err := NewStore(tempDir)
	require.NoError(t, err)
	require.NotNil(t, store)

	cleanup := func() {
		assert.NoError(t, store.Close())
		assert.NoError(t, os.RemoveAll(tempDir))
	}

	return store, cleanup
}

func TestStore_Suite(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) driven.VectorStore {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)
		return store
	})
}

// ==================== Store Creation and Initialization Tests ====================

func TestNewStore_ErrorHandling(t *testing.T) {
	_, err := NewStore("/invalid\x00path")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "creating data directory")
}

func TestNewStore_Success(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	assert.Equal(t, DatabaseFile, filepath.Base(store.Path()))
	assert.FileExists(t, store.Path())
	assert.NoError(t, store.db.Ping())
}

func TestOpen_FilePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eski", "bilgi.db")

	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, path, store.Path())
	assert.FileExists(t, path)
}

func TestNewStore_DirectoryCreation(t *testing.T) {
	tempDir := t.TempDir()

	nestedDir := filepath.Join(tempDir, "nested", "path", "to", "db")
	store, err := NewStore(nestedDir)
	require.NoError(t, err)
	defer store.Close()

	assert.DirExists(t, nestedDir)
}

func TestNewStore_Migrations(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	var version int
	err := store.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	for _, table := range []string{"collections", "chunks"} {
		var exists int
		err := store.db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&exists)
		require.NoError(t, err)
		assert.Equal(t, 1, exists, "table %s should exist", table)
	}
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir)
	require.NoError(t, err)
	c, err := store.GetOrCreateCollection(ctx, domain.CollectionDocuments, nil)
	require.NoError(t, err)
	_, err = c.Upsert(ctx, []domain.Chunk{storagetest.NewChunk("a.pdf", 0, 0.1, 0.2, 0.3)})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Migrations are not re-applied on an existing database.
	store, err = NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	var applied int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 1, applied)

	c, err = store.GetOrCreateCollection(ctx, domain.CollectionDocuments, nil)
	require.NoError(t, err)
	got, err := c.Get(ctx, domain.GetQuery{IncludeEmbeddings: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got[0].Embedding)
}

func TestNewStore_ForeignKeysEnabled(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	var fkEnabled int
	err := store.db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled)
	require.NoError(t, err)
	assert.Equal(t, 1, fkEnabled, "foreign keys should be enabled")
}

func TestStore_Close(t *testing.T) {
	store, _ := setupTestStore(t)

	assert.NoError(t, store.Close())
	assert.Error(t, store.db.Ping())
}

func TestCollection_SharesLockAcrossHandles(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	a, err := store.GetOrCreateCollection(ctx, "docs", nil)
	require.NoError(t, err)
	b, err := store.GetOrCreateCollection(ctx, "docs", nil)
	require.NoError(t, err)

	assert.Same(t, a.(*collection).lock, b.(*collection).lock)
}

func TestCollection_SourceColumnIndexed(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	c, err := store.GetOrCreateCollection(ctx, "docs", nil)
	require.NoError(t, err)
	_, err = c.Upsert(ctx, []domain.Chunk{storagetest.NewChunk("yönetmelik.pdf", 0, 1, 0)})
	require.NoError(t, err)

	var source string
	require.NoError(t, store.db.QueryRow(
		"SELECT source FROM chunks WHERE collection = 'docs'").Scan(&source))
	assert.Equal(t, "yönetmelik.pdf", source)
}

// ==================== Helper Tests ====================

func TestFloat32Conversion(t *testing.T) {
	tests := []struct {
		name  string
		input []float32
	}{
		{"nil", nil},
		{"single", []float32{1.5}},
		{"mixed", []float32{-1, 0, 0.25, 3.4028235e+38}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.input, bytesToFloat32Slice(float32SliceToBytes(tt.input)))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?,?,?", placeholders(3))
}
