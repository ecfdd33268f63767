package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/custodia-labs/bilgi/internal/adapters/driven/storage/similarity"
	"github.com/custodia-labs/bilgi/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/bilgi/internal/core/domain"
	"github.com/custodia-labs/bilgi/internal/core/ports/driven"
)

// DatabaseFile is the file name of the database inside the data directory.
const DatabaseFile = "vectors.db"

// Ensure Store implements the interfaces.
var (
	_ driven.VectorStore = (*Store)(nil)
	_ driven.Collection  = (*collection)(nil)
)

// Store is a SQLite-backed vector store.
type Store struct {
	db   *sql.DB
	path string

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// NewStore creates a new SQLite store in the specified data directory.
// If dataDir is empty, defaults to ~/.bilgi/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".bilgi", "data")
	}

	return Open(filepath.Join(dataDir, DatabaseFile))
}

// Open opens or creates the database file at dbPath, creating its directory.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{
		db:    db,
		path:  dbPath,
		locks: make(map[string]*sync.RWMutex),
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending up migrations and records their versions.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := s.applyMigration(version, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}

	return nil
}

func (s *Store) applyMigration(version int, content string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(content); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return err
	}
	return tx.Commit()
}

// lockFor returns the write lock shared by every handle on a collection.
func (s *Store) lockFor(name string) *sync.RWMutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[name] = l
	}
	return l
}

// ListCollections returns collection names in sorted order.
func (s *Store) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning collection: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// GetOrCreateCollection opens a collection, creating it when missing.
func (s *Store) GetOrCreateCollection(
	ctx context.Context, name string, metadata map[string]string,
) (driven.Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: collection name is required", domain.ErrInvalidInput)
	}
	if metadata == nil {
		metadata = map[string]string{}
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshalling collection metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO collections (name, metadata) VALUES (?, ?) ON CONFLICT(name) DO NOTHING",
		name, string(metadataJSON))
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}

	var stored string
	if err := s.db.QueryRowContext(ctx,
		"SELECT metadata FROM collections WHERE name = ?", name).Scan(&stored); err != nil {
		return nil, fmt.Errorf("loading collection %s: %w", name, err)
	}

	meta := map[string]string{}
	if stored != "" && stored != jsonNull {
		if err := json.Unmarshal([]byte(stored), &meta); err != nil {
			return nil, fmt.Errorf("unmarshalling collection metadata: %w", err)
		}
	}

	return &collection{
		store:    s,
		name:     name,
		metadata: meta,
		lock:     s.lockFor(name),
	}, nil
}

// DeleteCollection removes a collection and its chunks.
func (s *Store) DeleteCollection(ctx context.Context, name string) error {
	lock := s.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE collection = ?", name); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// jsonNull is the JSON representation of null.
const jsonNull = "null"

// ==================== Collection ====================

type collection struct {
	store    *Store
	name     string
	metadata map[string]string
	lock     *sync.RWMutex
}

func (c *collection) Name() string { return c.name }

func (c *collection) Metadata() map[string]string { return maps.Clone(c.metadata) }

// Upsert inserts chunks whose IDs are not yet present, in one transaction.
func (c *collection) Upsert(ctx context.Context, chunks []domain.Chunk) (domain.UpsertResult, error) {
	var result domain.UpsertResult
	if len(chunks) == 0 {
		return result, nil
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	dim, err := sampleDimension(ctx, tx, c.name)
	if err != nil {
		return result, err
	}

	exists, err := tx.PrepareContext(ctx, "SELECT 1 FROM chunks WHERE collection = ? AND id = ?")
	if err != nil {
		return result, fmt.Errorf("preparing statement: %w", err)
	}
	defer exists.Close()

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (collection, id, text, source, metadata, embedding, dim)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return result, fmt.Errorf("preparing statement: %w", err)
	}
	defer insert.Close()

	for _, ch := range chunks {
		if ch.ID == "" {
			return domain.UpsertResult{}, fmt.Errorf("%w: chunk id is required", domain.ErrInvalidInput)
		}

		var one int
		err := exists.QueryRowContext(ctx, c.name, ch.ID).Scan(&one)
		if err == nil {
			result.Skipped++
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return domain.UpsertResult{}, fmt.Errorf("checking chunk %s: %w", ch.ID, err)
		}

		if len(ch.Embedding) == 0 {
			return domain.UpsertResult{}, fmt.Errorf("chunk %s: %w", ch.ID, domain.ErrEmptyEmbedding)
		}
		if dim == 0 {
			dim = len(ch.Embedding)
		} else if len(ch.Embedding) != dim {
			return domain.UpsertResult{}, fmt.Errorf("chunk %s has %d dimensions, collection %s has %d: %w",
				ch.ID, len(ch.Embedding), c.name, dim, domain.ErrDimensionMismatch)
		}

		metadataJSON, err := json.Marshal(ch.Metadata)
		if err != nil {
			return domain.UpsertResult{}, fmt.Errorf("marshalling chunk metadata: %w", err)
		}

		if _, err := insert.ExecContext(ctx, c.name, ch.ID, ch.Text, ch.Metadata.Source,
			string(metadataJSON), float32SliceToBytes(ch.Embedding), len(ch.Embedding)); err != nil {
			return domain.UpsertResult{}, fmt.Errorf("saving chunk %s: %w", ch.ID, err)
		}
		result.Inserted++
	}

	if err := tx.Commit(); err != nil {
		return domain.UpsertResult{}, fmt.Errorf("committing transaction: %w", err)
	}
	return result, nil
}

// Get returns chunks selected by ID and metadata, ordered by ID.
func (c *collection) Get(ctx context.Context, q domain.GetQuery) ([]domain.Chunk, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	cols := "id, text, metadata"
	if q.IncludeEmbeddings {
		cols += ", embedding"
	}

	where := []string{"collection = ?"}
	args := []any{c.name}

	if len(q.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(q.IDs))+")")
		for _, id := range q.IDs {
			args = append(args, id)
		}
	}
	if q.Where.Source != "" {
		where = append(where, "source = ?")
		args = append(args, q.Where.Source)
	}
	if q.Where.Type != "" {
		where = append(where, "json_extract(metadata, '$.type') = ?")
		args = append(args, string(q.Where.Type))
	}
	if q.Where.Department != "" {
		where = append(where, "json_extract(metadata, '$.department') = ?")
		args = append(args, q.Where.Department)
	}

	limit := -1
	if q.Limit > 0 {
		limit = q.Limit
	}
	offset := 0
	if q.Offset > 0 {
		offset = q.Offset
	}
	args = append(args, limit, offset)

	query := "SELECT " + cols + " FROM chunks WHERE " + strings.Join(where, " AND ") +
		" ORDER BY id LIMIT ? OFFSET ?"

	rows, err := c.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	chunks := []domain.Chunk{}
	for rows.Next() {
		ch, err := scanChunk(rows, q.IncludeEmbeddings)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *ch)
	}
	return chunks, rows.Err()
}

// Delete removes chunks by ID.
func (c *collection) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	tx, err := c.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM chunks WHERE collection = ? AND id = ?")
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, c.name, id); err != nil {
			return fmt.Errorf("deleting chunk %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Query scans every vector in the collection and returns the k most similar.
func (c *collection) Query(ctx context.Context, embedding []float32, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		return nil, nil
	}

	c.lock.RLock()
	defer c.lock.RUnlock()

	rows, err := c.store.db.QueryContext(ctx,
		"SELECT id, embedding FROM chunks WHERE collection = ?", c.name)
	if err != nil {
		return nil, fmt.Errorf("scanning vectors: %w", err)
	}
	defer rows.Close()

	var ids []string
	top := similarity.NewTopK(k)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning vector: %w", err)
		}
		vec := bytesToFloat32Slice(blob)
		if len(vec) != len(embedding) {
			return nil, fmt.Errorf("query has %d dimensions, collection %s has %d: %w",
				len(embedding), c.name, len(vec), domain.ErrDimensionMismatch)
		}
		top.Offer(len(ids), similarity.Cosine(embedding, vec))
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Release the read cursor before fetching hit rows.
	rows.Close()

	hits := top.Results()
	if len(hits) == 0 {
		return nil, nil
	}

	hitIDs := make([]string, len(hits))
	for i, h := range hits {
		hitIDs[i] = ids[h.Index]
	}
	byID, err := c.loadChunks(ctx, hitIDs)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ScoredChunk, 0, len(hits))
	for i, h := range hits {
		ch, ok := byID[hitIDs[i]]
		if !ok {
			continue
		}
		out = append(out, domain.ScoredChunk{Chunk: ch, Collection: c.name, Score: h.Score})
	}
	return out, nil
}

func (c *collection) loadChunks(ctx context.Context, ids []string) (map[string]domain.Chunk, error) {
	args := make([]any, 0, len(ids)+1)
	args = append(args, c.name)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := c.store.db.QueryContext(ctx,
		"SELECT id, text, metadata FROM chunks WHERE collection = ? AND id IN ("+placeholders(len(ids))+")",
		args...)
	if err != nil {
		return nil, fmt.Errorf("loading chunks: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.Chunk, len(ids))
	for rows.Next() {
		ch, err := scanChunk(rows, false)
		if err != nil {
			return nil, err
		}
		out[ch.ID] = *ch
	}
	return out, rows.Err()
}

// Count returns the number of chunks.
func (c *collection) Count(ctx context.Context) (int, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	var n int
	if err := c.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM chunks WHERE collection = ?", c.name).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// Dimension samples the dimensionality from a stored vector.
func (c *collection) Dimension(ctx context.Context) (int, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return sampleDimension(ctx, c.store.db, c.name)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sampleDimension(ctx context.Context, q queryRower, name string) (int, error) {
	var dim int
	err := q.QueryRowContext(ctx, "SELECT dim FROM chunks WHERE collection = ? LIMIT 1", name).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sampling dimension: %w", err)
	}
	return dim, nil
}

// ==================== Helpers ====================

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// scanChunk scans id, text, metadata and optionally embedding.
func scanChunk(rows *sql.Rows, withEmbedding bool) (*domain.Chunk, error) {
	var ch domain.Chunk
	var metadataJSON string
	var blob []byte

	dest := []any{&ch.ID, &ch.Text, &metadataJSON}
	if withEmbedding {
		dest = append(dest, &blob)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	if metadataJSON != "" && metadataJSON != jsonNull {
		if err := json.Unmarshal([]byte(metadataJSON), &ch.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshalling chunk metadata: %w", err)
		}
	}
	if withEmbedding {
		ch.Embedding = bytesToFloat32Slice(blob)
	}
	return &ch, nil
}

// float32SliceToBytes converts []float32 to a little-endian byte slice.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
