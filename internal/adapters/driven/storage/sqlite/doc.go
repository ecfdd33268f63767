// Package sqlite provides the persistent driven.VectorStore backend.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO. Chunks live in a single table keyed by (collection, id);
// vectors are stored as little-endian float32 blobs and searched with an
// exact cosine scan, which is ample for the tens of thousands of chunks a
// company knowledge base holds.
//
// # Schema
//
// The schema is managed through versioned migrations in the migrations/
// directory. Each migration is a pair of .up.sql and .down.sql files and
// applied versions are recorded in schema_migrations.
//
// # Data Location
//
// By default the database is stored at ~/.bilgi/data/vectors.db.
//
// # Thread Safety
//
// Writes to one collection are serialised by a per-collection lock; reads run
// concurrently. SQLite in WAL mode handles cross-process locking.
package sqlite
