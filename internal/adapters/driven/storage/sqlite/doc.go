// Package sqlite provides a unified SQLite-based implementation of the
// persistence ports.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that
// requires no CGO, enabling easy cross-compilation. It implements multiple
// store interfaces through a single database connection:
//
//   - DocumentStore: document records and lifecycle state
//   - ChunkStore: chunk persistence and cosine similarity search
//   - ChatStore: chat sessions and messages
//
// Embeddings are stored as little-endian float32 blobs. SQLite has no vector
// index, so Search loads the document's chunk set and scores it in process.
// The per-document chunk counts this system produces keep that cheap.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql
// files.
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking
// provided by SQLite in WAL mode.
package sqlite
