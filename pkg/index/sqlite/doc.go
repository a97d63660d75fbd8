// Package sqlite provides a durable index backed by a SQLite database.
//
// The index is stored in two related tables:
//
//	files(id, name UNIQUE, size)
//	chunk_hashes(file_id -> files.id, idx, hash, PRIMARY KEY(file_id, idx))
//
// The primary key on (file_id, idx) guarantees that no chunk position is
// duplicated; records are always rewritten as a whole in a single immediate
// transaction, so that no position may be missing either.
//
// The database is accessed through a zombiezen.com/go/sqlite connection pool.
// Every connection is prepared with WAL journaling, a busy timeout and foreign
// keys enforcement.
package sqlite
