package sqlite

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT    NOT NULL UNIQUE,
	size INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunk_hashes (
	file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	idx     INTEGER NOT NULL,
	hash    BLOB    NOT NULL,
	PRIMARY KEY (file_id, idx)
);

CREATE INDEX IF NOT EXISTS chunk_hashes_by_hash ON chunk_hashes(hash);
`

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=ON",
	"PRAGMA temp_store=MEMORY",
}

const (
	queryFindFile   = `SELECT id, size FROM files WHERE name = ?`
	queryFindHashes = `SELECT idx, hash FROM chunk_hashes WHERE file_id = ? ORDER BY idx`
	queryList       = `SELECT name, size FROM files ORDER BY name`
	queryRefs       = `SELECT COUNT(DISTINCT file_id) FROM chunk_hashes WHERE hash = ?`

	stmtInsertFile   = `INSERT INTO files (name, size) VALUES (?, ?)`
	stmtInsertHash   = `INSERT INTO chunk_hashes (file_id, idx, hash) VALUES (?, ?, ?)`
	stmtDeleteFile   = `DELETE FROM files WHERE name = ?`
	stmtDeleteHashes = `DELETE FROM chunk_hashes WHERE file_id IN (SELECT id FROM files WHERE name = ?)`
)
