package sqlite

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/oneconcern/cloudstash/pkg/cafs"
	"github.com/oneconcern/cloudstash/pkg/dlogger"
	"github.com/oneconcern/cloudstash/pkg/errors"
	"github.com/oneconcern/cloudstash/pkg/index"
	"github.com/oneconcern/cloudstash/pkg/index/status"
	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

const memoryPath = ":memory:"

// memorySeq names in-memory databases, so that each index gets its own
var memorySeq atomic.Uint64

// memoryURI of a private in-memory database shared by the connections of one pool
func memoryURI() string {
	return fmt.Sprintf("file:cloudstash-mem-%d?mode=memory&cache=shared", memorySeq.Add(1))
}

var (
	_ index.Index      = &Index{}
	_ index.RefCounter = &Index{}
)

// Option for the sqlite index
type Option func(*Index)

// Logger sets a logger for this index
func Logger(l *zap.Logger) Option {
	return func(s *Index) {
		if l != nil {
			s.l = l
		}
	}
}

// PoolSize sets the number of connections to the database. It defaults to max(#cpus, 4).
//
// An in-memory database (":memory:") always uses a single connection.
func PoolSize(n int) Option {
	return func(s *Index) {
		if n > 0 {
			s.poolSize = n
		}
	}
}

// Index is a file index persisted in a SQLite database
type Index struct {
	path     string
	poolSize int
	pool     *sqlitex.Pool
	l        *zap.Logger
}

func defaultPoolSize() int {
	if n := runtime.NumCPU(); n > 4 {
		return n
	}
	return 4
}

// Open a sqlite index at path. The database file and its tables are created if they don't exist.
func Open(path string, opts ...Option) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite index: path is required")
	}

	s := &Index{
		path:     path,
		poolSize: defaultPoolSize(),
		l:        dlogger.MustGetLogger(dlogger.LogLevelInfo),
	}
	for _, apply := range opts {
		apply(s)
	}
	uri := path
	if path == memoryPath {
		uri = memoryURI()
		s.poolSize = 1
	}

	pool, err := sqlitex.NewPool(uri, sqlitex.PoolOptions{
		PoolSize:    s.poolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, status.ErrIndexStorage.Wrap(fmt.Errorf("opening %s: %w", path, err))
	}
	s.pool = pool

	if err = s.migrate(); err != nil {
		_ = pool.Close()
		return nil, err
	}

	s.l = s.l.With(zap.String("index", "sqlite"), zap.String("path", path))
	s.l.Debug("sqlite index opened", zap.Int("pool_size", s.poolSize))
	return s, nil
}

func prepareConn(conn *sqlite.Conn) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Index) migrate() error {
	conn, err := s.take(context.Background())
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return status.ErrIndexStorage.Wrap(fmt.Errorf("creating schema: %w", err))
	}
	return nil
}

func (s *Index) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, status.ErrIndexStorage.Wrap(err)
	}
	return conn, nil
}

// update runs fn in an immediate transaction, rolled back whenever fn fails
func (s *Index) update(ctx context.Context, fn func(*sqlite.Conn) error) (err error) {
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return status.ErrIndexStorage.Wrap(err)
	}
	defer endTransaction(&err)

	err = fn(conn)
	return err
}

func (s *Index) view(ctx context.Context, fn func(*sqlite.Conn) error) error {
	conn, err := s.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.Put(conn)

	return fn(conn)
}

func (s *Index) Save(ctx context.Context, name string, data []byte) ([]cafs.Chunk, error) {
	if err := index.CheckName(name); err != nil {
		return nil, err
	}
	chunks := cafs.Split(data)

	err := s.update(ctx, func(conn *sqlite.Conn) error {
		if err := deleteRecord(conn, name); err != nil {
			return err
		}

		if err := sqlitex.Execute(conn, stmtInsertFile, &sqlitex.ExecOptions{
			Args: []any{name, int64(len(data))},
		}); err != nil {
			return status.ErrIndexStorage.Wrap(fmt.Errorf("insert file %q: %w", name, err))
		}
		fileID := conn.LastInsertRowID()

		for i := range chunks {
			if err := sqlitex.Execute(conn, stmtInsertHash, &sqlitex.ExecOptions{
				Args: []any{fileID, chunks[i].Index, chunks[i].Key[:]},
			}); err != nil {
				return status.ErrIndexStorage.Wrap(fmt.Errorf("insert chunk %d of %q: %w", chunks[i].Index, name, err))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.l.Debug("saved", zap.String("name", name), zap.Int("size", len(data)), zap.Int("chunks", len(chunks)))
	return chunks, nil
}

func deleteRecord(conn *sqlite.Conn, name string) error {
	for _, stmt := range []string{stmtDeleteHashes, stmtDeleteFile} {
		if err := sqlitex.Execute(conn, stmt, &sqlitex.ExecOptions{
			Args: []any{name},
		}); err != nil {
			return status.ErrIndexStorage.Wrap(fmt.Errorf("delete %q: %w", name, err))
		}
	}
	return nil
}

func (s *Index) Find(ctx context.Context, name string) (index.Record, error) {
	record := index.Record{Name: name}

	err := s.view(ctx, func(conn *sqlite.Conn) error {
		var (
			fileID int64
			found  bool
		)
		if err := sqlitex.Execute(conn, queryFindFile, &sqlitex.ExecOptions{
			Args: []any{name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = true
				fileID = stmt.ColumnInt64(0)
				record.Size = uint64(stmt.ColumnInt64(1))
				return nil
			},
		}); err != nil {
			return status.ErrIndexStorage.Wrap(fmt.Errorf("find %q: %w", name, err))
		}
		if !found {
			return status.ErrNotFound
		}

		record.Keys = make([]cafs.Key, 0, cafs.ChunkCount(record.Size))
		if err := sqlitex.Execute(conn, queryFindHashes, &sqlitex.ExecOptions{
			Args: []any{fileID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				idx := stmt.ColumnInt(0)
				if idx != len(record.Keys) {
					return status.ErrCorruptRecord.Wrap(fmt.Errorf("%q: expected chunk %d, got %d", name, len(record.Keys), idx))
				}
				var key cafs.Key
				if stmt.ColumnLen(1) != cafs.KeySize {
					return status.ErrCorruptRecord.Wrap(fmt.Errorf("%q: chunk %d has a hash of %d bytes", name, idx, stmt.ColumnLen(1)))
				}
				stmt.ColumnBytes(1, key[:])
				record.Keys = append(record.Keys, key)
				return nil
			},
		}); err != nil {
			if errors.Is(err, status.ErrCorruptRecord) {
				return err
			}
			return status.ErrIndexStorage.Wrap(fmt.Errorf("find chunks of %q: %w", name, err))
		}

		if len(record.Keys) != cafs.ChunkCount(record.Size) {
			return status.ErrCorruptRecord.Wrap(
				fmt.Errorf("%q: %d chunks recorded for %d bytes", name, len(record.Keys), record.Size))
		}
		return nil
	})
	if err != nil {
		return index.Record{}, err
	}
	return record, nil
}

func (s *Index) Clean(ctx context.Context, name string) error {
	return s.update(ctx, func(conn *sqlite.Conn) error {
		return deleteRecord(conn, name)
	})
}

func (s *Index) List(ctx context.Context) ([]index.Entry, error) {
	var entries []index.Entry

	err := s.view(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, queryList, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				entries = append(entries, index.Entry{
					Name: stmt.ColumnText(0),
					Size: uint64(stmt.ColumnInt64(1)),
				})
				return nil
			},
		})
	})
	if err != nil {
		return nil, status.ErrIndexStorage.Wrap(fmt.Errorf("list: %w", err))
	}
	return entries, nil
}

// Refs counts the files using a chunk key
func (s *Index) Refs(ctx context.Context, key cafs.Key) (int, error) {
	var count int

	err := s.view(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, queryRefs, &sqlitex.ExecOptions{
			Args: []any{key[:]},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count = stmt.ColumnInt(0)
				return nil
			},
		})
	})
	if err != nil {
		return 0, status.ErrIndexStorage.Wrap(fmt.Errorf("refs %v: %w", key, err))
	}
	return count, nil
}

// Close the connection pool
func (s *Index) Close() error {
	if err := s.pool.Close(); err != nil {
		s.l.Error("sqlite index close error", zap.Error(err))
		return status.ErrIndexStorage.Wrap(err)
	}
	return nil
}
