// Package bdgr provides a durable index backed by a badger key-value store.
//
// Keys are laid out as:
//
//	file:<name>              -> 8 bytes big-endian size, then the 32-byte chunk keys in order
//	ref:<chunk key><name>    -> empty, one per distinct chunk of a file
//
// A record is a single value, stored in the value log once large. Reference
// markers are written in batches, so that the number of chunks of a file is not
// bounded by the size of a badger transaction. The value log file size bounds a
// record instead: with the default 1GiB log files, files up to about 16GiB.
//
// Reference markers are added before a record is saved and stale ones are removed
// after it is replaced or cleaned. An interrupted write may leave extra markers,
// never missing ones.
package bdgr

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/oneconcern/cloudstash/pkg/cafs"
	"github.com/oneconcern/cloudstash/pkg/dlogger"
	"github.com/oneconcern/cloudstash/pkg/errors"
	"github.com/oneconcern/cloudstash/pkg/index"
	"github.com/oneconcern/cloudstash/pkg/index/status"
	"go.uber.org/zap"
)

const sizeLen = 8

var (
	filePref = []byte("file:")
	refPref  = []byte("ref:")
)

var (
	_ index.Index      = &Index{}
	_ index.RefCounter = &Index{}
)

// Option for the badger index
type Option func(*Index)

// Logger sets a logger for this index and the underlying badger database
func Logger(l *zap.Logger) Option {
	return func(b *Index) {
		if l != nil {
			b.l = l
		}
	}
}

// InMemory runs the database without touching disk
func InMemory(enabled bool) Option {
	return func(b *Index) {
		b.inMemory = enabled
	}
}

// withTuning adjusts badger options
func withTuning(tune func(badger.Options) badger.Options) Option {
	return func(b *Index) {
		b.tune = tune
	}
}

// Index is a file index persisted in a badger database
type Index struct {
	dir      string
	inMemory bool
	tune     func(badger.Options) badger.Options
	db       *badger.DB
	l        *zap.Logger
	close    sync.Once

	// serializes writers, which span several badger transactions
	mu sync.Mutex
}

// Open a badger index in directory dir. Dir is ignored for an in-memory index.
func Open(dir string, opts ...Option) (*Index, error) {
	b := &Index{
		dir: dir,
		l:   dlogger.MustGetLogger(dlogger.LogLevelInfo),
	}
	for _, apply := range opts {
		apply(b)
	}
	if !b.inMemory && dir == "" {
		return nil, fmt.Errorf("badger index: directory is required")
	}

	options := badger.DefaultOptions(dir).
		WithLogger(badgerLogger{s: b.l.Named("badger").Sugar()}).
		WithLoggingLevel(badger.WARNING)
	if b.inMemory {
		options = options.WithDir("").WithValueDir("").WithInMemory(true)
	}
	if b.tune != nil {
		options = b.tune(options)
	}

	db, err := badger.Open(options)
	if err != nil {
		return nil, status.ErrIndexStorage.Wrap(fmt.Errorf("opening badger at %q: %w", dir, err))
	}
	b.db = db
	b.l = b.l.With(zap.String("index", "badger"), zap.String("dir", dir))
	return b, nil
}

func fileKey(name string) []byte {
	return append(append([]byte{}, filePref...), name...)
}

func refPrefix(key cafs.Key) []byte {
	return append(append([]byte{}, refPref...), key[:]...)
}

func refKey(key cafs.Key, name string) []byte {
	return append(refPrefix(key), name...)
}

func rewriteError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return status.ErrNotFound
	case errors.Is(err, badger.ErrDBClosed):
		return status.ErrClosed
	case errors.Is(err, status.ErrNotFound), errors.Is(err, status.ErrCorruptRecord):
		return err
	default:
		return status.ErrIndexStorage.Wrap(err)
	}
}

func encodeRecord(size uint64, keys []cafs.Key) []byte {
	value := make([]byte, sizeLen, sizeLen+len(keys)*cafs.KeySize)
	binary.BigEndian.PutUint64(value, size)
	for _, k := range keys {
		value = append(value, k[:]...)
	}
	return value
}

func decodeSize(name string, value []byte) (uint64, error) {
	if len(value) < sizeLen {
		return 0, status.ErrCorruptRecord.Wrap(fmt.Errorf("%q: record of %d bytes", name, len(value)))
	}
	return binary.BigEndian.Uint64(value), nil
}

func decodeRecord(name string, value []byte) (index.Record, error) {
	size, err := decodeSize(name, value)
	if err != nil {
		return index.Record{}, err
	}
	packed := value[sizeLen:]
	if len(packed)%cafs.KeySize != 0 {
		return index.Record{}, status.ErrCorruptRecord.Wrap(fmt.Errorf("%q: truncated chunk key", name))
	}
	count := len(packed) / cafs.KeySize
	if count != cafs.ChunkCount(size) {
		return index.Record{}, status.ErrCorruptRecord.Wrap(
			fmt.Errorf("%q: %d chunks recorded for %d bytes", name, count, size))
	}

	record := index.Record{
		Name: name,
		Size: size,
		Keys: make([]cafs.Key, count),
	}
	for i := range record.Keys {
		copy(record.Keys[i][:], packed[i*cafs.KeySize:])
	}
	return record, nil
}

// distinctKeys of a stored record, or none if the name is unknown
func (b *Index) distinctKeys(name string) ([]cafs.Key, bool, error) {
	var (
		keys  []cafs.Key
		found bool
	)
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fileKey(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			if len(val) < sizeLen {
				// a corrupt record may still be replaced or removed
				return nil
			}
			packed := val[sizeLen:]
			for len(packed) >= cafs.KeySize {
				var k cafs.Key
				copy(k[:], packed)
				keys = append(keys, k)
				packed = packed[cafs.KeySize:]
			}
			return nil
		})
	})
	return cafs.UniqueKeys(keys), found, err
}

// writeRefs sets or deletes the reference markers of name in batches
func (b *Index) writeRefs(name string, keys []cafs.Key, del bool) error {
	if len(keys) == 0 {
		return nil
	}
	batch := b.db.NewWriteBatch()
	defer batch.Cancel()

	for _, k := range keys {
		var err error
		if del {
			err = batch.Delete(refKey(k, name))
		} else {
			err = batch.Set(refKey(k, name), []byte{})
		}
		if err != nil {
			return err
		}
	}
	return batch.Flush()
}

// stale keys are in previous but not in current
func stale(previous, current []cafs.Key) []cafs.Key {
	kept := make(map[cafs.Key]struct{}, len(current))
	for _, k := range current {
		kept[k] = struct{}{}
	}
	var result []cafs.Key
	for _, k := range previous {
		if _, ok := kept[k]; !ok {
			result = append(result, k)
		}
	}
	return result
}

func (b *Index) Save(_ context.Context, name string, data []byte) ([]cafs.Chunk, error) {
	if err := index.CheckName(name); err != nil {
		return nil, err
	}
	chunks := cafs.Split(data)
	keys := cafs.Keys(chunks)
	unique := cafs.UniqueKeys(keys)

	b.mu.Lock()
	defer b.mu.Unlock()

	previous, _, err := b.distinctKeys(name)
	if err != nil {
		return nil, rewriteError(err)
	}
	if err = b.writeRefs(name, unique, false); err != nil {
		return nil, rewriteError(err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(fileKey(name), encodeRecord(uint64(len(data)), keys))
	})
	if err != nil {
		return nil, rewriteError(err)
	}
	if err = b.writeRefs(name, stale(previous, unique), true); err != nil {
		return nil, rewriteError(err)
	}

	b.l.Debug("saved", zap.String("name", name), zap.Int("size", len(data)), zap.Int("chunks", len(chunks)))
	return chunks, nil
}

func (b *Index) Find(_ context.Context, name string) (index.Record, error) {
	var record index.Record
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(fileKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			record, err = decodeRecord(name, val)
			return err
		})
	})
	if err != nil {
		return index.Record{}, rewriteError(err)
	}
	return record, nil
}

func (b *Index) Clean(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	previous, found, err := b.distinctKeys(name)
	if err != nil || !found {
		return rewriteError(err)
	}
	if err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(fileKey(name))
	}); err != nil {
		return rewriteError(err)
	}
	return rewriteError(b.writeRefs(name, previous, true))
}

func (b *Index) List(_ context.Context) ([]index.Entry, error) {
	var entries []index.Entry
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = filePref
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			name := string(bytes.TrimPrefix(item.Key(), filePref))
			var size uint64
			if err := item.Value(func(val []byte) error {
				var err error
				size, err = decodeSize(name, val)
				return err
			}); err != nil {
				return err
			}
			entries = append(entries, index.Entry{Name: name, Size: size})
		}
		return nil
	})
	if err != nil {
		return nil, rewriteError(err)
	}
	// keys are iterated in byte order, hence sorted by name
	return entries, nil
}

// Refs counts the files using a chunk key
func (b *Index) Refs(_ context.Context, key cafs.Key) (int, error) {
	var count int
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = refPrefix(key)
		iter := txn.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, rewriteError(err)
	}
	return count, nil
}

// Close the database. It is safe to call Close more than once.
func (b *Index) Close() error {
	var err error
	b.close.Do(func() {
		if b.db != nil {
			err = b.db.Close()
		}
	})
	if err != nil {
		b.l.Error("badger index close error", zap.Error(err))
		return status.ErrIndexStorage.Wrap(err)
	}
	return nil
}

// badgerLogger routes badger logs to zap
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (b badgerLogger) Errorf(f string, v ...interface{})   { b.s.Errorf(f, v...) }
func (b badgerLogger) Warningf(f string, v ...interface{}) { b.s.Warnf(f, v...) }
func (b badgerLogger) Infof(f string, v ...interface{})    { b.s.Infof(f, v...) }
func (b badgerLogger) Debugf(f string, v ...interface{})   { b.s.Debugf(f, v...) }
