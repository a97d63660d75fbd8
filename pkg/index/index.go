// Package index defines the local index of cloudstash: for every file name, the
// logical size of the file and the ordered list of its chunk keys.
//
// The index never talks to the remote blob store: Save returns the chunks it
// recorded and leaves their publication to the caller.
//
// Implementations:
//   - memory: ephemeral, process lifetime
//   - sqlite: durable, relational (files and chunk_hashes tables)
//   - bdgr: durable, badger key-value store
package index

import (
	"context"

	"github.com/oneconcern/cloudstash/pkg/cafs"
	"github.com/oneconcern/cloudstash/pkg/index/status"
)

// Index knows how to record, find and remove file records.
//
// Implementations must satisfy the suite in package indextest.
type Index interface {
	// Save chunks data and records it under name, replacing any existing record.
	// The chunks are returned in index order, for the caller to publish.
	Save(ctx context.Context, name string, data []byte) ([]cafs.Chunk, error)

	// Find returns the record for name, with keys in ascending chunk index order.
	// It fails with status.ErrNotFound when there is no such record.
	Find(ctx context.Context, name string) (Record, error)

	// Clean removes the record for name. It is a no-op when there is no such record.
	Clean(ctx context.Context, name string) error

	// List returns all recorded files, sorted by name.
	List(ctx context.Context) ([]Entry, error)

	Close() error
}

// RefCounter is implemented by indexes able to tell how many records use a chunk key.
type RefCounter interface {
	Refs(ctx context.Context, key cafs.Key) (int, error)
}

// Record describes a file known to the index
type Record struct {
	Name string
	Size uint64
	Keys []cafs.Key
}

// Entry is a listing item
type Entry struct {
	Name string
	Size uint64
}

// NewRecord builds the record for some data, chunked as chunks
func NewRecord(name string, data []byte, chunks []cafs.Chunk) Record {
	return Record{
		Name: name,
		Size: uint64(len(data)),
		Keys: cafs.Keys(chunks),
	}
}

// Entry projects a record as a listing entry
func (r Record) Entry() Entry {
	return Entry{Name: r.Name, Size: r.Size}
}

// Chunks returns the number of chunks of the file
func (r Record) Chunks() int {
	return len(r.Keys)
}

// Uses tells if the record refers to a chunk key
func (r Record) Uses(key cafs.Key) bool {
	for _, k := range r.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// CheckName verifies that a name may be recorded
func CheckName(name string) error {
	if name == "" {
		return status.ErrEmptyName
	}
	return nil
}
