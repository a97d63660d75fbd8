// Package memory provides an ephemeral index, held in memory for the lifetime of the process.
//
// It is meant for tests and for running cloudstash without persistence.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/oneconcern/cloudstash/pkg/cafs"
	"github.com/oneconcern/cloudstash/pkg/index"
	"github.com/oneconcern/cloudstash/pkg/index/status"
)

var (
	_ index.Index      = &Index{}
	_ index.RefCounter = &Index{}
)

// Index is an in-memory map of file records
type Index struct {
	lock    sync.RWMutex
	records map[string]index.Record
}

// New in-memory index
func New() *Index {
	return &Index{
		records: make(map[string]index.Record),
	}
}

func (m *Index) Save(_ context.Context, name string, data []byte) ([]cafs.Chunk, error) {
	if err := index.CheckName(name); err != nil {
		return nil, err
	}
	chunks := cafs.Split(data)

	m.lock.Lock()
	defer m.lock.Unlock()
	m.records[name] = index.NewRecord(name, data, chunks)

	return chunks, nil
}

func (m *Index) Find(_ context.Context, name string) (index.Record, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	r, ok := m.records[name]
	if !ok {
		return index.Record{}, status.ErrNotFound
	}
	keys := make([]cafs.Key, len(r.Keys))
	copy(keys, r.Keys)
	r.Keys = keys
	return r, nil
}

func (m *Index) Clean(_ context.Context, name string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.records, name)
	return nil
}

func (m *Index) List(_ context.Context) ([]index.Entry, error) {
	m.lock.RLock()
	entries := make([]index.Entry, 0, len(m.records))
	for _, r := range m.records {
		entries = append(entries, r.Entry())
	}
	m.lock.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Refs counts the records using a key
func (m *Index) Refs(_ context.Context, key cafs.Key) (int, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	var count int
	for _, r := range m.records {
		if r.Uses(key) {
			count++
		}
	}
	return count, nil
}

func (m *Index) Close() error {
	return nil
}
