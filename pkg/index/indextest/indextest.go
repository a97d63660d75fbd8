// Package indextest provides a test suite which every index.Index implementation must pass.
package indextest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/oneconcern/cloudstash/internal/rand"
	"github.com/oneconcern/cloudstash/pkg/cafs"
	"github.com/oneconcern/cloudstash/pkg/errors"
	"github.com/oneconcern/cloudstash/pkg/index"
	"github.com/oneconcern/cloudstash/pkg/index/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory builds a fresh, empty index for a test. The suite closes it.
type Factory func(testing.TB) index.Index

// Run the conformance suite against indexes built by factory
func Run(t *testing.T, factory Factory) {
	for _, tc := range []struct {
		name string
		test func(*testing.T, index.Index)
	}{
		{name: "save then find", test: testSaveFind},
		{name: "chunk layout", test: testChunkLayout},
		{name: "empty file", test: testEmptyFile},
		{name: "empty name", test: testEmptyName},
		{name: "not found", test: testNotFound},
		{name: "clean", test: testClean},
		{name: "clean unknown", test: testCleanUnknown},
		{name: "replace", test: testReplace},
		{name: "list", test: testList},
		{name: "duplicate chunks", test: testDuplicateChunks},
		{name: "refs", test: testRefs},
		{name: "concurrent saves", test: testConcurrentSaves},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			idx := factory(t)
			defer func() {
				assert.NoError(t, idx.Close())
			}()
			tc.test(t, idx)
		})
	}
}

func testSaveFind(t *testing.T, idx index.Index) {
	ctx := context.Background()
	data := rand.Bytes(10*cafs.ChunkSize + 17)

	chunks, err := idx.Save(ctx, "f", data)
	require.NoError(t, err)
	require.Len(t, chunks, 11)

	record, err := idx.Find(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, "f", record.Name)
	assert.Equal(t, uint64(len(data)), record.Size)
	assert.Equal(t, cafs.Keys(chunks), record.Keys)
}

func testChunkLayout(t *testing.T, idx index.Index) {
	ctx := context.Background()
	data := rand.Bytes(1025)

	chunks, err := idx.Save(ctx, "f", data)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, cafs.Hash(c.Data[:]), c.Key)
	}
	assert.Equal(t, data[:512], chunks[0].Data[:])
	assert.Equal(t, data[512:1024], chunks[1].Data[:])
	assert.Equal(t, data[1024:], chunks[2].Data[:1])
	assert.Equal(t, make([]byte, 511), chunks[2].Data[1:])

	record, err := idx.Find(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, uint64(1025), record.Size)
	assert.Equal(t, 3, record.Chunks())
}

func testEmptyFile(t *testing.T, idx index.Index) {
	ctx := context.Background()

	chunks, err := idx.Save(ctx, "empty", nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	record, err := idx.Find(ctx, "empty")
	require.NoError(t, err)
	assert.Zero(t, record.Size)
	assert.Empty(t, record.Keys)
}

func testEmptyName(t *testing.T, idx index.Index) {
	_, err := idx.Save(context.Background(), "", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrEmptyName))
}

func testNotFound(t *testing.T, idx index.Index) {
	_, err := idx.Find(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotFound))
}

func testClean(t *testing.T, idx index.Index) {
	ctx := context.Background()

	_, err := idx.Save(ctx, "f", rand.Bytes(700))
	require.NoError(t, err)
	require.NoError(t, idx.Clean(ctx, "f"))

	_, err = idx.Find(ctx, "f")
	assert.True(t, errors.Is(err, status.ErrNotFound))

	entries, err := idx.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func testCleanUnknown(t *testing.T, idx index.Index) {
	assert.NoError(t, idx.Clean(context.Background(), "missing"))
}

func testReplace(t *testing.T, idx index.Index) {
	ctx := context.Background()

	_, err := idx.Save(ctx, "f", rand.Bytes(5*cafs.ChunkSize))
	require.NoError(t, err)

	data := rand.Bytes(cafs.ChunkSize + 3)
	chunks, err := idx.Save(ctx, "f", data)
	require.NoError(t, err)

	record, err := idx.Find(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), record.Size)
	assert.Equal(t, cafs.Keys(chunks), record.Keys)

	entries, err := idx.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func testList(t *testing.T, idx index.Index) {
	ctx := context.Background()

	entries, err := idx.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	for _, name := range []string{"f3", "f1", "f2"} {
		_, err = idx.Save(ctx, name, []byte(name))
		require.NoError(t, err)
	}

	entries, err = idx.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []index.Entry{
		{Name: "f1", Size: 2},
		{Name: "f2", Size: 2},
		{Name: "f3", Size: 2},
	}, entries)
}

func testDuplicateChunks(t *testing.T, idx index.Index) {
	ctx := context.Background()
	data := rand.Repeated(4*cafs.ChunkSize, cafs.ChunkSize)

	_, err := idx.Save(ctx, "f", data)
	require.NoError(t, err)

	record, err := idx.Find(ctx, "f")
	require.NoError(t, err)
	require.Len(t, record.Keys, 4)
	for _, k := range record.Keys[1:] {
		assert.Equal(t, record.Keys[0], k)
	}
	assert.Len(t, cafs.UniqueKeys(record.Keys), 1)
}

func testRefs(t *testing.T, idx index.Index) {
	counter, ok := idx.(index.RefCounter)
	if !ok {
		t.Skip("index does not count references")
	}
	ctx := context.Background()
	shared := rand.Bytes(cafs.ChunkSize)
	sharedKey := cafs.Hash(shared)

	_, err := idx.Save(ctx, "a", append(append([]byte{}, shared...), shared...))
	require.NoError(t, err)
	_, err = idx.Save(ctx, "b", append(append([]byte{}, shared...), rand.Bytes(10)...))
	require.NoError(t, err)

	refs, err := counter.Refs(ctx, sharedKey)
	require.NoError(t, err)
	assert.Equal(t, 2, refs)

	require.NoError(t, idx.Clean(ctx, "a"))
	refs, err = counter.Refs(ctx, sharedKey)
	require.NoError(t, err)
	assert.Equal(t, 1, refs)

	refs, err = counter.Refs(ctx, cafs.Hash([]byte("unknown")))
	require.NoError(t, err)
	assert.Zero(t, refs)
}

func testConcurrentSaves(t *testing.T, idx index.Index) {
	ctx := context.Background()
	const workers = 8

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := idx.Save(ctx, fmt.Sprintf("file-%d", i), rand.Bytes(i*100))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := idx.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, workers)
}
