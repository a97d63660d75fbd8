package core

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/oneconcern/cloudstash/internal/rand"
	"github.com/oneconcern/cloudstash/pkg/cafs"
	"github.com/oneconcern/cloudstash/pkg/core/status"
	"github.com/oneconcern/cloudstash/pkg/index"
	"github.com/oneconcern/cloudstash/pkg/index/memory"
	"github.com/oneconcern/cloudstash/pkg/index/sqlite"
	indexstatus "github.com/oneconcern/cloudstash/pkg/index/status"
	"github.com/oneconcern/cloudstash/pkg/remote"
	remotestatus "github.com/oneconcern/cloudstash/pkg/remote/status"
	"github.com/oneconcern/cloudstash/pkg/storage"
	"github.com/oneconcern/cloudstash/pkg/storage/localfs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	svc      *Service
	index    index.Index
	store    storage.Store
	provider *recordingProvider
}

// recordingProvider records calls and may fail on selected keys
type recordingProvider struct {
	remote.Provider

	mu          sync.Mutex
	published   []cafs.Key
	received    []cafs.Key
	deleted     []cafs.Key
	failPublish map[cafs.Key]bool
	failDelete  bool
	inflight    int32
	maxInflight int32
}

func (r *recordingProvider) track() func() {
	n := atomic.AddInt32(&r.inflight, 1)
	for {
		peak := atomic.LoadInt32(&r.maxInflight)
		if n <= peak || atomic.CompareAndSwapInt32(&r.maxInflight, peak, n) {
			break
		}
	}
	return func() { atomic.AddInt32(&r.inflight, -1) }
}

func (r *recordingProvider) Publish(ctx context.Context, chunk cafs.Chunk) error {
	defer r.track()()
	r.mu.Lock()
	r.published = append(r.published, chunk.Key)
	fail := r.failPublish[chunk.Key]
	r.mu.Unlock()
	if fail {
		return remotestatus.ErrPublish.Wrap(errors.New("network down"))
	}
	return r.Provider.Publish(ctx, chunk)
}

func (r *recordingProvider) Receive(ctx context.Context, key cafs.Key) (cafs.Block, error) {
	defer r.track()()
	r.mu.Lock()
	r.received = append(r.received, key)
	r.mu.Unlock()
	return r.Provider.Receive(ctx, key)
}

func (r *recordingProvider) Delete(ctx context.Context, keys []cafs.Key) error {
	r.mu.Lock()
	r.deleted = append(r.deleted, keys...)
	fail := r.failDelete
	r.mu.Unlock()
	if fail {
		return remotestatus.ErrDelete.Wrap(errors.New("delete refused"))
	}
	return r.Provider.Delete(ctx, keys)
}

func newFixture(t testing.TB, idx index.Index, opts ...Option) *fixture {
	store, err := localfs.New(afero.NewMemMapFs())
	require.NoError(t, err)

	provider := &recordingProvider{
		Provider:    remote.New(store, remote.VerifyHash(true)),
		failPublish: make(map[cafs.Key]bool),
	}
	if idx == nil {
		idx = memory.New()
	}
	opts = append([]Option{Logger(zaptest.NewLogger(t))}, opts...)

	return &fixture{
		svc:      New(idx, provider, opts...),
		index:    idx,
		store:    store,
		provider: provider,
	}
}

func (f *fixture) remoteKeys(t testing.TB) []string {
	keys, err := f.store.Keys(context.Background())
	require.NoError(t, err)
	return keys
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()

	for _, size := range []int{0, 1, cafs.ChunkSize - 1, cafs.ChunkSize, cafs.ChunkSize + 1, 1025, 100*cafs.ChunkSize + 7} {
		f := newFixture(t, nil)
		data := rand.Bytes(size)

		require.NoError(t, f.svc.Upload(ctx, "file", data))

		var buf bytes.Buffer
		require.NoError(t, f.svc.Download(ctx, "file", &buf))
		assert.Equalf(t, size, buf.Len(), "size %d", size)
		assert.Truef(t, bytes.Equal(data, buf.Bytes()), "size %d", size)

		record, err := f.svc.Stat(ctx, "file")
		require.NoError(t, err)
		assert.Equal(t, uint64(size), record.Size)
		assert.Len(t, record.Keys, cafs.ChunkCount(uint64(size)))
	}
}

func TestRoundTrip_1025Bytes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	data := rand.Bytes(2*cafs.ChunkSize + 1)

	require.NoError(t, f.svc.Upload(ctx, "f", data))

	chunks := cafs.Split(data)
	require.Len(t, chunks, 3)
	assert.Equal(t, cafs.Keys(chunks), f.provider.published, "chunks are published in index order")

	record, err := f.svc.Stat(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, uint64(1025), record.Size)
	assert.Equal(t, cafs.Keys(chunks), record.Keys)

	// every remote object is a full padded chunk
	for _, c := range chunks {
		b, err := storage.ReadAll(ctx, f.store, c.Key.String(), 2*cafs.ChunkSize)
		require.NoError(t, err)
		assert.Len(t, b, cafs.ChunkSize)
	}

	got, err := f.svc.Read(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestRoundTrip_Sqlite(t *testing.T) {
	ctx := context.Background()
	idx, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	f := newFixture(t, idx)
	data := rand.Bytes(10*cafs.ChunkSize + 3)
	require.NoError(t, f.svc.Upload(ctx, "f", data))

	got, err := f.svc.Read(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestUpload_DuplicateChunksPublishedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	data := rand.Repeated(8*cafs.ChunkSize, cafs.ChunkSize)

	require.NoError(t, f.svc.Upload(ctx, "f", data))
	assert.Len(t, f.provider.published, 1)
	assert.Len(t, f.remoteKeys(t), 1)

	got, err := f.svc.Read(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Len(t, f.provider.received, 1)
}

func TestUpload_SameContentDeduplicates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	data := rand.Bytes(5*cafs.ChunkSize + 20)

	require.NoError(t, f.svc.Upload(ctx, "a", data))
	require.NoError(t, f.svc.Upload(ctx, "b", data))

	a, err := f.svc.Stat(ctx, "a")
	require.NoError(t, err)
	b, err := f.svc.Stat(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, a.Keys, b.Keys)
	assert.Len(t, f.remoteKeys(t), 6)
}

func TestUpload_PartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	data := rand.Bytes(4 * cafs.ChunkSize)
	chunks := cafs.Split(data)
	f.provider.failPublish[chunks[2].Key] = true

	err := f.svc.Upload(ctx, "f", data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrUpload))
	assert.True(t, errors.Is(err, remotestatus.ErrPublish))

	// the record is kept, while a chunk is missing remotely
	record, err := f.svc.Stat(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, cafs.Keys(chunks), record.Keys)

	err = f.svc.Download(ctx, "f", &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrDownload))
	assert.True(t, errors.Is(err, remotestatus.ErrChunkMissing))
}

func TestUpload_EmptyName(t *testing.T) {
	f := newFixture(t, nil)
	err := f.svc.Upload(context.Background(), "", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, indexstatus.ErrEmptyName))
	assert.Empty(t, f.provider.published)
}

func TestDownload_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	err := f.svc.Download(context.Background(), "missing", &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, indexstatus.ErrNotFound))
}

func TestConcurrentTransfers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, ConcurrentTransfers(8))
	data := rand.Bytes(300*cafs.ChunkSize + 11)

	require.NoError(t, f.svc.Upload(ctx, "f", data))
	assert.Len(t, f.provider.published, 301)
	assert.LessOrEqual(t, atomic.LoadInt32(&f.provider.maxInflight), int32(8))

	got, err := f.svc.Read(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, data, got, "bytes are written in index order")
}

func TestSequentialByDefault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	data := rand.Bytes(50 * cafs.ChunkSize)

	require.NoError(t, f.svc.Upload(ctx, "f", data))
	_, err := f.svc.Read(ctx, "f")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.provider.maxInflight))
	assert.Equal(t, cafs.Keys(cafs.Split(data)), f.provider.received)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	data := rand.Bytes(3*cafs.ChunkSize + 1)

	require.NoError(t, f.svc.Upload(ctx, "f", data))
	require.Len(t, f.remoteKeys(t), 4)

	require.NoError(t, f.svc.Remove(ctx, "f"))
	assert.Empty(t, f.remoteKeys(t))

	_, err := f.svc.Stat(ctx, "f")
	assert.True(t, errors.Is(err, indexstatus.ErrNotFound))

	err = f.svc.Remove(ctx, "f")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrRemove))
	assert.True(t, errors.Is(err, indexstatus.ErrNotFound))
}

func TestRemove_SharedChunksAreDeletedByDefault(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	data := rand.Bytes(2 * cafs.ChunkSize)

	require.NoError(t, f.svc.Upload(ctx, "a", data))
	require.NoError(t, f.svc.Upload(ctx, "b", data))
	require.NoError(t, f.svc.Remove(ctx, "a"))

	// b is still recorded, but its chunks are gone
	_, err := f.svc.Stat(ctx, "b")
	require.NoError(t, err)
	_, err = f.svc.Read(ctx, "b")
	require.Error(t, err)
	assert.True(t, errors.Is(err, remotestatus.ErrChunkMissing))
}

func TestRemove_ProtectSharedChunks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, ProtectSharedChunks(true))
	shared := rand.Bytes(cafs.ChunkSize)
	a := append(append([]byte{}, shared...), rand.Bytes(cafs.ChunkSize)...)
	b := append(append([]byte{}, shared...), rand.Bytes(10)...)

	require.NoError(t, f.svc.Upload(ctx, "a", a))
	require.NoError(t, f.svc.Upload(ctx, "b", b))
	require.Len(t, f.remoteKeys(t), 3)

	require.NoError(t, f.svc.Remove(ctx, "a"))
	assert.Len(t, f.remoteKeys(t), 2)
	assert.NotContains(t, f.provider.deleted, cafs.Hash(shared))

	got, err := f.svc.Read(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, b, got)

	require.NoError(t, f.svc.Remove(ctx, "b"))
	assert.Empty(t, f.remoteKeys(t))
}

// plainIndex hides the reference counting capability of an index
type plainIndex struct {
	index.Index
}

func TestProtectSharedChunks_RequiresRefCounter(t *testing.T) {
	f := newFixture(t, plainIndex{Index: memory.New()}, ProtectSharedChunks(true))
	assert.False(t, f.svc.protectShared)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	for _, name := range []string{"f2", "f3", "f1"} {
		require.NoError(t, f.svc.Upload(ctx, name, []byte(name+name)))
	}

	entries, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []index.Entry{
		{Name: "f1", Size: 4},
		{Name: "f2", Size: 4},
		{Name: "f3", Size: 4},
	}, entries)
}

func TestRead_EmptyFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	require.NoError(t, f.svc.Upload(ctx, "empty", nil))

	data, err := f.svc.Read(ctx, "empty")
	require.NoError(t, err)
	assert.NotNil(t, data)
	assert.Empty(t, data)
}

func TestReplace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	require.NoError(t, f.svc.Replace(ctx, "f", rand.Bytes(4*cafs.ChunkSize)))
	data := rand.Bytes(cafs.ChunkSize + 1)
	require.NoError(t, f.svc.Replace(ctx, "f", data))

	got, err := f.svc.Read(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Len(t, f.remoteKeys(t), 2)
}

func TestReplace_DeleteFailureKeepsNewContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.provider.failDelete = true

	require.NoError(t, f.svc.Replace(ctx, "f", rand.Bytes(600)))
	data := rand.Bytes(700)
	require.NoError(t, f.svc.Replace(ctx, "f", data))

	got, err := f.svc.Read(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.NotEmpty(t, f.provider.deleted)

	// plain removal still reports the failure
	err = f.svc.Remove(ctx, "f")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrRemove))
	assert.True(t, errors.Is(err, remotestatus.ErrDelete))

	_, err = f.svc.Stat(ctx, "f")
	assert.True(t, errors.Is(err, indexstatus.ErrNotFound))
}
