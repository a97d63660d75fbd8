package fuse

import (
	"context"
	"testing"

	jfuse "github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/oneconcern/cloudstash/internal/rand"
	"github.com/oneconcern/cloudstash/pkg/core"
	"github.com/oneconcern/cloudstash/pkg/index/memory"
	"github.com/oneconcern/cloudstash/pkg/remote"
	"github.com/oneconcern/cloudstash/pkg/shim"
	"github.com/oneconcern/cloudstash/pkg/storage/localfs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"
)

func setup(t testing.TB) (*fsInternal, *shim.FS) {
	store, err := localfs.New(afero.NewMemMapFs())
	require.NoError(t, err)
	s := shim.New(core.New(memory.New(), remote.New(store)))
	return newInternal(s, Logger(zaptest.NewLogger(t)), Owner(1000, 1000)), s
}

func lookup(t testing.TB, fs *fsInternal, name string) fuseops.ChildInodeEntry {
	op := &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: name}
	require.NoError(t, fs.LookUpInode(context.Background(), op))
	return op.Entry
}

func open(t testing.TB, fs *fsInternal, id fuseops.InodeID) fuseops.HandleID {
	op := &fuseops.OpenFileOp{Inode: id}
	require.NoError(t, fs.OpenFile(context.Background(), op))
	return op.Handle
}

func release(t testing.TB, fs *fsInternal, h fuseops.HandleID) {
	require.NoError(t, fs.ReleaseFileHandle(context.Background(), &fuseops.ReleaseFileHandleOp{Handle: h}))
}

func TestRootAttributes(t *testing.T) {
	fs, _ := setup(t)
	op := &fuseops.GetInodeAttributesOp{Inode: fuseops.RootInodeID}
	require.NoError(t, fs.GetInodeAttributes(context.Background(), op))

	assert.True(t, op.Attributes.Mode.IsDir())
	assert.Equal(t, uint32(1000), op.Attributes.Uid)
}

func TestLookUpInode(t *testing.T) {
	ctx := context.Background()
	fs, s := setup(t)
	require.NoError(t, s.Write(ctx, "/f", rand.Bytes(1025)))

	entry := lookup(t, fs, "f")
	assert.Equal(t, uint64(1025), entry.Attributes.Size)
	assert.Equal(t, shim.FileMode, entry.Attributes.Mode)
	assert.GreaterOrEqual(t, uint64(entry.Child), uint64(firstINode))

	t.Run("stable inode", func(t *testing.T) {
		assert.Equal(t, entry.Child, lookup(t, fs, "f").Child)
	})

	t.Run("missing", func(t *testing.T) {
		err := fs.LookUpInode(ctx, &fuseops.LookUpInodeOp{Parent: fuseops.RootInodeID, Name: "missing"})
		assert.Equal(t, jfuse.ENOENT, err)
	})

	t.Run("nested", func(t *testing.T) {
		err := fs.LookUpInode(ctx, &fuseops.LookUpInodeOp{Parent: entry.Child, Name: "f"})
		assert.Equal(t, jfuse.ENOENT, err)
	})
}

func TestReadDir(t *testing.T) {
	ctx := context.Background()
	fs, s := setup(t)
	for _, name := range []string{"b", "a", "c"} {
		require.NoError(t, s.Write(ctx, "/"+name, []byte(name)))
	}

	require.NoError(t, fs.OpenDir(ctx, &fuseops.OpenDirOp{Inode: fuseops.RootInodeID}))

	op := &fuseops.ReadDirOp{Inode: fuseops.RootInodeID, Dst: make([]byte, 4096)}
	require.NoError(t, fs.ReadDir(ctx, op))
	assert.NotZero(t, op.BytesRead)

	next := &fuseops.ReadDirOp{Inode: fuseops.RootInodeID, Offset: 3, Dst: make([]byte, 4096)}
	require.NoError(t, fs.ReadDir(ctx, next))
	assert.Zero(t, next.BytesRead)

	t.Run("small buffer", func(t *testing.T) {
		op := &fuseops.ReadDirOp{Inode: fuseops.RootInodeID, Dst: make([]byte, 8)}
		require.NoError(t, fs.ReadDir(ctx, op))
		assert.Zero(t, op.BytesRead)
	})

	t.Run("not a directory", func(t *testing.T) {
		entry := lookup(t, fs, "a")
		assert.Equal(t, unix.ENOTDIR, fs.OpenDir(ctx, &fuseops.OpenDirOp{Inode: entry.Child}))
	})
}

func TestReadFile(t *testing.T) {
	ctx := context.Background()
	fs, s := setup(t)
	data := rand.Bytes(3000)
	require.NoError(t, s.Write(ctx, "/f", data))

	entry := lookup(t, fs, "f")
	h := open(t, fs, entry.Child)
	defer release(t, fs, h)

	op := &fuseops.ReadFileOp{Inode: entry.Child, Handle: h, Offset: 1000, Dst: make([]byte, 500)}
	require.NoError(t, fs.ReadFile(ctx, op))
	assert.Equal(t, 500, op.BytesRead)
	assert.Equal(t, data[1000:1500], op.Dst)

	tail := &fuseops.ReadFileOp{Inode: entry.Child, Handle: h, Offset: 2900, Dst: make([]byte, 500)}
	require.NoError(t, fs.ReadFile(ctx, tail))
	assert.Equal(t, 100, tail.BytesRead)

	eof := &fuseops.ReadFileOp{Inode: entry.Child, Handle: h, Offset: 5000, Dst: make([]byte, 500)}
	require.NoError(t, fs.ReadFile(ctx, eof))
	assert.Zero(t, eof.BytesRead)

	assert.Equal(t, unix.EBADF, fs.ReadFile(ctx, &fuseops.ReadFileOp{Handle: 999, Dst: make([]byte, 1)}))
}

func TestCreateWriteRelease(t *testing.T) {
	ctx := context.Background()
	fs, s := setup(t)

	create := &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "new", Mode: 0644}
	require.NoError(t, fs.CreateFile(ctx, create))
	assert.Zero(t, create.Entry.Attributes.Size)

	attrs, err := s.Lookup(ctx, "/new")
	require.NoError(t, err)
	assert.Zero(t, attrs.Size)

	first, second := rand.Bytes(600), rand.Bytes(600)
	require.NoError(t, fs.WriteFile(ctx, &fuseops.WriteFileOp{Inode: create.Entry.Child, Handle: create.Handle, Data: first}))
	require.NoError(t, fs.WriteFile(ctx, &fuseops.WriteFileOp{Inode: create.Entry.Child, Handle: create.Handle, Offset: 600, Data: second}))

	// the size of uncommitted writes is visible
	get := &fuseops.GetInodeAttributesOp{Inode: create.Entry.Child}
	require.NoError(t, fs.GetInodeAttributes(ctx, get))
	assert.Equal(t, uint64(1200), get.Attributes.Size)

	// nothing is stashed before the handle is flushed
	attrs, err = s.Lookup(ctx, "/new")
	require.NoError(t, err)
	assert.Zero(t, attrs.Size)

	release(t, fs, create.Handle)

	content, err := s.Read(ctx, "/new")
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, first...), second...), content)

	t.Run("exists", func(t *testing.T) {
		err := fs.CreateFile(ctx, &fuseops.CreateFileOp{Parent: fuseops.RootInodeID, Name: "new"})
		assert.Equal(t, jfuse.EEXIST, err)
	})
}

func TestOverwriteWithFlush(t *testing.T) {
	ctx := context.Background()
	fs, s := setup(t)
	require.NoError(t, s.Write(ctx, "/f", []byte("hello world")))

	entry := lookup(t, fs, "f")
	h := open(t, fs, entry.Child)
	require.NoError(t, fs.WriteFile(ctx, &fuseops.WriteFileOp{Inode: entry.Child, Handle: h, Data: []byte("HELLO")}))
	require.NoError(t, fs.FlushFile(ctx, &fuseops.FlushFileOp{Inode: entry.Child, Handle: h}))

	content, err := s.Read(ctx, "/f")
	require.NoError(t, err)
	assert.Equal(t, []byte("HELLO world"), content)

	// a second flush without writes is a no-op
	require.NoError(t, fs.SyncFile(ctx, &fuseops.SyncFileOp{Inode: entry.Child, Handle: h}))
	release(t, fs, h)

	assert.Equal(t, unix.EBADF, fs.WriteFile(ctx, &fuseops.WriteFileOp{Handle: h, Data: []byte("x")}))
}

func TestTruncate(t *testing.T) {
	ctx := context.Background()
	fs, s := setup(t)
	require.NoError(t, s.Write(ctx, "/f", []byte("hello world")))
	entry := lookup(t, fs, "f")

	t.Run("closed file", func(t *testing.T) {
		size := uint64(5)
		op := &fuseops.SetInodeAttributesOp{Inode: entry.Child, Size: &size}
		require.NoError(t, fs.SetInodeAttributes(ctx, op))
		assert.Equal(t, size, op.Attributes.Size)

		content, err := s.Read(ctx, "/f")
		require.NoError(t, err)
		assert.Equal(t, []byte("hello"), content)
	})

	t.Run("open file", func(t *testing.T) {
		h := open(t, fs, entry.Child)
		size := uint64(8)
		op := &fuseops.SetInodeAttributesOp{Inode: entry.Child, Size: &size}
		require.NoError(t, fs.SetInodeAttributes(ctx, op))
		assert.Equal(t, size, op.Attributes.Size)
		release(t, fs, h)

		content, err := s.Read(ctx, "/f")
		require.NoError(t, err)
		assert.Equal(t, []byte("hello\x00\x00\x00"), content)
	})

	t.Run("root", func(t *testing.T) {
		size := uint64(0)
		err := fs.SetInodeAttributes(ctx, &fuseops.SetInodeAttributesOp{Inode: fuseops.RootInodeID, Size: &size})
		assert.Equal(t, unix.EISDIR, err)
	})
}

func TestUnlink(t *testing.T) {
	ctx := context.Background()
	fs, s := setup(t)
	require.NoError(t, s.Write(ctx, "/f", rand.Bytes(100)))
	entry := lookup(t, fs, "f")
	h := open(t, fs, entry.Child)
	require.NoError(t, fs.WriteFile(ctx, &fuseops.WriteFileOp{Inode: entry.Child, Handle: h, Data: []byte("x")}))

	require.NoError(t, fs.Unlink(ctx, &fuseops.UnlinkOp{Parent: fuseops.RootInodeID, Name: "f"}))

	// releasing a handle on an unlinked file doesn't resurrect it
	release(t, fs, h)
	_, err := s.Lookup(ctx, "/f")
	assert.Equal(t, unix.ENOENT, err)

	assert.Equal(t, jfuse.ENOENT, fs.Unlink(ctx, &fuseops.UnlinkOp{Parent: fuseops.RootInodeID, Name: "f"}))

	get := &fuseops.GetInodeAttributesOp{Inode: entry.Child}
	assert.Equal(t, jfuse.ENOENT, fs.GetInodeAttributes(ctx, get))
}
