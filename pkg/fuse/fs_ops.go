package fuse

import (
	"context"
	"time"

	jfuse "github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

func (fs *fsInternal) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	return nil
}

func (fs *fsInternal) GetXattr(ctx context.Context, op *fuseops.GetXattrOp) error {
	// extended attributes are not supported
	return jfuse.ENOATTR
}

func (fs *fsInternal) ListXattr(ctx context.Context, op *fuseops.ListXattrOp) error {
	return nil
}

func (fs *fsInternal) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	// inodes stay allocated for the lifetime of the mount
	return nil
}

// attributesOf resolves the attributes of an inode. Sizes reflect uncommitted writes.
func (fs *fsInternal) attributesOf(ctx context.Context, id fuseops.InodeID) (fuseops.InodeAttributes, error) {
	if id == fuseops.RootInodeID {
		return fs.rootAttributes(), nil
	}

	fs.mu.Lock()
	name, ok := fs.nameOf(id)
	fs.mu.Unlock()
	if !ok {
		return fuseops.InodeAttributes{}, jfuse.ENOENT
	}

	attrs, err := fs.shim.Lookup(ctx, path(name))
	if err != nil {
		return fuseops.InodeAttributes{}, err
	}
	result := fs.fileAttributes(attrs)

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if h := fs.openHandle(id); h != nil && h.dirty {
		result.Size = uint64(len(h.data))
	}
	return result, nil
}

func (fs *fsInternal) childEntry(ctx context.Context, name string) (fuseops.ChildInodeEntry, error) {
	fs.mu.Lock()
	id := fs.inodeOf(name)
	fs.mu.Unlock()

	attrs, err := fs.attributesOf(ctx, id)
	if err != nil {
		return fuseops.ChildInodeEntry{}, err
	}
	expiration := time.Now().Add(cacheDuration)
	return fuseops.ChildInodeEntry{
		Child:                id,
		Attributes:           attrs,
		AttributesExpiration: expiration,
		EntryExpiration:      expiration,
	}, nil
}

func (fs *fsInternal) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	if op.Parent != fuseops.RootInodeID {
		return jfuse.ENOENT
	}
	if _, err = fs.shim.Lookup(ctx, path(op.Name)); err != nil {
		return fs.toErrno(err)
	}
	op.Entry, err = fs.childEntry(ctx, op.Name)
	return fs.toErrno(err)
}

func (fs *fsInternal) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	op.Attributes, err = fs.attributesOf(ctx, op.Inode)
	if err != nil {
		return fs.toErrno(err)
	}
	op.AttributesExpiration = time.Now().Add(cacheDuration)
	return nil
}

func resize(data []byte, size uint64) []byte {
	if size <= uint64(len(data)) {
		return data[:size]
	}
	return append(data, make([]byte, size-uint64(len(data)))...)
}

// SetInodeAttributes supports truncation. Mode and time changes are ignored.
func (fs *fsInternal) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	if op.Inode == fuseops.RootInodeID {
		if op.Size != nil {
			return unix.EISDIR
		}
		op.Attributes = fs.rootAttributes()
		return nil
	}

	if op.Size != nil {
		if err = fs.truncate(ctx, op.Inode, *op.Size); err != nil {
			return fs.toErrno(err)
		}
	}

	op.Attributes, err = fs.attributesOf(ctx, op.Inode)
	if err != nil {
		return fs.toErrno(err)
	}
	op.AttributesExpiration = time.Now().Add(cacheDuration)
	return nil
}

func (fs *fsInternal) truncate(ctx context.Context, id fuseops.InodeID, size uint64) error {
	fs.mu.Lock()
	name, ok := fs.nameOf(id)
	if !ok {
		fs.mu.Unlock()
		return jfuse.ENOENT
	}
	if h := fs.openHandle(id); h != nil {
		h.data = resize(h.data, size)
		h.dirty = true
		fs.mu.Unlock()
		return nil
	}
	fs.mu.Unlock()

	data, err := fs.shim.Read(ctx, path(name))
	if err != nil {
		return err
	}
	return fs.shim.Write(ctx, path(name), resize(data, size))
}

func (fs *fsInternal) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	if op.Inode != fuseops.RootInodeID {
		return unix.ENOTDIR
	}
	return nil
}

func (fs *fsInternal) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	if op.Inode != fuseops.RootInodeID {
		return unix.ENOTDIR
	}

	files, err := fs.shim.List(ctx, "/")
	if err != nil {
		return fs.toErrno(err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	for i := int(op.Offset); i < len(files); i++ {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  fs.inodeOf(files[i].Name),
			Name:   files[i].Name,
			Type:   fuseutil.DT_File,
		})
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (fs *fsInternal) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	return nil
}

// newHandle registers a handle on an inode. Callers must hold fs.mu.
func (fs *fsInternal) newHandle(id fuseops.InodeID, data []byte) fuseops.HandleID {
	hid := fs.nextHandle
	fs.nextHandle++
	fs.handles[hid] = &fileHandle{inode: id, data: data}
	return hid
}

func (fs *fsInternal) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	if op.Parent != fuseops.RootInodeID {
		return jfuse.ENOENT
	}
	if _, err = fs.shim.Lookup(ctx, path(op.Name)); err == nil {
		return jfuse.EEXIST
	}
	if err = fs.shim.Write(ctx, path(op.Name), nil); err != nil {
		return fs.toErrno(err)
	}

	op.Entry, err = fs.childEntry(ctx, op.Name)
	if err != nil {
		return fs.toErrno(err)
	}

	fs.mu.Lock()
	op.Handle = fs.newHandle(op.Entry.Child, nil)
	fs.mu.Unlock()
	return nil
}

func (fs *fsInternal) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	fs.mu.Lock()
	name, ok := fs.nameOf(op.Inode)
	if h := fs.openHandle(op.Inode); ok && h != nil {
		// share the view of uncommitted writes
		op.Handle = fs.newHandle(op.Inode, append([]byte{}, h.data...))
		fs.handles[op.Handle].dirty = h.dirty
		fs.mu.Unlock()
		return nil
	}
	fs.mu.Unlock()
	if !ok {
		return jfuse.ENOENT
	}

	data, err := fs.shim.Read(ctx, path(name))
	if err != nil {
		return fs.toErrno(err)
	}

	fs.mu.Lock()
	op.Handle = fs.newHandle(op.Inode, data)
	fs.mu.Unlock()
	return nil
}

func (fs *fsInternal) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	fs.mu.Lock()
	h, ok := fs.handles[op.Handle]
	if !ok {
		fs.mu.Unlock()
		return unix.EBADF
	}
	if op.Offset < int64(len(h.data)) {
		op.BytesRead = copy(op.Dst, h.data[op.Offset:])
	}
	fs.mu.Unlock()
	return nil
}

func (fs *fsInternal) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	fs.mu.Lock()
	defer fs.mu.Unlock()
	h, ok := fs.handles[op.Handle]
	if !ok {
		return unix.EBADF
	}
	end := uint64(op.Offset) + uint64(len(op.Data))
	if end > uint64(len(h.data)) {
		h.data = resize(h.data, end)
	}
	copy(h.data[op.Offset:], op.Data)
	h.dirty = true
	return nil
}

// commit writes the buffered content of a handle to the stash
func (fs *fsInternal) commit(ctx context.Context, hid fuseops.HandleID) error {
	fs.mu.Lock()
	h, ok := fs.handles[hid]
	if !ok || !h.dirty {
		fs.mu.Unlock()
		return nil
	}
	name, ok := fs.nameOf(h.inode)
	if !ok {
		// unlinked while open
		h.dirty = false
		fs.mu.Unlock()
		return nil
	}
	data := append([]byte{}, h.data...)
	h.dirty = false
	fs.mu.Unlock()

	if err := fs.shim.Write(ctx, path(name), data); err != nil {
		fs.mu.Lock()
		h.dirty = true
		fs.mu.Unlock()
		return err
	}
	fs.l.Debug("committed", zap.String("name", name), zap.Int("size", len(data)))
	return nil
}

func (fs *fsInternal) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	return fs.toErrno(fs.commit(ctx, op.Handle))
}

func (fs *fsInternal) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	return fs.toErrno(fs.commit(ctx, op.Handle))
}

func (fs *fsInternal) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	err = fs.commit(ctx, op.Handle)

	fs.mu.Lock()
	delete(fs.handles, op.Handle)
	fs.mu.Unlock()
	return fs.toErrno(err)
}

func (fs *fsInternal) Unlink(ctx context.Context, op *fuseops.UnlinkOp) (err error) {
	t0 := fs.opStart(op)
	defer func() { fs.opEnd(t0, op, err) }()

	if op.Parent != fuseops.RootInodeID {
		return jfuse.ENOENT
	}
	if err = fs.shim.Unlink(ctx, path(op.Name)); err != nil {
		return fs.toErrno(err)
	}

	fs.mu.Lock()
	fs.forget(op.Name)
	fs.mu.Unlock()
	return nil
}
