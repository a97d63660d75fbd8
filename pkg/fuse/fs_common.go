package fuse

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	iradix "github.com/hashicorp/go-immutable-radix"
	jfuse "github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/oneconcern/cloudstash/pkg/convert"
	"github.com/oneconcern/cloudstash/pkg/dlogger"
	"github.com/oneconcern/cloudstash/pkg/errors"
	"github.com/oneconcern/cloudstash/pkg/shim"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// fileHandle buffers the content of an open file until it is committed
type fileHandle struct {
	inode fuseops.InodeID
	data  []byte
	dirty bool
}

type fsInternal struct {
	fuseutil.NotImplementedFileSystem

	shim *shim.FS

	// name -> inode
	names *iradix.Tree

	// inode -> name
	inodes *iradix.Tree

	handles map[fuseops.HandleID]*fileHandle

	mu         sync.Mutex
	nextInode  fuseops.InodeID
	nextHandle fuseops.HandleID

	uid, gid uint32
	l        *zap.Logger
}

func newInternal(s *shim.FS, opts ...Option) *fsInternal {
	fs := &fsInternal{
		shim:       s,
		names:      iradix.New(),
		inodes:     iradix.New(),
		handles:    make(map[fuseops.HandleID]*fileHandle),
		nextInode:  firstINode,
		nextHandle: 1,
		uid:        uint32(os.Getuid()),
		gid:        uint32(os.Getgid()),
		l:          dlogger.MustGetLogger(dlogger.LogLevelInfo),
	}
	for _, apply := range opts {
		apply(fs)
	}
	return fs
}

func formKey(id fuseops.InodeID) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// inodeOf returns the inode allocated to name, allocating one on first sight.
//
// Callers must hold fs.mu.
func (fs *fsInternal) inodeOf(name string) fuseops.InodeID {
	if v, ok := fs.names.Get(convert.UnsafeStringToBytes(name)); ok {
		return v.(fuseops.InodeID)
	}
	id := fs.nextInode
	fs.nextInode++
	fs.names, _, _ = fs.names.Insert([]byte(name), id)
	fs.inodes, _, _ = fs.inodes.Insert(formKey(id), name)
	return id
}

// nameOf resolves an inode to a file name. Callers must hold fs.mu.
func (fs *fsInternal) nameOf(id fuseops.InodeID) (string, bool) {
	v, ok := fs.inodes.Get(formKey(id))
	if !ok {
		return "", false
	}
	return v.(string), true
}

// forget drops the inode of name. Callers must hold fs.mu.
func (fs *fsInternal) forget(name string) {
	v, ok := fs.names.Get(convert.UnsafeStringToBytes(name))
	if !ok {
		return
	}
	fs.names, _, _ = fs.names.Delete(convert.UnsafeStringToBytes(name))
	fs.inodes, _, _ = fs.inodes.Delete(formKey(v.(fuseops.InodeID)))
}

// openHandle returns the most recent open handle on an inode, if any. Callers must hold fs.mu.
func (fs *fsInternal) openHandle(id fuseops.InodeID) *fileHandle {
	var (
		found *fileHandle
		best  fuseops.HandleID
	)
	for hid, h := range fs.handles {
		if h.inode == id && hid >= best {
			found, best = h, hid
		}
	}
	return found
}

func (fs *fsInternal) rootAttributes() fuseops.InodeAttributes {
	now := time.Now()
	return fuseops.InodeAttributes{
		Nlink: dirLinkCount,
		Mode:  dirMode,
		Atime: now,
		Mtime: now,
		Ctime: now,
		Uid:   fs.uid,
		Gid:   fs.gid,
	}
}

func (fs *fsInternal) fileAttributes(attrs shim.Attributes) fuseops.InodeAttributes {
	if attrs.Mtime.IsZero() {
		now := time.Now()
		attrs.Atime, attrs.Mtime, attrs.Ctime = now, now, now
	}
	return fuseops.InodeAttributes{
		Size:  attrs.Size,
		Nlink: fileLinkCount,
		Mode:  attrs.Mode,
		Atime: attrs.Atime,
		Mtime: attrs.Mtime,
		Ctime: attrs.Ctime,
		Uid:   fs.uid,
		Gid:   fs.gid,
	}
}

func path(name string) string {
	return "/" + name
}

// toErrno turns errors into the errno reported to the kernel
func (fs *fsInternal) toErrno(err error) error {
	if err == nil {
		return nil
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		if errno == unix.ENOENT {
			return jfuse.ENOENT
		}
		return errno
	}
	fs.l.Error("file system operation failed", zap.Error(err))
	return jfuse.EIO
}

func (fs *fsInternal) opStart(op interface{}) time.Time {
	logger := fs.l.With(zap.String("Request", fmt.Sprintf("%T", op)))
	switch t := op.(type) {
	case *fuseops.ReadFileOp:
		logger.Debug("Start", zap.Uint64("inode", uint64(t.Inode)), zap.Int("buffer", len(t.Dst)), zap.Int64("offset", t.Offset))
	case *fuseops.WriteFileOp:
		logger.Debug("Start", zap.Uint64("inode", uint64(t.Inode)), zap.Int("size", len(t.Data)), zap.Int64("offset", t.Offset))
	case *fuseops.LookUpInodeOp:
		logger.Debug("Start", zap.Uint64("parent", uint64(t.Parent)), zap.String("child", t.Name))
	case *fuseops.CreateFileOp:
		logger.Debug("Start", zap.Uint64("parent", uint64(t.Parent)), zap.String("child", t.Name))
	case *fuseops.UnlinkOp:
		logger.Debug("Start", zap.Uint64("id", uint64(t.Parent)), zap.String("name", t.Name))
	case *fuseops.ReleaseFileHandleOp:
		logger.Debug("Start", zap.Uint64("hndl", uint64(t.Handle)))
	default:
		logger.Debug("Start", zap.Any("op", op))
	}
	return time.Now()
}

func (fs *fsInternal) opEnd(t0 time.Time, op interface{}, err error) {
	fs.l.Debug("End",
		zap.String("Request", fmt.Sprintf("%T", op)),
		zap.Duration("duration", time.Since(t0)),
		zap.Error(err),
	)
}
