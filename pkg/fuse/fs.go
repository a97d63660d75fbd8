// Package fuse exposes a cloudstash file system to the kernel through FUSE.
//
// The mounted tree is flat: every stashed file appears under the mount root.
// Files are read and written as a whole; writes are buffered per open handle
// and committed to the stash when the handle is flushed or released.
package fuse

import (
	"context"
	"os"
	"time"

	jfuse "github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/oneconcern/cloudstash/pkg/fuse/status"
	"github.com/oneconcern/cloudstash/pkg/shim"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	cacheDuration                 = time.Second
	dirLinkCount  uint32          = 2
	fileLinkCount uint32          = 1
	firstINode    fuseops.InodeID = fuseops.RootInodeID + 1
	dirMode                       = 0777 | os.ModeDir
	subType                       = "cloudstash"
)

// MountableFS knows how to mount and unmount a file system
type MountableFS interface {
	Mount(string, ...MountOption) error
	Unmount(string) error
}

var _ MountableFS = &FS{}

// FS is the virtual file system mounted on top of a stash
type FS struct {
	mfs        *jfuse.MountedFileSystem
	fsInternal *fsInternal
	server     jfuse.Server
}

// New builds a mountable file system over the shim
func New(s *shim.FS, opts ...Option) *FS {
	fs := newInternal(s, opts...)
	return &FS{
		fsInternal: fs,
		server:     fuseutil.NewFileSystemServer(fs),
	}
}

func prepPath(path string) error {
	if err := os.MkdirAll(path, dirMode); err != nil {
		return status.ErrMountPoint.Wrap(err)
	}
	return nil
}

// Mount the file system at path, creating the mount point if needed
func (dfs *FS) Mount(path string, opts ...MountOption) error {
	err := prepPath(path)
	if err != nil {
		return err
	}

	mountCfg := &jfuse.MountConfig{
		Subtype:    subType, // mount appears as "fuse.cloudstash"
		FSName:     subType,
		VolumeName: subType, // NOTE: OSX only option
	}
	for _, apply := range opts {
		apply(mountCfg)
	}

	el, _ := zap.NewStdLogAt(dfs.fsInternal.l.
		With(zap.String("fuse", "mount"), zap.String("mountpoint", path)), zapcore.ErrorLevel)
	dl, _ := zap.NewStdLogAt(dfs.fsInternal.l.
		With(zap.String("fuse-debug", "mount"), zap.String("mountpoint", path)), zapcore.DebugLevel)
	mountCfg.ErrorLogger = el
	mountCfg.DebugLogger = dl

	dfs.mfs, err = jfuse.Mount(path, dfs.server, mountCfg)
	if err == nil {
		dfs.fsInternal.l.Info("mounting", zap.String("mountpoint", path))
	}
	return err
}

// Unmount the file system. Pending writes are committed by the kernel releasing its handles.
func (dfs *FS) Unmount(path string) error {
	dfs.fsInternal.l.Info("unmounting", zap.String("mountpoint", path))
	return jfuse.Unmount(path)
}

// JoinMount blocks until a mounted file system has been unmounted.
// It does not return successfully until all in-flight ops have been responded to.
func (dfs *FS) JoinMount(ctx context.Context) error {
	if dfs.mfs == nil {
		return status.ErrNotMounted
	}
	return dfs.mfs.Join(ctx)
}
