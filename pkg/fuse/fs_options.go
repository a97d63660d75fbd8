package fuse

import (
	jfuse "github.com/jacobsa/fuse"
	"go.uber.org/zap"
)

// Option for the file system
type Option func(*fsInternal)

// Logger for this file system
func Logger(l *zap.Logger) Option {
	return func(fs *fsInternal) {
		if l != nil {
			fs.l = l
		}
	}
}

// Owner of the files, as reported to the kernel. It defaults to the current user.
func Owner(uid, gid uint32) Option {
	return func(fs *fsInternal) {
		fs.uid = uid
		fs.gid = gid
	}
}

// MountOption enables options when mounting the file system
type MountOption func(*jfuse.MountConfig)

// ReadOnly mounts the file system read-only
func ReadOnly(enabled bool) MountOption {
	return func(cfg *jfuse.MountConfig) {
		cfg.ReadOnly = enabled
	}
}

// AllowOther lets other users access the mount
func AllowOther(enabled bool) MountOption {
	return func(cfg *jfuse.MountConfig) {
		if !enabled {
			return
		}
		if cfg.Options == nil {
			cfg.Options = make(map[string]string)
		}
		cfg.Options["allow_other"] = ""
	}
}
