// Package shim exposes the storage service as a flat file system.
//
// Paths address files at the root of the namespace: "/name" or "name". There are
// no directories, so any other path is reported as missing.
//
// Writes replace whole files: the previous content is removed, then the new content is uploaded.
package shim

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/oneconcern/cloudstash/pkg/core"
	"github.com/oneconcern/cloudstash/pkg/errors"
	"github.com/oneconcern/cloudstash/pkg/index"
	"github.com/oneconcern/cloudstash/pkg/index/status"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// FileMode of every file
const FileMode os.FileMode = 0777

// Attributes describe a file
type Attributes struct {
	Name  string
	Size  uint64
	Mode  os.FileMode
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// Option for the file system
type Option func(*FS)

// Logger for the file system
func Logger(l *zap.Logger) Option {
	return func(fs *FS) {
		if l != nil {
			fs.l = l
		}
	}
}

// FS translates file operations into storage service calls
type FS struct {
	svc *core.Service
	l   *zap.Logger
}

// New flat file system on a storage service
func New(svc *core.Service, opts ...Option) *FS {
	fs := &FS{
		svc: svc,
		l:   zap.NewNop(),
	}
	for _, apply := range opts {
		apply(fs)
	}
	return fs
}

// Name resolves a path to a file name. Nested paths fail with ENOENT.
func Name(path string) (string, error) {
	name := strings.TrimPrefix(path, "/")
	if name == "" || strings.Contains(name, "/") {
		return "", unix.ENOENT
	}
	return name, nil
}

// translate maps a missing file to ENOENT. Other errors are returned unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, status.ErrNotFound) {
		return unix.ENOENT
	}
	return err
}

func attributes(name string, size uint64) Attributes {
	return Attributes{
		Name: name,
		Size: size,
		Mode: FileMode,
	}
}

// Lookup the attributes of a file
func (fs *FS) Lookup(ctx context.Context, path string) (Attributes, error) {
	name, err := Name(path)
	if err != nil {
		return Attributes{}, err
	}
	record, err := fs.svc.Stat(ctx, name)
	if err != nil {
		return Attributes{}, translate(err)
	}
	return attributes(name, record.Size), nil
}

// Read the whole content of a file
func (fs *FS) Read(ctx context.Context, path string) ([]byte, error) {
	name, err := Name(path)
	if err != nil {
		return nil, err
	}
	data, err := fs.svc.Read(ctx, name)
	if err != nil {
		return nil, translate(err)
	}
	return data, nil
}

// Write replaces the whole content of a file, creating it if needed
func (fs *FS) Write(ctx context.Context, path string, data []byte) error {
	name, err := Name(path)
	if err != nil {
		return err
	}

	if err = fs.svc.Replace(ctx, name, data); err != nil {
		return err
	}
	fs.l.Debug("file written", zap.String("name", name), zap.Int("size", len(data)))
	return nil
}

// Unlink removes a file
func (fs *FS) Unlink(ctx context.Context, path string) error {
	name, err := Name(path)
	if err != nil {
		return err
	}
	return translate(fs.svc.Remove(ctx, name))
}

// List the files whose name starts with prefix. An empty prefix or "/" lists all files.
func (fs *FS) List(ctx context.Context, prefix string) ([]Attributes, error) {
	prefix = strings.TrimPrefix(prefix, "/")
	entries, err := fs.svc.List(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Attributes, 0, len(entries))
	for _, entry := range filter(entries, prefix) {
		result = append(result, attributes(entry.Name, entry.Size))
	}
	return result, nil
}

func filter(entries []index.Entry, prefix string) []index.Entry {
	if prefix == "" {
		return entries
	}
	filtered := make([]index.Entry, 0, len(entries))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name, prefix) {
			filtered = append(filtered, entry)
		}
	}
	return filtered
}
