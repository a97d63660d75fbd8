// Copyright © 2018 One Concern

package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/oneconcern/cloudstash/pkg/storage/status"
)

// Store implementations know how to write blobs to a K/V model.
//
// Typically this is something file system-like. Examples are S3, GCS, Dropbox, local FS...
// Implementations of this interface are assumed to be fairly simple: putting an existing key overwrites it.
type Store interface {
	String() string
	Has(context.Context, string) (bool, error)
	Get(context.Context, string) (io.ReadCloser, error)
	Put(context.Context, string, io.Reader) error
	Delete(context.Context, string) error
	Keys(context.Context) ([]string, error)
	Clear(context.Context) error
}

// ReadAll reads a whole object from a store, failing with status.ErrObjectTooBig
// when the object exceeds limit bytes.
func ReadAll(ctx context.Context, store Store, key string, limit int64) ([]byte, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = reader.Close()
	}()

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, err
	}
	if n > limit {
		return nil, status.ErrObjectTooBig
	}
	return buf.Bytes(), nil
}
