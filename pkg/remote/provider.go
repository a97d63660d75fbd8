// Package remote publishes, receives and deletes chunks on a blob store, keyed by content hash.
package remote

import (
	"bytes"
	"context"
	"fmt"

	"github.com/oneconcern/cloudstash/pkg/cafs"
	"github.com/oneconcern/cloudstash/pkg/errors"
	"github.com/oneconcern/cloudstash/pkg/remote/status"
	"github.com/oneconcern/cloudstash/pkg/storage"
	storagestatus "github.com/oneconcern/cloudstash/pkg/storage/status"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Provider stores chunks remotely.
//
// Publishing a chunk which is already present is harmless: the same key always holds the same bytes.
type Provider interface {
	Publish(context.Context, cafs.Chunk) error

	// Receive returns the full padded block stored for key.
	// A key which was never published fails with status.ErrChunkMissing.
	Receive(context.Context, cafs.Key) (cafs.Block, error)

	// Delete removes chunks. It is best effort: every key is attempted, and
	// the failures are reported together. Missing chunks are not a failure.
	Delete(context.Context, []cafs.Key) error
}

var _ Provider = &provider{}

type provider struct {
	store        storage.Store
	prefix       string
	skipExisting bool
	verifyHash   bool
	l            *zap.Logger
}

// New provider, storing chunks on a blob store
func New(store storage.Store, opts ...Option) Provider {
	p := &provider{
		store: store,
		l:     zap.NewNop(),
	}
	for _, apply := range opts {
		apply(p)
	}
	p.l = p.l.With(zap.String("remote", p.String()))
	return p
}

func (p *provider) String() string {
	return p.store.String() + "/" + p.prefix
}

func (p *provider) objectKey(key cafs.Key) string {
	return key.StringWithPrefix(p.prefix)
}

func (p *provider) Publish(ctx context.Context, chunk cafs.Chunk) error {
	objectKey := p.objectKey(chunk.Key)
	if p.skipExisting {
		has, err := p.store.Has(ctx, objectKey)
		if err != nil {
			return status.ErrPublish.Wrap(fmt.Errorf("checking %s: %w", objectKey, err))
		}
		if has {
			p.l.Debug("chunk already published", zap.Stringer("key", chunk.Key))
			return nil
		}
	}

	if err := p.store.Put(ctx, objectKey, bytes.NewReader(chunk.Data[:])); err != nil {
		return status.ErrPublish.Wrap(fmt.Errorf("chunk %d (%s): %w", chunk.Index, objectKey, err))
	}
	p.l.Debug("chunk published", zap.Stringer("key", chunk.Key), zap.Int("index", chunk.Index))
	return nil
}

func (p *provider) Receive(ctx context.Context, key cafs.Key) (cafs.Block, error) {
	var block cafs.Block
	objectKey := p.objectKey(key)

	data, err := storage.ReadAll(ctx, p.store, objectKey, cafs.ChunkSize)
	switch {
	case storagestatus.IsNotExist(err):
		return block, status.ErrChunkMissing.Wrap(fmt.Errorf("%s: %w", objectKey, err))
	case errors.Is(err, storagestatus.ErrObjectTooBig):
		return block, status.ErrBadChunkSize.Wrap(fmt.Errorf("%s is larger than %d bytes", objectKey, cafs.ChunkSize))
	case err != nil:
		return block, status.ErrReceive.Wrap(fmt.Errorf("%s: %w", objectKey, err))
	case len(data) != cafs.ChunkSize:
		return block, status.ErrBadChunkSize.Wrap(fmt.Errorf("%s has %d bytes, expected %d", objectKey, len(data), cafs.ChunkSize))
	}

	copy(block[:], data)
	if p.verifyHash {
		if actual := cafs.HashBlock(&block); actual != key {
			return cafs.Block{}, status.ErrCorruptChunk.Wrap(fmt.Errorf("%s hashes to %v", objectKey, actual))
		}
	}
	return block, nil
}

func (p *provider) Delete(ctx context.Context, keys []cafs.Key) error {
	var errs error
	for _, key := range keys {
		objectKey := p.objectKey(key)
		err := p.store.Delete(ctx, objectKey)
		if err == nil || storagestatus.IsNotExist(err) {
			continue
		}
		p.l.Warn("chunk deletion failed", zap.String("object", objectKey), zap.Error(err))
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", objectKey, err))
	}
	if errs != nil {
		return status.ErrDelete.Wrap(errs)
	}
	return nil
}
