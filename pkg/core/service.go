// Package core implements the storage service of cloudstash.
//
// The service keeps the local index and the remote chunks consistent: files are
// recorded in the index, then their chunks are published. Downloads fetch the
// chunks listed by the index and strip the padding of the last one.
//
// Failures are not rolled back: an upload failing halfway leaves an index record
// pointing at chunks which may be missing remotely.
package core

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/oneconcern/cloudstash/pkg/cafs"
	"github.com/oneconcern/cloudstash/pkg/core/status"
	"github.com/oneconcern/cloudstash/pkg/errors"
	"github.com/oneconcern/cloudstash/pkg/index"
	indexstatus "github.com/oneconcern/cloudstash/pkg/index/status"
	"github.com/oneconcern/cloudstash/pkg/remote"
	remotestatus "github.com/oneconcern/cloudstash/pkg/remote/status"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Service orchestrates the local index and a remote provider
type Service struct {
	index         index.Index
	provider      remote.Provider
	l             *zap.Logger
	concurrency   int
	protectShared bool
}

// New storage service. The service does not own the index: closing it is left to the caller.
func New(idx index.Index, provider remote.Provider, opts ...Option) *Service {
	s := &Service{
		index:       idx,
		provider:    provider,
		l:           zap.NewNop(),
		concurrency: defaultConcurrentTransfers,
	}
	for _, apply := range opts {
		apply(s)
	}

	if s.protectShared {
		if _, ok := idx.(index.RefCounter); !ok {
			s.l.Warn("this index cannot count chunk references: shared chunks will not be protected")
			s.protectShared = false
		}
	}
	return s
}

// Upload records a file in the index, then publishes its chunks.
//
// A chunk appearing several times in the file is published once.
func (s *Service) Upload(ctx context.Context, name string, data []byte) error {
	logger := s.l.With(zap.String("name", name))

	chunks, err := s.index.Save(ctx, name, data)
	if err != nil {
		return status.ErrUpload.Wrap(fmt.Errorf("recording %q: %w", name, err))
	}

	published := make(map[cafs.Key]struct{}, len(chunks))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)

	for i := range chunks {
		if _, done := published[chunks[i].Key]; done {
			continue
		}
		published[chunks[i].Key] = struct{}{}

		if gctx.Err() != nil {
			break
		}
		chunk := &chunks[i]
		group.Go(func() error {
			return s.provider.Publish(gctx, *chunk)
		})
	}

	if err := group.Wait(); err != nil {
		logger.Error("upload interrupted: the index refers to chunks which may be missing remotely", zap.Error(err))
		return status.ErrUpload.Wrap(fmt.Errorf("publishing %q: %w", name, err))
	}

	logger.Info("uploaded",
		zap.Int("size", len(data)),
		zap.Int("chunks", len(chunks)),
		zap.Int("published", len(published)),
	)
	return nil
}

// Download writes the content of a file to w. Exactly the recorded size of the file is written.
func (s *Service) Download(ctx context.Context, name string, w io.Writer) error {
	record, err := s.index.Find(ctx, name)
	if err != nil {
		return status.ErrDownload.Wrap(fmt.Errorf("looking up %q: %w", name, err))
	}

	window := s.concurrency * downloadWindowFactor
	for start := 0; start < len(record.Keys); start += window {
		end := start + window
		if end > len(record.Keys) {
			end = len(record.Keys)
		}

		blocks, err := s.receive(ctx, record.Keys[start:end])
		if err != nil {
			return status.ErrDownload.Wrap(fmt.Errorf("fetching %q: %w", name, err))
		}

		for i := start; i < end; i++ {
			block := blocks[record.Keys[i]]
			if _, err := w.Write(block[:cafs.LiveLen(record.Size, i)]); err != nil {
				return status.ErrDownload.Wrap(fmt.Errorf("writing %q: %w", name, err))
			}
		}
	}

	s.l.Debug("downloaded", zap.String("name", name), zap.Uint64("size", record.Size), zap.Int("chunks", record.Chunks()))
	return nil
}

// receive fetches the distinct keys of a window of chunks
func (s *Service) receive(ctx context.Context, keys []cafs.Key) (map[cafs.Key]*cafs.Block, error) {
	unique := cafs.UniqueKeys(keys)
	blocks := make(map[cafs.Key]*cafs.Block, len(unique))
	for _, key := range unique {
		blocks[key] = new(cafs.Block)
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)
	for _, key := range unique {
		if gctx.Err() != nil {
			break
		}
		key := key
		target := blocks[key]
		group.Go(func() error {
			block, err := s.provider.Receive(gctx, key)
			if err != nil {
				return err
			}
			*target = block
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return blocks, nil
}

// Read returns the full content of a file. An empty file reads as an empty, non-nil slice.
func (s *Service) Read(ctx context.Context, name string) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Download(ctx, name, &buf); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return []byte{}, nil
	}
	return buf.Bytes(), nil
}

// Remove a file from the index, then delete its chunks remotely.
//
// Unless ProtectSharedChunks is enabled, chunks are deleted even when other files use them.
// Remote deletion is best effort.
func (s *Service) Remove(ctx context.Context, name string) error {
	logger := s.l.With(zap.String("name", name))

	record, err := s.index.Find(ctx, name)
	if err != nil {
		return status.ErrRemove.Wrap(fmt.Errorf("looking up %q: %w", name, err))
	}

	if err = s.index.Clean(ctx, name); err != nil {
		return status.ErrRemove.Wrap(fmt.Errorf("cleaning %q: %w", name, err))
	}

	keys, err := s.unreferenced(ctx, cafs.UniqueKeys(record.Keys))
	if err != nil {
		return status.ErrRemove.Wrap(fmt.Errorf("counting references for %q: %w", name, err))
	}

	if err = s.provider.Delete(ctx, keys); err != nil {
		logger.Warn("some chunks could not be deleted remotely", zap.Error(err))
		return status.ErrRemove.Wrap(fmt.Errorf("deleting chunks of %q: %w", name, err))
	}

	logger.Info("removed",
		zap.Int("chunks", record.Chunks()),
		zap.Int("deleted", len(keys)),
	)
	return nil
}

// unreferenced filters out the keys still used by some record, when shared chunks are protected
func (s *Service) unreferenced(ctx context.Context, keys []cafs.Key) ([]cafs.Key, error) {
	if !s.protectShared {
		return keys, nil
	}
	counter := s.index.(index.RefCounter)

	kept := keys[:0]
	for _, key := range keys {
		refs, err := counter.Refs(ctx, key)
		if err != nil {
			return nil, err
		}
		if refs > 0 {
			s.l.Debug("chunk still in use", zap.Stringer("key", key), zap.Int("refs", refs))
			continue
		}
		kept = append(kept, key)
	}
	return kept, nil
}

// Stat returns the index record of a file
func (s *Service) Stat(ctx context.Context, name string) (index.Record, error) {
	return s.index.Find(ctx, name)
}

// List all files known to the index, sorted by name
func (s *Service) List(ctx context.Context) ([]index.Entry, error) {
	return s.index.List(ctx)
}

// Replace the content of a file, creating it if needed.
//
// The previous record is cleaned and its chunks deleted before the new content is uploaded.
// Failing to delete old chunks remotely does not prevent the upload.
func (s *Service) Replace(ctx context.Context, name string, data []byte) error {
	switch err := s.Remove(ctx, name); {
	case err == nil, errors.Is(err, indexstatus.ErrNotFound):
	case errors.Is(err, remotestatus.ErrDelete):
		s.l.Warn("stale chunks left on remote", zap.String("name", name), zap.Error(err))
	default:
		return err
	}
	return s.Upload(ctx, name, data)
}
