package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/oneconcern/cloudstash/pkg/config"
	"github.com/oneconcern/cloudstash/pkg/core"
	"github.com/oneconcern/cloudstash/pkg/index"
	"github.com/oneconcern/cloudstash/pkg/index/bdgr"
	"github.com/oneconcern/cloudstash/pkg/index/memory"
	"github.com/oneconcern/cloudstash/pkg/index/sqlite"
	"github.com/oneconcern/cloudstash/pkg/remote"
	"github.com/oneconcern/cloudstash/pkg/storage"
	"github.com/oneconcern/cloudstash/pkg/storage/dropbox"
	"github.com/oneconcern/cloudstash/pkg/storage/gcs"
	"github.com/oneconcern/cloudstash/pkg/storage/localfs"
	"github.com/oneconcern/cloudstash/pkg/storage/sthree"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// stash holds the components needed by a command
type stash struct {
	index   index.Index
	store   storage.Store
	service *core.Service
}

func (s *stash) Close() error {
	return s.index.Close()
}

func openIndex(c *config.Config, l *zap.Logger) (index.Index, error) {
	switch c.Index.Backend {
	case config.IndexMemory:
		return memory.New(), nil
	case config.IndexSQLite:
		if err := os.MkdirAll(filepath.Dir(c.Index.Path), 0700); err != nil {
			return nil, err
		}
		return sqlite.Open(c.Index.Path, sqlite.Logger(l))
	case config.IndexBadger:
		return bdgr.Open(c.Index.Path, bdgr.Logger(l))
	default:
		return nil, config.ErrInvalidConfig.Wrap(fmt.Errorf("unknown index backend %q", c.Index.Backend))
	}
}

// openStore builds the blob store holding chunks. The token only applies to dropbox.
func openStore(ctx context.Context, c *config.Config, token string, l *zap.Logger) (storage.Store, error) {
	r := c.Remote
	switch r.Backend {
	case config.RemoteDropbox:
		if token == "" {
			token = r.Token
		}
		return dropbox.New(token, dropbox.Logger(l))
	case config.RemoteGCS:
		return gcs.New(ctx, r.Bucket,
			gcs.Logger(l),
			gcs.CredentialsFile(r.Credentials),
			gcs.Endpoint(r.Endpoint),
		)
	case config.RemoteS3:
		awsConfig := aws.NewConfig().WithRegion(r.Region)
		if r.Endpoint != "" {
			awsConfig = awsConfig.WithEndpoint(r.Endpoint).WithS3ForcePathStyle(true)
		}
		return sthree.New(sthree.Bucket(r.Bucket), sthree.AWSConfig(awsConfig), sthree.Logger(l))
	case config.RemoteLocalFS:
		fs := afero.NewOsFs()
		if err := fs.MkdirAll(r.Path, 0700); err != nil {
			return nil, err
		}
		return localfs.New(afero.NewBasePathFs(fs, r.Path))
	default:
		return nil, config.ErrInvalidConfig.Wrap(fmt.Errorf("unknown remote backend %q", r.Backend))
	}
}

// openStash wires the local index, the remote provider and the storage service from settings
func openStash(ctx context.Context, token string) (*stash, error) {
	if settings == nil {
		return nil, config.ErrInvalidConfig.Wrap(fmt.Errorf("configuration not loaded"))
	}

	idx, err := openIndex(settings, logger)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}

	store, err := openStore(ctx, settings, token, logger)
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("opening remote storage: %w", err)
	}
	if logger.Core().Enabled(zap.DebugLevel) {
		store = storage.Instrument(logger, store)
	}

	provider := remote.New(store,
		remote.Logger(logger),
		remote.Prefix(settings.Remote.Prefix),
		remote.SkipExisting(settings.Remote.SkipExisting),
		remote.VerifyHash(settings.Remote.VerifyHash),
	)

	return &stash{
		index: idx,
		store: store,
		service: core.New(idx, provider,
			core.Logger(logger),
			core.ConcurrentTransfers(settings.Concurrency),
			core.ProtectSharedChunks(settings.ProtectSharedChunks),
		),
	}, nil
}
