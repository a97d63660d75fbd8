// Package status exports errors produced by remote providers.
package status

import (
	"github.com/oneconcern/cloudstash/pkg/errors"
)

var (
	// ErrChunkMissing indicates that a chunk was never published, or has been removed
	ErrChunkMissing = errors.New("chunk not found on remote")

	// ErrBadChunkSize indicates a remote object which is not a full chunk
	ErrBadChunkSize = errors.New("remote chunk has an invalid size")

	// ErrCorruptChunk indicates a remote object whose content does not match its key
	ErrCorruptChunk = errors.New("remote chunk content does not match its key")

	// ErrPublish indicates a failure to store a chunk
	ErrPublish = errors.New("cannot publish chunk")

	// ErrReceive indicates a failure to fetch a chunk
	ErrReceive = errors.New("cannot receive chunk")

	// ErrDelete indicates that some chunks could not be deleted
	ErrDelete = errors.New("cannot delete chunks")
)
