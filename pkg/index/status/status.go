// Package status exports errors produced by the index package and its implementations.
package status

import (
	"github.com/oneconcern/cloudstash/pkg/errors"
)

var (
	// ErrNotFound indicates that no file record exists for a name
	ErrNotFound = errors.New("file not found in index")

	// ErrEmptyName indicates an attempt to record a file without a name
	ErrEmptyName = errors.New("file name is required")

	// ErrIndexStorage indicates a failure of the persistent storage backing the index
	ErrIndexStorage = errors.New("index storage error")

	// ErrCorruptRecord indicates a persisted record which does not honor the index invariants
	ErrCorruptRecord = errors.New("corrupt index record")

	// ErrClosed indicates an operation on a closed index
	ErrClosed = errors.New("index is closed")
)
