// Package status exports errors produced by the core package.
package status

import (
	"github.com/oneconcern/cloudstash/pkg/errors"
)

var (
	// ErrUpload indicates that a file could not be fully recorded and published
	ErrUpload = errors.New("upload failed")

	// ErrDownload indicates that a file could not be fully reassembled
	ErrDownload = errors.New("download failed")

	// ErrRemove indicates that a file could not be removed
	ErrRemove = errors.New("remove failed")
)
