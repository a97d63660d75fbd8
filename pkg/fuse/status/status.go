// Package status exports errors produced by the fuse package.
package status

import (
	"github.com/oneconcern/cloudstash/pkg/errors"
)

var (
	// ErrMountPoint indicates that the mount point could not be prepared
	ErrMountPoint = errors.New("cannot prepare mount point")

	// ErrNotMounted indicates an operation requiring a mounted file system
	ErrNotMounted = errors.New("file system is not mounted")
)
