// Copyright © 2018 One Concern

// Package storage defines the blob store contract used to keep chunks remotely.
//
// A Store is a flat key/value space. Keys are chunk names, values are opaque
// byte streams. Backends live in subpackages:
//
//	dropbox  Dropbox HTTP API, authenticated with a bearer token
//	gcs      Google Cloud Storage bucket
//	sthree   AWS S3 bucket (or any S3 compatible endpoint)
//	localfs  directory on an afero file system
//
// Instrument wraps any Store with debug logging of every call.
package storage
