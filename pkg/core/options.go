package core

import (
	"go.uber.org/zap"
)

// Option sets options for the storage service
type Option func(*Service)

const (
	defaultConcurrentTransfers = 1

	// window of chunks fetched ahead of the writer, per concurrent transfer
	downloadWindowFactor = 16
)

// Logger for the service
func Logger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.l = l
		}
	}
}

// ConcurrentTransfers sets the max number of chunks published or received in parallel.
// It defaults to 1: chunks are transferred one at a time, in ascending index order.
//
// Downloaded bytes are always written in index order.
func ConcurrentTransfers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// ProtectSharedChunks keeps the remote chunks still used by other files when removing a file.
//
// This requires an index able to count references (index.RefCounter). It is disabled by default:
// removing a file deletes all its chunks, even those shared with other files.
func ProtectSharedChunks(enabled bool) Option {
	return func(s *Service) {
		s.protectShared = enabled
	}
}
