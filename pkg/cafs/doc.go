// Package cafs provides the content-addressing primitives of cloudstash.
//
// Files are split into chunks of a fixed size (ChunkSize, 512 bytes). The last
// chunk of a file is padded with zeroes on the right, so every chunk stored has
// exactly ChunkSize bytes.
//
// Each chunk is identified by the SHA3-256 hash of its padded payload. The hash
// is the deduplication key (identical chunks always hash identically, whatever
// file they come from) and, rendered as lowercase hex, the key of the chunk object
// on the remote blob store.
//
// The true length of a file is recorded separately by the local index: it is the
// only way to strip the padding of the last chunk when reassembling a file.
package cafs
