package cafs

import (
	"golang.org/x/crypto/sha3"
)

// DeduplicationSHA3 is the deduplication scheme: chunks are keyed by their SHA3-256 hash
const DeduplicationSHA3 = "sha3-256"

// Hash computes the content key of a data buffer.
//
// Hash is a pure function of its input: hashing the same padded chunk twice
// always yields the same key.
func Hash(data []byte) Key {
	return Key(sha3.Sum256(data))
}

// HashBlock computes the key of a padded chunk payload
func HashBlock(b *Block) Key {
	return Hash(b[:])
}
