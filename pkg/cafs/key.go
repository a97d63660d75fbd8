package cafs

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

const (
	// KeySize for SHA3-256 keys
	KeySize = 32

	// KeySizeHex for hex representation of a key
	KeySizeHex = 2 * KeySize
)

// Key type for content hashes
type Key [KeySize]byte

// NewKey creates a new key from raw hash bytes
func NewKey(data []byte) (Key, error) {
	var k Key
	if len(data) != KeySize {
		return Key{}, &BadKeySize{Key: data}
	}
	copy(k[:], data)
	return k, nil
}

// MustNewKey creates a new key from data but panics if there is an error
func MustNewKey(data []byte) Key {
	k, e := NewKey(data)
	if e != nil {
		panic(e.Error())
	}
	return k
}

// KeyFromString parses the hex representation of a key
func KeyFromString(s string) (Key, error) {
	if len(s) != KeySizeHex {
		return Key{}, &BadKeySize{Key: []byte(s)}
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("invalid hex key %q: %w", s, err)
	}
	return NewKey(data)
}

// String renders the key as lowercase hex, two digits per byte.
// This is the key used to store chunks on remote backends.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// StringWithPrefix renders the key as a remote object path
func (k Key) StringWithPrefix(prefix string) string {
	return prefix + k.String()
}

// Equal compares keys byte-wise
func (k Key) Equal(o Key) bool {
	return bytes.Equal(k[:], o[:])
}

// IsZero tells if the key is unset
func (k Key) IsZero() bool {
	return k == Key{}
}

// BadKeySize is an error that's returned when the key to create has an invalid size.
type BadKeySize struct {
	Key []byte
}

func (b *BadKeySize) Error() string {
	return fmt.Sprintf("%x has invalid size of %d, expected %d", b.Key, len(b.Key), KeySize)
}

// UniqueKeys returns the keys in order of first occurrence, without duplicates
func UniqueKeys(keys []Key) []Key {
	seen := make(map[Key]struct{}, len(keys))
	unique := make([]Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, k)
	}
	return unique
}
