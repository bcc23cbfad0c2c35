package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// --------------------------------------------------------------------------
// General Utility Functions
// --------------------------------------------------------------------------

// GenerateSeed creates a random seed for internal hash distribution
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// only if the system random source is unavailable
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// UintKey is the hashed representation of a string key
type UintKey uint64

// HashString generates a hash value for a string with a seed
// This function uses the FNV-1a hash algorithm, which is fast and has good distribution
func HashString(s string, seed uint64) UintKey {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}

	return UintKey(hash)
}

// StringHasher returns a hash function for xsync maps keyed by strings. The map seed
// is mixed with seed so that two maps with different seeds distribute differently.
func StringHasher(seed uint64) func(string, uint64) uint64 {
	return func(s string, mapSeed uint64) uint64 {
		return uint64(HashString(s, seed^mapSeed))
	}
}

// ShardFor returns the shard responsible for a hashed key
//
// Thread-safety: This function is thread-safe and can be called concurrently.
func ShardFor[T any](key UintKey, shards []*T) *T {
	// Shift right by 7 bits to use higher-quality bits for distribution
	return shards[(uint64(key)>>7)%uint64(len(shards))]
}
