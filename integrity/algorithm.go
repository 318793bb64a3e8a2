package integrity

import (
	"crypto/sha1"
	"crypto/sha512"
	"hash"

	"github.com/cespare/xxhash/v2"
	sha256simd "github.com/minio/sha256-simd"
)

// Algorithm names a hash function that can appear in an integrity string.
type Algorithm string

// Supported algorithms, strongest first.
const (
	SHA512 Algorithm = "sha512"
	SHA384 Algorithm = "sha384"
	SHA256 Algorithm = "sha256"
	SHA1   Algorithm = "sha1"
	XXH64  Algorithm = "xxh64"
)

// DefaultAlgorithm is the algorithm used by every writer that was not
// configured with one explicitly.
const DefaultAlgorithm = SHA256

// priorities orders algorithms when an integrity value carries several
// hashes. Higher wins.
var priorities = map[Algorithm]int{
	SHA512: 4,
	SHA384: 3,
	SHA256: 2,
	SHA1:   1,
	XXH64:  0,
}

var sizes = map[Algorithm]int{
	SHA512: sha512.Size,
	SHA384: sha512.Size384,
	SHA256: sha256simd.Size,
	SHA1:   sha1.Size,
	XXH64:  8,
}

// Algorithms returns the supported algorithms ordered by descending priority.
func Algorithms() []Algorithm {
	return []Algorithm{SHA512, SHA384, SHA256, SHA1, XXH64}
}

// Valid reports whether a is a supported algorithm.
func (a Algorithm) Valid() bool {
	_, ok := priorities[a]
	return ok
}

// Priority returns the rank of a among the supported algorithms, or -1 if
// a is unknown.
func (a Algorithm) Priority() int {
	p, ok := priorities[a]
	if !ok {
		return -1
	}
	return p
}

// Size returns the digest length in bytes, or 0 if a is unknown.
func (a Algorithm) Size() int {
	return sizes[a]
}

// New returns a fresh hash.Hash for a.
// It panics if a is not a supported algorithm; check Valid first.
func (a Algorithm) New() hash.Hash {
	switch a {
	case SHA512:
		return sha512.New()
	case SHA384:
		return sha512.New384()
	case SHA256:
		return sha256simd.New()
	case SHA1:
		return sha1.New()
	case XXH64:
		return xxhash.New()
	}
	panic("integrity: unsupported algorithm " + string(a))
}

func (a Algorithm) String() string {
	return string(a)
}
