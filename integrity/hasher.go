package integrity

import "hash"

// Hasher computes an Integrity incrementally over one or more algorithms.
type Hasher struct {
	algs   []Algorithm
	hashes []hash.Hash
}

// NewHasher returns a Hasher for algs. With no algorithms it uses
// DefaultAlgorithm. It panics on unsupported algorithms, like Algorithm.New.
func NewHasher(algs ...Algorithm) *Hasher {
	if len(algs) == 0 {
		algs = []Algorithm{DefaultAlgorithm}
	}
	h := &Hasher{algs: algs, hashes: make([]hash.Hash, len(algs))}
	for i, alg := range algs {
		h.hashes[i] = alg.New()
	}
	return h
}

// Write feeds p to every algorithm. It never fails.
func (h *Hasher) Write(p []byte) (int, error) {
	for _, hh := range h.hashes {
		hh.Write(p)
	}
	return len(p), nil
}

// Sum returns the digests of everything written so far.
func (h *Hasher) Sum() Integrity {
	hashes := make([]Hash, len(h.hashes))
	for i, hh := range h.hashes {
		hashes[i] = Hash{Algorithm: h.algs[i], Digest: hh.Sum(nil)}
	}
	return New(hashes...)
}
