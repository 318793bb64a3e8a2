// Package integrity implements Subresource-Integrity style digests.
//
// An Integrity value is an ordered list of hashes, each tagged with the
// algorithm that produced it. Its textual form is a space separated list of
// "<algorithm>-<base64 digest>" tokens, strongest algorithm first:
//
//	sha512-MJ7MSJwS1utMxA9QyQLytNDtd+5RGnx6m808qG1M2G+YndNbxf9JlnDaNCVbRbDP2DDoH2Bdz33FVC6TrpzXbw== sha256-uU0nuZNNPgilLlLX2n2r+sSE7+N6U4DukIj3rOLvzek=
//
// Hashes of different algorithms are never compared with each other.
package integrity

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrParse is returned when a string holds no usable hash.
	ErrParse = errors.New("invalid integrity string")

	// ErrMismatch is returned by Check when data does not hash to the
	// expected digest.
	ErrMismatch = errors.New("integrity mismatch")
)

// Hash is a single digest produced by one algorithm.
type Hash struct {
	Algorithm Algorithm
	Digest    []byte
}

// String returns the "<algorithm>-<base64>" form of h.
func (h Hash) String() string {
	return string(h.Algorithm) + "-" + base64.StdEncoding.EncodeToString(h.Digest)
}

// Hex returns the digest as lowercase hex.
func (h Hash) Hex() string {
	return hex.EncodeToString(h.Digest)
}

// Equal reports whether h and o were produced by the same algorithm and
// carry the same digest.
func (h Hash) Equal(o Hash) bool {
	return h.Algorithm == o.Algorithm && bytes.Equal(h.Digest, o.Digest)
}

// Integrity is a set of hashes for the same content, sorted by descending
// algorithm priority. The zero value holds no hashes.
type Integrity struct {
	Hashes []Hash
}

// New builds an Integrity from hashes, dropping unsupported algorithms and
// exact duplicates.
func New(hashes ...Hash) Integrity {
	out := make([]Hash, 0, len(hashes))
	for _, h := range hashes {
		if !h.Algorithm.Valid() {
			continue
		}
		dup := false
		for _, seen := range out {
			if seen.Equal(h) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, Hash{Algorithm: h.Algorithm, Digest: append([]byte(nil), h.Digest...)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Algorithm.Priority() > out[j].Algorithm.Priority()
	})
	return Integrity{Hashes: out}
}

// FromBytes hashes data with alg.
func FromBytes(alg Algorithm, data []byte) Integrity {
	h := alg.New()
	h.Write(data)
	return New(Hash{Algorithm: alg, Digest: h.Sum(nil)})
}

// Parse reads the textual form of an integrity value. Tokens with an
// unknown algorithm, bad base64 or a digest of the wrong length are
// ignored, as are "?option" suffixes. It fails only if no token is usable.
func Parse(s string) (Integrity, error) {
	var hashes []Hash
	for _, token := range strings.Fields(s) {
		if i := strings.IndexByte(token, '?'); i >= 0 {
			token = token[:i]
		}
		alg, b64, ok := strings.Cut(token, "-")
		if !ok {
			continue
		}
		a := Algorithm(alg)
		if !a.Valid() {
			continue
		}
		digest, err := base64.StdEncoding.DecodeString(b64)
		if err != nil || len(digest) != a.Size() {
			continue
		}
		hashes = append(hashes, Hash{Algorithm: a, Digest: digest})
	}
	if len(hashes) == 0 {
		return Integrity{}, fmt.Errorf("%w: %q", ErrParse, s)
	}
	return New(hashes...), nil
}

// String joins all hashes with single spaces, strongest first.
func (i Integrity) String() string {
	parts := make([]string, len(i.Hashes))
	for n, h := range i.Hashes {
		parts[n] = h.String()
	}
	return strings.Join(parts, " ")
}

// IsZero reports whether i holds no hashes.
func (i Integrity) IsZero() bool {
	return len(i.Hashes) == 0
}

// PickAlgorithm returns the strongest algorithm present in i, or "" if i
// is empty.
func (i Integrity) PickAlgorithm() Algorithm {
	if len(i.Hashes) == 0 {
		return ""
	}
	return i.Hashes[0].Algorithm
}

// Preferred returns the first hash of the strongest algorithm.
func (i Integrity) Preferred() (Hash, bool) {
	if len(i.Hashes) == 0 {
		return Hash{}, false
	}
	return i.Hashes[0], true
}

// ToHex returns the preferred algorithm and its digest as hex.
func (i Integrity) ToHex() (Algorithm, string) {
	h, ok := i.Preferred()
	if !ok {
		return "", ""
	}
	return h.Algorithm, h.Hex()
}

// Match reports whether other contains a hash equal to one of i's hashes
// of i's strongest algorithm. Weaker algorithms in i are not consulted.
func (i Integrity) Match(other Integrity) (Algorithm, bool) {
	alg := i.PickAlgorithm()
	if alg == "" {
		return "", false
	}
	for _, want := range i.Hashes {
		if want.Algorithm != alg {
			break
		}
		for _, got := range other.Hashes {
			if want.Equal(got) {
				return alg, true
			}
		}
	}
	return "", false
}

// Concat merges the hashes of i and o.
func (i Integrity) Concat(o Integrity) Integrity {
	all := make([]Hash, 0, len(i.Hashes)+len(o.Hashes))
	all = append(all, i.Hashes...)
	all = append(all, o.Hashes...)
	return New(all...)
}

// Check hashes data with i's strongest algorithm and compares the result.
func (i Integrity) Check(data []byte) (Algorithm, error) {
	alg := i.PickAlgorithm()
	if alg == "" {
		return "", fmt.Errorf("%w: empty integrity", ErrParse)
	}
	if _, ok := i.Match(FromBytes(alg, data)); !ok {
		return "", fmt.Errorf("%w: want %s", ErrMismatch, i)
	}
	return alg, nil
}

// MarshalText implements encoding.TextMarshaler.
func (i Integrity) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields
// the zero Integrity.
func (i *Integrity) UnmarshalText(text []byte) error {
	if len(bytes.TrimSpace(text)) == 0 {
		*i = Integrity{}
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
