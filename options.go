package cacache

import (
	"errors"
	"fmt"
	"maps"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/gophersatwork/cacache/integrity"
)

// WithFs sets a custom filesystem for the cache.
// This is primarily useful for testing with in-memory filesystems.
//
// Example:
//
//	cache, err := cacache.Open(".cache", cacache.WithFs(afero.NewMemMapFs()))
func WithFs(fs afero.Fs) Option {
	return func(c *Cache) {
		c.fs = fs
	}
}

// WithNowFunc sets a custom time function for the cache.
// Index entries are stamped with it.
func WithNowFunc(nowFunc NowFunc) Option {
	return func(c *Cache) {
		c.nowFunc = nowFunc
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Cache) {
		c.log = log
	}
}

// WithIndex replaces the default on-disk index.
func WithIndex(index Index) Option {
	return func(c *Cache) {
		c.index = index
	}
}

// WithAsyncDepth sets how many chunks an async writer buffers before
// PollWrite reports ErrWouldBlock. Values below 1 are raised to 1.
func WithAsyncDepth(n int) Option {
	return func(c *Cache) {
		c.asyncDepth = n
	}
}

// putOptions is the immutable configuration of one put.
type putOptions struct {
	algorithm integrity.Algorithm
	integrity integrity.Integrity
	size      int64
	hasSize   bool
	metadata  map[string]string
}

// PutOption configures a single put.
type PutOption func(*putOptions)

// WithAlgorithm selects the hash algorithm for the written content.
// Without it the algorithm of WithExpectedIntegrity is used, falling back
// to integrity.DefaultAlgorithm.
func WithAlgorithm(alg integrity.Algorithm) PutOption {
	return func(o *putOptions) {
		o.algorithm = alg
	}
}

// WithExpectedIntegrity makes Commit fail with ErrIntegrity unless the
// written content matches sri at sri's strongest algorithm.
func WithExpectedIntegrity(sri integrity.Integrity) PutOption {
	return func(o *putOptions) {
		o.integrity = sri
	}
}

// WithExpectedSize makes Commit fail with ErrSize unless exactly size
// bytes were written.
func WithExpectedSize(size int64) PutOption {
	return func(o *putOptions) {
		o.size = size
		o.hasSize = true
	}
}

// WithMetadata attaches metadata to the index entry.
func WithMetadata(metadata map[string]string) PutOption {
	return func(o *putOptions) {
		o.metadata = maps.Clone(metadata)
	}
}

// newPutOptions applies opts and validates the result. All problems are
// reported together.
func newPutOptions(key string, opts []PutOption) (putOptions, error) {
	var o putOptions
	for _, opt := range opts {
		opt(&o)
	}

	var errs []error
	if key == "" {
		errs = append(errs, errors.New("key must not be empty"))
	}
	if o.algorithm != "" && !o.algorithm.Valid() {
		errs = append(errs, fmt.Errorf("unsupported algorithm %q", o.algorithm))
	}
	if o.hasSize && o.size < 0 {
		errs = append(errs, fmt.Errorf("expected size must not be negative, got %d", o.size))
	}
	if err := newValidationError(errs); err != nil {
		return putOptions{}, err
	}

	if o.algorithm == "" {
		o.algorithm = o.integrity.PickAlgorithm()
	}
	if o.algorithm == "" {
		o.algorithm = integrity.DefaultAlgorithm
	}
	return o, nil
}
