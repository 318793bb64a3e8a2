package cacache

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/gophersatwork/cacache/integrity"
)

// Cache is a content-addressable store rooted at a directory.
// It is safe for concurrent use; individual Writer and AsyncWriter handles are not.
type Cache struct {
	root       string
	fs         afero.Fs
	nowFunc    NowFunc
	log        logrus.FieldLogger
	index      Index
	asyncDepth int
}

// NowFunc defines a function that returns the current time.
type NowFunc func() time.Time

// Option defines a function that configures a Cache.
type Option func(*Cache)

// Open creates a cache at the given root directory.
// The directory layout will be created if it doesn't exist.
func Open(root string, options ...Option) (*Cache, error) {
	cache := &Cache{
		root:       root,
		fs:         afero.NewOsFs(),
		nowFunc:    time.Now,
		log:        discardLogger(),
		asyncDepth: defaultAsyncDepth,
	}

	for _, option := range options {
		option(cache)
	}

	if cache.index == nil {
		cache.index = newBucketIndex(cache.fs, cache.log, cache.nowFunc)
	}
	if cache.asyncDepth < 1 {
		cache.asyncDepth = 1
	}

	if err := cache.ensureDirs(); err != nil {
		return nil, err
	}
	return cache, nil
}

// OpenTemp creates an in-memory cache for testing.
func OpenTemp() *Cache {
	cache, err := Open("/cacache", WithFs(afero.NewMemMapFs()))
	if err != nil {
		panic(fmt.Sprintf("failed to create temp cache: %v", err))
	}
	return cache
}

// Root returns the cache root directory.
func (c *Cache) Root() string {
	return c.root
}

// ContentPath returns where content with the given digest lives.
func (c *Cache) ContentPath(sri integrity.Integrity) string {
	return contentPath(c.root, sri)
}

// Clear removes all content, index entries and staging files.
func (c *Cache) Clear() error {
	for _, dir := range []string{contentDir(c.root), indexDir(c.root), tmpDir(c.root)} {
		if err := c.fs.RemoveAll(dir); err != nil {
			return fmt.Errorf("failed to remove %s: %w", dir, err)
		}
	}
	return c.ensureDirs()
}

// Close releases resources held by the cache.
// Currently a no-op, but provided for future extensibility.
func (c *Cache) Close() error {
	return nil
}

func (c *Cache) ensureDirs() error {
	if err := c.fs.MkdirAll(contentDir(c.root), 0o755); err != nil {
		return fmt.Errorf("failed to create content directory: %w", err)
	}
	if err := c.fs.MkdirAll(indexDir(c.root), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	if err := c.fs.MkdirAll(tmpDir(c.root), 0o755); err != nil {
		return fmt.Errorf("failed to create tmp directory: %w", err)
	}
	return nil
}

func (c *Cache) now() time.Time {
	return c.nowFunc()
}

// tmpDir holds staging files. Nothing in it is ever reachable through a
// content path.
func tmpDir(root string) string {
	return filepath.Join(root, "tmp")
}

func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
