package cacache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/gophersatwork/cacache/integrity"
)

// GetEntry returns the index entry for key.
// Returns (nil, ErrNotFound) if the key is not in the index.
func (c *Cache) GetEntry(key string) (*Entry, error) {
	return c.index.Find(c.root, key)
}

// Get returns the content stored under key, verified against its digest.
func (c *Cache) Get(key string) ([]byte, error) {
	entry, err := c.GetEntry(key)
	if err != nil {
		return nil, err
	}
	return c.ReadHash(entry.Integrity)
}

// ReadHash returns the content named by sri, verified on the way out.
// Returns ErrNotFound if no content exists and ErrIntegrity if the bytes
// on disk do not match.
func (c *Cache) ReadHash(sri integrity.Integrity) ([]byte, error) {
	alg := sri.PickAlgorithm()
	if alg == "" {
		return nil, fmt.Errorf("%w: empty integrity", ErrNotFound)
	}

	f, err := c.fs.Open(contentPath(c.root, sri))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, sri)
		}
		return nil, fmt.Errorf("failed to open content: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	hasher := integrity.NewHasher(alg)
	if _, err := copyContent(io.MultiWriter(&buf, hasher), f); err != nil {
		return nil, err
	}

	actual := hasher.Sum()
	if _, ok := sri.Match(actual); !ok {
		return nil, &IntegrityError{Expected: sri, Actual: actual}
	}
	return buf.Bytes(), nil
}

// HasContent reports whether content named by sri is on disk. It does not
// verify the bytes.
func (c *Cache) HasContent(sri integrity.Integrity) bool {
	if sri.IsZero() {
		return false
	}
	exists, err := afero.Exists(c.fs, contentPath(c.root, sri))
	return err == nil && exists
}

// Has reports whether key has an index entry whose content is on disk.
func (c *Cache) Has(key string) bool {
	entry, err := c.GetEntry(key)
	return err == nil && c.HasContent(entry.Integrity)
}

// CopyTo copies the content stored under key to dst.
func (c *Cache) CopyTo(key, dst string) error {
	entry, err := c.GetEntry(key)
	if err != nil {
		return err
	}

	dstDir := filepath.Dir(dst)
	if dstDir != "." && dstDir != "" {
		if err := c.fs.MkdirAll(dstDir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dstDir, err)
		}
	}

	srcFile, err := c.fs.Open(contentPath(c.root, entry.Integrity))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: content for %s", ErrNotFound, key)
		}
		return fmt.Errorf("failed to open cached content: %w", err)
	}
	defer srcFile.Close()

	dstFile, err := c.fs.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", dst, err)
	}
	defer dstFile.Close()

	if _, err := copyContent(dstFile, srcFile); err != nil {
		return err
	}
	return nil
}

// Remove deletes the index entry for key. Content is left for a later
// collector because other keys may share it.
func (c *Cache) Remove(key string) error {
	return c.index.Delete(c.root, key)
}
