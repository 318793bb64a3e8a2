package cacache

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/gophersatwork/cacache/integrity"
)

// contentSink is what both put handles write through. contentWriter is the
// only production implementation.
type contentSink interface {
	Write(p []byte) (int, error)
	Flush() error
	Close() (integrity.Integrity, error)
	Abort() error
}

// contentWriter stages bytes in tmp/ while hashing them, and publishes the
// staging file at its content path on Close.
type contentWriter struct {
	fs      afero.Fs
	root    string
	log     logrus.FieldLogger
	tmp     afero.File
	tmpPath string
	buf     *bufio.Writer
	hasher  *integrity.Hasher
	done    bool
}

func newContentWriter(afs afero.Fs, root string, alg integrity.Algorithm, log logrus.FieldLogger) (*contentWriter, error) {
	dir := tmpDir(root)
	if err := afs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create tmp directory: %w", err)
	}

	tmpPath := filepath.Join(dir, uuid.NewString())
	tmp, err := afs.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}

	return &contentWriter{
		fs:      afs,
		root:    root,
		log:     log,
		tmp:     tmp,
		tmpPath: tmpPath,
		buf:     bufio.NewWriterSize(tmp, defaultBufferSize),
		hasher:  integrity.NewHasher(alg),
	}, nil
}

func (w *contentWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, fs.ErrClosed
	}
	n, err := w.buf.Write(p)
	w.hasher.Write(p[:n])
	if err != nil {
		return n, fmt.Errorf("failed to write content: %w", err)
	}
	return n, nil
}

func (w *contentWriter) Flush() error {
	if w.done {
		return fs.ErrClosed
	}
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush content: %w", err)
	}
	return nil
}

// Close finalizes the digest and publishes the content. On failure the
// staging file is removed.
func (w *contentWriter) Close() (integrity.Integrity, error) {
	if w.done {
		return integrity.Integrity{}, fs.ErrClosed
	}
	w.done = true

	if err := w.buf.Flush(); err != nil {
		w.discard()
		return integrity.Integrity{}, fmt.Errorf("failed to flush content: %w", err)
	}
	if err := w.tmp.Sync(); err != nil {
		w.discard()
		return integrity.Integrity{}, fmt.Errorf("failed to sync staging file: %w", err)
	}
	if err := w.tmp.Close(); err != nil {
		w.removeStaging()
		return integrity.Integrity{}, fmt.Errorf("failed to close staging file: %w", err)
	}

	sri := w.hasher.Sum()
	if err := publish(w.fs, w.log, w.tmpPath, contentPath(w.root, sri)); err != nil {
		return integrity.Integrity{}, err
	}
	return sri, nil
}

// Abort drops everything written so far. It is a no-op after Close.
func (w *contentWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	_ = w.tmp.Close()
	if err := w.fs.Remove(w.tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove staging file: %w", err)
	}
	return nil
}

func (w *contentWriter) discard() {
	_ = w.tmp.Close()
	w.removeStaging()
}

func (w *contentWriter) removeStaging() {
	removeStaging(w.fs, w.log, w.tmpPath)
}

// publish moves a finished staging file to dst. Content paths are named by
// their own bytes, so an existing dst already holds identical content and
// counts as success. Readers of dst see either nothing or the whole file.
func publish(afs afero.Fs, log logrus.FieldLogger, tmpPath, dst string) error {
	log = log.WithFields(logrus.Fields{"action": "publish", "path": dst})

	exists, err := afero.Exists(afs, dst)
	if err != nil {
		removeStaging(afs, log, tmpPath)
		return fmt.Errorf("failed to check content %s: %w", dst, err)
	}
	if exists {
		log.Debug("content already present")
		removeStaging(afs, log, tmpPath)
		return nil
	}

	if err := afs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		removeStaging(afs, log, tmpPath)
		return fmt.Errorf("failed to create content directory: %w", err)
	}

	if err := afs.Rename(tmpPath, dst); err != nil {
		// Another writer may have published the same content first.
		if exists, _ := afero.Exists(afs, dst); exists {
			log.Debug("content published concurrently")
			removeStaging(afs, log, tmpPath)
			return nil
		}
		removeStaging(afs, log, tmpPath)
		return fmt.Errorf("failed to move content into place: %w", err)
	}

	log.Debug("content published")
	return nil
}

func removeStaging(afs afero.Fs, log logrus.FieldLogger, tmpPath string) {
	if err := afs.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		// Non-fatal, the file is unreachable from any content path
		log.WithField("tmp", tmpPath).WithError(err).Warn("failed to remove staging file")
	}
}
