package cacache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/gophersatwork/cacache/integrity"
)

const indexVersion = "5"

// Entry is the index record for one key.
type Entry struct {
	Key       string
	Integrity integrity.Integrity
	Size      int64
	Time      time.Time
	Metadata  map[string]string
}

// Index maps keys to entries. The write path only ever calls Insert.
// Implementations must be safe for concurrent use.
type Index interface {
	// Insert records entry as the current value of key.
	Insert(root, key string, entry Entry) error

	// Find returns the current entry of key, or ErrNotFound.
	Find(root, key string) (*Entry, error)

	// Delete makes key resolve to ErrNotFound. Content is left in place.
	Delete(root, key string) error

	// Walk calls fn for the current entry of every key, in key order.
	Walk(root string, fn func(Entry) error) error
}

// indexLine is the on-disk form of an Entry. An empty integrity marks a
// deleted key.
type indexLine struct {
	Key       string              `json:"key"`
	Integrity integrity.Integrity `json:"integrity"`
	Time      int64               `json:"time"` // Unix milliseconds
	Size      int64               `json:"size"`
	Metadata  map[string]string   `json:"metadata,omitempty"`
}

func (l indexLine) entry() Entry {
	return Entry{
		Key:       l.Key,
		Integrity: l.Integrity,
		Size:      l.Size,
		Time:      time.UnixMilli(l.Time),
		Metadata:  l.Metadata,
	}
}

// bucketIndex stores entries in append-only bucket files, one bucket per
// xxh64 of the key:
//
//	root/index-v5/<hh>/<hh>/<rest>
//
// Every line is "<xxh64 hex of json>\t<json>\n" and the last valid line for
// a key wins. Lines that fail their checksum are skipped.
type bucketIndex struct {
	fs  afero.Fs
	log logrus.FieldLogger
	now NowFunc // stamps tombstones
	mu  sync.Mutex // serializes appends within this process
}

func newBucketIndex(fs afero.Fs, log logrus.FieldLogger, now NowFunc) *bucketIndex {
	return &bucketIndex{fs: fs, log: log, now: now}
}

func indexDir(root string) string {
	return filepath.Join(root, "index-v"+indexVersion)
}

func bucketPath(root, key string) string {
	return shardedPath(indexDir(root), fmt.Sprintf("%016x", xxhash.Sum64String(key)))
}

func (ix *bucketIndex) Insert(root, key string, entry Entry) error {
	return ix.append(root, indexLine{
		Key:       key,
		Integrity: entry.Integrity,
		Time:      entry.Time.UnixMilli(),
		Size:      entry.Size,
		Metadata:  entry.Metadata,
	})
}

func (ix *bucketIndex) Find(root, key string) (*Entry, error) {
	lines, err := ix.readBucket(bucketPath(root, key))
	if err != nil {
		return nil, err
	}
	for i := len(lines) - 1; i >= 0; i-- {
		if lines[i].Key != key {
			continue
		}
		if lines[i].Integrity.IsZero() {
			return nil, ErrNotFound
		}
		entry := lines[i].entry()
		return &entry, nil
	}
	return nil, ErrNotFound
}

func (ix *bucketIndex) Delete(root, key string) error {
	return ix.append(root, indexLine{Key: key, Time: ix.now().UnixMilli()})
}

func (ix *bucketIndex) Walk(root string, fn func(Entry) error) error {
	latest := make(map[string]indexLine)
	err := afero.Walk(ix.fs, indexDir(root), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		lines, err := ix.readBucket(path)
		if err != nil {
			return err
		}
		for _, line := range lines {
			latest[line.Key] = line
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk index: %w", err)
	}

	keys := make([]string, 0, len(latest))
	for key, line := range latest {
		if !line.Integrity.IsZero() {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := fn(latest[key].entry()); err != nil {
			return err
		}
	}
	return nil
}

func (ix *bucketIndex) append(root string, line indexLine) error {
	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("failed to marshal index entry: %w", err)
	}
	record := fmt.Sprintf("%016x\t%s\n", xxhash.Sum64(data), data)

	bucket := bucketPath(root, line.Key)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.fs.MkdirAll(filepath.Dir(bucket), 0o755); err != nil {
		return fmt.Errorf("failed to create index bucket directory: %w", err)
	}

	// A single write per line keeps concurrent appenders from interleaving.
	f, err := ix.fs.OpenFile(bucket, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open index bucket: %w", err)
	}
	if _, err := f.Write([]byte(record)); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append index entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close index bucket: %w", err)
	}
	return nil
}

// readBucket returns the valid lines of a bucket in file order. A missing
// bucket is empty.
func (ix *bucketIndex) readBucket(path string) ([]indexLine, error) {
	data, err := afero.ReadFile(ix.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read index bucket: %w", err)
	}

	var lines []indexLine
	for n, raw := range bytes.Split(data, []byte("\n")) {
		if len(raw) == 0 {
			continue
		}
		line, err := parseIndexLine(raw)
		if err != nil {
			// Non-fatal, a torn or corrupted append
			ix.log.WithFields(logrus.Fields{
				"action": "read_index",
				"path":   path,
				"line":   n + 1,
			}).WithError(err).Warn("skipping index line")
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func parseIndexLine(raw []byte) (indexLine, error) {
	sum, body, ok := bytes.Cut(raw, []byte("\t"))
	if !ok {
		return indexLine{}, errors.New("missing checksum")
	}
	want, err := strconv.ParseUint(string(sum), 16, 64)
	if err != nil {
		return indexLine{}, fmt.Errorf("bad checksum: %w", err)
	}
	if xxhash.Sum64(body) != want {
		return indexLine{}, errors.New("checksum mismatch")
	}
	var line indexLine
	if err := json.Unmarshal(body, &line); err != nil {
		return indexLine{}, fmt.Errorf("failed to unmarshal index entry: %w", err)
	}
	return line, nil
}
