package cacache

import (
	"fmt"
	"time"
)

// Stats represents cache statistics.
type Stats struct {
	Entries     int           // Number of live index entries
	TotalSize   int64         // Sum of entry sizes, shared content counted once per entry
	Blobs       int           // Distinct digests referenced by entries
	OldestEntry time.Duration // Age of the oldest entry
	NewestEntry time.Duration // Age of the newest entry
}

// Stats returns statistics about the cache.
func (c *Cache) Stats() (Stats, error) {
	stats := Stats{}
	var oldest, newest time.Time
	blobs := make(map[string]struct{})

	err := c.index.Walk(c.root, func(e Entry) error {
		stats.Entries++
		stats.TotalSize += e.Size
		blobs[c.ContentPath(e.Integrity)] = struct{}{}

		if oldest.IsZero() || e.Time.Before(oldest) {
			oldest = e.Time
		}
		if newest.IsZero() || e.Time.After(newest) {
			newest = e.Time
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	stats.Blobs = len(blobs)

	now := c.now()
	if !oldest.IsZero() {
		stats.OldestEntry = now.Sub(oldest)
	}
	if !newest.IsZero() {
		stats.NewestEntry = now.Sub(newest)
	}

	return stats, nil
}

// Entries returns all live index entries in key order.
func (c *Cache) Entries() ([]Entry, error) {
	var entries []Entry
	err := c.index.Walk(c.root, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Prune removes index entries older than the given duration.
// Returns the number of entries removed. Content is not touched.
func (c *Cache) Prune(olderThan time.Duration) (int, error) {
	cutoff := c.now().Add(-olderThan)

	var toRemove []string
	err := c.index.Walk(c.root, func(e Entry) error {
		if e.Time.Before(cutoff) {
			toRemove = append(toRemove, e.Key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	count := 0
	for _, key := range toRemove {
		if err := c.index.Delete(c.root, key); err != nil {
			return count, fmt.Errorf("failed to remove entry %s: %w", key, err)
		}
		count++
	}

	return count, nil
}
