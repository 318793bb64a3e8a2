package cacache

import (
	"testing"
	"time"
)

// steppingClock returns a NowFunc starting at fixedNowFunc that can be
// moved forward.
type steppingClock struct {
	now time.Time
}

func (c *steppingClock) Now() time.Time {
	return c.now
}

func (c *steppingClock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func TestStats(t *testing.T) {
	clock := &steppingClock{now: fixedNowFunc()}
	cache, _, _ := setupTestCache(t, "cacache-stats-test", WithNowFunc(clock.Now))

	assertPutSucceeds(t, cache, "a", []byte("shared"))
	clock.advance(time.Hour)
	assertPutSucceeds(t, cache, "b", []byte("shared"))
	clock.advance(time.Hour)
	assertPutSucceeds(t, cache, "c", []byte("unique"))
	clock.advance(30 * time.Minute)

	stats, err := cache.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if stats.Entries != 3 {
		t.Errorf("Entries = %d, want 3", stats.Entries)
	}
	if stats.Blobs != 2 {
		t.Errorf("Blobs = %d, want 2", stats.Blobs)
	}
	if stats.TotalSize != 18 {
		t.Errorf("TotalSize = %d, want 18", stats.TotalSize)
	}
	if stats.OldestEntry != 150*time.Minute {
		t.Errorf("OldestEntry = %v, want 2h30m", stats.OldestEntry)
	}
	if stats.NewestEntry != 30*time.Minute {
		t.Errorf("NewestEntry = %v, want 30m", stats.NewestEntry)
	}
}

func TestStatsEmpty(t *testing.T) {
	cache, _, _ := setupTestCache(t, "cacache-stats-empty-test")

	stats, err := cache.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats != (Stats{}) {
		t.Errorf("Expected zero stats, got %+v", stats)
	}
}

func TestEntries(t *testing.T) {
	cache, _, _ := setupTestCache(t, "cacache-entries-test")

	for _, key := range []string{"z", "m", "a"} {
		assertPutSucceeds(t, cache, key, []byte(key))
	}

	entries, err := cache.Entries()
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"a", "m", "z"} {
		if entries[i].Key != want {
			t.Errorf("entries[%d].Key = %q, want %q", i, entries[i].Key, want)
		}
	}
}

func TestPrune(t *testing.T) {
	clock := &steppingClock{now: fixedNowFunc()}
	cache, memFs, _ := setupTestCache(t, "cacache-prune-test", WithNowFunc(clock.Now))

	old := assertPutSucceeds(t, cache, "old", []byte("old data"))
	clock.advance(48 * time.Hour)
	assertPutSucceeds(t, cache, "new", []byte("new data"))

	removed, err := cache.Prune(24 * time.Hour)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Prune removed %d entries, want 1", removed)
	}

	if cache.Has("old") {
		t.Error("Expected old entry to be pruned")
	}
	if !cache.Has("new") {
		t.Error("Expected new entry to survive")
	}
	assertFileContent(t, memFs, cache.ContentPath(old), []byte("old data"))
}

func TestRemoveStampsWithCacheClock(t *testing.T) {
	clock := &steppingClock{now: fixedNowFunc()}
	cache, _, root := setupTestCache(t, "cacache-remove-clock-test", WithNowFunc(clock.Now))

	assertPutSucceeds(t, cache, "key", []byte("data"))
	clock.advance(72 * time.Hour)
	if err := cache.Remove("key"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	ix, ok := cache.index.(*bucketIndex)
	if !ok {
		t.Fatalf("Expected default index, got %T", cache.index)
	}
	lines, err := ix.readBucket(bucketPath(root, "key"))
	if err != nil {
		t.Fatalf("readBucket failed: %v", err)
	}
	last := lines[len(lines)-1]
	if want := clock.now.UnixMilli(); last.Time != want {
		t.Errorf("Tombstone time = %d, want %d", last.Time, want)
	}
}
