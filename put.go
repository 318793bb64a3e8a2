package cacache

import (
	"context"
	"errors"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/gophersatwork/cacache/integrity"
)

type putState int

const (
	putOpen putState = iota
	putCommitted
	putFailed
	putAborted
)

// Writer is an open put into the cache. It must be finished with exactly
// one call to Commit or Abort. A Writer is not safe for concurrent use.
//
// Users should not construct this directly, use Cache.NewPut instead.
type Writer struct {
	cache   *Cache
	key     string
	written int64
	writer  *contentWriter
	opts    putOptions
	state   putState
}

// NewPut opens a write for key. The index is not touched until Commit.
func (c *Cache) NewPut(key string, opts ...PutOption) (*Writer, error) {
	o, err := newPutOptions(key, opts)
	if err != nil {
		return nil, err
	}
	w, err := newContentWriter(c.fs, c.root, o.algorithm, c.log)
	if err != nil {
		return nil, err
	}
	p := &Writer{cache: c, key: key, writer: w, opts: o}
	// A dropped handle releases its staging file. Abort is a no-op once
	// the writer has been closed or aborted by its owner.
	runtime.AddCleanup(p, func(cw *contentWriter) { _ = cw.Abort() }, w)
	return p, nil
}

// Write streams p into the staging file. The bytes it reports as written
// are what Commit checks WithExpectedSize against.
func (p *Writer) Write(b []byte) (int, error) {
	if p.state != putOpen {
		return 0, ErrPutFinished
	}
	n, err := p.writer.Write(b)
	p.written += int64(n)
	return n, err
}

// Written returns the number of bytes accepted so far.
func (p *Writer) Written() int64 {
	return p.written
}

// Commit publishes the content, verifies it against the put options and
// records the index entry. On ErrIntegrity or ErrSize the content stays on
// disk but no entry is written. Errors from the index are returned
// unchanged; retrying the same put is cheap because content is deduplicated.
func (p *Writer) Commit() (integrity.Integrity, error) {
	if p.state != putOpen {
		return integrity.Integrity{}, ErrPutFinished
	}
	p.state = putFailed

	sri, err := p.writer.Close()
	if err != nil {
		return integrity.Integrity{}, err
	}
	if err := p.cache.commit(p.key, p.opts, sri, p.written); err != nil {
		return integrity.Integrity{}, err
	}
	p.state = putCommitted
	return sri, nil
}

// Abort discards the put. Nothing becomes visible in the cache.
func (p *Writer) Abort() error {
	if p.state != putOpen {
		return nil
	}
	p.state = putAborted
	return p.writer.Abort()
}

// AsyncWriter is an open put whose I/O runs on a background worker. The
// Poll methods never block; the other methods wait on a context.
// An AsyncWriter is not safe for concurrent use.
//
// Users should not construct this directly, use Cache.NewAsyncPut instead.
type AsyncWriter struct {
	cache   *Cache
	key     string
	written int64
	writer  *queuedWriter
	opts    putOptions
	state   putState
}

// NewAsyncPut opens a non-blocking write for key.
func (c *Cache) NewAsyncPut(key string, opts ...PutOption) (*AsyncWriter, error) {
	o, err := newPutOptions(key, opts)
	if err != nil {
		return nil, err
	}
	w, err := newContentWriter(c.fs, c.root, o.algorithm, c.log)
	if err != nil {
		return nil, err
	}
	p := &AsyncWriter{
		cache:  c,
		key:    key,
		writer: newQueuedWriter(w, c.asyncDepth),
		opts:   o,
	}
	// The worker only references the queuedWriter, so a dropped handle
	// becomes unreachable and its worker is stopped here.
	runtime.AddCleanup(p, func(q *queuedWriter) { _ = q.Abort() }, p.writer)
	return p, nil
}

// Ready is signalled whenever the background worker makes progress.
func (p *AsyncWriter) Ready() <-chan struct{} {
	return p.writer.Ready()
}

// PollWrite accepts all of b, or returns ErrWouldBlock and accepts nothing.
func (p *AsyncWriter) PollWrite(b []byte) (int, error) {
	if p.state != putOpen {
		return 0, ErrPutFinished
	}
	n, err := p.writer.PollWrite(b)
	p.written += int64(n)
	return n, err
}

// Write waits until b is accepted or ctx is done.
func (p *AsyncWriter) Write(ctx context.Context, b []byte) (int, error) {
	if p.state != putOpen {
		return 0, ErrPutFinished
	}
	n, err := p.writer.Write(ctx, b)
	p.written += int64(n)
	return n, err
}

// PollFlush returns ErrWouldBlock until every accepted byte is staged.
func (p *AsyncWriter) PollFlush() error {
	if p.state != putOpen {
		return ErrPutFinished
	}
	return p.writer.PollFlush()
}

// Flush waits until every accepted byte is staged or ctx is done.
func (p *AsyncWriter) Flush(ctx context.Context) error {
	if p.state != putOpen {
		return ErrPutFinished
	}
	return p.writer.Flush(ctx)
}

// Written returns the number of bytes accepted so far.
func (p *AsyncWriter) Written() int64 {
	return p.written
}

// PollCommit is the non-blocking form of Commit. It returns ErrWouldBlock
// while the content is still being published.
func (p *AsyncWriter) PollCommit() (integrity.Integrity, error) {
	if p.state != putOpen {
		return integrity.Integrity{}, ErrPutFinished
	}
	sri, err := p.writer.PollClose()
	if errors.Is(err, ErrWouldBlock) {
		return integrity.Integrity{}, err
	}
	p.state = putFailed
	if err != nil {
		return integrity.Integrity{}, err
	}
	if err := p.cache.commit(p.key, p.opts, sri, p.written); err != nil {
		return integrity.Integrity{}, err
	}
	p.state = putCommitted
	return sri, nil
}

// Commit behaves like Writer.Commit. If ctx is done first the put stays open
// and Commit may be called again to resume.
func (p *AsyncWriter) Commit(ctx context.Context) (integrity.Integrity, error) {
	for {
		sri, err := p.PollCommit()
		if !errors.Is(err, ErrWouldBlock) {
			return sri, err
		}
		if err := p.writer.wait(ctx); err != nil {
			return integrity.Integrity{}, err
		}
	}
}

// Abort discards the put and stops its worker. After a commit has started
// the content may still be published, but it is never indexed.
func (p *AsyncWriter) Abort() error {
	if p.state != putOpen {
		return nil
	}
	p.state = putAborted
	return p.writer.Abort()
}

// Put writes data under key in one call.
func (c *Cache) Put(key string, data []byte, opts ...PutOption) (integrity.Integrity, error) {
	put, err := c.NewPut(key, opts...)
	if err != nil {
		return integrity.Integrity{}, err
	}
	if _, err := put.Write(data); err != nil {
		_ = put.Abort()
		return integrity.Integrity{}, err
	}
	return put.Commit()
}

// PutAsync writes data under key through the non-blocking writer.
func (c *Cache) PutAsync(ctx context.Context, key string, data []byte, opts ...PutOption) (integrity.Integrity, error) {
	put, err := c.NewAsyncPut(key, opts...)
	if err != nil {
		return integrity.Integrity{}, err
	}
	if _, err := put.Write(ctx, data); err != nil {
		_ = put.Abort()
		return integrity.Integrity{}, err
	}
	sri, err := put.Commit(ctx)
	if err != nil {
		_ = put.Abort()
		return integrity.Integrity{}, err
	}
	return sri, nil
}

// Put writes data under key in the cache at root on the OS filesystem.
func Put(root, key string, data []byte, opts ...PutOption) (integrity.Integrity, error) {
	cache, err := Open(root)
	if err != nil {
		return integrity.Integrity{}, err
	}
	return cache.Put(key, data, opts...)
}

// commit is the verification gate shared by both put handles. Content is
// already published when it runs.
func (c *Cache) commit(key string, o putOptions, sri integrity.Integrity, written int64) error {
	log := c.log.WithFields(logrus.Fields{
		"action":    "commit",
		"key":       key,
		"integrity": sri.String(),
		"size":      written,
	})

	if !o.integrity.IsZero() {
		if _, ok := o.integrity.Match(sri); !ok {
			log.Warn("content does not match expected integrity, not indexed")
			return &IntegrityError{Expected: o.integrity, Actual: sri}
		}
	}
	if o.hasSize && o.size != written {
		log.Warn("content does not match expected size, not indexed")
		return &SizeError{Expected: o.size, Actual: written}
	}

	entry := Entry{
		Key:       key,
		Integrity: sri,
		Size:      written,
		Time:      c.now(),
		Metadata:  o.metadata,
	}
	if err := c.index.Insert(c.root, key, entry); err != nil {
		return err
	}

	log.Debug("entry committed")
	return nil
}
