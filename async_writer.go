package cacache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gophersatwork/cacache/integrity"
)

const defaultAsyncDepth = 4

type opKind int

const (
	opWrite opKind = iota
	opFlush
	opClose
)

type asyncOp struct {
	kind opKind
	data []byte
	seq  uint64
}

// queuedWriter drives a contentSink from a single worker goroutine so that
// the owner never blocks on I/O. The owner submits ops into a bounded queue
// and polls for their completion; the worker signals ready after each op.
//
// Fields above mu are touched only by the owner.
type queuedWriter struct {
	sink  contentSink
	ops   chan asyncOp
	ready chan struct{}
	quit  chan struct{}
	done  chan struct{}

	submitted uint64
	flushSeq  uint64
	closeSeq  uint64
	aborted   bool

	mu        sync.Mutex
	completed uint64
	err       error
	sri       integrity.Integrity
}

func newQueuedWriter(sink contentSink, depth int) *queuedWriter {
	if depth < 1 {
		depth = 1
	}
	a := &queuedWriter{
		sink:  sink,
		ops:   make(chan asyncOp, depth),
		ready: make(chan struct{}, 1),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *queuedWriter) run() {
	defer close(a.done)
	for {
		select {
		case op := <-a.ops:
			a.apply(op)
			if op.kind == opClose {
				return
			}
		case <-a.quit:
			return
		}
	}
}

func (a *queuedWriter) apply(op asyncOp) {
	a.mu.Lock()
	failed := a.err
	a.mu.Unlock()

	var (
		err error
		sri integrity.Integrity
	)
	switch {
	case failed != nil && op.kind == opClose:
		// Never publish content after a failed write.
		err = a.sink.Abort()
	case failed != nil:
	case op.kind == opWrite:
		_, err = a.sink.Write(op.data)
	case op.kind == opFlush:
		err = a.sink.Flush()
	case op.kind == opClose:
		sri, err = a.sink.Close()
	}

	a.mu.Lock()
	if err != nil && a.err == nil {
		a.err = err
	}
	if op.kind == opClose {
		a.sri = sri
	}
	a.completed = op.seq
	a.mu.Unlock()

	select {
	case a.ready <- struct{}{}:
	default:
	}
}

func (a *queuedWriter) state() (uint64, integrity.Integrity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.completed, a.sri, a.err
}

// trySubmit enqueues an op without blocking. Only the owner sends and the
// worker only receives, so a free slot seen here cannot disappear.
func (a *queuedWriter) trySubmit(kind opKind, data []byte) (uint64, bool) {
	if len(a.ops) == cap(a.ops) {
		return 0, false
	}
	a.submitted++
	a.ops <- asyncOp{kind: kind, data: data, seq: a.submitted}
	return a.submitted, true
}

func (a *queuedWriter) usable() error {
	if a.aborted || a.closeSeq != 0 {
		return fmt.Errorf("async writer: %w", ErrPutFinished)
	}
	return nil
}

// Ready is signalled every time the worker completes an op.
func (a *queuedWriter) Ready() <-chan struct{} {
	return a.ready
}

// PollWrite accepts all of p or none of it. Accepted bytes are copied and
// will reach the sink unless the writer is aborted.
func (a *queuedWriter) PollWrite(p []byte) (int, error) {
	if err := a.usable(); err != nil {
		return 0, err
	}
	if _, _, err := a.state(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if len(a.ops) == cap(a.ops) {
		return 0, ErrWouldBlock
	}
	a.trySubmit(opWrite, append([]byte(nil), p...))
	return len(p), nil
}

// PollFlush returns nil once every byte accepted before the first call has
// been flushed to the staging file.
func (a *queuedWriter) PollFlush() error {
	if err := a.usable(); err != nil {
		return err
	}
	if a.flushSeq == 0 {
		seq, ok := a.trySubmit(opFlush, nil)
		if !ok {
			return ErrWouldBlock
		}
		a.flushSeq = seq
	}
	completed, _, err := a.state()
	if err != nil {
		a.flushSeq = 0
		return err
	}
	if completed < a.flushSeq {
		return ErrWouldBlock
	}
	a.flushSeq = 0
	return nil
}

// PollClose finalizes and publishes the content once all queued writes are
// done. It keeps returning the same result after completion.
func (a *queuedWriter) PollClose() (integrity.Integrity, error) {
	if a.aborted {
		return integrity.Integrity{}, fmt.Errorf("async writer: %w", ErrPutFinished)
	}
	if a.closeSeq == 0 {
		seq, ok := a.trySubmit(opClose, nil)
		if !ok {
			return integrity.Integrity{}, ErrWouldBlock
		}
		a.closeSeq = seq
	}
	completed, sri, err := a.state()
	if completed < a.closeSeq {
		return integrity.Integrity{}, ErrWouldBlock
	}
	if err != nil {
		return integrity.Integrity{}, err
	}
	return sri, nil
}

// Write waits until p is accepted or ctx is done.
func (a *queuedWriter) Write(ctx context.Context, p []byte) (int, error) {
	for {
		n, err := a.PollWrite(p)
		if !errors.Is(err, ErrWouldBlock) {
			return n, err
		}
		if err := a.wait(ctx); err != nil {
			return 0, err
		}
	}
}

// Flush waits until all accepted bytes are flushed or ctx is done.
func (a *queuedWriter) Flush(ctx context.Context) error {
	for {
		err := a.PollFlush()
		if !errors.Is(err, ErrWouldBlock) {
			return err
		}
		if err := a.wait(ctx); err != nil {
			return err
		}
	}
}

// Close waits for the content to be published or ctx to be done. A
// cancelled Close can be resumed by calling it again.
func (a *queuedWriter) Close(ctx context.Context) (integrity.Integrity, error) {
	for {
		sri, err := a.PollClose()
		if !errors.Is(err, ErrWouldBlock) {
			return sri, err
		}
		if err := a.wait(ctx); err != nil {
			return integrity.Integrity{}, err
		}
	}
}

// Abort stops the worker and discards the staging file. Once a close has
// been submitted it is a no-op: the worker finishes on its own.
func (a *queuedWriter) Abort() error {
	if a.aborted || a.closeSeq != 0 {
		return nil
	}
	a.aborted = true
	close(a.quit)
	<-a.done
	return a.sink.Abort()
}

func (a *queuedWriter) wait(ctx context.Context) error {
	select {
	case <-a.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
