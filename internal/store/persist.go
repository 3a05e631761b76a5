package store

import (
	"context"
	"sync"
)

type writeOp int

const (
	opSet writeOp = iota
	opRemove
	opBarrier
)

func (o writeOp) String() string {
	switch o {
	case opSet:
		return "set"
	case opRemove:
		return "remove"
	default:
		return "barrier"
	}
}

// job is one queued blob store operation.
type job struct {
	ctx   context.Context
	op    writeOp
	value string

	err      error
	finished chan struct{} // closed once err is set
}

func newJob(ctx context.Context, op writeOp, value string) *job {
	return &job{ctx: ctx, op: op, value: value, finished: make(chan struct{})}
}

func (j *job) finish(err error) {
	j.err = err
	close(j.finished)
}

// wait blocks until the job ran or ctx is done.
func (j *job) wait(ctx context.Context) error {
	select {
	case <-j.finished:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writer applies jobs one at a time in enqueue order on its own goroutine.
//
// The queue is unbounded so enqueueing never blocks the caller.
type writer struct {
	run func(*job) error

	mu      sync.Mutex
	queue   []*job
	closed  bool
	wake    chan struct{}
	stopped chan struct{}
}

func newWriter(run func(*job) error) *writer {
	w := &writer{
		run:     run,
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
	go w.loop()
	return w
}

// enqueue adds j to the queue. It returns false if the writer is closed.
func (w *writer) enqueue(j *job) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, j)
	w.mu.Unlock()
	w.signal()
	return true
}

func (w *writer) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *writer) loop() {
	defer close(w.stopped)
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			closed := w.closed
			w.mu.Unlock()
			if closed {
				return
			}
			<-w.wake
			continue
		}
		j := w.queue[0]
		w.queue[0] = nil
		w.queue = w.queue[1:]
		w.mu.Unlock()

		if j.op == opBarrier {
			j.finish(nil)
			continue
		}
		j.finish(w.run(j))
	}
}

// flush waits until every job enqueued before the call has run.
func (w *writer) flush(ctx context.Context) error {
	b := newJob(ctx, opBarrier, "")
	if !w.enqueue(b) {
		// Closed: the loop drains what is left before stopping.
		select {
		case <-w.stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return b.wait(ctx)
}

// close stops accepting jobs and waits for the queue to drain.
func (w *writer) close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.signal()
	select {
	case <-w.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
