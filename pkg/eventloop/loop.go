// Package eventloop runs every state-mutating task of the realtime core on a
// single goroutine, in submission order.
package eventloop

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("event loop stopped")

// Executor schedules tasks onto the owning goroutine.
type Executor interface {
	// Post enqueues fn and returns immediately. Safe from any goroutine.
	Post(fn func())
	// Do runs fn on the loop and waits for it to finish. It must not be
	// called from a task already running on the loop.
	Do(fn func()) error
}

// Loop is an Executor backed by one goroutine started with Run.
type Loop struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

// New creates a loop with a bounded task queue.
func New(queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Loop{
		tasks: make(chan func(), queueSize),
		done:  make(chan struct{}),
	}
}

// Run executes tasks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post enqueues fn. Tasks posted after the loop exited are dropped.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.done:
	case l.tasks <- fn:
	}
}

// Do runs fn on the loop and blocks until it returns.
func (l *Loop) Do(fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}
	select {
	case <-l.done:
		return ErrStopped
	case l.tasks <- task:
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Immediate runs every task synchronously on the caller's goroutine. Tests
// use it to observe state changes right after an intent or frame.
type Immediate struct{}

func (Immediate) Post(fn func()) { fn() }

func (Immediate) Do(fn func()) error {
	fn()
	return nil
}
