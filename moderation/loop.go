package moderation

import (
	"context"
	"sync"
)

// Loop runs posted tasks one at a time, in the order they were posted.
type Loop struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

// NewLoop returns a loop with a task buffer of the given size.
func NewLoop(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 256
	}
	return &Loop{tasks: make(chan func(), buffer), done: make(chan struct{})}
}

// Post queues f for execution on the loop. It blocks while the buffer is full
// and drops f once the loop has stopped.
func (l *Loop) Post(f func()) {
	select {
	case <-l.done:
	case l.tasks <- f:
	}
}

// Do runs f on the loop and waits for it to finish. It returns ctx.Err() if the
// context ends first, or context.Canceled if the loop is stopped.
func (l *Loop) Do(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		f()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return context.Canceled
	case l.tasks <- task:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return context.Canceled
	case <-finished:
		return nil
	}
}

// Run executes tasks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-l.tasks:
			f()
		}
	}
}

// await runs work off the loop and posts then(result) back onto it.
func await[T any](l *Loop, work func() T, then func(T)) {
	go func() {
		v := work()
		l.Post(func() { then(v) })
	}()
}
