// Package sched provides cancellable periodic and one-shot tasks for the
// simulation. Every task body runs on a single logical thread: Loop funnels
// timer fires through one goroutine, Manual runs them inline on Advance.
package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type Task interface {
	// Cancel stops the task. After Cancel returns the body never runs again,
	// even if a fire was already queued.
	Cancel()
}

type Scheduler interface {
	Every(d time.Duration, fn func()) Task
	After(d time.Duration, fn func()) Task
}

// Loop is an event queue drained by Run. Timer goroutines only enqueue.
type Loop struct {
	events chan func()
	done   chan struct{}
	once   sync.Once
}

func NewLoop(queue int) *Loop {
	if queue <= 0 {
		queue = 256
	}
	return &Loop{
		events: make(chan func(), queue),
		done:   make(chan struct{}),
	}
}

// Run executes queued functions until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.events:
			fn()
		}
	}
}

// Post enqueues fn. It reports false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.events <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return context.Canceled
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return context.Canceled
	}
}

type loopTask struct {
	stop      chan struct{}
	once      sync.Once
	cancelled atomic.Bool
	timer     *time.Timer
}

func (t *loopTask) Cancel() {
	t.cancelled.Store(true)
	t.once.Do(func() {
		close(t.stop)
		if t.timer != nil {
			t.timer.Stop()
		}
	})
}

func (t *loopTask) guard(fn func()) func() {
	return func() {
		if t.cancelled.Load() {
			return
		}
		fn()
	}
}

func (l *Loop) Every(d time.Duration, fn func()) Task {
	if d <= 0 {
		d = time.Millisecond
	}
	t := &loopTask{stop: make(chan struct{})}
	body := t.guard(fn)
	go func() {
		tk := time.NewTicker(d)
		defer tk.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-l.done:
				return
			case <-tk.C:
				select {
				case l.events <- body:
				case <-t.stop:
					return
				case <-l.done:
					return
				}
			}
		}
	}()
	return t
}

func (l *Loop) After(d time.Duration, fn func()) Task {
	t := &loopTask{stop: make(chan struct{})}
	body := t.guard(fn)
	t.timer = time.AfterFunc(d, func() {
		select {
		case l.events <- body:
		case <-t.stop:
		case <-l.done:
		}
	})
	return t
}
