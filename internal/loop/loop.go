// Package loop runs a session's callbacks, timers and commands one at a time
// on a single goroutine, so session state needs no locks.
package loop

import (
	"context"
	"log"
	"sync"
	"time"
)

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	// Stop prevents the callback from running if it has not started. It
	// reports whether the call stopped it.
	Stop() bool
}

// Executor is where session work is posted. Loop is the production
// implementation; Manual drives tests deterministically.
type Executor interface {
	// Post queues fn. It never blocks and is safe from any goroutine.
	Post(fn func())
	// AfterFunc runs fn on the executor after d.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Loop is an Executor backed by one goroutine.
type Loop struct {
	name string

	mu     sync.Mutex
	queue  []func()
	closed bool
	signal chan struct{}
}

// New returns a Loop; call Run to start processing.
func New(name string) *Loop {
	return &Loop{name: name, signal: make(chan struct{}, 1)}
}

// Post queues fn. Work posted after the loop stops is dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// Run processes posted work until ctx is done. A panicking callback is
// logged and the loop keeps going.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.signal:
		}
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			batch := l.queue
			l.queue = nil
			l.mu.Unlock()

			for _, fn := range batch {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				l.run(fn)
			}
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("loop %s: recovered from panic: %v", l.name, r)
		}
	}()
	fn()
}

// AfterFunc schedules fn to be posted after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.cancelled() {
				return
			}
			fn()
		})
	})
	return t
}

// loopTimer also guards the posted callback, so a Stop issued on the loop
// after the timer fired but before the callback ran still wins.
type loopTimer struct {
	timer   *time.Timer
	mu      sync.Mutex
	stopped bool
}

func (t *loopTimer) Stop() bool {
	t.mu.Lock()
	already := t.stopped
	t.stopped = true
	t.mu.Unlock()
	return t.timer.Stop() && !already
}

func (t *loopTimer) cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
