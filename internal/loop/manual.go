package loop

import (
	"sort"
	"sync"
	"time"
)

// Manual is an Executor for tests. Posted work runs only when the test calls
// Drain, RunUntil or Advance; timers fire on a virtual clock.
type Manual struct {
	mu     sync.Mutex
	queue  []func()
	timers []*manualTimer
	now    time.Duration
	seq    int
	signal chan struct{}
}

// NewManual returns an idle Manual executor.
func NewManual() *Manual {
	return &Manual{signal: make(chan struct{}, 1)}
}

func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{at: m.now + d, seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// Drain runs queued work, including work queued while draining, and returns
// how many callbacks ran.
func (m *Manual) Drain() int {
	ran := 0
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return ran
		}
		fn := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		fn()
		ran++
	}
}

// RunUntil drains work as it arrives from other goroutines until cond holds
// or timeout passes. It reports whether cond held.
func (m *Manual) RunUntil(cond func() bool, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		m.Drain()
		if cond() {
			return true
		}
		select {
		case <-m.signal:
		case <-deadline:
			m.Drain()
			return cond()
		}
	}
}

// Advance moves the virtual clock forward, running due timers in deadline
// order and draining after each.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now + d
	m.mu.Unlock()
	m.Drain()
	for {
		m.mu.Lock()
		sort.SliceStable(m.timers, func(i, j int) bool {
			if m.timers[i].at == m.timers[j].at {
				return m.timers[i].seq < m.timers[j].seq
			}
			return m.timers[i].at < m.timers[j].at
		})
		var due *manualTimer
		for len(m.timers) > 0 {
			t := m.timers[0]
			if t.at > target {
				break
			}
			m.timers = m.timers[1:]
			if t.isStopped() {
				continue
			}
			due = t
			break
		}
		if due == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = due.at
		m.mu.Unlock()

		due.fire()
		m.Drain()
	}
}

// Pending reports how many timers are scheduled and not stopped.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.isStopped() {
			n++
		}
	}
	return n
}

type manualTimer struct {
	at  time.Duration
	seq int
	fn  func()

	mu      sync.Mutex
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (t *manualTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *manualTimer) fire() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.fn()
}
