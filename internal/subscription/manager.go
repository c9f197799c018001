// Package subscription owns a session's live store subscriptions. There is
// at most one subscription per Kind; switching the key of a kind tears the
// old subscription down before the new one opens, and any callback still in
// flight for the old key is dropped by a generation check on the loop.
package subscription

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/daijir/scripture-habit/internal/loop"
	"github.com/daijir/scripture-habit/internal/store"
)

// Kind names a stream slot.
type Kind string

const (
	KindProfile    Kind = "profile"
	KindReadStates Kind = "readStates"
	KindGroup      Kind = "activeGroup"
	KindMessages   Kind = "activeMessages"
)

// GroupKind is the slot for one dashboard group document.
func GroupKind(groupID string) Kind {
	return Kind("group:" + groupID)
}

// State is the lifecycle of one subscription slot.
type State string

const (
	StateIdle      State = "idle"
	StateLoading   State = "loading"
	StateLive      State = "live"
	StateDenied    State = "denied"
	StateExhausted State = "exhausted"
	StateFailed    State = "failed"
)

// Handle identifies one subscription; it goes stale once its slot is
// resubscribed or torn down.
type Handle struct {
	Kind Kind
	Key  string
	gen  uint64
}

type slot struct {
	handle    Handle
	cancel    func()
	state     State
	snapshots int
	timers    map[int]loop.Timer
	nextTimer int
}

// Manager must only be used from its executor.
type Manager struct {
	ctx    context.Context
	exec   loop.Executor
	st     store.Store
	gen    uint64
	slots  map[Kind]*slot
	resets map[Kind][]func()

	// OnError receives surfaced failures. Permission-denied is never passed.
	OnError func(kind Kind, err error)
	// OnExhausted is called once per slot that hits a quota failure.
	OnExhausted func(kind Kind, err error)
}

// New returns a Manager that subscribes on st and runs callbacks on exec.
func New(ctx context.Context, exec loop.Executor, st store.Store) *Manager {
	return &Manager{
		ctx:    ctx,
		exec:   exec,
		st:     st,
		slots:  make(map[Kind]*slot),
		resets: make(map[Kind][]func()),
	}
}

// OnReset registers fn to run whenever the kind's slot is torn down, so
// state derived from the old key is cleared before the new key delivers.
func (m *Manager) OnReset(kind Kind, fn func()) {
	m.resets[kind] = append(m.resets[kind], fn)
}

// Subscribe opens target in the kind's slot. Subscribing the key already
// held is a no-op returning the live handle.
func (m *Manager) Subscribe(kind Kind, key string, target store.Target, onSnapshot func(store.Snapshot)) Handle {
	if cur, ok := m.slots[kind]; ok && cur.handle.Key == key {
		return cur.handle
	}
	m.teardown(kind)

	m.gen++
	h := Handle{Kind: kind, Key: key, gen: m.gen}
	s := &slot{handle: h, state: StateLoading, timers: make(map[int]loop.Timer)}
	m.slots[kind] = s

	s.cancel = m.st.Subscribe(m.ctx, target,
		func(snap store.Snapshot) {
			m.exec.Post(func() {
				cur, ok := m.current(h)
				if !ok {
					return
				}
				cur.state = StateLive
				cur.snapshots++
				onSnapshot(snap)
			})
		},
		func(err error) {
			m.exec.Post(func() {
				cur, ok := m.current(h)
				if !ok {
					return
				}
				m.fail(cur, err)
			})
		},
	)
	return h
}

func (m *Manager) fail(s *slot, err error) {
	kind := s.handle.Kind
	switch {
	case errors.Is(err, store.ErrPermissionDenied):
		// Expected while membership or the account is changing.
		s.state = StateDenied
	case errors.Is(err, store.ErrResourceExhausted):
		s.state = StateExhausted
		log.Printf("subscription %s(%s): resource exhausted: %v", kind, s.handle.Key, err)
		if m.OnExhausted != nil {
			m.OnExhausted(kind, err)
		}
	default:
		s.state = StateFailed
		log.Printf("subscription %s(%s): %v", kind, s.handle.Key, err)
		if m.OnError != nil {
			m.OnError(kind, err)
		}
	}
}

// current returns the slot if h is still its live handle.
func (m *Manager) current(h Handle) (*slot, bool) {
	s, ok := m.slots[h.Kind]
	if !ok || s.handle.gen != h.gen {
		return nil, false
	}
	return s, true
}

// Unsubscribe tears down h's slot if h is still live.
func (m *Manager) Unsubscribe(h Handle) {
	if _, ok := m.current(h); ok {
		m.teardown(h.Kind)
	}
}

// Clear tears down the kind's slot whatever its key.
func (m *Manager) Clear(kind Kind) {
	m.teardown(kind)
}

// Close tears down every slot.
func (m *Manager) Close() {
	for kind := range m.slots {
		m.teardown(kind)
	}
}

func (m *Manager) teardown(kind Kind) {
	s, ok := m.slots[kind]
	if !ok {
		return
	}
	delete(m.slots, kind)
	for _, t := range s.timers {
		t.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	for _, fn := range m.resets[kind] {
		fn()
	}
}

// state returns the lifecycle state of the kind's slot.
func (m *Manager) state(kind Kind) State {
	if s, ok := m.slots[kind]; ok {
		return s.state
	}
	return StateIdle
}

// delivered counts snapshots applied in the kind's slot since it opened; it
// is 1 inside the first snapshot callback.
func (m *Manager) delivered(kind Kind) int {
	if s, ok := m.slots[kind]; ok {
		return s.snapshots
	}
	return 0
}

// Kinds lists every open slot.
func (m *Manager) Kinds() []Kind {
	out := make([]Kind, 0, len(m.slots))
	for k := range m.slots {
		out = append(out, k)
	}
	return out
}

// Exhausted reports whether any slot is in the quota-failure state.
func (m *Manager) Exhausted() bool {
	for _, s := range m.slots {
		if s.state == StateExhausted {
			return true
		}
	}
	return false
}

// Every runs fn on the executor every interval for as long as h stays live.
// The returned func stops it early.
func (m *Manager) Every(h Handle, interval time.Duration, fn func()) (stop func()) {
	s, ok := m.current(h)
	if !ok {
		return func() {}
	}
	s.nextTimer++
	id := s.nextTimer

	var schedule func()
	schedule = func() {
		s.timers[id] = m.exec.AfterFunc(interval, func() {
			if _, ok := m.current(h); !ok {
				return
			}
			fn()
			if _, still := s.timers[id]; still {
				schedule()
			}
		})
	}
	schedule()

	return func() {
		if t, ok := s.timers[id]; ok {
			t.Stop()
			delete(s.timers, id)
		}
	}
}
