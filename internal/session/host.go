package session

import (
	"context"

	"github.com/daijir/scripture-habit/internal/auth"
	"github.com/daijir/scripture-habit/internal/kv"
	"github.com/daijir/scripture-habit/internal/loop"
	"github.com/daijir/scripture-habit/internal/mutation"
	"github.com/daijir/scripture-habit/internal/store"
)

// Host keeps exactly one Session alive for whoever is signed in to a
// Provider. Identity changes are posted onto the executor, where the old
// session is closed before the new one starts.
type Host struct {
	ctx       context.Context
	exec      loop.Executor
	st        store.Store
	bookmarks kv.Store
	coord     *mutation.Coordinator
	opts      Options

	current *Session

	// OnSession is called on the executor with each new session, or nil
	// after sign-out.
	OnSession func(*Session)
}

func NewHost(ctx context.Context, exec loop.Executor, st store.Store, bookmarks kv.Store, coord *mutation.Coordinator, opts Options) *Host {
	return &Host{ctx: ctx, exec: exec, st: st, bookmarks: bookmarks, coord: coord, opts: opts}
}

// Bind follows p's identity changes.
func (h *Host) Bind(p *auth.Provider) {
	p.OnChange(func(id auth.Identity, signedIn bool) {
		h.exec.Post(func() {
			if signedIn {
				h.switchTo(id.UserID)
			} else {
				h.switchTo("")
			}
		})
	})
	if id, ok := p.Current(); ok {
		h.exec.Post(func() { h.switchTo(id.UserID) })
	}
}

// Current returns the live session; it must be called on the executor.
func (h *Host) Current() *Session {
	return h.current
}

func (h *Host) switchTo(userID string) {
	if h.current != nil && h.current.UserID() == userID {
		return
	}
	if h.current != nil {
		h.current.Close()
		h.current = nil
	}
	if userID != "" {
		h.current = New(h.ctx, h.exec, h.st, h.bookmarks, h.coord, userID, h.opts)
		h.current.Start()
	}
	if h.OnSession != nil {
		h.OnSession(h.current)
	}
}

// Close ends the live session; it must be called on the executor.
func (h *Host) Close() {
	h.switchTo("")
}
