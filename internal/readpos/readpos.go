// Package readpos restores and persists where a user was in a conversation.
// Bookmarks live in the local kv cache, never in the live store.
package readpos

import (
	"context"
	"log"
	"time"

	"github.com/daijir/scripture-habit/internal/kv"
	"github.com/daijir/scripture-habit/internal/loop"
	"github.com/daijir/scripture-habit/internal/models"
)

// DefaultDebounce bounds how often scroll positions are persisted.
const DefaultDebounce = 500 * time.Millisecond

const kvTimeout = 2 * time.Second

// Anchor names the rule that chose a restore position.
type Anchor string

const (
	AnchorBookmark    Anchor = "bookmark"
	AnchorFirstUnread Anchor = "first_unread"
	AnchorBottom      Anchor = "bottom"
)

// Position is where to scroll on entry. Index is into the loaded list; it is
// -1 with an empty MessageID when nothing is loaded.
type Position struct {
	Anchor    Anchor `json:"anchor"`
	MessageID string `json:"messageId,omitempty"`
	Index     int    `json:"index"`
}

// Restore picks the entry position. Exactly one rule applies, checked in
// order: the bookmark if its message is loaded; the first unread message if
// any are unread; otherwise the bottom. msgs is the ordered tail of a
// conversation holding total messages, of which readCount are acknowledged.
func Restore(msgs []models.Message, bookmark *models.ScrollBookmark, readCount, total int) Position {
	if bookmark != nil && bookmark.MessageID != "" {
		for i, m := range msgs {
			if m.ID == bookmark.MessageID {
				return Position{Anchor: AnchorBookmark, MessageID: m.ID, Index: i}
			}
		}
	}
	if total < len(msgs) {
		total = len(msgs)
	}
	if readCount < 0 {
		readCount = 0
	}
	if readCount < total && len(msgs) > 0 {
		idx := readCount - (total - len(msgs))
		if idx < 0 {
			idx = 0
		}
		return Position{Anchor: AnchorFirstUnread, MessageID: msgs[idx].ID, Index: idx}
	}
	if len(msgs) == 0 {
		return Position{Anchor: AnchorBottom, Index: -1}
	}
	last := len(msgs) - 1
	return Position{Anchor: AnchorBottom, MessageID: msgs[last].ID, Index: last}
}

// AckCount is the read count to write back: never below what is stored.
func AckCount(stored, loaded int) int {
	if stored > loaded {
		return stored
	}
	return loaded
}

// State is the tracker's lifecycle for the open conversation.
type State string

const (
	StateIdle     State = "idle"
	StateAwaiting State = "awaiting_messages"
	StateRestored State = "restored"
)

// Tracker follows one user's open conversation. It must only be used from
// its executor.
type Tracker struct {
	exec     loop.Executor
	kv       kv.Store
	userID   string
	debounce time.Duration

	groupID   string
	state     State
	bookmark  *models.ScrollBookmark
	pending   loop.Timer
	pendingID string

	// OnRestore is called once per entry with the chosen position.
	OnRestore func(groupID string, pos Position)
	// Now stamps saved bookmarks.
	Now func() time.Time
}

// NewTracker returns an idle tracker. A non-positive debounce uses
// DefaultDebounce.
func NewTracker(exec loop.Executor, store kv.Store, userID string, debounce time.Duration) *Tracker {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Tracker{
		exec:     exec,
		kv:       store,
		userID:   userID,
		debounce: debounce,
		state:    StateIdle,
		Now:      time.Now,
	}
}

// State returns the lifecycle state.
func (t *Tracker) State() State { return t.state }

// GroupID returns the open conversation, if any.
func (t *Tracker) GroupID() string { return t.groupID }

// Enter opens groupID and loads its bookmark. Restoration happens on the
// first OnMessages call after Enter.
func (t *Tracker) Enter(groupID string) {
	if t.groupID != "" {
		t.Leave()
	}
	t.groupID = groupID
	t.state = StateAwaiting
	t.bookmark = nil

	ctx, cancel := context.WithTimeout(context.Background(), kvTimeout)
	defer cancel()
	var bm models.ScrollBookmark
	ok, err := kv.GetValue(ctx, t.kv, kv.BookmarkKey(t.userID, groupID), &bm)
	if err != nil {
		log.Printf("readpos: load bookmark %s/%s: %v", t.userID, groupID, err)
	}
	if ok {
		t.bookmark = &bm
	}
}

// OnMessages feeds a message snapshot of the open conversation. The first
// call after Enter resolves and reports the restore position.
func (t *Tracker) OnMessages(groupID string, msgs []models.Message, readCount, total int) (Position, bool) {
	if groupID != t.groupID || t.state != StateAwaiting {
		return Position{}, false
	}
	pos := Restore(msgs, t.bookmark, readCount, total)
	t.state = StateRestored
	if t.OnRestore != nil {
		t.OnRestore(groupID, pos)
	}
	return pos, true
}

// Scroll records the top-most visible message. Persistence is debounced;
// only the last message seen in a burst is written.
func (t *Tracker) Scroll(messageID string) {
	if t.groupID == "" || messageID == "" {
		return
	}
	t.pendingID = messageID
	if t.pending != nil {
		t.pending.Stop()
	}
	groupID := t.groupID
	t.pending = t.exec.AfterFunc(t.debounce, func() {
		if t.groupID != groupID {
			return
		}
		t.flush()
	})
}

// Leave persists any pending bookmark and closes the conversation.
func (t *Tracker) Leave() {
	if t.pending != nil {
		t.pending.Stop()
		t.flush()
	}
	t.groupID = ""
	t.state = StateIdle
	t.bookmark = nil
}

func (t *Tracker) flush() {
	t.pending = nil
	if t.pendingID == "" || t.groupID == "" {
		return
	}
	bm := models.ScrollBookmark{GroupID: t.groupID, MessageID: t.pendingID, SavedAt: t.Now().UnixMilli()}
	t.pendingID = ""
	t.bookmark = &bm

	ctx, cancel := context.WithTimeout(context.Background(), kvTimeout)
	defer cancel()
	if err := kv.SetValue(ctx, t.kv, kv.BookmarkKey(t.userID, bm.GroupID), bm); err != nil {
		log.Printf("readpos: save bookmark %s/%s: %v", t.userID, bm.GroupID, err)
	}
}

// Forget removes the stored bookmark, as when the user leaves the group.
func (t *Tracker) Forget(ctx context.Context, groupID string) error {
	return t.kv.Remove(ctx, kv.BookmarkKey(t.userID, groupID))
}
