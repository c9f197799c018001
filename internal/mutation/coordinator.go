// Package mutation performs user-initiated writes. Every operation commits
// its primary write first and then applies declared side effects (counters,
// activity sets, timestamps, last-message metadata). Side effects are
// idempotent or read-modify-write, are logged on failure, and never roll
// back the primary write.
package mutation

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/daijir/scripture-habit/internal/sidesvc"
	"github.com/daijir/scripture-habit/internal/store"
	"github.com/daijir/scripture-habit/internal/timeutil"
)

var (
	ErrNotAuthor  = errors.New("mutation: only the author can change this message")
	ErrNotOwner   = errors.New("mutation: only the group owner can do this")
	ErrNotMember  = errors.New("mutation: not a member of this group")
	ErrNoProfile  = errors.New("mutation: user profile does not exist")
	ErrNoMessage  = errors.New("mutation: message does not exist")
	ErrNoNote     = errors.New("mutation: note does not exist")
	ErrSystemEdit = errors.New("mutation: system messages cannot be changed")
)

// SideService is the subset of the HTTP side service the coordinator calls.
type SideService interface {
	JoinGroup(ctx context.Context, tokens sidesvc.TokenSource, inviteCode string) (sidesvc.JoinResult, error)
	LeaveGroup(ctx context.Context, tokens sidesvc.TokenSource, groupID string) error
	DeleteGroup(ctx context.Context, tokens sidesvc.TokenSource, groupID string) error
}

// Actor identifies the user performing a mutation.
type Actor struct {
	UserID   string
	Nickname string
	Timezone string
}

func (a Actor) location() *time.Location {
	return timeutil.LoadLocation(a.Timezone)
}

// Coordinator issues writes against the live store.
type Coordinator struct {
	store store.Store
	side  SideService

	// Now is the clock used for createdAt values and calendar dates.
	Now func() time.Time
	// OnSideEffectError, when set, observes every failed side effect after
	// it has been logged.
	OnSideEffectError func(op, path string, err error)
}

func New(st store.Store, side SideService) *Coordinator {
	return &Coordinator{store: st, side: side, Now: time.Now}
}

// newMessageID returns an id that sorts with creation time.
func newMessageID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}

func (c *Coordinator) sideEffect(op, path string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, store.ErrPermissionDenied) {
		log.Printf("mutation: %s on %s skipped: %v", op, path, err)
	} else {
		log.Printf("⚠️ mutation: %s on %s failed: %v", op, path, err)
	}
	if c.OnSideEffectError != nil {
		c.OnSideEffectError(op, path, err)
	}
}

// touchProfile records the user's last activity.
func (c *Coordinator) touchProfile(ctx context.Context, userID string, at time.Time) {
	path := store.UserPath(userID)
	err := c.store.Write(ctx, path, store.Fields{"lastActiveAt": at.UnixMilli()}, store.Merge)
	c.sideEffect("touch profile", path, err)
}
