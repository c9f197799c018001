package mutation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/daijir/scripture-habit/internal/models"
	"github.com/daijir/scripture-habit/internal/sidesvc"
	"github.com/daijir/scripture-habit/internal/store"
	"github.com/daijir/scripture-habit/internal/timeutil"
	"github.com/daijir/scripture-habit/pkg/utils"
)

// ProfileUpdate holds the editable profile fields; nil fields are unchanged.
type ProfileUpdate struct {
	Nickname *string
	Timezone *string
	Language *string
}

// EnsureProfile creates the user's profile on first sign-in. An existing
// profile is left untouched.
func (c *Coordinator) EnsureProfile(ctx context.Context, userID, nickname, timezone, language string) (models.UserProfile, error) {
	if err := utils.ValidateNickname(nickname); err != nil {
		return models.UserProfile{}, err
	}
	path := store.UserPath(userID)
	err := c.store.Update(ctx, path, func(cur store.Document) (store.Fields, error) {
		if cur.Exists {
			return nil, nil
		}
		return models.NewProfileFields(strings.TrimSpace(nickname), timezone, language), nil
	})
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("ensure profile: %w", err)
	}
	return c.Profile(ctx, userID)
}

// Profile reads the user's profile, failing with ErrNoProfile if missing.
func (c *Coordinator) Profile(ctx context.Context, userID string) (models.UserProfile, error) {
	doc, err := c.store.Get(ctx, store.UserPath(userID))
	if err != nil {
		return models.UserProfile{}, fmt.Errorf("read profile: %w", err)
	}
	p := models.DecodeUserProfile(doc)
	if !p.Exists {
		return models.UserProfile{}, ErrNoProfile
	}
	return p, nil
}

// ActorFor loads the identity fields mutations stamp onto messages.
func (c *Coordinator) ActorFor(ctx context.Context, userID string) (Actor, error) {
	p, err := c.Profile(ctx, userID)
	if err != nil {
		return Actor{}, err
	}
	return Actor{UserID: userID, Nickname: p.Nickname, Timezone: p.Timezone}, nil
}

// UpdateProfile changes nickname, timezone or language. An unknown timezone
// is rejected rather than silently falling back to UTC.
func (c *Coordinator) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) error {
	fields := store.Fields{}
	if upd.Nickname != nil {
		if err := utils.ValidateNickname(*upd.Nickname); err != nil {
			return err
		}
		fields["nickname"] = strings.TrimSpace(*upd.Nickname)
	}
	if upd.Timezone != nil {
		if !timeutil.ValidTimezone(*upd.Timezone) {
			return &utils.ValidationError{Field: "timezone", Message: "Unknown timezone"}
		}
		fields["timezone"] = *upd.Timezone
	}
	if upd.Language != nil {
		fields["language"] = strings.TrimSpace(*upd.Language)
	}
	if len(fields) == 0 {
		return nil
	}
	if _, err := c.Profile(ctx, userID); err != nil {
		return err
	}
	if err := c.store.Write(ctx, store.UserPath(userID), fields, store.Merge); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// DeleteAccount leaves every group and then deletes the profile. A group
// the side service refuses to let the user leave is logged and skipped, so
// a dead group cannot block deletion.
func (c *Coordinator) DeleteAccount(ctx context.Context, userID string, tokens sidesvc.TokenSource) error {
	p, err := c.Profile(ctx, userID)
	if err != nil {
		return err
	}
	actor := Actor{UserID: userID, Nickname: p.Nickname, Timezone: p.Timezone}
	for _, gid := range p.GroupIDs {
		if err := c.LeaveGroup(ctx, actor, tokens, gid); err != nil {
			c.sideEffect("leave group on account deletion", store.GroupPath(gid), err)
		}
	}
	if err := c.store.Delete(ctx, store.UserPath(userID)); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}
