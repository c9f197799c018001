package mutation

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/daijir/scripture-habit/internal/derived"
	"github.com/daijir/scripture-habit/internal/models"
	"github.com/daijir/scripture-habit/internal/sidesvc"
	"github.com/daijir/scripture-habit/internal/store"
	"github.com/daijir/scripture-habit/internal/sysmsg"
	"github.com/daijir/scripture-habit/pkg/utils"
)

const (
	inviteCodeLength  = 6
	inviteCodeCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// CreateGroup creates a group owned by the actor and adds it to the
// actor's profile.
func (c *Coordinator) CreateGroup(ctx context.Context, actor Actor, name string) (models.Group, error) {
	if err := utils.ValidateGroupName(name); err != nil {
		return models.Group{}, err
	}
	code, err := newInviteCode()
	if err != nil {
		return models.Group{}, fmt.Errorf("create group: %w", err)
	}
	id := uuid.NewString()
	path := store.GroupPath(id)
	if err := c.store.Write(ctx, path, models.NewGroupFields(name, actor.UserID, code), store.WriteOptions{}); err != nil {
		return models.Group{}, fmt.Errorf("create group: %w", err)
	}

	profilePath := store.UserPath(actor.UserID)
	err = c.store.Write(ctx, profilePath, store.Fields{"groupIds": store.Union(id)}, store.Merge)
	c.sideEffect("add group to profile", profilePath, err)

	return models.Group{
		ID:         id,
		Name:       name,
		OwnerID:    actor.UserID,
		Members:    []string{actor.UserID},
		InviteCode: code,
		CreatedAt:  c.Now().UnixMilli(),
		Exists:     true,
	}, nil
}

// JoinGroup joins by invite code through the side service, which owns
// membership. The join announcement and profile link are side effects.
func (c *Coordinator) JoinGroup(ctx context.Context, actor Actor, tokens sidesvc.TokenSource, inviteCode string) (sidesvc.JoinResult, error) {
	if err := utils.ValidateInviteCode(inviteCode); err != nil {
		return sidesvc.JoinResult{}, err
	}
	res, err := c.side.JoinGroup(ctx, tokens, utils.NormalizeInviteCode(inviteCode))
	if err != nil {
		return sidesvc.JoinResult{}, err
	}

	profilePath := store.UserPath(actor.UserID)
	err = c.store.Write(ctx, profilePath, store.Fields{"groupIds": store.Union(res.GroupID)}, store.Merge)
	c.sideEffect("add group to profile", profilePath, err)
	c.postSystem(ctx, res.GroupID, sysmsg.UserJoined(actor.Nickname), c.Now())
	return res, nil
}

// LeaveGroup leaves through the side service. The departure is announced
// before the call, while the actor can still write to the group.
func (c *Coordinator) LeaveGroup(ctx context.Context, actor Actor, tokens sidesvc.TokenSource, groupID string) error {
	if err := c.requireMember(ctx, actor.UserID, groupID); err != nil {
		return err
	}
	announced := c.postSystem(ctx, groupID, sysmsg.UserLeft(actor.Nickname), c.Now())
	if err := c.side.LeaveGroup(ctx, tokens, groupID); err != nil {
		if announced != "" {
			c.retract(ctx, groupID, announced)
		}
		return err
	}
	c.forgetGroup(ctx, actor.UserID, groupID)
	return nil
}

// DeleteGroup deletes an owned group through the side service.
func (c *Coordinator) DeleteGroup(ctx context.Context, actor Actor, tokens sidesvc.TokenSource, groupID string) error {
	doc, err := c.store.Get(ctx, store.GroupPath(groupID))
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if models.DecodeGroup(doc).OwnerID != actor.UserID {
		return ErrNotOwner
	}
	if err := c.side.DeleteGroup(ctx, tokens, groupID); err != nil {
		return err
	}
	c.forgetGroup(ctx, actor.UserID, groupID)
	return nil
}

// retract undoes an announcement whose action failed.
func (c *Coordinator) retract(ctx context.Context, groupID, messageID string) {
	path := store.MessagePath(groupID, messageID)
	if err := c.store.Delete(ctx, path); err != nil {
		c.sideEffect("retract announcement", path, err)
		return
	}
	groupPath := store.GroupPath(groupID)
	c.sideEffect("decrement counters", groupPath,
		c.store.Write(ctx, groupPath, store.Fields{"messageCount": store.Inc(-1)}, store.Merge))
}

func (c *Coordinator) forgetGroup(ctx context.Context, userID, groupID string) {
	profilePath := store.UserPath(userID)
	err := c.store.Write(ctx, profilePath, store.Fields{"groupIds": store.Remove(groupID)}, store.Merge)
	c.sideEffect("remove group from profile", profilePath, err)

	rsPath := store.ReadStatePath(userID, groupID)
	if err := c.store.Delete(ctx, rsPath); err != nil && !errors.Is(err, store.ErrNotFound) {
		c.sideEffect("delete read state", rsPath, err)
	}
}

// ReconcileActivity writes the locally computed daily-activity set back to
// the group when it knows members the stored set lacks. Last write wins.
func (c *Coordinator) ReconcileActivity(ctx context.Context, g models.Group, today string, loc *time.Location) bool {
	da, ok := derived.ActivityWriteBack(g, today, loc)
	if !ok {
		return false
	}
	members := make([]interface{}, len(da.ActiveMembers))
	for i, uid := range da.ActiveMembers {
		members[i] = uid
	}
	path := store.GroupPath(g.ID)
	err := c.store.Write(ctx, path, store.Fields{
		"dailyActivity": map[string]interface{}{"date": da.Date, "activeMembers": members},
	}, store.Merge)
	c.sideEffect("reconcile activity", path, err)
	return err == nil
}

func newInviteCode() (string, error) {
	buf := make([]byte, inviteCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = inviteCodeCharset[int(b)%len(inviteCodeCharset)]
	}
	return string(buf), nil
}
