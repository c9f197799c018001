package mutation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/daijir/scripture-habit/internal/models"
	"github.com/daijir/scripture-habit/internal/store"
	"github.com/daijir/scripture-habit/internal/streak"
	"github.com/daijir/scripture-habit/internal/sysmsg"
	"github.com/daijir/scripture-habit/pkg/utils"
)

// fanOutLimit bounds concurrent per-group posts.
const fanOutLimit = 4

// NoteInput is a study note to save and share.
type NoteInput struct {
	Scripture string
	Chapter   string
	Text      string
	// GroupIDs are the groups to share the note with. Groups the user is not
	// a member of are rejected.
	GroupIDs []string
}

// PostedNote reports what PostNote committed.
type PostedNote struct {
	Note models.PersonalNote
	// MessageIDs maps group id to the note's message id in that group.
	MessageIDs map[string]string
	// FailedGroups lists groups the note message could not be written to.
	FailedGroups []string
	// CheckIn is the streak effect; nil when the profile update failed.
	CheckIn *streak.CheckIn
}

// PostNote saves a personal note, applies the day's check-in to the
// profile, and shares the note to each selected group. In every group the
// streak announcement (and level-up, when one happened) is stamped strictly
// after the note message.
func (c *Coordinator) PostNote(ctx context.Context, userID string, in NoteInput) (PostedNote, error) {
	if err := utils.ValidateNote(in.Scripture, in.Chapter, in.Text); err != nil {
		return PostedNote{}, err
	}
	profileDoc, err := c.store.Get(ctx, store.UserPath(userID))
	if err != nil {
		return PostedNote{}, fmt.Errorf("post note: %w", err)
	}
	profile := models.DecodeUserProfile(profileDoc)
	if !profile.Exists {
		return PostedNote{}, ErrNoProfile
	}
	groups := dedupe(in.GroupIDs)
	for _, gid := range groups {
		if !profile.IsMember(gid) {
			return PostedNote{}, fmt.Errorf("post note to %s: %w", gid, ErrNotMember)
		}
	}

	now := c.Now()
	note := models.PersonalNote{
		ID:             uuid.NewString(),
		OwnerID:        userID,
		Scripture:      in.Scripture,
		Chapter:        in.Chapter,
		Text:           in.Text,
		CreatedAt:      now.UnixMilli(),
		SharedGroupIDs: groups,
	}
	notePath := store.NotePath(userID, note.ID)
	if err := c.store.Write(ctx, notePath, note.Fields(), store.WriteOptions{}); err != nil {
		return PostedNote{}, fmt.Errorf("post note: %w", err)
	}

	res := PostedNote{Note: note, MessageIDs: make(map[string]string)}
	if ci, ok := c.checkIn(ctx, userID, now); ok {
		res.CheckIn = &ci
	}

	actor := Actor{UserID: userID, Nickname: profile.Nickname, Timezone: profile.Timezone}
	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(fanOutLimit)
	for _, gid := range groups {
		gid := gid
		eg.Go(func() error {
			mid, ok := c.shareNote(egCtx, actor, note, gid, now, res.CheckIn)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				res.MessageIDs[gid] = mid
			} else {
				res.FailedGroups = append(res.FailedGroups, gid)
			}
			return nil
		})
	}
	_ = eg.Wait()
	sort.Strings(res.FailedGroups)

	if len(res.MessageIDs) > 0 {
		fields := store.Fields{}
		for gid, mid := range res.MessageIDs {
			fields["groupMessageIds."+gid] = mid
		}
		c.sideEffect("link note messages", notePath, c.store.Write(ctx, notePath, fields, store.Merge))
		res.Note.GroupMessageIDs = res.MessageIDs
	}
	return res, nil
}

// checkIn applies one qualifying action to the profile atomically.
func (c *Coordinator) checkIn(ctx context.Context, userID string, now time.Time) (streak.CheckIn, bool) {
	var ci streak.CheckIn
	path := store.UserPath(userID)
	err := c.store.Update(ctx, path, func(cur store.Document) (store.Fields, error) {
		p := models.DecodeUserProfile(cur)
		ci = streak.Apply(p.StreakCount, p.TotalStudyDays, p.LastPostDate, p.Today(now))
		return store.Fields{
			"streakCount":    ci.Result.Streak,
			"lastPostDate":   ci.Today,
			"totalStudyDays": ci.TotalStudyDays,
			"lastActiveAt":   now.UnixMilli(),
		}, nil
	})
	if err != nil {
		c.sideEffect("apply check-in", path, err)
		return streak.CheckIn{}, false
	}
	return ci, true
}

// shareNote writes the note message into one group followed by the
// check-in announcements, one millisecond apart.
func (c *Coordinator) shareNote(ctx context.Context, actor Actor, note models.PersonalNote, groupID string, at time.Time, ci *streak.CheckIn) (string, bool) {
	msg := models.Message{
		ID:             newMessageID(at),
		GroupID:        groupID,
		SenderID:       actor.UserID,
		SenderNickname: actor.Nickname,
		Text:           note.Text,
		CreatedAt:      at.UnixMilli(),
		IsNote:         true,
		NoteID:         note.ID,
		Scripture:      note.Scripture,
		Chapter:        note.Chapter,
	}
	path := store.MessagePath(groupID, msg.ID)
	if err := c.store.Write(ctx, path, msg.Fields(), store.WriteOptions{}); err != nil {
		c.sideEffect("share note", path, err)
		return "", false
	}
	c.recordGroupActivity(ctx, actor, msg, at)

	if ci == nil {
		return msg.ID, true
	}
	next := at
	if ci.Result.Announce() {
		next = next.Add(time.Millisecond)
		c.postSystem(ctx, groupID, sysmsg.StreakAnnouncement(actor.Nickname, ci.Result.Streak), next)
	}
	if ci.LeveledUp() {
		next = next.Add(time.Millisecond)
		c.postSystem(ctx, groupID, sysmsg.LevelUp(actor.Nickname, ci.Level), next)
	}
	return msg.ID, true
}

// EditNote updates a note and every group message linked to it.
func (c *Coordinator) EditNote(ctx context.Context, userID, noteID, scripture, chapter, text string) error {
	if err := utils.ValidateNote(scripture, chapter, text); err != nil {
		return err
	}
	now := c.Now()
	path := store.NotePath(userID, noteID)
	var note models.PersonalNote
	err := c.store.Update(ctx, path, func(cur store.Document) (store.Fields, error) {
		if !cur.Exists {
			return nil, ErrNoNote
		}
		note = models.DecodeNote(cur)
		return store.Fields{
			"scripture": scripture,
			"chapter":   chapter,
			"text":      text,
			"updatedAt": now.UnixMilli(),
		}, nil
	})
	if err != nil {
		return fmt.Errorf("edit note: %w", err)
	}

	for gid, mid := range note.GroupMessageIDs {
		msgPath := store.MessagePath(gid, mid)
		err := c.store.Update(ctx, msgPath, func(cur store.Document) (store.Fields, error) {
			if !cur.Exists {
				return nil, nil
			}
			return store.Fields{
				"text":      text,
				"scripture": scripture,
				"chapter":   chapter,
				"edited":    true,
				"editedAt":  now.UnixMilli(),
			}, nil
		})
		c.sideEffect("sync note message", msgPath, err)
		if err == nil {
			c.refreshLastMessagePreview(ctx, gid, mid, text)
		}
	}
	return nil
}

// DeleteNote removes a note and the messages it was shared as.
func (c *Coordinator) DeleteNote(ctx context.Context, userID, noteID string) error {
	path := store.NotePath(userID, noteID)
	doc, err := c.store.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if !doc.Exists {
		return ErrNoNote
	}
	note := models.DecodeNote(doc)
	if err := c.store.Delete(ctx, path); err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	for gid, mid := range note.GroupMessageIDs {
		msgPath := store.MessagePath(gid, mid)
		if err := c.store.Delete(ctx, msgPath); err != nil {
			c.sideEffect("delete note message", msgPath, err)
			continue
		}
		groupPath := store.GroupPath(gid)
		err := c.store.Write(ctx, groupPath, store.Fields{
			"messageCount": store.Inc(-1),
			"noteCount":    store.Inc(-1),
		}, store.Merge)
		c.sideEffect("decrement counters", groupPath, err)
	}
	return nil
}

// BackfillNoteMessageIDs repairs notes shared before message ids were
// recorded by looking up each missing group's note message. It returns the
// number of mappings written.
func (c *Coordinator) BackfillNoteMessageIDs(ctx context.Context, userID string) (int, error) {
	snap, err := c.store.Query(ctx, store.Query{Collection: store.NotesPath(userID)})
	if err != nil {
		return 0, fmt.Errorf("backfill notes: %w", err)
	}
	fixed := 0
	for _, doc := range snap.Docs {
		note := models.DecodeNote(doc)
		fields := store.Fields{}
		for _, gid := range note.MissingMappings() {
			found, err := c.store.Query(ctx, store.Query{
				Collection: store.MessagesPath(gid),
				Filters: []store.Filter{
					{Field: "noteId", Op: store.OpEqual, Value: note.ID},
					{Field: "senderId", Op: store.OpEqual, Value: userID},
				},
				Limit: 1,
			})
			if err != nil {
				c.sideEffect("find note message", store.MessagesPath(gid), err)
				continue
			}
			if len(found.Docs) > 0 {
				fields["groupMessageIds."+gid] = found.Docs[0].ID
			}
		}
		if len(fields) == 0 {
			continue
		}
		if err := c.store.Write(ctx, doc.Path, fields, store.Merge); err != nil {
			c.sideEffect("backfill note", doc.Path, err)
			continue
		}
		fixed += len(fields)
	}
	return fixed, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
