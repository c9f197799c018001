package mutation

import (
	"context"
	"fmt"
	"time"

	"github.com/daijir/scripture-habit/internal/models"
	"github.com/daijir/scripture-habit/internal/readpos"
	"github.com/daijir/scripture-habit/internal/store"
	"github.com/daijir/scripture-habit/internal/sysmsg"
	"github.com/daijir/scripture-habit/internal/timeutil"
	"github.com/daijir/scripture-habit/pkg/utils"
)

// SendMessage posts a chat message. replyTo may be nil.
func (c *Coordinator) SendMessage(ctx context.Context, actor Actor, groupID, text string, replyTo *models.ReplyRef) (models.Message, error) {
	if err := utils.ValidateMessageText(text); err != nil {
		return models.Message{}, err
	}
	if err := c.requireMember(ctx, actor.UserID, groupID); err != nil {
		return models.Message{}, err
	}

	now := c.Now()
	msg := models.Message{
		ID:             newMessageID(now),
		GroupID:        groupID,
		SenderID:       actor.UserID,
		SenderNickname: actor.Nickname,
		Text:           text,
		CreatedAt:      now.UnixMilli(),
		ReplyTo:        replyTo,
	}
	if msg.ReplyTo != nil {
		msg.ReplyTo.Preview = models.Preview(msg.ReplyTo.Preview)
	}
	path := store.MessagePath(groupID, msg.ID)
	if err := c.store.Write(ctx, path, msg.Fields(), store.WriteOptions{}); err != nil {
		return models.Message{}, fmt.Errorf("send message: %w", err)
	}

	c.recordGroupActivity(ctx, actor, msg, now)
	c.touchProfile(ctx, actor.UserID, now)
	return msg, nil
}

// postSystem writes a system message and counts it. It returns the message
// id, or "" when the write failed.
func (c *Coordinator) postSystem(ctx context.Context, groupID string, m sysmsg.Message, at time.Time) string {
	msg := models.Message{
		ID:            newMessageID(at),
		GroupID:       groupID,
		SenderID:      models.SystemSender,
		Text:          m.Text(),
		CreatedAt:     at.UnixMilli(),
		SystemType:    string(m.Type),
		SystemPayload: m.Payload(),
	}
	path := store.MessagePath(groupID, msg.ID)
	if err := c.store.Write(ctx, path, msg.Fields(), store.WriteOptions{}); err != nil {
		c.sideEffect("post "+string(m.Type), path, err)
		return ""
	}
	c.recordGroupActivity(ctx, Actor{UserID: models.SystemSender}, msg, at)
	return msg.ID
}

// recordGroupActivity applies the group-level side effects of a new message:
// the message counter for every message, and for user messages the
// last-message metadata and the author's last-active time. Notes also count
// toward the note counter and the day's activity set.
func (c *Coordinator) recordGroupActivity(ctx context.Context, actor Actor, msg models.Message, at time.Time) {
	path := store.GroupPath(msg.GroupID)
	today := timeutil.DateIn(at, actor.location())

	err := c.store.Update(ctx, path, func(cur store.Document) (store.Fields, error) {
		if !cur.Exists {
			return nil, nil
		}
		f := store.Fields{"messageCount": store.Inc(1)}
		if msg.IsSystem() {
			return f, nil
		}

		kind := models.LastMessageText
		if msg.IsNote {
			kind = models.LastMessageNote
		}
		f["lastMessage"] = models.LastMessage{
			MessageID:      msg.ID,
			AuthorID:       msg.SenderID,
			AuthorNickname: msg.SenderNickname,
			Timestamp:      msg.CreatedAt,
			Type:           kind,
			Preview:        models.Preview(msg.Text),
		}.Fields()
		f["memberLastActive."+msg.SenderID] = msg.CreatedAt

		if msg.IsNote {
			f["noteCount"] = store.Inc(1)
			g := models.DecodeGroup(cur)
			if g.DailyActivity.Date == today {
				f["dailyActivity.activeMembers"] = store.Union(msg.SenderID)
			} else {
				f["dailyActivity"] = map[string]interface{}{
					"date":          today,
					"activeMembers": []interface{}{msg.SenderID},
				}
			}
		}
		return f, nil
	})
	c.sideEffect("record group activity", path, err)
}

// EditMessage replaces the text of the actor's own message.
func (c *Coordinator) EditMessage(ctx context.Context, actor Actor, groupID, messageID, text string) error {
	if err := utils.ValidateMessageText(text); err != nil {
		return err
	}
	now := c.Now()
	path := store.MessagePath(groupID, messageID)
	err := c.store.Update(ctx, path, func(cur store.Document) (store.Fields, error) {
		if !cur.Exists {
			return nil, ErrNoMessage
		}
		m := models.DecodeMessage(cur)
		if m.IsSystem() {
			return nil, ErrSystemEdit
		}
		if m.SenderID != actor.UserID {
			return nil, ErrNotAuthor
		}
		return store.Fields{"text": text, "edited": true, "editedAt": now.UnixMilli()}, nil
	})
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	c.refreshLastMessagePreview(ctx, groupID, messageID, text)
	return nil
}

func (c *Coordinator) refreshLastMessagePreview(ctx context.Context, groupID, messageID, text string) {
	path := store.GroupPath(groupID)
	err := c.store.Update(ctx, path, func(cur store.Document) (store.Fields, error) {
		g := models.DecodeGroup(cur)
		if g.LastMessage == nil || g.LastMessage.MessageID != messageID {
			return nil, nil
		}
		return store.Fields{"lastMessage.preview": models.Preview(text)}, nil
	})
	c.sideEffect("refresh last message", path, err)
}

// DeleteMessage removes the actor's own message. Deleting a shared note's
// message also unlinks it from the note.
func (c *Coordinator) DeleteMessage(ctx context.Context, actor Actor, groupID, messageID string) error {
	path := store.MessagePath(groupID, messageID)
	doc, err := c.store.Get(ctx, path)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if !doc.Exists {
		return ErrNoMessage
	}
	m := models.DecodeMessage(doc)
	if m.IsSystem() {
		return ErrSystemEdit
	}
	if m.SenderID != actor.UserID {
		return ErrNotAuthor
	}
	if err := c.store.Delete(ctx, path); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	counters := store.Fields{"messageCount": store.Inc(-1)}
	if m.IsNote {
		counters["noteCount"] = store.Inc(-1)
	}
	groupPath := store.GroupPath(groupID)
	c.sideEffect("decrement counters", groupPath, c.store.Write(ctx, groupPath, counters, store.Merge))

	if m.IsNote && m.NoteID != "" {
		notePath := store.NotePath(actor.UserID, m.NoteID)
		err := c.store.Update(ctx, notePath, func(cur store.Document) (store.Fields, error) {
			if !cur.Exists {
				return nil, nil
			}
			return store.Fields{
				"groupMessageIds." + groupID: store.DeleteField{},
				"sharedGroupIds":             store.Remove(groupID),
			}, nil
		})
		c.sideEffect("unlink note", notePath, err)
	}
	return nil
}

// ToggleReaction adds the actor's reaction to a message, or removes it if
// present. The decision is made against the stored reaction set inside an
// atomic update, so repeated toggles never leave more than one reaction per
// user. It reports whether the reaction is now present.
func (c *Coordinator) ToggleReaction(ctx context.Context, actor Actor, groupID, messageID string) (bool, error) {
	var added bool
	path := store.MessagePath(groupID, messageID)
	err := c.store.Update(ctx, path, func(cur store.Document) (store.Fields, error) {
		if !cur.Exists {
			return nil, ErrNoMessage
		}
		msg := models.DecodeMessage(cur)
		added = !msg.HasReactionFrom(actor.UserID)
		next := make([]interface{}, 0, len(msg.Reactions)+1)
		for _, r := range msg.Reactions {
			if r.UserID != actor.UserID {
				next = append(next, r.Fields())
			}
		}
		if added {
			next = append(next, models.Reaction{UserID: actor.UserID, Nickname: actor.Nickname}.Fields())
		}
		return store.Fields{"reactions": next}, nil
	})
	if err != nil {
		return false, fmt.Errorf("toggle reaction: %w", err)
	}
	return added, nil
}

// AcknowledgeRead records that loaded messages of a group have been seen.
// The stored count only grows.
func (c *Coordinator) AcknowledgeRead(ctx context.Context, userID, groupID string, loaded int) error {
	now := c.Now()
	path := store.ReadStatePath(userID, groupID)
	err := c.store.Update(ctx, path, func(cur store.Document) (store.Fields, error) {
		stored := models.DecodeReadState(cur).ReadMessageCount
		next := readpos.AckCount(stored, loaded)
		if cur.Exists && next == stored {
			return nil, nil
		}
		return store.Fields{"readMessageCount": next, "lastReadAt": now.UnixMilli()}, nil
	})
	if err != nil {
		return fmt.Errorf("acknowledge read: %w", err)
	}
	return nil
}

func (c *Coordinator) requireMember(ctx context.Context, userID, groupID string) error {
	doc, err := c.store.Get(ctx, store.GroupPath(groupID))
	if err != nil {
		return err
	}
	if !models.DecodeGroup(doc).HasMember(userID) {
		return ErrNotMember
	}
	return nil
}
