package models

import (
	"github.com/daijir/scripture-habit/internal/store"
)

// LastMessage kinds.
const (
	LastMessageText = "text"
	LastMessageNote = "note"
)

// DailyActivity is the set of members who posted on Date.
type DailyActivity struct {
	Date          string   `json:"date"`
	ActiveMembers []string `json:"activeMembers"`
}

// LastMessage is the denormalized preview of a group's most recent post.
type LastMessage struct {
	MessageID      string `json:"messageId,omitempty"`
	AuthorID       string `json:"authorId"`
	AuthorNickname string `json:"authorNickname"`
	Timestamp      int64  `json:"timestamp"`
	Type           string `json:"type"`
	Preview        string `json:"preview"`
}

// Group is the groups/{gid} document.
type Group struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	OwnerID          string           `json:"ownerId"`
	Members          []string         `json:"members"`
	MessageCount     int              `json:"messageCount"`
	NoteCount        int              `json:"noteCount"`
	DailyActivity    DailyActivity    `json:"dailyActivity"`
	MemberLastActive map[string]int64 `json:"memberLastActive"`
	LastMessage      *LastMessage     `json:"lastMessage,omitempty"`
	InviteCode       string           `json:"inviteCode,omitempty"`
	CreatedAt        int64            `json:"createdAt"`
	Exists           bool             `json:"-"`
}

// DecodeGroup reads a group document.
func DecodeGroup(doc store.Document) Group {
	d := doc.Data
	g := Group{
		ID:               doc.ID,
		Name:             str(d["name"]),
		OwnerID:          str(d["ownerId"]),
		Members:          stringList(d["members"]),
		MessageCount:     integer(d["messageCount"]),
		NoteCount:        integer(d["noteCount"]),
		MemberLastActive: millisMap(d["memberLastActive"]),
		InviteCode:       str(d["inviteCode"]),
		CreatedAt:        millis(d["createdAt"]),
		Exists:           doc.Exists,
	}
	if g.MessageCount < 0 {
		g.MessageCount = 0
	}
	if da := object(d["dailyActivity"]); da != nil {
		g.DailyActivity = DailyActivity{
			Date:          str(da["date"]),
			ActiveMembers: stringList(da["activeMembers"]),
		}
	}
	if lm := object(d["lastMessage"]); lm != nil {
		g.LastMessage = &LastMessage{
			MessageID:      str(lm["messageId"]),
			AuthorID:       str(lm["authorId"]),
			AuthorNickname: str(lm["authorNickname"]),
			Timestamp:      millis(lm["timestamp"]),
			Type:           str(lm["type"]),
			Preview:        str(lm["preview"]),
		}
	}
	return g
}

// MemberCount is the number of members.
func (g Group) MemberCount() int {
	return len(g.Members)
}

// HasMember reports whether uid is a member.
func (g Group) HasMember(uid string) bool {
	for _, m := range g.Members {
		if m == uid {
			return true
		}
	}
	return false
}

// NewGroupFields is the document written when a member creates a group.
func NewGroupFields(name, ownerID, inviteCode string) store.Fields {
	return store.Fields{
		"name":             name,
		"ownerId":          ownerID,
		"members":          []interface{}{ownerID},
		"messageCount":     0,
		"noteCount":        0,
		"inviteCode":       inviteCode,
		"memberLastActive": map[string]interface{}{},
		"createdAt":        store.ServerTimestamp{},
	}
}

// Fields encodes the last-message preview.
func (lm LastMessage) Fields() map[string]interface{} {
	return map[string]interface{}{
		"messageId":      lm.MessageID,
		"authorId":       lm.AuthorID,
		"authorNickname": lm.AuthorNickname,
		"timestamp":      lm.Timestamp,
		"type":           lm.Type,
		"preview":        lm.Preview,
	}
}
