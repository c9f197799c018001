package models

import (
	"github.com/daijir/scripture-habit/internal/store"
)

// PersonalNote is a users/{uid}/notes/{nid} document.
type PersonalNote struct {
	ID              string            `json:"id"`
	OwnerID         string            `json:"ownerId"`
	Scripture       string            `json:"scripture"`
	Chapter         string            `json:"chapter"`
	Text            string            `json:"text"`
	CreatedAt       int64             `json:"createdAt"`
	SharedGroupIDs  []string          `json:"sharedGroupIds"`
	GroupMessageIDs map[string]string `json:"groupMessageIds"`
}

// DecodeNote reads a note document; the owner comes from the path.
func DecodeNote(doc store.Document) PersonalNote {
	d := doc.Data
	n := PersonalNote{
		ID:              doc.ID,
		OwnerID:         store.ID(store.Parent(store.Parent(doc.Path))),
		Scripture:       str(d["scripture"]),
		Chapter:         str(d["chapter"]),
		Text:            str(d["text"]),
		CreatedAt:       millis(d["createdAt"]),
		SharedGroupIDs:  stringList(d["sharedGroupIds"]),
		GroupMessageIDs: stringMap(d["groupMessageIds"]),
	}
	return n
}

// MissingMappings lists shared groups that have no linked message id yet.
func (n PersonalNote) MissingMappings() []string {
	var out []string
	for _, gid := range n.SharedGroupIDs {
		if n.GroupMessageIDs[gid] == "" {
			out = append(out, gid)
		}
	}
	return out
}

// Fields encodes the note for its initial write; the message-id mapping is
// filled in afterwards.
func (n PersonalNote) Fields() store.Fields {
	shared := make([]interface{}, len(n.SharedGroupIDs))
	for i, gid := range n.SharedGroupIDs {
		shared[i] = gid
	}
	return store.Fields{
		"scripture":       n.Scripture,
		"chapter":         n.Chapter,
		"text":            n.Text,
		"createdAt":       n.CreatedAt,
		"sharedGroupIds":  shared,
		"groupMessageIds": map[string]interface{}{},
	}
}
