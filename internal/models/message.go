package models

import (
	"sort"
	"unicode/utf8"

	"github.com/daijir/scripture-habit/internal/store"
	"github.com/daijir/scripture-habit/internal/sysmsg"
)

// SystemSender is the senderId of system-authored messages.
const SystemSender = "system"

const previewRunes = 80

// Reaction is one member's reaction to a message.
type Reaction struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickname"`
}

// ReplyRef is a denormalized reference to the message being replied to.
type ReplyRef struct {
	MessageID      string `json:"messageId"`
	SenderNickname string `json:"senderNickname"`
	Preview        string `json:"preview"`
}

// Message is a groups/{gid}/messages/{mid} document.
type Message struct {
	ID             string                 `json:"id"`
	GroupID        string                 `json:"groupId"`
	SenderID       string                 `json:"senderId"`
	SenderNickname string                 `json:"senderNickname"`
	Text           string                 `json:"text"`
	CreatedAt      int64                  `json:"createdAt"`
	ReplyTo        *ReplyRef              `json:"replyTo,omitempty"`
	Reactions      []Reaction             `json:"reactions,omitempty"`
	Edited         bool                   `json:"edited,omitempty"`
	IsNote         bool                   `json:"isNote,omitempty"`
	NoteID         string                 `json:"noteId,omitempty"`
	Scripture      string                 `json:"scripture,omitempty"`
	Chapter        string                 `json:"chapter,omitempty"`
	SystemType     string                 `json:"systemType,omitempty"`
	SystemPayload  map[string]interface{} `json:"systemPayload,omitempty"`

	// System is the decoded variant of a system message, including old
	// messages that only carry baked text.
	System *sysmsg.Message `json:"system,omitempty"`
}

// DecodeMessage reads a message document. groupID comes from the path.
func DecodeMessage(doc store.Document) Message {
	d := doc.Data
	m := Message{
		ID:             doc.ID,
		GroupID:        store.ID(store.Parent(store.Parent(doc.Path))),
		SenderID:       str(d["senderId"]),
		SenderNickname: str(d["senderNickname"]),
		Text:           str(d["text"]),
		CreatedAt:      millis(d["createdAt"]),
		Edited:         boolean(d["edited"]),
		IsNote:         boolean(d["isNote"]),
		NoteID:         str(d["noteId"]),
		Scripture:      str(d["scripture"]),
		Chapter:        str(d["chapter"]),
		SystemType:     str(d["systemType"]),
		SystemPayload:  object(d["systemPayload"]),
	}
	if r := object(d["replyTo"]); r != nil {
		m.ReplyTo = &ReplyRef{
			MessageID:      str(r["messageId"]),
			SenderNickname: str(r["senderNickname"]),
			Preview:        str(r["preview"]),
		}
	}
	m.Reactions = DecodeReactions(d["reactions"])
	if m.IsSystem() {
		sm := sysmsg.Decode(m.SystemType, m.SystemPayload, m.Text)
		m.System = &sm
	}
	return m
}

// DecodeReactions reads a reaction array, dropping malformed entries.
func DecodeReactions(v interface{}) []Reaction {
	var out []Reaction
	for _, x := range list(v) {
		r := object(x)
		if uid := str(r["userId"]); uid != "" {
			out = append(out, Reaction{UserID: uid, Nickname: str(r["nickname"])})
		}
	}
	return out
}

// IsSystem reports whether the message was authored by the system.
func (m Message) IsSystem() bool {
	return m.SenderID == SystemSender
}

// HasReactionFrom reports whether uid already reacted.
func (m Message) HasReactionFrom(uid string) bool {
	for _, r := range m.Reactions {
		if r.UserID == uid {
			return true
		}
	}
	return false
}

// Fields encodes the message for a replace write.
func (m Message) Fields() store.Fields {
	f := store.Fields{
		"senderId":       m.SenderID,
		"senderNickname": m.SenderNickname,
		"text":           m.Text,
		"createdAt":      m.CreatedAt,
	}
	if m.ReplyTo != nil {
		f["replyTo"] = map[string]interface{}{
			"messageId":      m.ReplyTo.MessageID,
			"senderNickname": m.ReplyTo.SenderNickname,
			"preview":        m.ReplyTo.Preview,
		}
	}
	if m.IsNote {
		f["isNote"] = true
		f["noteId"] = m.NoteID
		f["scripture"] = m.Scripture
		f["chapter"] = m.Chapter
	}
	if m.SystemType != "" {
		f["systemType"] = m.SystemType
		f["systemPayload"] = m.SystemPayload
	}
	return f
}

// Fields encodes a reaction as stored in the reactions array.
func (r Reaction) Fields() map[string]interface{} {
	return map[string]interface{}{"userId": r.UserID, "nickname": r.Nickname}
}

// SortMessages orders by createdAt; ties keep their arrival order.
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].CreatedAt < msgs[j].CreatedAt })
}

// Preview truncates text for last-message and reply previews.
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewRunes]) + "…"
}
