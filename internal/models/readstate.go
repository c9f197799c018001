package models

import (
	"github.com/daijir/scripture-habit/internal/store"
)

// ReadState is a users/{uid}/groupStates/{gid} document.
type ReadState struct {
	GroupID          string `json:"groupId"`
	ReadMessageCount int    `json:"readMessageCount"`
	LastReadAt       int64  `json:"lastReadAt"`
}

// DecodeReadState reads a read-state document. Negative counts read as 0.
func DecodeReadState(doc store.Document) ReadState {
	rs := ReadState{
		GroupID:          doc.ID,
		ReadMessageCount: integer(doc.Data["readMessageCount"]),
		LastReadAt:       millis(doc.Data["lastReadAt"]),
	}
	if rs.ReadMessageCount < 0 {
		rs.ReadMessageCount = 0
	}
	return rs
}

// ScrollBookmark is the locally persisted last-viewed message of a
// conversation. It never reaches the live store.
type ScrollBookmark struct {
	GroupID   string `msgpack:"g"`
	MessageID string `msgpack:"m"`
	SavedAt   int64  `msgpack:"t"`
}
