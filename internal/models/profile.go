package models

import (
	"time"

	"github.com/daijir/scripture-habit/internal/store"
	"github.com/daijir/scripture-habit/internal/timeutil"
)

// UserProfile is the users/{uid} document.
type UserProfile struct {
	ID             string   `json:"id"`
	Nickname       string   `json:"nickname"`
	StreakCount    int      `json:"streakCount"`
	LastPostDate   string   `json:"lastPostDate,omitempty"`
	TotalStudyDays int      `json:"totalStudyDays"`
	GroupIDs       []string `json:"groupIds"`
	Timezone       string   `json:"timezone"`
	Language       string   `json:"language,omitempty"`
	LastActiveAt   int64    `json:"lastActiveAt,omitempty"`
	Exists         bool     `json:"-"`
}

// DecodeUserProfile reads a profile document. Older documents store the
// group list as a single groupId; both are accepted.
func DecodeUserProfile(doc store.Document) UserProfile {
	d := doc.Data
	p := UserProfile{
		ID:             doc.ID,
		Nickname:       str(d["nickname"]),
		StreakCount:    integer(d["streakCount"]),
		TotalStudyDays: integer(d["totalStudyDays"]),
		GroupIDs:       stringList(d["groupIds"]),
		Timezone:       str(d["timezone"]),
		Language:       str(d["language"]),
		LastActiveAt:   millis(d["lastActiveAt"]),
		Exists:         doc.Exists,
	}
	if p.StreakCount < 0 {
		p.StreakCount = 0
	}
	if p.TotalStudyDays < 0 {
		p.TotalStudyDays = 0
	}
	switch v := d["lastPostDate"].(type) {
	case string:
		p.LastPostDate = v
	default:
		// Timestamps written by older clients become a date in the user's zone.
		if ms, ok := timeutil.Millis(v); ok {
			p.LastPostDate = timeutil.DateOfMillis(ms, p.Location())
		}
	}
	if len(p.GroupIDs) == 0 {
		if gid := str(d["groupId"]); gid != "" {
			p.GroupIDs = []string{gid}
		}
	}
	return p
}

// Location is the profile's timezone, UTC if unset or invalid.
func (p UserProfile) Location() *time.Location {
	return timeutil.LoadLocation(p.Timezone)
}

// Today is the calendar date at now in the user's timezone.
func (p UserProfile) Today(now time.Time) string {
	return timeutil.DateIn(now, p.Location())
}

// IsMember reports whether the profile lists groupID.
func (p UserProfile) IsMember(groupID string) bool {
	for _, id := range p.GroupIDs {
		if id == groupID {
			return true
		}
	}
	return false
}

// NewProfileFields is the document written at signup.
func NewProfileFields(nickname, timezone, language string) store.Fields {
	return store.Fields{
		"nickname":       nickname,
		"streakCount":    0,
		"totalStudyDays": 0,
		"groupIds":       []interface{}{},
		"timezone":       timezone,
		"language":       language,
		"createdAt":      store.ServerTimestamp{},
	}
}
