// Package sysmsg models system-authored chat messages as a tagged variant.
// New messages carry a structured type and payload; old messages carry only
// baked text and are interpreted by the legacy adapter in legacy.go.
package sysmsg

import (
	"fmt"
	"strconv"
)

// Type tags a system message.
type Type string

const (
	TypeStreakAnnouncement Type = "streak_announcement"
	TypeLevelUp            Type = "level_up"
	TypeUserJoined         Type = "user_joined"
	TypeUserLeft           Type = "user_left"
	TypeLegacy             Type = "legacy"
)

// Message is a decoded system message. Only the fields relevant to Type are
// set. RawText is kept for legacy messages, including ones the adapter
// recognised.
type Message struct {
	Type     Type   `json:"type"`
	Nickname string `json:"nickname,omitempty"`
	Streak   int    `json:"streak,omitempty"`
	Level    int    `json:"level,omitempty"`
	RawText  string `json:"rawText,omitempty"`
}

// StreakAnnouncement is posted when a check-in starts, extends or restarts a
// streak.
func StreakAnnouncement(nickname string, streak int) Message {
	return Message{Type: TypeStreakAnnouncement, Nickname: nickname, Streak: streak}
}

// LevelUp is posted when total study days cross into a new level.
func LevelUp(nickname string, level int) Message {
	return Message{Type: TypeLevelUp, Nickname: nickname, Level: level}
}

// UserJoined and UserLeft announce membership changes.
func UserJoined(nickname string) Message {
	return Message{Type: TypeUserJoined, Nickname: nickname}
}

func UserLeft(nickname string) Message {
	return Message{Type: TypeUserLeft, Nickname: nickname}
}

// Payload returns the structured payload stored alongside the type.
func (m Message) Payload() map[string]interface{} {
	p := map[string]interface{}{"nickname": m.Nickname}
	switch m.Type {
	case TypeStreakAnnouncement:
		p["streak"] = m.Streak
	case TypeLevelUp:
		p["level"] = m.Level
	}
	return p
}

// Text is the English fallback rendering stored in the message body so that
// clients that predate structured messages still show something sensible.
func (m Message) Text() string {
	switch m.Type {
	case TypeStreakAnnouncement:
		return fmt.Sprintf("%s reached a %d day streak! 🔥", m.Nickname, m.Streak)
	case TypeLevelUp:
		return fmt.Sprintf("%s reached level %d! 🎉", m.Nickname, m.Level)
	case TypeUserJoined:
		return fmt.Sprintf("%s joined the group.", m.Nickname)
	case TypeUserLeft:
		return fmt.Sprintf("%s left the group.", m.Nickname)
	}
	return m.RawText
}

// Decode builds a Message from stored fields. An empty or unknown type is
// treated as legacy text and handed to the adapter.
func Decode(systemType string, payload map[string]interface{}, text string) Message {
	m := Message{Type: Type(systemType), Nickname: stringOf(payload["nickname"])}
	switch m.Type {
	case TypeStreakAnnouncement:
		m.Streak = intOf(payload["streak"])
	case TypeLevelUp:
		m.Level = intOf(payload["level"])
	case TypeUserJoined, TypeUserLeft:
	default:
		return AdaptLegacy(text)
	}
	return m
}

func stringOf(v interface{}) string {
	s, _ := v.(string)
	return s
}

func intOf(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}
