package sysmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeStructured(t *testing.T) {
	m := Decode("streak_announcement", map[string]interface{}{"nickname": "Ann", "streak": int64(4)}, "ignored")
	assert.Equal(t, TypeStreakAnnouncement, m.Type)
	assert.Equal(t, 4, m.Streak)
	assert.Equal(t, "Ann", m.Nickname)
	assert.Empty(t, m.RawText)

	m = Decode("level_up", map[string]interface{}{"nickname": "Ann", "level": 3.0}, "")
	assert.Equal(t, 3, m.Level)
}

func TestLegacyAdapter(t *testing.T) {
	tests := []struct {
		text     string
		kind     Type
		nickname string
		streak   int
		level    int
	}{
		{"Ann reached a 12 day streak! 🔥", TypeStreakAnnouncement, "Ann", 12, 0},
		{"Brother Lee is on a 3-day streak", TypeStreakAnnouncement, "Brother Lee", 3, 0},
		{"Kenさんが5日連続で学習しました！", TypeStreakAnnouncement, "Ken", 5, 0},
		{"¡María alcanzó una racha de 7 días!", TypeStreakAnnouncement, "María", 7, 0},
		{"João atingiu uma sequência de 9 dias", TypeStreakAnnouncement, "João", 9, 0},
		{"Ann reached level 2! 🎉", TypeLevelUp, "Ann", 0, 2},
		{"Ann joined the group.", TypeUserJoined, "Ann", 0, 0},
		{"Kenさんがグループを退出しました", TypeUserLeft, "Ken", 0, 0},
		{"María se unió al grupo", TypeUserJoined, "María", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			m := Decode("", nil, tt.text)
			assert.Equal(t, tt.kind, m.Type)
			assert.Equal(t, tt.nickname, m.Nickname)
			assert.Equal(t, tt.streak, m.Streak)
			assert.Equal(t, tt.level, m.Level)
			assert.Equal(t, tt.text, m.RawText)
		})
	}
}

func TestUnmatchedLegacyIsOpaque(t *testing.T) {
	m := Decode("", nil, "Welcome to the new group chat!")
	assert.Equal(t, TypeLegacy, m.Type)
	assert.Equal(t, "Welcome to the new group chat!", m.Text())
}

func TestTextIsReadableByAdapter(t *testing.T) {
	for _, m := range []Message{StreakAnnouncement("Ann", 4), LevelUp("Ann", 2), UserJoined("Ann"), UserLeft("Ann")} {
		back := AdaptLegacy(m.Text())
		assert.Equal(t, m.Type, back.Type)
		assert.Equal(t, m.Streak, back.Streak)
		assert.Equal(t, m.Level, back.Level)
	}
}
