package derived

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daijir/scripture-habit/internal/models"
)

var now = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

const today = "2026-03-10"

func TestUnityZeroMembers(t *testing.T) {
	groups := []models.Group{
		{},
		{DailyActivity: models.DailyActivity{Date: today, ActiveMembers: []string{"ghost"}}},
		{MemberLastActive: map[string]int64{"ghost": now.UnixMilli()}},
	}
	for _, g := range groups {
		assert.Equal(t, 0, UnityPercentage(g, today, time.UTC))
	}
}

func TestUnityThreeOfFour(t *testing.T) {
	g := models.Group{
		Members: []string{"a", "b", "c", "d"},
		MemberLastActive: map[string]int64{
			"a": now.Add(-time.Hour).UnixMilli(),
			"b": now.Add(-2 * time.Hour).UnixMilli(),
			"c": now.Add(-3 * time.Hour).UnixMilli(),
			"d": now.Add(-26 * time.Hour).UnixMilli(),
		},
	}
	assert.Equal(t, 75, UnityPercentage(g, today, time.UTC))
}

func TestUnityUnionOfStoredAndFallback(t *testing.T) {
	g := models.Group{
		Members:          []string{"a", "b", "c"},
		DailyActivity:    models.DailyActivity{Date: today, ActiveMembers: []string{"a", "b"}},
		MemberLastActive: map[string]int64{"b": now.UnixMilli(), "c": now.UnixMilli()},
	}
	assert.Equal(t, 100, UnityPercentage(g, today, time.UTC))

	// A stale stored day contributes nothing.
	g.DailyActivity.Date = "2026-03-09"
	assert.Equal(t, 67, UnityPercentage(g, today, time.UTC))
}

func TestUnityUsesUserTimezone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// 2026-03-09 20:00 UTC is already 2026-03-10 in Tokyo.
	g := models.Group{
		Members:          []string{"a", "b"},
		MemberLastActive: map[string]int64{"a": time.Date(2026, 3, 9, 20, 0, 0, 0, time.UTC).UnixMilli()},
	}
	assert.Equal(t, 50, UnityPercentage(g, today, tokyo))
	assert.Equal(t, 0, UnityPercentage(g, today, time.UTC))
}

func TestActivityWriteBack(t *testing.T) {
	g := models.Group{
		Members:          []string{"a", "b"},
		DailyActivity:    models.DailyActivity{Date: "2026-03-09", ActiveMembers: []string{"a"}},
		MemberLastActive: map[string]int64{"b": now.UnixMilli()},
	}
	da, ok := ActivityWriteBack(g, today, time.UTC)
	require.True(t, ok)
	assert.Equal(t, models.DailyActivity{Date: today, ActiveMembers: []string{"b"}}, da)

	g.DailyActivity = da
	_, ok = ActivityWriteBack(g, today, time.UTC)
	assert.False(t, ok)
}

func TestUnreadCountMonotoneInAck(t *testing.T) {
	g := models.Group{MessageCount: 25}
	prev := UnreadCount(g, nil, false)
	assert.Equal(t, 25, prev)
	for ack := 0; ack <= 40; ack++ {
		n := UnreadCount(g, &models.ReadState{ReadMessageCount: ack}, false)
		assert.LessOrEqual(t, n, prev)
		assert.GreaterOrEqual(t, n, 0)
		prev = n
	}
	assert.Equal(t, 0, UnreadCount(g, &models.ReadState{ReadMessageCount: 3}, true))
}

func TestMergeReadStateTakesMax(t *testing.T) {
	ten := models.ReadState{GroupID: "g1", ReadMessageCount: 10, LastReadAt: 200}
	seven := models.ReadState{GroupID: "g1", ReadMessageCount: 7, LastReadAt: 100}
	assert.Equal(t, ten, MergeReadState(ten, seven))
	assert.Equal(t, ten, MergeReadState(seven, ten))
	assert.Equal(t, ten, MergeReadState(models.ReadState{}, ten))
}

func TestLatestCrossPostNotification(t *testing.T) {
	at := func(h int) int64 { return time.Date(2026, 3, 10, h, 0, 0, 0, time.UTC).UnixMilli() }
	groups := []models.Group{
		{ID: "g1", Name: "One", LastMessage: &models.LastMessage{AuthorID: "u2", Timestamp: at(9), Type: models.LastMessageNote}},
		{ID: "g2", Name: "Two", LastMessage: &models.LastMessage{AuthorID: "u3", Timestamp: at(11), Type: models.LastMessageText}},
		{ID: "g3", Name: "Mine", LastMessage: &models.LastMessage{AuthorID: "me", Timestamp: at(12)}},
		{ID: "g4", Name: "Read", LastMessage: &models.LastMessage{AuthorID: "u4", Timestamp: at(13)}},
		{ID: "g5", Name: "Yesterday", LastMessage: &models.LastMessage{AuthorID: "u5", Timestamp: at(14) - 24*3600*1000}},
		{ID: "g6", Name: "System", LastMessage: &models.LastMessage{AuthorID: models.SystemSender, Timestamp: at(14)}},
		{ID: "g7", Name: "Empty"},
	}
	unread := map[string]int{"g1": 1, "g2": 2, "g3": 1, "g4": 0, "g5": 3, "g6": 1}

	n := LatestCrossPostNotification(groups, unread, "me", today, time.UTC)
	require.NotNil(t, n)
	assert.Equal(t, "g2", n.GroupID)
	assert.Equal(t, "Two", n.GroupName)

	assert.Nil(t, LatestCrossPostNotification(groups, map[string]int{}, "me", today, time.UTC))
	assert.Nil(t, LatestCrossPostNotification(nil, nil, "me", today, nil))
}

func TestInactivityWarnings(t *testing.T) {
	groups := []models.Group{
		{Name: "exactly 48h", MemberLastActive: map[string]int64{"me": now.Add(-48 * time.Hour).UnixMilli()}},
		{Name: "60h", MemberLastActive: map[string]int64{"me": now.Add(-60 * time.Hour).UnixMilli()}},
		{Name: "exactly 72h", MemberLastActive: map[string]int64{"me": now.Add(-72 * time.Hour).UnixMilli()}},
		{Name: "47h", MemberLastActive: map[string]int64{"me": now.Add(-47 * time.Hour).UnixMilli()}},
		{Name: "other member", MemberLastActive: map[string]int64{"u2": now.Add(-60 * time.Hour).UnixMilli()}},
		{Name: "nil map"},
	}
	assert.Equal(t, []string{"exactly 48h", "60h"}, InactivityWarnings(groups, "me", now))
}

func TestReconcilerDashboard(t *testing.T) {
	r := NewReconciler()
	assert.True(t, r.Dashboard(now).Loading)

	r.SetProfile(models.UserProfile{
		ID: "me", StreakCount: 4, LastPostDate: "2026-03-09", TotalStudyDays: 8,
		GroupIDs: []string{"g2", "g1"},
	})
	r.SetGroup(models.Group{ID: "g1", Name: "One", Exists: true, Members: []string{"me", "u2"}, MessageCount: 10,
		LastMessage: &models.LastMessage{AuthorID: "u2", Timestamp: now.Add(-time.Hour).UnixMilli()}})
	r.SetGroup(models.Group{ID: "g2", Name: "Two", Exists: true, Members: []string{"me"}, MessageCount: 3})
	r.SetGroup(models.Group{ID: "gx", Name: "Left", Exists: true, MessageCount: 99})

	d := r.Dashboard(now)
	assert.True(t, d.Loading)
	assert.Equal(t, 0, d.TotalUnread)
	require.Len(t, d.Groups, 2)
	assert.Equal(t, "g2", d.Groups[0].Group.ID)
	assert.Equal(t, 4, d.Streak)
	assert.Equal(t, 2, d.Level)
	assert.Equal(t, 1, d.LevelDays)
	assert.Nil(t, d.Notification)

	r.SetReadStates([]models.ReadState{{GroupID: "g1", ReadMessageCount: 10}})
	r.SetReadStates([]models.ReadState{{GroupID: "g1", ReadMessageCount: 7}})
	d = r.Dashboard(now)
	assert.False(t, d.Loading)
	assert.Equal(t, 0, d.Groups[1].Unread)
	assert.Equal(t, 3, d.Groups[0].Unread)
	assert.Equal(t, 3, d.TotalUnread)
	assert.Nil(t, d.Notification)

	r.SetGroup(models.Group{ID: "g1", Name: "One", Exists: true, Members: []string{"me", "u2"}, MessageCount: 12,
		LastMessage: &models.LastMessage{AuthorID: "u2", Timestamp: now.Add(-time.Hour).UnixMilli()}})
	d = r.Dashboard(now)
	require.NotNil(t, d.Notification)
	assert.Equal(t, "g1", d.Notification.GroupID)

	r.SetProfile(models.UserProfile{ID: "me", GroupIDs: []string{"g2"}})
	_, ok := r.Group("g1")
	assert.False(t, ok)
}
