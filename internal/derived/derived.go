// Package derived computes view values from the latest snapshots. Every
// function is pure and total: malformed or partial input produces a zero,
// empty or nil result, never a panic or an error.
package derived

import (
	"math"
	"sort"
	"time"

	"github.com/daijir/scripture-habit/internal/models"
	"github.com/daijir/scripture-habit/internal/timeutil"
)

const (
	inactivityFrom = 48 * time.Hour
	inactivityTo   = 72 * time.Hour
)

// UnreadCount is the number of messages after the acknowledged count. While
// the read state is still loading the group is reported as fully read so no
// false badge flashes.
func UnreadCount(g models.Group, rs *models.ReadState, loading bool) int {
	if loading {
		return 0
	}
	read := 0
	if rs != nil {
		read = rs.ReadMessageCount
	}
	if n := g.MessageCount - read; n > 0 {
		return n
	}
	return 0
}

// ActiveToday returns the members counted as active on today: the stored
// daily-activity set when its date is today, plus any member whose last
// activity falls on today in loc. Only current members are counted.
func ActiveToday(g models.Group, today string, loc *time.Location) []string {
	if loc == nil {
		loc = time.UTC
	}
	members := make(map[string]bool, len(g.Members))
	for _, m := range g.Members {
		members[m] = true
	}

	seen := make(map[string]bool)
	var out []string
	add := func(uid string) {
		if members[uid] && !seen[uid] {
			seen[uid] = true
			out = append(out, uid)
		}
	}
	if g.DailyActivity.Date == today {
		for _, uid := range g.DailyActivity.ActiveMembers {
			add(uid)
		}
	}
	// Deterministic order for the fallback path.
	ids := make([]string, 0, len(g.MemberLastActive))
	for uid := range g.MemberLastActive {
		ids = append(ids, uid)
	}
	sort.Strings(ids)
	for _, uid := range ids {
		if ms := g.MemberLastActive[uid]; ms > 0 && timeutil.DateOfMillis(ms, loc) == today {
			add(uid)
		}
	}
	return out
}

// UnityPercentage is the rounded share of members active today, clamped to
// [0, 100]. A group with no members is 0.
func UnityPercentage(g models.Group, today string, loc *time.Location) int {
	total := g.MemberCount()
	if total == 0 {
		return 0
	}
	active := len(ActiveToday(g, today, loc))
	pct := int(math.Round(float64(active) * 100 / float64(total)))
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return pct
}

// ActivityWriteBack returns the daily-activity record to store when the
// locally computed active set knows members the stored record lacks. The
// write is last-write-wins; ok is false when nothing needs writing.
func ActivityWriteBack(g models.Group, today string, loc *time.Location) (models.DailyActivity, bool) {
	active := ActiveToday(g, today, loc)
	if len(active) == 0 {
		return models.DailyActivity{}, false
	}
	if g.DailyActivity.Date == today && len(active) <= len(g.DailyActivity.ActiveMembers) {
		return models.DailyActivity{}, false
	}
	return models.DailyActivity{Date: today, ActiveMembers: active}, true
}

// CrossPostNotification is the single most recent post by someone else that
// the dashboard surfaces.
type CrossPostNotification struct {
	GroupID        string `json:"groupId"`
	GroupName      string `json:"groupName"`
	AuthorID       string `json:"authorId"`
	AuthorNickname string `json:"authorNickname"`
	Type           string `json:"type"`
	Preview        string `json:"preview"`
	Timestamp      int64  `json:"timestamp"`
}

// LatestCrossPostNotification finds the newest note or message posted today
// by someone other than selfID in a group with unread messages. unread maps
// group id to its unread count. Returns nil if nothing qualifies.
func LatestCrossPostNotification(groups []models.Group, unread map[string]int, selfID, today string, loc *time.Location) *CrossPostNotification {
	if loc == nil {
		loc = time.UTC
	}
	var best *CrossPostNotification
	for _, g := range groups {
		lm := g.LastMessage
		if lm == nil || lm.Timestamp <= 0 || lm.AuthorID == "" || lm.AuthorID == selfID || lm.AuthorID == models.SystemSender {
			continue
		}
		if unread[g.ID] <= 0 {
			continue
		}
		if timeutil.DateOfMillis(lm.Timestamp, loc) != today {
			continue
		}
		if best != nil && lm.Timestamp <= best.Timestamp {
			continue
		}
		best = &CrossPostNotification{
			GroupID:        g.ID,
			GroupName:      g.Name,
			AuthorID:       lm.AuthorID,
			AuthorNickname: lm.AuthorNickname,
			Type:           lm.Type,
			Preview:        lm.Preview,
			Timestamp:      lm.Timestamp,
		}
	}
	return best
}

// InactivityWarnings names the groups where selfID was last active between
// 48 (inclusive) and 72 (exclusive) hours before now.
func InactivityWarnings(groups []models.Group, selfID string, now time.Time) []string {
	var out []string
	nowMs := now.UnixMilli()
	for _, g := range groups {
		last, ok := g.MemberLastActive[selfID]
		if !ok || last <= 0 {
			continue
		}
		age := time.Duration(nowMs-last) * time.Millisecond
		if age >= inactivityFrom && age < inactivityTo {
			out = append(out, g.Name)
		}
	}
	return out
}

// MergeReadState combines two observations of the same read state. Counts
// never move backwards, so the larger value wins field by field.
func MergeReadState(a, b models.ReadState) models.ReadState {
	out := a
	if b.ReadMessageCount > out.ReadMessageCount {
		out.ReadMessageCount = b.ReadMessageCount
	}
	if b.LastReadAt > out.LastReadAt {
		out.LastReadAt = b.LastReadAt
	}
	if out.GroupID == "" {
		out.GroupID = b.GroupID
	}
	return out
}
