package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daijir/scripture-habit/internal/auth"
	"github.com/daijir/scripture-habit/internal/derived"
	"github.com/daijir/scripture-habit/internal/kv"
	"github.com/daijir/scripture-habit/internal/loop"
	"github.com/daijir/scripture-habit/internal/models"
	"github.com/daijir/scripture-habit/internal/mutation"
	"github.com/daijir/scripture-habit/internal/readpos"
	"github.com/daijir/scripture-habit/internal/store"
	"github.com/daijir/scripture-habit/internal/store/memstore"
	"github.com/daijir/scripture-habit/internal/subscription"
	"github.com/daijir/scripture-habit/internal/sysmsg"
)

const wait = 2 * time.Second

var sessionNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type harness struct {
	exec      *loop.Manual
	st        *memstore.Store
	bookmarks *kv.MemoryStore
	sess      *Session
	events    []Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{exec: loop.NewManual(), st: memstore.New(), bookmarks: kv.NewMemoryStore()}
	h.st.Seed(store.UserPath("u1"), map[string]interface{}{
		"nickname":       "Daiji",
		"streakCount":    3,
		"lastPostDate":   "2026-05-09",
		"totalStudyDays": 9,
		"groupIds":       []interface{}{"g1", "g2"},
		"timezone":       "UTC",
	})
	h.st.Seed(store.GroupPath("g1"), map[string]interface{}{
		"name":         "Alma study",
		"members":      []interface{}{"u1", "u2", "u3", "u4"},
		"messageCount": 5,
	})
	h.st.Seed(store.GroupPath("g2"), map[string]interface{}{
		"name":         "Family",
		"members":      []interface{}{"u1"},
		"messageCount": 0,
	})
	h.st.Seed(store.ReadStatePath("u1", "g1"), map[string]interface{}{"readMessageCount": 2})
	for i := 1; i <= 5; i++ {
		h.st.Seed(store.MessagePath("g1", fmt.Sprintf("m%d", i)), map[string]interface{}{
			"senderId":  "u2",
			"text":      fmt.Sprintf("message %d", i),
			"createdAt": int64(i * 1000),
		})
	}

	coord := mutation.New(h.st, nil)
	coord.Now = func() time.Time { return sessionNow }
	h.sess = New(context.Background(), h.exec, h.st, h.bookmarks, coord, "u1", Options{Debounce: 100 * time.Millisecond})
	h.sess.Now = func() time.Time { return sessionNow }
	h.sess.Listen(func(ev Event) { h.events = append(h.events, ev) })
	t.Cleanup(func() {
		h.sess.Close()
		h.sess.Wait()
	})
	return h
}

func (h *harness) dashboardReady() bool {
	d := h.sess.Dashboard()
	return !d.Loading && len(d.Groups) == 2
}

func (h *harness) restored() *readpos.Position {
	for _, ev := range h.events {
		if ev.Type == EventRestore {
			return ev.Position
		}
	}
	return nil
}

func TestDashboardReconcilesStreams(t *testing.T) {
	h := newHarness(t)
	h.sess.Start()
	require.True(t, h.exec.RunUntil(h.dashboardReady, wait))

	d := h.sess.Dashboard()
	assert.Equal(t, 3, d.Streak)
	assert.Equal(t, 2, d.Level)
	assert.Equal(t, 3, d.TotalUnread)
	assert.Equal(t, "Alma study", d.Groups[0].Group.Name)
	assert.Equal(t, 3, d.Groups[0].Unread)
	assert.Equal(t, 0, d.Groups[1].Unread)

	require.NoError(t, h.st.Write(context.Background(), store.UserPath("u1"),
		store.Fields{"groupIds": store.Remove("g2")}, store.Merge))
	require.True(t, h.exec.RunUntil(func() bool { return len(h.sess.Dashboard().Groups) == 1 }, wait))
	assert.NotContains(t, h.sess.subs.Kinds(), subscription.GroupKind("g2"))
}

func TestOpenConversationRestoresFirstUnreadAndAcknowledges(t *testing.T) {
	h := newHarness(t)
	h.sess.Start()
	require.True(t, h.exec.RunUntil(h.dashboardReady, wait))

	h.sess.OpenConversation("g1")
	require.True(t, h.exec.RunUntil(func() bool { return h.restored() != nil }, wait))
	pos := h.restored()
	assert.Equal(t, readpos.AnchorFirstUnread, pos.Anchor)
	assert.Equal(t, "m3", pos.MessageID)

	// The acknowledgement shows up locally at once and in the store after.
	assert.Equal(t, 0, h.sess.Dashboard().TotalUnread)
	h.sess.Wait()
	doc, err := h.st.Get(context.Background(), store.ReadStatePath("u1", "g1"))
	require.NoError(t, err)
	assert.Equal(t, 5, models.DecodeReadState(doc).ReadMessageCount)
}

func TestBookmarkWinsOverFirstUnread(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, kv.SetValue(context.Background(), h.bookmarks, kv.BookmarkKey("u1", "g1"),
		models.ScrollBookmark{GroupID: "g1", MessageID: "m4"}))
	h.sess.Start()
	require.True(t, h.exec.RunUntil(h.dashboardReady, wait))

	h.sess.OpenConversation("g1")
	require.True(t, h.exec.RunUntil(func() bool { return h.restored() != nil }, wait))
	assert.Equal(t, readpos.AnchorBookmark, h.restored().Anchor)
	assert.Equal(t, "m4", h.restored().MessageID)
}

func TestRestoreWaitsForReadStates(t *testing.T) {
	h := newHarness(t)
	h.st.FailReads(store.ReadStatesPath("u1"), store.ErrPermissionDenied)
	h.sess.Start()
	h.sess.OpenConversation("g1")
	require.True(t, h.exec.RunUntil(func() bool {
		c, ok := h.sess.Conversation()
		return ok && len(c.Messages) == 5
	}, wait))
	assert.Nil(t, h.restored())
	assert.Equal(t, readpos.StateAwaiting, h.sess.tracker.State())
}

func TestSwitchingConversationDropsOldMessages(t *testing.T) {
	h := newHarness(t)
	h.sess.Start()
	h.sess.OpenConversation("g1")
	h.sess.OpenConversation("g2")
	require.True(t, h.exec.RunUntil(func() bool {
		c, ok := h.sess.Conversation()
		return ok && !c.Loading
	}, wait))

	c, _ := h.sess.Conversation()
	assert.Equal(t, "g2", c.GroupID)
	assert.Empty(t, c.Messages)
	h.exec.Drain()
	c, _ = h.sess.Conversation()
	assert.Empty(t, c.Messages)
}

func TestScrollPersistsBookmarkOnClose(t *testing.T) {
	h := newHarness(t)
	h.sess.Start()
	h.sess.OpenConversation("g1")
	require.True(t, h.exec.RunUntil(func() bool { return h.restored() != nil }, wait))

	h.sess.Scroll("m2")
	h.sess.CloseConversation()

	var bm models.ScrollBookmark
	ok, err := kv.GetValue(context.Background(), h.bookmarks, kv.BookmarkKey("u1", "g1"), &bm)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "m2", bm.MessageID)
}

func TestLeavingGroupClosesConversation(t *testing.T) {
	h := newHarness(t)
	h.sess.Start()
	require.True(t, h.exec.RunUntil(h.dashboardReady, wait))
	h.sess.OpenConversation("g1")

	require.NoError(t, h.st.Write(context.Background(), store.UserPath("u1"),
		store.Fields{"groupIds": store.Remove("g1")}, store.Merge))
	require.True(t, h.exec.RunUntil(func() bool {
		_, ok := h.sess.Conversation()
		return !ok
	}, wait))
}

func TestHostFollowsProvider(t *testing.T) {
	exec := loop.NewManual()
	st := memstore.New()
	host := NewHost(context.Background(), exec, st, kv.NewMemoryStore(), nil, Options{})
	var sessions []*Session
	host.OnSession = func(s *Session) { sessions = append(sessions, s) }

	p := auth.NewProvider(auth.NewTokenService("secret", time.Hour))
	host.Bind(p)
	p.SignIn("u1")
	exec.Drain()
	require.NotNil(t, host.Current())
	assert.Equal(t, "u1", host.Current().UserID())

	p.SignIn("u2")
	exec.Drain()
	assert.Equal(t, "u2", host.Current().UserID())
	assert.True(t, sessions[0].closed)

	p.SignOut()
	exec.Drain()
	assert.Nil(t, host.Current())
	require.Len(t, sessions, 3)
	assert.Nil(t, sessions[2])
}

func TestDashboardWhileLoading(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, derived.Dashboard{Loading: true}, h.sess.Dashboard())
}

type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLog(t *testing.T) *logBuffer {
	t.Helper()
	buf := &logBuffer{}
	log.SetOutput(buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return buf
}

func TestFailedAcknowledgeIsLogged(t *testing.T) {
	logs := captureLog(t)
	h := newHarness(t)
	h.st.FailWrites(store.ReadStatePath("u1", "g1"), errors.New("unavailable"))
	h.sess.Start()
	require.True(t, h.exec.RunUntil(h.dashboardReady, wait))

	h.sess.OpenConversation("g1")
	require.True(t, h.exec.RunUntil(func() bool { return h.restored() != nil }, wait))
	h.sess.Wait()

	assert.Contains(t, logs.String(), "acknowledge u1/g1")
	assert.Equal(t, 0, h.sess.Dashboard().TotalUnread)
	doc, err := h.st.Get(context.Background(), store.ReadStatePath("u1", "g1"))
	require.NoError(t, err)
	assert.Equal(t, 2, models.DecodeReadState(doc).ReadMessageCount)
}

func TestFailedForgetIsLogged(t *testing.T) {
	logs := captureLog(t)
	h := newHarness(t)
	h.bookmarks.FailWrites(errors.New("redis down"))
	h.sess.ForgetBookmark("g1")
	h.sess.Wait()

	assert.Contains(t, logs.String(), "forget bookmark u1/g1")
}

func TestClockRollsDashboardOverMidnight(t *testing.T) {
	now := time.Date(2026, 5, 10, 23, 59, 30, 0, time.UTC)
	h := newHarness(t)
	h.sess.Now = func() time.Time { return now }
	h.sess.Start()
	require.True(t, h.exec.RunUntil(h.dashboardReady, wait))
	assert.Equal(t, 3, h.sess.Dashboard().Streak)

	// Nothing time dependent changed, so the tick stays quiet.
	h.events = nil
	h.exec.Advance(time.Minute)
	assert.Empty(t, h.events)

	now = time.Date(2026, 5, 12, 0, 0, 30, 0, time.UTC)
	h.exec.Advance(time.Minute)
	require.NotEmpty(t, h.events)
	last := h.events[len(h.events)-1]
	require.Equal(t, EventDashboard, last.Type)
	assert.Equal(t, "2026-05-12", last.Dashboard.Today)
	assert.Equal(t, 0, last.Dashboard.Streak)
}

func TestClockStopsWithSession(t *testing.T) {
	h := newHarness(t)
	h.sess.Start()
	require.True(t, h.exec.RunUntil(h.dashboardReady, wait))
	require.Positive(t, h.exec.Pending())

	h.sess.Close()
	assert.Zero(t, h.exec.Pending())
}

func TestQuotaFailureMarksDashboardExhausted(t *testing.T) {
	h := newHarness(t)
	h.st.FailReads(store.GroupPath("g2"), store.ErrResourceExhausted)
	h.sess.Start()
	require.True(t, h.exec.RunUntil(func() bool { return h.sess.Dashboard().Exhausted }, wait))

	found := false
	for _, ev := range h.events {
		if ev.Type == EventExhausted {
			found = true
		}
	}
	assert.True(t, found)
}

func TestLegacySystemMessageStreamsStructured(t *testing.T) {
	h := newHarness(t)
	h.st.Seed(store.MessagePath("g1", "m6"), map[string]interface{}{
		"senderId":  "system",
		"text":      "Ken reached a 5 day streak! 🔥",
		"createdAt": int64(6000),
	})
	h.sess.Start()
	require.True(t, h.exec.RunUntil(h.dashboardReady, wait))

	h.sess.OpenConversation("g1")
	require.True(t, h.exec.RunUntil(func() bool {
		c, ok := h.sess.Conversation()
		return ok && !c.Loading
	}, wait))
	c, _ := h.sess.Conversation()

	var sys *models.Message
	for i := range c.Messages {
		if c.Messages[i].ID == "m6" {
			sys = &c.Messages[i]
		}
	}
	require.NotNil(t, sys)

	raw, err := json.Marshal(sys)
	require.NoError(t, err)
	var wire struct {
		System *sysmsg.Message `json:"system"`
	}
	require.NoError(t, json.Unmarshal(raw, &wire))
	require.NotNil(t, wire.System)
	assert.Equal(t, sysmsg.TypeStreakAnnouncement, wire.System.Type)
	assert.Equal(t, "Ken", wire.System.Nickname)
	assert.Equal(t, 5, wire.System.Streak)
	assert.Contains(t, string(raw), `"type":"streak_announcement"`)
}
