package readpos

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daijir/scripture-habit/internal/kv"
	"github.com/daijir/scripture-habit/internal/loop"
	"github.com/daijir/scripture-habit/internal/models"
)

func messages(n int) []models.Message {
	out := make([]models.Message, n)
	for i := range out {
		out[i] = models.Message{ID: fmt.Sprintf("m%d", i), CreatedAt: int64(i)}
	}
	return out
}

func TestRestorePriority(t *testing.T) {
	msgs := messages(10)
	tests := []struct {
		name      string
		bookmark  *models.ScrollBookmark
		readCount int
		total     int
		want      Position
	}{
		{"bookmark beats first unread and bottom", &models.ScrollBookmark{MessageID: "m2"}, 5, 10, Position{AnchorBookmark, "m2", 2}},
		{"bookmark wins even when all read", &models.ScrollBookmark{MessageID: "m9"}, 10, 10, Position{AnchorBookmark, "m9", 9}},
		{"missing bookmark falls to first unread", &models.ScrollBookmark{MessageID: "gone"}, 5, 10, Position{AnchorFirstUnread, "m5", 5}},
		{"no bookmark first unread", nil, 0, 10, Position{AnchorFirstUnread, "m0", 0}},
		{"all read goes to bottom", nil, 10, 10, Position{AnchorBottom, "m9", 9}},
		{"stale count above total goes to bottom", nil, 12, 10, Position{AnchorBottom, "m9", 9}},
		{"tail window offsets index", nil, 95, 100, Position{AnchorFirstUnread, "m5", 5}},
		{"first unread before window clamps", nil, 10, 100, Position{AnchorFirstUnread, "m0", 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Restore(msgs, tt.bookmark, tt.readCount, tt.total))
		})
	}

	assert.Equal(t, Position{Anchor: AnchorBottom, Index: -1}, Restore(nil, nil, 0, 0))
}

func TestAckCount(t *testing.T) {
	assert.Equal(t, 10, AckCount(10, 7))
	assert.Equal(t, 10, AckCount(7, 10))
	assert.Equal(t, 0, AckCount(0, 0))
}

func TestTrackerRestoresOncePerEntry(t *testing.T) {
	ctx := context.Background()
	exec := loop.NewManual()
	store := kv.NewMemoryStore()
	require.NoError(t, kv.SetValue(ctx, store, kv.BookmarkKey("u1", "g1"), models.ScrollBookmark{GroupID: "g1", MessageID: "m3"}))

	tr := NewTracker(exec, store, "u1", time.Second)
	var restored []Position
	tr.OnRestore = func(groupID string, pos Position) { restored = append(restored, pos) }

	tr.Enter("g1")
	assert.Equal(t, StateAwaiting, tr.State())

	_, ok := tr.OnMessages("g2", messages(10), 0, 10)
	assert.False(t, ok)

	pos, ok := tr.OnMessages("g1", messages(10), 5, 10)
	require.True(t, ok)
	assert.Equal(t, AnchorBookmark, pos.Anchor)
	assert.Equal(t, StateRestored, tr.State())

	_, ok = tr.OnMessages("g1", messages(11), 5, 11)
	assert.False(t, ok)
	assert.Len(t, restored, 1)
}

func TestScrollIsDebounced(t *testing.T) {
	ctx := context.Background()
	exec := loop.NewManual()
	store := kv.NewMemoryStore()
	tr := NewTracker(exec, store, "u1", 500*time.Millisecond)
	tr.Now = func() time.Time { return time.UnixMilli(1000) }

	tr.Enter("g1")
	tr.Scroll("m1")
	exec.Advance(200 * time.Millisecond)
	tr.Scroll("m2")
	exec.Advance(200 * time.Millisecond)
	tr.Scroll("m3")
	exec.Advance(400 * time.Millisecond)

	var bm models.ScrollBookmark
	ok, _ := kv.GetValue(ctx, store, kv.BookmarkKey("u1", "g1"), &bm)
	assert.False(t, ok, "nothing persisted inside the debounce window")

	exec.Advance(200 * time.Millisecond)
	ok, err := kv.GetValue(ctx, store, kv.BookmarkKey("u1", "g1"), &bm)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.ScrollBookmark{GroupID: "g1", MessageID: "m3", SavedAt: 1000}, bm)
}

func TestLeaveFlushesPendingBookmark(t *testing.T) {
	ctx := context.Background()
	exec := loop.NewManual()
	store := kv.NewMemoryStore()
	tr := NewTracker(exec, store, "u1", time.Second)

	tr.Enter("g1")
	tr.Scroll("m7")
	tr.Enter("g2")
	assert.Equal(t, "g2", tr.GroupID())

	var bm models.ScrollBookmark
	ok, _ := kv.GetValue(ctx, store, kv.BookmarkKey("u1", "g1"), &bm)
	require.True(t, ok)
	assert.Equal(t, "m7", bm.MessageID)

	// The stopped timer must not write g1's position under g2.
	exec.Advance(2 * time.Second)
	ok, _ = kv.GetValue(ctx, store, kv.BookmarkKey("u1", "g2"), &bm)
	assert.False(t, ok)

	require.NoError(t, tr.Forget(ctx, "g1"))
	ok, _ = kv.GetValue(ctx, store, kv.BookmarkKey("u1", "g1"), &bm)
	assert.False(t, ok)
}
