package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bookmark struct {
	MessageID string
	SavedAt   int64
}

func TestTypedValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var got bookmark
	ok, err := GetValue(ctx, s, BookmarkKey("u1", "g1"), &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SetValue(ctx, s, BookmarkKey("u1", "g1"), bookmark{MessageID: "m9", SavedAt: 42}))
	ok, err = GetValue(ctx, s, BookmarkKey("u1", "g1"), &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, bookmark{MessageID: "m9", SavedAt: 42}, got)

	require.NoError(t, s.Remove(ctx, BookmarkKey("u1", "g1")))
	assert.Equal(t, 0, s.Len())
}

func TestGetValueReportsCorruptEntries(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Set(ctx, "k", []byte{0xc1}))

	var v string
	ok, err := GetValue(ctx, s, "k", &v)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestBanners(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	assert.False(t, BannerDismissed(ctx, s, "u1", "install"))
	require.NoError(t, DismissBanner(ctx, s, "u1", "install"))
	assert.True(t, BannerDismissed(ctx, s, "u1", "install"))
	assert.False(t, BannerDismissed(ctx, s, "u2", "install"))
}
