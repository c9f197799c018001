package push

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daijir/scripture-habit/internal/kv"
)

func newService(now *time.Time) (*Service, *MemoryRegistry) {
	reg := NewMemoryRegistry()
	s := NewService(reg, kv.NewMemoryStore())
	s.Now = func() time.Time { return *now }
	return s, reg
}

func TestPromptThrottling(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, _ := newService(&now)

	assert.True(t, s.ShouldPrompt(ctx, "u1"))
	require.NoError(t, s.MarkPrompted(ctx, "u1"))
	assert.False(t, s.ShouldPrompt(ctx, "u1"))

	now = now.Add(PromptInterval - time.Minute)
	assert.False(t, s.ShouldPrompt(ctx, "u1"))
	now = now.Add(time.Minute)
	assert.True(t, s.ShouldPrompt(ctx, "u1"))
}

func TestDecidedUsersAreNotPrompted(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s, reg := newService(&now)

	p, err := s.RequestPermission(ctx, "u1", Granted, "tok-1", "Mozilla/5.0")
	require.NoError(t, err)
	assert.Equal(t, Granted, p)
	assert.False(t, s.ShouldPrompt(ctx, "u1"))
	tokens, _ := reg.Tokens(ctx, "u1")
	assert.Equal(t, []string{"tok-1"}, tokens)

	p, err = s.RequestPermission(ctx, "u2", Denied, "", "")
	require.NoError(t, err)
	assert.Equal(t, Denied, p)
	assert.False(t, s.ShouldPrompt(ctx, "u2"))
}

func TestGrantWithoutToken(t *testing.T) {
	now := time.Now()
	s, _ := newService(&now)
	_, err := s.RequestPermission(context.Background(), "u1", Granted, "", "")
	assert.ErrorIs(t, err, ErrMissingToken)
	assert.Equal(t, Default, s.Permission(context.Background(), "u1"))
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s, reg := newService(&now)
	_, err := s.RequestPermission(ctx, "u1", Granted, "tok-1", "")
	require.NoError(t, err)

	require.NoError(t, s.Revoke(ctx, "u1"))
	assert.Equal(t, Default, s.Permission(ctx, "u1"))
	tokens, _ := reg.Tokens(ctx, "u1")
	assert.Empty(t, tokens)
}
