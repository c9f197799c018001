package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	ts := NewTokenService("secret", time.Hour)
	token, exp, err := ts.CreateForUser("u1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	sub, err := ts.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", sub)

	_, err = NewTokenService("other", time.Hour).Parse(token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	ts := NewTokenService("secret", -time.Minute)
	token, _, err := ts.CreateForUser("u1")
	require.NoError(t, err)
	_, err = ts.Parse(token)
	assert.Error(t, err)
}

func TestProviderEvents(t *testing.T) {
	p := NewProvider(NewTokenService("secret", time.Hour))
	var events []string
	p.OnChange(func(id Identity, signedIn bool) {
		if signedIn {
			events = append(events, "in:"+id.UserID)
		} else {
			events = append(events, "out:"+id.UserID)
		}
	})

	_, err := p.IDToken(context.Background())
	assert.ErrorIs(t, err, ErrSignedOut)

	p.SignIn("u1")
	p.SignIn("u1")
	id, ok := p.Current()
	require.True(t, ok)
	assert.Equal(t, "u1", id.UserID)

	tok1, err := p.IDToken(context.Background())
	require.NoError(t, err)
	tok2, err := p.IDToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tok1, tok2)

	p.SignIn("u2")
	p.SignOut()
	p.SignOut()
	assert.Equal(t, []string{"in:u1", "in:u2", "out:u2"}, events)
	_, ok = p.Current()
	assert.False(t, ok)
}
