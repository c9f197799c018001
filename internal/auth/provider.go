// Package auth holds the signed-in identity of a connection, mints id tokens
// for outbound side-service calls and validates session tokens.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSignedOut is returned when an id token is requested with no identity.
var ErrSignedOut = errors.New("auth: not signed in")

// tokenRefreshMargin renews cached id tokens this long before they expire.
const tokenRefreshMargin = 5 * time.Minute

// Identity is the signed-in user.
type Identity struct {
	UserID string
}

// Provider tracks one connection's identity. Listeners run synchronously on
// the goroutine that changes the identity.
type Provider struct {
	tokens *TokenService

	mu        sync.Mutex
	current   *Identity
	token     string
	tokenExp  time.Time
	listeners []func(id Identity, signedIn bool)
}

func NewProvider(tokens *TokenService) *Provider {
	return &Provider{tokens: tokens}
}

// Current returns the signed-in identity.
func (p *Provider) Current() (Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return Identity{}, false
	}
	return *p.current, true
}

// SignIn sets the identity and notifies listeners if it changed.
func (p *Provider) SignIn(userID string) {
	p.mu.Lock()
	if p.current != nil && p.current.UserID == userID {
		p.mu.Unlock()
		return
	}
	id := Identity{UserID: userID}
	p.current = &id
	p.token = ""
	listeners := append([]func(Identity, bool){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(id, true)
	}
}

// SignOut clears the identity and notifies listeners.
func (p *Provider) SignOut() {
	p.mu.Lock()
	if p.current == nil {
		p.mu.Unlock()
		return
	}
	prev := *p.current
	p.current = nil
	p.token = ""
	listeners := append([]func(Identity, bool){}, p.listeners...)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(prev, false)
	}
}

// OnChange registers fn for identity changes.
func (p *Provider) OnChange(fn func(id Identity, signedIn bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// IDToken returns a bearer token for the signed-in user, reusing a cached
// one until it is close to expiry.
func (p *Provider) IDToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return "", ErrSignedOut
	}
	if p.token != "" && time.Until(p.tokenExp) > tokenRefreshMargin {
		return p.token, nil
	}
	token, exp, err := p.tokens.CreateForUser(p.current.UserID)
	if err != nil {
		return "", err
	}
	p.token, p.tokenExp = token, exp
	return token, nil
}
