// Package push tracks notification permission and device tokens, and
// throttles how often a user is asked for permission.
package push

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/daijir/scripture-habit/internal/kv"
)

// Permission mirrors the browser notification permission.
type Permission string

const (
	Granted Permission = "granted"
	Denied  Permission = "denied"
	Default Permission = "default"
)

// PromptInterval is the minimum gap between permission prompts.
const PromptInterval = 3 * 24 * time.Hour

// ErrMissingToken is returned when a grant carries no device token.
var ErrMissingToken = errors.New("push: granted permission without a device token")

// Registry persists device tokens and permission state.
type Registry interface {
	Register(ctx context.Context, userID, token, userAgent string) error
	Revoke(ctx context.Context, userID string) error
	SetPermission(ctx context.Context, userID string, p Permission) error
	Permission(ctx context.Context, userID string) (Permission, error)
	Tokens(ctx context.Context, userID string) ([]string, error)
}

// Service is the push-registration collaborator.
type Service struct {
	reg Registry
	kv  kv.Store
	Now func() time.Time
}

func NewService(reg Registry, store kv.Store) *Service {
	return &Service{reg: reg, kv: store, Now: time.Now}
}

// RequestPermission records the outcome of a permission prompt. A grant
// must carry the device token to register.
func (s *Service) RequestPermission(ctx context.Context, userID string, outcome Permission, token, userAgent string) (Permission, error) {
	switch outcome {
	case Granted:
		if token == "" {
			return Default, ErrMissingToken
		}
		if err := s.reg.Register(ctx, userID, token, userAgent); err != nil {
			return Default, err
		}
	case Denied, Default:
	default:
		outcome = Default
	}
	if err := s.reg.SetPermission(ctx, userID, outcome); err != nil {
		return Default, err
	}
	return outcome, nil
}

// Revoke drops every device token and returns the user to Default.
func (s *Service) Revoke(ctx context.Context, userID string) error {
	if err := s.reg.Revoke(ctx, userID); err != nil {
		return err
	}
	return s.reg.SetPermission(ctx, userID, Default)
}

// Permission returns the stored permission, Default when unknown.
func (s *Service) Permission(ctx context.Context, userID string) Permission {
	p, err := s.reg.Permission(ctx, userID)
	if err != nil {
		log.Printf("push: permission lookup for %s: %v", userID, err)
		return Default
	}
	return p
}

// ShouldPrompt reports whether to ask userID for permission now: only while
// undecided, and at most once per PromptInterval.
func (s *Service) ShouldPrompt(ctx context.Context, userID string) bool {
	if s.Permission(ctx, userID) != Default {
		return false
	}
	var last int64
	ok, err := kv.GetValue(ctx, s.kv, kv.PushPromptKey(userID), &last)
	if err != nil {
		log.Printf("push: read prompt time for %s: %v", userID, err)
	}
	if !ok {
		return true
	}
	return s.Now().Sub(time.UnixMilli(last)) >= PromptInterval
}

// MarkPrompted records that the user was just asked.
func (s *Service) MarkPrompted(ctx context.Context, userID string) error {
	return kv.SetValue(ctx, s.kv, kv.PushPromptKey(userID), s.Now().UnixMilli())
}
