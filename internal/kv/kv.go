// Package kv is the durable per-user key-value cache: scroll bookmarks, the
// last push-prompt time, dismissed banners. Values never expire.
package kv

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Store is a byte-oriented key-value store.
type Store interface {
	// Get returns ok=false on a miss; a miss is not an error.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// GetValue decodes a msgpack value stored by SetValue into dest.
func GetValue(ctx context.Context, s Store, key string, dest interface{}) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := msgpack.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("kv: decode %s: %w", key, err)
	}
	return true, nil
}

// SetValue stores value msgpack-encoded.
func SetValue(ctx context.Context, s Store, key string, value interface{}) error {
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("kv: encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// BookmarkKey is the scroll bookmark of one user in one group.
func BookmarkKey(userID, groupID string) string {
	return fmt.Sprintf("bookmark:%s:%s", userID, groupID)
}

// PushPromptKey is the last time the user was asked for push permission.
func PushPromptKey(userID string) string {
	return fmt.Sprintf("push_prompt:%s", userID)
}

// BannerKey marks a dismissed banner.
func BannerKey(userID, banner string) string {
	return fmt.Sprintf("banner:%s:%s", userID, banner)
}

// DismissBanner records that userID dismissed banner.
func DismissBanner(ctx context.Context, s Store, userID, banner string) error {
	return SetValue(ctx, s, BannerKey(userID, banner), true)
}

// BannerDismissed reports whether userID dismissed banner. Read errors count
// as not dismissed.
func BannerDismissed(ctx context.Context, s Store, userID, banner string) bool {
	var dismissed bool
	ok, err := GetValue(ctx, s, BannerKey(userID, banner), &dismissed)
	return err == nil && ok && dismissed
}
