package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("FRONTEND_URL", "")
	t.Setenv("SCROLL_DEBOUNCE_MS", "")
	t.Setenv("ENV", "")

	cfg := Load()
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, 500*time.Millisecond, cfg.ScrollDebounce)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://scripture-habit.app, https://www.scripture-habit.app")
	t.Setenv("SCROLL_DEBOUNCE_MS", "250")
	t.Setenv("LINK_PREVIEW_TTL_MINUTES", "not-a-number")
	t.Setenv("ENV", " Production ")
	t.Setenv("TRUST_PROXY", "true")

	cfg := Load()
	assert.Equal(t, []string{"https://scripture-habit.app", "https://www.scripture-habit.app"}, cfg.AllowedOrigins)
	assert.Equal(t, 250*time.Millisecond, cfg.ScrollDebounce)
	assert.Equal(t, time.Hour, cfg.PreviewTTL)
	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.TrustProxy)
}
