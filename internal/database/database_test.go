package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"mongodb://localhost:27017/habits", "habits"},
		{"mongodb+srv://user:pw@cluster0.example.net/habits?retryWrites=true", "habits"},
		{"mongodb://localhost:27017/", DefaultDatabase},
		{"mongodb://localhost:27017", DefaultDatabase},
		{"", DefaultDatabase},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DatabaseName(tt.uri), tt.uri)
	}
}

func TestHealthWithoutBackends(t *testing.T) {
	status := Health(context.Background())
	assert.Empty(t, status)
	assert.True(t, Healthy(status))
	assert.False(t, Healthy(map[string]string{"redis": "ok", "mongodb": "server selection timeout"}))
}
