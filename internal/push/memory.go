package push

import (
	"context"
	"sync"
)

// MemoryRegistry is a Registry for tests and runs without Postgres.
type MemoryRegistry struct {
	mu          sync.Mutex
	tokens      map[string]string // token -> user
	permissions map[string]Permission
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		tokens:      make(map[string]string),
		permissions: make(map[string]Permission),
	}
}

func (r *MemoryRegistry) Register(ctx context.Context, userID, token, userAgent string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token] = userID
	return nil
}

func (r *MemoryRegistry) Revoke(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, uid := range r.tokens {
		if uid == userID {
			delete(r.tokens, token)
		}
	}
	return nil
}

func (r *MemoryRegistry) SetPermission(ctx context.Context, userID string, p Permission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.permissions[userID] = p
	return nil
}

func (r *MemoryRegistry) Permission(ctx context.Context, userID string) (Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.permissions[userID]; ok {
		return p, nil
	}
	return Default, nil
}

func (r *MemoryRegistry) Tokens(ctx context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for token, uid := range r.tokens {
		if uid == userID {
			out = append(out, token)
		}
	}
	return out, nil
}
