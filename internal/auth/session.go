// Package auth stores the signed-in session record a view reads to decide
// whether progress reporting is enabled.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/p-n-ai/pai-catalog/internal/platform/cache"
)

// ErrNotFound is returned when no session exists for an id.
var ErrNotFound = errors.New("session not found")

// Preferences are the display defaults of a user.
type Preferences struct {
	Grade int    `json:"grade"`
	Board string `json:"board"`
}

// Session is the signed-in session record.
type Session struct {
	UserID      string      `json:"user_id"`
	Token       string      `json:"token"`
	Preferences Preferences `json:"preferences"`
}

// Validate checks the record carries a credential.
func (s Session) Validate() error {
	if s.UserID == "" {
		return fmt.Errorf("session: user_id is required")
	}
	if s.Token == "" {
		return fmt.Errorf("session: token is required")
	}
	if g := s.Preferences.Grade; g != 0 && (g < 5 || g > 12) {
		return fmt.Errorf("session: grade must be between 5 and 12, got %d", g)
	}
	return nil
}

// Store persists session records by session id.
type Store interface {
	Get(ctx context.Context, id string) (Session, error)
	Put(ctx context.Context, id string, s Session) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Put(_ context.Context, id string, s Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = s
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// RedisStore keeps session records in Dragonfly/Redis with a TTL.
type RedisStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewRedisStore creates a store whose records expire after ttl.
func NewRedisStore(c *cache.Cache, ttl time.Duration) *RedisStore {
	return &RedisStore{cache: c, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context, id string) (Session, error) {
	var s Session
	if err := r.cache.GetJSON(ctx, sessionKey(id), &s); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return Session{}, ErrNotFound
		}
		return Session{}, err
	}
	return s, nil
}

func (r *RedisStore) Put(ctx context.Context, id string, s Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return r.cache.SetJSON(ctx, sessionKey(id), s, r.ttl)
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.cache.Delete(ctx, sessionKey(id))
}

func sessionKey(id string) string {
	return "session:" + id
}

// Lookup returns the session for id. An empty id, or an id with no record, is
// not an error: ok is false.
func Lookup(ctx context.Context, store Store, id string) (s Session, ok bool, err error) {
	if id == "" || store == nil {
		return Session{}, false, nil
	}
	s, err = store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("loading session: %w", err)
	}
	return s, true, nil
}
