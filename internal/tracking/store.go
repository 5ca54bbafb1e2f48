// Package tracking ingests video progress reports and folds them into each
// user's per-resource video preferences.
package tracking

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/p-n-ai/pai-catalog/internal/curriculum"
)

var (
	ErrUnauthorized     = errors.New("authentication_failed")
	ErrResourceNotFound = errors.New("resource not found")
)

// TrackRequest is the body of PATCH /api/videos/track.
type TrackRequest struct {
	UserID       string  `json:"user_id"`
	ResourceID   string  `json:"resource_id"`
	Duration     float64 `json:"duration"`
	State        int     `json:"state"`
	IFrame       bool    `json:"iframe"`
	FullyWatched bool    `json:"fully_watched"`
}

// VideoPreferences is what is kept per user and resource.
type VideoPreferences struct {
	Views          int     `json:"views"`
	Progress       float64 `json:"progress"`
	Rating         float64 `json:"rating"`
	Review         string  `json:"review"`
	TimesWatched   int     `json:"times_watched"`
	ResourceAuthor string  `json:"resource_author"`
}

// Apply folds one report into p. A viewer-open report counts a view; any
// other report advances progress, which never moves backwards. A report
// marked fully watched counts a full watch.
func Apply(p VideoPreferences, req TrackRequest, author string) VideoPreferences {
	if req.IFrame {
		p.Views++
	} else if req.Duration > p.Progress {
		p.Progress = req.Duration
	}
	if req.FullyWatched {
		p.TimesWatched++
	}
	p.ResourceAuthor = author
	return p
}

// Store authorizes and records progress reports.
type Store interface {
	Authorize(ctx context.Context, userID, token string) error
	Track(ctx context.Context, req TrackRequest) (VideoPreferences, error)
}

// CatalogResource is a trackable resource and the author its views credit.
type CatalogResource struct {
	ID     string
	Author string
}

// ResourceRegistry accepts the trackable resources published by the catalog.
// Syncing only adds or updates; resources that disappear from the catalog
// keep their recorded progress.
type ResourceRegistry interface {
	SyncResources(ctx context.Context, resources []CatalogResource) error
}

// SyncCatalog registers every video resource of the catalog with reg.
func SyncCatalog(ctx context.Context, reg ResourceRegistry, resources []curriculum.Resource) error {
	out := make([]CatalogResource, 0, len(resources))
	for _, r := range resources {
		if r.ID == "" || r.VideoID() == "" {
			continue
		}
		out = append(out, CatalogResource{ID: r.ID, Author: r.Author()})
	}
	if len(out) == 0 {
		return nil
	}
	if err := reg.SyncResources(ctx, out); err != nil {
		return err
	}
	slog.Info("tracking resources synced", "count", len(out))
	return nil
}

// tokensMatch compares a stored token with a presented one in constant time.
func tokensMatch(stored, presented string) bool {
	return stored != "" && subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}

type memoryUser struct {
	token  string
	videos map[string]VideoPreferences
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]*memoryUser
	resources map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]*memoryUser),
		resources: make(map[string]string),
	}
}

// AddUser registers a user and its API token. Re-adding a user replaces the
// token and keeps the recorded progress.
func (s *MemoryStore) AddUser(userID, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.token = token
		return
	}
	s.users[userID] = &memoryUser{token: token, videos: make(map[string]VideoPreferences)}
}

// AddResource registers a trackable resource.
func (s *MemoryStore) AddResource(resourceID, author string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources[resourceID] = author
}

func (s *MemoryStore) SyncResources(_ context.Context, resources []CatalogResource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range resources {
		s.resources[r.ID] = r.Author
	}
	return nil
}

func (s *MemoryStore) Authorize(_ context.Context, userID, token string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok || !tokensMatch(u.token, token) {
		return ErrUnauthorized
	}
	return nil
}

func (s *MemoryStore) Track(_ context.Context, req TrackRequest) (VideoPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	author, ok := s.resources[req.ResourceID]
	if !ok {
		return VideoPreferences{}, ErrResourceNotFound
	}
	u, ok := s.users[req.UserID]
	if !ok {
		return VideoPreferences{}, fmt.Errorf("user not found: %s", req.UserID)
	}
	p := Apply(u.videos[req.ResourceID], req, author)
	u.videos[req.ResourceID] = p
	return p, nil
}

// VideoPreferences returns a copy of a user's per-resource preferences.
func (s *MemoryStore) VideoPreferences(userID string) map[string]VideoPreferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil
	}
	out := make(map[string]VideoPreferences, len(u.videos))
	for k, v := range u.videos {
		out[k] = v
	}
	return out
}
