package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

const upsertResourceSQL = `INSERT INTO topic_resources (resource_id, resource_author) VALUES ($1, $2)
	 ON CONFLICT (resource_id) DO UPDATE SET resource_author = EXCLUDED.resource_author`

// PostgresStore is a PostgreSQL-backed Store. Video preferences live in the
// users.video_preferences JSONB column keyed by resource id.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed tracking store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// AddUser inserts or updates a user and its API token.
func (s *PostgresStore) AddUser(ctx context.Context, userID, token string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (user_id, token) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET token = EXCLUDED.token`,
		userID, token,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// AddResource inserts or updates a trackable resource.
func (s *PostgresStore) AddResource(ctx context.Context, resourceID, author string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := s.pool.Exec(ctx, upsertResourceSQL, resourceID, author); err != nil {
		return fmt.Errorf("upsert resource: %w", err)
	}
	return nil
}

// SyncResources upserts every resource in one batch.
func (s *PostgresStore) SyncResources(ctx context.Context, resources []CatalogResource) error {
	if len(resources) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	batch := &pgx.Batch{}
	for _, r := range resources {
		batch.Queue(upsertResourceSQL, r.ID, r.Author)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("sync resources: %w", err)
	}
	return nil
}

func (s *PostgresStore) Authorize(ctx context.Context, userID, token string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var stored string
	err := s.pool.QueryRow(ctx,
		`SELECT token FROM users WHERE user_id = $1`,
		userID,
	).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrUnauthorized
	}
	if err != nil {
		return fmt.Errorf("query token: %w", err)
	}
	if !tokensMatch(stored, token) {
		return ErrUnauthorized
	}
	return nil
}

// Track applies the report inside one transaction, locking the user row so
// concurrent reports for the same user serialize.
func (s *PostgresStore) Track(ctx context.Context, req TrackRequest) (VideoPreferences, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return VideoPreferences{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var author string
	err = tx.QueryRow(ctx,
		`SELECT resource_author FROM topic_resources WHERE resource_id = $1`,
		req.ResourceID,
	).Scan(&author)
	if errors.Is(err, pgx.ErrNoRows) {
		return VideoPreferences{}, ErrResourceNotFound
	}
	if err != nil {
		return VideoPreferences{}, fmt.Errorf("query resource: %w", err)
	}

	var raw []byte
	err = tx.QueryRow(ctx,
		`SELECT video_preferences FROM users WHERE user_id = $1 FOR UPDATE`,
		req.UserID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return VideoPreferences{}, fmt.Errorf("user not found: %s", req.UserID)
	}
	if err != nil {
		return VideoPreferences{}, fmt.Errorf("query video preferences: %w", err)
	}

	prefs := make(map[string]VideoPreferences)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &prefs); err != nil {
			return VideoPreferences{}, fmt.Errorf("decode video preferences: %w", err)
		}
	}

	p := Apply(prefs[req.ResourceID], req, author)
	prefs[req.ResourceID] = p

	data, err := json.Marshal(prefs)
	if err != nil {
		return VideoPreferences{}, fmt.Errorf("encode video preferences: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE users SET video_preferences = $1::jsonb WHERE user_id = $2`,
		string(data), req.UserID,
	); err != nil {
		return VideoPreferences{}, fmt.Errorf("update video preferences: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return VideoPreferences{}, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

// VideoPreferences returns a user's per-resource preferences.
func (s *PostgresStore) VideoPreferences(ctx context.Context, userID string) (map[string]VideoPreferences, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var raw []byte
	if err := s.pool.QueryRow(ctx,
		`SELECT video_preferences FROM users WHERE user_id = $1`,
		userID,
	).Scan(&raw); err != nil {
		return nil, fmt.Errorf("query video preferences: %w", err)
	}
	prefs := make(map[string]VideoPreferences)
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return nil, fmt.Errorf("decode video preferences: %w", err)
	}
	return prefs, nil
}
