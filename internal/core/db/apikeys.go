package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// APIKeyRecord is the stored metadata of an API key. The key itself is
// never stored, only its HMAC.
type APIKeyRecord struct {
	APIKeyID   string       `db:"api_key_id"`
	Name       string       `db:"name"`
	CreatedAt  time.Time    `db:"created_at"`
	LastUsedAt sql.NullTime `db:"last_used_at"`
	RevokedAt  sql.NullTime `db:"revoked_at"`
}

// CreateAPIKey records a key by its HMAC hash and returns the new key id.
func (s *Store) CreateAPIKey(ctx context.Context, name string, keyHash []byte) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()
	if _, err := s.queries.Exec(ctx, "insert-api-key", id, name, keyHash, s.now()); err != nil {
		return "", fmt.Errorf("insert api key: %w", err)
	}
	return id, nil
}

// RevokeAPIKey marks id revoked. Revoking twice is an error.
func (s *Store) RevokeAPIKey(ctx context.Context, id string) error {
	res, err := s.queries.Exec(ctx, "revoke-api-key", s.now(), id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("api key %s not found or already revoked", id)
	}
	return nil
}

// ListAPIKeys returns every key ordered by creation time.
func (s *Store) ListAPIKeys(ctx context.Context) ([]APIKeyRecord, error) {
	var keys []APIKeyRecord
	if err := s.queries.Select(ctx, "list-api-keys", &keys); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}
