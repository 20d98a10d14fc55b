package credentials

import (
	"context"
	"errors"
	"strings"

	"server/internal/infra"
	"server/internal/sqlinline"
)

const (
	ProviderGemini = "gemini"
)

// Store reads the pooled API keys for a provider from the database. The pool
// is ordered by priority; the order drives the retry sequence. The store only
// reads during job execution; key administration goes through the CLI.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Keys returns the ordered, non-revoked API keys for the provider. An empty
// result is not an error; the caller decides whether to fall back to
// environment-supplied keys.
func (s *Store) Keys(ctx context.Context, provider string) ([]string, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QSelectProviderKeys, provider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	return keys, rows.Err()
}

// GeminiKeys returns the pooled Gemini keys.
func (s *Store) GeminiKeys(ctx context.Context) ([]string, error) {
	return s.Keys(ctx, ProviderGemini)
}

// AddKey registers (or un-revokes) a pooled key at the given priority.
func (s *Store) AddKey(ctx context.Context, provider, key string, priority int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("api key is required")
	}
	_, err := s.sql.Exec(ctx, sqlinline.QInsertProviderKey, provider, key, priority)
	return err
}

// RevokeKey removes a key from the pool without deleting its audit trail.
func (s *Store) RevokeKey(ctx context.Context, provider, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("api key is required")
	}
	_, err := s.sql.Exec(ctx, sqlinline.QRevokeProviderKey, provider, key)
	return err
}
