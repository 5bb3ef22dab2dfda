package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wareflow/wareflow-backend/pkg/cache"
	"github.com/wareflow/wareflow-backend/pkg/errors"
)

const keyPrefix = "stockin:session:"

// Store persists draft sessions between requests
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// CacheStore keeps sessions as JSON in Redis or the in-process cache.
// Every save refreshes the TTL.
type CacheStore struct {
	client cache.Client
	ttl    time.Duration
}

// NewCacheStore creates a session store
func NewCacheStore(client cache.Client, ttl time.Duration) *CacheStore {
	return &CacheStore{client: client, ttl: ttl}
}

// Get loads a session or returns NotFound
func (s *CacheStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := s.client.Get(ctx, keyPrefix+id)
	if err == cache.ErrCacheMiss {
		return nil, errors.NotFound("session")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &sess, nil
}

// Save writes the session
func (s *CacheStore) Save(ctx context.Context, sess *Session) error {
	body, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+sess.ID, body, s.ttl); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Delete removes the session
func (s *CacheStore) Delete(ctx context.Context, id string) error {
	return s.client.Delete(ctx, keyPrefix+id)
}
