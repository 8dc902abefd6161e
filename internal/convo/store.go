package convo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default TTLs. Context records have no automatic expiry per se; the long TTL
// only keeps abandoned conversations from accumulating in Redis.
const (
	ContextTTL          = 7 * 24 * time.Hour
	TaskConfirmTTL      = 30 * time.Minute
	DuplicateConfirmTTL = 10 * time.Minute
	CursorTTL           = 10 * time.Minute
)

// Store persists per-user conversational state with upsert semantics:
// one context per user, at most one live confirmation per user, at most one
// cursor per (user, entity type).
type Store interface {
	LoadContext(ctx context.Context, userID string) (*Context, error)
	SaveContext(ctx context.Context, userID string, c *Context) error

	LoadConfirmation(ctx context.Context, userID string) (*Confirmation, error)
	SaveConfirmation(ctx context.Context, userID string, c *Confirmation) error
	DeleteConfirmation(ctx context.Context, userID string) error

	LoadCursor(ctx context.Context, userID string, entity EntityType) (*Cursor, error)
	SaveCursor(ctx context.Context, userID string, c *Cursor) error
	DeleteCursor(ctx context.Context, userID string, entity EntityType) error
}

type redisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewStore creates a Redis-backed conversational state store.
func NewStore(client *redis.Client) Store {
	return &redisStore{client: client, now: time.Now}
}

// NewStoreWithClock is used by tests to control expiry comparisons.
func NewStoreWithClock(client *redis.Client, now func() time.Time) Store {
	return &redisStore{client: client, now: now}
}

func contextKey(userID string) string {
	return "convo:ctx:" + userID
}

func confirmKey(userID string) string {
	return "convo:confirm:" + userID
}

func cursorKey(userID string, entity EntityType) string {
	return fmt.Sprintf("convo:cursor:%s:%s", userID, entity)
}

func (s *redisStore) LoadContext(ctx context.Context, userID string) (*Context, error) {
	c := &Context{}
	ok, err := s.load(ctx, contextKey(userID), c)
	if err != nil || !ok {
		return nil, err
	}
	return c, nil
}

func (s *redisStore) SaveContext(ctx context.Context, userID string, c *Context) error {
	return s.save(ctx, contextKey(userID), c, ContextTTL)
}

// LoadConfirmation returns the live confirmation for userID, or nil. A record
// past its ExpiresAt is deleted and treated as absent; the Redis TTL is only a
// safety net since expiry is decided by timestamp comparison at read time.
func (s *redisStore) LoadConfirmation(ctx context.Context, userID string) (*Confirmation, error) {
	c := &Confirmation{}
	ok, err := s.load(ctx, confirmKey(userID), c)
	if err != nil || !ok {
		return nil, err
	}
	if c.Expired(s.now()) {
		_ = s.client.Del(ctx, confirmKey(userID)).Err()
		return nil, nil
	}
	return c, nil
}

func (s *redisStore) SaveConfirmation(ctx context.Context, userID string, c *Confirmation) error {
	ttl := c.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errors.New("confirmation already expired")
	}
	return s.save(ctx, confirmKey(userID), c, ttl)
}

func (s *redisStore) DeleteConfirmation(ctx context.Context, userID string) error {
	return s.client.Del(ctx, confirmKey(userID)).Err()
}

func (s *redisStore) LoadCursor(ctx context.Context, userID string, entity EntityType) (*Cursor, error) {
	c := &Cursor{}
	ok, err := s.load(ctx, cursorKey(userID, entity), c)
	if err != nil || !ok {
		return nil, err
	}
	if c.Expired(s.now()) {
		_ = s.client.Del(ctx, cursorKey(userID, entity)).Err()
		return nil, nil
	}
	return c, nil
}

func (s *redisStore) SaveCursor(ctx context.Context, userID string, c *Cursor) error {
	ttl := c.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errors.New("cursor already expired")
	}
	return s.save(ctx, cursorKey(userID, c.EntityType), c, ttl)
}

func (s *redisStore) DeleteCursor(ctx context.Context, userID string, entity EntityType) error {
	return s.client.Del(ctx, cursorKey(userID, entity)).Err()
}

func (s *redisStore) save(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) load(ctx context.Context, key string, v any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("getting %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		// Malformed state is treated as absent rather than poisoning the
		// conversation forever.
		_ = s.client.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}
