package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"qrattend/internal/attendance"
)

const sessionKey = "student:"

// RedisCache stores session identities as JSON under student:<session> with a TTL.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a cache on client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Save stores id for ttl.
func (c *RedisCache) Save(ctx context.Context, sessionID string, id attendance.Identity, ttl time.Duration) error {
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, sessionKey+sessionID, data, ttl).Err()
}

// Load returns the identity or ErrSessionNotFound.
func (c *RedisCache) Load(ctx context.Context, sessionID string) (attendance.Identity, error) {
	data, err := c.client.Get(ctx, sessionKey+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return attendance.Identity{}, ErrSessionNotFound
	}
	if err != nil {
		return attendance.Identity{}, err
	}
	var id attendance.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return attendance.Identity{}, err
	}
	return id, nil
}

// Delete removes the session.
func (c *RedisCache) Delete(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, sessionKey+sessionID).Err()
}

type cachedIdentity struct {
	id      attendance.Identity
	expires time.Time
}

// MemoryCache is a process-local SessionCache.
type MemoryCache struct {
	mu       sync.Mutex
	sessions map[string]cachedIdentity
	now      func() time.Time
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{sessions: make(map[string]cachedIdentity), now: time.Now}
}

// Save stores id for ttl.
func (c *MemoryCache) Save(_ context.Context, sessionID string, id attendance.Identity, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[sessionID] = cachedIdentity{id: id, expires: c.now().Add(ttl)}
	return nil
}

// Load returns the identity or ErrSessionNotFound.
func (c *MemoryCache) Load(_ context.Context, sessionID string) (attendance.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return attendance.Identity{}, ErrSessionNotFound
	}
	if c.now().After(s.expires) {
		delete(c.sessions, sessionID)
		return attendance.Identity{}, ErrSessionNotFound
	}
	return s.id, nil
}

// Delete removes the session.
func (c *MemoryCache) Delete(_ context.Context, sessionID string) error {
	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()
	return nil
}
