package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"oba-connect/internal/domain"
)

// Session es la proyeccion cacheada del usuario autenticado.
// La identidad y el rol para autorizar salen siempre del token verificado;
// aqui solo puede quedar momentaneamente viejo lo que se muestra.
type Session struct {
	domain.Identity
	Verified     bool                   `json:"verified"`
	TokenVersion int64                  `json:"tokenVersion"`
	Profile      domain.DiasporaProfile `json:"profile"`
	Points       int                    `json:"points"`
}

func SessionFromUser(u domain.User) Session {
	return Session{
		Identity:     u.Identity(),
		Verified:     u.EmailVerified,
		TokenVersion: u.TokenVersion,
		Profile:      u.Profile,
		Points:       u.Points,
	}
}

// SessionCache es un cache read-through best-effort del perfil por usuario.
type SessionCache interface {
	Get(ctx context.Context, userID string) (Session, bool)
	Set(ctx context.Context, userID string, sess Session)
	Invalidate(ctx context.Context, userID string)
}

type redisKVDel interface {
	redisKV
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisSessionCache struct {
	client redisKVDel
	logger *zap.Logger
	ttl    time.Duration
	prefix string
}

func NewRedisSessionCache(client *redis.Client, logger *zap.Logger, ttl time.Duration) SessionCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &redisSessionCache{
		client: client,
		logger: logger,
		ttl:    ttl,
		prefix: "session:user:",
	}
}

func (c *redisSessionCache) Get(ctx context.Context, userID string) (Session, bool) {
	if strings.TrimSpace(userID) == "" {
		return Session{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	raw, err := c.client.Get(ctx, c.prefix+userID).Result()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.Warn("session cache read failed", zap.Error(err))
		}
		return Session{}, false
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return Session{}, false
	}
	return sess, true
}

func (c *redisSessionCache) Set(ctx context.Context, userID string, sess Session) {
	if strings.TrimSpace(userID) == "" {
		return
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := c.client.Set(ctx, c.prefix+userID, raw, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn("session cache write failed", zap.Error(err))
	}
}

func (c *redisSessionCache) Invalidate(ctx context.Context, userID string) {
	if strings.TrimSpace(userID) == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := c.client.Del(ctx, c.prefix+userID).Err(); err != nil && c.logger != nil {
		c.logger.Warn("session cache invalidate failed", zap.Error(err))
	}
}

type memorySessionCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]memorySessionEntry
}

type memorySessionEntry struct {
	sess Session
	exp  time.Time
}

// NewMemorySessionCache crea un cache en memoria para operar sin Redis.
func NewMemorySessionCache(ttl time.Duration) SessionCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &memorySessionCache{ttl: ttl, items: make(map[string]memorySessionEntry)}
}

func (c *memorySessionCache) Get(_ context.Context, userID string) (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.items[userID]
	if !ok {
		return Session{}, false
	}
	if time.Now().UTC().After(entry.exp) {
		delete(c.items, userID)
		return Session{}, false
	}
	return entry.sess, true
}

func (c *memorySessionCache) Set(_ context.Context, userID string, sess Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[userID] = memorySessionEntry{sess: sess, exp: time.Now().UTC().Add(c.ttl)}
}

func (c *memorySessionCache) Invalidate(_ context.Context, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, userID)
}
