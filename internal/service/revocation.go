package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Prefijos de claves del registro de revocacion.
const (
	AccessBlacklistPrefix  = "blacklist:"
	RefreshBlacklistPrefix = "blacklist:refresh:"
)

// RevocationRegistry marca tokens emitidos como ya no honorables.
// Ambas operaciones son best-effort: si el store no responde, MarkRevoked
// degrada a no-op y IsRevoked responde false (fail open). Un token que se
// cuela por esto sigue acotado por su propio expiry.
type RevocationRegistry interface {
	MarkRevoked(ctx context.Context, token string, ttl time.Duration)
	IsRevoked(ctx context.Context, token string) bool
}

type redisKV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisRevocationRegistry struct {
	client redisKV
	logger *zap.Logger
	prefix string
}

func NewRedisRevocationRegistry(client *redis.Client, logger *zap.Logger, prefix string) RevocationRegistry {
	if client == nil {
		return nil
	}
	if prefix == "" {
		prefix = AccessBlacklistPrefix
	}
	return &redisRevocationRegistry{client: client, logger: logger, prefix: prefix}
}

func (r *redisRevocationRegistry) MarkRevoked(ctx context.Context, token string, ttl time.Duration) {
	if strings.TrimSpace(token) == "" || ttl <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if err := r.client.Set(ctx, r.prefix+token, "1", ttl).Err(); err != nil && r.logger != nil {
		r.logger.Warn("revocation write failed", zap.Error(err))
	}
}

func (r *redisRevocationRegistry) IsRevoked(ctx context.Context, token string) bool {
	if strings.TrimSpace(token) == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	n, err := r.client.Exists(ctx, r.prefix+token).Result()
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("revocation read failed", zap.Error(err))
		}
		return false
	}
	return n > 0
}

type memoryRevocationRegistry struct {
	mu    sync.Mutex
	items map[string]time.Time
}

// NewMemoryRevocationRegistry crea un registro en memoria para operar sin Redis.
func NewMemoryRevocationRegistry() RevocationRegistry {
	return &memoryRevocationRegistry{items: make(map[string]time.Time)}
}

func (r *memoryRevocationRegistry) MarkRevoked(_ context.Context, token string, ttl time.Duration) {
	if strings.TrimSpace(token) == "" || ttl <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[token] = time.Now().UTC().Add(ttl)
}

func (r *memoryRevocationRegistry) IsRevoked(_ context.Context, token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.items[token]
	if !ok {
		return false
	}
	if time.Now().UTC().After(exp) {
		delete(r.items, token)
		return false
	}
	return true
}
