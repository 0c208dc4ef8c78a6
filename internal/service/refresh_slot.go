package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefreshSlot guarda el jti del refresh token vigente de cada usuario.
// El slot se sobreescribe en cada emision y se limpia en logout.
type RefreshSlot interface {
	Set(ctx context.Context, userID, jti string, ttl time.Duration) error
	Get(ctx context.Context, userID string) (string, error)
	Clear(ctx context.Context, userID string) error
}

type redisRefreshSlot struct {
	client *redis.Client
	prefix string
}

func NewRedisRefreshSlot(client *redis.Client) RefreshSlot {
	if client == nil {
		return nil
	}
	return &redisRefreshSlot{client: client, prefix: "refresh_token:"}
}

func (s *redisRefreshSlot) Set(ctx context.Context, userID, jti string, ttl time.Duration) error {
	if strings.TrimSpace(userID) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return s.client.Set(ctx, s.prefix+userID, jti, ttl).Err()
}

func (s *redisRefreshSlot) Get(ctx context.Context, userID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	jti, err := s.client.Get(ctx, s.prefix+userID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return jti, err
}

func (s *redisRefreshSlot) Clear(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return s.client.Del(ctx, s.prefix+userID).Err()
}

type memoryRefreshSlot struct {
	mu    sync.Mutex
	items map[string]memorySlotEntry
}

type memorySlotEntry struct {
	jti string
	exp time.Time
}

// NewMemoryRefreshSlot crea un slot en memoria para operar sin Redis.
func NewMemoryRefreshSlot() RefreshSlot {
	return &memoryRefreshSlot{items: make(map[string]memorySlotEntry)}
}

func (s *memoryRefreshSlot) Set(_ context.Context, userID, jti string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[userID] = memorySlotEntry{jti: jti, exp: time.Now().UTC().Add(ttl)}
	return nil
}

func (s *memoryRefreshSlot) Get(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[userID]
	if !ok {
		return "", nil
	}
	if time.Now().UTC().After(entry.exp) {
		delete(s.items, userID)
		return "", nil
	}
	return entry.jti, nil
}

func (s *memoryRefreshSlot) Clear(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, userID)
	return nil
}
