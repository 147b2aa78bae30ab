package service

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// IdempotencyStore — хранилище ключей обработанных событий.
type IdempotencyStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// IdempotencyGuard отмечает события вебхука как обработанные, чтобы повторная доставка была no-op.
type IdempotencyGuard struct {
	store IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store IdempotencyStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// CheckAndMark возвращает true, если событие уже обрабатывалось.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(g.scope, eventID), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Delete снимает отметку, чтобы провайдер мог повторить доставку после ошибки обработки.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, eventID))
}

// MemoryIdempotencyStore хранит ключи в CacheService. Подходит для одного экземпляра и тестов.
type MemoryIdempotencyStore struct {
	cache *CacheService
}

func NewMemoryIdempotencyStore(cache *CacheService) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{cache: cache}
}

func (s *MemoryIdempotencyStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return s.cache.SetIfAbsent(key, value, ttl), nil
}

func (s *MemoryIdempotencyStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.cache.Delete(key)
	}
	return nil
}

func (s *MemoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}
