package cachestore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// Redis-backed cache, with a small in-process TinyLFU layer in front. All keys live under a namespace, so several deployments can share a redis instance.
type RedisCacheStore struct {
	Data      *cache.Cache
	namespace string

	lk      sync.RWMutex
	ttl     time.Duration
	nameTTL map[string]time.Duration
}

var _ CacheStore = (*RedisCacheStore)(nil)

// Wraps an existing (already connected) client. The local cache layer never holds values longer than ttl.
func NewRedisCacheStore(rdb *redis.Client, namespace string, ttl time.Duration) *RedisCacheStore {
	data := cache.New(&cache.Options{
		Redis:      rdb,
		LocalCache: cache.NewTinyLFU(10_000, min(ttl, time.Minute)),
	})
	return &RedisCacheStore{
		Data:      data,
		namespace: namespace,
		ttl:       ttl,
		nameTTL:   make(map[string]time.Duration),
	}
}

// Overrides the expiry for a single name. Applies to values set after the call.
func (s *RedisCacheStore) NameTTL(name string, ttl time.Duration) {
	s.lk.Lock()
	s.nameTTL[name] = ttl
	s.lk.Unlock()
}

func (s *RedisCacheStore) ttlFor(name string) time.Duration {
	s.lk.RLock()
	defer s.lk.RUnlock()
	if ttl, ok := s.nameTTL[name]; ok {
		return ttl
	}
	return s.ttl
}

func (s *RedisCacheStore) key(name, key string) string {
	return s.namespace + "cache/" + name + "/" + key
}

func (s *RedisCacheStore) Get(ctx context.Context, name, key string) (string, error) {
	var val string
	err := s.Data.Get(ctx, s.key(name, key), &val)
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *RedisCacheStore) Set(ctx context.Context, name, key string, val string) error {
	return s.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   s.key(name, key),
		Value: val,
		TTL:   s.ttlFor(name),
	})
}

func (s *RedisCacheStore) Purge(ctx context.Context, name, key string) error {
	err := s.Data.Delete(ctx, s.key(name, key))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}
