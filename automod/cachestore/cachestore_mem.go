package cachestore

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// In-process cache. Names with their own TTL (see NameTTL) get a dedicated LRU of the same capacity; all other names share one.
type MemCacheStore struct {
	capacity int
	shared   *expirable.LRU[string, string]

	lk    sync.RWMutex
	named map[string]*expirable.LRU[string, string]
}

var _ CacheStore = (*MemCacheStore)(nil)

func NewMemCacheStore(capacity int, ttl time.Duration) *MemCacheStore {
	return &MemCacheStore{
		capacity: capacity,
		shared:   expirable.NewLRU[string, string](capacity, nil, ttl),
		named:    make(map[string]*expirable.LRU[string, string]),
	}
}

// Gives a name its own expiry. Any values already cached under the name are dropped.
func (s *MemCacheStore) NameTTL(name string, ttl time.Duration) {
	s.lk.Lock()
	s.named[name] = expirable.NewLRU[string, string](s.capacity, nil, ttl)
	s.lk.Unlock()
}

func (s *MemCacheStore) lru(name string) *expirable.LRU[string, string] {
	s.lk.RLock()
	defer s.lk.RUnlock()
	if l, ok := s.named[name]; ok {
		return l
	}
	return s.shared
}

func (s *MemCacheStore) Get(ctx context.Context, name, key string) (string, error) {
	v, ok := s.lru(name).Get(name + "/" + key)
	if !ok {
		return "", nil
	}
	return v, nil
}

func (s *MemCacheStore) Set(ctx context.Context, name, key string, val string) error {
	s.lru(name).Add(name+"/"+key, val)
	return nil
}

func (s *MemCacheStore) Purge(ctx context.Context, name, key string) error {
	s.lru(name).Remove(name + "/" + key)
	return nil
}
