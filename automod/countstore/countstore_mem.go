package countstore

import (
	"context"
	"sync"
	"time"
)

// how often expired hour and day buckets are swept
const memPruneInterval = time.Minute

// In-process counters. Hour and day buckets expire like they do in redis; totals are kept for the life of the process.
type MemCountStore struct {
	lk             sync.RWMutex
	Counts         map[string]int
	DistinctCounts map[string]map[string]bool
	// expiry of each period bucket which has one
	expires   map[string]time.Time
	lastPrune time.Time
}

var _ CountStore = (*MemCountStore)(nil)

func NewMemCountStore() *MemCountStore {
	return &MemCountStore{
		Counts:         make(map[string]int),
		DistinctCounts: make(map[string]map[string]bool),
		expires:        make(map[string]time.Time),
		lastPrune:      time.Now(),
	}
}

func (s *MemCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()
	return s.Counts[periodBucket(name, val, period)], nil
}

// Must hold the write lock.
func (s *MemCountStore) expire(k string, ttl time.Duration, now time.Time) {
	if ttl <= 0 {
		return
	}
	if _, ok := s.expires[k]; !ok {
		s.expires[k] = now.Add(ttl)
	}
}

// Drops buckets expired as of now. Must hold the write lock.
func (s *MemCountStore) prune(now time.Time) {
	for k, exp := range s.expires {
		if now.Before(exp) {
			continue
		}
		delete(s.Counts, k)
		delete(s.DistinctCounts, k)
		delete(s.expires, k)
	}
	s.lastPrune = now
}

func (s *MemCountStore) maybePrune(now time.Time) {
	if now.Sub(s.lastPrune) >= memPruneInterval {
		s.prune(now)
	}
}

func (s *MemCountStore) Increment(ctx context.Context, name, val string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	now := time.Now()
	s.maybePrune(now)
	for _, p := range periodTTL {
		k := periodBucket(name, val, p.period)
		s.Counts[k]++
		s.expire(k, p.ttl, now)
	}
	return nil
}

func (s *MemCountStore) GetCountDistinct(ctx context.Context, name, bucket, period string) (int, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()
	return len(s.DistinctCounts[periodBucket(name, bucket, period)]), nil
}

func (s *MemCountStore) IncrementDistinct(ctx context.Context, name, bucket, val string) error {
	s.lk.Lock()
	defer s.lk.Unlock()
	now := time.Now()
	s.maybePrune(now)
	for _, p := range periodTTL {
		k := periodBucket(name, bucket, p.period)
		m, ok := s.DistinctCounts[k]
		if !ok {
			m = make(map[string]bool)
			s.DistinctCounts[k] = m
		}
		m[val] = true
		s.expire(k, p.ttl, now)
	}
	return nil
}
