package flagstore

import (
	"context"
	"sort"
	"sync"
)

type MemFlagStore struct {
	lk   sync.Mutex
	Data map[string]map[string]bool
}

var _ FlagStore = (*MemFlagStore)(nil)

func NewMemFlagStore() *MemFlagStore {
	return &MemFlagStore{
		Data: make(map[string]map[string]bool),
	}
}

// returns flags in sorted order
func (s *MemFlagStore) Get(ctx context.Context, key string) ([]string, error) {
	s.lk.Lock()
	defer s.lk.Unlock()

	out := []string{}
	for f := range s.Data[key] {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemFlagStore) Add(ctx context.Context, key string, flags []string) error {
	if len(flags) == 0 {
		return nil
	}
	s.lk.Lock()
	defer s.lk.Unlock()

	m, ok := s.Data[key]
	if !ok {
		m = make(map[string]bool, len(flags))
		s.Data[key] = m
	}
	for _, f := range flags {
		m[f] = true
	}
	return nil
}

// does not error if flags not in set
func (s *MemFlagStore) Remove(ctx context.Context, key string, flags []string) error {
	if len(flags) == 0 {
		return nil
	}
	s.lk.Lock()
	defer s.lk.Unlock()

	m, ok := s.Data[key]
	if !ok {
		return nil
	}
	for _, f := range flags {
		delete(m, f)
	}
	if len(m) == 0 {
		delete(s.Data, key)
	}
	return nil
}
