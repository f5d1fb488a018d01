// Named sets of strings, loaded from static configuration.
//
// The daemon uses the "trusted" set from a JSON file to seed the trust registry at boot.
package setstore

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sort"
	"sync"
)

type SetStore interface {
	InSet(ctx context.Context, name, val string) (bool, error)
	List(ctx context.Context, name string) ([]string, error)
}

type MemSetStore struct {
	lk   sync.RWMutex
	Sets map[string]map[string]bool
}

var _ SetStore = (*MemSetStore)(nil)

func NewMemSetStore() *MemSetStore {
	return &MemSetStore{
		Sets: make(map[string]map[string]bool),
	}
}

func (s *MemSetStore) InSet(ctx context.Context, name, val string) (bool, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()
	set, ok := s.Sets[name]
	if !ok {
		// NOTE: currently returns false when entire set isn't found
		return false, nil
	}
	_, ok = set[val]
	return ok, nil
}

// Returns the members of the named set, sorted. Returns an empty list if the set doesn't exist.
func (s *MemSetStore) List(ctx context.Context, name string) ([]string, error) {
	s.lk.RLock()
	defer s.lk.RUnlock()
	out := []string{}
	for val := range s.Sets[name] {
		out = append(out, val)
	}
	sort.Strings(out)
	return out, nil
}

// Replaces (or creates) the named set.
func (s *MemSetStore) Put(name string, vals []string) {
	m := make(map[string]bool, len(vals))
	for _, val := range vals {
		m[val] = true
	}
	s.lk.Lock()
	s.Sets[name] = m
	s.lk.Unlock()
}

// Loads sets from a JSON file, which should be an object mapping set names to arrays of strings.
func (s *MemSetStore) LoadFromFileJSON(p string) error {

	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	raw, err := io.ReadAll(f)
	if err != nil {
		return err
	}

	var sets map[string][]string
	if err := json.Unmarshal(raw, &sets); err != nil {
		return err
	}

	for name, l := range sets {
		s.Put(name, l)
	}
	return nil
}
