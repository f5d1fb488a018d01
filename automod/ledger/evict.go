package ledger

import (
	"sync"

	"github.com/editguard/editguard/automod/event"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Strategy for bounding ledger memory. Touch is called on every Record, and returns any keys which should be dropped from the ledger. Contains reports whether a key is still retained; the ledger checks it before dropping, since a key may be recorded again between Touch and the drop.
//
// Implementations must be safe for concurrent use.
type Evictor interface {
	Touch(k event.Key) []event.Key
	Contains(k event.Key) bool
}

// Retains every entry.
type NoEviction struct{}

func (NoEviction) Touch(k event.Key) []event.Key {
	return nil
}

func (NoEviction) Contains(k event.Key) bool {
	return true
}

// Retains the most recently edited messages, up to a fixed count.
type LRUEvictor struct {
	lk      sync.Mutex
	lru     *simplelru.LRU[event.Key, struct{}]
	evicted []event.Key
}

var _ Evictor = (*LRUEvictor)(nil)

func NewLRUEvictor(capacity int) (*LRUEvictor, error) {
	e := &LRUEvictor{}
	l, err := simplelru.NewLRU[event.Key, struct{}](capacity, func(k event.Key, _ struct{}) {
		// called from within Add, under e.lk
		e.evicted = append(e.evicted, k)
	})
	if err != nil {
		return nil, err
	}
	e.lru = l
	return e, nil
}

func (e *LRUEvictor) Touch(k event.Key) []event.Key {
	e.lk.Lock()
	defer e.lk.Unlock()
	e.lru.Add(k, struct{}{})
	if len(e.evicted) == 0 {
		return nil
	}
	out := e.evicted
	e.evicted = nil
	return out
}

func (e *LRUEvictor) Contains(k event.Key) bool {
	e.lk.Lock()
	defer e.lk.Unlock()
	return e.lru.Contains(k)
}
