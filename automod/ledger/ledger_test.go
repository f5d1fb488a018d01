package ledger

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/editguard/editguard/automod/event"

	"github.com/stretchr/testify/assert"
)

func editEvent(chat, msg, actor int64, orig, edited string) event.EditEvent {
	return event.EditEvent{
		ChatID:       chat,
		MessageID:    msg,
		ActorID:      actor,
		ActorName:    "someone",
		OriginalText: orig,
		EditedText:   edited,
		ObservedAt:   time.Now(),
	}
}

func TestLedgerFirstRepeat(t *testing.T) {
	assert := assert.New(t)

	l := NewLedger(nil)

	_, ok := l.Lookup(1, 5)
	assert.False(ok)

	assert.Equal(First, l.Record(editEvent(1, 5, 200, "hello", "hello!")))
	assert.Equal(Repeat, l.Record(editEvent(1, 5, 200, "", "hello!!")))

	ent, ok := l.Lookup(1, 5)
	assert.True(ok)
	assert.Equal("hello!!", ent.Event.EditedText)
	// original text survives later events which lack it
	assert.Equal("hello", ent.Event.OriginalText)
	assert.Equal(2, ent.Edits)
	assert.Equal(1, l.Len())

	// same message id in a different chat is a different key
	assert.Equal(First, l.Record(editEvent(2, 5, 200, "", "other")))
	assert.Equal(2, l.Len())

	assert.Equal("first", First.String())
	assert.Equal("repeat", Repeat.String())
}

func TestLedgerAnnotate(t *testing.T) {
	assert := assert.New(t)

	l := NewLedger(nil)
	k := event.Key{ChatID: 1, MessageID: 5}
	assert.False(l.Annotate(k, []Annotation{{Action: "delete_message", Status: "success"}}))

	l.Record(editEvent(1, 5, 200, "a", "b"))
	assert.True(l.Annotate(k, []Annotation{{Action: "delete_message", Status: "success", Attempts: 1}}))
	assert.True(l.Annotate(k, []Annotation{{Action: "notify_group", Status: "permanent_failure", Reason: "forbidden", Attempts: 1}}))

	ent, ok := l.Lookup(1, 5)
	assert.True(ok)
	assert.Equal(2, len(ent.Outcomes))
	assert.Equal("notify_group", ent.Outcomes[1].Action)

	// lookups return copies
	ent.Outcomes[0].Status = "mutated"
	ent2, _ := l.Lookup(1, 5)
	assert.Equal("success", ent2.Outcomes[0].Status)
}

func TestLedgerConcurrentSameKey(t *testing.T) {
	assert := assert.New(t)

	l := NewLedger(nil)
	var firsts atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Record(editEvent(7, 42, 200, "", "x")) == First {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(int64(1), firsts.Load())
	ent, ok := l.Lookup(7, 42)
	assert.True(ok)
	assert.Equal(50, ent.Edits)
}

func TestLedgerConcurrentChats(t *testing.T) {
	assert := assert.New(t)

	l := NewLedger(nil)
	var wg sync.WaitGroup
	for chat := int64(0); chat < 10; chat++ {
		wg.Add(1)
		go func(chat int64) {
			defer wg.Done()
			for msg := int64(0); msg < 20; msg++ {
				assert.Equal(First, l.Record(editEvent(chat, msg, 200, "", "x")))
				_, ok := l.Lookup(chat, msg)
				assert.True(ok)
			}
		}(chat)
	}
	wg.Wait()
	assert.Equal(200, l.Len())
}

func TestLedgerLRUEviction(t *testing.T) {
	assert := assert.New(t)

	ev, err := NewLRUEvictor(3)
	assert.NoError(err)
	l := NewLedger(ev)

	for msg := int64(1); msg <= 5; msg++ {
		l.Record(editEvent(1, msg, 200, "", "x"))
	}
	assert.Equal(3, l.Len())
	_, ok := l.Lookup(1, 1)
	assert.False(ok)
	_, ok = l.Lookup(1, 2)
	assert.False(ok)
	_, ok = l.Lookup(1, 5)
	assert.True(ok)

	// touching an old entry keeps it around
	l.Record(editEvent(1, 3, 200, "", "y"))
	l.Record(editEvent(2, 1, 200, "", "z"))
	_, ok = l.Lookup(1, 3)
	assert.True(ok)
	_, ok = l.Lookup(1, 4)
	assert.False(ok)
	assert.Equal(3, l.Len())

	// an evicted message starts over as a first observation
	assert.Equal(First, l.Record(editEvent(1, 1, 200, "", "again")))
}

func TestLRUEvictorBadCapacity(t *testing.T) {
	_, err := NewLRUEvictor(0)
	assert.Error(t, err)
}

func TestLedgerEvictionRemovesEmptyChats(t *testing.T) {
	assert := assert.New(t)

	ev, err := NewLRUEvictor(2)
	assert.NoError(err)
	l := NewLedger(ev)

	for chat := int64(1); chat <= 50; chat++ {
		l.Record(editEvent(-chat, 1, 200, "", "x"))
	}
	assert.Equal(2, l.Len())
	assert.Equal(2, l.Chats())

	// a chat emptied by eviction can be recorded in again
	assert.Equal(First, l.Record(editEvent(-1, 1, 200, "hello", "x")))
	ent, ok := l.Lookup(-1, 1)
	assert.True(ok)
	assert.Equal("hello", ent.Event.OriginalText)
	assert.Equal(2, l.Chats())
}

// Hands out a fixed eviction on the next Touch, while still reporting the key as retained.
type staleEvictor struct {
	lk    sync.Mutex
	evict []event.Key
}

func (e *staleEvictor) Touch(k event.Key) []event.Key {
	e.lk.Lock()
	defer e.lk.Unlock()
	out := e.evict
	e.evict = nil
	return out
}

func (e *staleEvictor) Contains(k event.Key) bool {
	return true
}

func TestLedgerKeepsReRecordedEntry(t *testing.T) {
	assert := assert.New(t)

	ev := &staleEvictor{}
	l := NewLedger(ev)
	l.Record(editEvent(1, 1, 200, "", "x"))

	// key was evicted, but recorded again before the drop happened
	ev.evict = []event.Key{{ChatID: 1, MessageID: 1}}
	l.Record(editEvent(1, 2, 200, "", "y"))

	_, ok := l.Lookup(1, 1)
	assert.True(ok)
	assert.Equal(2, l.Len())
}
