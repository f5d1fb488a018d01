// Per-chat record of observed message edits, for audit and diagnostics.
//
// The ledger never gates enforcement: it only describes what was seen. Entries are keyed by (chat, message); repeated edits of the same message update the current record in place (last write wins for the edited text) and bump an edit count, but the fact that the message was edited is never lost unless the configured Evictor drops it.
package ledger

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/editguard/editguard/automod/event"

	"github.com/puzpuzpuz/xsync/v3"
)

type PriorState int

const (
	// first-ever observation of an edit to this message
	First PriorState = iota
	// message was already in the ledger
	Repeat
)

func (p PriorState) String() string {
	switch p {
	case First:
		return "first"
	case Repeat:
		return "repeat"
	default:
		return "unknown"
	}
}

// Outcome of a single enforcement action, attached to the ledger entry after dispatch.
type Annotation struct {
	Action   string    `json:"action"`
	Status   string    `json:"status"`
	Reason   string    `json:"reason,omitempty"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
}

type Entry struct {
	// Most recent edit event for this message. OriginalText is retained from the first event which had one.
	Event     event.EditEvent `json:"event"`
	FirstSeen time.Time       `json:"firstSeen"`
	// Number of edit events recorded for this message
	Edits    int          `json:"edits"`
	Outcomes []Annotation `json:"outcomes"`
}

type chatLog struct {
	lk      sync.RWMutex
	entries map[int64]*Entry
	// set (under lk) when the last entry is dropped and the log is removed from the chat map
	removed bool
}

type Ledger struct {
	chats   *xsync.MapOf[int64, *chatLog]
	evictor Evictor
	size    atomic.Int64
}

// Creates an empty ledger. A nil evictor means entries are retained forever.
func NewLedger(evictor Evictor) *Ledger {
	if evictor == nil {
		evictor = NoEviction{}
	}
	return &Ledger{
		chats:   xsync.NewMapOf[int64, *chatLog](),
		evictor: evictor,
	}
}

func (l *Ledger) chat(chatID int64) *chatLog {
	c, _ := l.chats.LoadOrCompute(chatID, func() *chatLog {
		return &chatLog{entries: make(map[int64]*Entry)}
	})
	return c
}

// Inserts or updates the entry for the event's (chat, message) key, and reports whether this is the first observation.
func (l *Ledger) Record(evt event.EditEvent) PriorState {
	if evt.ObservedAt.IsZero() {
		evt.ObservedAt = time.Now()
	}
	var c *chatLog
	for {
		c = l.chat(evt.ChatID)
		c.lk.Lock()
		if !c.removed {
			break
		}
		c.lk.Unlock()
	}

	state := Repeat
	ent, ok := c.entries[evt.MessageID]
	if !ok {
		ent = &Entry{
			Event:     evt,
			FirstSeen: evt.ObservedAt,
			Outcomes:  []Annotation{},
		}
		c.entries[evt.MessageID] = ent
		l.size.Add(1)
		state = First
	} else {
		orig := ent.Event.OriginalText
		ent.Event = evt
		if orig != "" {
			ent.Event.OriginalText = orig
		}
	}
	ent.Edits++
	// touched under the chat lock, so that a concurrent drop of this key sees it as retained
	evicted := l.evictor.Touch(evt.Key())
	c.lk.Unlock()

	// evicted entries may live in this same chat, so drop only after the lock is released
	for _, k := range evicted {
		l.drop(k)
	}
	return state
}

// Returns a copy of the current entry, if any.
func (l *Ledger) Lookup(chatID, messageID int64) (Entry, bool) {
	c, ok := l.chats.Load(chatID)
	if !ok {
		return Entry{}, false
	}
	c.lk.RLock()
	defer c.lk.RUnlock()
	ent, ok := c.entries[messageID]
	if !ok {
		return Entry{}, false
	}
	out := *ent
	out.Outcomes = append([]Annotation{}, ent.Outcomes...)
	return out, true
}

// Appends action outcomes to an existing entry. Returns false if the entry is not (or no longer) in the ledger.
func (l *Ledger) Annotate(key event.Key, anns []Annotation) bool {
	c, ok := l.chats.Load(key.ChatID)
	if !ok {
		return false
	}
	c.lk.Lock()
	defer c.lk.Unlock()
	ent, ok := c.entries[key.MessageID]
	if !ok {
		return false
	}
	ent.Outcomes = append(ent.Outcomes, anns...)
	return true
}

// Number of entries currently held, across all chats.
func (l *Ledger) Len() int {
	return int(l.size.Load())
}

func (l *Ledger) drop(k event.Key) {
	c, ok := l.chats.Load(k.ChatID)
	if !ok {
		return
	}
	c.lk.Lock()
	defer c.lk.Unlock()
	if c.removed || l.evictor.Contains(k) {
		// recorded again since it was evicted
		return
	}
	if _, ok := c.entries[k.MessageID]; ok {
		delete(c.entries, k.MessageID)
		l.size.Add(-1)
	}
	if len(c.entries) == 0 {
		c.removed = true
		l.chats.Delete(k.ChatID)
	}
}

// Number of chats with at least one entry.
func (l *Ledger) Chats() int {
	return l.chats.Size()
}
