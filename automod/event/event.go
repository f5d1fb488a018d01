package event

import (
	"fmt"
	"time"
)

// Identifies a single message. Message IDs are only unique within a chat, so the chat ID is always part of the key.
type Key struct {
	ChatID    int64
	MessageID int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.ChatID, k.MessageID)
}

// Report that a previously sent message's content changed, as delivered by the transport.
//
// This is a plain data record: the transport converts platform update objects in to this shape, and nothing downstream inspects platform-specific types.
type EditEvent struct {
	ChatID    int64
	MessageID int64
	// User who edited the message (and, on this platform, who authored it)
	ActorID int64
	// Display name of the actor, used for mentions in notices. May be empty.
	ActorName string
	// Text of the message when first observed. Empty if the message was never seen before the edit.
	OriginalText string
	// Text after the edit
	EditedText string
	ObservedAt time.Time
}

func (e *EditEvent) Key() Key {
	return Key{ChatID: e.ChatID, MessageID: e.MessageID}
}

// A bot command invocation, eg "/addtrusted 1234".
type Command struct {
	RequesterID   int64
	RequesterName string
	// Chat the command was sent in; replies go here
	ChatID int64
	// Command name without the leading slash or any "@botname" suffix
	Name string
	Args []string
}
