package dispatch

import (
	"fmt"
)

type Kind int

const (
	KindDeleteMessage Kind = iota + 1
	KindNotifyGroup
	KindNotifyOwner
	KindSendMedia
)

func (k Kind) String() string {
	switch k {
	case KindDeleteMessage:
		return "delete_message"
	case KindNotifyGroup:
		return "notify_group"
	case KindNotifyOwner:
		return "notify_owner"
	case KindSendMedia:
		return "send_media"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// A side-effect to execute against the transport.
//
// Actions are plain values: they carry everything needed to execute them, so the dispatcher never consults the ledger or registry. Use the constructor functions rather than building these by hand.
type Action struct {
	Kind Kind
	// Target chat. For NotifyOwner this is the owner's private chat (same as the owner's user ID).
	ChatID int64
	// Only for DeleteMessage
	MessageID int64
	// HTML body for NotifyGroup and NotifyOwner
	Text string
	// Only for SendMedia
	AssetRef string
	Caption  string
}

func Delete(chatID, messageID int64) Action {
	return Action{Kind: KindDeleteMessage, ChatID: chatID, MessageID: messageID}
}

func Group(chatID int64, text string) Action {
	return Action{Kind: KindNotifyGroup, ChatID: chatID, Text: text}
}

func Owner(ownerID int64, text string) Action {
	return Action{Kind: KindNotifyOwner, ChatID: ownerID, Text: text}
}

func Media(chatID int64, assetRef, caption string) Action {
	return Action{Kind: KindSendMedia, ChatID: chatID, AssetRef: assetRef, Caption: caption}
}
