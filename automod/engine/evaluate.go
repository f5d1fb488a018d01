package engine

import (
	"fmt"
	"html"
	"strconv"

	"github.com/editguard/editguard/automod/dispatch"
	"github.com/editguard/editguard/automod/event"
)

// Derived per event from the trust registry at evaluation time; never stored.
type Decision int

const (
	// actor is the owner or trusted: no actions
	Suppressed Decision = iota
	// actor is not trusted: delete and notify
	Enforced
)

func (d Decision) String() string {
	switch d {
	case Suppressed:
		return "suppressed"
	case Enforced:
		return "enforced"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Decides whether an edit is permitted, and if not returns the ordered enforcement actions. Pure: does not touch the ledger or the transport.
//
// The owner is always exempt, regardless of registry state. Otherwise the action sequence is always: delete, group notice, owner notice, deterrent media.
func (eng *Engine) Evaluate(evt event.EditEvent) (Decision, []dispatch.Action) {
	if evt.ActorID == eng.OwnerID || eng.Trust.IsTrusted(evt.ActorID) {
		return Suppressed, nil
	}
	mention := Mention(evt.ActorID, evt.ActorName)
	original := evt.OriginalText
	if original == "" {
		original = "(not seen)"
	}
	return Enforced, []dispatch.Action{
		dispatch.Delete(evt.ChatID, evt.MessageID),
		dispatch.Group(evt.ChatID, fmt.Sprintf("%s edited a message; it was removed.", mention)),
		dispatch.Owner(eng.OwnerID, fmt.Sprintf("%s edited a message in %d; original text was '%s'; removed.", mention, evt.ChatID, html.EscapeString(original))),
		dispatch.Media(evt.ChatID, eng.DeterrentAsset, fmt.Sprintf("%s, please refrain from editing messages.", mention)),
	}
}

// HTML mention of a user, which renders as a link to their profile.
func Mention(userID int64, name string) string {
	if name == "" {
		name = strconv.FormatInt(userID, 10)
	}
	return fmt.Sprintf("<a href=\"tg://user?id=%d\">%s</a>", userID, html.EscapeString(name))
}
