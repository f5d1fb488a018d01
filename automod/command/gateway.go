// Bot command handling: the only surface through which the trust registry is mutated.
//
// Every command produces zero or more reply actions addressed to the chat the command was sent in. Authorization and parsing failures become textual replies; they are never returned as errors.
package command

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"

	"github.com/editguard/editguard/automod/countstore"
	"github.com/editguard/editguard/automod/dispatch"
	"github.com/editguard/editguard/automod/engine"
	"github.com/editguard/editguard/automod/event"
	"github.com/editguard/editguard/automod/trust"
)

var ErrMalformed = errors.New("malformed command arguments")

const (
	msgOwnerOnly    = "Only the bot owner can use this command."
	msgNotTrusted   = "This user is not in the trusted list."
	msgOwnerImmune  = "The bot owner is always trusted and can not be removed."
	msgWelcome      = "Hello! %s! I am Edit Guardian bot. I delete edited messages except for trusted users and my creator."
	msgWelcomeHint  = "To become a trusted user, request approval from the bot owner."
	msgWelcomeMedia = "Welcome to the Edit Guardian bot!"
)

// Mutation and listing surface of the trust registry
type Registry interface {
	Owner() int64
	Add(ctx context.Context, requester, target int64) error
	Remove(ctx context.Context, requester, target int64) error
	Members() []int64
}

var _ Registry = (*trust.Registry)(nil)

type Gateway struct {
	Logger   *slog.Logger
	Trust    Registry
	Counters countstore.CountStore
	// optional media sent in reply to "start"
	WelcomeAsset string
}

// Names of all handled commands
var Names = []string{"start", "addtrusted", "removetrusted", "listtrusted", "editstats"}

// Returns reply actions for a command. Unknown commands produce no reply.
func (g *Gateway) Handle(ctx context.Context, cmd event.Command) []dispatch.Action {
	logger := g.Logger.With("cmd", cmd.Name, "requester", cmd.RequesterID, "chat", cmd.ChatID)

	var replies []dispatch.Action
	var err error
	switch cmd.Name {
	case "start":
		replies = g.start(cmd)
	case "addtrusted":
		replies, err = g.addTrusted(ctx, cmd)
	case "removetrusted":
		replies, err = g.removeTrusted(ctx, cmd)
	case "listtrusted":
		replies = g.listTrusted(cmd)
	case "editstats":
		replies, err = g.editStats(ctx, cmd)
	default:
		logger.Debug("ignoring unknown command")
		return nil
	}
	if err != nil {
		logger.Error("command failed", "err", err)
		replies = []dispatch.Action{reply(cmd, "Something went wrong; please try again later.")}
	}
	commandCount.WithLabelValues(cmd.Name).Inc()
	logger.Info("handled command", "args", cmd.Args, "replies", len(replies))
	return replies
}

// Plain-text reply; escaped since all text is sent as HTML
func reply(cmd event.Command, text string) dispatch.Action {
	return dispatch.Group(cmd.ChatID, html.EscapeString(text))
}

func parseUserID(args []string) (int64, error) {
	if len(args) < 1 {
		return 0, ErrMalformed
	}
	id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	return id, nil
}

func (g *Gateway) start(cmd event.Command) []dispatch.Action {
	mention := engine.Mention(cmd.RequesterID, cmd.RequesterName)
	out := []dispatch.Action{
		dispatch.Group(cmd.ChatID, fmt.Sprintf(msgWelcome, mention)),
		reply(cmd, msgWelcomeHint),
	}
	if g.WelcomeAsset != "" {
		out = append(out, dispatch.Media(cmd.ChatID, g.WelcomeAsset, msgWelcomeMedia))
	}
	return out
}

func (g *Gateway) addTrusted(ctx context.Context, cmd event.Command) ([]dispatch.Action, error) {
	if cmd.RequesterID != g.Trust.Owner() {
		return []dispatch.Action{reply(cmd, msgOwnerOnly)}, nil
	}
	target, err := parseUserID(cmd.Args)
	if err != nil {
		return []dispatch.Action{reply(cmd, "Usage: /addtrusted <user_id>")}, nil
	}
	err = g.Trust.Add(ctx, cmd.RequesterID, target)
	switch {
	case errors.Is(err, trust.ErrUnauthorized):
		return []dispatch.Action{reply(cmd, msgOwnerOnly)}, nil
	case err != nil:
		return nil, err
	}
	return []dispatch.Action{reply(cmd, fmt.Sprintf("User with ID %d has been added to the trusted list.", target))}, nil
}

func (g *Gateway) removeTrusted(ctx context.Context, cmd event.Command) ([]dispatch.Action, error) {
	if cmd.RequesterID != g.Trust.Owner() {
		return []dispatch.Action{reply(cmd, msgOwnerOnly)}, nil
	}
	target, err := parseUserID(cmd.Args)
	if err != nil {
		return []dispatch.Action{reply(cmd, "Usage: /removetrusted <user_id>")}, nil
	}
	err = g.Trust.Remove(ctx, cmd.RequesterID, target)
	switch {
	case errors.Is(err, trust.ErrUnauthorized):
		return []dispatch.Action{reply(cmd, msgOwnerOnly)}, nil
	case errors.Is(err, trust.ErrNotFound):
		return []dispatch.Action{reply(cmd, msgNotTrusted)}, nil
	case errors.Is(err, trust.ErrOwnerImmutable):
		return []dispatch.Action{reply(cmd, msgOwnerImmune)}, nil
	case err != nil:
		return nil, err
	}
	return []dispatch.Action{reply(cmd, fmt.Sprintf("User with ID %d has been removed from the trusted list.", target))}, nil
}

func (g *Gateway) listTrusted(cmd event.Command) []dispatch.Action {
	if cmd.RequesterID != g.Trust.Owner() {
		return []dispatch.Action{reply(cmd, msgOwnerOnly)}
	}
	members := g.Trust.Members()
	if len(members) == 0 {
		return []dispatch.Action{reply(cmd, "The trusted list is empty.")}
	}
	var sb strings.Builder
	sb.WriteString("Trusted users:")
	for _, id := range members {
		fmt.Fprintf(&sb, "\n- %d", id)
	}
	return []dispatch.Action{reply(cmd, sb.String())}
}

func (g *Gateway) editStats(ctx context.Context, cmd event.Command) ([]dispatch.Action, error) {
	if cmd.RequesterID != g.Trust.Owner() {
		return []dispatch.Action{reply(cmd, msgOwnerOnly)}, nil
	}
	target, err := parseUserID(cmd.Args)
	if err != nil {
		return []dispatch.Action{reply(cmd, "Usage: /editstats <user_id>")}, nil
	}
	if g.Counters == nil {
		return []dispatch.Action{reply(cmd, "Edit statistics are not available.")}, nil
	}
	user := strconv.FormatInt(target, 10)
	edits, err := g.Counters.GetCount(ctx, engine.CounterEditActor, user, countstore.PeriodTotal)
	if err != nil {
		return nil, err
	}
	today, err := g.Counters.GetCount(ctx, engine.CounterEditActor, user, countstore.PeriodDay)
	if err != nil {
		return nil, err
	}
	enforced, err := g.Counters.GetCount(ctx, engine.CounterEnforceActor, user, countstore.PeriodTotal)
	if err != nil {
		return nil, err
	}
	chats, err := g.Counters.GetCountDistinct(ctx, engine.CounterEditChats, user, countstore.PeriodTotal)
	if err != nil {
		return nil, err
	}
	msg := fmt.Sprintf("User with ID %d: %d edits (%d today) in %d chats; %d removed.", target, edits, today, chats, enforced)
	return []dispatch.Action{reply(cmd, msg)}, nil
}
