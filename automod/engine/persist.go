package engine

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/editguard/editguard/automod/dispatch"
	"github.com/editguard/editguard/automod/event"
	"github.com/editguard/editguard/automod/ledger"
)

// Counter names, all keyed by user or chat ID
const (
	CounterEditActor    = "edit-actor"
	CounterEditChat     = "edit-chat"
	CounterEditChats    = "edit-chats"
	CounterEnforceActor = "enforce-actor"
)

// Counter failures are logged but do not stop processing.
func (eng *Engine) persistCounters(ctx context.Context, logger *slog.Logger, evt *event.EditEvent, decision Decision) {
	if eng.Counters == nil {
		return
	}
	actor := strconv.FormatInt(evt.ActorID, 10)
	chat := strconv.FormatInt(evt.ChatID, 10)
	if err := eng.Counters.Increment(ctx, CounterEditActor, actor); err != nil {
		logger.Error("failed to increment counter", "name", CounterEditActor, "err", err)
	}
	if err := eng.Counters.Increment(ctx, CounterEditChat, chat); err != nil {
		logger.Error("failed to increment counter", "name", CounterEditChat, "err", err)
	}
	if err := eng.Counters.IncrementDistinct(ctx, CounterEditChats, actor, chat); err != nil {
		logger.Error("failed to increment distinct counter", "name", CounterEditChats, "err", err)
	}
	if decision == Enforced {
		if err := eng.Counters.Increment(ctx, CounterEnforceActor, actor); err != nil {
			logger.Error("failed to increment counter", "name", CounterEnforceActor, "err", err)
		}
	}
}

// Converts outcomes (and skipped actions) to ledger annotations.
func annotations(rep *Report, now time.Time) []ledger.Annotation {
	anns := make([]ledger.Annotation, 0, len(rep.Outcomes)+len(rep.Skipped))
	for _, out := range rep.Outcomes {
		anns = append(anns, ledger.Annotation{
			Action:   out.Action.Kind.String(),
			Status:   out.Status.String(),
			Reason:   out.Reason,
			Attempts: out.Attempts,
			At:       now,
		})
	}
	for _, act := range rep.Skipped {
		anns = append(anns, ledger.Annotation{
			Action: act.Kind.String(),
			Status: "skipped",
			Reason: dispatch.ReasonMessageNotFound,
			At:     now,
		})
	}
	return anns
}

// Attaches outcomes to the ledger entry and the audit log. Neither failure rolls back anything already done.
func (eng *Engine) persistOutcomes(ctx context.Context, logger *slog.Logger, evt *event.EditEvent, rep *Report) {
	anns := annotations(rep, time.Now())
	if len(anns) > 0 && !eng.Ledger.Annotate(rep.Key, anns) {
		logger.Warn("ledger entry evicted before outcomes were recorded")
	}
	if eng.Audit == nil {
		return
	}
	if err := eng.Audit.RecordEdit(ctx, *evt, rep.Decision.String(), anns); err != nil {
		logger.Error("failed to write audit record", "err", err)
	}
}
