package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/editguard/editguard/automod/countstore"
	"github.com/editguard/editguard/automod/dispatch"
	"github.com/editguard/editguard/automod/event"
	"github.com/editguard/editguard/automod/ledger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("engine")

type TrustChecker interface {
	IsTrusted(userID int64) bool
}

type Executor interface {
	Execute(ctx context.Context, act dispatch.Action) dispatch.Outcome
}

// Durable, append-only record of processed edits and their action outcomes.
type AuditSink interface {
	RecordEdit(ctx context.Context, evt event.EditEvent, decision string, outcomes []ledger.Annotation) error
}

// runtime for evaluating edit events, recording them, and executing enforcement actions.
//
// Create with NewEngine. Counters, Audit and Notifier are optional, and may be set afterwards.
type Engine struct {
	Logger  *slog.Logger
	OwnerID int64
	// media asset sent along with each enforcement (URL or local path)
	DeterrentAsset string
	Trust          TrustChecker
	Ledger         *ledger.Ledger
	Dispatcher     Executor
	Counters       countstore.CountStore
	// optional
	Audit AuditSink
	// optional
	Notifier Notifier
}

// Result of processing a single edit event.
type Report struct {
	Key      event.Key
	Prior    ledger.PriorState
	Decision Decision
	// Actions emitted by evaluation, in order. Empty when suppressed.
	Actions  []dispatch.Action
	Outcomes []dispatch.Outcome
	// Actions which were not executed because the message was already gone
	Skipped []dispatch.Action
}

func NewEngine(logger *slog.Logger, ownerID int64, deterrentAsset string, trust TrustChecker, led *ledger.Ledger, disp Executor) (*Engine, error) {
	if ownerID == 0 {
		return nil, fmt.Errorf("engine: owner ID is required")
	}
	if trust == nil || led == nil || disp == nil {
		return nil, fmt.Errorf("engine: trust registry, ledger and dispatcher are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Logger:         logger,
		OwnerID:        ownerID,
		DeterrentAsset: deterrentAsset,
		Trust:          trust,
		Ledger:         led,
		Dispatcher:     disp,
	}, nil
}

// Processes a single edit event end-to-end: record in the ledger, evaluate trust, execute any enforcement actions, and log the outcomes.
//
// Ledger and registry access is fast and in-memory; no lock is held while actions are dispatched. Action failures are reported in the Report, not as an error.
func (eng *Engine) ProcessEditEvent(ctx context.Context, evt event.EditEvent) (rep *Report, err error) {
	// similar to an HTTP server, we want to recover any panics from event processing
	defer func() {
		if r := recover(); r != nil {
			eng.Logger.Error("edit event processing exception", "err", r, "chat", evt.ChatID, "msg", evt.MessageID)
			eventErrorCount.Inc()
			rep = nil
			err = fmt.Errorf("edit event processing panic: %v", r)
		}
	}()

	ctx, span := tracer.Start(ctx, "ProcessEditEvent")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("chat", evt.ChatID),
		attribute.Int64("msg", evt.MessageID),
	)

	start := time.Now()
	if evt.ObservedAt.IsZero() {
		evt.ObservedAt = start
	}
	logger := eng.Logger.With("chat", evt.ChatID, "msg", evt.MessageID, "actor", evt.ActorID)
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		logger = logger.With("traceID", sc.TraceID().String())
	}

	// observed -> evaluated
	prior := eng.Ledger.Record(evt)
	decision, actions := eng.Evaluate(evt)
	rep = &Report{
		Key:      evt.Key(),
		Prior:    prior,
		Decision: decision,
		Actions:  actions,
	}
	logger.Debug("evaluated edit", "prior", prior, "decision", decision)
	eng.persistCounters(ctx, logger, &evt, decision)

	if decision == Enforced {
		rep.Outcomes, rep.Skipped = eng.enforce(ctx, logger, actions)
	}

	// logged
	eng.persistOutcomes(ctx, logger, &evt, rep)
	if decision == Enforced && eng.Notifier != nil {
		if err := eng.Notifier.SendEnforcement(ctx, evt, rep); err != nil {
			logger.Error("sending enforcement notification", "err", err)
		}
	}

	span.SetAttributes(attribute.String("decision", decision.String()))
	eventProcessCount.WithLabelValues(decision.String()).Inc()
	eventProcessDuration.WithLabelValues(decision.String()).Observe(time.Since(start).Seconds())
	ledgerEntries.Set(float64(eng.Ledger.Len()))
	eng.canonicalLogLine(logger, rep)
	return rep, nil
}

func (eng *Engine) canonicalLogLine(logger *slog.Logger, rep *Report) {
	failed := 0
	for _, out := range rep.Outcomes {
		if !out.OK() {
			failed++
		}
	}
	logger.Info("canonical-event-line",
		"prior", rep.Prior.String(),
		"decision", rep.Decision.String(),
		"actions", len(rep.Actions),
		"actionsFailed", failed,
		"actionsSkipped", len(rep.Skipped),
	)
}
