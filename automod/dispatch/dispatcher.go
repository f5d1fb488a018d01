// Executes enforcement side-effects (delete, notices, media) against the chat platform.
//
// The dispatcher is a pure executor keyed by action value: it knows nothing about the enforcement state machine. Each action is executed independently, with a per-attempt deadline and bounded exponential-backoff retries for transient failures.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("dispatch")

// Outbound operations provided by the transport collaborator.
//
// Implementations should return a *PermanentError for failures which can not succeed on retry; any other error is retried. Implementations must respect context cancellation.
type Transport interface {
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	SendText(ctx context.Context, chatID int64, html string) error
	SendMedia(ctx context.Context, chatID int64, assetRef, caption string) error
}

type Config struct {
	// Total attempts per action, including the first
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Deadline for each individual attempt
	ActionTimeout time.Duration
	// Longest platform retry-after hint which is waited out. Longer hints fail the action immediately, with ReasonRateLimited.
	MaxRetryAfter time.Duration
	// Overall budget for an action, across all attempts and waits
	MaxElapsed time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:     4,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		ActionTimeout:   15 * time.Second,
		MaxRetryAfter:   time.Minute,
		MaxElapsed:      3 * time.Minute,
	}
}

type Dispatcher struct {
	transport Transport
	config    Config
	logger    *slog.Logger
}

func NewDispatcher(transport Transport, config Config, logger *slog.Logger) *Dispatcher {
	def := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialInterval <= 0 {
		config.InitialInterval = def.InitialInterval
	}
	if config.MaxInterval <= 0 {
		config.MaxInterval = def.MaxInterval
	}
	if config.ActionTimeout <= 0 {
		config.ActionTimeout = def.ActionTimeout
	}
	if config.MaxRetryAfter <= 0 {
		config.MaxRetryAfter = def.MaxRetryAfter
	}
	if config.MaxElapsed <= 0 {
		config.MaxElapsed = def.MaxElapsed
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		transport: transport,
		config:    config,
		logger:    logger.With("component", "dispatch"),
	}
}

// Executes a single action, retrying transient failures. Never returns TransientFailure: exhausted retries are reported as PermanentFailure.
func (d *Dispatcher) Execute(ctx context.Context, act Action) Outcome {
	ctx, span := tracer.Start(ctx, "Execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("action", act.Kind.String()),
		attribute.Int64("chat", act.ChatID),
	)

	start := time.Now()
	logger := d.logger.With("action", act.Kind.String(), "chat", act.ChatID)

	b := &hintedBackOff{inner: backoff.NewExponentialBackOff()}
	b.inner.InitialInterval = d.config.InitialInterval
	b.inner.MaxInterval = d.config.MaxInterval

	attempts := 0
	rateLimited := false
	var lastErr error
	op := func() (struct{}, error) {
		attempts++
		err := d.attempt(ctx, act)
		lastErr = err
		if err == nil {
			return struct{}{}, nil
		}
		dispatchAttemptErrors.WithLabelValues(act.Kind.String(), Classify(err).String()).Inc()
		var perm *PermanentError
		if errors.As(err, &perm) {
			return struct{}{}, backoff.Permanent(err)
		}
		var tr *TransientError
		if errors.As(err, &tr) && tr.RetryAfter > 0 {
			if tr.RetryAfter > d.config.MaxRetryAfter {
				// longer than the dispatcher will wait
				rateLimited = true
				return struct{}{}, backoff.Permanent(err)
			}
			b.hint = tr.RetryAfter
		}
		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(d.config.MaxAttempts)),
		backoff.WithMaxElapsedTime(d.config.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("action failed, retrying", "err", err, "attempt", attempts, "backoff", next)
		}),
	)

	out := Outcome{
		Action:   act,
		Attempts: attempts,
	}
	var perm *PermanentError
	switch {
	case err == nil:
		out.Status = Success
	case rateLimited:
		out.Status = PermanentFailure
		out.Reason = ReasonRateLimited
		out.Err = lastErr
	case errors.As(lastErr, &perm):
		out.Status = PermanentFailure
		out.Reason = perm.Reason
		out.Err = lastErr
	case ctx.Err() != nil:
		out.Status = PermanentFailure
		out.Reason = ReasonCanceled
		out.Err = err
	default:
		out.Status = PermanentFailure
		out.Reason = ReasonRetriesExhausted
		out.Err = lastErr
	}

	dispatchActionCount.WithLabelValues(act.Kind.String(), out.Status.String()).Inc()
	dispatchDuration.WithLabelValues(act.Kind.String()).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("attempts", attempts))
	if out.OK() {
		logger.Debug("action executed", "attempts", attempts)
	} else {
		span.SetStatus(codes.Error, out.Reason)
		logger.Warn("action failed", "reason", out.Reason, "attempts", attempts, "err", out.Err)
	}
	return out
}

// Executes actions one after another, in order. Failures do not stop later actions.
func (d *Dispatcher) ExecuteAll(ctx context.Context, acts []Action) []Outcome {
	out := make([]Outcome, 0, len(acts))
	for _, act := range acts {
		out = append(out, d.Execute(ctx, act))
	}
	return out
}

// A single attempt, bounded by the action deadline. A transport which overruns the deadline (even one ignoring context cancellation) results in a transient error.
func (d *Dispatcher) attempt(ctx context.Context, act Action) error {
	actx, cancel := context.WithTimeout(ctx, d.config.ActionTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- d.perform(actx, act)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return Transient(fmt.Errorf("action deadline exceeded: %w", err), 0)
		}
		return err
	case <-actx.Done():
		return Transient(fmt.Errorf("action deadline exceeded: %w", actx.Err()), 0)
	}
}

func (d *Dispatcher) perform(ctx context.Context, act Action) error {
	switch act.Kind {
	case KindDeleteMessage:
		return d.transport.DeleteMessage(ctx, act.ChatID, act.MessageID)
	case KindNotifyGroup, KindNotifyOwner:
		return d.transport.SendText(ctx, act.ChatID, act.Text)
	case KindSendMedia:
		return d.transport.SendMedia(ctx, act.ChatID, act.AssetRef, act.Caption)
	default:
		return Permanent(ReasonUnknownAction, fmt.Errorf("unhandled action kind: %s", act.Kind))
	}
}

// Exponential backoff, except that a platform retry-after hint replaces the next interval.
type hintedBackOff struct {
	inner *backoff.ExponentialBackOff
	hint  time.Duration
}

func (b *hintedBackOff) NextBackOff() time.Duration {
	next := b.inner.NextBackOff()
	if b.hint > 0 {
		next = b.hint
		b.hint = 0
	}
	return next
}

func (b *hintedBackOff) Reset() {
	b.hint = 0
	b.inner.Reset()
}
