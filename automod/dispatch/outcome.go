package dispatch

import (
	"errors"
	"fmt"
	"time"
)

type Status int

const (
	Success Status = iota
	// retryable; only seen per-attempt, since Execute converts exhausted retries to PermanentFailure
	TransientFailure
	PermanentFailure
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case TransientFailure:
		return "transient_failure"
	case PermanentFailure:
		return "permanent_failure"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Reasons attached to permanent failures
const (
	ReasonMessageNotFound  = "message not found"
	ReasonForbidden        = "forbidden"
	ReasonChatNotFound     = "chat not found"
	ReasonBadRequest       = "bad request"
	ReasonUnknownAction    = "unknown action"
	ReasonRetriesExhausted = "retries exhausted"
	ReasonCanceled         = "canceled"
	// platform asked for a longer pause than the dispatcher will wait
	ReasonRateLimited = "rate limited"
)

type Outcome struct {
	Action Action
	Status Status
	// Empty on success
	Reason   string
	Attempts int
	Err      error
}

func (o Outcome) OK() bool {
	return o.Status == Success
}

// The failure reason indicates the target message never existed (or is already gone)
func (o Outcome) MessageNotFound() bool {
	return o.Status == PermanentFailure && o.Reason == ReasonMessageNotFound
}

// Transport error which must not be retried
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Transport error which may succeed on retry. RetryAfter is an optional hint from the platform (eg, rate limiting).
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Err, e.RetryAfter)
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func Permanent(reason string, err error) error {
	return &PermanentError{Reason: reason, Err: err}
}

func Transient(err error, retryAfter time.Duration) error {
	return &TransientError{Err: err, RetryAfter: retryAfter}
}

// Classifies a single-attempt error. Anything not explicitly permanent is treated as transient (eg, network errors).
func Classify(err error) Status {
	if err == nil {
		return Success
	}
	var perm *PermanentError
	if errors.As(err, &perm) {
		return PermanentFailure
	}
	return TransientFailure
}
