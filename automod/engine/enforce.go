package engine

import (
	"context"
	"log/slog"

	"github.com/editguard/editguard/automod/dispatch"

	"golang.org/x/sync/errgroup"
)

// Executes an enforcement sequence. The first action (delete) runs alone; if the platform reports the message does not exist, the remaining actions are skipped. Otherwise the remaining actions are independent and run concurrently.
//
// Returned outcomes are in the same order as the executed actions.
func (eng *Engine) enforce(ctx context.Context, logger *slog.Logger, actions []dispatch.Action) ([]dispatch.Outcome, []dispatch.Action) {
	if len(actions) == 0 {
		return nil, nil
	}

	first := eng.Dispatcher.Execute(ctx, actions[0])
	if first.MessageNotFound() {
		rest := actions[1:]
		for _, act := range rest {
			actionsSkippedCount.WithLabelValues(act.Kind.String()).Inc()
		}
		logger.Info("message already gone, skipping notices", "skipped", len(rest))
		return []dispatch.Outcome{first}, rest
	}
	if !first.OK() {
		logger.Warn("failed to delete edited message", "status", first.Status, "reason", first.Reason, "err", first.Err)
	}

	outcomes := make([]dispatch.Outcome, len(actions))
	outcomes[0] = first

	// each goroutine writes only its own slot, and no goroutine returns an error
	var g errgroup.Group
	for i := 1; i < len(actions); i++ {
		i := i
		g.Go(func() error {
			outcomes[i] = eng.Dispatcher.Execute(ctx, actions[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range outcomes[1:] {
		if !out.OK() {
			logger.Warn("enforcement action failed", "kind", out.Action.Kind, "status", out.Status, "reason", out.Reason, "attempts", out.Attempts, "err", out.Err)
		}
	}
	return outcomes, nil
}
