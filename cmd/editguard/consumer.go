package main

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel/attribute"
)

// Long-polling update source; implemented by *tgbotapi.BotAPI
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Receives updates and hands edit events and commands to the per-chat scheduler. Returns when ctx is done.
func (s *Server) RunConsumer(ctx context.Context, updates UpdateSource, offset int64) error {
	cfg := tgbotapi.NewUpdate(0)
	if offset > 0 {
		cfg.Offset = int(offset) + 1
	}
	cfg.Timeout = 60
	cfg.AllowedUpdates = []string{"message", "edited_message"}

	s.logger.Info("subscribing to bot updates", "offset", cfg.Offset)
	ch := updates.GetUpdatesChan(cfg)
	defer updates.StopReceivingUpdates()
	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-ch:
			if !ok {
				return fmt.Errorf("update channel closed unexpectedly")
			}
			if err := s.handleUpdate(ctx, upd); err != nil {
				return err
			}
		}
	}
}

func (s *Server) handleUpdate(ctx context.Context, upd tgbotapi.Update) error {
	updatesReceived.Inc()

	in := s.converter.Convert(ctx, upd)
	var err error
	switch {
	case in.Edit != nil:
		editsReceived.Inc()
		err = s.sched.AddWork(ctx, in.Edit.ChatID, work{edit: in.Edit})
	case in.Command != nil:
		commandsReceived.Inc()
		err = s.sched.AddWork(ctx, in.Command.ChatID, work{cmd: in.Command})
	}
	if err != nil {
		return err
	}
	s.lastUpdate.Store(int64(upd.UpdateID))
	return nil
}

// Scheduler callback. Runs on a worker; work for a single chat is never concurrent.
func (s *Server) processWork(ctx context.Context, w work) error {
	if w.edit != nil {
		_, err := s.engine.ProcessEditEvent(ctx, *w.edit)
		return err
	}
	if w.cmd != nil {
		ctx, span := tracer.Start(ctx, "HandleCommand")
		defer span.End()
		span.SetAttributes(attribute.String("cmd", w.cmd.Name))

		replies := s.gateway.Handle(ctx, *w.cmd)
		for _, out := range s.dispatcher.ExecuteAll(ctx, replies) {
			if !out.OK() {
				s.logger.Warn("failed to send command reply", "cmd", w.cmd.Name, "kind", out.Action.Kind, "reason", out.Reason, "err", out.Err)
			}
		}
	}
	return nil
}
