package telegram

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/editguard/editguard/automod/cachestore"
	"github.com/editguard/editguard/automod/event"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// cachestore name for the first-seen text of messages, so that an edit can report what was originally said
const textCacheName = "msgtext"

// Result of converting a single update. At most one field is set; both are nil for updates which need no handling.
type Inbound struct {
	Edit    *event.EditEvent
	Command *event.Command
}

// Converts Bot API updates in to plain edit events and commands. Nothing downstream of this inspects platform types.
type Converter struct {
	// optional; without it edits have no original text
	Texts  cachestore.CacheStore
	Logger *slog.Logger
}

func (c *Converter) Convert(ctx context.Context, upd tgbotapi.Update) Inbound {
	switch {
	case upd.EditedMessage != nil:
		return Inbound{Edit: c.convertEdit(ctx, upd.EditedMessage)}
	case upd.Message != nil:
		msg := upd.Message
		if msg.IsCommand() {
			return Inbound{Command: convertCommand(msg)}
		}
		c.rememberText(ctx, msg)
	}
	return Inbound{}
}

func messageKey(msg *tgbotapi.Message) string {
	k := event.Key{ChatID: msg.Chat.ID, MessageID: int64(msg.MessageID)}
	return k.String()
}

func messageText(msg *tgbotapi.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

func displayName(u *tgbotapi.User) string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.UserName
}

func (c *Converter) rememberText(ctx context.Context, msg *tgbotapi.Message) {
	if c.Texts == nil || msg.Chat == nil {
		return
	}
	text := messageText(msg)
	if text == "" {
		return
	}
	if err := c.Texts.Set(ctx, textCacheName, messageKey(msg), text); err != nil {
		c.Logger.Warn("caching message text", "chat", msg.Chat.ID, "msg", msg.MessageID, "err", err)
	}
}

func (c *Converter) convertEdit(ctx context.Context, msg *tgbotapi.Message) *event.EditEvent {
	// channel posts have no sender
	if msg.From == nil || msg.Chat == nil {
		return nil
	}
	evt := &event.EditEvent{
		ChatID:     msg.Chat.ID,
		MessageID:  int64(msg.MessageID),
		ActorID:    msg.From.ID,
		ActorName:  displayName(msg.From),
		EditedText: messageText(msg),
		ObservedAt: time.Now(),
	}
	if msg.EditDate != 0 {
		evt.ObservedAt = time.Unix(int64(msg.EditDate), 0)
	}
	if c.Texts != nil {
		orig, err := c.Texts.Get(ctx, textCacheName, messageKey(msg))
		if err != nil {
			c.Logger.Warn("reading cached message text", "chat", msg.Chat.ID, "msg", msg.MessageID, "err", err)
		}
		evt.OriginalText = orig
	}
	return evt
}

func convertCommand(msg *tgbotapi.Message) *event.Command {
	if msg.From == nil || msg.Chat == nil {
		return nil
	}
	return &event.Command{
		RequesterID:   msg.From.ID,
		RequesterName: displayName(msg.From),
		ChatID:        msg.Chat.ID,
		Name:          strings.ToLower(msg.Command()),
		Args:          strings.Fields(msg.CommandArguments()),
	}
}
