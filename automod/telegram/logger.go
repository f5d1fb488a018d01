package telegram

import (
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Routes the bot library's internal logging (mostly polling errors) through slog.
type botLogger struct {
	logger *slog.Logger
}

func (l botLogger) Println(v ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (l botLogger) Printf(format string, v ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func SetBotLogger(logger *slog.Logger) error {
	return tgbotapi.SetLogger(botLogger{logger: logger.With("system", "tgbotapi")})
}
