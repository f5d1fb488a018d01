// Telegram Bot API adapter: implements the dispatcher's Transport, and converts inbound updates in to edit events and commands.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/editguard/editguard/automod/dispatch"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hashicorp/go-cleanhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// Subset of *tgbotapi.BotAPI used for outbound calls
type BotAPI interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

var _ BotAPI = (*tgbotapi.BotAPI)(nil)

type Transport struct {
	bot     BotAPI
	limiter *rate.Limiter
	assets  *AssetCache
	logger  *slog.Logger
}

var _ dispatch.Transport = (*Transport)(nil)

// Bot API recommends no more than ~30 messages per second across all chats
const DefaultRateLimit = 25

// Creates a transport. ratePerSec <= 0 uses DefaultRateLimit.
func NewTransport(bot BotAPI, assets *AssetCache, ratePerSec float64, logger *slog.Logger) *Transport {
	if ratePerSec <= 0 {
		ratePerSec = DefaultRateLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), max(1, int(math.Ceil(ratePerSec)))),
		assets:  assets,
		logger:  logger.With("component", "telegram"),
	}
}

// Connects to the Bot API and validates the token. Endpoint is a format string (eg, tgbotapi.APIEndpoint); empty means the default.
//
// The HTTP client does no retries of its own: retries are the dispatcher's job.
func NewBotAPI(token, endpoint string) (*tgbotapi.BotAPI, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := cleanhttp.DefaultPooledClient()
	client.Transport = otelhttp.NewTransport(client.Transport)
	// long enough for long-polling getUpdates
	client.Timeout = 90 * time.Second
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("connecting to bot API: %w", err)
	}
	return bot, nil
}

func (t *Transport) wait(ctx context.Context) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return ctx.Err()
}

func (t *Transport) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	_, err := t.bot.Request(tgbotapi.NewDeleteMessage(chatID, int(messageID)))
	return classifyError(err)
}

func (t *Transport) SendText(ctx context.Context, chatID int64, html string) error {
	if err := t.wait(ctx); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, html)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := t.bot.Send(msg)
	return classifyError(err)
}

// Sends a video. The first successful upload of an asset records its platform file ID, which is used for later sends.
func (t *Transport) SendMedia(ctx context.Context, chatID int64, assetRef, caption string) error {
	if t.assets == nil {
		return dispatch.Permanent(dispatch.ReasonBadRequest, fmt.Errorf("no asset cache configured for %q", assetRef))
	}
	file, cached, err := t.assets.Resolve(ctx, assetRef)
	if err != nil {
		return err
	}
	if err := t.wait(ctx); err != nil {
		return err
	}
	vid := tgbotapi.NewVideo(chatID, file)
	vid.Caption = caption
	vid.ParseMode = tgbotapi.ModeHTML
	sent, err := t.bot.Send(vid)
	if err != nil {
		if cached && staleFileID(err) {
			// forget it and let the retry upload the bytes
			t.logger.Warn("cached media file ID rejected, purging", "asset", assetRef, "err", err)
			t.assets.Forget(ctx, assetRef)
			return dispatch.Transient(err, 0)
		}
		return classifyError(err)
	}
	if !cached && sent.Video != nil && sent.Video.FileID != "" {
		t.assets.Remember(ctx, assetRef, sent.Video.FileID)
	}
	return nil
}

// The platform no longer accepts a previously issued file ID. Other failures (permissions, unknown chat) say nothing about the ID.
func staleFileID(err error) bool {
	desc := strings.ToLower(err.Error())
	for _, s := range []string{"wrong file identifier", "wrong remote file id", "failed to get http url content"} {
		if strings.Contains(desc, s) {
			return true
		}
	}
	return false
}
