package util

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Adapts slog to retryablehttp's leveled logger. Failures the client will retry are not errors, so ERROR is logged as WARN and the retry messages (DEBUG) as INFO.
type retryLogger struct {
	log *slog.Logger
}

func (l retryLogger) Error(msg string, kv ...interface{}) { l.log.Warn(msg, kv...) }
func (l retryLogger) Warn(msg string, kv ...interface{})  { l.log.Warn(msg, kv...) }
func (l retryLogger) Info(msg string, kv ...interface{})  { l.log.Info(msg, kv...) }
func (l retryLogger) Debug(msg string, kv ...interface{}) { l.log.Info(msg, kv...) }

// HTTP client for outbound fetches outside the bot API: media asset downloads and webhook notifications.
//
// Retries connection errors, 5xx (except 501), and 429 (respecting Retry-After), up to three times. Requests are traced. Bot API calls do not go through this client, since the action dispatcher does its own retries.
func RobustHTTPClient(logger *slog.Logger) *http.Client {
	if logger == nil {
		logger = slog.Default()
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = time.Second
	rc.RetryWaitMax = 10 * time.Second
	rc.Logger = retryablehttp.LeveledLogger(retryLogger{logger.With("system", "http")})
	rc.HTTPClient.Transport = otelhttp.NewTransport(rc.HTTPClient.Transport)

	client := rc.StandardClient()
	client.Timeout = 20 * time.Second
	return client
}
