package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/editguard/editguard/automod/telegram"
	"github.com/editguard/editguard/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "editguard",
		Usage:   "group chat moderation daemon (removes edited messages)",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     "telegram-token",
			Usage:    "Bot API token, from @BotFather",
			Required: true,
			EnvVars:  []string{"EDITGUARD_TELEGRAM_TOKEN", "TELEGRAM_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "telegram-api-endpoint",
			Usage:   "Bot API endpoint format string (for self-hosted Bot API servers)",
			Value:   "https://api.telegram.org/bot%s/%s",
			EnvVars: []string{"EDITGUARD_TELEGRAM_API_ENDPOINT"},
		},
		&cli.Int64Flag{
			Name:     "owner-id",
			Usage:    "user ID of the bot owner, who is always trusted and may manage the trusted list",
			Required: true,
			EnvVars:  []string{"EDITGUARD_OWNER_ID", "OWNER_ID"},
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "deterrent-asset",
			Usage:   "URL or local path of the video sent after removing an edited message",
			Value:   "https://files.catbox.moe/s5dndg.mp4",
			EnvVars: []string{"EDITGUARD_DETERRENT_ASSET"},
		},
		&cli.StringFlag{
			Name:    "welcome-asset",
			Usage:   "URL or local path of the video sent in reply to /start (empty to disable)",
			Value:   "https://files.catbox.moe/xbj93j.mp4",
			EnvVars: []string{"EDITGUARD_WELCOME_ASSET"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection URL; when set, trusted users, counters and caches are stored in redis",
			EnvVars: []string{"EDITGUARD_REDIS_URL", "REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "audit log database (sqlite:// or postgres://); empty to disable",
			Value:   "sqlite://data/editguard/audit.sqlite",
			EnvVars: []string{"EDITGUARD_DATABASE_URL", "DATABASE_URL"},
		},
		&cli.BoolFlag{
			Name:    "db-tracing",
			Usage:   "enable OpenTelemetry tracing of audit database queries",
			EnvVars: []string{"EDITGUARD_DB_TRACING"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			Value:   10,
			EnvVars: []string{"EDITGUARD_MAX_DB_CONNECTIONS"},
		},
		&cli.StringFlag{
			Name:    "trusted-file",
			Usage:   `JSON file with initial trusted user IDs, eg {"trusted": ["1234"]}`,
			EnvVars: []string{"EDITGUARD_TRUSTED_FILE"},
		},
		&cli.IntFlag{
			Name:    "ledger-max-entries",
			Usage:   "maximum number of edited messages held in the in-memory ledger (0 for unbounded)",
			Value:   100_000,
			EnvVars: []string{"EDITGUARD_LEDGER_MAX_ENTRIES"},
		},
		&cli.DurationFlag{
			Name:    "action-timeout",
			Usage:   "deadline for each attempt of a Bot API call",
			Value:   dispatchDefaults.ActionTimeout,
			EnvVars: []string{"EDITGUARD_ACTION_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:    "max-attempts",
			Usage:   "attempts per action (including the first) before giving up on transient failures",
			Value:   dispatchDefaults.MaxAttempts,
			EnvVars: []string{"EDITGUARD_MAX_ATTEMPTS"},
		},
		&cli.DurationFlag{
			Name:    "max-retry-after",
			Usage:   "longest Bot API flood-wait which is waited out; longer waits fail the action",
			Value:   dispatchDefaults.MaxRetryAfter,
			EnvVars: []string{"EDITGUARD_MAX_RETRY_AFTER"},
		},
		&cli.Float64Flag{
			Name:    "telegram-rate-limit",
			Usage:   "max outbound Bot API calls per second",
			Value:   telegram.DefaultRateLimit,
			EnvVars: []string{"EDITGUARD_TELEGRAM_RATE_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "parallelism",
			Usage:   "number of chats processed concurrently",
			Value:   8,
			EnvVars: []string{"EDITGUARD_PARALLELISM"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "optional slack incoming webhook for enforcement reports",
			EnvVars: []string{"EDITGUARD_SLACK_WEBHOOK_URL", "SLACK_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for the admin HTTP API",
			Value:   ":3999",
			EnvVars: []string{"EDITGUARD_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3998",
			EnvVars: []string{"EDITGUARD_METRICS_LISTEN"},
		},
	},
	Action: func(cctx *cli.Context) error {
		logger, err := cliutil.SetupSlog(cliutil.LogOptions{})
		if err != nil {
			return err
		}

		shutdownOTEL, err := configOTEL("editguard")
		if err != nil {
			return err
		}
		defer shutdownOTEL()

		if err := telegram.SetBotLogger(logger); err != nil {
			return err
		}
		bot, err := telegram.NewBotAPI(cctx.String("telegram-token"), cctx.String("telegram-api-endpoint"))
		if err != nil {
			return err
		}
		logger.Info("connected to bot API", "bot", bot.Self.UserName)

		var db *gorm.DB
		if dburl := cctx.String("database-url"); dburl != "" {
			db, err = cliutil.SetupDatabase(dburl, cctx.Int("max-db-connections"))
			if err != nil {
				return err
			}
			if cctx.Bool("db-tracing") {
				if err := db.Use(tracing.NewPlugin()); err != nil {
					return err
				}
			}
		}

		srv, err := NewServer(
			db,
			bot,
			Config{
				Logger:            logger,
				OwnerID:           cctx.Int64("owner-id"),
				DeterrentAsset:    cctx.String("deterrent-asset"),
				WelcomeAsset:      cctx.String("welcome-asset"),
				RedisURL:          cctx.String("redis-url"),
				TrustedFileJSON:   cctx.String("trusted-file"),
				LedgerMaxEntries:  cctx.Int("ledger-max-entries"),
				ActionTimeout:     cctx.Duration("action-timeout"),
				MaxAttempts:       cctx.Int("max-attempts"),
				MaxRetryAfter:     cctx.Duration("max-retry-after"),
				TelegramRateLimit: cctx.Float64("telegram-rate-limit"),
				Parallelism:       cctx.Int("parallelism"),
				SlackWebhookURL:   cctx.String("slack-webhook-url"),
				Bind:              cctx.String("bind"),
			},
		)
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := srv.Run(ctx, bot); err != nil {
			return fmt.Errorf("failed to run editguard service: %w", err)
		}
		return nil
	},
}
