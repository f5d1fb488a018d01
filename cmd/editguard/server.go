package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/editguard/editguard/automod/auditlog"
	"github.com/editguard/editguard/automod/cachestore"
	"github.com/editguard/editguard/automod/command"
	"github.com/editguard/editguard/automod/countstore"
	"github.com/editguard/editguard/automod/dispatch"
	"github.com/editguard/editguard/automod/engine"
	"github.com/editguard/editguard/automod/event"
	"github.com/editguard/editguard/automod/flagstore"
	"github.com/editguard/editguard/automod/ledger"
	"github.com/editguard/editguard/automod/scheduler"
	"github.com/editguard/editguard/automod/setstore"
	"github.com/editguard/editguard/automod/telegram"
	"github.com/editguard/editguard/automod/trust"
	"github.com/editguard/editguard/util"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var dispatchDefaults = dispatch.DefaultConfig()

// Prefix for every key this process writes to redis
const redisNamespace = "editguard/"

// Platform file IDs stay valid far longer than message texts are worth keeping
const fileIDTTL = 30 * 24 * time.Hour

type Server struct {
	logger     *slog.Logger
	engine     *engine.Engine
	gateway    *command.Gateway
	dispatcher *dispatch.Dispatcher
	trust      *trust.Registry
	ledger     *ledger.Ledger
	audit      *auditlog.GormStore
	converter  *telegram.Converter
	sched      *scheduler.Scheduler[int64, work]
	rdb        *redis.Client
	echo       *echo.Echo
	httpd      *http.Server
	lastUpdate atomic.Int64
}

type Config struct {
	Logger            *slog.Logger
	OwnerID           int64
	DeterrentAsset    string
	WelcomeAsset      string
	RedisURL          string
	TrustedFileJSON   string
	LedgerMaxEntries  int
	ActionTimeout     time.Duration
	MaxAttempts       int
	MaxRetryAfter     time.Duration
	TelegramRateLimit float64
	Parallelism       int
	SlackWebhookURL   string
	Bind              string
}

// A unit of per-chat work: exactly one of the fields is set
type work struct {
	edit *event.EditEvent
	cmd  *event.Command
}

func NewServer(db *gorm.DB, bot telegram.BotAPI, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if config.OwnerID == 0 {
		return nil, fmt.Errorf("owner ID is required")
	}

	var counters countstore.CountStore
	var cache cachestore.CacheStore
	var flags flagstore.FlagStore
	var rdb *redis.Client
	if config.RedisURL != "" {
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %v", err)
		}
		rdb = redis.NewClient(opt)
		// check redis connection
		_, err = rdb.Ping(context.TODO()).Result()
		if err != nil {
			return nil, fmt.Errorf("redis ping failed: %v", err)
		}
		counters = countstore.NewRedisCountStore(rdb, redisNamespace)
		csh := cachestore.NewRedisCacheStore(rdb, redisNamespace, 48*time.Hour)
		csh.NameTTL(telegram.FileIDCacheName, fileIDTTL)
		cache = csh
		flags = flagstore.NewRedisFlagStore(rdb, redisNamespace)
	} else {
		csh := cachestore.NewMemCacheStore(200_000, 48*time.Hour)
		csh.NameTTL(telegram.FileIDCacheName, fileIDTTL)
		cache = csh
		counters = countstore.NewMemCountStore()
		flags = flagstore.NewMemFlagStore()
	}

	reg := trust.NewRegistry(config.OwnerID, flags, logger)
	if err := reg.Load(context.TODO()); err != nil {
		return nil, err
	}
	if config.TrustedFileJSON != "" {
		sets := setstore.NewMemSetStore()
		if err := sets.LoadFromFileJSON(config.TrustedFileJSON); err != nil {
			return nil, fmt.Errorf("loading trusted users file: %v", err)
		}
		vals, err := sets.List(context.TODO(), trust.FlagKey)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, 0, len(vals))
		for _, v := range vals {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted user ID %q in %s", v, config.TrustedFileJSON)
			}
			ids = append(ids, id)
		}
		if err := reg.Seed(context.TODO(), ids); err != nil {
			return nil, err
		}
		logger.Info("seeded trusted users from JSON", "path", config.TrustedFileJSON, "count", len(ids))
	}

	var evictor ledger.Evictor
	if config.LedgerMaxEntries > 0 {
		lru, err := ledger.NewLRUEvictor(config.LedgerMaxEntries)
		if err != nil {
			return nil, err
		}
		evictor = lru
	}
	led := ledger.NewLedger(evictor)

	assets := telegram.NewAssetCache(util.RobustHTTPClient(logger), cache, logger)
	if err := assets.Prefetch(context.TODO(), config.DeterrentAsset, config.WelcomeAsset); err != nil {
		// not fatal: the asset may become reachable later, and every send retries the fetch
		logger.Warn("failed to prefetch media assets", "err", err)
	}
	transport := telegram.NewTransport(bot, assets, config.TelegramRateLimit, logger)
	disp := dispatch.NewDispatcher(transport, dispatch.Config{
		MaxAttempts:     config.MaxAttempts,
		InitialInterval: dispatchDefaults.InitialInterval,
		MaxInterval:     dispatchDefaults.MaxInterval,
		ActionTimeout:   config.ActionTimeout,
		MaxRetryAfter:   config.MaxRetryAfter,
		MaxElapsed:      dispatchDefaults.MaxElapsed,
	}, logger)

	var audit *auditlog.GormStore
	eng, err := engine.NewEngine(logger, config.OwnerID, config.DeterrentAsset, reg, led, disp)
	if err != nil {
		return nil, err
	}
	eng.Counters = counters
	if db != nil {
		audit, err = auditlog.NewGormStore(db)
		if err != nil {
			return nil, err
		}
		eng.Audit = audit
	}
	if config.SlackWebhookURL != "" {
		eng.Notifier = engine.NewSlackNotifier(config.SlackWebhookURL, util.RobustHTTPClient(logger))
	}

	s := &Server{
		logger: logger,
		engine: eng,
		gateway: &command.Gateway{
			Logger:       logger,
			Trust:        reg,
			Counters:     counters,
			WelcomeAsset: config.WelcomeAsset,
		},
		dispatcher: disp,
		trust:      reg,
		ledger:     led,
		audit:      audit,
		converter: &telegram.Converter{
			Texts:  cache,
			Logger: logger,
		},
		rdb: rdb,
	}
	s.sched = scheduler.NewScheduler[int64, work](config.Parallelism, "chats", s.processWork)
	s.setupAPI(config.Bind)
	return s, nil
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

// Runs the update consumer and admin API until ctx is canceled, then shuts down gracefully: in-flight per-chat work is finished, and the update cursor is persisted.
func (s *Server) Run(ctx context.Context, updates UpdateSource) error {
	offset, err := s.ReadLastCursor(ctx)
	if err != nil {
		return fmt.Errorf("reading update cursor: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.RunConsumer(gctx, updates, offset)
	})
	g.Go(func() error {
		return s.RunPersistCursor(gctx)
	})
	g.Go(func() error {
		s.logger.Info("starting admin API", "bind", s.httpd.Addr)
		if err := s.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin API: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpd.Shutdown(shutdownCtx)
	})
	err = g.Wait()

	s.sched.Shutdown()
	if perr := s.PersistCursor(context.Background()); perr != nil {
		s.logger.Error("failed to persist update cursor", "err", perr)
	}
	s.logger.Info("graceful shutdown complete")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

var cursorKey = redisNamespace + "update-offset"

func (s *Server) ReadLastCursor(ctx context.Context) (int64, error) {
	// if redis isn't configured, just skip
	if s.rdb == nil {
		s.logger.Info("redis not configured, skipping cursor read")
		return 0, nil
	}

	val, err := s.rdb.Get(ctx, cursorKey).Int64()
	if err == redis.Nil {
		s.logger.Info("no pre-existing update cursor in redis")
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	s.logger.Info("successfully found prior update cursor in redis", "offset", val)
	return val, nil
}

func (s *Server) PersistCursor(ctx context.Context) error {
	// if redis isn't configured, just skip
	if s.rdb == nil {
		return nil
	}
	last := s.lastUpdate.Load()
	if last <= 0 {
		return nil
	}
	// Bot API only retains undelivered updates for 24 hours
	return s.rdb.Set(ctx, cursorKey, last, 48*time.Hour).Err()
}

func (s *Server) RunPersistCursor(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.PersistCursor(ctx); err != nil {
				s.logger.Error("cursor error", "err", err)
			}
		}
	}
}
