package cliutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Picks a gorm dialector for an audit database URL.
//
// Accepts "sqlite://path", "sqlite=path", "postgres://..." (or "postgresql://..."), and "postgres=dsn".
func dialectorFor(dburl string) (dial gorm.Dialector, isSqlite bool, err error) {
	switch {
	case strings.HasPrefix(dburl, "sqlite://"), strings.HasPrefix(dburl, "sqlite="):
		path := strings.TrimPrefix(strings.TrimPrefix(dburl, "sqlite://"), "sqlite=")
		if !strings.Contains(path, ":memory:") {
			// first run: the database file's directory may not exist yet
			if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
				return nil, false, fmt.Errorf("creating sqlite directory: %w", err)
			}
		}
		return sqlite.Open(path), true, nil
	case strings.HasPrefix(dburl, "postgresql://"), strings.HasPrefix(dburl, "postgres://"):
		return postgres.Open(dburl), false, nil
	case strings.HasPrefix(dburl, "postgres="):
		return postgres.Open(strings.TrimPrefix(dburl, "postgres=")), false, nil
	}
	// only print the scheme, the rest may contain a password
	scheme, _, _ := strings.Cut(dburl, ":")
	return nil, false, fmt.Errorf("unsupported or unrecognized database URL scheme: %q", scheme)
}

// Opens the audit database, with gorm logging routed through slog.
//
// sqlite is limited to a single open connection and runs in WAL mode.
func SetupDatabase(dburl string, maxConnections int) (*gorm.DB, error) {
	dial, isSqlite, err := dialectorFor(dburl)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dial, &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 slogGorm.New(slogGorm.WithLogger(slog.Default().With("system", "gorm"))),
	})
	if err != nil {
		return nil, err
	}

	sqldb, err := db.DB()
	if err != nil {
		return nil, err
	}
	if isSqlite {
		maxConnections = 1
	}
	sqldb.SetMaxIdleConns(10)
	sqldb.SetMaxOpenConns(maxConnections)
	sqldb.SetConnMaxIdleTime(time.Hour)

	if isSqlite {
		for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA synchronous=normal;"} {
			if err := db.Exec(pragma).Error; err != nil {
				return nil, fmt.Errorf("%s: %w", pragma, err)
			}
		}
	}
	return db, nil
}

type LogOptions struct {
	// path to write to; "" or "-" for stdout
	LogPath string

	// text|json
	LogFormat string

	// debug|info|warn|error
	LogLevel string
}

// Fills unset options from EDITGUARD_LOG_* environment variables, then the generic LOG_* ones.
func (o LogOptions) withEnv() LogOptions {
	lookup := func(names ...string) string {
		for _, n := range names {
			if v := os.Getenv(n); v != "" {
				return v
			}
		}
		return ""
	}
	if o.LogLevel == "" {
		o.LogLevel = lookup("EDITGUARD_LOG_LEVEL", "LOG_LEVEL")
	}
	if o.LogFormat == "" {
		o.LogFormat = lookup("EDITGUARD_LOG_FMT", "LOG_FMT")
	}
	if o.LogPath == "" {
		o.LogPath = lookup("EDITGUARD_LOG_FILE")
	}
	return o
}

// SetupSlog builds a logger from options and environment, and makes it the default logger.
//
// Passing an empty LogOptions{} is fine: level defaults to info, format to text, output to stdout.
func SetupSlog(options LogOptions) (*slog.Logger, error) {
	options = options.withEnv()

	hopts := slog.HandlerOptions{AddSource: true}
	if options.LogLevel != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(options.LogLevel)); err != nil {
			return nil, fmt.Errorf("unknown log level: %#v", options.LogLevel)
		}
		hopts.Level = lvl
	}

	var out io.Writer = os.Stdout
	if options.LogPath != "" && options.LogPath != "-" {
		f, err := os.OpenFile(options.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", options.LogPath, err)
		}
		out = f
	}

	var handler slog.Handler
	switch strings.ToLower(options.LogFormat) {
	case "", "text":
		handler = slog.NewTextHandler(out, &hopts)
	case "json":
		handler = slog.NewJSONHandler(out, &hopts)
	default:
		return nil, fmt.Errorf("invalid log format: %#v", options.LogFormat)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
