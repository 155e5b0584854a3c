package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/lib/pq"
	"github.com/oarkflow/squealx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	_ "modernc.org/sqlite"

	"github.com/oarkflow/explorer"
	"github.com/oarkflow/explorer/logger"
	"github.com/oarkflow/explorer/stores"
)

// settings are the runtime settings shared by all commands. They come from
// flags, EXPLORER_* environment variables and an optional settings file,
// in that order of precedence.
type settings struct {
	DBDriver     string
	DBDSN        string
	RedisAddr    string
	RedisChannel string
	LogFormat    string
	LogLevel     string
}

func bindSettings(fs *pflag.FlagSet) *viper.Viper {
	fs.String("settings", "", "settings file (yaml, json or toml)")
	fs.String("db-driver", "sqlite", "identity database driver: sqlite or postgres")
	fs.String("db-dsn", "", "identity database DSN; empty uses an in-memory identity")
	fs.String("redis-addr", "", "redis address for cross-process cache flushes")
	fs.String("redis-channel", stores.DefaultFlushChannel, "redis flush channel")
	fs.String("log-format", "text", "log format: text, json, phuslu or none")
	fs.String("log-level", "info", "log level: debug, info or error")

	v := viper.New()
	v.SetEnvPrefix("EXPLORER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindPFlags(fs)
	return v
}

func loadSettings(v *viper.Viper) (settings, error) {
	if file := v.GetString("settings"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return settings{}, fmt.Errorf("read settings %s: %w", file, err)
		}
	}
	return settings{
		DBDriver:     v.GetString("db-driver"),
		DBDSN:        v.GetString("db-dsn"),
		RedisAddr:    v.GetString("redis-addr"),
		RedisChannel: v.GetString("redis-channel"),
		LogFormat:    v.GetString("log-format"),
		LogLevel:     v.GetString("log-level"),
	}, nil
}

func (s settings) logger() logger.Logger {
	var level slog.Level
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	switch s.LogFormat {
	case "none":
		return logger.NewNullLogger()
	case "phuslu":
		return logger.NewPhusluLogger().Component("explorer")
	case "json":
		return logger.NewSLogLogger(slog.New(slog.NewJSONHandler(os.Stderr, opts))).Component("explorer")
	default:
		return logger.NewSLogLogger(slog.New(slog.NewTextHandler(os.Stderr, opts))).Component("explorer")
	}
}

// identity opens the configured identity store. Without a DSN the memory
// store is returned so commands can seed it from flags.
func (s settings) identity(ctx context.Context) (explorer.Identity, *stores.MemoryIdentityStore, func(), error) {
	if s.DBDSN == "" {
		mem := stores.NewMemoryIdentityStore()
		return mem, mem, func() {}, nil
	}
	driver := s.DBDriver
	if driver == "postgresql" {
		driver = "postgres"
	}
	sqlDB, err := sql.Open(driver, s.DBDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open %s: %w", driver, err)
	}
	db := squealx.NewDb(sqlDB, driver, "explorer")
	if err := stores.Migrate(ctx, db); err != nil {
		_ = sqlDB.Close()
		return nil, nil, nil, err
	}
	return stores.NewSQLIdentityStore(db), nil, func() { _ = sqlDB.Close() }, nil
}

// relay starts the redis flush relay when an address is configured.
func (s settings) relay(ctx context.Context, bus *explorer.FlushBus, log logger.Logger) (func(), error) {
	if s.RedisAddr == "" {
		return func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: s.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", s.RedisAddr, err)
	}
	relay := stores.NewRedisFlushRelay(client, bus, s.RedisChannel, log)
	runCtx, cancel := context.WithCancel(ctx)
	go func() {
		if err := relay.Run(runCtx); err != nil && runCtx.Err() == nil {
			log.Error("flush relay stopped", "error", err)
		}
	}()
	return func() { cancel(); _ = client.Close() }, nil
}

type settingsSource struct {
	v *viper.Viper
}

func newSettingsSource(fs *pflag.FlagSet) settingsSource {
	return settingsSource{v: bindSettings(fs)}
}

func (s settingsSource) load() (settings, error) { return loadSettings(s.v) }
