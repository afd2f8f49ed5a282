package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Mindburn-Labs/trustengine/pkg/config"
)

// Open returns the backend selected by cfg.StoreType.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	logger := slog.Default().With("component", "store")

	switch cfg.StoreType {
	case config.StoreMemory, "":
		logger.Debug("using in-memory store")
		return NewMemoryStore(), nil

	case config.StoreSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("sqlite dir: %w", err)
			}
		}
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, unavailable("open sqlite", err)
		}
		s, err := NewSQLiteStore(db)
		if err != nil {
			_ = db.Close()
			return nil, unavailable("init sqlite", err)
		}
		logger.Info("using sqlite store", "path", cfg.SQLitePath)
		return s, nil

	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, unavailable("open postgres", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, unavailable("ping postgres", err)
		}
		s := NewPostgresStore(db)
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, unavailable("init postgres", err)
		}
		logger.Info("using postgres store")
		return s, nil

	case config.StoreRedis:
		s := NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		logger.Info("using redis store", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.StoreType)
	}
}
