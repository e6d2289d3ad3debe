package persistence

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/territory-studio/engine/internal/repository"
	"github.com/territory-studio/engine/pkg/config"
	"github.com/territory-studio/engine/pkg/database"
	"github.com/territory-studio/engine/pkg/utils"
)

// Backend is the document store chain built from configuration together
// with the connections it owns.
type Backend struct {
	Store Store
	// Revisions is nil unless the chain keeps history.
	Revisions Revisioned
	DB        *gorm.DB
	Redis     *goredis.Client
}

// Open builds the store chain: the configured primary, an optional Redis
// read-through cache in front of it and, for database primaries, the local
// data file as load fallback.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Backend, error) {
	var fileOpts []FileOption
	if cfg.DataBackup {
		fileOpts = append(fileOpts, WithBackup())
	}
	file := NewFileStore(cfg.DataFile, fileOpts...)

	b := &Backend{Redis: utils.OpenRedis(cfg.RedisAddr, cfg.RedisPassword)}
	var primary Store = file
	if cfg.StorageDriver == "postgres" {
		db, err := database.OpenPostgres(ctx, cfg.DatabaseURL, cfg.AppEnv, log)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.DB = db
		primary = NewPostgresStore(repository.NewRevisionRepository(db), cfg.DocumentKey).WithRetention(cfg.RevisionKeep)
	}
	if b.Redis != nil {
		primary = NewCachedStore(primary, b.Redis, cfg.DocumentKey, cfg.CacheTTL)
	}
	b.Store = primary
	if b.DB != nil {
		b.Store = NewFallbackStore(primary, file)
	}
	b.Revisions, _ = FindRevisioned(b.Store)

	log.Info("document store ready",
		zap.String("driver", cfg.StorageDriver),
		zap.String("data_file", file.Path()),
		zap.Bool("cache", b.Redis != nil),
		zap.Bool("revisions", b.Revisions != nil),
	)
	return b, nil
}

// Ping checks the connections the backend holds.
func (b *Backend) Ping(ctx context.Context) error {
	var errs []error
	if b.DB != nil {
		if sqlDB, err := b.DB.DB(); err != nil {
			errs = append(errs, err)
		} else if err := sqlDB.PingContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if b.Redis != nil {
		if err := b.Redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Backend) Close() error {
	var errs []error
	if b.Redis != nil {
		errs = append(errs, b.Redis.Close())
	}
	if b.DB != nil {
		if sqlDB, err := b.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
