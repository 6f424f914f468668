package app

import (
	"context"
	"fmt"

	"github.com/annel0/rts-aggro/internal/config"
	"github.com/annel0/rts-aggro/internal/logging"
	"github.com/annel0/rts-aggro/internal/storage"
)

// OpenTargetRepo выбирает хранилище снимков по storage.backend
func OpenTargetRepo(ctx context.Context, cfg *config.Config) (storage.TargetRepo, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory, "":
		logging.Info("💾 Снимки целей хранятся в памяти")
		return storage.NewMemoryTargetRepo(), nil

	case config.BackendRedis:
		return storage.NewRedisTargetRepo(ctx, &storage.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Redis.TTL(),
		})

	case config.BackendBadger:
		repo, err := storage.NewBadgerTargetRepo(cfg.Storage.BadgerPath)
		if err != nil {
			return nil, err
		}
		logging.Info("💾 Снимки целей хранятся в BadgerDB: %s", cfg.Storage.BadgerPath)
		return repo, nil

	case config.BackendMaria:
		return storage.NewMariaTargetRepo(ctx, cfg.Storage.MariaDSN)

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
