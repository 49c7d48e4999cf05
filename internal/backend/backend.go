// Package backend opens the storage, parameter and event backends selected
// by configuration.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"influencegen/internal/config"
	"influencegen/internal/events"
	"influencegen/internal/log"
	"influencegen/internal/params"
	"influencegen/internal/store"
)

// Backends holds the opened backends. Close releases them.
type Backends struct {
	Store  store.Store
	Params params.Store
	Broker events.Broker
	Redis  redis.UniversalClient

	closers []func() error
}

// Open selects backends from cfg:
//   - DatabaseURL set: Postgres store (migrated when DBMigrate) else memory
//   - RedisURL set: Redis parameters and broker
//   - otherwise parameters live in Postgres when available, memory when not
//
// Parameter reads are wrapped in a TTL cache.
func Open(ctx context.Context, cfg config.Config) (*Backends, error) {
	logger := log.WithComponent("backend")
	b := &Backends{}

	var pg *store.Postgres
	if cfg.DatabaseURL != "" {
		var err error
		pg, err = store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		b.closers = append(b.closers, pg.Close)
		if cfg.DBMigrate {
			if err := pg.Migrate(ctx); err != nil {
				_ = b.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		b.Store = pg
		logger.Info().Msg("using postgres store")
	} else {
		b.Store = store.NewMemory()
		logger.Warn().Msg("DATABASE_URL not set; using in-memory store")
	}

	var backing params.Store
	switch {
	case cfg.RedisURL != "":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opt)
		b.closers = append(b.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		b.Redis = rdb
		backing = params.NewRedis(rdb, cfg.Namespace)
		b.Broker = events.NewRedis(rdb, cfg.Namespace)
		logger.Info().Msg("using redis parameters and broker")
	case pg != nil:
		pp := params.NewPostgres(pg.DB())
		if err := pp.EnsureSchema(ctx); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("params schema: %w", err)
		}
		backing = pp
	default:
		backing = params.NewMemory()
	}
	if b.Broker == nil {
		b.Broker = events.NewMemory()
	}
	b.Params = params.NewCached(backing, cfg.ParamsTTL)
	return b, nil
}

// Close releases backends in reverse order of opening.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
