// Package bootstrap opens the appointment store selected by configuration.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
	"github.com/hackgods/clinic-scheduling/internal/store/gormstore"
	"github.com/hackgods/clinic-scheduling/internal/store/httpstore"
	"github.com/hackgods/clinic-scheduling/internal/store/memstore"
	"github.com/hackgods/clinic-scheduling/internal/store/pgstore"
)

// ServiceCatalog is implemented by stores that can be seeded with services.
type ServiceCatalog interface {
	UpsertServices(ctx context.Context, services []appointment.Service) error
}

// Backend is an opened store plus what the process needs around it.
type Backend struct {
	Store        appointment.Store
	Dependencies []api.Dependency
	// Postgres is set only for the postgres backend.
	Postgres *pgstore.Store

	closers []func()
}

// Close releases connections in reverse order of opening.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func (b *Backend) onClose(fn func()) { b.closers = append(b.closers, fn) }

// OpenStore connects to the backend named by cfg.StoreBackend.
func OpenStore(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Backend, error) {
	b := &Backend{}

	switch cfg.StoreBackend {
	case config.BackendMemory:
		b.Store = memstore.New(memstore.DefaultServices()...)
		log.Warn().Msg("using in-memory store, data is lost on restart")

	case config.BackendPostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		b.onClose(pool.Close)
		b.Dependencies = append(b.Dependencies, api.Dependency{Name: "postgres", Check: pool.Ping})
		log.Info().Msg("connected to Postgres")

		var locker redisclient.Locker = redisclient.NoopLocker{}
		if cfg.RedisAddr != "" {
			rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
				Addr:     cfg.RedisAddr,
				Username: cfg.RedisUsername,
				Password: cfg.RedisPassword,
			})
			if err != nil {
				b.Close()
				return nil, fmt.Errorf("redis connection: %w", err)
			}
			b.onClose(func() {
				if err := rdb.Close(); err != nil {
					log.Error().Err(err).Msg("error closing redis")
				}
			})
			b.Dependencies = append(b.Dependencies, api.Dependency{Name: "redis", Check: redisclient.Check(rdb), Optional: true})
			locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
			log.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
		} else {
			log.Warn().Msg("REDIS_ADDR not set, relying on the database index for slot exclusivity")
		}

		b.Postgres = pgstore.New(pool, locker)
		b.Store = b.Postgres

	case config.BackendSQLite:
		s, err := gormstore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite open: %w", err)
		}
		b.onClose(func() {
			if err := s.Close(); err != nil {
				log.Error().Err(err).Msg("error closing sqlite")
			}
		})
		b.Dependencies = append(b.Dependencies, api.Dependency{Name: "sqlite", Check: s.Ping})
		b.Store = s
		log.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite store")

	case config.BackendRemote:
		c, err := httpstore.New(cfg.RemoteStoreURL, cfg.RemoteStoreToken,
			httpstore.WithLogger(log.With().Str("store", "remote").Logger()))
		if err != nil {
			return nil, err
		}
		b.Dependencies = append(b.Dependencies, api.Dependency{Name: "remote_store", Check: c.Ping})
		b.Store = c
		log.Info().Str("url", cfg.RemoteStoreURL).Msg("using remote appointment store")

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	return b, nil
}
