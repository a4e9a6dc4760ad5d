package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/pms/internal/config"
	"github.com/ehr/pms/internal/domain/patient"
	"github.com/ehr/pms/internal/platform/db"
	"github.com/ehr/pms/internal/platform/kv"
)

// store is an opened patient gateway. pool is set only for postgres so the
// health endpoint can report pool statistics.
type store struct {
	driver string
	gw     patient.Gateway
	pool   *pgxpool.Pool
}

// openStore opens the gateway selected by cfg.StoreDriver. A postgres store
// is migrated to the embedded schema before use. Networked drivers are
// wrapped in a circuit breaker.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*store, error) {
	s := &store{driver: cfg.StoreDriver}

	switch cfg.StoreDriver {
	case config.DriverFile:
		s.gw = patient.NewFileGateway(cfg.StorePath)

	case config.DriverMemory:
		s.gw = patient.NewMemoryGateway(nil)

	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.DBSchema)
		if err != nil {
			return nil, err
		}
		count, err := db.NewEmbeddedMigrator(pool).Up(ctx, cfg.DBSchema)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate patient store: %w", err)
		}
		if count > 0 {
			logger.Info().Int("applied", count).Str("schema", cfg.DBSchema).Msg("postgres migrations applied")
		}
		s.pool = pool
		s.gw = breaker(patient.NewPGGateway(pool), cfg, logger)

	case config.DriverLevelDB:
		ldb, err := kv.OpenLevelDB(cfg.LevelDBPath, logger)
		if err != nil {
			return nil, err
		}
		s.gw = patient.NewLevelDBGateway(ldb)

	case config.DriverRedis:
		client, err := kv.NewRedis(ctx, cfg.RedisURL, kv.RedisOptions{})
		if err != nil {
			return nil, err
		}
		s.gw = breaker(patient.NewRedisGateway(client, cfg.RedisKeyPrefix), cfg, logger)

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	logger.Info().Str("driver", s.driver).Msg("patient store opened")
	return s, nil
}

func breaker(gw patient.Gateway, cfg *config.Config, logger zerolog.Logger) patient.Gateway {
	return patient.NewBreakerGateway(gw, "patient-store-"+cfg.StoreDriver, cfg.BreakerMaxFailures, cfg.BreakerTimeout, logger)
}

func (s *store) Close() error {
	return s.gw.Close()
}
