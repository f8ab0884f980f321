package cmd

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/drafts/config"
	"example.com/backstage/services/drafts/internal/cache"
	"example.com/backstage/services/drafts/internal/database"
	"example.com/backstage/services/drafts/internal/metrics"
	"example.com/backstage/services/drafts/internal/models"
	"example.com/backstage/services/drafts/internal/persistence"
	"example.com/backstage/services/drafts/internal/repositories"
	"example.com/backstage/services/drafts/internal/services"
)

// storage bundles the draft snapshot store and the optional alert source
type storage struct {
	kv     persistence.KV
	alerts services.AlertSource
	closes []func() error
}

func (s *storage) Close() {
	for _, closeFn := range s.closes {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("Failed to close storage")
		}
	}
}

// initStorage opens the configured snapshot backend. Postgres is required
// for the postgres backend; otherwise it only feeds the alert overlay and
// the service runs without it when unreachable.
func initStorage(ctx context.Context, cfg config.Config, metricsCollector *metrics.Metrics) (*storage, error) {
	s := &storage{}

	conn, err := database.Connect(cfg.DB)
	switch {
	case err != nil && cfg.Storage.Backend == config.StoragePostgres:
		return nil, err
	case err != nil:
		log.Warn().Err(err).Msg("Failed to connect to database, continuing without alert counts")
		metricsCollector.SetHealth("database", false)
	default:
		if err := models.SetupModels(conn.Write); err != nil {
			conn.Close()
			return nil, err
		}
		s.alerts = repositories.NewAlertRepository(conn.Read)
		s.closes = append(s.closes, conn.Close)
		metricsCollector.SetHealth("database", true)
	}

	switch cfg.Storage.Backend {
	case config.StorageMemory:
		log.Warn().Msg("Draft snapshots are kept in memory and will not survive a restart")
		s.kv = persistence.NewMemoryKV()
	case config.StorageRedis:
		redisKV, err := cache.NewRedisKV(cfg.Redis)
		if err != nil {
			s.Close()
			return nil, errors.Wrap(err, "failed to initialize Redis snapshot store")
		}
		if err := redisKV.Ping(ctx); err != nil {
			metricsCollector.SetHealth("redis", false)
		} else {
			metricsCollector.SetHealth("redis", true)
		}
		s.kv = redisKV
		s.closes = append(s.closes, redisKV.Close)
	case config.StoragePostgres:
		s.kv = repositories.NewSnapshotRepository(conn.Write)
	default:
		s.Close()
		return nil, errors.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	log.Info().Str("backend", cfg.Storage.Backend).Msg("Draft snapshot storage ready")
	return s, nil
}
