package engine

import (
	"context"
	"fmt"
	"log/slog"

	"scholarwatch/internal/alerts"
	"scholarwatch/internal/config"
	"scholarwatch/internal/core"
	"scholarwatch/internal/db"
	"scholarwatch/internal/db/sqlite"
)

// storage is one backend's view of the alert store, scope reads and job
// history.
type storage struct {
	alerts  alerts.Store
	scope   Scope
	history JobHistory
	probe   core.HealthProbe
	migrate func(ctx context.Context) (int, error)
	seed    func(ctx context.Context, f sqlite.Fixture) error
	close   func()
}

func openStorage(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*storage, error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		logger.Info("postgres pool ready", "max_conns", cfg.MaxConns)
		return &storage{
			alerts:  db.NewAlertRepository(pool),
			scope:   db.NewScopeRepository(pool),
			history: db.NewJobRunRepository(pool),
			probe:   core.PingProbe{Label: "database", Ping: pool.Ping},
			migrate: func(ctx context.Context) (int, error) { return db.Migrate(ctx, pool) },
			close:   pool.Close,
		}, nil

	case "sqlite":
		store, err := sqlite.Open(cfg.URL.Unmask())
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}
		logger.Info("sqlite store ready")
		return &storage{
			alerts:  store,
			scope:   store,
			history: store.JobRuns(),
			probe:   core.PingProbe{Label: "database", Ping: store.DB().PingContext},
			// Open applies the embedded migrations.
			migrate: func(context.Context) (int, error) { return 0, nil },
			seed:    store.Seed,
			close:   func() { _ = store.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
