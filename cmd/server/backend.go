package main

import (
	"context"
	"fmt"
	"log/slog"

	"archivist/internal/audit"
	"archivist/internal/identity"
	"archivist/internal/outbox"
	"archivist/internal/platform/config"
	platformpg "archivist/internal/platform/postgres"
	"archivist/internal/seed"
	"archivist/internal/settings"
	"archivist/internal/signature"
	"archivist/internal/storage/memory"
	storepg "archivist/internal/storage/postgres"
	httptransport "archivist/internal/transport/http"
	"archivist/internal/workflow/service"
)

// store is everything the services need from persistence. Both the in-memory
// and the Postgres stores satisfy it.
type store interface {
	service.RequestStore
	service.ContainerStore
	service.UnitOfWork
	signature.Store
	identity.PrincipalStore
	identity.UsernameLookup
	audit.Store
	settings.Store
	outbox.Store
	seed.Directory
}

type backend struct {
	store      store
	waker      outbox.Waker
	health     []httptransport.HealthCheck
	background []func(ctx context.Context) error
	close      func()
}

// openBackend picks Postgres when a database URL is configured and the
// in-memory store otherwise.
func openBackend(ctx context.Context, cfg config.Config, log *slog.Logger) (*backend, error) {
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		db := memory.New(memory.WithTxTimeout(cfg.Database.TxTimeout))
		return &backend{store: db, waker: db, close: func() {}}, nil
	}

	db, err := platformpg.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := platformpg.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	pool, err := platformpg.OpenPool(ctx, cfg.Database)
	if err != nil {
		db.Close()
		return nil, err
	}
	listener := storepg.NewListener(pool, log)

	log.Info("connected to postgres", "max_open_conns", cfg.Database.MaxOpenConns)
	return &backend{
		store: storepg.New(db, storepg.WithTxTimeout(cfg.Database.TxTimeout)),
		waker: listener,
		health: []httptransport.HealthCheck{
			{Name: "postgres", Check: db.PingContext},
		},
		background: []func(ctx context.Context) error{listener.Run},
		close: func() {
			pool.Close()
			if err := db.Close(); err != nil {
				log.Warn("closing postgres", "error", err)
			}
		},
	}, nil
}

// applySeed loads reference data and accounts from the configured fixture.
func applySeed(ctx context.Context, path string, dir seed.Directory, roles identity.Roles, log *slog.Logger) error {
	if path == "" {
		return nil
	}
	file, err := seed.Load(path)
	if err != nil {
		return err
	}
	summary, err := seed.Apply(ctx, dir, file, identity.HashPassword, roles)
	if err != nil {
		return fmt.Errorf("apply seed %s: %w", path, err)
	}
	log.Info("seed applied",
		"path", path,
		"units", summary.Units,
		"locations", summary.Locations,
		"principals", summary.Principals,
	)
	return nil
}
