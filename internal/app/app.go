// Package app wires configuration into the progress tracking components
// shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-progress/internal/analytics"
	"github.com/p-n-ai/pai-progress/internal/api"
	"github.com/p-n-ai/pai-progress/internal/curriculum"
	"github.com/p-n-ai/pai-progress/internal/platform/cache"
	"github.com/p-n-ai/pai-progress/internal/platform/config"
	"github.com/p-n-ai/pai-progress/internal/platform/database"
	"github.com/p-n-ai/pai-progress/internal/progress"
	"github.com/p-n-ai/pai-progress/internal/scheduler"
	"github.com/p-n-ai/pai-progress/internal/session"
)

// App holds the wired components. Close releases external connections.
type App struct {
	Config     *config.Config
	Store      *progress.Store
	Analytics  *analytics.Service
	Engine     *session.Engine
	Curriculum *curriculum.Loader
	Live       *progress.Broadcaster
	Checks     map[string]api.HealthChecker

	db    *database.DB
	cache *cache.Cache
}

// Build connects the storage backend and optional cache described by cfg and
// assembles the store, analytics and session engine on top of them.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Checks: map[string]api.HealthChecker{}}

	backend, events, err := a.openStorage(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	var reportCache analytics.ReportCache
	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			// Reports are recomputed on every request without a cache.
			slog.Warn("report cache unavailable, continuing without it", "error", err)
		} else {
			a.cache = c
			a.Checks["cache"] = c
			reportCache = c
		}
	}

	loader, err := curriculum.NewLoader(cfg.CurriculumPath)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Curriculum = loader

	a.Live = progress.NewBroadcaster(events)
	a.Store = progress.NewStore(progress.StoreConfig{
		Backend:  backend,
		WorksDir: cfg.Storage.WorksDir,
		Events:   a.Live,
	})
	a.Analytics = analytics.NewService(analytics.ServiceConfig{
		Loader:    a.Store,
		Cache:     reportCache,
		ReportTTL: cfg.Cache.ReportTTL,
	})
	a.Engine = session.NewEngine(session.EngineConfig{
		Store:     a.Store,
		Analytics: a.Analytics,
		Extractor: loader,
		Tasks:     loader,
		Notes:     loader,
	})

	return a, nil
}

func (a *App) openStorage(ctx context.Context) (progress.Backend, progress.EventLogger, error) {
	cfg := a.Config
	switch cfg.Storage.Backend {
	case config.StoragePostgres:
		db, err := database.New(ctx, cfg.Database.URL, database.Options{
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		a.db = db
		a.Checks["database"] = db

		if err := db.Migrate(ctx, progress.Schema); err != nil {
			return nil, nil, fmt.Errorf("migrating progress schema: %w", err)
		}
		backend, err := progress.NewPostgresBackend(db.Pool)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("progress storage ready", "backend", cfg.Storage.Backend)
		return backend, progress.NewPostgresEventLogger(db.Pool), nil
	case config.StorageFile:
		slog.Info("progress storage ready", "backend", cfg.Storage.Backend, "path", cfg.Storage.ProgressFile)
		return progress.NewFileBackend(cfg.Storage.ProgressFile), progress.NopEventLogger{}, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// Server returns the HTTP API for the app.
func (a *App) Server() *api.Server {
	return api.NewServer(api.Config{
		Engine:    a.Engine,
		Analytics: a.Analytics,
		Live:      a.Live,
		Checks:    a.Checks,
	})
}

// Scheduler returns the digest scheduler for the app.
func (a *App) Scheduler() *scheduler.Scheduler {
	return scheduler.New(scheduler.Config{
		Students:  a.Store,
		Loader:    a.Store,
		Analytics: a.Analytics,
		Interval:  a.Config.Digest.Interval,
	})
}

// Close releases the database pool and cache client.
func (a *App) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			slog.Warn("closing cache", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
