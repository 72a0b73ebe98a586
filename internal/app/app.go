package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"canlog/internal/config"
	"canlog/internal/secret"
	"canlog/internal/service"
	"canlog/internal/storage"
)

const shutdownGrace = 30 * time.Second

// App wires storage, secrets and services for one canlog process.
type App struct {
	cfg *config.Config
	db  *storage.DB

	Conversions *service.ConversionService
	Targets     *service.TargetService
	Emitter     service.EventEmitter
}

// New opens the job catalog described by cfg and builds the services.
func New(cfg *config.Config, emitter service.EventEmitter) (*App, error) {
	db, err := storage.New(cfg.DatabasePath(), cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if emitter == nil {
		emitter = service.LogEmitter{}
	}

	// Environment overrides first, then the secrets file.
	secrets := secret.NewEnvStore(secret.NewFileStore(cfg.SecretsPath()))

	a := &App{cfg: cfg, db: db, Emitter: emitter}
	a.Targets = service.NewTargetService(storage.NewExportTargetStore(db), secrets)
	a.Conversions = service.NewConversionService(
		storage.NewConversionStore(db),
		a.Targets,
		emitter,
		cfg.Defaults(),
		cfg.ExportDir(),
	)
	return a, nil
}

// Config returns the settings the app was built with.
func (a *App) Config() *config.Config { return a.cfg }

// Serve runs schedule and file-watch triggers until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	a.Conversions.RestartWatchers(ctx)
	log.Printf("canlog: watching jobs (catalog %s)", a.cfg.DatabasePath())
	<-ctx.Done()
	log.Println("canlog: shutting down, waiting for running jobs...")
	return nil
}

// Close stops triggers, waits for in-flight runs and closes the catalog.
func (a *App) Close() error {
	a.Conversions.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	a.Conversions.WaitRunning(ctx)
	if ctx.Err() != nil {
		log.Printf("canlog: jobs still running after %s: %v", shutdownGrace, a.Conversions.Running())
	}
	return a.db.Close()
}
