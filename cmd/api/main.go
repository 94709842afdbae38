package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dolltrack/internal/auth"
	"dolltrack/internal/config"
	"dolltrack/internal/httpapi"
	"dolltrack/internal/inventory"
	"dolltrack/internal/media"
	"dolltrack/internal/obs"
	"dolltrack/internal/store/pg"
	"dolltrack/internal/store/sqlite"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := obs.Logger()
		logger.Fatal().Err(err).Msg("load config")
	}

	obs.InitLogger(cfg.Log.Level, os.Stderr)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	log := obs.Logger()

	if cfg.Auth.Mode == config.AuthModeNone {
		log.Warn().Msg("AUTH_MODE=none: every request runs as the local admin identity; do not expose this instance beyond localhost")
	}

	// Store selection: Postgres when a DSN is configured, SQLite file
	// otherwise.
	var (
		svc inventory.Service
		db  *sql.DB
	)
	switch {
	case cfg.Database.PGDSN != "":
		store, err := pg.Open(cfg.Database.PGDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("open postgres")
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := store.Migrate(ctx); err != nil {
			cancel()
			log.Fatal().Err(err).Msg("migrate postgres")
		}
		cancel()
		defer store.Close()
		svc, db = store, store.DB()
		log.Info().Msg("using postgres store")
	default:
		store, err := sqlite.Open(cfg.Database.Path)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("open sqlite")
		}
		defer store.Close()
		svc, db = store, store.DB()
		log.Info().Str("path", cfg.Database.Path).Msg("using sqlite store")
	}

	photos, err := media.NewStore(cfg.Media.PhotosDir)
	if err != nil {
		log.Fatal().Err(err).Msg("init photo storage")
	}

	resolver := &auth.Resolver{
		Mode:         cfg.Auth.Mode,
		HeaderUser:   cfg.Auth.HeaderUser,
		HeaderEmail:  cfg.Auth.HeaderEmail,
		HeaderGroups: cfg.Auth.HeaderGroups,
		AdminGroup:   cfg.Auth.AdminGroup,
		Calc:         auth.NewCalculator(cfg.Auth.AdminGroup, cfg.Auth.EditorGroup),
	}

	api := httpapi.New(httpapi.Options{
		Service:  svc,
		Media:    photos,
		Resolver: resolver,
		Probe:    httpapi.ReadyProbe{DB: db},
		Version:  version,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().Str("addr", srv.Addr).Str("version", version).Msg("starting dolltrack")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Info().Msg("stopped")
}
