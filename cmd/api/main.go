package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	server "reviewsync/internal/adapters/http_server"
	"reviewsync/internal/adapters/oauthtoken"
	"reviewsync/internal/adapters/observability"
	redisad "reviewsync/internal/adapters/redis"
	"reviewsync/internal/adapters/sources"
	"reviewsync/internal/app"
	"reviewsync/internal/classify"
	"reviewsync/internal/domain"
	"reviewsync/internal/shared"
	"reviewsync/internal/storage/sqlstore"
)

func main() {
	cfg, err := shared.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// db
	db, dialect, err := sqlstore.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("database open failed")
	}
	defer db.Close()
	repo := sqlstore.New(db, dialect)
	if err := repo.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}
	log.Info().Str("dialect", dialect.Name).Msg("database connection ok")

	// cache and cross-process lock are optional
	var (
		cache  domain.Cache
		locker domain.Locker
	)
	if cfg.RedisAddr != "" {
		rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable; running without cache")
		} else {
			defer rc.Close()
			cache, locker = rc, rc
		}
	}

	// sources
	clock := domain.SystemClock{}
	deps := sources.Deps{Classifier: classify.New(cfg.Categories), Clock: clock}
	if cfg.GMBEnabled() {
		tm := oauthtoken.New(repo, clock, nil)
		tm.Register(sources.GMBService, cfg.GMB.ClientID, cfg.GMB.ClientSecret, cfg.GMB.TokenURL)
		deps.Tokens = tm
	}
	adapters := sources.Build(cfg, deps)

	refresher := app.NewRefresher(adapters, repo, app.NewMerger(cfg.Priority, cfg.RatingFloor),
		app.WithCache(cache),
		app.WithLocker(locker),
		app.WithClock(clock),
		app.WithAdapterTimeout(cfg.AdapterTimeout),
		app.WithInterval(cfg.RefreshInterval),
	)
	go func() {
		if err := refresher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("refresh loop stopped")
		}
	}()

	q := app.NewQueryService(repo, cache, cfg.CacheTTL, refresher)

	// http; a forced refresh may take up to one adapter timeout
	srv := server.New(cfg.AdapterTimeout + 15*time.Second)
	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Q: q, Refresh: refresher})

	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Int("sources", len(adapters)).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}
