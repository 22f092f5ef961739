package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"traceability/internal/config"
	"traceability/internal/infra"
	"traceability/internal/router"
	"traceability/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// @title                      Traceability Engine API
// @version                    1.0
// @description                Lot and serial ledger, genealogy traces and recall reports.
// @BasePath                   /
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// dev: pretty console, prod: JSON
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	if cfg.IsProduction() && cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET is required in production")
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Recall notification runs only when both a relay and recipients exist.
	deps := router.Deps{DB: db, Redis: rdb}
	var pool *worker.Pool
	mailer := infra.NewMailer(cfg)
	if mailer.Configured() && cfg.RecallNotifyEmail != "" {
		breaker := infra.NewBreaker("smtp", infra.DefaultBreakerConfig())
		recallWorker := worker.NewRecallWorker(mailer, breaker, cfg.RecallNotifyEmail, cfg.PDFStoragePath)
		pool = worker.StartWorkerPool(ctx, rdb, map[string]worker.Handler{
			worker.JobRecallReport: recallWorker,
		}, cfg.WorkerPoolSize)
		deps.Notifier = worker.NewDispatcher(rdb)
		deps.Breaker = breaker
	} else {
		log.Warn().Msg("SMTP_HOST or RECALL_NOTIFY_EMAIL unset, recall notification disabled")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router.New(cfg, deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second, // recall reports walk large graphs
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Msgf("traceability engine listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	cancel()
	if pool != nil {
		pool.Wait()
	}
	_ = rdb.Close()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("server exited")
}
