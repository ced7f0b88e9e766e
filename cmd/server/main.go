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

	"sarnabroker/internal/config"
	"sarnabroker/internal/infra"
	"sarnabroker/internal/middleware"
	"sarnabroker/internal/repository"
	"sarnabroker/internal/router"
	"sarnabroker/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// @title                      Sarna Broker API
// @version                    1.0
// @description                Marketplace backend for millers and buyers of agricultural commodities.
// @BasePath                   /
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Development: pretty console. Production: JSON lines.
	zerolog.TimeFieldFormat = time.RFC3339
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open ledger store")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	docs, err := infra.NewDocumentStore(ctx, cfg.DocumentStore, cfg.DocumentDir, cfg.GCSBucket, cfg.GCSPrefix, cfg.GCSCredentials)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open document store")
	}

	// ── Async plumbing ───────────────────────────────────────────────────────
	queue := worker.NewRedisQueue(rdb)
	dispatcher := worker.NewDispatcher(queue, cfg.PhoneRegion)
	smsGateway := infra.NewSMSGateway(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber)
	smsCB := infra.NewCircuitBreaker(infra.DefaultCBConfig("sms"))
	smsRepo := repository.NewSMSMessageRepository(db)
	mailer := infra.NewMailer(cfg)

	svc := router.NewServices(db, dispatcher, dispatcher, cfg.PhoneRegion)

	pool := worker.NewPool(queue, cfg.WorkerPoolSize)
	pool.Handle(worker.QueueSMS, worker.JobSMS, worker.NewSMSWorker(smsGateway, smsCB, smsRepo).Process)
	pool.Handle(worker.QueueStatement, worker.JobStatement,
		worker.NewStatementWorker(svc.Settlement, repository.NewContactRepository(db), dispatcher).Process)
	pool.Handle(worker.QueueEmail, worker.JobEmail, worker.NewEmailWorker(mailer).Process)
	pool.Start(ctx)

	worker.StartRetryCron(ctx, worker.RetryCronConfig{
		Repo:       smsRepo,
		Gateway:    smsGateway,
		CB:         smsCB,
		Queue:      queue,
		Locker:     worker.NewRedisLocker(rdb),
		Interval:   cfg.RetryInterval(),
		MaxRetries: cfg.SMSMaxRetries,
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPM, time.Minute)
	go limiter.RunPurge(ctx)

	r := router.New(router.Deps{
		Config:     cfg,
		DB:         db,
		Redis:      rdb,
		Queue:      queue,
		SMSBreaker: smsCB,
		Docs:       docs,
		Limiter:    limiter,
	}, svc)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Str("env", cfg.Env).Msg("sarna broker listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	// Stop background work and let in-flight jobs finish.
	cancel()
	pool.Wait()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = rdb.Close()
	log.Info().Msg("server exited")
}
