package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/careline/teleconsult/internal/api"
	"github.com/careline/teleconsult/internal/audit"
	"github.com/careline/teleconsult/internal/config"
	"github.com/careline/teleconsult/internal/consult"
	"github.com/careline/teleconsult/internal/db"
	"github.com/careline/teleconsult/internal/dispatch"
	"github.com/careline/teleconsult/internal/redisq"
	"github.com/careline/teleconsult/internal/slot"
	"github.com/careline/teleconsult/internal/sms"
)

const version = "0.1.0"

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api-server").Logger()
	logger.Info().Msg("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgPool, err := db.ConnectPostgres(rootCtx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisq.NewClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	queue := redisq.NewQueue(rdb, cfg.SMSQueueKey)
	sender := sms.NewQueueSender(queue, logger)

	ledger := slot.NewLedger(slot.NewPgRepository(pgPool), logger)
	repo := consult.NewPgRepository(pgPool)
	verifier := consult.NewRepoVerifier(repo)
	service := consult.NewService(repo, ledger, sender, verifier, logger)

	auditStore := audit.NewPgStore(pgPool)
	var recorder *audit.Recorder
	if cfg.AuditSync {
		recorder = audit.NewRecorder(auditStore, logger, nil)
	} else {
		recorder = audit.NewAsyncRecorder(auditStore, logger, nil)
	}
	defer recorder.Close()

	dispatcher := dispatch.NewDispatcher(service, ledger, recorder, logger)

	router := api.NewRouter(api.RouterConfig{
		Dispatcher: dispatcher,
		Service:    service,
		Recorder:   recorder,
		Ledger:     ledger,
		Config:     cfg,
		PgPool:     pgPool,
		Redis:      rdb,
		Env:        cfg.Env,
		Version:    version,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	logger.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
}
