package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/careline/teleconsult/internal/config"
	"github.com/careline/teleconsult/internal/redisq"
	"github.com/careline/teleconsult/internal/sms"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "sms-worker").Logger()
	logger.Info().Msg("sms-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}
	logger.Info().Str("env", cfg.Env).Str("queue_key", cfg.SMSQueueKey).Msg("configuration loaded")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
	worker := sms.NewWorker(queue, sms.NewLogProvider(logger), logger)

	if err := worker.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("shutdown signal received, sms-worker stopped")
}
