package sms

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/careline/teleconsult/internal/redisq"
)

// DeliveryState is whatever the provider reports. We log it and move on.
type DeliveryState string

const (
	StateSending DeliveryState = "sending"
	StateSent    DeliveryState = "sent"
	StateFailed  DeliveryState = "failed"
)

// Provider is the external SMS gateway. Deliver returns the provider's
// initial delivery state for the message.
type Provider interface {
	Deliver(ctx context.Context, msg Message) (DeliveryState, error)
}

// LogProvider stands in for a real gateway: it accepts every message.
type LogProvider struct {
	logger zerolog.Logger
}

func NewLogProvider(logger zerolog.Logger) *LogProvider {
	return &LogProvider{logger: logger}
}

func (p *LogProvider) Deliver(_ context.Context, msg Message) (DeliveryState, error) {
	p.logger.Info().
		Str("message_id", msg.ID.String()).
		Str("phone_number", msg.PhoneNumber).
		Str("body", msg.Body).
		Msg("delivering sms")
	return StateSending, nil
}

// Worker drains the outbound queue and hands each message to the provider.
type Worker struct {
	queue    *redisq.Queue
	provider Provider
	logger   zerolog.Logger
	popWait  time.Duration
}

func NewWorker(queue *redisq.Queue, provider Provider, logger zerolog.Logger) *Worker {
	return &Worker{
		queue:    queue,
		provider: provider,
		logger:   logger,
		popWait:  5 * time.Second,
	}
}

// Run blocks until ctx is done, delivering queued messages one at a time.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := w.queue.Dequeue(ctx, w.popWait)
		if err != nil {
			if errors.Is(err, redisq.ErrEmpty) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error().Err(err).Msg("dequeue failed")
			time.Sleep(time.Second)
			continue
		}

		var msg Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			w.logger.Error().Err(err).Msg("dropping undecodable outbound message")
			continue
		}

		state, err := w.provider.Deliver(ctx, msg)
		if err != nil {
			w.logger.Error().
				Err(err).
				Str("message_id", msg.ID.String()).
				Msg("sms delivery attempt failed")
			continue
		}

		w.logger.Info().
			Str("message_id", msg.ID.String()).
			Str("state", string(state)).
			Msg("sms delivery attempted")
	}
}
