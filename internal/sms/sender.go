// Package sms is the outbound messaging boundary. The workflow enqueues
// rendered text and moves on: delivery is fire-and-forget, and delivery
// state is logged, never interpreted.
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careline/teleconsult/internal/redisq"
)

// Message is one outbound SMS with its rendered body. The body is stored
// verbatim so later template edits never alter what was sent.
type Message struct {
	ID          uuid.UUID `json:"id"`
	PhoneNumber string    `json:"phone_number"`
	Body        string    `json:"body"`
	QueuedAt    time.Time `json:"queued_at"`
}

// Sender hands a message to the delivery pipeline. A Send error means the
// message did not reach the queue; the workflow logs it and stands.
type Sender interface {
	Send(ctx context.Context, phoneNumber, body string) error
}

// QueueSender pushes messages onto the Redis outbound queue for the
// sms-worker to deliver.
type QueueSender struct {
	queue  *redisq.Queue
	logger zerolog.Logger
}

func NewQueueSender(queue *redisq.Queue, logger zerolog.Logger) *QueueSender {
	return &QueueSender{queue: queue, logger: logger}
}

func (s *QueueSender) Send(ctx context.Context, phoneNumber, body string) error {
	msg := Message{
		ID:          uuid.New(),
		PhoneNumber: phoneNumber,
		Body:        body,
		QueuedAt:    time.Now().UTC(),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outbound message: %w", err)
	}

	if err := s.queue.Enqueue(ctx, payload); err != nil {
		return err
	}

	s.logger.Info().
		Str("message_id", msg.ID.String()).
		Str("phone_number", msg.PhoneNumber).
		Msg("outbound sms queued")
	return nil
}

// LogSender only logs the message. Used in dev mode and tests where no
// Redis is around.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, phoneNumber, body string) error {
	s.logger.Info().
		Str("phone_number", phoneNumber).
		Str("body", body).
		Msg("outbound sms (log only)")
	return nil
}
