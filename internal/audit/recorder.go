package audit

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultQueryLimit = 50
	asyncBufferSize   = 256
)

// AlertFunc is invoked when persisting an audit entry fails. Recording is
// best-effort-durable: a failure never rolls back the workflow mutation, but
// it must reach an operational alerting path instead of being dropped.
type AlertFunc func(err error, entry Entry)

// Recorder turns observed entity changes into persisted audit entries.
//
// In synchronous mode (the default) each Record call persists before
// returning, so the entry is durable by the time the triggering operation
// responds. In asynchronous mode entries are handed to a single drain
// goroutine; submission order is preserved, so callers relying on
// "slot change before consultation create" still see that order.
type Recorder struct {
	store  Store
	logger zerolog.Logger
	alert  AlertFunc

	jobs chan Entry
	wg   sync.WaitGroup
}

// NewRecorder creates a synchronous recorder.
func NewRecorder(store Store, logger zerolog.Logger, alert AlertFunc) *Recorder {
	return &Recorder{
		store:  store,
		logger: logger,
		alert:  alert,
	}
}

// NewAsyncRecorder creates a recorder that persists entries from a single
// background goroutine. Call Close to flush it on shutdown.
func NewAsyncRecorder(store Store, logger zerolog.Logger, alert AlertFunc) *Recorder {
	r := NewRecorder(store, logger, alert)
	r.jobs = make(chan Entry, asyncBufferSize)
	r.wg.Add(1)
	go r.drain()
	return r
}

// Record diffs the change, attributes it, and persists the resulting entry.
// Persistence failures are surfaced through the alert hook, never to the
// caller: audit is not part of the workflow's atomicity boundary.
func (r *Recorder) Record(ctx context.Context, change Change, actorUserID *uuid.UUID) {
	entry := Entry{
		EntityType:  change.EntityType,
		EntityID:    change.EntityID,
		Event:       change.Event,
		Changes:     Diff(change.Before, change.After),
		ActorUserID: actorUserID,
	}

	if r.jobs != nil {
		r.jobs <- entry
		return
	}

	r.persist(ctx, entry)
}

// ByUser returns the most recent entries attributed to the given staff user.
func (r *Recorder) ByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	return r.store.ByUser(ctx, userID, limit)
}

// Recent returns the most recent entries across all actors.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	return r.store.Recent(ctx, limit)
}

// Close flushes and stops the drain goroutine. No-op in synchronous mode.
func (r *Recorder) Close() {
	if r.jobs == nil {
		return
	}
	close(r.jobs)
	r.wg.Wait()
}

func (r *Recorder) drain() {
	defer r.wg.Done()
	for entry := range r.jobs {
		r.persist(context.Background(), entry)
	}
}

func (r *Recorder) persist(ctx context.Context, entry Entry) {
	if _, err := r.store.Insert(ctx, entry); err != nil {
		r.logger.Error().
			Err(err).
			Str("entity_type", entry.EntityType).
			Str("entity_id", entry.EntityID.String()).
			Str("event_type", string(entry.Event)).
			Msg("audit entry not persisted")
		if r.alert != nil {
			r.alert(err, entry)
		}
	}
}
