// Package slot tracks bookable time windows per staff member and serializes
// the one true race in the system: two accepts claiming the same window.
package slot

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careline/teleconsult/internal/audit"
)

const freeSlotPageSize = 100

type Ledger struct {
	repo   Repository
	logger zerolog.Logger
}

func NewLedger(repo Repository, logger zerolog.Logger) *Ledger {
	return &Ledger{repo: repo, logger: logger}
}

func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return l.repo.GetByID(ctx, id)
}

// BulkUpsert replaces the owner's free slots for a day with the proposed
// windows. Every window must fall within the given day; the repository
// bounds its replace and overlap checks to that day, so a stray window
// would slip past them onto slots it overlaps. Booked slots are preserved;
// a window overlapping one fails the whole upsert with ErrSlotConflict.
// Each created slot is observed as a CREATE.
func (l *Ledger) BulkUpsert(ctx context.Context, obs audit.Observer, ownerUserID uuid.UUID, day time.Time, windows []Window) ([]Slot, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	for i, w := range windows {
		if !w.valid() {
			return nil, ErrInvalidWindow
		}
		if w.StartAt.Before(dayStart) || w.EndAt.After(dayEnd) {
			return nil, ErrInvalidWindow
		}
		for _, other := range windows[:i] {
			if w.overlaps(other.StartAt, other.EndAt) {
				return nil, ErrSlotConflict
			}
		}
	}

	created, err := l.repo.ReplaceFreeForDay(ctx, ownerUserID, day, windows)
	if err != nil {
		return nil, err
	}

	for i := range created {
		s := &created[i]
		observe(obs, audit.Change{
			EntityType: EntityType,
			EntityID:   s.ID,
			Event:      audit.EventCreate,
			After:      s.AuditFields(),
		})
	}

	return created, nil
}

// Claim books a free slot for the given consultation. The conditional
// update in the repository decides the winner of a concurrent claim;
// the loser gets ErrSlotTaken and may retry with another slot.
func (l *Ledger) Claim(ctx context.Context, obs audit.Observer, slotID, consultationID uuid.UUID) (*Slot, error) {
	before, err := l.repo.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if !before.Free() {
		return nil, ErrSlotTaken
	}

	after, err := l.repo.Claim(ctx, slotID, consultationID)
	if err != nil {
		return nil, err
	}

	observe(obs, audit.Change{
		EntityType: EntityType,
		EntityID:   after.ID,
		Event:      audit.EventUpdate,
		Before:     before.AuditFields(),
		After:      after.AuditFields(),
	})

	return after, nil
}

// Release is the compensation path for a claim whose surrounding operation
// failed. It is not observed: the dispatcher discards all observations of a
// failed operation anyway.
func (l *Ledger) Release(ctx context.Context, slotID, consultationID uuid.UUID) {
	if err := l.repo.ReleaseClaim(ctx, slotID, consultationID); err != nil {
		l.logger.Error().
			Err(err).
			Str("slot_id", slotID.String()).
			Msg("slot claim not released")
	}
}

// NearestFree returns the earliest free slot starting at or after the given
// time, optionally restricted to one owner. Ties break on lowest slot ID so
// assignment is deterministic.
func (l *Ledger) NearestFree(ctx context.Context, ownerUserID *uuid.UUID, after time.Time) (*Slot, error) {
	return l.repo.NearestFree(ctx, ownerUserID, after)
}

// FreeSlots returns a lazy, finite sequence of free slots in the range,
// ordered by start time ascending. The sequence is restartable: each
// range-over re-runs the underlying query from the top.
func (l *Ledger) FreeSlots(ctx context.Context, ownerUserID *uuid.UUID, from, to time.Time) iter.Seq2[*Slot, error] {
	return func(yield func(*Slot, error) bool) {
		q := FreeQuery{
			OwnerUserID: ownerUserID,
			From:        from,
			To:          to,
			Limit:       freeSlotPageSize,
		}

		for {
			page, err := l.repo.ListFree(ctx, q)
			if err != nil {
				yield(nil, err)
				return
			}

			for i := range page {
				s := page[i]
				if !yield(&s, nil) {
					return
				}
			}

			if len(page) < freeSlotPageSize {
				return
			}

			last := page[len(page)-1]
			q.AfterStart = last.StartAt
			q.AfterID = last.ID
		}
	}
}

func observe(obs audit.Observer, change audit.Change) {
	if obs != nil {
		obs.Observe(change)
	}
}
