package slot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotNotFound = errors.New("slot not found")
	// ErrSlotTaken signals a lost claim race. Callers may retry with a
	// different slot; it is not a caller error.
	ErrSlotTaken = errors.New("slot is already booked")
	// ErrSlotConflict signals a proposed window overlapping a booked slot
	// (or another proposed window) during a bulk upsert.
	ErrSlotConflict = errors.New("slot window overlaps a booked slot")
	// ErrInvalidWindow covers malformed proposals: an end not after its
	// start, or a window outside the day being upserted.
	ErrInvalidWindow = errors.New("invalid slot window for day")
)

// Repository contains all slot persistence needed by the ledger.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)

	// ReplaceFreeForDay replaces the owner's free slots on the given day
	// with the proposed windows, leaving booked slots untouched. It returns
	// the created slots and fails with ErrSlotConflict when a window
	// overlaps a booked slot.
	ReplaceFreeForDay(ctx context.Context, ownerUserID uuid.UUID, day time.Time, windows []Window) ([]Slot, error)

	// Claim atomically books a free slot for the given consultation. It is
	// the single serialization point for concurrent accepts: a conditional
	// update, not an application-level lock.
	Claim(ctx context.Context, slotID, consultationID uuid.UUID) (*Slot, error)

	// ReleaseClaim undoes a claim that lost the surrounding operation,
	// returning the slot to free. Only the claiming consultation may release.
	ReleaseClaim(ctx context.Context, slotID, consultationID uuid.UUID) error

	ListFree(ctx context.Context, q FreeQuery) ([]Slot, error)

	// NearestFree returns the free slot with the earliest start at or after
	// the given time, ties broken by lowest slot ID. ErrSlotNotFound when
	// no slot matches.
	NearestFree(ctx context.Context, ownerUserID *uuid.UUID, after time.Time) (*Slot, error)
}
