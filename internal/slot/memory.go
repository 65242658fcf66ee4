package slot

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository used by tests and local
// development. Claim is atomic under the repository mutex, giving the same
// check-and-set semantics as the conditional update in Postgres.
type MemoryRepository struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*Slot
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{slots: make(map[uuid.UUID]*Slot)}
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) ReplaceFreeForDay(_ context.Context, ownerUserID uuid.UUID, day time.Time, windows []Window) ([]Slot, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	r.mu.Lock()
	defer r.mu.Unlock()

	var booked []*Slot
	for _, s := range r.slots {
		if s.OwnerUserID != ownerUserID || s.StartAt.Before(dayStart) || !s.StartAt.Before(dayEnd) {
			continue
		}
		if !s.Free() {
			booked = append(booked, s)
		}
	}

	for _, w := range windows {
		for _, b := range booked {
			if w.overlaps(b.StartAt, b.EndAt) {
				return nil, ErrSlotConflict
			}
		}
	}

	for id, s := range r.slots {
		if s.OwnerUserID == ownerUserID && s.Free() && !s.StartAt.Before(dayStart) && s.StartAt.Before(dayEnd) {
			delete(r.slots, id)
		}
	}

	now := time.Now()
	created := make([]Slot, 0, len(windows))
	for _, w := range windows {
		s := &Slot{
			ID:          uuid.New(),
			OwnerUserID: ownerUserID,
			StartAt:     w.StartAt,
			EndAt:       w.EndAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		r.slots[s.ID] = s
		created = append(created, *s)
	}

	return created, nil
}

func (r *MemoryRepository) Claim(_ context.Context, slotID, consultationID uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if !s.Free() {
		return nil, ErrSlotTaken
	}

	cid := consultationID
	s.ConsultationID = &cid
	s.UpdatedAt = time.Now()

	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) ReleaseClaim(_ context.Context, slotID, consultationID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[slotID]
	if !ok {
		return nil
	}
	if s.ConsultationID != nil && *s.ConsultationID == consultationID {
		s.ConsultationID = nil
		s.UpdatedAt = time.Now()
	}
	return nil
}

func (r *MemoryRepository) ListFree(_ context.Context, q FreeQuery) ([]Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Slot
	for _, s := range r.slots {
		if !s.Free() || s.StartAt.Before(q.From) || !s.StartAt.Before(q.To) {
			continue
		}
		if q.OwnerUserID != nil && s.OwnerUserID != *q.OwnerUserID {
			continue
		}
		if !q.AfterStart.IsZero() && !afterKey(s, q.AfterStart, q.AfterID) {
			continue
		}
		result = append(result, *s)
	}

	sortSlots(result)

	if q.Limit > 0 && len(result) > q.Limit {
		result = result[:q.Limit]
	}
	return result, nil
}

func (r *MemoryRepository) NearestFree(_ context.Context, ownerUserID *uuid.UUID, after time.Time) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *Slot
	for _, s := range r.slots {
		if !s.Free() || s.StartAt.Before(after) {
			continue
		}
		if ownerUserID != nil && s.OwnerUserID != *ownerUserID {
			continue
		}
		if best == nil || slotLess(s, best) {
			best = s
		}
	}

	if best == nil {
		return nil, ErrSlotNotFound
	}
	cp := *best
	return &cp, nil
}

// slotLess orders by (start_at, id), matching the SQL ordering.
func slotLess(a, b *Slot) bool {
	if !a.StartAt.Equal(b.StartAt) {
		return a.StartAt.Before(b.StartAt)
	}
	return bytes.Compare(a.ID[:], b.ID[:]) < 0
}

func afterKey(s *Slot, afterStart time.Time, afterID uuid.UUID) bool {
	if s.StartAt.After(afterStart) {
		return true
	}
	return s.StartAt.Equal(afterStart) && bytes.Compare(s.ID[:], afterID[:]) > 0
}

func sortSlots(slots []Slot) {
	sort.Slice(slots, func(i, j int) bool {
		return slotLess(&slots[i], &slots[j])
	})
}
