package slot

import (
	"time"

	"github.com/google/uuid"
)

// EntityType is the audit entity type for slots.
const EntityType = "Slot"

// Slot is a bookable time window owned by exactly one staff member. Windows
// for the same owner never overlap. A slot transitions from free
// (ConsultationID nil) to booked exactly once, when a consultation claims it.
type Slot struct {
	ID             uuid.UUID
	OwnerUserID    uuid.UUID
	StartAt        time.Time
	EndAt          time.Time
	ConsultationID *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (s *Slot) Free() bool {
	return s.ConsultationID == nil
}

// AuditFields is the snapshot the audit layer diffs before/after a mutation.
func (s *Slot) AuditFields() map[string]any {
	var consultationID any
	if s.ConsultationID != nil {
		consultationID = s.ConsultationID.String()
	}
	return map[string]any{
		"owner_user_id":   s.OwnerUserID.String(),
		"start_at":        s.StartAt.UTC().Format(time.RFC3339),
		"end_at":          s.EndAt.UTC().Format(time.RFC3339),
		"consultation_id": consultationID,
	}
}

// Window is a proposed bookable interval within a bulk upsert.
type Window struct {
	StartAt time.Time
	EndAt   time.Time
}

func (w Window) valid() bool {
	return w.EndAt.After(w.StartAt)
}

func (w Window) overlaps(start, end time.Time) bool {
	return w.StartAt.Before(end) && start.Before(w.EndAt)
}

// FreeQuery selects a page of free slots, keyset-paginated on
// (start_at, id) ascending.
type FreeQuery struct {
	OwnerUserID *uuid.UUID
	From        time.Time
	To          time.Time
	AfterStart  time.Time
	AfterID     uuid.UUID
	Limit       int
}
