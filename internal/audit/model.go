package audit

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventCreate EventType = "CREATE"
	EventUpdate EventType = "UPDATE"
)

// Entry is one append-only audit record. Entries are never updated or
// deleted. A nil ActorUserID marks a system-originated mutation.
type Entry struct {
	ID          int64
	EntityType  string
	EntityID    uuid.UUID
	Event       EventType
	Changes     map[string]any
	ActorUserID *uuid.UUID
	CreatedAt   time.Time
}

// Change is one observed entity mutation, captured before attribution and
// diffing. Before and After are snapshots from the entity's own audit
// accessor; for a CREATE, Before is nil or empty.
type Change struct {
	EntityType string
	EntityID   uuid.UUID
	Event      EventType
	Before     map[string]any
	After      map[string]any
}

// Observer receives entity mutations as they happen inside a workflow
// operation. The dispatcher buffers observations and forwards them to the
// Recorder only when the whole operation succeeds.
type Observer interface {
	Observe(change Change)
}

// Diff returns the keys of after whose value differs from, or is absent
// from, before, mapped to their new value. With an empty before this is all
// of after, which is the CREATE case.
func Diff(before, after map[string]any) map[string]any {
	changes := make(map[string]any, len(after))
	for key, next := range after {
		prev, ok := before[key]
		if !ok || !reflect.DeepEqual(prev, next) {
			changes[key] = next
		}
	}
	return changes
}
