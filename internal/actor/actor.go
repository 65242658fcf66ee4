package actor

import "github.com/google/uuid"

// Actor identifies who is executing an operation: a staff user, or the
// system itself for unattended intake. The zero value is not a valid actor;
// construct one with Staff or System.
type Actor struct {
	userID uuid.UUID
	staff  bool
}

// Staff returns an actor for an authenticated staff user.
func Staff(userID uuid.UUID) Actor {
	return Actor{userID: userID, staff: true}
}

// System returns the actor used for unattended, system-originated mutations.
func System() Actor {
	return Actor{}
}

func (a Actor) IsSystem() bool {
	return !a.staff
}

// UserID returns the staff user ID, or false for the system actor.
func (a Actor) UserID() (uuid.UUID, bool) {
	if !a.staff {
		return uuid.Nil, false
	}
	return a.userID, true
}

// AuditUserID returns the ID to attribute audit records to. System
// mutations are recorded with a nil actor, never a human one.
func (a Actor) AuditUserID() *uuid.UUID {
	if !a.staff {
		return nil
	}
	id := a.userID
	return &id
}

func (a Actor) String() string {
	if !a.staff {
		return "system"
	}
	return a.userID.String()
}
