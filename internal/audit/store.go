package audit

import (
	"context"

	"github.com/google/uuid"
)

// Store persists audit entries. Implementations must be append-only:
// Insert is the only mutation.
type Store interface {
	Insert(ctx context.Context, entry Entry) (*Entry, error)
	ByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Entry, error)
	Recent(ctx context.Context, limit int) ([]Entry, error)
}
