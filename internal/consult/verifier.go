package consult

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrIdentityMismatch means the supplied date of birth did not match the
// patient record.
var ErrIdentityMismatch = errors.New("patient identity verification failed")

// IdentityVerifier checks a claimed patient identity before assignment.
// Resolution of the identity itself is an external concern; this boundary
// only answers match or no match.
type IdentityVerifier interface {
	VerifyDOB(ctx context.Context, patientID uuid.UUID, dateOfBirth time.Time) error
}

// RepoVerifier verifies against the stored patient record.
type RepoVerifier struct {
	repo Repository
}

func NewRepoVerifier(repo Repository) *RepoVerifier {
	return &RepoVerifier{repo: repo}
}

func (v *RepoVerifier) VerifyDOB(ctx context.Context, patientID uuid.UUID, dateOfBirth time.Time) error {
	p, err := v.repo.GetPatientByID(ctx, patientID)
	if err != nil {
		return err
	}

	y1, m1, d1 := p.DateOfBirth.Date()
	y2, m2, d2 := dateOfBirth.Date()
	if y1 != y2 || m1 != m2 || d1 != d2 {
		return ErrIdentityMismatch
	}
	return nil
}
