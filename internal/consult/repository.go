package consult

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrRequestNotFound      = errors.New("consultation request not found")
	ErrConsultationNotFound = errors.New("consultation not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrClinicianNotFound    = errors.New("clinician not found")

	// ErrRequestNotPending signals an attempted transition out of a
	// terminal state. Accepted and rejected requests are immutable.
	ErrRequestNotPending = errors.New("consultation request is not pending")
)

// Repository contains all DB interactions needed by the workflow service.
type Repository interface {
	CreateRequest(ctx context.Context, req *ConsultationRequest) (*ConsultationRequest, error)
	GetRequestByID(ctx context.Context, id uuid.UUID) (*ConsultationRequest, error)

	// UpdateRequestStatus is a compare-and-set transition: it succeeds only
	// when the stored status still equals from, failing with
	// ErrRequestNotPending otherwise. This is the optimistic check that
	// keeps terminal requests read-only without long-held locks.
	UpdateRequestStatus(ctx context.Context, id uuid.UUID, from, to RequestStatus) (*ConsultationRequest, error)

	ListRequestsByStatus(ctx context.Context, status RequestStatus) ([]ConsultationRequest, error)

	CreateConsultation(ctx context.Context, c *Consultation) (*Consultation, error)
	GetConsultationByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	GetConsultationByRequestID(ctx context.Context, requestID uuid.UUID) (*Consultation, error)
	SetConsultationPatient(ctx context.Context, id, patientID uuid.UUID) (*Consultation, error)

	CreateCall(ctx context.Context, call *ConsultationCall) (*ConsultationCall, error)
	ListCallsByConsultation(ctx context.Context, consultationID uuid.UUID) ([]ConsultationCall, error)

	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetClinicianByID(ctx context.Context, id uuid.UUID) (*Clinician, error)
}
