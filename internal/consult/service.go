// Package consult is the consultation workflow engine: the state machine
// taking an inbound triage SMS through request, acceptance, consultation,
// and call outcomes.
package consult

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careline/teleconsult/internal/actor"
	"github.com/careline/teleconsult/internal/audit"
	"github.com/careline/teleconsult/internal/slot"
	"github.com/careline/teleconsult/internal/sms"
	"github.com/careline/teleconsult/internal/template"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoFreeSlot means no slot matched the assignment policy.
	ErrNoFreeSlot = errors.New("no free slot available")
	// ErrStaffActorRequired guards operations that must not run unattended.
	ErrStaffActorRequired = errors.New("operation requires a staff actor")
	// ErrOutcomeFieldsRequireAnswer enforces the call outcome invariant.
	ErrOutcomeFieldsRequireAnswer = errors.New("outcome fields require patient_answered status")
)

// SchedulingParams is the configuration snapshot threaded into each accept.
// Workflow behavior is a function of its inputs, never of ambient config.
type SchedulingParams struct {
	ConsultationDuration time.Duration
	BreakDuration        time.Duration
	// Buffer is the minimum lead time between accepting a request and the
	// start of the slot it claims.
	Buffer time.Duration
}

type Service struct {
	repo     Repository
	slots    *slot.Ledger
	sender   sms.Sender
	verifier IdentityVerifier
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, slots *slot.Ledger, sender sms.Sender, verifier IdentityVerifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		slots:    slots,
		sender:   sender,
		verifier: verifier,
		logger:   logger,
		now:      time.Now,
	}
}

// IntakeSMS creates a pending consultation request from an inbound triage
// message. The actor is the system; the audit record carries no user.
func (s *Service) IntakeSMS(ctx context.Context, obs audit.Observer, phoneNumber, symptomText string) (*ConsultationRequest, error) {
	if phoneNumber == "" {
		return nil, fmt.Errorf("%w: phone number is required", ErrInvalidInput)
	}
	if symptomText == "" {
		return nil, fmt.Errorf("%w: symptom text is required", ErrInvalidInput)
	}

	created, err := s.repo.CreateRequest(ctx, &ConsultationRequest{
		ID:          uuid.New(),
		PhoneNumber: phoneNumber,
		SymptomText: symptomText,
		Status:      RequestPending,
	})
	if err != nil {
		return nil, fmt.Errorf("create consultation request: %w", err)
	}

	observe(obs, audit.Change{
		EntityType: EntityConsultationRequest,
		EntityID:   created.ID,
		Event:      audit.EventCreate,
		After:      created.AuditFields(),
	})

	return created, nil
}

type AcceptParams struct {
	RequestID      uuid.UUID
	TemplateBody   string
	AssignToOnlyMe bool
	Actor          actor.Actor
	Sched          SchedulingParams
}

// AcceptRequest transitions a pending request to accepted as one logical
// unit: claim the nearest matching slot, mark the request accepted, create
// the consultation, then render and enqueue the confirmation SMS.
//
// The slot claim is the serialization point for concurrent accepts; losing
// it surfaces slot.ErrSlotTaken, which callers may retry. SMS enqueue
// failure is logged and reported nowhere else: the consultation stands.
func (s *Service) AcceptRequest(ctx context.Context, obs audit.Observer, p AcceptParams) (*Consultation, error) {
	actorID, ok := p.Actor.UserID()
	if !ok {
		return nil, ErrStaffActorRequired
	}

	req, err := s.repo.GetRequestByID(ctx, p.RequestID)
	if err != nil {
		return nil, err
	}
	if req.Status != RequestPending {
		return nil, ErrRequestNotPending
	}

	var owner *uuid.UUID
	if p.AssignToOnlyMe {
		owner = &actorID
	}

	candidate, err := s.slots.NearestFree(ctx, owner, s.now().Add(p.Sched.Buffer))
	if err != nil {
		if errors.Is(err, slot.ErrSlotNotFound) {
			return nil, ErrNoFreeSlot
		}
		return nil, fmt.Errorf("find free slot: %w", err)
	}

	consultationID := uuid.New()

	claimed, err := s.slots.Claim(ctx, obs, candidate.ID, consultationID)
	if err != nil {
		return nil, err
	}

	updatedReq, err := s.repo.UpdateRequestStatus(ctx, req.ID, RequestPending, RequestAccepted)
	if err != nil {
		// The claim won but the request reached a terminal state first.
		// Hand the slot back and fail the accept.
		s.slots.Release(ctx, claimed.ID, consultationID)
		return nil, err
	}

	observe(obs, audit.Change{
		EntityType: EntityConsultationRequest,
		EntityID:   updatedReq.ID,
		Event:      audit.EventUpdate,
		Before:     req.AuditFields(),
		After:      updatedReq.AuditFields(),
	})

	created, err := s.repo.CreateConsultation(ctx, &Consultation{
		ID:             consultationID,
		RequestID:      req.ID,
		AssignedUserID: claimed.OwnerUserID,
		SlotID:         claimed.ID,
	})
	if err != nil {
		s.slots.Release(ctx, claimed.ID, consultationID)
		if _, revertErr := s.repo.UpdateRequestStatus(ctx, req.ID, RequestAccepted, RequestPending); revertErr != nil {
			s.logger.Error().
				Err(revertErr).
				Str("request_id", req.ID.String()).
				Msg("request status not reverted after failed consultation create")
		}
		return nil, fmt.Errorf("create consultation: %w", err)
	}

	observe(obs, audit.Change{
		EntityType: EntityConsultation,
		EntityID:   created.ID,
		Event:      audit.EventCreate,
		After:      created.AuditFields(),
	})

	body := template.Render(p.TemplateBody, s.smsVars(ctx, updatedReq, created, claimed))
	if err := s.sender.Send(ctx, updatedReq.PhoneNumber, body); err != nil {
		s.logger.Error().
			Err(err).
			Str("request_id", req.ID.String()).
			Str("consultation_id", created.ID.String()).
			Msg("confirmation sms not queued; consultation stands")
	}

	return created, nil
}

// RejectRequest transitions a pending request to rejected. No slot or
// consultation side effects.
func (s *Service) RejectRequest(ctx context.Context, obs audit.Observer, requestID uuid.UUID) (*ConsultationRequest, error) {
	req, err := s.repo.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != RequestPending {
		return nil, ErrRequestNotPending
	}

	updated, err := s.repo.UpdateRequestStatus(ctx, requestID, RequestPending, RequestRejected)
	if err != nil {
		return nil, err
	}

	observe(obs, audit.Change{
		EntityType: EntityConsultationRequest,
		EntityID:   updated.ID,
		Event:      audit.EventUpdate,
		Before:     req.AuditFields(),
		After:      updated.AuditFields(),
	})

	return updated, nil
}

// AssignPatient binds a verified patient to a consultation. Re-assignment
// to a different patient overwrites.
func (s *Service) AssignPatient(ctx context.Context, obs audit.Observer, consultationID, patientID uuid.UUID, dateOfBirth time.Time) (*Consultation, error) {
	before, err := s.repo.GetConsultationByID(ctx, consultationID)
	if err != nil {
		return nil, err
	}

	if err := s.verifier.VerifyDOB(ctx, patientID, dateOfBirth); err != nil {
		return nil, err
	}

	updated, err := s.repo.SetConsultationPatient(ctx, consultationID, patientID)
	if err != nil {
		return nil, err
	}

	observe(obs, audit.Change{
		EntityType: EntityConsultation,
		EntityID:   updated.ID,
		Event:      audit.EventUpdate,
		Before:     before.AuditFields(),
		After:      updated.AuditFields(),
	})

	return updated, nil
}

type CallParams struct {
	ConsultationID uuid.UUID
	Status         CallStatus
	PatientID      *uuid.UUID
	Confirmations  string
	ChiefComplaint string
	Diagnosis      string
}

func (p CallParams) hasOutcomeFields() bool {
	return p.Confirmations != "" || p.ChiefComplaint != "" || p.Diagnosis != ""
}

// CreateCall records one call attempt against a consultation. Outcome
// fields are only accepted when the patient answered; a consultation may
// accumulate any number of calls, and nothing here closes it.
func (s *Service) CreateCall(ctx context.Context, obs audit.Observer, p CallParams) (*ConsultationCall, error) {
	if !p.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown call status %q", ErrInvalidInput, p.Status)
	}
	if p.Status != CallPatientAnswered && p.hasOutcomeFields() {
		return nil, ErrOutcomeFieldsRequireAnswer
	}

	if _, err := s.repo.GetConsultationByID(ctx, p.ConsultationID); err != nil {
		return nil, err
	}

	created, err := s.repo.CreateCall(ctx, &ConsultationCall{
		ID:             uuid.New(),
		ConsultationID: p.ConsultationID,
		Status:         p.Status,
		PatientID:      p.PatientID,
		Confirmations:  p.Confirmations,
		ChiefComplaint: p.ChiefComplaint,
		Diagnosis:      p.Diagnosis,
	})
	if err != nil {
		return nil, fmt.Errorf("create consultation call: %w", err)
	}

	observe(obs, audit.Change{
		EntityType: EntityConsultationCall,
		EntityID:   created.ID,
		Event:      audit.EventCreate,
		After:      created.AuditFields(),
	})

	return created, nil
}

// RequestsByStatus lists requests in creation order. Accepted requests are
// hydrated with their consultation and claimed slot.
func (s *Service) RequestsByStatus(ctx context.Context, status RequestStatus) ([]RequestDetail, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown request status %q", ErrInvalidInput, status)
	}

	requests, err := s.repo.ListRequestsByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}

	result := make([]RequestDetail, 0, len(requests))
	for _, req := range requests {
		detail := RequestDetail{ConsultationRequest: req}

		if req.Status == RequestAccepted {
			cons, err := s.repo.GetConsultationByRequestID(ctx, req.ID)
			if err != nil && !errors.Is(err, ErrConsultationNotFound) {
				return nil, err
			}
			if cons != nil {
				detail.Consultation = cons
				sl, err := s.slots.Get(ctx, cons.SlotID)
				if err != nil && !errors.Is(err, slot.ErrSlotNotFound) {
					return nil, err
				}
				detail.Slot = sl
			}
		}

		result = append(result, detail)
	}

	return result, nil
}

// ConsultationWithCalls returns a consultation hydrated with its slot and
// all call attempts in creation order.
func (s *Service) ConsultationWithCalls(ctx context.Context, id uuid.UUID) (*ConsultationDetail, error) {
	cons, err := s.repo.GetConsultationByID(ctx, id)
	if err != nil {
		return nil, err
	}

	calls, err := s.repo.ListCallsByConsultation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}

	sl, err := s.slots.Get(ctx, cons.SlotID)
	if err != nil && !errors.Is(err, slot.ErrSlotNotFound) {
		return nil, err
	}

	return &ConsultationDetail{
		Consultation: *cons,
		Slot:         sl,
		Calls:        calls,
	}, nil
}

// smsVars builds the rendering context for confirmation messages.
func (s *Service) smsVars(ctx context.Context, req *ConsultationRequest, cons *Consultation, claimed *slot.Slot) map[string]string {
	vars := map[string]string{
		"consultationTime": claimed.StartAt.Format("Monday, 02 Jan 2006 15:04"),
		"phoneNumber":      req.PhoneNumber,
		"symptomText":      req.SymptomText,
	}

	if clinician, err := s.repo.GetClinicianByID(ctx, cons.AssignedUserID); err == nil {
		vars["clinicianName"] = clinician.Name
	}

	return vars
}

func observe(obs audit.Observer, change audit.Change) {
	if obs != nil {
		obs.Observe(change)
	}
}
