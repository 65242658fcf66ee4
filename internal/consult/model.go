package consult

import (
	"time"

	"github.com/google/uuid"

	"github.com/careline/teleconsult/internal/slot"
)

// Audit entity type names.
const (
	EntityConsultationRequest = "ConsultationRequest"
	EntityConsultation        = "Consultation"
	EntityConsultationCall    = "ConsultationCall"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// Terminal reports whether no further transition is permitted.
func (s RequestStatus) Terminal() bool {
	return s == RequestAccepted || s == RequestRejected
}

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestAccepted, RequestRejected:
		return true
	}
	return false
}

// ConsultationRequest is one inbound triage message awaiting a staff
// decision. Created by SMS intake with the system actor; accepted or
// rejected once by a staff user, immutable thereafter.
type ConsultationRequest struct {
	ID          uuid.UUID
	PhoneNumber string
	SymptomText string
	Status      RequestStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r *ConsultationRequest) AuditFields() map[string]any {
	return map[string]any{
		"phone_number": r.PhoneNumber,
		"symptom_text": r.SymptomText,
		"status":       string(r.Status),
	}
}

// Consultation is an accepted request bound to a claimed slot. PatientID is
// filled in later by assignment, once identity verification passes.
type Consultation struct {
	ID             uuid.UUID
	RequestID      uuid.UUID
	AssignedUserID uuid.UUID
	SlotID         uuid.UUID
	PatientID      *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (c *Consultation) AuditFields() map[string]any {
	var patientID any
	if c.PatientID != nil {
		patientID = c.PatientID.String()
	}
	return map[string]any{
		"request_id":       c.RequestID.String(),
		"assigned_user_id": c.AssignedUserID.String(),
		"slot_id":          c.SlotID.String(),
		"patient_id":       patientID,
	}
}

type CallStatus string

const (
	CallPatientAnswered     CallStatus = "patient_answered"
	CallPatientNoAnswer     CallStatus = "patient_no_answer"
	CallClinicianDidNotCall CallStatus = "clinician_did_not_call"
)

func (s CallStatus) Valid() bool {
	switch s {
	case CallPatientAnswered, CallPatientNoAnswer, CallClinicianDidNotCall:
		return true
	}
	return false
}

// ConsultationCall is one call attempt. Outcome fields (Confirmations,
// ChiefComplaint, Diagnosis) may only be present when the patient answered.
type ConsultationCall struct {
	ID             uuid.UUID
	ConsultationID uuid.UUID
	Status         CallStatus
	PatientID      *uuid.UUID
	Confirmations  string
	ChiefComplaint string
	Diagnosis      string
	CreatedAt      time.Time
}

func (c *ConsultationCall) AuditFields() map[string]any {
	var patientID any
	if c.PatientID != nil {
		patientID = c.PatientID.String()
	}
	return map[string]any{
		"consultation_id": c.ConsultationID.String(),
		"status":          string(c.Status),
		"patient_id":      patientID,
		"confirmations":   c.Confirmations,
		"chief_complaint": c.ChiefComplaint,
		"diagnosis":       c.Diagnosis,
	}
}

type Patient struct {
	ID          uuid.UUID
	Name        string
	PhoneNumber *string
	DateOfBirth time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Clinician struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RequestDetail is a request hydrated with its consultation and slot, for
// the status query surface.
type RequestDetail struct {
	ConsultationRequest
	Consultation *Consultation
	Slot         *slot.Slot
}

// ConsultationDetail is a consultation hydrated with its slot and calls.
type ConsultationDetail struct {
	Consultation
	Slot  *slot.Slot
	Calls []ConsultationCall
}
