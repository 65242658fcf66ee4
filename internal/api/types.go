package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/careline/teleconsult/internal/audit"
	"github.com/careline/teleconsult/internal/consult"
	"github.com/careline/teleconsult/internal/slot"
)

type IntakeSMSRequest struct {
	PhoneNumber string `json:"phone_number"`
	SymptomText string `json:"symptom_text"`
}

type AcceptRequestRequest struct {
	Template       string `json:"template"`
	AssignToOnlyMe bool   `json:"assign_to_only_me"`
}

type AssignPatientRequest struct {
	PatientID   string `json:"patient_id"`
	DateOfBirth string `json:"date_of_birth"` // YYYY-MM-DD
}

type CreateCallRequest struct {
	Status         string  `json:"status"`
	PatientID      *string `json:"patient_id,omitempty"`
	Confirmations  string  `json:"confirmations,omitempty"`
	ChiefComplaint string  `json:"chief_complaint,omitempty"`
	Diagnosis      string  `json:"diagnosis,omitempty"`
}

type WindowSpec struct {
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
}

type BulkUpsertSlotsRequest struct {
	Windows []WindowSpec `json:"windows"`
}

type SlotResponse struct {
	ID             uuid.UUID  `json:"id"`
	OwnerUserID    uuid.UUID  `json:"owner_user_id"`
	StartAt        time.Time  `json:"start_at"`
	EndAt          time.Time  `json:"end_at"`
	ConsultationID *uuid.UUID `json:"consultation_id,omitempty"`
}

type CallResponse struct {
	ID             uuid.UUID  `json:"id"`
	ConsultationID uuid.UUID  `json:"consultation_id"`
	Status         string     `json:"status"`
	PatientID      *uuid.UUID `json:"patient_id,omitempty"`
	Confirmations  string     `json:"confirmations,omitempty"`
	ChiefComplaint string     `json:"chief_complaint,omitempty"`
	Diagnosis      string     `json:"diagnosis,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type ConsultationResponse struct {
	ID             uuid.UUID      `json:"id"`
	RequestID      uuid.UUID      `json:"request_id"`
	AssignedUserID uuid.UUID      `json:"assigned_user_id"`
	SlotID         uuid.UUID      `json:"slot_id"`
	PatientID      *uuid.UUID     `json:"patient_id,omitempty"`
	Slot           *SlotResponse  `json:"slot,omitempty"`
	Calls          []CallResponse `json:"calls,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

type RequestResponse struct {
	ID           uuid.UUID             `json:"id"`
	PhoneNumber  string                `json:"phone_number"`
	SymptomText  string                `json:"symptom_text"`
	Status       string                `json:"status"`
	CreatedAt    time.Time             `json:"created_at"`
	Consultation *ConsultationResponse `json:"consultation,omitempty"`
}

type AuditEntryResponse struct {
	ID          int64          `json:"id"`
	EntityType  string         `json:"entity_type"`
	EntityID    uuid.UUID      `json:"entity_id"`
	EventType   string         `json:"event_type"`
	Changes     map[string]any `json:"changes"`
	ActorUserID *uuid.UUID     `json:"actor_user_id"` // null for system mutations
	CreatedAt   time.Time      `json:"created_at"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Mapping helpers

func toSlotResponse(s *slot.Slot) *SlotResponse {
	if s == nil {
		return nil
	}
	return &SlotResponse{
		ID:             s.ID,
		OwnerUserID:    s.OwnerUserID,
		StartAt:        s.StartAt,
		EndAt:          s.EndAt,
		ConsultationID: s.ConsultationID,
	}
}

func toCallResponse(c consult.ConsultationCall) CallResponse {
	return CallResponse{
		ID:             c.ID,
		ConsultationID: c.ConsultationID,
		Status:         string(c.Status),
		PatientID:      c.PatientID,
		Confirmations:  c.Confirmations,
		ChiefComplaint: c.ChiefComplaint,
		Diagnosis:      c.Diagnosis,
		CreatedAt:      c.CreatedAt,
	}
}

func toConsultationResponse(c *consult.Consultation, s *slot.Slot, calls []consult.ConsultationCall) *ConsultationResponse {
	if c == nil {
		return nil
	}
	resp := &ConsultationResponse{
		ID:             c.ID,
		RequestID:      c.RequestID,
		AssignedUserID: c.AssignedUserID,
		SlotID:         c.SlotID,
		PatientID:      c.PatientID,
		Slot:           toSlotResponse(s),
		CreatedAt:      c.CreatedAt,
	}
	for _, call := range calls {
		resp.Calls = append(resp.Calls, toCallResponse(call))
	}
	return resp
}

func toRequestResponse(d consult.RequestDetail) RequestResponse {
	return RequestResponse{
		ID:           d.ID,
		PhoneNumber:  d.PhoneNumber,
		SymptomText:  d.SymptomText,
		Status:       string(d.Status),
		CreatedAt:    d.CreatedAt,
		Consultation: toConsultationResponse(d.Consultation, d.Slot, nil),
	}
}

func toAuditEntryResponse(e audit.Entry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:          e.ID,
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		EventType:   string(e.Event),
		Changes:     e.Changes,
		ActorUserID: e.ActorUserID,
		CreatedAt:   e.CreatedAt,
	}
}
