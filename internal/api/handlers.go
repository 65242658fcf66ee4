package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careline/teleconsult/internal/audit"
	"github.com/careline/teleconsult/internal/config"
	"github.com/careline/teleconsult/internal/consult"
	"github.com/careline/teleconsult/internal/dispatch"
	"github.com/careline/teleconsult/internal/slot"
)

func intakeSMSHandler(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IntakeSMSRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		created, err := d.IntakeSMS(r.Context(), req.PhoneNumber, req.SymptomText)
		if err != nil {
			handleWorkflowError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toRequestResponse(consult.RequestDetail{ConsultationRequest: *created}))
	}
}

func listRequestsHandler(svc *consult.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := consult.RequestStatus(r.URL.Query().Get("status"))
		if status == "" {
			status = consult.RequestPending
		}

		details, err := svc.RequestsByStatus(r.Context(), status)
		if err != nil {
			handleWorkflowError(w, err)
			return
		}

		resp := make([]RequestResponse, 0, len(details))
		for _, d := range details {
			resp = append(resp, toRequestResponse(d))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func acceptRequestHandler(d *dispatch.Dispatcher, cfg config.Config) http.HandlerFunc {
	sched := consult.SchedulingParams{
		ConsultationDuration: cfg.ConsultationDuration,
		BreakDuration:        cfg.BreakDuration,
		Buffer:               cfg.SlotBuffer,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		act, ok := StaffActor(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "staff_actor_required", "X-User-ID header is required")
			return
		}

		requestID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_id", "id must be a valid UUID")
			return
		}

		var req AcceptRequestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		body, ok := cfg.Template(req.Template)
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "unknown_template", "no template with that name is configured")
			return
		}

		cons, err := d.AcceptRequest(r.Context(), consult.AcceptParams{
			RequestID:      requestID,
			TemplateBody:   body,
			AssignToOnlyMe: req.AssignToOnlyMe,
			Actor:          act,
			Sched:          sched,
		})
		if err != nil {
			handleWorkflowError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toConsultationResponse(cons, nil, nil))
	}
}

func rejectRequestHandler(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		act, ok := StaffActor(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "staff_actor_required", "X-User-ID header is required")
			return
		}

		requestID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_id", "id must be a valid UUID")
			return
		}

		rejected, err := d.RejectRequest(r.Context(), requestID, act)
		if err != nil {
			handleWorkflowError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toRequestResponse(consult.RequestDetail{ConsultationRequest: *rejected}))
	}
}

func assignPatientHandler(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		act, ok := StaffActor(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "staff_actor_required", "X-User-ID header is required")
			return
		}

		consultationID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_consultation_id", "id must be a valid UUID")
			return
		}

		var req AssignPatientRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		dob, err := time.Parse("2006-01-02", req.DateOfBirth)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date_of_birth", "date_of_birth must be YYYY-MM-DD")
			return
		}

		cons, err := d.AssignPatient(r.Context(), consultationID, patientID, dob, act)
		if err != nil {
			handleWorkflowError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toConsultationResponse(cons, nil, nil))
	}
}

func createCallHandler(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		act, ok := StaffActor(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "staff_actor_required", "X-User-ID header is required")
			return
		}

		consultationID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_consultation_id", "id must be a valid UUID")
			return
		}

		var req CreateCallRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		params := consult.CallParams{
			ConsultationID: consultationID,
			Status:         consult.CallStatus(req.Status),
			Confirmations:  req.Confirmations,
			ChiefComplaint: req.ChiefComplaint,
			Diagnosis:      req.Diagnosis,
		}
		if req.PatientID != nil {
			patientID, err := uuid.Parse(*req.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			params.PatientID = &patientID
		}

		call, err := d.CreateCall(r.Context(), params, act)
		if err != nil {
			handleWorkflowError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toCallResponse(*call))
	}
}

func getConsultationHandler(svc *consult.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_consultation_id", "id must be a valid UUID")
			return
		}

		detail, err := svc.ConsultationWithCalls(r.Context(), id)
		if err != nil {
			handleWorkflowError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toConsultationResponse(&detail.Consultation, detail.Slot, detail.Calls))
	}
}

func listFreeSlotsHandler(ledger *slot.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var owner *uuid.UUID
		if raw := q.Get("owner"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_owner", "owner must be a valid UUID")
				return
			}
			owner = &id
		}

		from := time.Now()
		if raw := q.Get("from"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC 3339")
				return
			}
			from = t
		}

		to := from.AddDate(0, 0, 14)
		if raw := q.Get("to"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be RFC 3339")
				return
			}
			to = t
		}

		var resp []SlotResponse
		for s, err := range ledger.FreeSlots(r.Context(), owner, from, to) {
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
				return
			}
			resp = append(resp, *toSlotResponse(s))
		}
		if resp == nil {
			resp = []SlotResponse{}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func bulkUpsertSlotsHandler(d *dispatch.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		act, ok := StaffActor(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "staff_actor_required", "X-User-ID header is required")
			return
		}

		ownerID, err := uuid.Parse(chi.URLParam(r, "ownerID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_owner", "ownerID must be a valid UUID")
			return
		}

		day, err := time.Parse("2006-01-02", chi.URLParam(r, "date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		var req BulkUpsertSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		windows := make([]slot.Window, 0, len(req.Windows))
		for _, spec := range req.Windows {
			windows = append(windows, slot.Window{StartAt: spec.StartAt, EndAt: spec.EndAt})
		}

		created, err := d.BulkUpsertSlots(r.Context(), ownerID, day, windows, act)
		if err != nil {
			handleWorkflowError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(created))
		for i := range created {
			resp = append(resp, *toSlotResponse(&created[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func auditRecentHandler(rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
				return
			}
			limit = n
		}

		entries, err := rec.Recent(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toAuditEntries(entries))
	}
}

func auditByUserHandler(rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_user_id", "userID must be a valid UUID")
			return
		}

		entries, err := rec.ByUser(r.Context(), userID, 0)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, toAuditEntries(entries))
	}
}

func toAuditEntries(entries []audit.Entry) []AuditEntryResponse {
	resp := make([]AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toAuditEntryResponse(e))
	}
	return resp
}

func handleWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, consult.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "request_not_found", err.Error())
	case errors.Is(err, consult.ErrConsultationNotFound):
		writeError(w, http.StatusNotFound, "consultation_not_found", err.Error())
	case errors.Is(err, consult.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, slot.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, consult.ErrRequestNotPending):
		writeError(w, http.StatusConflict, "request_not_pending", err.Error())
	case errors.Is(err, consult.ErrNoFreeSlot):
		writeError(w, http.StatusConflict, "no_free_slot", err.Error())
	case errors.Is(err, slot.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_already_booked", "the chosen slot was claimed first, please retry")
	case errors.Is(err, slot.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_window_conflict", err.Error())
	case errors.Is(err, consult.ErrIdentityMismatch):
		writeError(w, http.StatusUnprocessableEntity, "identity_mismatch", err.Error())
	case errors.Is(err, consult.ErrOutcomeFieldsRequireAnswer):
		writeError(w, http.StatusUnprocessableEntity, "outcome_fields_require_answer", err.Error())
	case errors.Is(err, consult.ErrStaffActorRequired):
		writeError(w, http.StatusUnauthorized, "staff_actor_required", err.Error())
	case errors.Is(err, consult.ErrInvalidInput), errors.Is(err, slot.ErrInvalidWindow):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
