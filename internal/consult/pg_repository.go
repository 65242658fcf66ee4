package consult

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanRequest(row pgx.Row) (*ConsultationRequest, error) {
	var r ConsultationRequest

	err := row.Scan(
		&r.ID,
		&r.PhoneNumber,
		&r.SymptomText,
		&r.Status,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}

	return &r, nil
}

func scanConsultation(row pgx.Row) (*Consultation, error) {
	var c Consultation
	var patientID *uuid.UUID

	err := row.Scan(
		&c.ID,
		&c.RequestID,
		&c.AssignedUserID,
		&c.SlotID,
		&patientID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConsultationNotFound
		}
		return nil, err
	}

	c.PatientID = patientID
	return &c, nil
}

func scanCall(row pgx.Row) (*ConsultationCall, error) {
	var c ConsultationCall
	var patientID *uuid.UUID

	err := row.Scan(
		&c.ID,
		&c.ConsultationID,
		&c.Status,
		&patientID,
		&c.Confirmations,
		&c.ChiefComplaint,
		&c.Diagnosis,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.PatientID = patientID
	return &c, nil
}

// Interface methods

func (r *PgRepository) CreateRequest(ctx context.Context, req *ConsultationRequest) (*ConsultationRequest, error) {
	id := req.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO consultation_requests (id, phone_number, symptom_text, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id, phone_number, symptom_text, status, created_at, updated_at
	`, id, req.PhoneNumber, req.SymptomText, req.Status)

	return scanRequest(row)
}

func (r *PgRepository) GetRequestByID(ctx context.Context, id uuid.UUID) (*ConsultationRequest, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, phone_number, symptom_text, status, created_at, updated_at
		FROM consultation_requests
		WHERE id = $1
	`, id)
	return scanRequest(row)
}

func (r *PgRepository) UpdateRequestStatus(ctx context.Context, id uuid.UUID, from, to RequestStatus) (*ConsultationRequest, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE consultation_requests
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, phone_number, symptom_text, status, created_at, updated_at
	`, id, to, from)

	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			// No row matched the compare-and-set. Distinguish a missing
			// request from one that already reached a terminal state.
			if _, getErr := r.GetRequestByID(ctx, id); getErr == nil {
				return nil, ErrRequestNotPending
			}
			return nil, ErrRequestNotFound
		}
		return nil, err
	}

	return req, nil
}

func (r *PgRepository) ListRequestsByStatus(ctx context.Context, status RequestStatus) ([]ConsultationRequest, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, phone_number, symptom_text, status, created_at, updated_at
		FROM consultation_requests
		WHERE status = $1
		ORDER BY created_at, id
	`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ConsultationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *req)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CreateConsultation(ctx context.Context, c *Consultation) (*Consultation, error) {
	id := c.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO consultations (id, request_id, assigned_user_id, slot_id, patient_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		RETURNING id, request_id, assigned_user_id, slot_id, patient_id, created_at, updated_at
	`, id, c.RequestID, c.AssignedUserID, c.SlotID, c.PatientID)

	return scanConsultation(row)
}

func (r *PgRepository) GetConsultationByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, request_id, assigned_user_id, slot_id, patient_id, created_at, updated_at
		FROM consultations
		WHERE id = $1
	`, id)
	return scanConsultation(row)
}

func (r *PgRepository) GetConsultationByRequestID(ctx context.Context, requestID uuid.UUID) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, request_id, assigned_user_id, slot_id, patient_id, created_at, updated_at
		FROM consultations
		WHERE request_id = $1
	`, requestID)
	return scanConsultation(row)
}

func (r *PgRepository) SetConsultationPatient(ctx context.Context, id, patientID uuid.UUID) (*Consultation, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE consultations
		SET patient_id = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING id, request_id, assigned_user_id, slot_id, patient_id, created_at, updated_at
	`, id, patientID)

	return scanConsultation(row)
}

func (r *PgRepository) CreateCall(ctx context.Context, call *ConsultationCall) (*ConsultationCall, error) {
	id := call.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO consultation_calls (id, consultation_id, status, patient_id, confirmations, chief_complaint, diagnosis, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING id, consultation_id, status, patient_id, confirmations, chief_complaint, diagnosis, created_at
	`, id, call.ConsultationID, call.Status, call.PatientID, call.Confirmations, call.ChiefComplaint, call.Diagnosis)

	return scanCall(row)
}

func (r *PgRepository) ListCallsByConsultation(ctx context.Context, consultationID uuid.UUID) ([]ConsultationCall, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, consultation_id, status, patient_id, confirmations, chief_complaint, diagnosis, created_at
		FROM consultation_calls
		WHERE consultation_id = $1
		ORDER BY created_at, id
	`, consultationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ConsultationCall
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *call)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	var phone *string

	err := r.pool.QueryRow(ctx, `
		SELECT id, name, phone_number, date_of_birth, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &phone, &p.DateOfBirth, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.PhoneNumber = phone
	return &p, nil
}

func (r *PgRepository) GetClinicianByID(ctx context.Context, id uuid.UUID) (*Clinician, error) {
	var c Clinician
	var specialty *string

	err := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM clinicians
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &specialty, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClinicianNotFound
		}
		return nil, err
	}

	c.Specialty = specialty
	return &c, nil
}
