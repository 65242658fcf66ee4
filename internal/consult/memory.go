package consult

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository used by tests and local
// development. Status transitions are compare-and-set under the mutex,
// mirroring the conditional updates of the Postgres implementation.
type MemoryRepository struct {
	mu            sync.Mutex
	requests      map[uuid.UUID]*ConsultationRequest
	consultations map[uuid.UUID]*Consultation
	calls         map[uuid.UUID]*ConsultationCall
	patients      map[uuid.UUID]*Patient
	clinicians    map[uuid.UUID]*Clinician
	seq           int64
	seqOf         map[uuid.UUID]int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		requests:      make(map[uuid.UUID]*ConsultationRequest),
		consultations: make(map[uuid.UUID]*Consultation),
		calls:         make(map[uuid.UUID]*ConsultationCall),
		patients:      make(map[uuid.UUID]*Patient),
		clinicians:    make(map[uuid.UUID]*Clinician),
		seqOf:         make(map[uuid.UUID]int64),
	}
}

// AddPatient seeds a patient for assignment and verification flows.
func (r *MemoryRepository) AddPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = &p
}

// AddClinician seeds a staff member.
func (r *MemoryRepository) AddClinician(c Clinician) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clinicians[c.ID] = &c
}

func (r *MemoryRepository) CreateRequest(_ context.Context, req *ConsultationRequest) (*ConsultationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *req
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now

	r.requests[cp.ID] = &cp
	r.seq++
	r.seqOf[cp.ID] = r.seq

	out := cp
	return &out, nil
}

func (r *MemoryRepository) GetRequestByID(_ context.Context, id uuid.UUID) (*ConsultationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *MemoryRepository) UpdateRequestStatus(_ context.Context, id uuid.UUID, from, to RequestStatus) (*ConsultationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	if req.Status != from {
		return nil, ErrRequestNotPending
	}

	req.Status = to
	req.UpdatedAt = time.Now()

	cp := *req
	return &cp, nil
}

func (r *MemoryRepository) ListRequestsByStatus(_ context.Context, status RequestStatus) ([]ConsultationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []ConsultationRequest
	for _, req := range r.requests {
		if req.Status == status {
			result = append(result, *req)
		}
	}

	// Creation order; the insertion sequence breaks CreatedAt ties.
	sort.Slice(result, func(i, j int) bool {
		return r.seqOf[result[i].ID] < r.seqOf[result[j].ID]
	})

	return result, nil
}

func (r *MemoryRepository) CreateConsultation(_ context.Context, c *Consultation) (*Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *c
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now

	r.consultations[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (r *MemoryRepository) GetConsultationByID(_ context.Context, id uuid.UUID) (*Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.consultations[id]
	if !ok {
		return nil, ErrConsultationNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) GetConsultationByRequestID(_ context.Context, requestID uuid.UUID) (*Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.consultations {
		if c.RequestID == requestID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrConsultationNotFound
}

func (r *MemoryRepository) SetConsultationPatient(_ context.Context, id, patientID uuid.UUID) (*Consultation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.consultations[id]
	if !ok {
		return nil, ErrConsultationNotFound
	}

	pid := patientID
	c.PatientID = &pid
	c.UpdatedAt = time.Now()

	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) CreateCall(_ context.Context, call *ConsultationCall) (*ConsultationCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *call
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.CreatedAt = time.Now()

	r.calls[cp.ID] = &cp
	r.seq++
	r.seqOf[cp.ID] = r.seq

	out := cp
	return &out, nil
}

func (r *MemoryRepository) ListCallsByConsultation(_ context.Context, consultationID uuid.UUID) ([]ConsultationCall, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []ConsultationCall
	for _, call := range r.calls {
		if call.ConsultationID == consultationID {
			result = append(result, *call)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return r.seqOf[result[i].ID] < r.seqOf[result[j].ID]
	})

	return result, nil
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) GetClinicianByID(_ context.Context, id uuid.UUID) (*Clinician, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clinicians[id]
	if !ok {
		return nil, ErrClinicianNotFound
	}
	cp := *c
	return &cp, nil
}
