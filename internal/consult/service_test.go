package consult

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careline/teleconsult/internal/actor"
	"github.com/careline/teleconsult/internal/audit"
	"github.com/careline/teleconsult/internal/slot"
)

type captureSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

type sentMessage struct {
	phoneNumber string
	body        string
}

func (s *captureSender) Send(_ context.Context, phoneNumber, body string) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{phoneNumber: phoneNumber, body: body})
	return nil
}

type recordedChanges struct {
	mu      sync.Mutex
	changes []audit.Change
}

func (r *recordedChanges) Observe(ch audit.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, ch)
}

type fixture struct {
	svc      *Service
	repo     *MemoryRepository
	slotRepo *slot.MemoryRepository
	ledger   *slot.Ledger
	sender   *captureSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := NewMemoryRepository()
	slotRepo := slot.NewMemoryRepository()
	ledger := slot.NewLedger(slotRepo, zerolog.Nop())
	sender := &captureSender{}
	svc := NewService(repo, ledger, sender, NewRepoVerifier(repo), zerolog.Nop())
	// Pin the clock before every test slot so nearest-slot lookups see them.
	svc.now = func() time.Time { return at(7) }

	return &fixture{svc: svc, repo: repo, slotRepo: slotRepo, ledger: ledger, sender: sender}
}

func (f *fixture) addSlots(t *testing.T, owner uuid.UUID, starts ...time.Time) []slot.Slot {
	t.Helper()

	windows := make([]slot.Window, 0, len(starts))
	for _, start := range starts {
		windows = append(windows, slot.Window{StartAt: start, EndAt: start.Add(30 * time.Minute)})
	}

	created, err := f.ledger.BulkUpsert(context.Background(), nil, owner, starts[0], windows)
	require.NoError(t, err)
	return created
}

func (f *fixture) pendingRequest(t *testing.T) *ConsultationRequest {
	t.Helper()

	req, err := f.svc.IntakeSMS(context.Background(), nil, "+15551237000", "fever and cough since tuesday")
	require.NoError(t, err)
	return req
}

func at(hour int) time.Time {
	return time.Date(2026, time.March, 2, hour, 0, 0, 0, time.UTC)
}

func TestIntakeCreatesPendingRequest(t *testing.T) {
	f := newFixture(t)
	obs := &recordedChanges{}

	req, err := f.svc.IntakeSMS(context.Background(), obs, "+15551237000", "severe headache")
	require.NoError(t, err)

	assert.Equal(t, RequestPending, req.Status)
	assert.Equal(t, "+15551237000", req.PhoneNumber)

	require.Len(t, obs.changes, 1)
	ch := obs.changes[0]
	assert.Equal(t, EntityConsultationRequest, ch.EntityType)
	assert.Equal(t, audit.EventCreate, ch.Event)
	assert.Empty(t, ch.Before)
	assert.Equal(t, "pending", ch.After["status"])
}

func TestIntakeValidatesInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.IntakeSMS(context.Background(), nil, "", "headache")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.IntakeSMS(context.Background(), nil, "+15551237000", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAcceptRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	staff := uuid.New()
	f.repo.AddClinician(Clinician{ID: staff, Name: "Dana Osei"})
	f.svc.now = func() time.Time { return at(8) }

	slots := f.addSlots(t, staff, at(9), at(11))
	req := f.pendingRequest(t)
	obs := &recordedChanges{}

	cons, err := f.svc.AcceptRequest(ctx, obs, AcceptParams{
		RequestID:    req.ID,
		TemplateBody: "Dr {clinicianName} will call you at {consultationTime}.",
		Actor:        actor.Staff(staff),
	})
	require.NoError(t, err)
	require.NotNil(t, cons)

	// The earliest slot was claimed by the consultation.
	claimed, err := f.ledger.Get(ctx, slots[0].ID)
	require.NoError(t, err)
	require.NotNil(t, claimed.ConsultationID)
	assert.Equal(t, cons.ID, *claimed.ConsultationID)
	assert.Equal(t, claimed.ID, cons.SlotID)
	assert.Equal(t, staff, cons.AssignedUserID)

	// Request reached its terminal state.
	got, err := f.repo.GetRequestByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestAccepted, got.Status)

	// Rendered confirmation was handed to the sender.
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "+15551237000", f.sender.sent[0].phoneNumber)
	assert.Equal(t, "Dr Dana Osei will call you at Monday, 02 Mar 2026 09:00.", f.sender.sent[0].body)

	// Mutation order: slot claim, request update, consultation create.
	require.Len(t, obs.changes, 3)
	assert.Equal(t, slot.EntityType, obs.changes[0].EntityType)
	assert.Equal(t, EntityConsultationRequest, obs.changes[1].EntityType)
	assert.Equal(t, "accepted", obs.changes[1].After["status"])
	assert.Equal(t, EntityConsultation, obs.changes[2].EntityType)
	assert.Equal(t, audit.EventCreate, obs.changes[2].Event)
}

func TestAcceptThenRejectFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	staff := uuid.New()
	f.addSlots(t, staff, at(9))
	req := f.pendingRequest(t)

	_, err := f.svc.AcceptRequest(ctx, nil, AcceptParams{
		RequestID:    req.ID,
		TemplateBody: "hi",
		Actor:        actor.Staff(staff),
	})
	require.NoError(t, err)

	_, err = f.svc.RejectRequest(ctx, nil, req.ID)
	assert.ErrorIs(t, err, ErrRequestNotPending)
}

func TestRejectThenAcceptFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	staff := uuid.New()
	f.addSlots(t, staff, at(9))
	req := f.pendingRequest(t)

	rejected, err := f.svc.RejectRequest(ctx, nil, req.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestRejected, rejected.Status)

	_, err = f.svc.AcceptRequest(ctx, nil, AcceptParams{
		RequestID:    req.ID,
		TemplateBody: "hi",
		Actor:        actor.Staff(staff),
	})
	assert.ErrorIs(t, err, ErrRequestNotPending)

	// Rejection claimed nothing.
	for s, err := range f.ledger.FreeSlots(ctx, nil, at(0), at(23)) {
		require.NoError(t, err)
		assert.True(t, s.Free())
	}
}

func TestAcceptUnknownRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AcceptRequest(context.Background(), nil, AcceptParams{
		RequestID:    uuid.New(),
		TemplateBody: "hi",
		Actor:        actor.Staff(uuid.New()),
	})
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestAcceptRequiresStaffActor(t *testing.T) {
	f := newFixture(t)
	req := f.pendingRequest(t)

	_, err := f.svc.AcceptRequest(context.Background(), nil, AcceptParams{
		RequestID:    req.ID,
		TemplateBody: "hi",
		Actor:        actor.System(),
	})
	assert.ErrorIs(t, err, ErrStaffActorRequired)
}

func TestAcceptWithoutFreeSlot(t *testing.T) {
	f := newFixture(t)
	req := f.pendingRequest(t)

	_, err := f.svc.AcceptRequest(context.Background(), nil, AcceptParams{
		RequestID:    req.ID,
		TemplateBody: "hi",
		Actor:        actor.Staff(uuid.New()),
	})
	assert.ErrorIs(t, err, ErrNoFreeSlot)
}

func TestAcceptAssignToOnlyMe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	me := uuid.New()
	other := uuid.New()
	f.svc.now = func() time.Time { return at(7) }

	// The other clinician has the earlier slot.
	f.addSlots(t, other, at(8))
	mine := f.addSlots(t, me, at(10))
	req := f.pendingRequest(t)

	cons, err := f.svc.AcceptRequest(ctx, nil, AcceptParams{
		RequestID:      req.ID,
		TemplateBody:   "hi",
		AssignToOnlyMe: true,
		Actor:          actor.Staff(me),
	})
	require.NoError(t, err)
	assert.Equal(t, me, cons.AssignedUserID)
	assert.Equal(t, mine[0].ID, cons.SlotID)
}

func TestAcceptPrefersNearestSlotAcrossOwners(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	early := uuid.New()
	late := uuid.New()
	f.svc.now = func() time.Time { return at(7) }

	f.addSlots(t, late, at(14))
	earliest := f.addSlots(t, early, at(8))
	req := f.pendingRequest(t)

	cons, err := f.svc.AcceptRequest(ctx, nil, AcceptParams{
		RequestID:    req.ID,
		TemplateBody: "hi",
		Actor:        actor.Staff(uuid.New()),
	})
	require.NoError(t, err)
	assert.Equal(t, earliest[0].ID, cons.SlotID)
	assert.Equal(t, early, cons.AssignedUserID)
}

func TestAcceptHonorsBuffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	staff := uuid.New()
	f.svc.now = func() time.Time { return at(8) }

	slots := f.addSlots(t, staff, at(9), at(12))
	req := f.pendingRequest(t)

	cons, err := f.svc.AcceptRequest(ctx, nil, AcceptParams{
		RequestID:    req.ID,
		TemplateBody: "hi",
		Actor:        actor.Staff(staff),
		Sched:        SchedulingParams{Buffer: 2 * time.Hour},
	})
	require.NoError(t, err)

	// The 9:00 slot is inside the buffer; 12:00 is the nearest eligible.
	assert.Equal(t, slots[1].ID, cons.SlotID)
}

func TestConcurrentAcceptsShareOneSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	staff := uuid.New()
	f.addSlots(t, staff, at(9))

	reqA := f.pendingRequest(t)
	reqB := f.pendingRequest(t)

	results := make([]error, 2)
	consultations := make([]*Consultation, 2)

	var wg sync.WaitGroup
	for i, id := range []uuid.UUID{reqA.ID, reqB.ID} {
		wg.Add(1)
		go func(i int, requestID uuid.UUID) {
			defer wg.Done()
			consultations[i], results[i] = f.svc.AcceptRequest(ctx, nil, AcceptParams{
				RequestID:    requestID,
				TemplateBody: "hi",
				Actor:        actor.Staff(staff),
			})
		}(i, id)
	}
	wg.Wait()

	wins := 0
	for i, err := range results {
		if err == nil {
			wins++
			require.NotNil(t, consultations[i])
		} else {
			retryable := errors.Is(err, slot.ErrSlotTaken) || errors.Is(err, ErrNoFreeSlot)
			assert.True(t, retryable, "unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins, "exactly one accept may claim the slot")
}

func TestAcceptSurvivesSenderFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	staff := uuid.New()
	f.addSlots(t, staff, at(9))
	req := f.pendingRequest(t)
	f.sender.err = errors.New("gateway unreachable")

	cons, err := f.svc.AcceptRequest(ctx, nil, AcceptParams{
		RequestID:    req.ID,
		TemplateBody: "hi",
		Actor:        actor.Staff(staff),
	})
	require.NoError(t, err)
	require.NotNil(t, cons)

	got, err := f.repo.GetRequestByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, RequestAccepted, got.Status)
}

func TestAssignPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	staff := uuid.New()
	f.addSlots(t, staff, at(9))
	req := f.pendingRequest(t)

	cons, err := f.svc.AcceptRequest(ctx, nil, AcceptParams{
		RequestID:    req.ID,
		TemplateBody: "hi",
		Actor:        actor.Staff(staff),
	})
	require.NoError(t, err)

	dob := time.Date(1983, time.July, 14, 0, 0, 0, 0, time.UTC)
	patient := Patient{ID: uuid.New(), Name: "Sam Reyes", DateOfBirth: dob}
	f.repo.AddPatient(patient)

	obs := &recordedChanges{}
	updated, err := f.svc.AssignPatient(ctx, obs, cons.ID, patient.ID, dob)
	require.NoError(t, err)
	require.NotNil(t, updated.PatientID)
	assert.Equal(t, patient.ID, *updated.PatientID)

	require.Len(t, obs.changes, 1)
	assert.Equal(t, audit.EventUpdate, obs.changes[0].Event)
	assert.Equal(t, patient.ID.String(), audit.Diff(obs.changes[0].Before, obs.changes[0].After)["patient_id"])

	// Re-assignment to a different patient overwrites.
	second := Patient{ID: uuid.New(), Name: "Ana Silva", DateOfBirth: dob}
	f.repo.AddPatient(second)
	updated, err = f.svc.AssignPatient(ctx, nil, cons.ID, second.ID, dob)
	require.NoError(t, err)
	assert.Equal(t, second.ID, *updated.PatientID)
}

func TestAssignPatientRejectsDOBMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	staff := uuid.New()
	f.addSlots(t, staff, at(9))
	req := f.pendingRequest(t)

	cons, err := f.svc.AcceptRequest(ctx, nil, AcceptParams{
		RequestID:    req.ID,
		TemplateBody: "hi",
		Actor:        actor.Staff(staff),
	})
	require.NoError(t, err)

	patient := Patient{
		ID:          uuid.New(),
		Name:        "Sam Reyes",
		DateOfBirth: time.Date(1983, time.July, 14, 0, 0, 0, 0, time.UTC),
	}
	f.repo.AddPatient(patient)

	_, err = f.svc.AssignPatient(ctx, nil, cons.ID, patient.ID,
		time.Date(1983, time.July, 15, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrIdentityMismatch)

	got, err := f.repo.GetConsultationByID(ctx, cons.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PatientID)
}

func acceptedConsultation(t *testing.T, f *fixture) *Consultation {
	t.Helper()

	staff := uuid.New()
	f.addSlots(t, staff, at(9))
	req := f.pendingRequest(t)

	cons, err := f.svc.AcceptRequest(context.Background(), nil, AcceptParams{
		RequestID:    req.ID,
		TemplateBody: "hi",
		Actor:        actor.Staff(staff),
	})
	require.NoError(t, err)
	return cons
}

func TestCreateCallOutcomeInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cons := acceptedConsultation(t, f)
	patientID := uuid.New()

	// Outcome fields on a no-answer call are always rejected.
	_, err := f.svc.CreateCall(ctx, nil, CallParams{
		ConsultationID: cons.ID,
		Status:         CallPatientNoAnswer,
		PatientID:      &patientID,
		Diagnosis:      "viral infection",
	})
	assert.ErrorIs(t, err, ErrOutcomeFieldsRequireAnswer)

	_, err = f.svc.CreateCall(ctx, nil, CallParams{
		ConsultationID: cons.ID,
		Status:         CallClinicianDidNotCall,
		Confirmations:  "name, dob",
	})
	assert.ErrorIs(t, err, ErrOutcomeFieldsRequireAnswer)

	// An answered call persists them verbatim.
	call, err := f.svc.CreateCall(ctx, nil, CallParams{
		ConsultationID: cons.ID,
		Status:         CallPatientAnswered,
		PatientID:      &patientID,
		Confirmations:  "name, dob, address",
		ChiefComplaint: "persistent cough",
		Diagnosis:      "acute bronchitis",
	})
	require.NoError(t, err)
	assert.Equal(t, "name, dob, address", call.Confirmations)
	assert.Equal(t, "persistent cough", call.ChiefComplaint)
	assert.Equal(t, "acute bronchitis", call.Diagnosis)
}

func TestConsultationAccumulatesCalls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cons := acceptedConsultation(t, f)

	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateCall(ctx, nil, CallParams{
			ConsultationID: cons.ID,
			Status:         CallPatientNoAnswer,
		})
		require.NoError(t, err)
	}
	_, err := f.svc.CreateCall(ctx, nil, CallParams{
		ConsultationID: cons.ID,
		Status:         CallPatientAnswered,
		Diagnosis:      "migraine",
	})
	require.NoError(t, err)

	detail, err := f.svc.ConsultationWithCalls(ctx, cons.ID)
	require.NoError(t, err)
	require.Len(t, detail.Calls, 4)
	assert.Equal(t, CallPatientNoAnswer, detail.Calls[0].Status)
	assert.Equal(t, CallPatientAnswered, detail.Calls[3].Status)
	require.NotNil(t, detail.Slot)
	assert.Equal(t, cons.SlotID, detail.Slot.ID)
}

func TestCreateCallUnknownConsultation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateCall(context.Background(), nil, CallParams{
		ConsultationID: uuid.New(),
		Status:         CallPatientNoAnswer,
	})
	assert.ErrorIs(t, err, ErrConsultationNotFound)
}

func TestRequestsByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	staff := uuid.New()
	f.addSlots(t, staff, at(9), at(11))

	first := f.pendingRequest(t)
	second := f.pendingRequest(t)
	third := f.pendingRequest(t)

	_, err := f.svc.AcceptRequest(ctx, nil, AcceptParams{
		RequestID:    second.ID,
		TemplateBody: "hi",
		Actor:        actor.Staff(staff),
	})
	require.NoError(t, err)
	_, err = f.svc.RejectRequest(ctx, nil, third.ID)
	require.NoError(t, err)

	pending, err := f.svc.RequestsByStatus(ctx, RequestPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)

	accepted, err := f.svc.RequestsByStatus(ctx, RequestAccepted)
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, second.ID, accepted[0].ID)
	require.NotNil(t, accepted[0].Consultation)
	require.NotNil(t, accepted[0].Slot)
	assert.Equal(t, accepted[0].Consultation.SlotID, accepted[0].Slot.ID)

	// Reads are idempotent: same result without intervening mutation.
	again, err := f.svc.RequestsByStatus(ctx, RequestAccepted)
	require.NoError(t, err)
	assert.Equal(t, accepted, again)
}
