// Package dispatch is the boundary every mutating operation enters through.
// It resolves the acting identity, runs the operation, and guarantees the
// audit recorder observes each mutated entity exactly once, or not at all
// when the operation fails.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careline/teleconsult/internal/actor"
	"github.com/careline/teleconsult/internal/audit"
	"github.com/careline/teleconsult/internal/consult"
	"github.com/careline/teleconsult/internal/slot"
)

// Collector buffers the mutations one operation observes. Nothing reaches
// the recorder until the operation as a whole succeeds, so a failed attempt
// leaves no audit trace.
type Collector struct {
	changes []audit.Change
}

func (c *Collector) Observe(change audit.Change) {
	c.changes = append(c.changes, change)
}

type Dispatcher struct {
	service  *consult.Service
	slots    *slot.Ledger
	recorder *audit.Recorder
	logger   zerolog.Logger
}

func NewDispatcher(service *consult.Service, slots *slot.Ledger, recorder *audit.Recorder, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		service:  service,
		slots:    slots,
		recorder: recorder,
		logger:   logger,
	}
}

// mutate is the single dispatch point: one attributed audit record per
// observed mutation, in observation order, only on success.
func (d *Dispatcher) mutate(ctx context.Context, act actor.Actor, fn func(col *Collector) error) error {
	col := &Collector{}
	if err := fn(col); err != nil {
		return err
	}

	actorUserID := act.AuditUserID()
	for _, change := range col.changes {
		d.recorder.Record(ctx, change, actorUserID)
	}
	return nil
}

// IntakeSMS runs unattended intake under the system actor.
func (d *Dispatcher) IntakeSMS(ctx context.Context, phoneNumber, symptomText string) (*consult.ConsultationRequest, error) {
	var out *consult.ConsultationRequest
	err := d.mutate(ctx, actor.System(), func(col *Collector) error {
		var err error
		out, err = d.service.IntakeSMS(ctx, col, phoneNumber, symptomText)
		return err
	})
	return out, err
}

func (d *Dispatcher) AcceptRequest(ctx context.Context, p consult.AcceptParams) (*consult.Consultation, error) {
	var out *consult.Consultation
	err := d.mutate(ctx, p.Actor, func(col *Collector) error {
		var err error
		out, err = d.service.AcceptRequest(ctx, col, p)
		return err
	})
	return out, err
}

func (d *Dispatcher) RejectRequest(ctx context.Context, requestID uuid.UUID, act actor.Actor) (*consult.ConsultationRequest, error) {
	var out *consult.ConsultationRequest
	err := d.mutate(ctx, act, func(col *Collector) error {
		var err error
		out, err = d.service.RejectRequest(ctx, col, requestID)
		return err
	})
	return out, err
}

func (d *Dispatcher) AssignPatient(ctx context.Context, consultationID, patientID uuid.UUID, dateOfBirth time.Time, act actor.Actor) (*consult.Consultation, error) {
	var out *consult.Consultation
	err := d.mutate(ctx, act, func(col *Collector) error {
		var err error
		out, err = d.service.AssignPatient(ctx, col, consultationID, patientID, dateOfBirth)
		return err
	})
	return out, err
}

func (d *Dispatcher) CreateCall(ctx context.Context, p consult.CallParams, act actor.Actor) (*consult.ConsultationCall, error) {
	var out *consult.ConsultationCall
	err := d.mutate(ctx, act, func(col *Collector) error {
		var err error
		out, err = d.service.CreateCall(ctx, col, p)
		return err
	})
	return out, err
}

func (d *Dispatcher) BulkUpsertSlots(ctx context.Context, ownerUserID uuid.UUID, day time.Time, windows []slot.Window, act actor.Actor) ([]slot.Slot, error) {
	var out []slot.Slot
	err := d.mutate(ctx, act, func(col *Collector) error {
		var err error
		out, err = d.slots.BulkUpsert(ctx, col, ownerUserID, day, windows)
		return err
	})
	return out, err
}
