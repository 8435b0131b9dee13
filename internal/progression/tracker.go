package progression

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/vehicle-recon/internal/db"
	"github.com/ukydev/vehicle-recon/internal/models"
)

// ErrAlreadyInStep means a move targeted the vehicle's current step; that
// would silently reset its dwell clock.
var ErrAlreadyInStep = errors.New("vehicle already in step")

// EventSink receives domain events raised by the tracker. The notification
// dispatcher implements it; tests use a recording stub.
type EventSink interface {
	Publish(ctx context.Context, ev models.Event)
}

// StepStateView is the computed current position of a vehicle.
type StepStateView struct {
	Vehicle       models.Vehicle   `json:"vehicle"`
	Step          models.Step      `json:"step"`
	EnteredStepAt time.Time        `json:"entered_step_at"`
	DaysInStep    int              `json:"days_in_step"`
	Bucket        models.DayBucket `json:"bucket"`
}

// Tracker associates vehicles with their current pipeline step.
type Tracker struct {
	steps    db.StepCollection
	states   db.StepStateCollection
	vehicles db.VehicleCollection
	events   EventSink
	now      func() time.Time
}

// NewTracker creates a vehicle progression tracker. events may be nil when
// no dispatcher is wired (tests of pure progression).
func NewTracker(steps db.StepCollection, states db.StepStateCollection, vehicles db.VehicleCollection, events EventSink) *Tracker {
	return &Tracker{steps: steps, states: states, vehicles: vehicles, events: events, now: time.Now}
}

// WithClock overrides the tracker's clock. Tests only.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// MoveToStep closes the vehicle's current step state, freezing its dwell
// days, and opens a new state in the destination step. The full new state is
// computed before anything is persisted.
func (t *Tracker) MoveToStep(ctx context.Context, vehicleID, stepID string) error {
	vehicle, err := t.vehicles.FindVehicleByID(ctx, vehicleID)
	if err != nil {
		return err
	}
	step, err := t.steps.FindStepByID(ctx, stepID)
	if err != nil {
		return err
	}

	now := t.now()
	prior, err := t.states.FindOpenByVehicle(ctx, vehicleID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("find current step state: %w", err)
	}
	if prior != nil {
		if prior.StepID == stepID {
			return ErrAlreadyInStep
		}
		frozen := models.DaysInStep(prior.EnteredStepAt, now)
		if err := t.states.CloseState(ctx, prior.ID.Hex(), now, frozen); err != nil {
			return fmt.Errorf("close step state: %w", err)
		}
	}

	state := models.VehicleStepState{
		VehicleID:     vehicleID,
		StepID:        stepID,
		EnteredStepAt: now,
	}
	if err := t.states.InsertState(ctx, state); err != nil {
		return fmt.Errorf("open step state: %w", err)
	}

	log.WithFields(log.Fields{
		"vehicle_id": vehicleID,
		"step_id":    stepID,
		"step_name":  step.Name,
	}).Info("Vehicle moved to step")

	if t.events != nil {
		t.events.Publish(ctx, models.Event{
			Type:       models.EventStepEntry,
			Category:   models.CategoryVehicleStatus,
			StepID:     stepID,
			VehicleID:  vehicleID,
			Title:      fmt.Sprintf("Vehicle entered %s", step.Name),
			Message:    fmt.Sprintf("%s %s (%s) entered step %s", vehicle.Make, vehicle.Model, vehicle.StockNumber, step.Name),
			OccurredAt: now,
		})
	}
	return nil
}

// GetVehicleStepState returns the vehicle's current position with computed
// dwell days and day bucket.
func (t *Tracker) GetVehicleStepState(ctx context.Context, vehicleID string) (*StepStateView, error) {
	vehicle, err := t.vehicles.FindVehicleByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	state, err := t.states.FindOpenByVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	step, err := t.steps.FindStepByID(ctx, state.StepID)
	if err != nil {
		return nil, err
	}
	days := models.DaysInStep(state.EnteredStepAt, t.now())
	return &StepStateView{
		Vehicle:       *vehicle,
		Step:          *step,
		EnteredStepAt: state.EnteredStepAt,
		DaysInStep:    days,
		Bucket:        models.ClassifyBucket(float64(days)),
	}, nil
}

// History returns the vehicle's full progression history, oldest first.
func (t *Tracker) History(ctx context.Context, vehicleID string) ([]models.VehicleStepState, error) {
	return t.states.FindHistoryByVehicle(ctx, vehicleID)
}
