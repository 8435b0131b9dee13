package steps

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/vehicle-recon/internal/db"
	"github.com/ukydev/vehicle-recon/internal/models"
)

var (
	// ErrStepInUse means deletion was blocked by live vehicle occupancy.
	ErrStepInUse = errors.New("step has vehicles assigned")
	// ErrOrdinalConflict means a concurrent reorder won the version check.
	ErrOrdinalConflict = errors.New("concurrent reorder conflict")
	// ErrNameRequired means a step was created or renamed without a name.
	ErrNameRequired = errors.New("step name is required")
	// ErrBadOrder means a reorder request does not cover exactly the
	// current step set.
	ErrBadOrder = errors.New("reorder must list every step exactly once")
)

// Registry manages the ordered pipeline step configuration. Ordinals stay
// dense and 1-based across every operation.
type Registry struct {
	steps       db.StepCollection
	assignments db.AssignmentCollection
	states      db.StepStateCollection
}

// NewRegistry creates a step registry.
func NewRegistry(steps db.StepCollection, assignments db.AssignmentCollection, states db.StepStateCollection) *Registry {
	return &Registry{steps: steps, assignments: assignments, states: states}
}

// ListSteps returns every step ordered by ordinal.
func (r *Registry) ListSteps(ctx context.Context) ([]models.Step, error) {
	return r.steps.FindSteps(ctx)
}

// GetStep returns a single step.
func (r *Registry) GetStep(ctx context.Context, id string) (*models.Step, error) {
	return r.steps.FindStepByID(ctx, id)
}

// CreateStep appends a step to the pipeline, assigning the next ordinal.
func (r *Registry) CreateStep(ctx context.Context, step models.Step) (*models.Step, error) {
	if step.Name == "" {
		return nil, ErrNameRequired
	}
	existing, err := r.steps.FindSteps(ctx)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	step.Ordinal = len(existing) + 1

	id, err := r.steps.InsertStep(ctx, step)
	if err != nil {
		return nil, fmt.Errorf("insert step: %w", err)
	}
	created, err := r.steps.FindStepByID(ctx, id)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"step_id": id, "name": step.Name, "ordinal": step.Ordinal}).Info("Created pipeline step")
	return created, nil
}

// UpdateStep applies a patch to a step's configuration. Ordinals are not
// patchable; position changes go through ReorderSteps.
func (r *Registry) UpdateStep(ctx context.Context, id string, patch models.StepPatch) (*models.Step, error) {
	step, err := r.steps.FindStepByID(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(step)
	if step.Name == "" {
		return nil, ErrNameRequired
	}
	if err := r.steps.UpdateStep(ctx, id, *step); err != nil {
		return nil, err
	}
	return step, nil
}

// ReorderSteps reassigns ordinals 1..N following orderedIDs, as one atomic
// unit. The id set must match the current steps exactly; concurrent reorders
// are serialized by the registry version and the loser gets
// ErrOrdinalConflict. Vehicle step references are untouched.
func (r *Registry) ReorderSteps(ctx context.Context, orderedIDs []string) error {
	current, err := r.steps.FindSteps(ctx)
	if err != nil {
		return fmt.Errorf("list steps: %w", err)
	}
	if len(orderedIDs) != len(current) {
		return ErrBadOrder
	}
	known := make(map[string]bool, len(current))
	for _, s := range current {
		known[s.ID.Hex()] = true
	}
	seen := make(map[string]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if !known[id] || seen[id] {
			return ErrBadOrder
		}
		seen[id] = true
	}

	version, err := r.steps.RegistryVersion(ctx)
	if err != nil {
		return fmt.Errorf("read registry version: %w", err)
	}
	if err := r.steps.ReplaceOrdinals(ctx, version, orderedIDs); err != nil {
		if errors.Is(err, db.ErrVersionConflict) {
			return ErrOrdinalConflict
		}
		return fmt.Errorf("replace ordinals: %w", err)
	}
	log.WithField("step_count", len(orderedIDs)).Info("Reordered pipeline steps")
	return nil
}

// DeleteStep removes a step and its assignments. Deletion is rejected while
// any vehicle occupies the step; remaining ordinals are compacted so the
// sequence stays dense.
func (r *Registry) DeleteStep(ctx context.Context, id string) error {
	if _, err := r.steps.FindStepByID(ctx, id); err != nil {
		return err
	}
	occupied, err := r.states.CountOpenByStep(ctx, id)
	if err != nil {
		return fmt.Errorf("count occupancy: %w", err)
	}
	if occupied > 0 {
		return ErrStepInUse
	}
	if err := r.steps.DeleteStep(ctx, id); err != nil {
		return err
	}
	if err := r.assignments.DeleteAssignmentsForStep(ctx, id); err != nil {
		return fmt.Errorf("delete assignments: %w", err)
	}

	// Compact the gap left by the deleted ordinal.
	remaining, err := r.steps.FindSteps(ctx)
	if err != nil {
		return fmt.Errorf("list steps: %w", err)
	}
	ids := make([]string, 0, len(remaining))
	for _, s := range remaining {
		ids = append(ids, s.ID.Hex())
	}
	version, err := r.steps.RegistryVersion(ctx)
	if err != nil {
		return fmt.Errorf("read registry version: %w", err)
	}
	if err := r.steps.ReplaceOrdinals(ctx, version, ids); err != nil {
		if errors.Is(err, db.ErrVersionConflict) {
			return ErrOrdinalConflict
		}
		return fmt.Errorf("compact ordinals: %w", err)
	}
	log.WithField("step_id", id).Info("Deleted pipeline step")
	return nil
}

// AssignUsers replaces the user set notified for a step and role.
func (r *Registry) AssignUsers(ctx context.Context, stepID string, userIDs []string, role string) error {
	if _, err := r.steps.FindStepByID(ctx, stepID); err != nil {
		return err
	}
	if role == "" {
		role = string(models.RoleTechnician)
	}
	if err := r.assignments.ReplaceForStep(ctx, stepID, role, userIDs); err != nil {
		return fmt.Errorf("replace assignments: %w", err)
	}
	log.WithFields(log.Fields{"step_id": stepID, "role": role, "user_count": len(userIDs)}).Info("Replaced step assignments")
	return nil
}

// AssignedUsers returns the union of user ids assigned to a step across roles.
func (r *Registry) AssignedUsers(ctx context.Context, stepID string) ([]string, error) {
	assignments, err := r.assignments.FindAssignmentsByStep(ctx, stepID)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var out []string
	for _, a := range assignments {
		for _, id := range a.UserIDs {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}
