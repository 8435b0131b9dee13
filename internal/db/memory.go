package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ukydev/vehicle-recon/internal/models"
)

// MemoryStore is an in-memory implementation of every collection interface.
// Service tests run against it; it honors the same contracts as the Mongo
// implementations (ErrNotFound, ErrVersionConflict, ErrStaleStatus).
type MemoryStore struct {
	mu              sync.Mutex
	registryVersion int64
	steps           map[string]models.Step
	assignments     []models.StepAssignment
	vehicles        map[string]models.Vehicle
	states          map[string]models.VehicleStepState
	workItems       map[string]models.WorkItem
	transitions     []models.WorkItemTransition
	templates       map[string]models.WorkItemTemplate
	notifications   map[string]models.Notification
	preferences     map[string]models.NotificationPreference
	users           map[string]models.User
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		steps:         map[string]models.Step{},
		vehicles:      map[string]models.Vehicle{},
		states:        map[string]models.VehicleStepState{},
		workItems:     map[string]models.WorkItem{},
		templates:     map[string]models.WorkItemTemplate{},
		notifications: map[string]models.Notification{},
		preferences:   map[string]models.NotificationPreference{},
		users:         map[string]models.User{},
	}
}

// InsertStep inserts a step and returns its id.
func (m *MemoryStore) InsertStep(_ context.Context, step models.Step) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if step.ID.IsZero() {
		step.ID = primitive.NewObjectID()
	}
	step.CreatedAt = time.Now()
	step.UpdatedAt = time.Now()
	m.steps[step.ID.Hex()] = step
	return step.ID.Hex(), nil
}

// FindSteps returns all steps sorted by ordinal.
func (m *MemoryStore) FindSteps(_ context.Context) ([]models.Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	steps := make([]models.Step, 0, len(m.steps))
	for _, s := range m.steps {
		steps = append(steps, s)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Ordinal < steps[j].Ordinal })
	return steps, nil
}

// FindStepByID finds a step by its ID.
func (m *MemoryStore) FindStepByID(_ context.Context, id string) (*models.Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	step, ok := m.steps[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &step, nil
}

// UpdateStep replaces a step by its ID.
func (m *MemoryStore) UpdateStep(_ context.Context, id string, step models.Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.steps[id]
	if !ok {
		return ErrNotFound
	}
	step.ID = existing.ID
	step.UpdatedAt = time.Now()
	m.steps[id] = step
	return nil
}

// DeleteStep deletes a step by its ID.
func (m *MemoryStore) DeleteStep(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.steps[id]; !ok {
		return ErrNotFound
	}
	delete(m.steps, id)
	return nil
}

// RegistryVersion returns the current reorder version.
func (m *MemoryStore) RegistryVersion(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registryVersion, nil
}

// ReplaceOrdinals reassigns ordinals 1..N guarded by the registry version.
func (m *MemoryStore) ReplaceOrdinals(_ context.Context, expectedVersion int64, orderedIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if expectedVersion != m.registryVersion {
		return ErrVersionConflict
	}
	m.registryVersion++
	for i, id := range orderedIDs {
		step, ok := m.steps[id]
		if !ok {
			continue
		}
		step.Ordinal = i + 1
		step.UpdatedAt = time.Now()
		m.steps[id] = step
	}
	return nil
}

// ReplaceForStep replaces the full assignment set for a step and role.
func (m *MemoryStore) ReplaceForStep(_ context.Context, stepID, role string, userIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.assignments[:0]
	for _, a := range m.assignments {
		if a.StepID != stepID || a.Role != role {
			kept = append(kept, a)
		}
	}
	m.assignments = append(kept, models.StepAssignment{
		ID:        primitive.NewObjectID(),
		StepID:    stepID,
		Role:      role,
		UserIDs:   append([]string(nil), userIDs...),
		CreatedAt: time.Now(),
	})
	return nil
}

// FindAssignmentsByStep returns every assignment record for a step.
func (m *MemoryStore) FindAssignmentsByStep(_ context.Context, stepID string) ([]models.StepAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.StepAssignment
	for _, a := range m.assignments {
		if a.StepID == stepID {
			out = append(out, a)
		}
	}
	return out, nil
}

// DeleteAssignmentsForStep removes all assignments for a step.
func (m *MemoryStore) DeleteAssignmentsForStep(_ context.Context, stepID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.assignments[:0]
	for _, a := range m.assignments {
		if a.StepID != stepID {
			kept = append(kept, a)
		}
	}
	m.assignments = kept
	return nil
}

// InsertVehicle inserts a vehicle and returns its id.
func (m *MemoryStore) InsertVehicle(_ context.Context, vehicle models.Vehicle) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if vehicle.ID.IsZero() {
		vehicle.ID = primitive.NewObjectID()
	}
	vehicle.CreatedAt = time.Now()
	m.vehicles[vehicle.ID.Hex()] = vehicle
	return vehicle.ID.Hex(), nil
}

// FindVehicleByID finds a vehicle by its ID.
func (m *MemoryStore) FindVehicleByID(_ context.Context, id string) (*models.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vehicle, ok := m.vehicles[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &vehicle, nil
}

// FindVehicles returns all vehicles.
func (m *MemoryStore) FindVehicles(_ context.Context) ([]models.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vehicles := make([]models.Vehicle, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		vehicles = append(vehicles, v)
	}
	sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].CreatedAt.Before(vehicles[j].CreatedAt) })
	return vehicles, nil
}

// UpdateVehicle updates a vehicle by its ID.
func (m *MemoryStore) UpdateVehicle(_ context.Context, id string, vehicle models.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.vehicles[id]
	if !ok {
		return ErrNotFound
	}
	vehicle.ID = existing.ID
	m.vehicles[id] = vehicle
	return nil
}

// DeleteVehicle deletes a vehicle by its ID.
func (m *MemoryStore) DeleteVehicle(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vehicles[id]; !ok {
		return ErrNotFound
	}
	delete(m.vehicles, id)
	return nil
}

// InsertState inserts a vehicle step state record.
func (m *MemoryStore) InsertState(_ context.Context, state models.VehicleStepState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state.ID.IsZero() {
		state.ID = primitive.NewObjectID()
	}
	m.states[state.ID.Hex()] = state
	return nil
}

// FindOpenByVehicle returns the vehicle's current (open) step state.
func (m *MemoryStore) FindOpenByVehicle(_ context.Context, vehicleID string) (*models.VehicleStepState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.states {
		if s.VehicleID == vehicleID && s.LeftStepAt == nil {
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

// FindOpenByStep returns the open states of every vehicle currently in a step.
func (m *MemoryStore) FindOpenByStep(_ context.Context, stepID string) ([]models.VehicleStepState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.VehicleStepState
	for _, s := range m.states {
		if s.StepID == stepID && s.LeftStepAt == nil {
			out = append(out, s)
		}
	}
	return out, nil
}

// FindOpenStates returns every open step state across all vehicles.
func (m *MemoryStore) FindOpenStates(_ context.Context) ([]models.VehicleStepState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.VehicleStepState
	for _, s := range m.states {
		if s.LeftStepAt == nil {
			out = append(out, s)
		}
	}
	return out, nil
}

// CountOpenByStep counts vehicles currently occupying a step.
func (m *MemoryStore) CountOpenByStep(_ context.Context, stepID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.states {
		if s.StepID == stepID && s.LeftStepAt == nil {
			n++
		}
	}
	return n, nil
}

// CloseState stamps the departure time and frozen dwell days on a state.
func (m *MemoryStore) CloseState(_ context.Context, id string, leftAt time.Time, frozenDays int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[id]
	if !ok || state.LeftStepAt != nil {
		return ErrNotFound
	}
	state.LeftStepAt = &leftAt
	state.FrozenDays = frozenDays
	m.states[id] = state
	return nil
}

// CountDepartures counts vehicles that left a step since the given time.
func (m *MemoryStore) CountDepartures(_ context.Context, stepID string, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.states {
		if s.StepID == stepID && s.LeftStepAt != nil && !s.LeftStepAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// FindHistoryByVehicle returns all step states of a vehicle, oldest first.
func (m *MemoryStore) FindHistoryByVehicle(_ context.Context, vehicleID string) ([]models.VehicleStepState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.VehicleStepState
	for _, s := range m.states {
		if s.VehicleID == vehicleID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnteredStepAt.Before(out[j].EnteredStepAt) })
	return out, nil
}

// InsertWorkItem inserts a work item and returns its id.
func (m *MemoryStore) InsertWorkItem(_ context.Context, item models.WorkItem) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID.IsZero() {
		item.ID = primitive.NewObjectID()
	}
	item.CreatedAt = time.Now()
	item.UpdatedAt = time.Now()
	m.workItems[item.ID.Hex()] = item
	return item.ID.Hex(), nil
}

// FindWorkItemByID finds a work item by its ID.
func (m *MemoryStore) FindWorkItemByID(_ context.Context, id string) (*models.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.workItems[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &item, nil
}

// FindWorkItemsByVehicle returns all work items attached to a vehicle.
func (m *MemoryStore) FindWorkItemsByVehicle(_ context.Context, vehicleID string) ([]models.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WorkItem
	for _, item := range m.workItems {
		if item.VehicleID == vehicleID {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ReplaceWorkItem replaces a work item only while its status still matches.
func (m *MemoryStore) ReplaceWorkItem(_ context.Context, id string, expected models.WorkItemStatus, item models.WorkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.workItems[id]
	if !ok {
		return ErrNotFound
	}
	if existing.Status != expected {
		return ErrStaleStatus
	}
	item.ID = existing.ID
	item.UpdatedAt = time.Now()
	m.workItems[id] = item
	return nil
}

// UpdateWorkItem replaces a work item unconditionally.
func (m *MemoryStore) UpdateWorkItem(_ context.Context, id string, item models.WorkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.workItems[id]
	if !ok {
		return ErrNotFound
	}
	item.ID = existing.ID
	item.UpdatedAt = time.Now()
	m.workItems[id] = item
	return nil
}

// DeleteWorkItem deletes a work item by its ID.
func (m *MemoryStore) DeleteWorkItem(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workItems[id]; !ok {
		return ErrNotFound
	}
	delete(m.workItems, id)
	return nil
}

// InsertTransition appends a transition audit entry.
func (m *MemoryStore) InsertTransition(_ context.Context, tr models.WorkItemTransition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tr.ID.IsZero() {
		tr.ID = primitive.NewObjectID()
	}
	m.transitions = append(m.transitions, tr)
	return nil
}

// FindTransitionsByWorkItem returns an item's transition history, oldest first.
func (m *MemoryStore) FindTransitionsByWorkItem(_ context.Context, workItemID string) ([]models.WorkItemTransition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WorkItemTransition
	for _, tr := range m.transitions {
		if tr.WorkItemID == workItemID {
			out = append(out, tr)
		}
	}
	return out, nil
}

// InsertTemplate inserts a work item template and returns its id.
func (m *MemoryStore) InsertTemplate(_ context.Context, tpl models.WorkItemTemplate) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tpl.ID.IsZero() {
		tpl.ID = primitive.NewObjectID()
	}
	tpl.CreatedAt = time.Now()
	m.templates[tpl.ID.Hex()] = tpl
	return tpl.ID.Hex(), nil
}

// FindTemplates returns all work item templates.
func (m *MemoryStore) FindTemplates(_ context.Context) ([]models.WorkItemTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	templates := make([]models.WorkItemTemplate, 0, len(m.templates))
	for _, t := range m.templates {
		templates = append(templates, t)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].Name < templates[j].Name })
	return templates, nil
}

// FindTemplateByID finds a template by its ID.
func (m *MemoryStore) FindTemplateByID(_ context.Context, id string) (*models.WorkItemTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tpl, ok := m.templates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &tpl, nil
}

// InsertNotification records an in-app notification.
func (m *MemoryStore) InsertNotification(_ context.Context, n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	m.notifications[n.ID.Hex()] = n
	return nil
}

// FindNotificationsByUser returns a user's notifications, newest first.
func (m *MemoryStore) FindNotificationsByUser(_ context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Notification
	for _, n := range m.notifications {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// MarkNotificationRead flags a notification as read.
func (m *MemoryStore) MarkNotificationRead(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return ErrNotFound
	}
	n.Read = true
	n.ReadAt = &at
	m.notifications[id] = n
	return nil
}

// CountUnread counts a user's unread notifications.
func (m *MemoryStore) CountUnread(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, notif := range m.notifications {
		if notif.UserID == userID && !notif.Read {
			n++
		}
	}
	return n, nil
}

// DeleteReadBefore removes read notifications created before the cutoff.
func (m *MemoryStore) DeleteReadBefore(_ context.Context, userID string, cutoff time.Time) (int64, error) {
	return m.deleteNotificationsBefore(userID, cutoff, true), nil
}

// DeleteUnreadBefore removes unread notifications created before the cutoff.
func (m *MemoryStore) DeleteUnreadBefore(_ context.Context, userID string, cutoff time.Time) (int64, error) {
	return m.deleteNotificationsBefore(userID, cutoff, false), nil
}

func (m *MemoryStore) deleteNotificationsBefore(userID string, cutoff time.Time, read bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, notif := range m.notifications {
		if notif.UserID == userID && notif.Read == read && notif.CreatedAt.Before(cutoff) {
			delete(m.notifications, id)
			n++
		}
	}
	return n
}

// FindPreferenceByUser returns a user's saved preference.
func (m *MemoryStore) FindPreferenceByUser(_ context.Context, userID string) (*models.NotificationPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pref, ok := m.preferences[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &pref, nil
}

// UpsertPreference saves a user's preference.
func (m *MemoryStore) UpsertPreference(_ context.Context, pref models.NotificationPreference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pref.UpdatedAt = time.Now()
	m.preferences[pref.UserID] = pref
	return nil
}

// InsertUser inserts a user.
func (m *MemoryStore) InsertUser(_ context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	user.IsActive = true
	m.users[user.ID.Hex()] = user
	return nil
}

// FindUserByID finds a user by their ID.
func (m *MemoryStore) FindUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

// FindUserByUsername finds a user by their username.
func (m *MemoryStore) FindUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

// FindUserByEmail finds a user by their email.
func (m *MemoryStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

// FindUsersByIDs returns the users matching the given ids.
func (m *MemoryStore) FindUsersByIDs(_ context.Context, ids []string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// UpdateUser updates a user.
func (m *MemoryStore) UpdateUser(_ context.Context, id string, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	user.ID = existing.ID
	user.UpdatedAt = time.Now()
	m.users[id] = user
	return nil
}

// DeleteUser deletes a user.
func (m *MemoryStore) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

// UpdateLastLogin updates the last login time for a user.
func (m *MemoryStore) UpdateLastLogin(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	user.LastLogin = &now
	user.UpdatedAt = now
	m.users[id] = user
	return nil
}
