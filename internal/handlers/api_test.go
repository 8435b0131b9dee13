package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/vehicle-recon/internal/bottleneck"
	"github.com/ukydev/vehicle-recon/internal/db"
	"github.com/ukydev/vehicle-recon/internal/middleware"
	"github.com/ukydev/vehicle-recon/internal/models"
	"github.com/ukydev/vehicle-recon/internal/notify"
	"github.com/ukydev/vehicle-recon/internal/progression"
	"github.com/ukydev/vehicle-recon/internal/steps"
	"github.com/ukydev/vehicle-recon/internal/workitems"
)

// apiFixture wires the full handler surface over the in-memory store, routed
// the same way the server routes it.
type apiFixture struct {
	mux   *http.ServeMux
	store *db.MemoryStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	store := db.NewMemoryStore()

	dispatcher := notify.NewDispatcher(store, store, store, store)
	inbox := notify.NewInbox(store, store)
	registry := steps.NewRegistry(store, store, store)
	tracker := progression.NewTracker(store, store, store, dispatcher)
	lifecycle := workitems.NewService(store, store, store, store, dispatcher)
	detector := bottleneck.NewDetector(store, store)

	stepHandler := NewStepHandler(registry, detector)
	vehicleHandler := NewVehicleHandler(store, tracker)
	workItemHandler := NewWorkItemHandler(lifecycle, store)
	notificationHandler := NewNotificationHandler(inbox)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/steps", stepHandler.List)
	mux.HandleFunc("POST /api/steps", stepHandler.Create)
	mux.HandleFunc("PUT /api/steps/reorder", stepHandler.Reorder)
	mux.HandleFunc("PUT /api/steps/{id}", stepHandler.Update)
	mux.HandleFunc("DELETE /api/steps/{id}", stepHandler.Delete)
	mux.HandleFunc("PUT /api/steps/{id}/assignments", stepHandler.Assign)
	mux.HandleFunc("GET /api/steps/{id}/sla", stepHandler.SLAStatus)
	mux.HandleFunc("GET /api/steps/summary", stepHandler.Summary)
	mux.HandleFunc("GET /api/alerts", stepHandler.Alerts)
	mux.HandleFunc("POST /api/vehicles", vehicleHandler.Create)
	mux.HandleFunc("GET /api/vehicles/{id}", vehicleHandler.Get)
	mux.HandleFunc("POST /api/vehicles/{id}/move", vehicleHandler.Move)
	mux.HandleFunc("GET /api/vehicles/{id}/step-state", vehicleHandler.StepState)
	mux.HandleFunc("GET /api/vehicles/{id}/history", vehicleHandler.History)
	mux.HandleFunc("GET /api/vehicles/{id}/work-items", workItemHandler.ListByVehicle)
	mux.HandleFunc("POST /api/work-items", workItemHandler.Create)
	mux.HandleFunc("POST /api/work-items/from-template", workItemHandler.CreateFromTemplate)
	mux.HandleFunc("GET /api/work-items/{id}", workItemHandler.Get)
	mux.HandleFunc("POST /api/work-items/{id}/approve", workItemHandler.Approve)
	mux.HandleFunc("POST /api/work-items/{id}/decline", workItemHandler.Decline)
	mux.HandleFunc("POST /api/work-items/{id}/start", workItemHandler.Start)
	mux.HandleFunc("POST /api/work-items/{id}/complete", workItemHandler.Complete)
	mux.HandleFunc("POST /api/work-items/{id}/cancel", workItemHandler.Cancel)
	mux.HandleFunc("GET /api/work-items/{id}/history", workItemHandler.History)
	mux.HandleFunc("POST /api/work-item-templates", workItemHandler.CreateTemplate)
	mux.HandleFunc("GET /api/work-item-templates", workItemHandler.ListTemplates)
	mux.HandleFunc("GET /api/notifications", notificationHandler.List)
	mux.HandleFunc("GET /api/notifications/unread-count", notificationHandler.UnreadCount)
	mux.HandleFunc("POST /api/notifications/{id}/read", notificationHandler.MarkRead)
	mux.HandleFunc("GET /api/notifications/preferences", notificationHandler.GetPreferences)
	mux.HandleFunc("PUT /api/notifications/preferences", notificationHandler.UpdatePreferences)

	return &apiFixture{mux: mux, store: store}
}

// do runs one request through the mux with an authenticated context.
func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	claims := &models.Claims{UserID: "u-test", Username: "advisor", Role: models.RoleManager}
	req = req.WithContext(context.WithValue(req.Context(), middleware.UserContextKey, claims))
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func (f *apiFixture) createStep(t *testing.T, name string, slaHours float64) models.Step {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/steps", map[string]interface{}{"name": name, "sla_hours": slaHours})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var step models.Step
	f.decode(t, rec, &step)
	return step
}

func (f *apiFixture) createVehicle(t *testing.T, stock string) models.Vehicle {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/vehicles", map[string]interface{}{
		"vin": "1HGBH41JXMN10" + stock, "stock_number": stock, "make": "Honda", "model": "Civic",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var vehicle models.Vehicle
	f.decode(t, rec, &vehicle)
	return vehicle
}

func TestStepEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	s1 := f.createStep(t, "Intake", 24)
	s2 := f.createStep(t, "Mechanical", 48)

	rec := f.do(t, http.MethodGet, "/api/steps", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Step
	f.decode(t, rec, &list)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].Ordinal)

	// Unnamed steps are rejected.
	rec = f.do(t, http.MethodPost, "/api/steps", map[string]interface{}{"sla_hours": 24})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Reorder flips the ordinals.
	rec = f.do(t, http.MethodPut, "/api/steps/reorder", map[string]interface{}{
		"ordered_ids": []string{s2.ID.Hex(), s1.ID.Hex()},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodGet, "/api/steps", nil)
	f.decode(t, rec, &list)
	assert.Equal(t, "Mechanical", list[0].Name)

	// A partial reorder is a bad request.
	rec = f.do(t, http.MethodPut, "/api/steps/reorder", map[string]interface{}{
		"ordered_ids": []string{s1.ID.Hex()},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/steps/"+s1.ID.Hex(), map[string]interface{}{"sla_hours": 72})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated models.Step
	f.decode(t, rec, &updated)
	assert.Equal(t, 72.0, updated.SLAHours)

	rec = f.do(t, http.MethodDelete, "/api/steps/"+s1.ID.Hex(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/steps/"+s1.ID.Hex(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteOccupiedStepConflicts(t *testing.T) {
	f := newAPIFixture(t)
	step := f.createStep(t, "Intake", 24)
	vehicle := f.createVehicle(t, "9186")

	rec := f.do(t, http.MethodPost, "/api/vehicles/"+vehicle.ID.Hex()+"/move", map[string]string{"step_id": step.ID.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodDelete, "/api/steps/"+step.ID.Hex(), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestVehicleProgressionEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	s1 := f.createStep(t, "Intake", 24)
	s2 := f.createStep(t, "Mechanical", 48)
	vehicle := f.createVehicle(t, "9186")

	rec := f.do(t, http.MethodPost, "/api/vehicles/"+vehicle.ID.Hex()+"/move", map[string]string{"step_id": s1.ID.Hex()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Moving into the current step is a conflict.
	rec = f.do(t, http.MethodPost, "/api/vehicles/"+vehicle.ID.Hex()+"/move", map[string]string{"step_id": s1.ID.Hex()})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/vehicles/"+vehicle.ID.Hex()+"/step-state", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view progression.StepStateView
	f.decode(t, rec, &view)
	assert.Equal(t, "Intake", view.Step.Name)
	assert.Equal(t, 1, view.DaysInStep)
	assert.Equal(t, models.BucketFresh, view.Bucket)

	rec = f.do(t, http.MethodPost, "/api/vehicles/"+vehicle.ID.Hex()+"/move", map[string]string{"step_id": s2.ID.Hex()})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/vehicles/"+vehicle.ID.Hex()+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []models.VehicleStepState
	f.decode(t, rec, &history)
	require.Len(t, history, 2)
	assert.NotNil(t, history[0].LeftStepAt)

	rec = f.do(t, http.MethodPost, "/api/vehicles/"+vehicle.ID.Hex()+"/move", map[string]string{"step_id": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkItemEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	vehicle := f.createVehicle(t, "9186")

	rec := f.do(t, http.MethodPost, "/api/work-items", map[string]interface{}{
		"vehicle_id": vehicle.ID.Hex(), "title": "Replace brake pads",
		"work_type": "mechanical", "approval_required": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var item models.WorkItem
	f.decode(t, rec, &item)
	id := item.ID.Hex()

	// Missing vehicle id is rejected up front.
	rec = f.do(t, http.MethodPost, "/api/work-items", map[string]interface{}{"title": "Orphan"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// The display status shows the approval gate.
	rec = f.do(t, http.MethodGet, "/api/work-items/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Item          models.WorkItem      `json:"item"`
		DisplayStatus models.DisplayStatus `json:"display_status"`
	}
	f.decode(t, rec, &view)
	assert.Equal(t, models.DisplayAwaitingApproval, view.DisplayStatus)

	// Starting before approval is a conflict.
	rec = f.do(t, http.MethodPost, "/api/work-items/"+id+"/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/work-items/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(t, http.MethodPost, "/api/work-items/"+id+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/work-items/"+id+"/complete", map[string]interface{}{"actual_cost": 312.50})
	require.Equal(t, http.StatusOK, rec.Code)
	f.decode(t, rec, &view)
	assert.Equal(t, models.WorkItemCompleted, view.Item.Status)
	assert.Equal(t, 312.50, view.Item.ActualCost)

	// The audit trail recorded the actor from the request context.
	rec = f.do(t, http.MethodGet, "/api/work-items/"+id+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []models.WorkItemTransition
	f.decode(t, rec, &history)
	require.NotEmpty(t, history)
	assert.Equal(t, "advisor", history[0].Actor)

	rec = f.do(t, http.MethodGet, "/api/vehicles/"+vehicle.ID.Hex()+"/work-items", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDeclineRequiresReason(t *testing.T) {
	f := newAPIFixture(t)
	vehicle := f.createVehicle(t, "9186")

	rec := f.do(t, http.MethodPost, "/api/work-items", map[string]interface{}{
		"vehicle_id": vehicle.ID.Hex(), "title": "Paint correction", "approval_required": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var item models.WorkItem
	f.decode(t, rec, &item)
	id := item.ID.Hex()

	rec = f.do(t, http.MethodPost, "/api/work-items/"+id+"/decline", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/work-items/"+id+"/decline", map[string]string{"reason": "over budget"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// A terminal item cannot be cancelled.
	rec = f.do(t, http.MethodPost, "/api/work-items/"+id+"/cancel", map[string]string{"reason": "cleanup"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTemplateEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	vehicle := f.createVehicle(t, "9186")

	rec := f.do(t, http.MethodPost, "/api/work-item-templates", map[string]interface{}{
		"name": "120-point inspection", "work_type": "safety_inspection", "estimated_hours": 2,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tpl models.WorkItemTemplate
	f.decode(t, rec, &tpl)

	rec = f.do(t, http.MethodPost, "/api/work-items/from-template", map[string]string{
		"template_id": tpl.ID.Hex(), "vehicle_id": vehicle.ID.Hex(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var item models.WorkItem
	f.decode(t, rec, &item)
	assert.Equal(t, "120-point inspection", item.Title)
	assert.Equal(t, models.WorkItemPending, item.Status)

	rec = f.do(t, http.MethodGet, "/api/work-item-templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var templates []models.WorkItemTemplate
	f.decode(t, rec, &templates)
	assert.Len(t, templates, 1)
}

func TestAlertAndSLAEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	step := f.createStep(t, "Mechanical", 24)
	vehicle := f.createVehicle(t, "9186")

	rec := f.do(t, http.MethodGet, "/api/alerts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/vehicles/"+vehicle.ID.Hex()+"/move", map[string]string{"step_id": step.ID.Hex()})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/steps/"+step.ID.Hex()+"/sla", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sla map[string]models.SLAStatus
	f.decode(t, rec, &sla)
	assert.Equal(t, models.SLAGreen, sla["sla_status"])

	rec = f.do(t, http.MethodGet, "/api/steps/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summaries []models.StepSummary
	f.decode(t, rec, &summaries)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].VehicleCount)
}

func TestNotificationEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	// The fixture's authenticated user has two unread notifications.
	for _, title := range []string{"Vehicle entered Mechanical", "Work item approved"} {
		require.NoError(t, f.store.InsertNotification(ctx, models.Notification{
			UserID: "u-test", Category: models.CategoryWorkItems, Title: title,
		}))
	}

	rec := f.do(t, http.MethodGet, "/api/notifications/unread-count", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var count map[string]int64
	f.decode(t, rec, &count)
	assert.Equal(t, int64(2), count["unread"])

	rec = f.do(t, http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Notification
	f.decode(t, rec, &list)
	require.Len(t, list, 2)

	rec = f.do(t, http.MethodPost, "/api/notifications/"+list[0].ID.Hex()+"/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/notifications?unread=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	f.decode(t, rec, &list)
	assert.Len(t, list, 1)

	// Preferences default, then round-trip.
	rec = f.do(t, http.MethodGet, "/api/notifications/preferences", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var pref models.NotificationPreference
	f.decode(t, rec, &pref)
	assert.Equal(t, "u-test", pref.UserID)

	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "08:00"
	pref.UserID = "someone-else" // must be overridden by the token identity
	rec = f.do(t, http.MethodPut, "/api/notifications/preferences", pref)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/notifications/preferences", nil)
	f.decode(t, rec, &pref)
	assert.Equal(t, "u-test", pref.UserID)
	assert.Equal(t, "22:00", pref.QuietHoursStart)
}
