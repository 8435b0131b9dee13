package handlers

import (
	"net/http"

	"github.com/ukydev/vehicle-recon/internal/bottleneck"
	"github.com/ukydev/vehicle-recon/internal/models"
	"github.com/ukydev/vehicle-recon/internal/steps"
)

// StepHandler exposes the step registry over HTTP.
type StepHandler struct {
	registry *steps.Registry
	detector *bottleneck.Detector
}

// NewStepHandler creates a step handler.
func NewStepHandler(registry *steps.Registry, detector *bottleneck.Detector) *StepHandler {
	return &StepHandler{registry: registry, detector: detector}
}

// List returns every step ordered by ordinal.
func (h *StepHandler) List(w http.ResponseWriter, r *http.Request) {
	stepList, err := h.registry.ListSteps(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stepList)
}

// Create appends a new step to the pipeline.
func (h *StepHandler) Create(w http.ResponseWriter, r *http.Request) {
	var step models.Step
	if !decodeBody(w, r, &step) {
		return
	}
	created, err := h.registry.CreateStep(r.Context(), step)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Update patches a step's configuration.
func (h *StepHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch models.StepPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	updated, err := h.registry.UpdateStep(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete removes an unoccupied step.
func (h *StepHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.DeleteStep(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Step deleted"})
}

// Reorder reassigns ordinals following the posted id order.
func (h *StepHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderedIDs []string `json:"ordered_ids"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.registry.ReorderSteps(r.Context(), req.OrderedIDs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Steps reordered"})
}

// Assign replaces the user set notified for a step and role.
func (h *StepHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserIDs []string `json:"user_ids"`
		Role    string   `json:"role"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.registry.AssignUsers(r.Context(), r.PathValue("id"), req.UserIDs, req.Role); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Assignments replaced"})
}

// SLAStatus returns the traffic-light health of one step.
func (h *StepHandler) SLAStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.detector.ComputeSLAStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.SLAStatus{"sla_status": status})
}

// Summary returns per-step occupancy aggregates for the dashboard.
func (h *StepHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.detector.Summarize(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// Alerts recomputes and returns the current bottleneck alerts.
func (h *StepHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.detector.ComputeAlerts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if alerts == nil {
		alerts = []models.BottleneckAlert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}
