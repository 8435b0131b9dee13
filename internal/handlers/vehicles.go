package handlers

import (
	"net/http"

	"github.com/ukydev/vehicle-recon/internal/db"
	"github.com/ukydev/vehicle-recon/internal/models"
	"github.com/ukydev/vehicle-recon/internal/progression"
)

// VehicleHandler exposes vehicles and their pipeline progression over HTTP.
type VehicleHandler struct {
	vehicles db.VehicleCollection
	tracker  *progression.Tracker
}

// NewVehicleHandler creates a vehicle handler.
func NewVehicleHandler(vehicles db.VehicleCollection, tracker *progression.Tracker) *VehicleHandler {
	return &VehicleHandler{vehicles: vehicles, tracker: tracker}
}

// Create registers a vehicle entering reconditioning.
func (h *VehicleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var vehicle models.Vehicle
	if !decodeBody(w, r, &vehicle) {
		return
	}
	if vehicle.Status == "" {
		vehicle.Status = "in_recon"
	}
	id, err := h.vehicles.InsertVehicle(r.Context(), vehicle)
	if err != nil {
		writeError(w, err)
		return
	}
	created, err := h.vehicles.FindVehicleByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// List returns all vehicles.
func (h *VehicleHandler) List(w http.ResponseWriter, r *http.Request) {
	vehicles, err := h.vehicles.FindVehicles(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicles)
}

// Get returns one vehicle.
func (h *VehicleHandler) Get(w http.ResponseWriter, r *http.Request) {
	vehicle, err := h.vehicles.FindVehicleByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vehicle)
}

// Move advances a vehicle into another step.
func (h *VehicleHandler) Move(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StepID string `json:"step_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.StepID == "" {
		http.Error(w, "step_id is required", http.StatusBadRequest)
		return
	}
	if err := h.tracker.MoveToStep(r.Context(), r.PathValue("id"), req.StepID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Vehicle moved"})
}

// StepState returns the vehicle's current step, dwell days and day bucket.
func (h *VehicleHandler) StepState(w http.ResponseWriter, r *http.Request) {
	state, err := h.tracker.GetVehicleStepState(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// History returns the vehicle's full progression history.
func (h *VehicleHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.tracker.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
