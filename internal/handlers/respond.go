package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/ukydev/vehicle-recon/internal/db"
	"github.com/ukydev/vehicle-recon/internal/progression"
	"github.com/ukydev/vehicle-recon/internal/steps"
	"github.com/ukydev/vehicle-recon/internal/workitems"
)

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// writeError maps engine errors onto HTTP statuses. Precondition failures
// are conflicts, not server faults.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, workitems.ErrMissingReason),
		errors.Is(err, workitems.ErrInvalidWorkType),
		errors.Is(err, workitems.ErrInvalidPriority),
		errors.Is(err, steps.ErrNameRequired),
		errors.Is(err, steps.ErrBadOrder):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, workitems.ErrInvalidTransition),
		errors.Is(err, steps.ErrStepInUse),
		errors.Is(err, steps.ErrOrdinalConflict),
		errors.Is(err, progression.ErrAlreadyInStep):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.WithError(err).Error("Request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// decodeBody unmarshals a JSON request body into out.
func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}
