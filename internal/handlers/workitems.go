package handlers

import (
	"net/http"

	"github.com/ukydev/vehicle-recon/internal/db"
	"github.com/ukydev/vehicle-recon/internal/middleware"
	"github.com/ukydev/vehicle-recon/internal/models"
	"github.com/ukydev/vehicle-recon/internal/workitems"
)

// WorkItemHandler exposes the work item lifecycle over HTTP.
type WorkItemHandler struct {
	service   *workitems.Service
	templates db.TemplateCollection
}

// NewWorkItemHandler creates a work item handler.
func NewWorkItemHandler(service *workitems.Service, templates db.TemplateCollection) *WorkItemHandler {
	return &WorkItemHandler{service: service, templates: templates}
}

// actor resolves the acting username from the request context.
func actor(r *http.Request) string {
	if claims, ok := middleware.GetUserFromContext(r.Context()); ok {
		return claims.Username
	}
	return "system"
}

// Create stores a new pending work item.
func (h *WorkItemHandler) Create(w http.ResponseWriter, r *http.Request) {
	var item models.WorkItem
	if !decodeBody(w, r, &item) {
		return
	}
	if item.VehicleID == "" {
		http.Error(w, "vehicle_id is required", http.StatusBadRequest)
		return
	}
	created, err := h.service.Create(r.Context(), item)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// CreateFromTemplate instantiates a template for a vehicle.
func (h *WorkItemHandler) CreateFromTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TemplateID string `json:"template_id"`
		VehicleID  string `json:"vehicle_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TemplateID == "" || req.VehicleID == "" {
		http.Error(w, "template_id and vehicle_id are required", http.StatusBadRequest)
		return
	}
	created, err := h.service.CreateFromTemplate(r.Context(), req.TemplateID, req.VehicleID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Get returns one work item with its derived display status.
func (h *WorkItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemView(item))
}

// ListByVehicle returns a vehicle's work items.
func (h *WorkItemHandler) ListByVehicle(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListByVehicle(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]map[string]interface{}, 0, len(items))
	for i := range items {
		views = append(views, itemView(&items[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

// Update edits descriptive fields of an item.
func (h *WorkItemHandler) Update(w http.ResponseWriter, r *http.Request) {
	var edit models.WorkItem
	if !decodeBody(w, r, &edit) {
		return
	}
	updated, err := h.service.Update(r.Context(), r.PathValue("id"), edit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemView(updated))
}

// Approve lifts the approval gate.
func (h *WorkItemHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.verb(w, r, func() (*models.WorkItem, error) {
		return h.service.Approve(r.Context(), r.PathValue("id"), actor(r))
	})
}

// Decline rejects an approval-gated item.
func (h *WorkItemHandler) Decline(w http.ResponseWriter, r *http.Request) {
	reason, ok := reasonFrom(w, r)
	if !ok {
		return
	}
	h.verb(w, r, func() (*models.WorkItem, error) {
		return h.service.Decline(r.Context(), r.PathValue("id"), actor(r), reason)
	})
}

// Schedule books a pending item.
func (h *WorkItemHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	h.verb(w, r, func() (*models.WorkItem, error) {
		return h.service.Schedule(r.Context(), r.PathValue("id"), actor(r))
	})
}

// Start begins work on an item.
func (h *WorkItemHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.verb(w, r, func() (*models.WorkItem, error) {
		return h.service.Start(r.Context(), r.PathValue("id"), actor(r))
	})
}

// Pause puts an item on hold.
func (h *WorkItemHandler) Pause(w http.ResponseWriter, r *http.Request) {
	reason, ok := reasonFrom(w, r)
	if !ok {
		return
	}
	h.verb(w, r, func() (*models.WorkItem, error) {
		return h.service.Pause(r.Context(), r.PathValue("id"), actor(r), reason)
	})
}

// Resume returns an on-hold item to in progress.
func (h *WorkItemHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.verb(w, r, func() (*models.WorkItem, error) {
		return h.service.Resume(r.Context(), r.PathValue("id"), actor(r))
	})
}

// Block marks an in-progress item blocked.
func (h *WorkItemHandler) Block(w http.ResponseWriter, r *http.Request) {
	reason, ok := reasonFrom(w, r)
	if !ok {
		return
	}
	h.verb(w, r, func() (*models.WorkItem, error) {
		return h.service.Block(r.Context(), r.PathValue("id"), actor(r), reason)
	})
}

// Unblock returns a blocked item to in progress.
func (h *WorkItemHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	h.verb(w, r, func() (*models.WorkItem, error) {
		return h.service.Unblock(r.Context(), r.PathValue("id"), actor(r))
	})
}

// Complete finishes an in-progress item.
func (h *WorkItemHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActualCost  float64  `json:"actual_cost"`
		ActualHours *float64 `json:"actual_hours"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	h.verb(w, r, func() (*models.WorkItem, error) {
		return h.service.Complete(r.Context(), r.PathValue("id"), actor(r), req.ActualCost, req.ActualHours)
	})
}

// Cancel abandons a non-terminal item.
func (h *WorkItemHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	reason, ok := reasonFrom(w, r)
	if !ok {
		return
	}
	h.verb(w, r, func() (*models.WorkItem, error) {
		return h.service.Cancel(r.Context(), r.PathValue("id"), actor(r), reason)
	})
}

// Delete removes an item irreversibly. The UI confirms before calling.
func (h *WorkItemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Work item deleted"})
}

// History returns an item's transition audit trail.
func (h *WorkItemHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.service.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// CreateTemplate stores a work item template.
func (h *WorkItemHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl models.WorkItemTemplate
	if !decodeBody(w, r, &tpl) {
		return
	}
	if tpl.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	id, err := h.templates.InsertTemplate(r.Context(), tpl)
	if err != nil {
		writeError(w, err)
		return
	}
	created, err := h.templates.FindTemplateByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// ListTemplates returns all work item templates.
func (h *WorkItemHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templates.FindTemplates(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, templates)
}

// verb runs a transition and writes the resulting item.
func (h *WorkItemHandler) verb(w http.ResponseWriter, r *http.Request, fn func() (*models.WorkItem, error)) {
	item, err := fn()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, itemView(item))
}

// reasonFrom decodes the optional-or-mandatory reason body. Mandatory-ness
// is enforced by the service, not here.
func reasonFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength == 0 {
		return "", true
	}
	if !decodeBody(w, r, &req) {
		return "", false
	}
	return req.Reason, true
}

// itemView augments a work item with its derived display status.
func itemView(item *models.WorkItem) map[string]interface{} {
	return map[string]interface{}{
		"item":           item,
		"display_status": item.DeriveDisplayStatus(),
	}
}
