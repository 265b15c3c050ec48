package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mhutchcroft/sitework/internal/store"
)

// ProjectsHandler serves projects and their derived budget view.
type ProjectsHandler struct {
	Store *store.ProjectStore
	Audit *store.AuditStore
}

func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string  `json:"name"`
		Description *string `json:"description"`
		TotalBudget float64 `json:"total_budget"`
	}
	if err := decodeJSON(r, &req); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	project, err := h.Store.Create(r.Context(), store.CreateProjectInput{
		Name:        req.Name,
		Description: req.Description,
		TotalBudget: req.TotalBudget,
	})
	if err != nil {
		handleStoreError(w, err)
		return
	}

	recordAudit(h.Audit, store.RecordAuditInput{
		EntityKind: "project",
		EntityID:   &project.ID,
		Action:     "created",
		Metadata:   auditMetadata(map[string]string{"name": project.Name}),
	})

	sendJSON(w, http.StatusCreated, project)
}

func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Store.List(r.Context())
	if err != nil {
		handleStoreError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, projects)
}

func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	project, err := h.Store.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, project)
}

func (h *ProjectsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string  `json:"name"`
		Description *string `json:"description"`
		Status      string  `json:"status"`
		TotalBudget float64 `json:"total_budget"`
	}
	if err := decodeJSON(r, &req); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	project, err := h.Store.Update(r.Context(), chi.URLParam(r, "id"), store.UpdateProjectInput{
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		TotalBudget: req.TotalBudget,
	})
	if err != nil {
		handleStoreError(w, err)
		return
	}

	recordAudit(h.Audit, store.RecordAuditInput{
		EntityKind: "project",
		EntityID:   &project.ID,
		Action:     "updated",
		Metadata:   auditMetadata(map[string]string{"name": project.Name, "status": project.Status}),
	})

	sendJSON(w, http.StatusOK, project)
}

// Budget returns the read-time budget consistency view. Nothing is cached or
// stored; the figures derive from the project row as it stands.
func (h *ProjectsHandler) Budget(w http.ResponseWriter, r *http.Request) {
	view, err := h.Store.Budget(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, view)
}
