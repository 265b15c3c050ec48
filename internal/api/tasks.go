package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mhutchcroft/sitework/internal/notify"
	"github.com/mhutchcroft/sitework/internal/store"
)

// TasksHandler serves tasks and their service bindings.
type TasksHandler struct {
	Tasks    *store.TaskStore
	Bindings *store.TaskServiceStore
	Audit    *store.AuditStore
	Hub      *notify.Hub
}

func (h *TasksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID   string  `json:"project_id"`
		Name        string  `json:"name"`
		Description *string `json:"description"`
	}
	if err := decodeJSON(r, &req); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	task, err := h.Tasks.Create(r.Context(), store.CreateTaskInput{
		ProjectID:   req.ProjectID,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		handleStoreError(w, err)
		return
	}

	recordAudit(h.Audit, store.RecordAuditInput{
		EntityKind: "task",
		EntityID:   &task.ID,
		Action:     "created",
		Metadata:   auditMetadata(map[string]string{"name": task.Name, "project_id": task.ProjectID}),
	})

	sendJSON(w, http.StatusCreated, task)
}

func (h *TasksHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.TaskFilter{
		Status: r.URL.Query().Get("status"),
	}
	if projectID := r.URL.Query().Get("project_id"); projectID != "" {
		filter.ProjectID = &projectID
	}

	tasks, err := h.Tasks.List(r.Context(), filter)
	if err != nil {
		handleStoreError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, tasks)
}

func (h *TasksHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.Tasks.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, task)
}

func (h *TasksHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Progress int `json:"progress"`
	}
	if err := decodeJSON(r, &req); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	task, err := h.Tasks.UpdateProgress(r.Context(), chi.URLParam(r, "id"), req.Progress)
	if err != nil {
		handleStoreError(w, err)
		return
	}

	recordAudit(h.Audit, store.RecordAuditInput{
		EntityKind: "task",
		EntityID:   &task.ID,
		Action:     "progress_updated",
		Metadata:   auditMetadata(map[string]int{"progress": task.Progress}),
	})

	sendJSON(w, http.StatusOK, task)
}

func (h *TasksHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	task, err := h.Tasks.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		handleStoreError(w, err)
		return
	}

	recordAudit(h.Audit, store.RecordAuditInput{
		EntityKind: "task",
		EntityID:   &task.ID,
		Action:     "status_updated",
		Metadata:   auditMetadata(map[string]string{"status": task.Status}),
	})

	sendJSON(w, http.StatusOK, task)
}

func (h *TasksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Tasks.Delete(r.Context(), id); err != nil {
		handleStoreError(w, err)
		return
	}

	recordAudit(h.Audit, store.RecordAuditInput{
		EntityKind: "task",
		EntityID:   &id,
		Action:     "deleted",
	})

	w.WriteHeader(http.StatusNoContent)
}

func (h *TasksHandler) AddService(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ServiceID    string   `json:"service_id"`
		Quantity     float64  `json:"quantity"`
		CostOverride *float64 `json:"cost_override"`
		Note         *string  `json:"note"`
	}
	if err := decodeJSON(r, &req); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	taskID := chi.URLParam(r, "id")
	binding, err := h.Bindings.Add(r.Context(), store.AddTaskServiceInput{
		TaskID:       taskID,
		ServiceID:    req.ServiceID,
		Quantity:     req.Quantity,
		CostOverride: req.CostOverride,
		Note:         req.Note,
	})
	if err != nil {
		handleStoreError(w, err)
		return
	}

	h.publishCosts(r, taskID)
	recordAudit(h.Audit, store.RecordAuditInput{
		EntityKind: "task",
		EntityID:   &taskID,
		Action:     "service_bound",
		Metadata:   auditMetadata(map[string]string{"service_id": binding.ServiceID}),
	})

	sendJSON(w, http.StatusCreated, binding)
}

func (h *TasksHandler) RemoveService(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")
	serviceID := chi.URLParam(r, "serviceID")

	if err := h.Bindings.Remove(r.Context(), taskID, serviceID); err != nil {
		handleStoreError(w, err)
		return
	}

	h.publishCosts(r, taskID)
	recordAudit(h.Audit, store.RecordAuditInput{
		EntityKind: "task",
		EntityID:   &taskID,
		Action:     "service_unbound",
		Metadata:   auditMetadata(map[string]string{"service_id": serviceID}),
	})

	w.WriteHeader(http.StatusNoContent)
}

func (h *TasksHandler) ListServices(w http.ResponseWriter, r *http.Request) {
	bindings, err := h.Bindings.ListByTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, bindings)
}

// publishCosts pushes the freshly recomputed task to connected clients. The
// aggregates were already committed; a failed lookup here only skips the
// notification.
func (h *TasksHandler) publishCosts(r *http.Request, taskID string) {
	if h.Hub == nil {
		return
	}

	task, err := h.Tasks.GetByID(r.Context(), taskID)
	if err != nil {
		return
	}
	h.Hub.Publish(notify.EventTaskCostsRecalculated, task)
}
