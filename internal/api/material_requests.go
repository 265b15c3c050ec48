package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mhutchcroft/sitework/internal/notify"
	"github.com/mhutchcroft/sitework/internal/store"
)

// MaterialRequestsHandler serves the material request approval workflow.
type MaterialRequestsHandler struct {
	Requests  *store.MaterialRequestStore
	Materials *store.MaterialStore
	Audit     *store.AuditStore
	Hub       *notify.Hub
}

func (h *MaterialRequestsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID   string     `json:"project_id"`
		RequesterID string     `json:"requester_id"`
		NeededBy    *time.Time `json:"needed_by"`
		Note        *string    `json:"note"`
		Items       []struct {
			MaterialID string  `json:"material_id"`
			Quantity   float64 `json:"quantity"`
		} `json:"items"`
	}
	if err := decodeJSON(r, &req); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	items := make([]store.RequestItemInput, len(req.Items))
	for i, item := range req.Items {
		items[i] = store.RequestItemInput{MaterialID: item.MaterialID, Quantity: item.Quantity}
	}

	request, err := h.Requests.Create(r.Context(), store.CreateMaterialRequestInput{
		ProjectID:   req.ProjectID,
		RequesterID: req.RequesterID,
		NeededBy:    req.NeededBy,
		Note:        req.Note,
		Items:       items,
	})
	if err != nil {
		handleStoreError(w, err)
		return
	}

	recordAudit(h.Audit, store.RecordAuditInput{
		EntityKind: "material_request",
		EntityID:   &request.ID,
		Action:     "created",
		ActorID:    &request.RequesterID,
		Metadata:   auditMetadata(map[string]interface{}{"project_id": request.ProjectID, "items": len(request.Items)}),
	})
	if h.Hub != nil {
		h.Hub.Publish(notify.EventMaterialRequestCreated, request)
	}

	sendJSON(w, http.StatusCreated, request)
}

func (h *MaterialRequestsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.MaterialRequestFilter{
		Status: r.URL.Query().Get("status"),
	}
	if projectID := r.URL.Query().Get("project_id"); projectID != "" {
		filter.ProjectID = &projectID
	}

	requests, err := h.Requests.List(r.Context(), filter)
	if err != nil {
		handleStoreError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, requests)
}

func (h *MaterialRequestsHandler) Get(w http.ResponseWriter, r *http.Request) {
	request, err := h.Requests.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, request)
}

// Approve deducts stock for every item and marks the request approved in one
// transaction. Afterwards any material the approval pushed to or under its
// minimum is announced to listeners.
func (h *MaterialRequestsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ApproverID string `json:"approver_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	request, err := h.Requests.Approve(r.Context(), chi.URLParam(r, "id"), req.ApproverID)
	if err != nil {
		handleStoreError(w, err)
		return
	}

	recordAudit(h.Audit, store.RecordAuditInput{
		EntityKind: "material_request",
		EntityID:   &request.ID,
		Action:     "approved",
		ActorID:    request.ApproverID,
	})
	if h.Hub != nil {
		h.Hub.Publish(notify.EventMaterialRequestApproved, request)
		h.publishLowStock(r, request)
	}

	sendJSON(w, http.StatusOK, request)
}

func (h *MaterialRequestsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ApproverID string `json:"approver_id"`
		Reason     string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	request, err := h.Requests.Reject(r.Context(), chi.URLParam(r, "id"), req.ApproverID, req.Reason)
	if err != nil {
		handleStoreError(w, err)
		return
	}

	recordAudit(h.Audit, store.RecordAuditInput{
		EntityKind: "material_request",
		EntityID:   &request.ID,
		Action:     "rejected",
		ActorID:    request.ApproverID,
		Metadata:   auditMetadata(map[string]string{"reason": req.Reason}),
	})
	if h.Hub != nil {
		h.Hub.Publish(notify.EventMaterialRequestRejected, request)
	}

	sendJSON(w, http.StatusOK, request)
}

func (h *MaterialRequestsHandler) publishLowStock(r *http.Request, request *store.MaterialRequest) {
	if h.Materials == nil {
		return
	}

	for _, item := range request.Items {
		material, err := h.Materials.GetByID(r.Context(), item.MaterialID)
		if err != nil || !material.BelowMinimum {
			continue
		}
		h.Hub.Publish(notify.EventStockBelowMinimum, material)
	}
}
