package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mhutchcroft/sitework/internal/notify"
	"github.com/mhutchcroft/sitework/internal/store"
)

// MaterialsHandler serves the material inventory and its stock ledger.
type MaterialsHandler struct {
	Store *store.MaterialStore
	Audit *store.AuditStore
	Hub   *notify.Hub
}

func (h *MaterialsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string  `json:"name"`
		Unit         string  `json:"unit"`
		CurrentStock float64 `json:"current_stock"`
		MinimumStock float64 `json:"minimum_stock"`
		UnitPrice    float64 `json:"unit_price"`
		Supplier     string  `json:"supplier"`
	}
	if err := decodeJSON(r, &req); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	material, err := h.Store.Create(r.Context(), store.CreateMaterialInput{
		Name:         req.Name,
		Unit:         req.Unit,
		CurrentStock: req.CurrentStock,
		MinimumStock: req.MinimumStock,
		UnitPrice:    req.UnitPrice,
		Supplier:     req.Supplier,
	})
	if err != nil {
		handleStoreError(w, err)
		return
	}

	recordAudit(h.Audit, store.RecordAuditInput{
		EntityKind: "material",
		EntityID:   &material.ID,
		Action:     "created",
		Metadata:   auditMetadata(map[string]string{"name": material.Name}),
	})

	sendJSON(w, http.StatusCreated, material)
}

func (h *MaterialsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.MaterialFilter{
		ActiveOnly:   r.URL.Query().Get("active") == "true",
		BelowMinimum: r.URL.Query().Get("below_minimum") == "true",
	}

	materials, err := h.Store.List(r.Context(), filter)
	if err != nil {
		handleStoreError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, materials)
}

func (h *MaterialsHandler) Get(w http.ResponseWriter, r *http.Request) {
	material, err := h.Store.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, material)
}

func (h *MaterialsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string  `json:"name"`
		Unit         string  `json:"unit"`
		MinimumStock float64 `json:"minimum_stock"`
		UnitPrice    float64 `json:"unit_price"`
		Supplier     string  `json:"supplier"`
		Active       bool    `json:"active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	material, err := h.Store.Update(r.Context(), chi.URLParam(r, "id"), store.UpdateMaterialInput{
		Name:         req.Name,
		Unit:         req.Unit,
		MinimumStock: req.MinimumStock,
		UnitPrice:    req.UnitPrice,
		Supplier:     req.Supplier,
		Active:       req.Active,
	})
	if err != nil {
		handleStoreError(w, err)
		return
	}

	recordAudit(h.Audit, store.RecordAuditInput{
		EntityKind: "material",
		EntityID:   &material.ID,
		Action:     "updated",
		Metadata:   auditMetadata(map[string]string{"name": material.Name}),
	})
	h.publishLowStock(material)

	sendJSON(w, http.StatusOK, material)
}

func (h *MaterialsHandler) AddStock(w http.ResponseWriter, r *http.Request) {
	h.moveStock(w, r, "stock_added", h.Store.AddStock)
}

func (h *MaterialsHandler) RemoveStock(w http.ResponseWriter, r *http.Request) {
	h.moveStock(w, r, "stock_removed", h.Store.RemoveStock)
}

func (h *MaterialsHandler) moveStock(
	w http.ResponseWriter,
	r *http.Request,
	action string,
	move func(ctx context.Context, id string, qty float64) (*store.Material, error),
) {
	var req struct {
		Quantity float64 `json:"quantity"`
	}
	if err := decodeJSON(r, &req); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	material, err := move(r.Context(), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		handleStoreError(w, err)
		return
	}

	recordAudit(h.Audit, store.RecordAuditInput{
		EntityKind: "material",
		EntityID:   &material.ID,
		Action:     action,
		Metadata: auditMetadata(map[string]float64{
			"quantity":      req.Quantity,
			"current_stock": material.CurrentStock,
		}),
	})
	h.publishLowStock(material)

	sendJSON(w, http.StatusOK, material)
}

// publishLowStock notifies listeners when a material sits at or under its
// minimum after a mutation.
func (h *MaterialsHandler) publishLowStock(material *store.Material) {
	if h.Hub == nil || !material.BelowMinimum {
		return
	}
	h.Hub.Publish(notify.EventStockBelowMinimum, material)
}
