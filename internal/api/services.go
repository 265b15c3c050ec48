package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mhutchcroft/sitework/internal/store"
)

// ServicesHandler serves the billable service catalog.
type ServicesHandler struct {
	Store *store.ServiceStore
	Audit *store.AuditStore
}

func (h *ServicesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name              string  `json:"name"`
		Unit              string  `json:"unit"`
		UnitLaborCost     float64 `json:"unit_labor_cost"`
		UnitMaterialCost  float64 `json:"unit_material_cost"`
		UnitEquipmentCost float64 `json:"unit_equipment_cost"`
	}
	if err := decodeJSON(r, &req); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	service, err := h.Store.Create(r.Context(), store.CreateServiceInput{
		Name:              req.Name,
		Unit:              req.Unit,
		UnitLaborCost:     req.UnitLaborCost,
		UnitMaterialCost:  req.UnitMaterialCost,
		UnitEquipmentCost: req.UnitEquipmentCost,
	})
	if err != nil {
		handleStoreError(w, err)
		return
	}

	recordAudit(h.Audit, store.RecordAuditInput{
		EntityKind: "service",
		EntityID:   &service.ID,
		Action:     "created",
		Metadata: auditMetadata(map[string]interface{}{
			"name":            service.Name,
			"total_unit_cost": service.TotalUnitCost(),
		}),
	})

	sendJSON(w, http.StatusCreated, service)
}

func (h *ServicesHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.ServiceFilter{
		ActiveOnly: r.URL.Query().Get("active") == "true",
	}

	services, err := h.Store.List(r.Context(), filter)
	if err != nil {
		handleStoreError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, services)
}

func (h *ServicesHandler) Get(w http.ResponseWriter, r *http.Request) {
	service, err := h.Store.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, service)
}

func (h *ServicesHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name              string  `json:"name"`
		Unit              string  `json:"unit"`
		UnitLaborCost     float64 `json:"unit_labor_cost"`
		UnitMaterialCost  float64 `json:"unit_material_cost"`
		UnitEquipmentCost float64 `json:"unit_equipment_cost"`
	}
	if err := decodeJSON(r, &req); err != nil {
		sendJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON"})
		return
	}

	service, err := h.Store.Update(r.Context(), chi.URLParam(r, "id"), store.UpdateServiceInput{
		Name:              req.Name,
		Unit:              req.Unit,
		UnitLaborCost:     req.UnitLaborCost,
		UnitMaterialCost:  req.UnitMaterialCost,
		UnitEquipmentCost: req.UnitEquipmentCost,
	})
	if err != nil {
		handleStoreError(w, err)
		return
	}

	recordAudit(h.Audit, store.RecordAuditInput{
		EntityKind: "service",
		EntityID:   &service.ID,
		Action:     "updated",
		Metadata: auditMetadata(map[string]interface{}{
			"name":            service.Name,
			"total_unit_cost": service.TotalUnitCost(),
		}),
	})

	sendJSON(w, http.StatusOK, service)
}

func (h *ServicesHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	service, err := h.Store.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, err)
		return
	}

	recordAudit(h.Audit, store.RecordAuditInput{
		EntityKind: "service",
		EntityID:   &service.ID,
		Action:     "deactivated",
	})

	sendJSON(w, http.StatusOK, service)
}
