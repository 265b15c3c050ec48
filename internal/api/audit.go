package api

import (
	"net/http"
	"strconv"

	"github.com/mhutchcroft/sitework/internal/store"
)

// AuditHandler serves the read side of the audit log.
type AuditHandler struct {
	Store *store.AuditStore
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.AuditFilter{
		EntityKind: r.URL.Query().Get("entity_kind"),
	}
	if entityID := r.URL.Query().Get("entity_id"); entityID != "" {
		filter.EntityID = &entityID
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			filter.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			filter.Offset = n
		}
	}

	entries, err := h.Store.List(r.Context(), filter)
	if err != nil {
		handleStoreError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, entries)
}
