package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mhutchcroft/sitework/internal/notify"
	"github.com/mhutchcroft/sitework/internal/store"
)

var startTime = time.Now()

type HealthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

func NewRouter(db *sql.DB, hub *notify.Hub) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/health", handleHealth)
	r.Get("/", handleRoot)
	r.Handle("/ws", &notify.Handler{Hub: hub})

	audit := store.NewAuditStore(db)

	users := &UsersHandler{Store: store.NewUserStore(db)}
	r.Post("/api/users", users.Create)
	r.Get("/api/users", users.List)
	r.Get("/api/users/{id}", users.Get)

	projects := &ProjectsHandler{Store: store.NewProjectStore(db), Audit: audit}
	r.Post("/api/projects", projects.Create)
	r.Get("/api/projects", projects.List)
	r.Get("/api/projects/{id}", projects.Get)
	r.Put("/api/projects/{id}", projects.Update)
	r.Get("/api/projects/{id}/budget", projects.Budget)

	tasks := &TasksHandler{
		Tasks:    store.NewTaskStore(db),
		Bindings: store.NewTaskServiceStore(db),
		Audit:    audit,
		Hub:      hub,
	}
	r.Post("/api/tasks", tasks.Create)
	r.Get("/api/tasks", tasks.List)
	r.Get("/api/tasks/{id}", tasks.Get)
	r.Delete("/api/tasks/{id}", tasks.Delete)
	r.Patch("/api/tasks/{id}/progress", tasks.UpdateProgress)
	r.Patch("/api/tasks/{id}/status", tasks.UpdateStatus)
	r.Get("/api/tasks/{id}/services", tasks.ListServices)
	r.Post("/api/tasks/{id}/services", tasks.AddService)
	r.Delete("/api/tasks/{id}/services/{serviceID}", tasks.RemoveService)

	services := &ServicesHandler{Store: store.NewServiceStore(db), Audit: audit}
	r.Post("/api/services", services.Create)
	r.Get("/api/services", services.List)
	r.Get("/api/services/{id}", services.Get)
	r.Patch("/api/services/{id}", services.Update)
	r.Post("/api/services/{id}/deactivate", services.Deactivate)

	materialStore := store.NewMaterialStore(db)
	materials := &MaterialsHandler{Store: materialStore, Audit: audit, Hub: hub}
	r.Post("/api/materials", materials.Create)
	r.Get("/api/materials", materials.List)
	r.Get("/api/materials/{id}", materials.Get)
	r.Put("/api/materials/{id}", materials.Update)
	r.Post("/api/materials/{id}/stock/add", materials.AddStock)
	r.Post("/api/materials/{id}/stock/remove", materials.RemoveStock)

	requests := &MaterialRequestsHandler{
		Requests:  store.NewMaterialRequestStore(db),
		Materials: materialStore,
		Audit:     audit,
		Hub:       hub,
	}
	r.Post("/api/material-requests", requests.Create)
	r.Get("/api/material-requests", requests.List)
	r.Get("/api/material-requests/{id}", requests.Get)
	r.Post("/api/material-requests/{id}/approve", requests.Approve)
	r.Post("/api/material-requests/{id}/reject", requests.Reject)

	auditHandler := &AuditHandler{Store: audit}
	r.Get("/api/audit", auditHandler.List)

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Version:   getVersion(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]string{
		"name":   "Sitework",
		"about":  "Cost, progress, and stock consistency engine for construction projects",
		"health": "/health",
	})
}

func getVersion() string {
	if v := os.Getenv("VERSION"); v != "" {
		return v
	}
	return "dev"
}
