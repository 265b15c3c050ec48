package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	_ "github.com/lib/pq"

	"github.com/mhutchcroft/sitework/internal/alerts"
	"github.com/mhutchcroft/sitework/internal/api"
	"github.com/mhutchcroft/sitework/internal/automigrate"
	"github.com/mhutchcroft/sitework/internal/config"
	"github.com/mhutchcroft/sitework/internal/notify"
	"github.com/mhutchcroft/sitework/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	if cfg.AutoMigrate {
		if err := automigrate.Run(db, cfg.MigrationsDir); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	hub := notify.NewHub()
	go hub.Run()

	if cfg.StockAlerts.Enabled {
		worker := alerts.NewWorker(store.NewMaterialStore(db), hub, alerts.WorkerConfig{
			PollInterval: cfg.StockAlerts.PollInterval,
			Limit:        cfg.StockAlerts.Limit,
		})
		worker.Logf = log.Printf
		go worker.Start(context.Background())
	}

	router := api.NewRouter(db, hub)

	log.Printf("🏗️  Sitework starting on port %s (%s)", cfg.Port, cfg.Environment)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
