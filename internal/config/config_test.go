package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "DATABASE_URL", "APP_ENV", "ENVIRONMENT", "GO_ENV",
		"MIGRATIONS_DIR", "AUTO_MIGRATE",
		"STOCK_ALERTS_ENABLED", "STOCK_ALERTS_POLL_INTERVAL", "STOCK_ALERTS_LIMIT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != defaultPort {
		t.Fatalf("expected default port %q, got %q", defaultPort, cfg.Port)
	}
	if cfg.Environment != defaultEnvironment {
		t.Fatalf("expected default environment %q, got %q", defaultEnvironment, cfg.Environment)
	}
	if cfg.MigrationsDir != defaultMigrationsDir {
		t.Fatalf("expected default migrations dir %q, got %q", defaultMigrationsDir, cfg.MigrationsDir)
	}
	if !cfg.AutoMigrate {
		t.Fatal("expected auto-migrate to default to true")
	}
	if !cfg.StockAlerts.Enabled {
		t.Fatal("expected stock alerts to default to enabled")
	}
	if cfg.StockAlerts.PollInterval != defaultStockAlertsPollInterval {
		t.Fatalf("expected default poll interval %v, got %v", defaultStockAlertsPollInterval, cfg.StockAlerts.PollInterval)
	}
	if cfg.StockAlerts.Limit != defaultStockAlertsLimit {
		t.Fatalf("expected default limit %d, got %d", defaultStockAlertsLimit, cfg.StockAlerts.Limit)
	}
}

func TestLoadReadsEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/sitework")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("AUTO_MIGRATE", "false")
	t.Setenv("STOCK_ALERTS_POLL_INTERVAL", "30s")
	t.Setenv("STOCK_ALERTS_LIMIT", "25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://localhost/sitework" {
		t.Fatalf("unexpected database URL %q", cfg.DatabaseURL)
	}
	if cfg.Environment != "production" {
		t.Fatalf("expected environment to be lowercased, got %q", cfg.Environment)
	}
	if cfg.AutoMigrate {
		t.Fatal("expected auto-migrate to be disabled")
	}
	if cfg.StockAlerts.PollInterval != 30*time.Second {
		t.Fatalf("expected 30s poll interval, got %v", cfg.StockAlerts.PollInterval)
	}
	if cfg.StockAlerts.Limit != 25 {
		t.Fatalf("expected limit 25, got %d", cfg.StockAlerts.Limit)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("STOCK_ALERTS_POLL_INTERVAL", "soon")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "STOCK_ALERTS_POLL_INTERVAL") {
		t.Fatalf("expected poll interval error, got %v", err)
	}

	t.Setenv("STOCK_ALERTS_POLL_INTERVAL", "")
	t.Setenv("AUTO_MIGRATE", "maybe")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "AUTO_MIGRATE") {
		t.Fatalf("expected auto-migrate error, got %v", err)
	}

	t.Setenv("AUTO_MIGRATE", "")
	t.Setenv("STOCK_ALERTS_LIMIT", "0")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "STOCK_ALERTS_LIMIT") {
		t.Fatalf("expected limit error, got %v", err)
	}
}

func TestLoadDotEnvDoesNotOverrideExistingVars(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	contents := "PORT=4000\nDATABASE_URL=\"postgres://dotenv/db\"\n# comment\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	loadDotEnv(path)

	if got := os.Getenv("PORT"); got != "7000" {
		t.Fatalf("expected existing PORT to win, got %q", got)
	}
	if got := os.Getenv("DATABASE_URL"); got != "postgres://dotenv/db" {
		t.Fatalf("expected quoted value to be unwrapped, got %q", got)
	}
}
