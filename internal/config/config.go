package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func init() {
	// Auto-load .env file if present (don't override existing env vars)
	loadDotEnv(".env")
}

func loadDotEnv(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		// Remove surrounding quotes
		if len(val) >= 2 && ((val[0] == '"' && val[len(val)-1] == '"') || (val[0] == '\'' && val[len(val)-1] == '\'')) {
			val = val[1 : len(val)-1]
		}
		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

const (
	defaultPort          = "8080"
	defaultEnvironment   = "development"
	defaultMigrationsDir = "migrations"

	defaultStockAlertsEnabled      = true
	defaultStockAlertsPollInterval = time.Minute
	defaultStockAlertsLimit        = 100
)

// StockAlertsConfig drives the background scan that announces materials
// sitting at or under their minimum stock.
type StockAlertsConfig struct {
	Enabled      bool
	PollInterval time.Duration
	Limit        int
}

type Config struct {
	Port          string
	DatabaseURL   string
	Environment   string
	MigrationsDir string
	AutoMigrate   bool
	StockAlerts   StockAlertsConfig
}

func Load() (Config, error) {
	cfg := Config{
		Port:        firstNonEmpty(strings.TrimSpace(os.Getenv("PORT")), defaultPort),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Environment: resolveEnvironment(),
		MigrationsDir: firstNonEmpty(
			strings.TrimSpace(os.Getenv("MIGRATIONS_DIR")),
			defaultMigrationsDir,
		),
	}

	autoMigrate, err := parseBool("AUTO_MIGRATE", true)
	if err != nil {
		return Config{}, err
	}
	cfg.AutoMigrate = autoMigrate

	stockAlertsEnabled, err := parseBool("STOCK_ALERTS_ENABLED", defaultStockAlertsEnabled)
	if err != nil {
		return Config{}, err
	}
	cfg.StockAlerts.Enabled = stockAlertsEnabled

	stockAlertsPollInterval, err := parseDuration("STOCK_ALERTS_POLL_INTERVAL", defaultStockAlertsPollInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.StockAlerts.PollInterval = stockAlertsPollInterval

	stockAlertsLimit, err := parseInt("STOCK_ALERTS_LIMIT", defaultStockAlertsLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.StockAlerts.Limit = stockAlertsLimit

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if c.MigrationsDir == "" {
		return fmt.Errorf("MIGRATIONS_DIR must not be empty")
	}

	if !c.StockAlerts.Enabled {
		return nil
	}

	if c.StockAlerts.PollInterval <= 0 {
		return fmt.Errorf("STOCK_ALERTS_POLL_INTERVAL must be greater than zero")
	}
	if c.StockAlerts.Limit <= 0 {
		return fmt.Errorf("STOCK_ALERTS_LIMIT must be greater than zero")
	}

	return nil
}

func resolveEnvironment() string {
	return strings.ToLower(firstNonEmpty(
		strings.TrimSpace(os.Getenv("APP_ENV")),
		strings.TrimSpace(os.Getenv("ENVIRONMENT")),
		strings.TrimSpace(os.Getenv("GO_ENV")),
		defaultEnvironment,
	))
}

func parseBool(name string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}

	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s must be a boolean value", name)
	}
}

func parseDuration(name string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", name, err)
	}

	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero", name)
	}

	return parsed, nil
}

func parseInt(name string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", name, err)
	}
	return parsed, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
