package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
)

const testDBURLKey = "SITEWORK_TEST_DATABASE_URL"

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()
	connStr := os.Getenv(testDBURLKey)
	if connStr == "" {
		t.Skipf("set %s to a dedicated test database", testDBURLKey)
	}
	return connStr
}

func getMigrationsDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.Abs(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)
	return dir
}

func setupTestDatabase(t *testing.T, connStr string) *sql.DB {
	t.Helper()
	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)

	_, err = db.Exec("CREATE EXTENSION IF NOT EXISTS pgcrypto")
	require.NoError(t, err)

	m, err := migrate.New("file://"+getMigrationsDir(t), connStr)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = m.Close()
	})

	err = m.Down()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func createTestUser(t *testing.T, db *sql.DB, email string) string {
	t.Helper()
	var id string
	err := db.QueryRow(
		"INSERT INTO users (name, email) VALUES ($1, $2) RETURNING id",
		"User "+email,
		email,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func createTestProject(t *testing.T, db *sql.DB, name string, budget float64) string {
	t.Helper()
	var id string
	err := db.QueryRow(
		"INSERT INTO projects (name, total_budget) VALUES ($1, $2) RETURNING id",
		name,
		budget,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func createTestTask(t *testing.T, db *sql.DB, projectID, name string) string {
	t.Helper()
	var id string
	err := db.QueryRow(
		"INSERT INTO tasks (project_id, name) VALUES ($1, $2) RETURNING id",
		projectID,
		name,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func createTestService(t *testing.T, db *sql.DB, name string, labor, material, equipment float64) string {
	t.Helper()
	var id string
	err := db.QueryRow(
		`INSERT INTO services (name, unit, unit_labor_cost, unit_material_cost, unit_equipment_cost)
		VALUES ($1, 'm2', $2, $3, $4) RETURNING id`,
		name,
		labor,
		material,
		equipment,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func createTestMaterial(t *testing.T, db *sql.DB, name string, stock, minimum, unitPrice float64) string {
	t.Helper()
	var id string
	err := db.QueryRow(
		`INSERT INTO materials (name, unit, current_stock, minimum_stock, unit_price)
		VALUES ($1, 'bag', $2, $3, $4) RETURNING id`,
		name,
		stock,
		minimum,
		unitPrice,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func getTaskCosts(t *testing.T, db *sql.DB, taskID string) (labor, material, equipment, total float64) {
	t.Helper()
	err := db.QueryRow(
		"SELECT labor_cost, material_cost, equipment_cost, total_cost FROM tasks WHERE id = $1",
		taskID,
	).Scan(&labor, &material, &equipment, &total)
	require.NoError(t, err)
	return labor, material, equipment, total
}

func getProjectAggregates(t *testing.T, db *sql.DB, projectID string) (realizedCost float64, progress int) {
	t.Helper()
	err := db.QueryRow(
		"SELECT realized_cost, progress FROM projects WHERE id = $1",
		projectID,
	).Scan(&realizedCost, &progress)
	require.NoError(t, err)
	return realizedCost, progress
}

func getMaterialStock(t *testing.T, db *sql.DB, materialID string) float64 {
	t.Helper()
	var stock float64
	err := db.QueryRow("SELECT current_stock FROM materials WHERE id = $1", materialID).Scan(&stock)
	require.NoError(t, err)
	return stock
}

func testCtx() context.Context {
	return context.Background()
}
