package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Material represents an inventory item. BelowMinimum is derived at read time
// from current and minimum stock; it is never stored. Stock moves only through
// AddStock and RemoveStock.
type Material struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Unit         string    `json:"unit"`
	CurrentStock float64   `json:"current_stock"`
	MinimumStock float64   `json:"minimum_stock"`
	UnitPrice    float64   `json:"unit_price"`
	Supplier     string    `json:"supplier"`
	Active       bool      `json:"active"`
	BelowMinimum bool      `json:"below_minimum"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MaterialStore provides access to materials and their stock ledger.
type MaterialStore struct {
	db *sql.DB
}

// NewMaterialStore creates a new MaterialStore with the given database connection.
func NewMaterialStore(db *sql.DB) *MaterialStore {
	return &MaterialStore{db: db}
}

const materialSelectColumns = "id, name, unit, current_stock, minimum_stock, unit_price, supplier, active, created_at, updated_at"

// CreateMaterialInput defines the input for creating a material.
type CreateMaterialInput struct {
	Name         string
	Unit         string
	CurrentStock float64
	MinimumStock float64
	UnitPrice    float64
	Supplier     string
}

// Create adds a material to the inventory.
func (s *MaterialStore) Create(ctx context.Context, input CreateMaterialInput) (*Material, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if strings.TrimSpace(input.Unit) == "" {
		return nil, fmt.Errorf("%w: unit is required", ErrValidation)
	}
	if input.CurrentStock < 0 || input.MinimumStock < 0 || input.UnitPrice < 0 {
		return nil, fmt.Errorf("%w: stock levels and unit price must be non-negative", ErrValidation)
	}

	query := `INSERT INTO materials (name, unit, current_stock, minimum_stock, unit_price, supplier)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + materialSelectColumns

	material, err := scanMaterial(s.db.QueryRowContext(
		ctx,
		query,
		strings.TrimSpace(input.Name),
		strings.TrimSpace(input.Unit),
		input.CurrentStock,
		input.MinimumStock,
		input.UnitPrice,
		strings.TrimSpace(input.Supplier),
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: material name already exists", ErrConflict)
		}
		return nil, fmt.Errorf("failed to create material: %w", err)
	}

	return &material, nil
}

// GetByID retrieves a material by ID.
func (s *MaterialStore) GetByID(ctx context.Context, id string) (*Material, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: invalid material id", ErrValidation)
	}

	query := "SELECT " + materialSelectColumns + " FROM materials WHERE id = $1"
	material, err := scanMaterial(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get material: %w", err)
	}

	return &material, nil
}

// MaterialFilter defines filtering options for listing materials.
type MaterialFilter struct {
	ActiveOnly   bool
	BelowMinimum bool
}

// List retrieves materials ordered by name.
func (s *MaterialStore) List(ctx context.Context, filter MaterialFilter) ([]Material, error) {
	conditions := make([]string, 0, 2)
	if filter.ActiveOnly {
		conditions = append(conditions, "active")
	}
	if filter.BelowMinimum {
		conditions = append(conditions, "current_stock <= minimum_stock")
	}

	query := "SELECT " + materialSelectColumns + " FROM materials"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list materials: %w", err)
	}
	defer rows.Close()

	materials := make([]Material, 0)
	for rows.Next() {
		material, err := scanMaterial(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan material: %w", err)
		}
		materials = append(materials, material)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading materials: %w", err)
	}

	return materials, nil
}

// UpdateMaterialInput defines the input for updating a material's catalog
// fields. Stock is deliberately absent: it moves only through the ledger
// operations.
type UpdateMaterialInput struct {
	Name         string
	Unit         string
	MinimumStock float64
	UnitPrice    float64
	Supplier     string
	Active       bool
}

// Update rewrites a material's catalog fields.
func (s *MaterialStore) Update(ctx context.Context, id string, input UpdateMaterialInput) (*Material, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: invalid material id", ErrValidation)
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if input.MinimumStock < 0 || input.UnitPrice < 0 {
		return nil, fmt.Errorf("%w: minimum stock and unit price must be non-negative", ErrValidation)
	}

	query := `UPDATE materials SET
		name = $1, unit = $2, minimum_stock = $3, unit_price = $4,
		supplier = $5, active = $6, updated_at = NOW()
	WHERE id = $7
	RETURNING ` + materialSelectColumns

	material, err := scanMaterial(s.db.QueryRowContext(
		ctx,
		query,
		strings.TrimSpace(input.Name),
		strings.TrimSpace(input.Unit),
		input.MinimumStock,
		input.UnitPrice,
		strings.TrimSpace(input.Supplier),
		input.Active,
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: material name already exists", ErrConflict)
		}
		return nil, fmt.Errorf("failed to update material: %w", err)
	}

	return &material, nil
}

// AddStock increases a material's stock by qty. qty must be positive.
func (s *MaterialStore) AddStock(ctx context.Context, id string, qty float64) (*Material, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	return s.moveStock(ctx, id, qty)
}

// RemoveStock decreases a material's stock by qty. It fails with
// ErrInsufficientStock when qty exceeds the current stock; stock is never
// clamped to zero, so the caller knows the deduction did not happen. A
// successful call is not retry-safe: retrying double-deducts.
func (s *MaterialStore) RemoveStock(ctx context.Context, id string, qty float64) (*Material, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	return s.moveStock(ctx, id, -qty)
}

// moveStock applies a signed stock delta under a row lock, so concurrent
// movements against the same material serialize.
func (s *MaterialStore) moveStock(ctx context.Context, id string, delta float64) (*Material, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: invalid material id", ErrValidation)
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	material, err := lockMaterialTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if delta < 0 && material.CurrentStock+delta < 0 {
		return nil, fmt.Errorf("%w: material %q has %.3f on hand, %.3f requested",
			ErrInsufficientStock, material.Name, material.CurrentStock, -delta)
	}

	updated, err := scanMaterial(tx.QueryRowContext(
		ctx,
		"UPDATE materials SET current_stock = current_stock + $1, updated_at = NOW() WHERE id = $2 RETURNING "+materialSelectColumns,
		delta,
		id,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to move stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit stock movement: %w", err)
	}

	return &updated, nil
}

// lockMaterialTx loads a material under FOR UPDATE so the row stays locked
// until the surrounding transaction ends.
func lockMaterialTx(ctx context.Context, tx *sql.Tx, id string) (Material, error) {
	material, err := scanMaterial(tx.QueryRowContext(
		ctx,
		"SELECT "+materialSelectColumns+" FROM materials WHERE id = $1 FOR UPDATE",
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return material, ErrNotFound
		}
		return material, fmt.Errorf("failed to lock material: %w", err)
	}
	return material, nil
}

func scanMaterial(scanner interface{ Scan(...any) error }) (Material, error) {
	var material Material
	err := scanner.Scan(
		&material.ID,
		&material.Name,
		&material.Unit,
		&material.CurrentStock,
		&material.MinimumStock,
		&material.UnitPrice,
		&material.Supplier,
		&material.Active,
		&material.CreatedAt,
		&material.UpdatedAt,
	)
	if err != nil {
		return material, err
	}

	material.BelowMinimum = material.CurrentStock <= material.MinimumStock
	return material, nil
}
