package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Service represents a billable catalog entry. Unit costs are split into
// labor, material, and equipment components; the total unit cost is their sum.
type Service struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Unit              string    `json:"unit"`
	UnitLaborCost     float64   `json:"unit_labor_cost"`
	UnitMaterialCost  float64   `json:"unit_material_cost"`
	UnitEquipmentCost float64   `json:"unit_equipment_cost"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// TotalUnitCost returns the sum of the three unit cost components.
func (s *Service) TotalUnitCost() float64 {
	return s.UnitLaborCost + s.UnitMaterialCost + s.UnitEquipmentCost
}

// ServiceStore provides access to the service catalog.
type ServiceStore struct {
	db *sql.DB
}

// NewServiceStore creates a new ServiceStore with the given database connection.
func NewServiceStore(db *sql.DB) *ServiceStore {
	return &ServiceStore{db: db}
}

const serviceSelectColumns = "id, name, unit, unit_labor_cost, unit_material_cost, unit_equipment_cost, active, created_at, updated_at"

// CreateServiceInput defines the input for creating a catalog entry.
type CreateServiceInput struct {
	Name              string
	Unit              string
	UnitLaborCost     float64
	UnitMaterialCost  float64
	UnitEquipmentCost float64
}

func (in CreateServiceInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if strings.TrimSpace(in.Unit) == "" {
		return fmt.Errorf("%w: unit is required", ErrValidation)
	}
	if in.UnitLaborCost < 0 || in.UnitMaterialCost < 0 || in.UnitEquipmentCost < 0 {
		return fmt.Errorf("%w: unit costs must be non-negative", ErrValidation)
	}
	return nil
}

// Create adds a new service to the catalog. Names are unique across the whole
// catalog, including deactivated entries.
func (s *ServiceStore) Create(ctx context.Context, input CreateServiceInput) (*Service, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	query := `INSERT INTO services (name, unit, unit_labor_cost, unit_material_cost, unit_equipment_cost)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + serviceSelectColumns

	service, err := scanService(s.db.QueryRowContext(
		ctx,
		query,
		strings.TrimSpace(input.Name),
		strings.TrimSpace(input.Unit),
		input.UnitLaborCost,
		input.UnitMaterialCost,
		input.UnitEquipmentCost,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: service name already exists", ErrConflict)
		}
		return nil, fmt.Errorf("failed to create service: %w", err)
	}

	return &service, nil
}

// GetByID retrieves a service by ID.
func (s *ServiceStore) GetByID(ctx context.Context, id string) (*Service, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: invalid service id", ErrValidation)
	}

	query := "SELECT " + serviceSelectColumns + " FROM services WHERE id = $1"
	service, err := scanService(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get service: %w", err)
	}

	return &service, nil
}

// ServiceFilter defines filtering options for listing services.
type ServiceFilter struct {
	ActiveOnly bool
}

// List retrieves catalog entries ordered by name.
func (s *ServiceStore) List(ctx context.Context, filter ServiceFilter) ([]Service, error) {
	query := "SELECT " + serviceSelectColumns + " FROM services"
	if filter.ActiveOnly {
		query += " WHERE active"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	services := make([]Service, 0)
	for rows.Next() {
		service, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, service)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading services: %w", err)
	}

	return services, nil
}

// UpdateServiceInput defines the input for updating a catalog entry.
type UpdateServiceInput struct {
	Name              string
	Unit              string
	UnitLaborCost     float64
	UnitMaterialCost  float64
	UnitEquipmentCost float64
}

// Update rewrites a service's name, unit, and unit costs. When a unit cost
// changes, every task bound to the service is recomputed so task and project
// aggregates never go stale against the catalog.
func (s *ServiceStore) Update(ctx context.Context, id string, input UpdateServiceInput) (*Service, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: invalid service id", ErrValidation)
	}
	if err := (CreateServiceInput{
		Name:              input.Name,
		Unit:              input.Unit,
		UnitLaborCost:     input.UnitLaborCost,
		UnitMaterialCost:  input.UnitMaterialCost,
		UnitEquipmentCost: input.UnitEquipmentCost,
	}).validate(); err != nil {
		return nil, err
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	query := `UPDATE services SET
		name = $1, unit = $2, unit_labor_cost = $3, unit_material_cost = $4,
		unit_equipment_cost = $5, updated_at = NOW()
	WHERE id = $6
	RETURNING ` + serviceSelectColumns

	service, err := scanService(tx.QueryRowContext(
		ctx,
		query,
		strings.TrimSpace(input.Name),
		strings.TrimSpace(input.Unit),
		input.UnitLaborCost,
		input.UnitMaterialCost,
		input.UnitEquipmentCost,
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: service name already exists", ErrConflict)
		}
		return nil, fmt.Errorf("failed to update service: %w", err)
	}

	if err := recalculateTasksUsingServiceTx(ctx, tx, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit service update: %w", err)
	}

	return &service, nil
}

// Deactivate marks a service inactive. Catalog entries are never deleted, so
// historical bindings keep resolving.
func (s *ServiceStore) Deactivate(ctx context.Context, id string) (*Service, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: invalid service id", ErrValidation)
	}

	query := "UPDATE services SET active = FALSE, updated_at = NOW() WHERE id = $1 RETURNING " + serviceSelectColumns
	service, err := scanService(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to deactivate service: %w", err)
	}

	return &service, nil
}

// recalculateTasksUsingServiceTx recomputes every task bound to the given
// service, cascading to each owning project.
func recalculateTasksUsingServiceTx(ctx context.Context, tx *sql.Tx, serviceID string) error {
	rows, err := tx.QueryContext(
		ctx,
		"SELECT DISTINCT task_id FROM task_services WHERE service_id = $1",
		serviceID,
	)
	if err != nil {
		return fmt.Errorf("failed to find tasks using service: %w", err)
	}
	defer rows.Close()

	taskIDs := make([]string, 0)
	for rows.Next() {
		var taskID string
		if err := rows.Scan(&taskID); err != nil {
			return fmt.Errorf("failed to scan task id: %w", err)
		}
		taskIDs = append(taskIDs, taskID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error reading task ids: %w", err)
	}

	for _, taskID := range taskIDs {
		if err := recalculateTaskCostsTx(ctx, tx, taskID); err != nil {
			return err
		}
	}

	return nil
}

func scanService(scanner interface{ Scan(...any) error }) (Service, error) {
	var service Service
	err := scanner.Scan(
		&service.ID,
		&service.Name,
		&service.Unit,
		&service.UnitLaborCost,
		&service.UnitMaterialCost,
		&service.UnitEquipmentCost,
		&service.Active,
		&service.CreatedAt,
		&service.UpdatedAt,
	)
	return service, err
}
