package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TaskService binds one catalog service to one task with a quantity. When
// CostOverride is set, the blended amount replaces the service's three unit
// costs for this binding and the per-category split no longer applies.
type TaskService struct {
	ID           string    `json:"id"`
	TaskID       string    `json:"task_id"`
	ServiceID    string    `json:"service_id"`
	ServiceName  string    `json:"service_name"`
	Quantity     float64   `json:"quantity"`
	CostOverride *float64  `json:"cost_override,omitempty"`
	Note         *string   `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// TaskServiceStore manages service-to-task bindings. Every mutation recomputes
// the task's costs and the owning project's realized cost before returning, in
// a single transaction, so callers never observe stale aggregates.
type TaskServiceStore struct {
	db *sql.DB
}

// NewTaskServiceStore creates a new TaskServiceStore with the given database connection.
func NewTaskServiceStore(db *sql.DB) *TaskServiceStore {
	return &TaskServiceStore{db: db}
}

const taskServiceSelectColumns = "ts.id, ts.task_id, ts.service_id, s.name, ts.quantity, ts.cost_override, ts.note, ts.created_at"

// AddTaskServiceInput defines the input for binding a service to a task.
type AddTaskServiceInput struct {
	TaskID       string
	ServiceID    string
	Quantity     float64
	CostOverride *float64
	Note         *string
}

// Add binds a service to a task. A service may be bound to a task at most
// once; re-adding fails with ErrConflict rather than updating in place.
func (s *TaskServiceStore) Add(ctx context.Context, input AddTaskServiceInput) (*TaskService, error) {
	if !validID(input.TaskID) {
		return nil, fmt.Errorf("%w: invalid task id", ErrValidation)
	}
	if !validID(input.ServiceID) {
		return nil, fmt.Errorf("%w: invalid service id", ErrValidation)
	}
	if input.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if input.CostOverride != nil && *input.CostOverride < 0 {
		return nil, fmt.Errorf("%w: cost_override must be non-negative", ErrValidation)
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var taskExists, serviceExists bool
	err = tx.QueryRowContext(
		ctx,
		`SELECT
			EXISTS (SELECT 1 FROM tasks WHERE id = $1),
			EXISTS (SELECT 1 FROM services WHERE id = $2)`,
		input.TaskID,
		input.ServiceID,
	).Scan(&taskExists, &serviceExists)
	if err != nil {
		return nil, fmt.Errorf("failed to check binding references: %w", err)
	}
	if !taskExists {
		return nil, fmt.Errorf("%w: task does not exist", ErrNotFound)
	}
	if !serviceExists {
		return nil, fmt.Errorf("%w: service does not exist", ErrNotFound)
	}

	var override interface{}
	if input.CostOverride != nil {
		override = *input.CostOverride
	}

	var bindingID string
	err = tx.QueryRowContext(
		ctx,
		`INSERT INTO task_services (task_id, service_id, quantity, cost_override, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		input.TaskID,
		input.ServiceID,
		input.Quantity,
		override,
		nullableString(input.Note),
	).Scan(&bindingID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: service already bound to task", ErrConflict)
		}
		return nil, fmt.Errorf("failed to bind service to task: %w", err)
	}

	if err := recalculateTaskCostsTx(ctx, tx, input.TaskID); err != nil {
		return nil, err
	}

	binding, err := scanTaskService(tx.QueryRowContext(
		ctx,
		"SELECT "+taskServiceSelectColumns+" FROM task_services ts JOIN services s ON s.id = ts.service_id WHERE ts.id = $1",
		bindingID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to reload binding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit binding: %w", err)
	}

	return &binding, nil
}

// Remove unbinds a service from a task and recomputes the task's costs.
func (s *TaskServiceStore) Remove(ctx context.Context, taskID, serviceID string) error {
	if !validID(taskID) {
		return fmt.Errorf("%w: invalid task id", ErrValidation)
	}
	if !validID(serviceID) {
		return fmt.Errorf("%w: invalid service id", ErrValidation)
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(
		ctx,
		"DELETE FROM task_services WHERE task_id = $1 AND service_id = $2",
		taskID,
		serviceID,
	)
	if err != nil {
		return fmt.Errorf("failed to unbind service: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check unbind result: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	if err := recalculateTaskCostsTx(ctx, tx, taskID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit unbind: %w", err)
	}

	return nil
}

// ListByTask retrieves a task's bindings in creation order.
func (s *TaskServiceStore) ListByTask(ctx context.Context, taskID string) ([]TaskService, error) {
	if !validID(taskID) {
		return nil, fmt.Errorf("%w: invalid task id", ErrValidation)
	}

	rows, err := s.db.QueryContext(
		ctx,
		"SELECT "+taskServiceSelectColumns+" FROM task_services ts JOIN services s ON s.id = ts.service_id WHERE ts.task_id = $1 ORDER BY ts.created_at",
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bindings: %w", err)
	}
	defer rows.Close()

	bindings := make([]TaskService, 0)
	for rows.Next() {
		binding, err := scanTaskService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan binding: %w", err)
		}
		bindings = append(bindings, binding)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading bindings: %w", err)
	}

	return bindings, nil
}

func scanTaskService(scanner interface{ Scan(...any) error }) (TaskService, error) {
	var binding TaskService
	var override sql.NullFloat64
	var note sql.NullString

	err := scanner.Scan(
		&binding.ID,
		&binding.TaskID,
		&binding.ServiceID,
		&binding.ServiceName,
		&binding.Quantity,
		&override,
		&note,
		&binding.CreatedAt,
	)
	if err != nil {
		return binding, err
	}

	if override.Valid {
		binding.CostOverride = &override.Float64
	}
	if note.Valid {
		binding.Note = &note.String
	}

	return binding, nil
}
