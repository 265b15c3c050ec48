package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Task statuses.
const (
	TaskStatusNotStarted = "not_started"
	TaskStatusInProgress = "in_progress"
	TaskStatusDone       = "done"
	TaskStatusBlocked    = "blocked"
	TaskStatusCancelled  = "cancelled"
)

// Task represents a unit of work inside a project. The four cost fields are
// derived from the task's service bindings and are only ever written by the
// cost recompute path.
type Task struct {
	ID            string    `json:"id"`
	ProjectID     string    `json:"project_id"`
	Name          string    `json:"name"`
	Description   *string   `json:"description,omitempty"`
	Status        string    `json:"status"`
	Progress      int       `json:"progress"`
	LaborCost     float64   `json:"labor_cost"`
	MaterialCost  float64   `json:"material_cost"`
	EquipmentCost float64   `json:"equipment_cost"`
	TotalCost     float64   `json:"total_cost"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TaskStore provides access to tasks.
type TaskStore struct {
	db *sql.DB
}

// NewTaskStore creates a new TaskStore with the given database connection.
func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

const taskSelectColumns = "id, project_id, name, description, status, progress, labor_cost, material_cost, equipment_cost, total_cost, created_at, updated_at"

func validTaskStatus(status string) bool {
	switch status {
	case TaskStatusNotStarted, TaskStatusInProgress, TaskStatusDone, TaskStatusBlocked, TaskStatusCancelled:
		return true
	}
	return false
}

// CreateTaskInput defines the input for creating a task.
type CreateTaskInput struct {
	ProjectID   string
	Name        string
	Description *string
}

// Create creates a task in the given project and refreshes the project's
// progress, since a fresh task at 0% lowers the mean.
func (s *TaskStore) Create(ctx context.Context, input CreateTaskInput) (*Task, error) {
	if !validID(input.ProjectID) {
		return nil, fmt.Errorf("%w: invalid project id", ErrValidation)
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)", input.ProjectID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check project: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	query := `INSERT INTO tasks (project_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING ` + taskSelectColumns

	task, err := scanTask(tx.QueryRowContext(
		ctx,
		query,
		input.ProjectID,
		strings.TrimSpace(input.Name),
		nullableString(input.Description),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	if err := recalculateProjectProgressTx(ctx, tx, input.ProjectID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit task create: %w", err)
	}

	return &task, nil
}

// GetByID retrieves a task by ID.
func (s *TaskStore) GetByID(ctx context.Context, id string) (*Task, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: invalid task id", ErrValidation)
	}

	query := "SELECT " + taskSelectColumns + " FROM tasks WHERE id = $1"
	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return &task, nil
}

// TaskFilter defines filtering options for listing tasks.
type TaskFilter struct {
	ProjectID *string
	Status    string
}

// List retrieves tasks matching the filter, newest first.
func (s *TaskStore) List(ctx context.Context, filter TaskFilter) ([]Task, error) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)

	if filter.ProjectID != nil {
		args = append(args, *filter.ProjectID)
		conditions = append(conditions, fmt.Sprintf("project_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	query := "SELECT " + taskSelectColumns + " FROM tasks"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading tasks: %w", err)
	}

	return tasks, nil
}

// UpdateProgress sets a task's progress, clamped to 0-100, and refreshes the
// owning project's progress in the same transaction.
func (s *TaskStore) UpdateProgress(ctx context.Context, id string, progress int) (*Task, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: invalid task id", ErrValidation)
	}

	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	query := "UPDATE tasks SET progress = $1, updated_at = NOW() WHERE id = $2 RETURNING " + taskSelectColumns
	task, err := scanTask(tx.QueryRowContext(ctx, query, progress, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update task progress: %w", err)
	}

	if err := recalculateProjectProgressTx(ctx, tx, task.ProjectID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit progress update: %w", err)
	}

	return &task, nil
}

// UpdateStatus transitions a task to a new status. Moving to done forces
// progress to 100; moving away from done leaves progress where it is. The
// coupling is one-directional.
func (s *TaskStore) UpdateStatus(ctx context.Context, id string, status string) (*Task, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: invalid task id", ErrValidation)
	}
	if !validTaskStatus(status) {
		return nil, fmt.Errorf("%w: invalid task status %q", ErrValidation, status)
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var query string
	if status == TaskStatusDone {
		query = "UPDATE tasks SET status = $1, progress = 100, updated_at = NOW() WHERE id = $2 RETURNING " + taskSelectColumns
	} else {
		query = "UPDATE tasks SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING " + taskSelectColumns
	}

	task, err := scanTask(tx.QueryRowContext(ctx, query, status, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update task status: %w", err)
	}

	if err := recalculateProjectProgressTx(ctx, tx, task.ProjectID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}

	return &task, nil
}

// Delete removes a task and refreshes the owning project's aggregates.
func (s *TaskStore) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return fmt.Errorf("%w: invalid task id", ErrValidation)
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var projectID string
	err = tx.QueryRowContext(ctx, "DELETE FROM tasks WHERE id = $1 RETURNING project_id", id).Scan(&projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete task: %w", err)
	}

	if err := recalculateProjectRealizedCostTx(ctx, tx, projectID); err != nil {
		return err
	}
	if err := recalculateProjectProgressTx(ctx, tx, projectID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task delete: %w", err)
	}

	return nil
}

// RecalculateCosts recomputes a task's cost fields from its service bindings
// and cascades to the owning project's realized cost. Normally this runs
// inside the bind/unbind transactions; the public entry point exists for
// repair jobs and seeding.
func (s *TaskStore) RecalculateCosts(ctx context.Context, id string) (*Task, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: invalid task id", ErrValidation)
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := recalculateTaskCostsTx(ctx, tx, id); err != nil {
		return nil, err
	}

	query := "SELECT " + taskSelectColumns + " FROM tasks WHERE id = $1"
	task, err := scanTask(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to reload task: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit cost recompute: %w", err)
	}

	return &task, nil
}

// recalculateTaskCostsTx rewrites a task's labor/material/equipment/total cost
// from its bindings, then cascades to the owning project's realized cost. A
// binding with a cost override contributes quantity × override to the total
// only; the per-category split is not separable for overridden bindings.
// A task with zero bindings gets all-zero costs.
func recalculateTaskCostsTx(ctx context.Context, tx *sql.Tx, taskID string) error {
	var labor, material, equipment, blended float64
	err := tx.QueryRowContext(
		ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN ts.cost_override IS NULL THEN ts.quantity * s.unit_labor_cost ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN ts.cost_override IS NULL THEN ts.quantity * s.unit_material_cost ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN ts.cost_override IS NULL THEN ts.quantity * s.unit_equipment_cost ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN ts.cost_override IS NOT NULL THEN ts.quantity * ts.cost_override ELSE 0 END), 0)
		FROM task_services ts
		JOIN services s ON s.id = ts.service_id
		WHERE ts.task_id = $1`,
		taskID,
	).Scan(&labor, &material, &equipment, &blended)
	if err != nil {
		return fmt.Errorf("failed to aggregate task costs: %w", err)
	}

	var projectID string
	err = tx.QueryRowContext(
		ctx,
		`UPDATE tasks SET
			labor_cost = $1, material_cost = $2, equipment_cost = $3,
			total_cost = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING project_id`,
		labor,
		material,
		equipment,
		labor+material+equipment+blended,
		taskID,
	).Scan(&projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to write task costs: %w", err)
	}

	return recalculateProjectRealizedCostTx(ctx, tx, projectID)
}

func scanTask(scanner interface{ Scan(...any) error }) (Task, error) {
	var task Task
	var description sql.NullString

	err := scanner.Scan(
		&task.ID,
		&task.ProjectID,
		&task.Name,
		&description,
		&task.Status,
		&task.Progress,
		&task.LaborCost,
		&task.MaterialCost,
		&task.EquipmentCost,
		&task.TotalCost,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return task, err
	}

	if description.Valid {
		task.Description = &description.String
	}

	return task, nil
}
