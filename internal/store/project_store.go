package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Project statuses.
const (
	ProjectStatusPlanning  = "planning"
	ProjectStatusActive    = "active"
	ProjectStatusCompleted = "completed"
	ProjectStatusOnHold    = "on_hold"
)

// Project represents a construction project. RealizedCost and Progress are
// derived aggregates: realized cost is the sum of task total costs across all
// tasks regardless of status, progress is the unweighted mean of task
// progress. Both are written only by the recompute helpers.
type Project struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  *string   `json:"description,omitempty"`
	Status       string    `json:"status"`
	TotalBudget  float64   `json:"total_budget"`
	RealizedCost float64   `json:"realized_cost"`
	Progress     int       `json:"progress"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BudgetView is a read-time derivation from a project's budget and realized
// cost. It is assembled on demand and never stored.
type BudgetView struct {
	TotalBudget        float64 `json:"total_budget"`
	RealizedCost       float64 `json:"realized_cost"`
	Variance           float64 `json:"variance"`
	UtilizationPercent float64 `json:"utilization_percent"`
	IsOverBudget       bool    `json:"is_over_budget"`
}

// ComputeBudgetView derives variance, utilization, and the over-budget flag.
// Utilization is 0 when the budget is 0.
func ComputeBudgetView(totalBudget, realizedCost float64) BudgetView {
	view := BudgetView{
		TotalBudget:  totalBudget,
		RealizedCost: realizedCost,
		Variance:     totalBudget - realizedCost,
		IsOverBudget: realizedCost > totalBudget,
	}
	if totalBudget != 0 {
		view.UtilizationPercent = realizedCost / totalBudget * 100
	}
	return view
}

// ProjectStore provides access to projects.
type ProjectStore struct {
	db *sql.DB
}

// NewProjectStore creates a new ProjectStore with the given database connection.
func NewProjectStore(db *sql.DB) *ProjectStore {
	return &ProjectStore{db: db}
}

const projectSelectColumns = "id, name, description, status, total_budget, realized_cost, progress, created_at, updated_at"

func validProjectStatus(status string) bool {
	switch status {
	case ProjectStatusPlanning, ProjectStatusActive, ProjectStatusCompleted, ProjectStatusOnHold:
		return true
	}
	return false
}

// CreateProjectInput defines the input for creating a project.
type CreateProjectInput struct {
	Name        string
	Description *string
	TotalBudget float64
}

// Create creates a new project.
func (s *ProjectStore) Create(ctx context.Context, input CreateProjectInput) (*Project, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if input.TotalBudget < 0 {
		return nil, fmt.Errorf("%w: total_budget must be non-negative", ErrValidation)
	}

	query := `INSERT INTO projects (name, description, total_budget)
		VALUES ($1, $2, $3)
		RETURNING ` + projectSelectColumns

	project, err := scanProject(s.db.QueryRowContext(
		ctx,
		query,
		strings.TrimSpace(input.Name),
		nullableString(input.Description),
		input.TotalBudget,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	return &project, nil
}

// GetByID retrieves a project by ID.
func (s *ProjectStore) GetByID(ctx context.Context, id string) (*Project, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: invalid project id", ErrValidation)
	}

	query := "SELECT " + projectSelectColumns + " FROM projects WHERE id = $1"
	project, err := scanProject(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &project, nil
}

// List retrieves all projects, newest first.
func (s *ProjectStore) List(ctx context.Context) ([]Project, error) {
	query := "SELECT " + projectSelectColumns + " FROM projects ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading projects: %w", err)
	}

	return projects, nil
}

// UpdateProjectInput defines the input for updating a project's own fields.
// The derived aggregates are not settable here.
type UpdateProjectInput struct {
	Name        string
	Description *string
	Status      string
	TotalBudget float64
}

// Update rewrites a project's name, description, status, and budget.
func (s *ProjectStore) Update(ctx context.Context, id string, input UpdateProjectInput) (*Project, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: invalid project id", ErrValidation)
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if !validProjectStatus(input.Status) {
		return nil, fmt.Errorf("%w: invalid project status %q", ErrValidation, input.Status)
	}
	if input.TotalBudget < 0 {
		return nil, fmt.Errorf("%w: total_budget must be non-negative", ErrValidation)
	}

	query := `UPDATE projects SET
		name = $1, description = $2, status = $3, total_budget = $4, updated_at = NOW()
	WHERE id = $5
	RETURNING ` + projectSelectColumns

	project, err := scanProject(s.db.QueryRowContext(
		ctx,
		query,
		strings.TrimSpace(input.Name),
		nullableString(input.Description),
		input.Status,
		input.TotalBudget,
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update project: %w", err)
	}

	return &project, nil
}

// Budget returns the read-time budget view for a project.
func (s *ProjectStore) Budget(ctx context.Context, id string) (*BudgetView, error) {
	project, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	view := ComputeBudgetView(project.TotalBudget, project.RealizedCost)
	return &view, nil
}

// RecalculateRealizedCost recomputes a project's realized cost from its tasks.
// Idempotent; normally invoked inside task-level transactions.
func (s *ProjectStore) RecalculateRealizedCost(ctx context.Context, id string) (*Project, error) {
	return s.recalculate(ctx, id, recalculateProjectRealizedCostTx)
}

// RecalculateProgress recomputes a project's progress from its tasks.
// Idempotent; normally invoked inside task-level transactions.
func (s *ProjectStore) RecalculateProgress(ctx context.Context, id string) (*Project, error) {
	return s.recalculate(ctx, id, recalculateProjectProgressTx)
}

func (s *ProjectStore) recalculate(
	ctx context.Context,
	id string,
	recalc func(context.Context, *sql.Tx, string) error,
) (*Project, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: invalid project id", ErrValidation)
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := recalc(ctx, tx, id); err != nil {
		return nil, err
	}

	query := "SELECT " + projectSelectColumns + " FROM projects WHERE id = $1"
	project, err := scanProject(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to reload project: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit project recompute: %w", err)
	}

	return &project, nil
}

// recalculateProjectRealizedCostTx sums task total costs across every task in
// the project, regardless of task status, into the project's realized cost.
func recalculateProjectRealizedCostTx(ctx context.Context, tx *sql.Tx, projectID string) error {
	result, err := tx.ExecContext(
		ctx,
		`UPDATE projects SET
			realized_cost = (SELECT COALESCE(SUM(total_cost), 0) FROM tasks WHERE project_id = projects.id),
			updated_at = NOW()
		WHERE id = $1`,
		projectID,
	)
	if err != nil {
		return fmt.Errorf("failed to recalculate realized cost: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check realized cost update: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// recalculateProjectProgressTx writes the unweighted mean of task progress
// onto the project, or 0 when the project has no tasks.
func recalculateProjectProgressTx(ctx context.Context, tx *sql.Tx, projectID string) error {
	result, err := tx.ExecContext(
		ctx,
		`UPDATE projects SET
			progress = (SELECT COALESCE(ROUND(AVG(progress)), 0) FROM tasks WHERE project_id = projects.id),
			updated_at = NOW()
		WHERE id = $1`,
		projectID,
	)
	if err != nil {
		return fmt.Errorf("failed to recalculate progress: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check progress update: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func scanProject(scanner interface{ Scan(...any) error }) (Project, error) {
	var project Project
	var description sql.NullString

	err := scanner.Scan(
		&project.ID,
		&project.Name,
		&description,
		&project.Status,
		&project.TotalBudget,
		&project.RealizedCost,
		&project.Progress,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		return project, err
	}

	if description.Valid {
		project.Description = &description.String
	}

	return project, nil
}
