package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// User is a member of a project team. The engine only needs identity lookups
// for requester and approver ids; authorization happens upstream.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// UserStore provides access to users.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a new UserStore with the given database connection.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userSelectColumns = "id, name, email, role, created_at"

// CreateUserInput defines the input for creating a user.
type CreateUserInput struct {
	Name  string
	Email string
	Role  string
}

// Create adds a user.
func (s *UserStore) Create(ctx context.Context, input CreateUserInput) (*User, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if strings.TrimSpace(input.Email) == "" {
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	}

	role := strings.TrimSpace(input.Role)
	if role == "" {
		role = "member"
	}

	query := "INSERT INTO users (name, email, role) VALUES ($1, $2, $3) RETURNING " + userSelectColumns
	user, err := scanUser(s.db.QueryRowContext(
		ctx,
		query,
		strings.TrimSpace(input.Name),
		strings.ToLower(strings.TrimSpace(input.Email)),
		role,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &user, nil
}

// GetByID retrieves a user by ID.
func (s *UserStore) GetByID(ctx context.Context, id string) (*User, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: invalid user id", ErrValidation)
	}

	query := "SELECT " + userSelectColumns + " FROM users WHERE id = $1"
	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

// List retrieves all users ordered by name.
func (s *UserStore) List(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userSelectColumns+" FROM users ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading users: %w", err)
	}

	return users, nil
}

func scanUser(scanner interface{ Scan(...any) error }) (User, error) {
	var user User
	err := scanner.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.CreatedAt,
	)
	return user, err
}
