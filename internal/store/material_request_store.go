package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Material request statuses. Pending is the only non-terminal state: a request
// moves to approved or rejected exactly once and never transitions again.
const (
	RequestStatusPending  = "pending"
	RequestStatusApproved = "approved"
	RequestStatusRejected = "rejected"
)

// MaterialRequest is the header of a material request. Items carry a unit
// price snapshot taken at creation time, so historical requests stay stable
// when catalog prices change.
type MaterialRequest struct {
	ID              string                `json:"id"`
	ProjectID       string                `json:"project_id"`
	RequesterID     string                `json:"requester_id"`
	Status          string                `json:"status"`
	NeededBy        *time.Time            `json:"needed_by,omitempty"`
	Note            *string               `json:"note,omitempty"`
	ApproverID      *string               `json:"approver_id,omitempty"`
	DecidedAt       *time.Time            `json:"decided_at,omitempty"`
	RejectionReason *string               `json:"rejection_reason,omitempty"`
	Items           []MaterialRequestItem `json:"items,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
}

// MaterialRequestItem is one line of a material request.
type MaterialRequestItem struct {
	ID           string  `json:"id"`
	RequestID    string  `json:"request_id"`
	MaterialID   string  `json:"material_id"`
	MaterialName string  `json:"material_name"`
	Position     int     `json:"position"`
	Quantity     float64 `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
}

// MaterialRequestStore drives the request approval workflow.
type MaterialRequestStore struct {
	db *sql.DB
}

// NewMaterialRequestStore creates a new MaterialRequestStore with the given database connection.
func NewMaterialRequestStore(db *sql.DB) *MaterialRequestStore {
	return &MaterialRequestStore{db: db}
}

const materialRequestSelectColumns = "id, project_id, requester_id, status, needed_by, note, approver_id, decided_at, rejection_reason, created_at"

// CreateMaterialRequestInput defines the input for creating a request with its
// items in one logical operation.
type CreateMaterialRequestInput struct {
	ProjectID   string
	RequesterID string
	NeededBy    *time.Time
	Note        *string
	Items       []RequestItemInput
}

// RequestItemInput is one requested line: a material and a quantity.
type RequestItemInput struct {
	MaterialID string
	Quantity   float64
}

// Create validates the project, the requester, and every referenced material
// before any row is written, then inserts the request in pending state with
// its items. Each item captures the material's current unit price; the
// snapshot is immutable afterwards.
func (s *MaterialRequestStore) Create(ctx context.Context, input CreateMaterialRequestInput) (*MaterialRequest, error) {
	if !validID(input.ProjectID) {
		return nil, fmt.Errorf("%w: invalid project id", ErrValidation)
	}
	if !validID(input.RequesterID) {
		return nil, fmt.Errorf("%w: invalid requester id", ErrValidation)
	}
	if len(input.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrValidation)
	}
	for i, item := range input.Items {
		if !validID(item.MaterialID) {
			return nil, fmt.Errorf("%w: item %d has an invalid material id", ErrValidation, i+1)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d quantity must be positive", ErrValidation, i+1)
		}
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var projectExists, requesterExists bool
	err = tx.QueryRowContext(
		ctx,
		`SELECT
			EXISTS (SELECT 1 FROM projects WHERE id = $1),
			EXISTS (SELECT 1 FROM users WHERE id = $2)`,
		input.ProjectID,
		input.RequesterID,
	).Scan(&projectExists, &requesterExists)
	if err != nil {
		return nil, fmt.Errorf("failed to check request references: %w", err)
	}
	if !projectExists {
		return nil, fmt.Errorf("%w: project does not exist", ErrNotFound)
	}
	if !requesterExists {
		return nil, fmt.Errorf("%w: requester does not exist", ErrNotFound)
	}

	materialIDs := make([]string, 0, len(input.Items))
	for _, item := range input.Items {
		materialIDs = append(materialIDs, item.MaterialID)
	}

	type priceInfo struct {
		name      string
		unitPrice float64
		active    bool
	}
	prices := make(map[string]priceInfo, len(materialIDs))

	rows, err := tx.QueryContext(
		ctx,
		"SELECT id, name, unit_price, active FROM materials WHERE id = ANY($1)",
		pq.Array(materialIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load request materials: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var info priceInfo
		if err := rows.Scan(&id, &info.name, &info.unitPrice, &info.active); err != nil {
			return nil, fmt.Errorf("failed to scan material: %w", err)
		}
		prices[id] = info
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading materials: %w", err)
	}

	for _, item := range input.Items {
		info, ok := prices[item.MaterialID]
		if !ok {
			return nil, fmt.Errorf("%w: material does not exist", ErrNotFound)
		}
		if !info.active {
			return nil, fmt.Errorf("%w: material %q is inactive", ErrValidation, info.name)
		}
	}

	request, err := scanMaterialRequest(tx.QueryRowContext(
		ctx,
		`INSERT INTO material_requests (project_id, requester_id, needed_by, note)
		VALUES ($1, $2, $3, $4)
		RETURNING `+materialRequestSelectColumns,
		input.ProjectID,
		input.RequesterID,
		nullableTime(input.NeededBy),
		nullableString(input.Note),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for i, item := range input.Items {
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO material_request_items (request_id, material_id, position, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			request.ID,
			item.MaterialID,
			i+1,
			item.Quantity,
			prices[item.MaterialID].unitPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create request item: %w", err)
		}
	}

	items, err := loadRequestItemsTx(ctx, tx, request.ID)
	if err != nil {
		return nil, err
	}
	request.Items = items

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit request create: %w", err)
	}

	return &request, nil
}

// Approve decides a pending request. Every referenced material row is locked
// in a stable order, every line is verified against current stock, and only
// when all lines pass is stock deducted and the request marked approved. If
// any line fails, nothing is deducted and the request stays pending; the
// error names the first failing material.
//
// Locking the material rows for the whole check-and-deduct sequence is what
// keeps two concurrent approvals competing for the same material from both
// passing the check and overdrawing stock.
func (s *MaterialRequestStore) Approve(ctx context.Context, requestID, approverID string) (*MaterialRequest, error) {
	if !validID(requestID) {
		return nil, fmt.Errorf("%w: invalid request id", ErrValidation)
	}
	if !validID(approverID) {
		return nil, fmt.Errorf("%w: invalid approver id", ErrValidation)
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	request, err := lockRequestTx(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != RequestStatusPending {
		return nil, fmt.Errorf("%w: request already %s", ErrConflict, request.Status)
	}

	if err := checkUserExistsTx(ctx, tx, approverID, "approver"); err != nil {
		return nil, err
	}

	items, err := loadRequestItemsTx(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}

	// Total requirement per material, remembering first appearance order so
	// the insufficient-stock error names the first failing line.
	required := make(map[string]float64, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		if _, seen := required[item.MaterialID]; !seen {
			order = append(order, item.MaterialID)
		}
		required[item.MaterialID] += item.Quantity
	}

	// Lock in sorted id order so concurrent approvals touching the same
	// materials cannot deadlock.
	lockOrder := append([]string(nil), order...)
	sort.Strings(lockOrder)

	stock := make(map[string]Material, len(lockOrder))
	for _, materialID := range lockOrder {
		material, err := lockMaterialTx(ctx, tx, materialID)
		if err != nil {
			return nil, err
		}
		stock[materialID] = material
	}

	for _, materialID := range order {
		material := stock[materialID]
		if material.CurrentStock < required[materialID] {
			return nil, fmt.Errorf("%w: material %q has %.3f on hand, %.3f requested",
				ErrInsufficientStock, material.Name, material.CurrentStock, required[materialID])
		}
	}

	for _, materialID := range order {
		_, err := tx.ExecContext(
			ctx,
			"UPDATE materials SET current_stock = current_stock - $1, updated_at = NOW() WHERE id = $2",
			required[materialID],
			materialID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to deduct stock: %w", err)
		}
	}

	decided, err := scanMaterialRequest(tx.QueryRowContext(
		ctx,
		`UPDATE material_requests SET status = $1, approver_id = $2, decided_at = NOW()
		WHERE id = $3
		RETURNING `+materialRequestSelectColumns,
		RequestStatusApproved,
		approverID,
		requestID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to mark request approved: %w", err)
	}
	decided.Items = items

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit approval: %w", err)
	}

	return &decided, nil
}

// Reject decides a pending request without touching stock. The reason is
// mandatory.
func (s *MaterialRequestStore) Reject(ctx context.Context, requestID, approverID, reason string) (*MaterialRequest, error) {
	if !validID(requestID) {
		return nil, fmt.Errorf("%w: invalid request id", ErrValidation)
	}
	if !validID(approverID) {
		return nil, fmt.Errorf("%w: invalid approver id", ErrValidation)
	}
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	request, err := lockRequestTx(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != RequestStatusPending {
		return nil, fmt.Errorf("%w: request already %s", ErrConflict, request.Status)
	}

	if err := checkUserExistsTx(ctx, tx, approverID, "approver"); err != nil {
		return nil, err
	}

	decided, err := scanMaterialRequest(tx.QueryRowContext(
		ctx,
		`UPDATE material_requests SET status = $1, approver_id = $2, decided_at = NOW(), rejection_reason = $3
		WHERE id = $4
		RETURNING `+materialRequestSelectColumns,
		RequestStatusRejected,
		approverID,
		strings.TrimSpace(reason),
		requestID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to mark request rejected: %w", err)
	}

	items, err := loadRequestItemsTx(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	decided.Items = items

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit rejection: %w", err)
	}

	return &decided, nil
}

// GetByID retrieves a request with its items.
func (s *MaterialRequestStore) GetByID(ctx context.Context, id string) (*MaterialRequest, error) {
	if !validID(id) {
		return nil, fmt.Errorf("%w: invalid request id", ErrValidation)
	}

	query := "SELECT " + materialRequestSelectColumns + " FROM material_requests WHERE id = $1"
	request, err := scanMaterialRequest(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, requestItemsQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load request items: %w", err)
	}
	defer rows.Close()

	items, err := scanRequestItems(rows)
	if err != nil {
		return nil, err
	}
	request.Items = items

	return &request, nil
}

// MaterialRequestFilter defines filtering options for listing requests.
type MaterialRequestFilter struct {
	Status    string
	ProjectID *string
}

// List retrieves request headers matching the filter, newest first.
func (s *MaterialRequestStore) List(ctx context.Context, filter MaterialRequestFilter) ([]MaterialRequest, error) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ProjectID != nil {
		args = append(args, *filter.ProjectID)
		conditions = append(conditions, fmt.Sprintf("project_id = $%d", len(args)))
	}

	query := "SELECT " + materialRequestSelectColumns + " FROM material_requests"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	requests := make([]MaterialRequest, 0)
	for rows.Next() {
		request, err := scanMaterialRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, request)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading requests: %w", err)
	}

	return requests, nil
}

// lockRequestTx loads a request under FOR UPDATE so two concurrent decisions
// on the same request serialize.
func lockRequestTx(ctx context.Context, tx *sql.Tx, id string) (MaterialRequest, error) {
	request, err := scanMaterialRequest(tx.QueryRowContext(
		ctx,
		"SELECT "+materialRequestSelectColumns+" FROM material_requests WHERE id = $1 FOR UPDATE",
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return request, ErrNotFound
		}
		return request, fmt.Errorf("failed to lock request: %w", err)
	}
	return request, nil
}

func checkUserExistsTx(ctx context.Context, tx *sql.Tx, userID, role string) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)", userID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check %s: %w", role, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s does not exist", ErrNotFound, role)
	}
	return nil
}

const requestItemsQuery = `SELECT i.id, i.request_id, i.material_id, m.name, i.position, i.quantity, i.unit_price
	FROM material_request_items i
	JOIN materials m ON m.id = i.material_id
	WHERE i.request_id = $1
	ORDER BY i.position`

func loadRequestItemsTx(ctx context.Context, tx *sql.Tx, requestID string) ([]MaterialRequestItem, error) {
	rows, err := tx.QueryContext(ctx, requestItemsQuery, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load request items: %w", err)
	}
	defer rows.Close()

	return scanRequestItems(rows)
}

func scanRequestItems(rows *sql.Rows) ([]MaterialRequestItem, error) {
	items := make([]MaterialRequestItem, 0)
	for rows.Next() {
		var item MaterialRequestItem
		err := rows.Scan(
			&item.ID,
			&item.RequestID,
			&item.MaterialID,
			&item.MaterialName,
			&item.Position,
			&item.Quantity,
			&item.UnitPrice,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading request items: %w", err)
	}

	return items, nil
}

func scanMaterialRequest(scanner interface{ Scan(...any) error }) (MaterialRequest, error) {
	var request MaterialRequest
	var neededBy sql.NullTime
	var note sql.NullString
	var approverID sql.NullString
	var decidedAt sql.NullTime
	var rejectionReason sql.NullString

	err := scanner.Scan(
		&request.ID,
		&request.ProjectID,
		&request.RequesterID,
		&request.Status,
		&neededBy,
		&note,
		&approverID,
		&decidedAt,
		&rejectionReason,
		&request.CreatedAt,
	)
	if err != nil {
		return request, err
	}

	if neededBy.Valid {
		request.NeededBy = &neededBy.Time
	}
	if note.Valid {
		request.Note = &note.String
	}
	if approverID.Valid {
		request.ApproverID = &approverID.String
	}
	if decidedAt.Valid {
		request.DecidedAt = &decidedAt.Time
	}
	if rejectionReason.Valid {
		request.RejectionReason = &rejectionReason.String
	}

	return request, nil
}
