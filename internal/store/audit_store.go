package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AuditEntry is one line of the append-only audit trail.
type AuditEntry struct {
	ID         string          `json:"id"`
	EntityKind string          `json:"entity_kind"`
	EntityID   *string         `json:"entity_id,omitempty"`
	Action     string          `json:"action"`
	ActorID    *string         `json:"actor_id,omitempty"`
	Metadata   json.RawMessage `json:"metadata"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AuditStore records engine mutations after the fact. Recording failures are
// reported to the caller but must never roll back the operation they describe.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore creates a new AuditStore with the given database connection.
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

const auditSelectColumns = "id, entity_kind, entity_id, action, actor_id, metadata, created_at"

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

// RecordAuditInput defines one audit entry.
type RecordAuditInput struct {
	EntityKind string
	EntityID   *string
	Action     string
	ActorID    *string
	Metadata   json.RawMessage
}

// Record appends an audit entry.
func (s *AuditStore) Record(ctx context.Context, input RecordAuditInput) (*AuditEntry, error) {
	if strings.TrimSpace(input.EntityKind) == "" {
		return nil, fmt.Errorf("%w: entity_kind is required", ErrValidation)
	}
	if strings.TrimSpace(input.Action) == "" {
		return nil, fmt.Errorf("%w: action is required", ErrValidation)
	}

	metadata := input.Metadata
	if len(metadata) == 0 || string(metadata) == "null" {
		metadata = json.RawMessage("{}")
	}

	query := `INSERT INTO audit_log (entity_kind, entity_id, action, actor_id, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + auditSelectColumns

	entry, err := scanAuditEntry(s.db.QueryRowContext(
		ctx,
		query,
		strings.TrimSpace(input.EntityKind),
		nullableString(input.EntityID),
		strings.TrimSpace(input.Action),
		nullableString(input.ActorID),
		[]byte(metadata),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to record audit entry: %w", err)
	}

	return &entry, nil
}

// AuditFilter defines filtering options for listing audit entries.
type AuditFilter struct {
	EntityKind string
	EntityID   *string
	Limit      int
	Offset     int
}

// List retrieves audit entries, newest first.
func (s *AuditStore) List(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 4)

	if filter.EntityKind != "" {
		args = append(args, filter.EntityKind)
		conditions = append(conditions, fmt.Sprintf("entity_kind = $%d", len(args)))
	}
	if filter.EntityID != nil {
		args = append(args, *filter.EntityID)
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", len(args)))
	}

	query := "SELECT " + auditSelectColumns + " FROM audit_log"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]AuditEntry, 0)
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading audit entries: %w", err)
	}

	return entries, nil
}

func scanAuditEntry(scanner interface{ Scan(...any) error }) (AuditEntry, error) {
	var entry AuditEntry
	var entityID sql.NullString
	var actorID sql.NullString
	var metadata []byte

	err := scanner.Scan(
		&entry.ID,
		&entry.EntityKind,
		&entityID,
		&entry.Action,
		&actorID,
		&metadata,
		&entry.CreatedAt,
	)
	if err != nil {
		return entry, err
	}

	if entityID.Valid {
		entry.EntityID = &entityID.String
	}
	if actorID.Valid {
		entry.ActorID = &actorID.String
	}
	if len(metadata) == 0 {
		entry.Metadata = json.RawMessage("{}")
	} else {
		entry.Metadata = json.RawMessage(metadata)
	}

	return entry, nil
}
