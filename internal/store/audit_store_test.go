package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRecordNormalizesMetadata(t *testing.T) {
	db := setupTestDatabase(t, getTestDatabaseURL(t))
	store := NewAuditStore(db)

	entry, err := store.Record(testCtx(), RecordAuditInput{
		EntityKind: "material",
		Action:     "stock_added",
	})
	require.NoError(t, err)
	assert.JSONEq(t, "{}", string(entry.Metadata))

	entry, err = store.Record(testCtx(), RecordAuditInput{
		EntityKind: "material",
		Action:     "stock_removed",
		Metadata:   json.RawMessage(`{"quantity":4}`),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"quantity":4}`, string(entry.Metadata))
}

func TestAuditRecordRequiresKindAndAction(t *testing.T) {
	db := setupTestDatabase(t, getTestDatabaseURL(t))
	store := NewAuditStore(db)

	_, err := store.Record(testCtx(), RecordAuditInput{Action: "created"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = store.Record(testCtx(), RecordAuditInput{EntityKind: "task"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestAuditListFiltersAndOrders(t *testing.T) {
	db := setupTestDatabase(t, getTestDatabaseURL(t))
	store := NewAuditStore(db)

	projectID := createTestProject(t, db, "Audited", 1000)
	taskEntity := "task"
	projectEntity := "project"

	_, err := store.Record(testCtx(), RecordAuditInput{EntityKind: projectEntity, EntityID: &projectID, Action: "created"})
	require.NoError(t, err)
	_, err = store.Record(testCtx(), RecordAuditInput{EntityKind: taskEntity, Action: "created"})
	require.NoError(t, err)
	_, err = store.Record(testCtx(), RecordAuditInput{EntityKind: projectEntity, EntityID: &projectID, Action: "updated"})
	require.NoError(t, err)

	entries, err := store.List(testCtx(), AuditFilter{EntityKind: projectEntity, EntityID: &projectID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "updated", entries[0].Action)
	assert.Equal(t, "created", entries[1].Action)

	entries, err = store.List(testCtx(), AuditFilter{EntityKind: projectEntity, Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entries, err = store.List(testCtx(), AuditFilter{EntityKind: projectEntity, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "created", entries[0].Action)
}
