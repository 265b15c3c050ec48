package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskServiceStore_BindAndUnbindRecomputesCosts(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	projectID := createTestProject(t, db, "Warehouse", 1000)
	taskID := createTestTask(t, db, projectID, "Roofing")

	serviceA := createTestService(t, db, "Service A", 10, 5, 0)
	serviceB := createTestService(t, db, "Service B", 0, 0, 4)

	store := NewTaskServiceStore(db)

	// No bindings: all-zero costs, not an error.
	_, _, _, total := getTaskCosts(t, db, taskID)
	require.Equal(t, 0.0, total)

	_, err := store.Add(testCtx(), AddTaskServiceInput{TaskID: taskID, ServiceID: serviceA, Quantity: 2})
	require.NoError(t, err)

	labor, material, _, total := getTaskCosts(t, db, taskID)
	assert.Equal(t, 20.0, labor)
	assert.Equal(t, 10.0, material)
	assert.Equal(t, 30.0, total)

	_, err = store.Add(testCtx(), AddTaskServiceInput{TaskID: taskID, ServiceID: serviceB, Quantity: 1})
	require.NoError(t, err)

	_, _, equipment, total := getTaskCosts(t, db, taskID)
	assert.Equal(t, 4.0, equipment)
	assert.Equal(t, 34.0, total)

	realized, _ := getProjectAggregates(t, db, projectID)
	assert.Equal(t, 34.0, realized)

	err = store.Remove(testCtx(), taskID, serviceA)
	require.NoError(t, err)

	labor, material, equipment, total = getTaskCosts(t, db, taskID)
	assert.Equal(t, 0.0, labor)
	assert.Equal(t, 0.0, material)
	assert.Equal(t, 4.0, equipment)
	assert.Equal(t, 4.0, total)

	realized, _ = getProjectAggregates(t, db, projectID)
	assert.Equal(t, 4.0, realized)
}

func TestTaskServiceStore_Add_DuplicateBinding(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	projectID := createTestProject(t, db, "Duplicate binding", 0)
	taskID := createTestTask(t, db, projectID, "Framing")
	serviceID := createTestService(t, db, "Framing labor", 30, 0, 0)

	store := NewTaskServiceStore(db)

	_, err := store.Add(testCtx(), AddTaskServiceInput{TaskID: taskID, ServiceID: serviceID, Quantity: 1})
	require.NoError(t, err)

	// Re-adding the same pair must fail, not silently update.
	_, err = store.Add(testCtx(), AddTaskServiceInput{TaskID: taskID, ServiceID: serviceID, Quantity: 2})
	assert.ErrorIs(t, err, ErrConflict)

	bindings, err := store.ListByTask(testCtx(), taskID)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, 1.0, bindings[0].Quantity)
}

func TestTaskServiceStore_Add_MissingReferences(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	projectID := createTestProject(t, db, "Missing refs", 0)
	taskID := createTestTask(t, db, projectID, "Plumbing")
	serviceID := createTestService(t, db, "Pipe fitting", 20, 10, 0)

	store := NewTaskServiceStore(db)
	missing := "00000000-0000-0000-0000-000000000000"

	_, err := store.Add(testCtx(), AddTaskServiceInput{TaskID: missing, ServiceID: serviceID, Quantity: 1})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Add(testCtx(), AddTaskServiceInput{TaskID: taskID, ServiceID: missing, Quantity: 1})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Add(testCtx(), AddTaskServiceInput{TaskID: taskID, ServiceID: serviceID, Quantity: 0})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTaskServiceStore_Add_CostOverrideCollapsesCategories(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	projectID := createTestProject(t, db, "Override", 0)
	taskID := createTestTask(t, db, projectID, "Electrical")
	serviceID := createTestService(t, db, "Wiring", 50, 20, 5)

	store := NewTaskServiceStore(db)

	override := 60.0
	binding, err := store.Add(testCtx(), AddTaskServiceInput{
		TaskID:       taskID,
		ServiceID:    serviceID,
		Quantity:     3,
		CostOverride: &override,
	})
	require.NoError(t, err)
	require.NotNil(t, binding.CostOverride)
	assert.Equal(t, 60.0, *binding.CostOverride)

	// The override replaces all three unit costs: the blended amount lands in
	// the total and the categories stay zero.
	labor, material, equipment, total := getTaskCosts(t, db, taskID)
	assert.Equal(t, 0.0, labor)
	assert.Equal(t, 0.0, material)
	assert.Equal(t, 0.0, equipment)
	assert.Equal(t, 180.0, total)
}

func TestTaskServiceStore_MixedItemizedAndOverrideBindings(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	projectID := createTestProject(t, db, "Mixed", 0)
	taskID := createTestTask(t, db, projectID, "Finishing")
	itemized := createTestService(t, db, "Plastering", 12, 6, 0)
	blended := createTestService(t, db, "Tiling", 40, 25, 5)

	store := NewTaskServiceStore(db)

	_, err := store.Add(testCtx(), AddTaskServiceInput{TaskID: taskID, ServiceID: itemized, Quantity: 10})
	require.NoError(t, err)

	override := 55.0
	_, err = store.Add(testCtx(), AddTaskServiceInput{TaskID: taskID, ServiceID: blended, Quantity: 2, CostOverride: &override})
	require.NoError(t, err)

	labor, material, equipment, total := getTaskCosts(t, db, taskID)
	assert.Equal(t, 120.0, labor)
	assert.Equal(t, 60.0, material)
	assert.Equal(t, 0.0, equipment)
	assert.Equal(t, 290.0, total)
}

func TestTaskServiceStore_Remove_NotFound(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	projectID := createTestProject(t, db, "Remove missing", 0)
	taskID := createTestTask(t, db, projectID, "Landscaping")
	serviceID := createTestService(t, db, "Turf laying", 5, 15, 0)

	store := NewTaskServiceStore(db)

	err := store.Remove(testCtx(), taskID, serviceID)
	assert.ErrorIs(t, err, ErrNotFound)
}
