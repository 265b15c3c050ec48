package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStore_Create(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	projectID := createTestProject(t, db, "New build", 5000)
	store := NewTaskStore(db)

	task, err := store.Create(testCtx(), CreateTaskInput{ProjectID: projectID, Name: "Site prep"})
	require.NoError(t, err)
	require.NotNil(t, task)

	assert.Equal(t, projectID, task.ProjectID)
	assert.Equal(t, TaskStatusNotStarted, task.Status)
	assert.Equal(t, 0, task.Progress)
	assert.Equal(t, 0.0, task.TotalCost)
}

func TestTaskStore_Create_MissingProject(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	store := NewTaskStore(db)

	_, err := store.Create(testCtx(), CreateTaskInput{
		ProjectID: "00000000-0000-0000-0000-000000000000",
		Name:      "Orphan",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTaskStore_UpdateProgress_ClampsAndCascades(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	projectID := createTestProject(t, db, "Progress", 0)
	taskID := createTestTask(t, db, projectID, "Only task")

	store := NewTaskStore(db)

	task, err := store.UpdateProgress(testCtx(), taskID, 150)
	require.NoError(t, err)
	assert.Equal(t, 100, task.Progress)

	task, err = store.UpdateProgress(testCtx(), taskID, -10)
	require.NoError(t, err)
	assert.Equal(t, 0, task.Progress)

	task, err = store.UpdateProgress(testCtx(), taskID, 40)
	require.NoError(t, err)
	assert.Equal(t, 40, task.Progress)

	_, progress := getProjectAggregates(t, db, projectID)
	assert.Equal(t, 40, progress)
}

func TestTaskStore_ProjectProgressIsUnweightedMean(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	projectID := createTestProject(t, db, "Mean", 0)
	first := createTestTask(t, db, projectID, "First")
	second := createTestTask(t, db, projectID, "Second")
	third := createTestTask(t, db, projectID, "Third")

	store := NewTaskStore(db)

	_, err := store.UpdateProgress(testCtx(), first, 0)
	require.NoError(t, err)
	_, err = store.UpdateProgress(testCtx(), second, 50)
	require.NoError(t, err)
	_, err = store.UpdateProgress(testCtx(), third, 100)
	require.NoError(t, err)

	_, progress := getProjectAggregates(t, db, projectID)
	assert.Equal(t, 50, progress)
}

func TestTaskStore_UpdateStatus_DoneForcesFullProgress(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	projectID := createTestProject(t, db, "Done coupling", 0)
	taskID := createTestTask(t, db, projectID, "Inspection")

	store := NewTaskStore(db)

	_, err := store.UpdateProgress(testCtx(), taskID, 60)
	require.NoError(t, err)

	task, err := store.UpdateStatus(testCtx(), taskID, TaskStatusDone)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusDone, task.Status)
	assert.Equal(t, 100, task.Progress)

	// Leaving done does not lower progress: the coupling is one-directional.
	task, err = store.UpdateStatus(testCtx(), taskID, TaskStatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusInProgress, task.Status)
	assert.Equal(t, 100, task.Progress)
}

func TestTaskStore_UpdateStatus_InvalidStatus(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	projectID := createTestProject(t, db, "Bad status", 0)
	taskID := createTestTask(t, db, projectID, "Demolition")

	store := NewTaskStore(db)

	_, err := store.UpdateStatus(testCtx(), taskID, "paused")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTaskStore_Delete_RefreshesProjectAggregates(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	projectID := createTestProject(t, db, "Delete cascade", 0)
	keep := createTestTask(t, db, projectID, "Keep")
	drop := createTestTask(t, db, projectID, "Drop")
	serviceID := createTestService(t, db, "Hauling", 0, 0, 25)

	bindings := NewTaskServiceStore(db)
	_, err := bindings.Add(testCtx(), AddTaskServiceInput{TaskID: drop, ServiceID: serviceID, Quantity: 4})
	require.NoError(t, err)

	store := NewTaskStore(db)
	_, err = store.UpdateProgress(testCtx(), keep, 80)
	require.NoError(t, err)

	realized, _ := getProjectAggregates(t, db, projectID)
	require.Equal(t, 100.0, realized)

	err = store.Delete(testCtx(), drop)
	require.NoError(t, err)

	realized, progress := getProjectAggregates(t, db, projectID)
	assert.Equal(t, 0.0, realized)
	assert.Equal(t, 80, progress)
}

func TestTaskStore_RecalculateCosts_Idempotent(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	projectID := createTestProject(t, db, "Idempotent", 0)
	taskID := createTestTask(t, db, projectID, "Paving")
	serviceID := createTestService(t, db, "Asphalt laying", 18, 22, 10)

	bindings := NewTaskServiceStore(db)
	_, err := bindings.Add(testCtx(), AddTaskServiceInput{TaskID: taskID, ServiceID: serviceID, Quantity: 2})
	require.NoError(t, err)

	store := NewTaskStore(db)

	first, err := store.RecalculateCosts(testCtx(), taskID)
	require.NoError(t, err)
	second, err := store.RecalculateCosts(testCtx(), taskID)
	require.NoError(t, err)

	assert.Equal(t, first.TotalCost, second.TotalCost)
	assert.Equal(t, 100.0, second.TotalCost)
}
