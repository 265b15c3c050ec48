package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeBudgetView(t *testing.T) {
	view := ComputeBudgetView(1000, 250)
	assert.Equal(t, 750.0, view.Variance)
	assert.Equal(t, 25.0, view.UtilizationPercent)
	assert.False(t, view.IsOverBudget)

	over := ComputeBudgetView(1000, 1200)
	assert.Equal(t, -200.0, over.Variance)
	assert.Equal(t, 120.0, over.UtilizationPercent)
	assert.True(t, over.IsOverBudget)
}

func TestComputeBudgetView_ZeroBudget(t *testing.T) {
	view := ComputeBudgetView(0, 500)
	assert.Equal(t, -500.0, view.Variance)
	assert.Equal(t, 0.0, view.UtilizationPercent)
	assert.True(t, view.IsOverBudget)
}

func TestComputeBudgetView_ExactlyOnBudget(t *testing.T) {
	view := ComputeBudgetView(800, 800)
	assert.Equal(t, 0.0, view.Variance)
	assert.Equal(t, 100.0, view.UtilizationPercent)
	assert.False(t, view.IsOverBudget)
}

func TestProjectStore_CreateAndGet(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	store := NewProjectStore(db)

	project, err := store.Create(testCtx(), CreateProjectInput{Name: "Office tower", TotalBudget: 250000})
	require.NoError(t, err)
	require.NotNil(t, project)

	assert.Equal(t, ProjectStatusActive, project.Status)
	assert.Equal(t, 0.0, project.RealizedCost)
	assert.Equal(t, 0, project.Progress)

	loaded, err := store.GetByID(testCtx(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, project.ID, loaded.ID)
	assert.Equal(t, 250000.0, loaded.TotalBudget)
}

func TestProjectStore_Create_NegativeBudget(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	store := NewProjectStore(db)

	_, err := store.Create(testCtx(), CreateProjectInput{Name: "Bad", TotalBudget: -1})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestProjectStore_RecalculateProgress_NoTasksIsZero(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	projectID := createTestProject(t, db, "Empty", 0)

	store := NewProjectStore(db)

	project, err := store.RecalculateProgress(testCtx(), projectID)
	require.NoError(t, err)
	assert.Equal(t, 0, project.Progress)
}

func TestProjectStore_Recalculate_MissingProject(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	store := NewProjectStore(db)
	missing := "00000000-0000-0000-0000-000000000000"

	_, err := store.RecalculateProgress(testCtx(), missing)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.RecalculateRealizedCost(testCtx(), missing)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProjectStore_Budget_ReflectsRealizedCost(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	projectID := createTestProject(t, db, "Budget view", 200)
	taskID := createTestTask(t, db, projectID, "Groundwork")
	serviceID := createTestService(t, db, "Grading", 25, 0, 0)

	bindings := NewTaskServiceStore(db)
	_, err := bindings.Add(testCtx(), AddTaskServiceInput{TaskID: taskID, ServiceID: serviceID, Quantity: 10})
	require.NoError(t, err)

	store := NewProjectStore(db)

	view, err := store.Budget(testCtx(), projectID)
	require.NoError(t, err)
	assert.Equal(t, 250.0, view.RealizedCost)
	assert.Equal(t, -50.0, view.Variance)
	assert.Equal(t, 125.0, view.UtilizationPercent)
	assert.True(t, view.IsOverBudget)
}

func TestProjectStore_RealizedCostCountsAllStatuses(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	projectID := createTestProject(t, db, "All statuses", 0)
	active := createTestTask(t, db, projectID, "Active")
	cancelled := createTestTask(t, db, projectID, "Cancelled")
	serviceID := createTestService(t, db, "Surveying", 100, 0, 0)

	bindings := NewTaskServiceStore(db)
	_, err := bindings.Add(testCtx(), AddTaskServiceInput{TaskID: active, ServiceID: serviceID, Quantity: 1})
	require.NoError(t, err)
	_, err = bindings.Add(testCtx(), AddTaskServiceInput{TaskID: cancelled, ServiceID: serviceID, Quantity: 1})
	require.NoError(t, err)

	tasks := NewTaskStore(db)
	_, err = tasks.UpdateStatus(testCtx(), cancelled, TaskStatusCancelled)
	require.NoError(t, err)

	// Realized cost tracks work costed so far, not only finished work.
	realized, _ := getProjectAggregates(t, db, projectID)
	assert.Equal(t, 200.0, realized)
}
