package alerts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mhutchcroft/sitework/internal/notify"
	"github.com/mhutchcroft/sitework/internal/store"
)

type fakeLister struct {
	materials []store.Material
	err       error
}

func (f *fakeLister) List(ctx context.Context, filter store.MaterialFilter) ([]store.Material, error) {
	return f.materials, f.err
}

type fakePublisher struct {
	events []notify.EventType
}

func (f *fakePublisher) Publish(eventType notify.EventType, payload interface{}) {
	f.events = append(f.events, eventType)
}

func TestRunOncePublishesLowStockAlerts(t *testing.T) {
	lister := &fakeLister{materials: []store.Material{
		{ID: "m1", Name: "Rebar", CurrentStock: 2, MinimumStock: 10, BelowMinimum: true},
		{ID: "m2", Name: "Cement", CurrentStock: 0, MinimumStock: 5, BelowMinimum: true},
	}}
	publisher := &fakePublisher{}
	worker := NewWorker(lister, publisher, WorkerConfig{})

	published, err := worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, published)
	assert.Equal(t, []notify.EventType{notify.EventStockBelowMinimum, notify.EventStockBelowMinimum}, publisher.events)
}

func TestRunOnceDoesNotRepeatUnchangedLevels(t *testing.T) {
	lister := &fakeLister{materials: []store.Material{
		{ID: "m1", CurrentStock: 2, MinimumStock: 10, BelowMinimum: true},
	}}
	publisher := &fakePublisher{}
	worker := NewWorker(lister, publisher, WorkerConfig{})

	published, err := worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, published)

	published, err = worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, published)

	// A further drop is worth a fresh alert.
	lister.materials[0].CurrentStock = 1
	published, err = worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, published)
}

func TestRunOnceReAlertsAfterRecovery(t *testing.T) {
	lister := &fakeLister{materials: []store.Material{
		{ID: "m1", CurrentStock: 2, MinimumStock: 10, BelowMinimum: true},
	}}
	publisher := &fakePublisher{}
	worker := NewWorker(lister, publisher, WorkerConfig{})

	_, err := worker.RunOnce(context.Background())
	require.NoError(t, err)

	lister.materials = nil
	_, err = worker.RunOnce(context.Background())
	require.NoError(t, err)

	lister.materials = []store.Material{
		{ID: "m1", CurrentStock: 2, MinimumStock: 10, BelowMinimum: true},
	}
	published, err := worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, published)
}

func TestRunOnceHonorsLimit(t *testing.T) {
	lister := &fakeLister{materials: []store.Material{
		{ID: "m1", BelowMinimum: true},
		{ID: "m2", BelowMinimum: true},
		{ID: "m3", BelowMinimum: true},
	}}
	publisher := &fakePublisher{}
	worker := NewWorker(lister, publisher, WorkerConfig{Limit: 2})

	published, err := worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, published)
}

func TestRunOnceSurfacesListErrors(t *testing.T) {
	lister := &fakeLister{err: errors.New("connection refused")}
	worker := NewWorker(lister, &fakePublisher{}, WorkerConfig{})

	_, err := worker.RunOnce(context.Background())
	assert.Error(t, err)
}
