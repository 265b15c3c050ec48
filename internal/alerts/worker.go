// Package alerts periodically announces materials that sit at or under their
// minimum stock so dashboards see shortfalls without polling.
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/mhutchcroft/sitework/internal/notify"
	"github.com/mhutchcroft/sitework/internal/store"
)

const (
	defaultPollInterval = time.Minute
	defaultLimit        = 100
)

// MaterialLister is the slice of the material store the worker needs.
type MaterialLister interface {
	List(ctx context.Context, filter store.MaterialFilter) ([]store.Material, error)
}

// Publisher delivers events to connected clients.
type Publisher interface {
	Publish(eventType notify.EventType, payload interface{})
}

type WorkerConfig struct {
	PollInterval time.Duration
	Limit        int
}

// Worker scans for low-stock materials on an interval. Each material is
// announced once per stock level: a material that stays put is not repeated,
// one that drops further or recovers and dips again is.
type Worker struct {
	Materials MaterialLister
	Publisher Publisher
	Config    WorkerConfig
	Logf      func(string, ...any)

	announced map[string]float64
}

func NewWorker(materials MaterialLister, publisher Publisher, cfg WorkerConfig) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}

	return &Worker{
		Materials: materials,
		Publisher: publisher,
		Config:    cfg,
		announced: make(map[string]float64),
	}
}

func (w *Worker) Start(ctx context.Context) {
	for {
		if _, err := w.RunOnce(ctx); err != nil && w.Logf != nil {
			w.Logf("stock alert scan failed: %v", err)
		}
		if err := sleepWithContext(ctx, w.Config.PollInterval); err != nil {
			return
		}
	}
}

// RunOnce performs a single scan and returns how many alerts were published.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	if w == nil || w.Materials == nil {
		return 0, fmt.Errorf("stock alert worker is not configured")
	}

	materials, err := w.Materials.List(ctx, store.MaterialFilter{
		ActiveOnly:   true,
		BelowMinimum: true,
	})
	if err != nil {
		return 0, err
	}
	if len(materials) > w.Config.Limit {
		materials = materials[:w.Config.Limit]
	}

	below := make(map[string]bool, len(materials))
	published := 0
	for _, material := range materials {
		below[material.ID] = true
		if level, ok := w.announced[material.ID]; ok && level == material.CurrentStock {
			continue
		}
		w.announced[material.ID] = material.CurrentStock
		if w.Publisher != nil {
			w.Publisher.Publish(notify.EventStockBelowMinimum, material)
		}
		published++
	}

	// Recovered materials become eligible for a fresh alert.
	for id := range w.announced {
		if !below[id] {
			delete(w.announced, id)
		}
	}

	return published, nil
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
