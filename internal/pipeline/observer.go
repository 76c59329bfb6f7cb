package pipeline

import (
	"context"

	"github.com/maltedev/phosphosite-scraper/internal/models"
)

// Observer is notified after every processed key.
type Observer interface {
	Observe(ctx context.Context, outcome models.Outcome)
}

// RunObserver is additionally told when a run starts and finishes.
type RunObserver interface {
	Observer
	RunStarted(ctx context.Context, runID string, keys []models.RecordKey)
	RunFinished(ctx context.Context, result *Result)
}

type ObserverFunc func(ctx context.Context, outcome models.Outcome)

func (f ObserverFunc) Observe(ctx context.Context, outcome models.Outcome) {
	f(ctx, outcome)
}

func (d *Driver) notify(ctx context.Context, o models.Outcome) {
	for _, obs := range d.observers {
		obs.Observe(ctx, o)
	}
}

func (d *Driver) notifyStart(ctx context.Context, runID string, keys []models.RecordKey) {
	for _, obs := range d.observers {
		if ro, ok := obs.(RunObserver); ok {
			ro.RunStarted(ctx, runID, keys)
		}
	}
}

func (d *Driver) notifyFinish(ctx context.Context, result *Result) {
	for _, obs := range d.observers {
		if ro, ok := obs.(RunObserver); ok {
			ro.RunFinished(ctx, result)
		}
	}
}
