package worker

import (
	"context"
	"fmt"
	"time"

	"together-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// Deliverer converts due scheduled messages into messages
type Deliverer interface {
	DeliverDue(ctx context.Context, limit int) (services.DeliveryReport, error)
}

// Planner turns recorded agent activity into queued actions
type Planner interface {
	ProcessPending(ctx context.Context, userID string, batch int) (services.DecisionStats, error)
}

// Pruner deletes processed agent activity older than the retention
type Pruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

const pruneEvery = time.Hour

// Worker polls for due scheduled messages and, when configured, runs the
// agent decision pass after each delivery pass
type Worker struct {
	deliverer Deliverer
	interval  time.Duration
	batchSize int

	planner       Planner
	pruner        Pruner
	decisionBatch int
	retention     time.Duration
	lastPrune     time.Time
}

// New creates a scheduled message worker
func New(deliverer Deliverer, interval time.Duration, batchSize int) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Worker{
		deliverer: deliverer,
		interval:  interval,
		batchSize: batchSize,
	}
}

// WithAgent adds a decision pass of up to batch events to every run and
// prunes processed activity older than retention once an hour
func (w *Worker) WithAgent(planner Planner, pruner Pruner, batch int, retention time.Duration) *Worker {
	w.planner = planner
	w.pruner = pruner
	w.decisionBatch = batch
	w.retention = retention
	return w
}

// Run delivers due messages every interval until ctx is cancelled. A pass
// runs immediately on start.
func (w *Worker) Run(ctx context.Context) {
	log.Info().Dur("interval", w.interval).Int("batch_size", w.batchSize).Msg("Scheduled message worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Scheduled delivery pass failed")
		}

		select {
		case <-ctx.Done():
			log.Info().Msg("Scheduled message worker stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs one delivery pass. A panic in the pass is reported as
// an error.
func (w *Worker) RunOnce(ctx context.Context) (report services.DeliveryReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delivery panic: %v", r)
		}
	}()

	report, err = w.deliverer.DeliverDue(ctx, w.batchSize)
	w.runAgent(ctx)
	if err != nil {
		return report, err
	}
	if report.Sent+report.Failed+report.Skipped > 0 {
		log.Info().
			Int("sent", report.Sent).
			Int("failed", report.Failed).
			Int("skipped", report.Skipped).
			Msg("Scheduled messages processed")
	}
	return report, nil
}

func (w *Worker) runAgent(ctx context.Context) {
	if w.planner != nil {
		if _, err := w.planner.ProcessPending(ctx, "", w.decisionBatch); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Agent decision pass failed")
		}
	}
	if w.pruner != nil && w.retention > 0 && time.Since(w.lastPrune) >= pruneEvery {
		w.lastPrune = time.Now()
		if _, err := w.pruner.Prune(ctx, w.retention); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Agent activity pruning failed")
		}
	}
}
