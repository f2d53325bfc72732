package gaps

import (
	"context"
	"log/slog"
	"time"

	"github.com/vuchq/crashwatch/internal/capture/metrics"
	"github.com/vuchq/crashwatch/internal/infra/storage"
)

// Worker drains the reconcile queue: pop a range, reconcile it, re-queue on
// transient failure up to a retry ceiling. One worker runs per process; the
// oracle is a serial, browser-backed resource.
type Worker struct {
	queue      RangeQueue
	reconciler *Reconciler
	maxRetries int
	idleWait   time.Duration
	log        *slog.Logger

	// afterStore runs after a range stores recovered rounds. Optional.
	afterStore func(ctx context.Context, inserted int)
}

// NewWorker creates a reconcile worker.
func NewWorker(
	queue RangeQueue,
	reconciler *Reconciler,
	maxRetries int,
	idleWait time.Duration,
	log *slog.Logger,
	afterStore func(ctx context.Context, inserted int),
) *Worker {
	return &Worker{
		queue:      queue,
		reconciler: reconciler,
		maxRetries: maxRetries,
		idleWait:   idleWait,
		log:        log,
		afterStore: afterStore,
	}
}

// Run processes queued ranges until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		processed, err := w.processOne(ctx)
		if err != nil {
			w.log.Warn("reconcile pass failed", "error", err)
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.idleWait):
		}
	}
}

// processOne pops and reconciles a single range. Returns false when the
// queue was empty.
func (w *Worker) processOne(ctx context.Context) (bool, error) {
	from, to, found, err := w.queue.PopRange(ctx)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	gap := storage.Gap{From: from, To: to, Count: to - from + 1}
	rounds, err := w.reconciler.Reconcile(ctx, gap)

	if err != nil {
		// A missing anchor affects only this range and usually resolves
		// itself once catch-up or the live monitor stores the round above
		// it, so it goes through the same retry ceiling as everything else.
		w.retryOrDrop(ctx, from, to, err)
	} else {
		_ = w.queue.ClearRetry(ctx, from, to)
		if w.afterStore != nil && len(rounds) > 0 {
			w.afterStore(ctx, len(rounds))
		}
	}

	if depth, derr := w.queue.QueueLen(ctx); derr == nil {
		metrics.ReconcileQueueDepth.Set(float64(depth))
	}
	return true, nil
}

func (w *Worker) retryOrDrop(ctx context.Context, from, to int64, cause error) {
	retries, err := w.queue.IncrRetry(ctx, from, to)
	if err != nil {
		w.log.Warn("retry bookkeeping failed", "from", from, "to", to, "error", err)
		return
	}
	if retries >= int64(w.maxRetries) {
		w.log.Error("range dropped after max retries",
			"from", from, "to", to, "retries", retries, "cause", cause)
		_ = w.queue.ClearRetry(ctx, from, to)
		return
	}

	w.log.Warn("range re-queued", "from", from, "to", to, "retries", retries, "cause", cause)
	if err := w.queue.PushRange(ctx, from, to); err != nil {
		w.log.Error("failed to re-queue range", "from", from, "to", to, "error", err)
	}
}
