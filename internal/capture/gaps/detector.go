// Package gaps finds missing round-ID ranges in the store and recovers
// them by replaying the provider's hash chain through the verification
// oracle.
package gaps

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vuchq/crashwatch/internal/capture/metrics"
	"github.com/vuchq/crashwatch/internal/infra/storage"
)

// RangeQueue is the reconcile work queue; satisfied by the redis client.
type RangeQueue interface {
	PushRange(ctx context.Context, from, to int64) error
	PopRange(ctx context.Context) (from, to int64, found bool, err error)
	QueueLen(ctx context.Context) (int64, error)
	IncrRetry(ctx context.Context, from, to int64) (int64, error)
	ClearRetry(ctx context.Context, from, to int64) error
}

// Detector scans the store for missing round ranges. Read-only; it never
// touches the provider.
type Detector struct {
	repo  storage.RoundRepository
	queue RangeQueue
	log   *slog.Logger
}

// NewDetector creates a gap detector.
func NewDetector(repo storage.RoundRepository, queue RangeQueue, log *slog.Logger) *Detector {
	return &Detector{repo: repo, queue: queue, log: log}
}

// FindMissingRanges returns every contiguous missing range between the
// store's min and max IDs, most recent gap first.
func (d *Detector) FindMissingRanges(ctx context.Context) ([]storage.Gap, error) {
	gaps, err := d.repo.FindGaps(ctx)
	if err != nil {
		return nil, fmt.Errorf("gap scan failed: %w", err)
	}
	return gaps, nil
}

// QueueAll scans for gaps and pushes each onto the reconcile queue.
// Re-queueing a range already in the queue is harmless: the queue is a
// set, and a double reconcile is absorbed by the idempotent insert.
func (d *Detector) QueueAll(ctx context.Context) (int, error) {
	gaps, err := d.FindMissingRanges(ctx)
	if err != nil {
		return 0, err
	}

	for _, gap := range gaps {
		if err := d.queue.PushRange(ctx, gap.From, gap.To); err != nil {
			return 0, fmt.Errorf("failed to queue range %d-%d: %w", gap.From, gap.To, err)
		}
		metrics.GapsDetected.Inc()
		d.log.Info("queued missing range", "from", gap.From, "to", gap.To, "count", gap.Count)
	}

	if depth, err := d.queue.QueueLen(ctx); err == nil {
		metrics.ReconcileQueueDepth.Set(float64(depth))
	}
	return len(gaps), nil
}

// Run scans on a fixed schedule until the context is cancelled. Scan
// failures are logged and the loop continues.
func (d *Detector) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := d.QueueAll(ctx); err != nil {
				d.log.Warn("scheduled gap scan failed", "error", err)
			}
		}
	}
}
