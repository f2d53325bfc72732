// Package catchup bulk-fetches historical rounds the process missed while
// it was down. Pages are fetched through the provider strategy chain and
// written through the same idempotent-insert contract as the live monitor.
package catchup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vuchq/crashwatch/internal/capture/metrics"
	"github.com/vuchq/crashwatch/internal/capture/record"
	"github.com/vuchq/crashwatch/internal/core/domain"
	"github.com/vuchq/crashwatch/internal/infra/provider"
	"github.com/vuchq/crashwatch/internal/infra/storage"
)

// PageFetcher fetches one page of rounds; satisfied by provider.Chain.
type PageFetcher interface {
	FetchPage(ctx context.Context, page, size int) (*provider.Page, error)
}

// Counts aggregates a catch-up run. Partial page failures are reported
// here, not raised; the caller decides whether to retry.
type Counts struct {
	Fetched int // rounds fetched from the provider
	Saved   int // rounds newly inserted
	Skipped int // rounds already present
	Failed  int // pages for which every strategy failed
}

// Config holds catch-up dependencies and tuning.
type Config struct {
	Fetcher    PageFetcher
	Repo       storage.RoundRepository
	Salt       string
	BatchDelay time.Duration // politeness pause between batches
	Log        *slog.Logger

	// Sleep is injected for tests. Defaults to a context-aware sleep.
	Sleep func(ctx context.Context, d time.Duration) error

	// AfterStore runs after each batch that inserted rounds. Optional.
	AfterStore func(ctx context.Context, inserted int)
}

// Fetcher runs paginated historical fetches.
type Fetcher struct {
	cfg Config
}

// New creates a catch-up fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Sleep == nil {
		cfg.Sleep = func(ctx context.Context, d time.Duration) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d):
				return nil
			}
		}
	}
	return &Fetcher{cfg: cfg}
}

// Fetch pulls totalPages of history, batchSize pages concurrently per
// batch, pageSize rounds per page. Batches run sequentially with a
// politeness delay between them. Returns aggregate counts; the only hard
// error is context cancellation.
func (f *Fetcher) Fetch(
	ctx context.Context,
	totalPages, batchSize, pageSize int,
) (Counts, error) {
	var counts Counts
	if totalPages <= 0 {
		return counts, nil
	}
	if batchSize <= 0 {
		batchSize = 1
	}

	for start := 1; start <= totalPages; start += batchSize {
		end := start + batchSize - 1
		if end > totalPages {
			end = totalPages
		}

		if err := f.fetchBatch(ctx, start, end, pageSize, &counts); err != nil {
			return counts, err
		}

		if end < totalPages {
			if err := f.cfg.Sleep(ctx, f.cfg.BatchDelay); err != nil {
				return counts, err
			}
		}
	}

	f.cfg.Log.Info("catch-up finished",
		"fetched", counts.Fetched, "saved", counts.Saved,
		"skipped", counts.Skipped, "failed_pages", counts.Failed)
	return counts, nil
}

// fetchBatch fetches pages [start, end] concurrently and stores the union.
// A failed page never cancels its siblings.
func (f *Fetcher) fetchBatch(
	ctx context.Context,
	start, end, pageSize int,
	counts *Counts,
) error {
	pages := make([]*provider.Page, end-start+1)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for page := start; page <= end; page++ {
		idx := page - start
		pageNum := page
		g.Go(func() error {
			result, err := f.cfg.Fetcher.FetchPage(gctx, pageNum, pageSize)
			if err != nil {
				f.cfg.Log.Warn("page fetch failed", "page", pageNum, "error", err)
				metrics.CatchupPages.WithLabelValues("failed").Inc()
				mu.Lock()
				counts.Failed++
				mu.Unlock()
				return nil // sibling fetches continue
			}
			metrics.CatchupPages.WithLabelValues("ok").Inc()
			pages[idx] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Union of all pages in the batch, deduped by ID; overlapping pages
	// are normal when the feed shifts under pagination.
	seen := make(map[string]struct{})
	var rounds []*domain.Round
	for _, page := range pages {
		if page == nil {
			continue
		}
		counts.Fetched += len(page.Entries)
		for _, e := range page.Entries {
			if _, dup := seen[e.ID]; dup {
				counts.Skipped++
				continue
			}
			seen[e.ID] = struct{}{}
			rounds = append(rounds, record.FromEntry(e, f.cfg.Salt, f.cfg.Log))
		}
	}
	if len(rounds) == 0 {
		return nil
	}

	// Pre-filter known IDs to keep constraint-violation retries rare.
	ids := make([]string, len(rounds))
	for i, r := range rounds {
		ids[i] = r.ID
	}
	existing, err := f.cfg.Repo.ExistingIDs(ctx, ids)
	if err != nil {
		return err
	}

	candidates := rounds[:0]
	for _, r := range rounds {
		if _, ok := existing[r.ID]; ok {
			counts.Skipped++
			continue
		}
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return nil
	}

	inserted, err := f.cfg.Repo.InsertMany(ctx, candidates)
	if err != nil {
		return err
	}
	counts.Saved += len(inserted)
	// Rounds lost to a concurrent writer race are skips, not failures.
	counts.Skipped += len(candidates) - len(inserted)

	metrics.RoundsCaptured.WithLabelValues(string(domain.SourceCatchup)).Add(float64(len(inserted)))
	if f.cfg.AfterStore != nil && len(inserted) > 0 {
		f.cfg.AfterStore(ctx, len(inserted))
	}
	return nil
}
