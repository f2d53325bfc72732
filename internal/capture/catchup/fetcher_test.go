package catchup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/vuchq/crashwatch/internal/infra/provider"
	"github.com/vuchq/crashwatch/internal/infra/storage/memory"
)

// pageMap serves fixed pages by number.
type pageMap struct {
	mu    sync.Mutex
	pages map[int]*provider.Page
	errs  map[int]error
	calls []int
}

func (p *pageMap) FetchPage(ctx context.Context, page, size int) (*provider.Page, error) {
	p.mu.Lock()
	p.calls = append(p.calls, page)
	p.mu.Unlock()
	if err, ok := p.errs[page]; ok {
		return nil, err
	}
	if pg, ok := p.pages[page]; ok {
		return pg, nil
	}
	return &provider.Page{}, nil
}

func fivePage(startID int) *provider.Page {
	page := &provider.Page{}
	for i := 0; i < 5; i++ {
		page.Entries = append(page.Entries, provider.Entry{
			ID:       fmt.Sprintf("%d", startID-i),
			SeedHash: "aa",
			Outcome:  2.0,
		})
	}
	return page
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestFetchSavesThenSkipsOnRerun(t *testing.T) {
	repo := memory.NewRoundRepo()
	fetcher := New(Config{
		Fetcher: &pageMap{pages: map[int]*provider.Page{1: fivePage(105)}},
		Repo:    repo,
		Salt:    "ab",
		Log:     slog.Default(),
		Sleep:   noSleep,
	})
	ctx := context.Background()

	counts, err := fetcher.Fetch(ctx, 1, 1, 5)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if counts.Fetched != 5 || counts.Saved != 5 || counts.Skipped != 0 || counts.Failed != 0 {
		t.Fatalf("first run counts = %+v, want fetched=5 saved=5", counts)
	}

	max, _ := repo.MaxID(ctx)
	min, _ := repo.MinID(ctx)
	if min != 101 || max != 105 {
		t.Errorf("expected store to hold 101..105, got min=%d max=%d", min, max)
	}

	// Re-running the same page is a no-op: everything skipped, nothing raised.
	counts, err = fetcher.Fetch(ctx, 1, 1, 5)
	if err != nil {
		t.Fatalf("second Fetch failed: %v", err)
	}
	if counts.Saved != 0 || counts.Skipped != 5 {
		t.Errorf("second run counts = %+v, want saved=0 skipped=5", counts)
	}
}

func TestFetchFailedPageDoesNotAbortBatch(t *testing.T) {
	repo := memory.NewRoundRepo()
	src := &pageMap{
		pages: map[int]*provider.Page{
			1: fivePage(110),
			3: fivePage(100),
		},
		errs: map[int]error{2: provider.ErrTransient},
	}
	fetcher := New(Config{
		Fetcher: src, Repo: repo, Salt: "ab", Log: slog.Default(), Sleep: noSleep,
	})

	counts, err := fetcher.Fetch(context.Background(), 3, 3, 5)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if counts.Failed != 1 {
		t.Errorf("expected 1 failed page, got %d", counts.Failed)
	}
	if counts.Saved != 10 {
		t.Errorf("expected 10 saved from surviving pages, got %d", counts.Saved)
	}
	if len(src.calls) != 3 {
		t.Errorf("expected all 3 pages attempted, got %v", src.calls)
	}
}

func TestFetchOverlappingPagesDeduped(t *testing.T) {
	repo := memory.NewRoundRepo()
	// Pages 1 and 2 overlap on rounds 103..101 (feed shifted mid-run).
	src := &pageMap{pages: map[int]*provider.Page{
		1: fivePage(105),
		2: fivePage(103),
	}}
	fetcher := New(Config{
		Fetcher: src, Repo: repo, Salt: "ab", Log: slog.Default(), Sleep: noSleep,
	})

	counts, err := fetcher.Fetch(context.Background(), 2, 2, 5)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if counts.Saved != 7 {
		t.Errorf("expected 7 distinct rounds saved, got %d", counts.Saved)
	}
	if counts.Skipped != 3 {
		t.Errorf("expected 3 overlapping rounds skipped, got %d", counts.Skipped)
	}
}

func TestFetchSleepsBetweenBatches(t *testing.T) {
	repo := memory.NewRoundRepo()
	src := &pageMap{pages: map[int]*provider.Page{
		1: fivePage(110), 2: fivePage(105), 3: fivePage(100),
	}}

	var sleeps int
	fetcher := New(Config{
		Fetcher:    src,
		Repo:       repo,
		Salt:       "ab",
		BatchDelay: time.Millisecond,
		Log:        slog.Default(),
		Sleep: func(ctx context.Context, d time.Duration) error {
			sleeps++
			return nil
		},
	})

	if _, err := fetcher.Fetch(context.Background(), 3, 1, 5); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	// 3 batches of 1 page: a delay after the first two only.
	if sleeps != 2 {
		t.Errorf("expected 2 inter-batch sleeps, got %d", sleeps)
	}
}

func TestFetchZeroPages(t *testing.T) {
	fetcher := New(Config{
		Fetcher: &pageMap{}, Repo: memory.NewRoundRepo(), Salt: "ab",
		Log: slog.Default(), Sleep: noSleep,
	})
	counts, err := fetcher.Fetch(context.Background(), 0, 5, 10)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if counts != (Counts{}) {
		t.Errorf("expected zero counts, got %+v", counts)
	}
}
