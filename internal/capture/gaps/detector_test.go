package gaps

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/vuchq/crashwatch/internal/core/domain"
	"github.com/vuchq/crashwatch/internal/infra/storage/memory"
)

// fakeQueue is an in-memory RangeQueue with the redis queue's semantics:
// a set of ranges popped most recent first, with a retry counter per range.
type fakeQueue struct {
	mu      sync.Mutex
	ranges  map[string][2]int64
	retries map[string]int64
	pushErr error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		ranges:  make(map[string][2]int64),
		retries: make(map[string]int64),
	}
}

func rangeKey(from, to int64) string { return fmt.Sprintf("%d-%d", from, to) }

func (q *fakeQueue) PushRange(ctx context.Context, from, to int64) error {
	if q.pushErr != nil {
		return q.pushErr
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ranges[rangeKey(from, to)] = [2]int64{from, to}
	return nil
}

func (q *fakeQueue) PopRange(ctx context.Context) (int64, int64, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.ranges) == 0 {
		return 0, 0, false, nil
	}
	keys := make([]string, 0, len(q.ranges))
	for k := range q.ranges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return q.ranges[keys[i]][0] > q.ranges[keys[j]][0]
	})
	r := q.ranges[keys[0]]
	delete(q.ranges, keys[0])
	return r[0], r[1], true, nil
}

func (q *fakeQueue) QueueLen(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.ranges)), nil
}

func (q *fakeQueue) IncrRetry(ctx context.Context, from, to int64) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retries[rangeKey(from, to)]++
	return q.retries[rangeKey(from, to)], nil
}

func (q *fakeQueue) ClearRetry(ctx context.Context, from, to int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.retries, rangeKey(from, to))
	return nil
}

func TestQueueAllPushesEveryGap(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRoundRepo()
	var rounds []*domain.Round
	for _, id := range []int64{1, 2, 3, 7, 8, 10} {
		rounds = append(rounds, storedRound(id, fmt.Sprintf("h%d", id)))
	}
	if _, err := repo.InsertMany(ctx, rounds); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	queue := newFakeQueue()
	d := NewDetector(repo, queue, slog.Default())

	queued, err := d.QueueAll(ctx)
	if err != nil {
		t.Fatalf("QueueAll failed: %v", err)
	}
	if queued != 2 {
		t.Fatalf("expected 2 gaps queued, got %d", queued)
	}

	// Most recent gap pops first.
	from, to, found, _ := queue.PopRange(ctx)
	if !found || from != 9 || to != 9 {
		t.Errorf("first pop = (%d,%d,%v), want (9,9)", from, to, found)
	}
	from, to, found, _ = queue.PopRange(ctx)
	if !found || from != 4 || to != 6 {
		t.Errorf("second pop = (%d,%d,%v), want (4,6)", from, to, found)
	}
}

func TestQueueAllRequeueIsHarmless(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRoundRepo()
	if _, err := repo.InsertMany(ctx, []*domain.Round{
		storedRound(1, "h1"),
		storedRound(5, "h5"),
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	queue := newFakeQueue()
	d := NewDetector(repo, queue, slog.Default())

	for i := 0; i < 3; i++ {
		if _, err := d.QueueAll(ctx); err != nil {
			t.Fatalf("QueueAll run %d failed: %v", i, err)
		}
	}
	if depth, _ := queue.QueueLen(ctx); depth != 1 {
		t.Errorf("expected 1 queued range after repeated scans, got %d", depth)
	}
}

func TestQueueAllEmptyStore(t *testing.T) {
	d := NewDetector(memory.NewRoundRepo(), newFakeQueue(), slog.Default())
	queued, err := d.QueueAll(context.Background())
	if err != nil {
		t.Fatalf("QueueAll failed: %v", err)
	}
	if queued != 0 {
		t.Errorf("expected 0 gaps on empty store, got %d", queued)
	}
}
