// Package monitor polls the provider's latest-rounds feed and emits every
// new round exactly once, in chronological order.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/vuchq/crashwatch/internal/capture/metrics"
	"github.com/vuchq/crashwatch/internal/capture/pubsub"
	"github.com/vuchq/crashwatch/internal/capture/record"
	"github.com/vuchq/crashwatch/internal/core/domain"
	"github.com/vuchq/crashwatch/internal/infra/provider"
	"github.com/vuchq/crashwatch/internal/infra/storage"
)

// PageFetcher fetches one page of rounds; satisfied by provider.Chain.
type PageFetcher interface {
	FetchPage(ctx context.Context, page, size int) (*provider.Page, error)
}

// Config holds live monitor dependencies and tuning.
type Config struct {
	Fetcher       PageFetcher
	Repo          storage.RoundRepository
	Broker        *pubsub.Broker
	Salt          string
	PollInterval  time.Duration
	RetryInterval time.Duration // sleep after a failed fetch
	PageSize      int
	RingCapacity  int
	Log           *slog.Logger

	// Sleep is injected so tests can simulate many ticks without real
	// time passing. Defaults to a context-aware time.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error

	// AfterStore runs after each tick that inserted rounds (cache
	// generation bump lives here). Optional.
	AfterStore func(ctx context.Context, inserted int)
}

// Monitor is the live polling loop. One goroutine runs Start; ticks never
// overlap because each completes fully before the next sleep begins.
type Monitor struct {
	cfg     Config
	running atomic.Bool
	stop    chan struct{}

	primed   bool
	lastSeen atomic.Int64 // low-water mark: newest round ID already handled
	lastTick atomic.Int64 // unix time of the last successful tick
	ring     *Ring
}

// New creates a live monitor.
func New(cfg Config) *Monitor {
	if cfg.Sleep == nil {
		cfg.Sleep = sleepCtx
	}
	return &Monitor{
		cfg:  cfg,
		stop: make(chan struct{}),
		ring: NewRing(cfg.RingCapacity),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Start runs the polling loop until the context is cancelled or Stop is
// called. Fetch failures never terminate the loop.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return fmt.Errorf("monitor already running")
	}
	defer m.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.stop:
			return nil
		default:
		}

		wait := m.cfg.PollInterval
		if err := m.tick(ctx); err != nil {
			m.cfg.Log.Warn("poll tick failed", "error", err)
			wait = m.cfg.RetryInterval
		}

		if err := m.cfg.Sleep(ctx, wait); err != nil {
			return nil
		}
	}
}

// Stop signals the loop to exit after the current tick.
func (m *Monitor) Stop() error {
	if m.running.Load() {
		close(m.stop)
	}
	return nil
}

// Recent returns up to n recently seen rounds, newest first.
func (m *Monitor) Recent(n int) []*domain.Round {
	return m.ring.Recent(n)
}

// LastSeen returns the current low-water mark, 0 before the first tick.
func (m *Monitor) LastSeen() int64 {
	return m.lastSeen.Load()
}

// LastTick returns when the last successful poll completed, zero before the
// first one.
func (m *Monitor) LastTick() time.Time {
	unix := m.lastTick.Load()
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}

// tick runs one poll cycle: fetch, diff against the low-water mark, store,
// publish. Only the monitor goroutine writes lastSeen; readers go through
// the atomic.
func (m *Monitor) tick(ctx context.Context) error {
	page, err := m.cfg.Fetcher.FetchPage(ctx, 1, m.cfg.PageSize)
	if err != nil {
		return fmt.Errorf("fetch latest page: %w", err)
	}
	m.lastTick.Store(time.Now().Unix())
	if len(page.Entries) == 0 {
		return nil
	}

	newest, err := strconv.ParseInt(page.Entries[0].ID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad id %q", provider.ErrMalformed, page.Entries[0].ID)
	}

	// First tick ever: record the mark, emit nothing. History predating
	// the process is the catch-up fetcher's job.
	if !m.primed {
		m.primed = true
		m.lastSeen.Store(newest)
		metrics.MonitorLastRound.Set(float64(newest))
		m.cfg.Log.Info("live monitor primed", "last_round", newest)
		return nil
	}

	// Scan newest to oldest until the mark; everything strictly newer is new.
	var fresh []provider.Entry
	for _, e := range page.Entries {
		id, err := strconv.ParseInt(e.ID, 10, 64)
		if err != nil {
			m.cfg.Log.Warn("skipping entry with bad id", "id", e.ID)
			continue
		}
		if id <= m.lastSeen.Load() {
			break
		}
		fresh = append(fresh, e)
	}
	if len(fresh) == 0 {
		return nil
	}

	// Process oldest to newest to preserve chronological order for
	// subscribers.
	rounds := make([]*domain.Round, 0, len(fresh))
	for i := len(fresh) - 1; i >= 0; i-- {
		rounds = append(rounds, record.FromEntry(fresh[i], m.cfg.Salt, m.cfg.Log))
	}

	insertedIDs, err := m.cfg.Repo.InsertMany(ctx, rounds)
	if err != nil {
		return fmt.Errorf("store new rounds: %w", err)
	}
	inserted := make(map[string]struct{}, len(insertedIDs))
	for _, id := range insertedIDs {
		inserted[id] = struct{}{}
	}

	for _, round := range rounds {
		m.ring.Add(round)
		if _, ok := inserted[round.ID]; !ok {
			// Another writer beat us; it is already stored and published
			// state is their concern. Never publish twice.
			continue
		}
		metrics.RoundsCaptured.WithLabelValues(string(domain.SourceLive)).Inc()
		m.cfg.Broker.Publish(ctx, round)
	}

	m.lastSeen.Store(newest)
	metrics.MonitorLastRound.Set(float64(newest))

	if m.cfg.AfterStore != nil && len(insertedIDs) > 0 {
		m.cfg.AfterStore(ctx, len(insertedIDs))
	}
	return nil
}
