package health

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Health(ctx context.Context) error
}

// LiveFeed exposes the live monitor's freshness.
type LiveFeed interface {
	LastSeen() int64
	LastTick() time.Time
}

// DepthReader reports the reconcile queue depth.
type DepthReader interface {
	QueueLen(ctx context.Context) (int64, error)
}

// Monitor aggregates health status from the store, the cache, the live
// feed and the reconcile queue.
type Monitor struct {
	db    Pinger
	cache Pinger
	live  LiveFeed
	queue DepthReader

	// staleAfter is how long the live feed may go without a successful
	// poll before it counts as degraded.
	staleAfter time.Duration

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport Report
}

// NewMonitor creates a health monitor. Nil components are reported as
// disabled rather than failing.
func NewMonitor(db Pinger, cache Pinger, live LiveFeed, queue DepthReader, staleAfter time.Duration) *Monitor {
	return &Monitor{
		db:         db,
		cache:      cache,
		live:       live,
		queue:      queue,
		staleAfter: staleAfter,
	}
}

// Check produces a health report. Results are cached briefly so probes
// cannot hammer the store.
func (m *Monitor) Check(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < 10*time.Second && len(m.lastReport.Components) > 0 {
		return m.lastReport
	}

	components := map[string]ComponentHealth{
		"database": m.checkDB(ctx),
		"cache":    m.checkCache(ctx),
		"live":     m.checkLive(),
		"queue":    m.checkQueue(ctx),
	}

	// Worst case wins.
	status := StatusHealthy
	for _, c := range components {
		if c.Status == StatusCritical {
			status = StatusCritical
			break
		}
		if c.Status == StatusDegraded {
			status = StatusDegraded
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = Report{SystemStatus: status, Components: components}
	return m.lastReport
}

func (m *Monitor) checkDB(ctx context.Context) ComponentHealth {
	c := ComponentHealth{Name: "database", Status: StatusHealthy}
	if m.db == nil {
		// In-memory mode has nothing to ping.
		c.Detail = "in-memory"
		return c
	}
	if err := m.db.Health(ctx); err != nil {
		c.Status = StatusCritical
		c.Detail = err.Error()
	}
	return c
}

func (m *Monitor) checkCache(ctx context.Context) ComponentHealth {
	c := ComponentHealth{Name: "cache", Status: StatusHealthy}
	if m.cache == nil {
		c.Detail = "disabled"
		return c
	}
	// The cache is an accelerator, not a dependency: unreachable means
	// degraded, never critical.
	if err := m.cache.Health(ctx); err != nil {
		c.Status = StatusDegraded
		c.Detail = err.Error()
	}
	return c
}

func (m *Monitor) checkLive() ComponentHealth {
	c := ComponentHealth{Name: "live", Status: StatusHealthy}
	if m.live == nil {
		c.Detail = "disabled"
		return c
	}

	last := m.live.LastTick()
	if last.IsZero() {
		c.Status = StatusDegraded
		c.Detail = "no successful poll yet"
		return c
	}
	if age := time.Since(last); age > m.staleAfter {
		c.Status = StatusDegraded
		c.Detail = fmt.Sprintf("last poll %s ago", age.Round(time.Second))
		return c
	}
	c.Detail = fmt.Sprintf("last round %d", m.live.LastSeen())
	return c
}

func (m *Monitor) checkQueue(ctx context.Context) ComponentHealth {
	c := ComponentHealth{Name: "queue", Status: StatusHealthy}
	if m.queue == nil {
		c.Detail = "disabled"
		return c
	}
	depth, err := m.queue.QueueLen(ctx)
	if err != nil {
		c.Status = StatusDegraded
		c.Detail = err.Error()
		return c
	}
	c.Detail = fmt.Sprintf("%d ranges pending", depth)
	if depth > 0 {
		c.Status = StatusDegraded
	}
	return c
}
