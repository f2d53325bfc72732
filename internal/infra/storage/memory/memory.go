// Package memory provides an in-memory RoundRepository for tests and
// database-less runs. It mirrors the PostgreSQL contract, including
// idempotent inserts under concurrent callers.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/vuchq/crashwatch/internal/core/domain"
	"github.com/vuchq/crashwatch/internal/infra/storage"
)

// RoundRepo implements storage.RoundRepository in memory.
type RoundRepo struct {
	mu     sync.RWMutex
	rounds map[int64]*domain.Round
}

// NewRoundRepo creates an empty in-memory round repository.
func NewRoundRepo() *RoundRepo {
	return &RoundRepo{rounds: make(map[int64]*domain.Round)}
}

// InsertMany inserts rounds, skipping IDs that already exist.
func (r *RoundRepo) InsertMany(
	ctx context.Context,
	rounds []*domain.Round,
) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var inserted []string
	for _, round := range rounds {
		id, err := round.NumericID()
		if err != nil {
			return nil, fmt.Errorf("invalid round id %q: %w", round.ID, err)
		}
		if _, exists := r.rounds[id]; exists {
			continue
		}
		copied := *round
		r.rounds[id] = &copied
		inserted = append(inserted, round.ID)
	}
	return inserted, nil
}

// GetByID retrieves a round by ID. Returns nil, nil when absent.
func (r *RoundRepo) GetByID(ctx context.Context, id string) (*domain.Round, error) {
	numID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid round id %q: %w", id, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	round, ok := r.rounds[numID]
	if !ok {
		return nil, nil
	}
	copied := *round
	return &copied, nil
}

// ExistingIDs returns the subset of candidate IDs already present.
func (r *RoundRepo) ExistingIDs(
	ctx context.Context,
	ids []string,
) (map[string]struct{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	existing := make(map[string]struct{})
	for _, id := range ids {
		numID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid round id %q: %w", id, err)
		}
		if _, ok := r.rounds[numID]; ok {
			existing[id] = struct{}{}
		}
	}
	return existing, nil
}

// MaxID returns the highest round ID, 0 when empty.
func (r *RoundRepo) MaxID(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var max int64
	for id := range r.rounds {
		if id > max {
			max = id
		}
	}
	return max, nil
}

// MinID returns the lowest round ID, 0 when empty.
func (r *RoundRepo) MinID(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.rounds) == 0 {
		return 0, nil
	}
	min := int64(0)
	for id := range r.rounds {
		if min == 0 || id < min {
			min = id
		}
	}
	return min, nil
}

// FindGaps returns missing ID ranges, most recent gap first.
func (r *RoundRepo) FindGaps(ctx context.Context) ([]storage.Gap, error) {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.rounds))
	for id := range r.rounds {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	if len(ids) < 2 {
		return nil, nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var gaps []storage.Gap
	for i := 1; i < len(ids); i++ {
		if ids[i]-ids[i-1] > 1 {
			gaps = append(gaps, storage.Gap{
				From:  ids[i-1] + 1,
				To:    ids[i] - 1,
				Count: ids[i] - ids[i-1] - 1,
			})
		}
	}

	// Most recent first
	sort.Slice(gaps, func(i, j int) bool { return gaps[i].From > gaps[j].From })
	return gaps, nil
}

// ListRange retrieves rounds with IDs in [fromID, toID], ascending.
func (r *RoundRepo) ListRange(
	ctx context.Context,
	fromID, toID int64,
) ([]*domain.Round, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var rounds []*domain.Round
	for id, round := range r.rounds {
		if id >= fromID && id <= toID {
			copied := *round
			rounds = append(rounds, &copied)
		}
	}
	sortRounds(rounds)
	return rounds, nil
}

// ListBetween retrieves rounds that ended within [from, to], ascending.
func (r *RoundRepo) ListBetween(
	ctx context.Context,
	from, to time.Time,
) ([]*domain.Round, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var rounds []*domain.Round
	for _, round := range r.rounds {
		if round.EndedAt == nil {
			continue
		}
		if round.EndedAt.Before(from) || round.EndedAt.After(to) {
			continue
		}
		copied := *round
		rounds = append(rounds, &copied)
	}
	sortRounds(rounds)
	return rounds, nil
}

func sortRounds(rounds []*domain.Round) {
	sort.Slice(rounds, func(i, j int) bool {
		a, _ := rounds[i].NumericID()
		b, _ := rounds[j].NumericID()
		return a < b
	})
}
