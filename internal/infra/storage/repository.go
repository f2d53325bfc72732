package storage

import (
	"context"
	"time"

	"github.com/vuchq/crashwatch/internal/core/domain"
)

// Gap is a contiguous run of round IDs absent from the store.
type Gap struct {
	From  int64
	To    int64
	Count int64
}

// RoundRepository handles round storage operations.
// All write paths (live monitor, catch-up fetcher, gap reconciler) share the
// same idempotent-insert contract; a double write is absorbed, never an error.
type RoundRepository interface {
	// InsertMany inserts a batch of rounds, silently skipping IDs that
	// already exist. Returns the IDs actually inserted. Must be safe under
	// concurrent callers racing on the same IDs.
	InsertMany(ctx context.Context, rounds []*domain.Round) ([]string, error)

	// GetByID retrieves a round by ID. Returns nil, nil when absent.
	GetByID(ctx context.Context, id string) (*domain.Round, error)

	// ExistingIDs returns the subset of candidate IDs already present.
	ExistingIDs(ctx context.Context, ids []string) (map[string]struct{}, error)

	// MaxID returns the highest numeric round ID, 0 when the store is empty.
	MaxID(ctx context.Context) (int64, error)

	// MinID returns the lowest numeric round ID, 0 when the store is empty.
	MinID(ctx context.Context) (int64, error)

	// FindGaps returns missing ID ranges between MinID and MaxID,
	// most recent gap first.
	FindGaps(ctx context.Context) ([]Gap, error)

	// ListRange retrieves rounds with numeric IDs in [fromID, toID],
	// ascending.
	ListRange(ctx context.Context, fromID, toID int64) ([]*domain.Round, error)

	// ListBetween retrieves rounds that ended within [from, to], ascending.
	// This is the range query the read-side API layer depends on.
	ListBetween(ctx context.Context, from, to time.Time) ([]*domain.Round, error)
}
