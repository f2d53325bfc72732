package domain

import (
	"strconv"
	"time"
)

// Source identifies which component first observed a round.
type Source string

const (
	SourceLive      Source = "live"
	SourceCatchup   Source = "catchup"
	SourceReconcile Source = "reconcile"
)

// ReconstructedAt is the sentinel timestamp assigned to rounds recovered by
// walking the hash chain. The oracle only yields hashes and outcomes, so the
// real timestamps are unknown; the epoch marks the rows as placeholders
// rather than leaving the columns null.
var ReconstructedAt = time.Unix(0, 0).UTC()

// Round is one play of the game with its published outcome.
// Rounds are immutable once stored; the engine never deletes them.
type Round struct {
	ID                string     // string-encoded monotonically increasing integer
	SeedHash          string     // hex seed published by the provider
	ReportedOutcome   float64    // multiplier as published (authoritative for display)
	CalculatedOutcome float64    // multiplier derived locally from SeedHash (tamper check)
	OutcomeFloor      int64      // floor(ReportedOutcome), denormalized for queries
	PreparedAt        *time.Time
	StartedAt         *time.Time
	EndedAt           *time.Time
	Reconstructed     bool
}

// NumericID parses the round ID as an integer.
func (r *Round) NumericID() (int64, error) {
	return strconv.ParseInt(r.ID, 10, 64)
}
