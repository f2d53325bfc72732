// Package record converts normalized feed entries into stored rounds.
package record

import (
	"log/slog"
	"math"

	"github.com/vuchq/crashwatch/internal/capture/metrics"
	"github.com/vuchq/crashwatch/internal/core/domain"
	"github.com/vuchq/crashwatch/internal/core/fair"
	"github.com/vuchq/crashwatch/internal/infra/provider"
)

// FromEntry builds a Round from a feed entry. The provider's published
// outcome stays authoritative; the locally calculated one is recorded
// alongside as a tamper check, and disagreement is logged, not rejected.
func FromEntry(e provider.Entry, salt string, log *slog.Logger) *domain.Round {
	calculated := fair.Calculate(e.SeedHash, salt)
	if !fair.Matches(e.Outcome, calculated) {
		metrics.OutcomeMismatches.Inc()
		log.Warn("reported outcome disagrees with calculated",
			"round", e.ID, "reported", e.Outcome, "calculated", calculated)
	}

	return &domain.Round{
		ID:                e.ID,
		SeedHash:          e.SeedHash,
		ReportedOutcome:   e.Outcome,
		CalculatedOutcome: calculated,
		OutcomeFloor:      int64(math.Floor(e.Outcome)),
		PreparedAt:        e.PreparedAt,
		StartedAt:         e.StartedAt,
		EndedAt:           e.EndedAt,
	}
}
