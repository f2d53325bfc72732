package gaps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/vuchq/crashwatch/internal/capture/metrics"
	"github.com/vuchq/crashwatch/internal/core/domain"
	"github.com/vuchq/crashwatch/internal/core/fair"
	"github.com/vuchq/crashwatch/internal/infra/oracle"
	"github.com/vuchq/crashwatch/internal/infra/storage"
)

// ErrMissingAnchor is returned when the round just above a missing range is
// itself absent. The chain can only be walked backward from a known hash,
// so the range stays queued until the anchor appears.
var ErrMissingAnchor = errors.New("missing chain anchor")

// Reconciler recovers missing rounds by walking the hash chain backward
// from the anchor round through the verification oracle.
type Reconciler struct {
	repo   storage.RoundRepository
	walker oracle.Walker
	salt   string
	log    *slog.Logger
}

// NewReconciler creates a gap reconciler.
func NewReconciler(
	repo storage.RoundRepository,
	walker oracle.Walker,
	salt string,
	log *slog.Logger,
) *Reconciler {
	return &Reconciler{repo: repo, walker: walker, salt: salt, log: log}
}

// Reconcile recovers the rounds in one missing range. Returns the rounds
// actually stored, possibly fewer than the range holds when the oracle
// delivers partial results. Partial recovery is stored anyway: better some
// history than none.
func (r *Reconciler) Reconcile(ctx context.Context, gap storage.Gap) ([]*domain.Round, error) {
	// The round immediately after the range anchors the walk.
	anchor, err := r.repo.GetByID(ctx, strconv.FormatInt(gap.To+1, 10))
	if err != nil {
		return nil, fmt.Errorf("anchor lookup failed: %w", err)
	}
	if anchor == nil {
		return nil, fmt.Errorf("%w: round %d not in store", ErrMissingAnchor, gap.To+1)
	}

	// The round just before the range is optional; used only to sanity
	// check the walk afterwards.
	before, err := r.repo.GetByID(ctx, strconv.FormatInt(gap.From-1, 10))
	if err != nil {
		r.log.Warn("before-range lookup failed", "round", gap.From-1, "error", err)
		before = nil
	}

	missing := int(gap.To - gap.From + 1)
	pairs, err := r.walker.Walk(ctx, anchor.SeedHash, missing+1)
	if err != nil {
		if !errors.Is(err, oracle.ErrOracleTimeout) {
			return nil, fmt.Errorf("oracle walk failed: %w", err)
		}
		// Timeout is best-effort: keep whatever rows were produced.
		r.log.Warn("oracle timed out, proceeding with partial rows",
			"range_from", gap.From, "range_to", gap.To, "rows", len(pairs))
	}
	if len(pairs) <= 1 {
		return nil, nil
	}

	// The first pair is the anchor round itself, already stored.
	pairs = pairs[1:]

	// Assign pairs to IDs descending from the top of the range.
	rounds := make([]*domain.Round, 0, len(pairs))
	id := gap.To
	for _, pair := range pairs {
		if id < gap.From {
			break
		}
		rounds = append(rounds, r.reconstruct(id, pair))
		id--
	}

	if before != nil {
		r.validateBoundary(gap, before, rounds)
	}

	inserted, err := r.repo.InsertMany(ctx, rounds)
	if err != nil {
		return nil, fmt.Errorf("failed to store recovered rounds: %w", err)
	}
	metrics.RoundsReconstructed.Add(float64(len(inserted)))
	metrics.RoundsCaptured.WithLabelValues(string(domain.SourceReconcile)).Add(float64(len(inserted)))

	r.log.Info("range reconciled",
		"from", gap.From, "to", gap.To,
		"recovered", len(rounds), "inserted", len(inserted))
	return rounds, nil
}

// reconstruct builds a round from an oracle pair. Timestamps get the epoch
// sentinel: the oracle cannot tell when the round ran, and the sentinel is
// the long-standing convention for rows awaiting manual correction.
func (r *Reconciler) reconstruct(id int64, pair oracle.Pair) *domain.Round {
	sentinel := domain.ReconstructedAt
	return &domain.Round{
		ID:                strconv.FormatInt(id, 10),
		SeedHash:          pair.Hash,
		ReportedOutcome:   pair.Outcome,
		CalculatedOutcome: fair.Calculate(pair.Hash, r.salt),
		OutcomeFloor:      int64(math.Floor(pair.Outcome)),
		PreparedAt:        &sentinel,
		StartedAt:         &sentinel,
		EndedAt:           &sentinel,
		Reconstructed:     true,
	}
}

// validateBoundary compares the stored hash below the range with the hash
// the walk assigned to the bottom of the range. A mismatch is logged and
// counted, never corrected: the recovered rounds are stored as assigned.
func (r *Reconciler) validateBoundary(
	gap storage.Gap,
	before *domain.Round,
	rounds []*domain.Round,
) {
	if len(rounds) == 0 {
		return
	}
	bottom := rounds[len(rounds)-1]
	if bottomID, _ := bottom.NumericID(); bottomID != gap.From {
		// Partial recovery never reached the bottom of the range;
		// nothing to compare against.
		return
	}
	if bottom.SeedHash == before.SeedHash {
		return
	}

	metrics.ChainMismatches.Inc()

	// The expected hash sometimes appears elsewhere in the recovered
	// batch; report where, but keep the IDs as assigned.
	foundAt := ""
	for _, round := range rounds {
		if round.SeedHash == before.SeedHash {
			foundAt = round.ID
			break
		}
	}
	r.log.Warn("chain validation mismatch",
		"range_from", gap.From, "range_to", gap.To,
		"expected_hash", before.SeedHash,
		"assigned_hash", bottom.SeedHash,
		"expected_hash_found_at", foundAt)
}
