package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/vuchq/crashwatch/internal/core/domain"
	"github.com/vuchq/crashwatch/internal/infra/storage"
)

const pgUniqueViolation = "23505"

// RoundRepo implements storage.RoundRepository using PostgreSQL.
type RoundRepo struct {
	db *DB
}

// NewRoundRepo creates a new PostgreSQL round repository.
func NewRoundRepo(db *DB) *RoundRepo {
	return &RoundRepo{db: db}
}

type roundRow struct {
	ID                int64      `db:"round_id"`
	SeedHash          string     `db:"seed_hash"`
	ReportedOutcome   float64    `db:"reported_outcome"`
	CalculatedOutcome float64    `db:"calculated_outcome"`
	OutcomeFloor      int64      `db:"outcome_floor"`
	PreparedAt        *time.Time `db:"prepared_at"`
	StartedAt         *time.Time `db:"started_at"`
	EndedAt           *time.Time `db:"ended_at"`
	Reconstructed     bool       `db:"reconstructed"`
}

func (r *roundRow) toDomain() *domain.Round {
	return &domain.Round{
		ID:                strconv.FormatInt(r.ID, 10),
		SeedHash:          r.SeedHash,
		ReportedOutcome:   r.ReportedOutcome,
		CalculatedOutcome: r.CalculatedOutcome,
		OutcomeFloor:      r.OutcomeFloor,
		PreparedAt:        r.PreparedAt,
		StartedAt:         r.StartedAt,
		EndedAt:           r.EndedAt,
		Reconstructed:     r.Reconstructed,
	}
}

func fromDomain(round *domain.Round) (*roundRow, error) {
	id, err := round.NumericID()
	if err != nil {
		return nil, fmt.Errorf("invalid round id %q: %w", round.ID, err)
	}
	return &roundRow{
		ID:                id,
		SeedHash:          round.SeedHash,
		ReportedOutcome:   round.ReportedOutcome,
		CalculatedOutcome: round.CalculatedOutcome,
		OutcomeFloor:      round.OutcomeFloor,
		PreparedAt:        round.PreparedAt,
		StartedAt:         round.StartedAt,
		EndedAt:           round.EndedAt,
		Reconstructed:     round.Reconstructed,
	}, nil
}

const insertRoundQuery = `
	INSERT INTO rounds (round_id, seed_hash, reported_outcome, calculated_outcome,
		outcome_floor, prepared_at, started_at, ended_at, reconstructed)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (round_id) DO NOTHING
`

// InsertMany inserts a batch of rounds, skipping IDs that already exist.
// Returns the IDs actually inserted.
//
// The fast path commits the whole batch in one transaction. If a concurrent
// writer wins a uniqueness race mid-commit, the batch is retried one round at
// a time under savepoints so a single collision never discards the rest.
func (r *RoundRepo) InsertMany(
	ctx context.Context,
	rounds []*domain.Round,
) ([]string, error) {
	if len(rounds) == 0 {
		return nil, nil
	}

	rows := make([]*roundRow, 0, len(rounds))
	for _, round := range rounds {
		row, err := fromDomain(round)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	inserted, err := r.insertBatch(ctx, rows)
	if err == nil {
		return inserted, nil
	}
	if !isUniqueViolation(err) {
		return nil, fmt.Errorf("failed to insert rounds: %w", err)
	}

	// Uniqueness race with a concurrent writer; retry row by row.
	return r.insertPerRow(ctx, rows)
}

func (r *RoundRepo) insertBatch(ctx context.Context, rows []*roundRow) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var inserted []string
	for _, row := range rows {
		res, err := tx.ExecContext(ctx, insertRoundQuery,
			row.ID, row.SeedHash, row.ReportedOutcome, row.CalculatedOutcome,
			row.OutcomeFloor, row.PreparedAt, row.StartedAt, row.EndedAt,
			row.Reconstructed,
		)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted = append(inserted, strconv.FormatInt(row.ID, 10))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return inserted, nil
}

// insertPerRow commits each round under its own savepoint so that one
// colliding round cannot roll back its siblings.
func (r *RoundRepo) insertPerRow(ctx context.Context, rows []*roundRow) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var inserted []string
	for i, row := range rows {
		savepoint := fmt.Sprintf("round_%d", i)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+savepoint); err != nil {
			return nil, err
		}

		res, err := tx.ExecContext(ctx, insertRoundQuery,
			row.ID, row.SeedHash, row.ReportedOutcome, row.CalculatedOutcome,
			row.OutcomeFloor, row.PreparedAt, row.StartedAt, row.EndedAt,
			row.Reconstructed,
		)
		if err != nil {
			if !isUniqueViolation(err) {
				return nil, fmt.Errorf("failed to insert round %d: %w", row.ID, err)
			}
			if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+savepoint); err != nil {
				return nil, err
			}
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted = append(inserted, strconv.FormatInt(row.ID, 10))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return inserted, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// GetByID retrieves a round by ID. Returns nil, nil when absent.
func (r *RoundRepo) GetByID(ctx context.Context, id string) (*domain.Round, error) {
	numID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid round id %q: %w", id, err)
	}

	query := `
		SELECT round_id, seed_hash, reported_outcome, calculated_outcome,
			outcome_floor, prepared_at, started_at, ended_at, reconstructed
		FROM rounds
		WHERE round_id = $1
	`

	var row roundRow
	err = r.db.GetContext(ctx, &row, query, numID)
	if err == sql.ErrNoRows {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get round: %w", err)
	}

	return row.toDomain(), nil
}

// ExistingIDs returns the subset of candidate IDs already present.
func (r *RoundRepo) ExistingIDs(
	ctx context.Context,
	ids []string,
) (map[string]struct{}, error) {
	if len(ids) == 0 {
		return map[string]struct{}{}, nil
	}

	numIDs := make([]int64, 0, len(ids))
	for _, id := range ids {
		numID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid round id %q: %w", id, err)
		}
		numIDs = append(numIDs, numID)
	}

	query, args, err := sqlx.In("SELECT round_id FROM rounds WHERE round_id IN (?)", numIDs)
	if err != nil {
		return nil, err
	}
	query = r.db.Rebind(query)

	var found []int64
	if err := r.db.SelectContext(ctx, &found, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query existing ids: %w", err)
	}

	existing := make(map[string]struct{}, len(found))
	for _, id := range found {
		existing[strconv.FormatInt(id, 10)] = struct{}{}
	}
	return existing, nil
}

// MaxID returns the highest numeric round ID, 0 when the store is empty.
func (r *RoundRepo) MaxID(ctx context.Context) (int64, error) {
	var max int64
	err := r.db.GetContext(ctx, &max, `SELECT COALESCE(MAX(round_id), 0) FROM rounds`)
	if err != nil {
		return 0, fmt.Errorf("failed to get max round id: %w", err)
	}
	return max, nil
}

// MinID returns the lowest numeric round ID, 0 when the store is empty.
func (r *RoundRepo) MinID(ctx context.Context) (int64, error) {
	var min int64
	err := r.db.GetContext(ctx, &min, `SELECT COALESCE(MIN(round_id), 0) FROM rounds`)
	if err != nil {
		return 0, fmt.Errorf("failed to get min round id: %w", err)
	}
	return min, nil
}

// FindGaps finds missing round ID ranges, most recent gap first.
// One bounded query; the [min,max] sequence is never materialized.
func (r *RoundRepo) FindGaps(ctx context.Context) ([]storage.Gap, error) {
	query := `
		WITH numbered AS (
			SELECT round_id, LEAD(round_id) OVER (ORDER BY round_id) AS next_id
			FROM rounds
		)
		SELECT round_id + 1 AS from_id,
			next_id - 1 AS to_id,
			next_id - round_id - 1 AS missing
		FROM numbered
		WHERE next_id - round_id > 1
		ORDER BY from_id DESC
	`

	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to find gaps: %w", err)
	}
	defer rows.Close()

	var gaps []storage.Gap
	for rows.Next() {
		var gap struct {
			From    int64 `db:"from_id"`
			To      int64 `db:"to_id"`
			Missing int64 `db:"missing"`
		}
		if err := rows.StructScan(&gap); err != nil {
			return nil, err
		}
		gaps = append(gaps, storage.Gap{From: gap.From, To: gap.To, Count: gap.Missing})
	}
	return gaps, rows.Err()
}

// ListRange retrieves rounds with IDs in [fromID, toID], ascending.
func (r *RoundRepo) ListRange(
	ctx context.Context,
	fromID, toID int64,
) ([]*domain.Round, error) {
	query := `
		SELECT round_id, seed_hash, reported_outcome, calculated_outcome,
			outcome_floor, prepared_at, started_at, ended_at, reconstructed
		FROM rounds
		WHERE round_id BETWEEN $1 AND $2
		ORDER BY round_id ASC
	`

	var rows []roundRow
	if err := r.db.SelectContext(ctx, &rows, query, fromID, toID); err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}

	rounds := make([]*domain.Round, len(rows))
	for i := range rows {
		rounds[i] = rows[i].toDomain()
	}
	return rounds, nil
}

// ListBetween retrieves rounds that ended within [from, to], ascending.
func (r *RoundRepo) ListBetween(
	ctx context.Context,
	from, to time.Time,
) ([]*domain.Round, error) {
	query := `
		SELECT round_id, seed_hash, reported_outcome, calculated_outcome,
			outcome_floor, prepared_at, started_at, ended_at, reconstructed
		FROM rounds
		WHERE ended_at BETWEEN $1 AND $2
		ORDER BY round_id ASC
	`

	var rows []roundRow
	if err := r.db.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to list rounds by time: %w", err)
	}

	rounds := make([]*domain.Round, len(rows))
	for i := range rows {
		rounds[i] = rows[i].toDomain()
	}
	return rounds, nil
}
