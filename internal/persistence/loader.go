package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"PariPool/internal/engine"
	"PariPool/internal/market"
	"PariPool/internal/pool"

	"github.com/google/uuid"
)

// Loader rebuilds engine state from Postgres at startup: every match and
// its stakes, the notification sequence, then a full aggregate rebuild.
// Runs before the engine starts serving, so no locking subtleties apply.
type Loader struct {
	db *sql.DB
}

func NewLoader(db *sql.DB) *Loader {
	return &Loader{db: db}
}

// Restore loads all persisted state into the engine. Returns the number
// of matches restored.
func (l *Loader) Restore(ctx context.Context, eng *engine.Engine) (int, error) {
	stakes, err := l.loadStakes(ctx)
	if err != nil {
		return 0, fmt.Errorf("load stakes: %w", err)
	}

	matches, err := l.loadMatches(ctx)
	if err != nil {
		return 0, fmt.Errorf("load matches: %w", err)
	}

	for _, m := range matches {
		if err := eng.RestoreMatch(m, stakes[m.ID]); err != nil {
			return 0, fmt.Errorf("restore match %d: %w", m.ID, err)
		}
	}

	seq, err := l.lastSequence(ctx)
	if err != nil {
		return 0, fmt.Errorf("load sequence: %w", err)
	}
	eng.RestoreSequence(seq)
	eng.RecomputeAggregates()

	log.Printf("INFO: restored %d matches, sequence=%d", len(matches), seq)
	return len(matches), nil
}

func (l *Loader) loadMatches(ctx context.Context) ([]*market.Match, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, home_team, away_team, category, start_time, status, result,
		       pool_home, pool_draw, pool_away, total,
		       count_home, count_draw, count_away,
		       fee_charged, dust, cancel_reason, created_at, resolved_at
		FROM settlement.matches
		ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*market.Match
	for rows.Next() {
		var (
			m          market.Match
			status     string
			result     string
			resolvedAt sql.NullTime
		)
		if err := rows.Scan(
			&m.ID, &m.HomeTeam, &m.AwayTeam, &m.Category, &m.StartTime, &status, &result,
			&m.Pools[0], &m.Pools[1], &m.Pools[2], &m.Total,
			&m.Counts[0], &m.Counts[1], &m.Counts[2],
			&m.FeeCharged, &m.Dust, &m.CancelReason, &m.CreatedAt, &resolvedAt,
		); err != nil {
			return nil, err
		}

		m.Status, err = market.ParseStatus(status)
		if err != nil {
			return nil, fmt.Errorf("match %d: %w", m.ID, err)
		}
		m.Result, err = parseStoredOutcome(result)
		if err != nil {
			return nil, fmt.Errorf("match %d: %w", m.ID, err)
		}
		if resolvedAt.Valid {
			m.ResolvedAt = resolvedAt.Time
		}

		out = append(out, &m)
	}
	return out, rows.Err()
}

func (l *Loader) loadStakes(ctx context.Context) (map[int64][]pool.Stake, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT match_id, participant, outcome, amount, claimed, placed_at
		FROM settlement.stakes
		ORDER BY match_id, participant`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]pool.Stake)
	for rows.Next() {
		var (
			s           pool.Stake
			participant string
			outcome     string
			placedAt    time.Time
		)
		if err := rows.Scan(&s.MatchID, &participant, &outcome, &s.Amount, &s.Claimed, &placedAt); err != nil {
			return nil, err
		}

		s.Participant, err = uuid.Parse(participant)
		if err != nil {
			return nil, fmt.Errorf("stake on match %d: %w", s.MatchID, err)
		}
		s.Outcome, err = market.ParseOutcome(outcome)
		if err != nil {
			return nil, fmt.Errorf("stake on match %d: %w", s.MatchID, err)
		}
		s.PlacedAt = placedAt

		out[s.MatchID] = append(out[s.MatchID], s)
	}
	return out, rows.Err()
}

func (l *Loader) lastSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := l.db.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM settlement.notifications`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

// parseStoredOutcome accepts the stored result column, where "none" marks
// an unresolved or cancelled match.
func parseStoredOutcome(s string) (market.Outcome, error) {
	if s == "none" {
		return market.OutcomeNone, nil
	}
	return market.ParseOutcome(s)
}
