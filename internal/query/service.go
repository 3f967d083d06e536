package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Service provides read-only access to the persisted settlement tables.
// Serves history and reporting; live pool state comes from the engine
// directly. All responses include as_of_sequence where freshness matters.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// ResolvedMatches lists terminal matches, newest resolution first.
func (s *Service) ResolvedMatches(ctx context.Context, limit int) ([]MatchHistory, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, home_team, away_team, category, start_time, status, result,
		       total, fee_charged, dust, cancel_reason, resolved_at
		FROM settlement.matches
		WHERE status IN ('resolved', 'cancelled')
		ORDER BY resolved_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query resolved matches: %w", err)
	}
	defer rows.Close()

	var out []MatchHistory
	for rows.Next() {
		var (
			h          MatchHistory
			resolvedAt sql.NullTime
		)
		if err := rows.Scan(
			&h.MatchID, &h.HomeTeam, &h.AwayTeam, &h.Category, &h.StartTime,
			&h.Status, &h.Result, &h.Total, &h.FeeCharged, &h.Dust,
			&h.CancelReason, &resolvedAt,
		); err != nil {
			return nil, err
		}
		if resolvedAt.Valid {
			t := resolvedAt.Time
			h.ResolvedAt = &t
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ParticipantStakes lists one participant's stakes across all matches,
// joined with match context so the caller can tell claimable from not.
func (s *Service) ParticipantStakes(ctx context.Context, f StakesFilter) ([]ParticipantStake, error) {
	q := `
		SELECT s.match_id, m.home_team, m.away_team, m.status, m.result,
		       s.outcome, s.amount, s.claimed, s.placed_at
		FROM settlement.stakes s
		JOIN settlement.matches m ON m.id = s.match_id
		WHERE s.participant = $1`
	if f.OnlyOpen {
		q += ` AND m.status IN ('open', 'closed')`
	}
	q += ` ORDER BY s.placed_at DESC`

	rows, err := s.db.QueryContext(ctx, q, f.Participant.String())
	if err != nil {
		return nil, fmt.Errorf("query participant stakes: %w", err)
	}
	defer rows.Close()

	var out []ParticipantStake
	for rows.Next() {
		var p ParticipantStake
		if err := rows.Scan(
			&p.MatchID, &p.HomeTeam, &p.AwayTeam, &p.Status, &p.Result,
			&p.Outcome, &p.Amount, &p.Claimed, &p.PlacedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Totals returns platform-wide sums over persisted state.
func (s *Service) Totals(ctx context.Context) (LedgerTotals, error) {
	var t LedgerTotals

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(total), 0),
		       COALESCE(SUM(fee_charged), 0),
		       COALESCE(SUM(dust), 0)
		FROM settlement.matches`).Scan(
		&t.Matches, &t.TotalStaked, &t.FeesCollected, &t.DustRetained)
	if err != nil {
		return LedgerTotals{}, fmt.Errorf("query totals: %w", err)
	}

	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM settlement.notifications`).Scan(&seq); err != nil {
		return LedgerTotals{}, fmt.Errorf("query watermark: %w", err)
	}
	t.AsOfSequence = seq.Int64

	return t, nil
}

// Notifications pages the append-only notification log for a match.
// afterSequence=0 starts from the beginning.
func (s *Service) Notifications(ctx context.Context, matchID, afterSequence int64, limit int) ([]NotificationRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, event_type, match_id, payload, timestamp
		FROM settlement.notifications
		WHERE match_id = $1 AND sequence > $2
		ORDER BY sequence
		LIMIT $3`, matchID, afterSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []NotificationRecord
	for rows.Next() {
		var n NotificationRecord
		if err := rows.Scan(&n.Sequence, &n.EventType, &n.MatchID, &n.Payload, &n.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ParticipantHistory summarizes a participant's lifetime staking totals.
func (s *Service) ParticipantHistory(ctx context.Context, participant uuid.UUID) (staked, claimedStakes int64, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0),
		       COUNT(*) FILTER (WHERE claimed)
		FROM settlement.stakes
		WHERE participant = $1`, participant.String()).Scan(&staked, &claimedStakes)
	if err != nil {
		return 0, 0, fmt.Errorf("query participant history: %w", err)
	}
	return staked, claimedStakes, nil
}
