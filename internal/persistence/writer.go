package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// RowWriter writes settlement rows to Postgres using multi-row INSERT.
// Notifications are append-only and idempotent on sequence; match and
// stake rows are upserts carrying the latest snapshot. All three writes
// for one flush share a transaction.
type RowWriter struct {
	db *sql.DB
}

// NotificationRow represents a row in settlement.notifications.
type NotificationRow struct {
	Sequence  int64
	EventType string
	MatchID   int64
	Payload   []byte // JSON-encoded notification payload
	Timestamp time.Time
}

// MatchRow represents a row in settlement.matches.
type MatchRow struct {
	ID           int64
	HomeTeam     string
	AwayTeam     string
	Category     string
	StartTime    time.Time
	Status       string
	Result       string
	PoolHome     int64
	PoolDraw     int64
	PoolAway     int64
	Total        int64
	CountHome    int64
	CountDraw    int64
	CountAway    int64
	FeeCharged   int64
	Dust         int64
	CancelReason string
	CreatedAt    time.Time
	ResolvedAt   *time.Time
}

// StakeRow represents a row in settlement.stakes.
type StakeRow struct {
	MatchID     int64
	Participant string
	Outcome     string
	Amount      int64
	Claimed     bool
	PlacedAt    time.Time
}

func NewRowWriter(db *sql.DB) *RowWriter {
	return &RowWriter{db: db}
}

// WriteNotificationBatch appends notifications. Idempotent on sequence so
// a retried flush after a partial commit cannot duplicate the log.
func (w *RowWriter) WriteNotificationBatch(ctx context.Context, tx *sql.Tx, rows []NotificationRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO settlement.notifications
		(sequence, event_type, match_id, payload, timestamp)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*5)

	for i, r := range rows {
		base := i * 5
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, r.Sequence, r.EventType, r.MatchID, r.Payload, r.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteMatchBatch upserts match snapshots. Rows must already be deduped
// per match id: ON CONFLICT DO UPDATE rejects a statement touching the
// same row twice.
func (w *RowWriter) WriteMatchBatch(ctx context.Context, tx *sql.Tx, rows []MatchRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO settlement.matches
		(id, home_team, away_team, category, start_time, status, result,
		 pool_home, pool_draw, pool_away, total,
		 count_home, count_draw, count_away,
		 fee_charged, dust, cancel_reason, created_at, resolved_at)
		VALUES `

	const cols = 19
	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*cols)

	for i, r := range rows {
		base := i * cols
		ph := make([]string, cols)
		for c := 0; c < cols; c++ {
			ph[c] = fmt.Sprintf("$%d", base+c+1)
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
		args = append(args,
			r.ID, r.HomeTeam, r.AwayTeam, r.Category, r.StartTime, r.Status, r.Result,
			r.PoolHome, r.PoolDraw, r.PoolAway, r.Total,
			r.CountHome, r.CountDraw, r.CountAway,
			r.FeeCharged, r.Dust, r.CancelReason, r.CreatedAt, r.ResolvedAt,
		)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		result = EXCLUDED.result,
		pool_home = EXCLUDED.pool_home,
		pool_draw = EXCLUDED.pool_draw,
		pool_away = EXCLUDED.pool_away,
		total = EXCLUDED.total,
		count_home = EXCLUDED.count_home,
		count_draw = EXCLUDED.count_draw,
		count_away = EXCLUDED.count_away,
		fee_charged = EXCLUDED.fee_charged,
		dust = EXCLUDED.dust,
		cancel_reason = EXCLUDED.cancel_reason,
		resolved_at = EXCLUDED.resolved_at`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteStakeBatch upserts stake snapshots. Rows must already be deduped
// per (match_id, participant).
func (w *RowWriter) WriteStakeBatch(ctx context.Context, tx *sql.Tx, rows []StakeRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO settlement.stakes
		(match_id, participant, outcome, amount, claimed, placed_at)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*6)

	for i, r := range rows {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args, r.MatchID, r.Participant, r.Outcome, r.Amount, r.Claimed, r.PlacedAt)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (match_id, participant) DO UPDATE SET
		claimed = EXCLUDED.claimed`

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// MarshalPayload JSON-encodes a notification payload for storage.
func MarshalPayload(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("WARN: failed to marshal payload: %v", err)
		return []byte("{}")
	}
	return data
}
