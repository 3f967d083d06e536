package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"PariPool/internal/engine"
	"PariPool/internal/market"
	"PariPool/internal/observability"
	"PariPool/internal/pool"
)

// Worker drains the persist channel and batch-writes to Postgres. Runs
// independently from the settlement engine; the persist channel uses
// BLOCKING sends from the engine, so if this worker falls behind the
// engine stalls rather than losing a notification.
type Worker struct {
	writer       *RowWriter
	db           *sql.DB
	inputChan    <-chan engine.Output
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan engine.Output,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       NewRowWriter(db),
		db:           db,
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
}

// batch accumulates one flush worth of rows. Match and stake snapshots
// are deduped last-wins: within a flush only the newest snapshot of a
// row matters, and ON CONFLICT DO UPDATE cannot touch a row twice in one
// statement.
type batch struct {
	notifications []NotificationRow
	matches       map[int64]MatchRow
	stakes        map[string]StakeRow
}

func newBatch(size int) *batch {
	return &batch{
		notifications: make([]NotificationRow, 0, size),
		matches:       make(map[int64]MatchRow),
		stakes:        make(map[string]StakeRow),
	}
}

func (b *batch) add(out engine.Output) {
	b.notifications = append(b.notifications, NotificationRow{
		Sequence:  out.Envelope.Sequence,
		EventType: out.Envelope.TypeName,
		MatchID:   out.Envelope.MatchID,
		Payload:   MarshalPayload(out.Envelope.Payload),
		Timestamp: out.Envelope.Timestamp,
	})
	if out.Match != nil {
		b.matches[out.Match.ID] = matchRowFrom(out.Match)
	}
	for _, s := range out.Stakes {
		key := fmt.Sprintf("%d|%s", s.MatchID, s.Participant)
		b.stakes[key] = stakeRowFrom(s)
	}
}

func (b *batch) reset() {
	b.notifications = b.notifications[:0]
	b.matches = make(map[int64]MatchRow)
	b.stakes = make(map[string]StakeRow)
}

func (b *batch) empty() bool {
	return len(b.notifications) == 0 && len(b.matches) == 0 && len(b.stakes) == 0
}

// Run starts the persistence loop. Flushes when the batch is full or the
// flush timeout expires. Blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	b := newBatch(w.batchSize)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown: flush remaining
			if !b.empty() {
				if err := w.flush(context.Background(), b); err != nil {
					log.Printf("ERROR: final flush failed: %v", err)
				}
			}
			return ctx.Err()

		case out, ok := <-w.inputChan:
			if !ok {
				if !b.empty() {
					if err := w.flush(context.Background(), b); err != nil {
						log.Printf("ERROR: final flush failed: %v", err)
					}
				}
				return nil
			}

			b.add(out)

			if len(b.notifications) >= w.batchSize {
				if err := w.flushWithRetry(ctx, b); err != nil {
					log.Printf("ERROR: batch flush failed after retries: %v", err)
				}
				b.reset()
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if !b.empty() {
				if err := w.flushWithRetry(ctx, b); err != nil {
					log.Printf("ERROR: timeout flush failed after retries: %v", err)
				}
				b.reset()
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry attempts a flush with exponential backoff. The worker
// never drops rows: it retries until the write succeeds or the context
// is cancelled, and even then attempts one final flush so a shutdown
// loses nothing.
func (w *Worker) flushWithRetry(ctx context.Context, b *batch) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			log.Printf("WARN: persistence retry attempt %d (backoff=%v, notifications=%d)",
				attempt, backoff, len(b.notifications))
			select {
			case <-ctx.Done():
				finalErr := w.flush(context.Background(), b)
				if finalErr != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", finalErr)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, b)
		if err == nil {
			if attempt > 0 {
				log.Printf("INFO: persistence flush succeeded after %d retries", attempt)
			}
			return nil
		}

		if w.metrics != nil {
			w.metrics.PersistRetry.Inc()
		}
	}
}

func (w *Worker) flush(ctx context.Context, b *batch) error {
	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	matchRows := make([]MatchRow, 0, len(b.matches))
	for _, r := range b.matches {
		matchRows = append(matchRows, r)
	}
	stakeRows := make([]StakeRow, 0, len(b.stakes))
	for _, r := range b.stakes {
		stakeRows = append(stakeRows, r)
	}

	if err := w.writer.WriteMatchBatch(ctx, tx, matchRows); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_matches").Inc()
		}
		return err
	}
	if err := w.writer.WriteStakeBatch(ctx, tx, stakeRows); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_stakes").Inc()
		}
		return err
	}
	if err := w.writer.WriteNotificationBatch(ctx, tx, b.notifications); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_notifications").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(len(b.notifications)))
		w.metrics.PersistRowsWritten.Add(float64(len(b.notifications) + len(matchRows) + len(stakeRows)))
		if n := len(b.notifications); n > 0 {
			w.metrics.PersistLastSequence.Set(float64(b.notifications[n-1].Sequence))
		}
	}

	return nil
}

func matchRowFrom(m *market.Match) MatchRow {
	r := MatchRow{
		ID:           m.ID,
		HomeTeam:     m.HomeTeam,
		AwayTeam:     m.AwayTeam,
		Category:     m.Category,
		StartTime:    m.StartTime,
		Status:       m.Status.String(),
		Result:       m.Result.String(),
		PoolHome:     m.PoolFor(market.OutcomeHome),
		PoolDraw:     m.PoolFor(market.OutcomeDraw),
		PoolAway:     m.PoolFor(market.OutcomeAway),
		Total:        m.Total,
		CountHome:    m.CountFor(market.OutcomeHome),
		CountDraw:    m.CountFor(market.OutcomeDraw),
		CountAway:    m.CountFor(market.OutcomeAway),
		FeeCharged:   m.FeeCharged,
		Dust:         m.Dust,
		CancelReason: m.CancelReason,
		CreatedAt:    m.CreatedAt,
	}
	if !m.ResolvedAt.IsZero() {
		t := m.ResolvedAt
		r.ResolvedAt = &t
	}
	return r
}

func stakeRowFrom(s pool.Stake) StakeRow {
	return StakeRow{
		MatchID:     s.MatchID,
		Participant: s.Participant.String(),
		Outcome:     s.Outcome.String(),
		Amount:      s.Amount,
		Claimed:     s.Claimed,
		PlacedAt:    s.PlacedAt,
	}
}
