package engine

import (
	"fmt"

	"PariPool/internal/market"
	"PariPool/internal/pool"
)

// RestoreMatch loads a previously persisted match and its stakes without
// validation or notification. Used only at startup before the engine is
// serving; the loader owns cross-row consistency.
func (e *Engine) RestoreMatch(m *market.Match, stakes []pool.Stake) error {
	if err := m.CheckConservation(); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	book := pool.NewBook()
	for i := range stakes {
		s := stakes[i]
		book.Restore(&s)
	}
	if sum := book.SumStakes(); sum != m.Total {
		return fmt.Errorf("restore match %d: stake sum %d != total %d", m.ID, sum, m.Total)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.matches[m.ID]; exists {
		return fmt.Errorf("restore match %d: already loaded", m.ID)
	}
	e.matches[m.ID] = &matchState{m: m.Clone(), book: book}
	if m.ID >= e.nextID {
		e.nextID = m.ID + 1
	}

	if e.metrics != nil && !m.Status.Terminal() {
		e.metrics.OpenMatches.Inc()
	}
	return nil
}

// RestoreSequence sets the notification sequence after a restart so new
// notifications continue the persisted numbering.
func (e *Engine) RestoreSequence(seq int64) {
	e.sequence.Store(seq)
	if e.metrics != nil {
		e.metrics.NotificationSeq.Set(float64(seq))
	}
}

// RestoreAggregates sets the ledger-wide totals from persisted state.
func (e *Engine) RestoreAggregates(fees, paidOut, dust int64) {
	e.feesCollected.Store(fees)
	e.totalPaidOut.Store(paidOut)
	e.dustRetained.Store(dust)
}

// RecomputeAggregates rebuilds the ledger-wide totals from restored
// match and stake state. Fees and dust were fixed at resolution and live
// on the match rows; paid-out is recomputed from claimed stakes with the
// same entitlement formula the claim path uses. Called once at startup
// after the last RestoreMatch.
func (e *Engine) RecomputeAggregates() {
	e.mu.RLock()
	states := make([]*matchState, 0, len(e.matches))
	for _, st := range e.matches {
		states = append(states, st)
	}
	e.mu.RUnlock()

	var fees, paid, dust int64
	for _, st := range states {
		st.mu.Lock()
		m := st.m
		if m.Status == market.StatusResolved {
			fees += m.FeeCharged
			dust += m.Dust
		}
		if m.Status.Terminal() {
			for _, s := range st.book.All() {
				if !s.Claimed {
					continue
				}
				if amount, payable := owed(m, s); payable {
					paid += amount
				}
			}
		}
		st.mu.Unlock()
	}

	e.RestoreAggregates(fees, paid, dust)
}

// Audit runs the per-match conservation check across every terminal
// match. Returns the first violation found.
func (e *Engine) Audit() error {
	e.mu.RLock()
	ids := make([]int64, 0, len(e.matches))
	for id := range e.matches {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	for _, id := range ids {
		if err := e.AuditMatch(id); err != nil {
			if err == ErrMatchNotFound {
				continue
			}
			return err
		}
	}
	return nil
}
