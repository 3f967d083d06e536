package engine

import (
	"fmt"
	"time"

	"PariPool/internal/market"
	"PariPool/internal/pool"
	"PariPool/internal/settle"

	"github.com/google/uuid"
)

// PoolSnapshot is a point-in-time view of one match's pools.
type PoolSnapshot struct {
	MatchID int64                       `json:"match_id"`
	Status  string                      `json:"status"`
	Pools   [market.NumOutcomes]int64   `json:"pools"`
	Counts  [market.NumOutcomes]int64   `json:"counts"`
	Total   int64                       `json:"total"`
	Odds    [market.NumOutcomes]float64 `json:"odds"`
}

// Aggregates are the ledger-wide running totals.
type Aggregates struct {
	Matches       int   `json:"matches"`
	FeesCollected int64 `json:"fees_collected"`
	TotalPaidOut  int64 `json:"total_paid_out"`
	DustRetained  int64 `json:"dust_retained"`
	Sequence      int64 `json:"sequence"`
}

// GetMatch returns a snapshot of one match.
func (e *Engine) GetMatch(matchID int64) (*market.Match, error) {
	st, ok := e.state(matchID)
	if !ok {
		return nil, ErrMatchNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.m.Clone(), nil
}

// GetStake returns a copy of one participant's stake on one match.
func (e *Engine) GetStake(matchID int64, participant uuid.UUID) (pool.Stake, error) {
	st, ok := e.state(matchID)
	if !ok {
		return pool.Stake{}, ErrMatchNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.book.Get(participant)
	if s == nil {
		return pool.Stake{}, ErrNoStake
	}
	return *s, nil
}

// GetPools returns the pool composition and implied odds of one match.
func (e *Engine) GetPools(matchID int64) (PoolSnapshot, error) {
	st, ok := e.state(matchID)
	if !ok {
		return PoolSnapshot{}, ErrMatchNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	return PoolSnapshot{
		MatchID: matchID,
		Status:  st.m.Status.String(),
		Pools:   st.m.Pools,
		Counts:  st.m.Counts,
		Total:   st.m.Total,
		Odds:    st.m.Odds(),
	}, nil
}

// GetOdds returns the payout multiplier per outcome on one match.
// Outcomes with an empty pool report zero.
func (e *Engine) GetOdds(matchID int64) ([market.NumOutcomes]float64, error) {
	st, ok := e.state(matchID)
	if !ok {
		return [market.NumOutcomes]float64{}, ErrMatchNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.m.Odds(), nil
}

// ListMatches returns snapshots of all matches, optionally filtered by
// status. Pass an empty string for no filter.
func (e *Engine) ListMatches(status string) []*market.Match {
	e.mu.RLock()
	states := make([]*matchState, 0, len(e.matches))
	for _, st := range e.matches {
		states = append(states, st)
	}
	e.mu.RUnlock()

	out := make([]*market.Match, 0, len(states))
	for _, st := range states {
		st.mu.Lock()
		if status == "" || st.m.Status.String() == status {
			out = append(out, st.m.Clone())
		}
		st.mu.Unlock()
	}
	return out
}

// FeeRate returns the current fee rate in basis points.
func (e *Engine) FeeRate() int64 {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	return e.feeBps
}

// StakeLimits returns the current stake bounds.
func (e *Engine) StakeLimits() pool.Limits {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	return e.limits
}

func (e *Engine) gracePeriod() time.Duration {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	return e.grace
}

// SetFeeRate updates the fee rate and returns the previous value.
// Values above the ceiling are rejected, never clamped. Already-resolved
// matches keep the fee fixed at their resolution.
func (e *Engine) SetFeeRate(rateBps int64) (int64, error) {
	if err := settle.ValidateFeeRate(rateBps); err != nil {
		e.reject("set_fee_rate", "validation")
		return 0, err
	}
	e.cfgMu.Lock()
	prev := e.feeBps
	e.feeBps = rateBps
	e.cfgMu.Unlock()

	e.logger.Info().Int64("previous_bps", prev).Int64("rate_bps", rateBps).Msg("fee rate updated")
	return prev, nil
}

// SetStakeLimits updates the stake bounds and returns the previous pair.
// Stakes already recorded under the old bounds are untouched.
func (e *Engine) SetStakeLimits(l pool.Limits) (pool.Limits, error) {
	if err := l.Validate(); err != nil {
		e.reject("set_stake_limits", "validation")
		return pool.Limits{}, err
	}
	e.cfgMu.Lock()
	prev := e.limits
	e.limits = l
	e.cfgMu.Unlock()

	e.logger.Info().
		Int64("min", l.MinStake).
		Int64("max", l.MaxStake).
		Msg("stake limits updated")
	return prev, nil
}

// AggregateTotals returns the ledger-wide running totals.
func (e *Engine) AggregateTotals() Aggregates {
	e.mu.RLock()
	n := len(e.matches)
	e.mu.RUnlock()

	return Aggregates{
		Matches:       n,
		FeesCollected: e.feesCollected.Load(),
		TotalPaidOut:  e.totalPaidOut.Load(),
		DustRetained:  e.dustRetained.Load(),
		Sequence:      e.sequence.Load(),
	}
}

// owed returns a stake's entitlement on a terminal match and whether the
// stake is payable at all. Shared by the audit and aggregate-rebuild
// paths; the claim paths use claimEvalLocked, which layers the claimed
// flag on top of the same formula.
func owed(m *market.Match, s *pool.Stake) (int64, bool) {
	if m.Status == market.StatusCancelled {
		return s.Amount, true
	}
	t := termsFor(m)
	switch t.Case {
	case settle.CaseNoWinners, settle.CaseAllWinners:
		return s.Amount, true
	default:
		if s.Outcome != m.Result {
			return 0, false
		}
		return t.Payout(s.Amount), true
	}
}

// AuditMatch verifies a resolved or cancelled match's conservation
// equation: total == fee + dust + paid + unclaimed-payable. An error here
// means corrupted state, not a bad request.
func (e *Engine) AuditMatch(matchID int64) error {
	st, ok := e.state(matchID)
	if !ok {
		return ErrMatchNotFound
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	m := st.m
	if err := m.CheckConservation(); err != nil {
		return err
	}
	if !m.Status.Terminal() {
		return nil
	}

	var paid, unclaimed int64
	for _, s := range st.book.All() {
		amount, payable := owed(m, s)
		if !payable {
			continue
		}
		if s.Claimed {
			paid += amount
		} else {
			unclaimed += amount
		}
	}

	fee, dust := m.FeeCharged, m.Dust
	if m.Status == market.StatusCancelled {
		fee, dust = 0, 0
	}
	if got := fee + dust + paid + unclaimed; got != m.Total {
		return fmt.Errorf("match %d: fee %d + dust %d + paid %d + unclaimed %d = %d, want total %d",
			matchID, fee, dust, paid, unclaimed, got, m.Total)
	}
	return nil
}
