package engine

import (
	"fmt"
	"time"

	"PariPool/internal/event"
	"PariPool/internal/market"
	"PariPool/internal/pool"
	"PariPool/internal/settle"

	"github.com/google/uuid"
)

// termsFor reconstructs the settlement terms of a resolved match from the
// parameters fixed at resolution. The fee is read back from the match, not
// recomputed from the current rate: a later rate change must not alter
// payouts of an already-settled pool.
func termsFor(m *market.Match) settle.Terms {
	wp := m.PoolFor(m.Result)
	t := settle.Terms{
		Case:       settle.Classify(m.Total, wp),
		Total:      m.Total,
		WinnerPool: wp,
		Fee:        m.FeeCharged,
	}
	t.Distributable = t.Total - t.Fee
	return t
}

// claimEvalLocked computes what the participant is owed on one match.
// Caller holds st.mu. Returns the stake, the amount, whether it is a
// refund, and a skip reason when nothing is payable.
func claimEvalLocked(st *matchState, participant uuid.UUID) (s *pool.Stake, amount int64, refund bool, reason SkipReason) {
	m := st.m

	if !m.Status.Terminal() {
		return nil, 0, false, SkipNotResolved
	}
	s = st.book.Get(participant)
	if s == nil {
		return nil, 0, false, SkipNoStake
	}
	if s.Claimed {
		return s, 0, false, SkipAlreadyClaimed
	}

	if m.Status == market.StatusCancelled {
		return s, s.Amount, true, SkipNone
	}

	t := termsFor(m)
	switch t.Case {
	case settle.CaseNoWinners, settle.CaseAllWinners:
		return s, s.Amount, true, SkipNone
	default:
		if s.Outcome != m.Result {
			return s, 0, false, SkipNotAWinner
		}
		return s, t.Payout(s.Amount), false, SkipNone
	}
}

func claimErr(r SkipReason) error {
	switch r {
	case SkipNotResolved:
		return ErrNotResolved
	case SkipNoStake:
		return ErrNoStake
	case SkipAlreadyClaimed:
		return ErrAlreadyClaimed
	case SkipNotAWinner:
		return ErrNotAWinner
	default:
		return nil
	}
}

// Claim pays out one participant's entitlement on one match. The external
// transfer runs while the match lock is held and the claimed flag is set
// only after it succeeds: a failed transfer leaves no visible mutation,
// and the claim can simply be retried.
func (e *Engine) Claim(matchID int64, participant uuid.UUID, now time.Time) (int64, error) {
	start := time.Now()

	st, ok := e.state(matchID)
	if !ok {
		e.reject("claim", "not_found")
		return 0, ErrMatchNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	s, amount, refund, reason := claimEvalLocked(st, participant)
	if reason != SkipNone {
		e.reject("claim", reason.String())
		return 0, fmt.Errorf("match %d: %w", matchID, claimErr(reason))
	}

	if err := e.payout.Send(participant, amount); err != nil {
		e.reject("claim", "payout_failed")
		e.logger.Error().
			Err(err).
			Int64("match_id", matchID).
			Str("participant", participant.String()).
			Int64("amount", amount).
			Msg("payout transfer failed, claim rolled back")
		return 0, fmt.Errorf("%w: %v", ErrPayoutFailed, err)
	}

	s.Claimed = true
	e.totalPaidOut.Add(amount)
	if e.metrics != nil {
		e.metrics.PayoutsTotal.Add(float64(amount))
	}

	profit := int64(0)
	if !refund {
		profit = amount - s.Amount
	}

	e.emit(event.TypeClaimPaid, matchID, now, event.ClaimPaid{
		Participant: participant,
		Stake:       s.Amount,
		Payout:      amount,
		Profit:      profit,
		Refund:      refund,
	}, st.m.Clone(), []pool.Stake{*s})

	e.observe("claim", start)
	return amount, nil
}

// ClaimBatch settles every claimable entitlement of one participant
// across a set of matches in a single external transfer. Non-claimable
// entries are skipped with a recorded reason rather than failing the
// batch; duplicated match ids are paid once. All touched match locks are
// held for the duration so the transfer-then-mark step is atomic across
// the whole batch.
func (e *Engine) ClaimBatch(participant uuid.UUID, matchIDs []int64, now time.Time) (int64, BatchResult, error) {
	start := time.Now()

	if len(matchIDs) == 0 {
		e.reject("claim_batch", "empty")
		return 0, BatchResult{}, ErrEmptyBatch
	}
	if len(matchIDs) > MaxClaimBatch {
		e.reject("claim_batch", "too_large")
		return 0, BatchResult{}, fmt.Errorf("%d entries exceeds limit %d: %w",
			len(matchIDs), MaxClaimBatch, ErrBatchTooLarge)
	}

	var res BatchResult
	seen := make(map[int64]bool, len(matchIDs))
	states := make(map[int64]*matchState, len(matchIDs))
	order := make([]int64, 0, len(matchIDs))

	for _, id := range matchIDs {
		if seen[id] {
			res.Skipped = append(res.Skipped, newSkipEntry(id, SkipDuplicateEntry))
			continue
		}
		seen[id] = true

		st, ok := e.state(id)
		if !ok {
			res.Skipped = append(res.Skipped, newSkipEntry(id, SkipNotFound))
			continue
		}
		states[id] = st
		order = append(order, id)
	}

	unlock := lockAll(states)
	defer unlock()

	type payable struct {
		st     *matchState
		s      *pool.Stake
		amount int64
		refund bool
	}
	var (
		due     []payable
		total   int64
		matches []int64
	)

	for _, id := range order {
		st := states[id]
		s, amount, refund, reason := claimEvalLocked(st, participant)
		if reason != SkipNone {
			res.Skipped = append(res.Skipped, newSkipEntry(id, reason))
			if e.metrics != nil {
				e.metrics.BatchSkipped.WithLabelValues("claim_batch", reason.String()).Inc()
			}
			continue
		}
		due = append(due, payable{st: st, s: s, amount: amount, refund: refund})
		total += amount
		matches = append(matches, id)
	}

	if len(due) == 0 {
		e.reject("claim_batch", "nothing_to_claim")
		return 0, res, ErrNothingToClaim
	}

	if err := e.payout.Send(participant, total); err != nil {
		e.reject("claim_batch", "payout_failed")
		e.logger.Error().
			Err(err).
			Str("participant", participant.String()).
			Int64("amount", total).
			Int("matches", len(due)).
			Msg("batch payout transfer failed, claims rolled back")
		return 0, res, fmt.Errorf("%w: %v", ErrPayoutFailed, err)
	}

	// Per-entry notifications keep per-match subject consumers complete;
	// the batch notification carries the aggregate transfer.
	for _, p := range due {
		p.s.Claimed = true
		profit := int64(0)
		if !p.refund {
			profit = p.amount - p.s.Amount
		}
		e.emit(event.TypeClaimPaid, p.st.m.ID, now, event.ClaimPaid{
			Participant: participant,
			Stake:       p.s.Amount,
			Payout:      p.amount,
			Profit:      profit,
			Refund:      p.refund,
		}, p.st.m.Clone(), []pool.Stake{*p.s})
	}
	res.Applied = len(due)

	e.totalPaidOut.Add(total)
	if e.metrics != nil {
		e.metrics.PayoutsTotal.Add(float64(total))
	}

	e.emit(event.TypeBatchClaimPaid, 0, now, event.BatchClaimPaid{
		Participant: participant,
		Matches:     matches,
		Total:       total,
	}, nil, nil)

	e.observe("claim_batch", start)
	return total, res, nil
}

// GetClaimable quotes the participant's entitlement on one match without
// mutating anything. Uses exactly the evaluation the paying path uses.
func (e *Engine) GetClaimable(matchID int64, participant uuid.UUID) (ClaimQuote, error) {
	st, ok := e.state(matchID)
	if !ok {
		return ClaimQuote{}, ErrMatchNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	_, amount, refund, reason := claimEvalLocked(st, participant)
	q := ClaimQuote{MatchID: matchID}
	if reason != SkipNone {
		q.Reason = reason.String()
		return q, nil
	}
	q.Claimable = true
	q.Amount = amount
	q.Refund = refund
	return q, nil
}

// GetClaimableBatch quotes entitlements across many matches. Unknown
// match ids quote as non-claimable rather than failing the call.
func (e *Engine) GetClaimableBatch(participant uuid.UUID, matchIDs []int64) []ClaimQuote {
	out := make([]ClaimQuote, 0, len(matchIDs))
	for _, id := range matchIDs {
		q, err := e.GetClaimable(id, participant)
		if err != nil {
			q = ClaimQuote{MatchID: id, Reason: SkipNotFound.String()}
		}
		out = append(out, q)
	}
	return out
}
