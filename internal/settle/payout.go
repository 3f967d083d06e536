package settle

import "math/big"

// Case classifies the pool composition at resolution time.
type Case int32

const (
	// CaseNoWinners: nobody staked the outcome that occurred.
	// No fee; every stake refunds its own amount.
	CaseNoWinners Case = iota
	// CaseAllWinners: the whole pool staked the winning outcome.
	// Nothing to redistribute; no fee; refund.
	CaseAllWinners
	// CaseMixed: at least one winner and one loser. Fee applies and the
	// distributable pool is shared among winners pro rata.
	CaseMixed
)

func (c Case) String() string {
	switch c {
	case CaseNoWinners:
		return "no_winners"
	case CaseAllWinners:
		return "all_winners"
	case CaseMixed:
		return "mixed"
	default:
		return "unknown"
	}
}

// Terms fixes the settlement parameters for one match. Payout for any
// individual stake is deterministically recomputable from Terms alone, so
// the quote path and the paying path can never disagree.
type Terms struct {
	Case          Case
	Total         int64
	WinnerPool    int64
	Fee           int64
	Distributable int64
}

// Classify evaluates the three-way pool policy in order.
func Classify(total, winnerPool int64) Case {
	switch {
	case winnerPool == 0:
		return CaseNoWinners
	case winnerPool == total:
		return CaseAllWinners
	default:
		return CaseMixed
	}
}

// Settle fixes the settlement terms for a resolved pool. A fee is charged
// only in the mixed case: genuine redistribution between winners and losers.
func Settle(total, winnerPool, rateBps int64) Terms {
	c := Classify(total, winnerPool)

	t := Terms{
		Case:       c,
		Total:      total,
		WinnerPool: winnerPool,
	}

	if c == CaseMixed {
		t.Fee = ComputeFee(total, rateBps)
		t.Distributable = total - t.Fee
	}

	return t
}

// Payout returns the amount owed to a winning stake of the given size:
// floor(amount * distributable / winnerPool) in the mixed case, the
// original amount in the refund cases. Rounding always favors the pool;
// the sum of payouts never exceeds the distributable amount.
func (t Terms) Payout(stakeAmount int64) int64 {
	switch t.Case {
	case CaseNoWinners, CaseAllWinners:
		return stakeAmount
	default:
		return mulDivFloor(stakeAmount, t.Distributable, t.WinnerPool)
	}
}

// Dust returns the floor-division remainder left after paying every
// winning stake: distributable − Σ payouts. Zero in the refund cases.
// winnerStakes must list the amount of every stake on the winning outcome.
func (t Terms) Dust(winnerStakes []int64) int64 {
	if t.Case != CaseMixed {
		return 0
	}
	paid := int64(0)
	for _, a := range winnerStakes {
		paid += t.Payout(a)
	}
	return t.Distributable - paid
}

// mulDivFloor computes a*b/d with a 128-bit intermediate.
// Pool totals can approach the int64 range, so the product must not
// truncate before the division.
func mulDivFloor(a, b, d int64) int64 {
	num := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	num.Quo(num, big.NewInt(d))
	return num.Int64()
}
