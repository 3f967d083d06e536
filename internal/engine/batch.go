package engine

// SkipReason explains why a batch entry was left untouched. The batch
// operations record a reason instead of failing the whole call: a
// scheduler retrying a partially-applied batch must converge, not loop.
type SkipReason int32

const (
	SkipNone SkipReason = iota
	SkipNotFound
	SkipAlreadyResolvedSameResult
	SkipAlreadyResolvedDifferentResult
	SkipAlreadyResolved
	SkipAlreadyCancelled
	SkipTooEarly
	SkipInvalidOutcome
	SkipDuplicateEntry
	SkipNotResolved
	SkipNoStake
	SkipAlreadyClaimed
	SkipNotAWinner
)

func (r SkipReason) String() string {
	switch r {
	case SkipNotFound:
		return "not_found"
	case SkipAlreadyResolvedSameResult:
		return "already_resolved_same_result"
	case SkipAlreadyResolvedDifferentResult:
		return "already_resolved_different_result"
	case SkipAlreadyResolved:
		return "already_resolved"
	case SkipAlreadyCancelled:
		return "already_cancelled"
	case SkipTooEarly:
		return "too_early"
	case SkipInvalidOutcome:
		return "invalid_outcome"
	case SkipDuplicateEntry:
		return "duplicate_entry"
	case SkipNotResolved:
		return "not_resolved"
	case SkipNoStake:
		return "no_stake"
	case SkipAlreadyClaimed:
		return "already_claimed"
	case SkipNotAWinner:
		return "not_a_winner"
	default:
		return "none"
	}
}

// SkipEntry reports one skipped batch entry.
type SkipEntry struct {
	MatchID int64      `json:"match_id"`
	Reason  SkipReason `json:"-"`
	Code    string     `json:"reason"`
}

func newSkipEntry(matchID int64, reason SkipReason) SkipEntry {
	return SkipEntry{MatchID: matchID, Reason: reason, Code: reason.String()}
}

// BatchResult summarizes a ResolveMany / CancelMany call. The call itself
// succeeds whenever the input arrays are well-formed, even if every entry
// was skipped.
type BatchResult struct {
	Applied int         `json:"applied"`
	Skipped []SkipEntry `json:"skipped"`
}

// ClaimQuote is the read-only answer to "is this stake claimable, and for
// how much". It is computed with exactly the same settlement terms as the
// paying path, so a quoted amount is never stale relative to the amount
// actually paid.
type ClaimQuote struct {
	MatchID   int64  `json:"match_id"`
	Claimable bool   `json:"claimable"`
	Amount    int64  `json:"amount"`
	Refund    bool   `json:"refund"`
	Reason    string `json:"reason,omitempty"`
}
