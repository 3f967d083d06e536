package engine

import "errors"

// Lifecycle and claim failures. Single-item operations surface these
// directly; the batch operations convert the state-conflict subset into
// per-entry skips instead of failing the whole call.
var (
	ErrMatchNotFound    = errors.New("match not found")
	ErrAlreadyResolved  = errors.New("match already resolved")
	ErrAlreadyCancelled = errors.New("match already cancelled")
	ErrAlreadyClosed    = errors.New("match already closed")
	ErrInvalidOutcome   = errors.New("result outcome must be one of home/draw/away")
	ErrTooEarly         = errors.New("match cannot be resolved before its grace period elapses")
	ErrInvalidStartTime = errors.New("start time must be in the future")

	ErrNotResolved    = errors.New("match is not resolved or cancelled")
	ErrNoStake        = errors.New("participant has no stake on this match")
	ErrAlreadyClaimed = errors.New("stake already claimed")
	ErrNotAWinner     = errors.New("stake is not on the winning outcome")

	ErrEmptyBatch     = errors.New("batch must not be empty")
	ErrBatchMismatch  = errors.New("batch id and result lengths differ")
	ErrBatchTooLarge  = errors.New("batch exceeds maximum size")
	ErrNothingToClaim = errors.New("nothing claimable in batch")

	// ErrPayoutFailed wraps a PayoutSender failure. The enclosing ledger
	// mutation is rolled back entirely: no stake is marked claimed
	// without its payout having been sent.
	ErrPayoutFailed = errors.New("payout transfer failed")
)
