package pool

import "errors"

// ErrInvalidStakeLimits rejects limit pairs that do not satisfy
// 0 < min < max. Invalid configuration is never silently clamped.
var ErrInvalidStakeLimits = errors.New("invalid stake limits: require 0 < min < max")

// Limits is the stake-bounds configuration, passed by value into
// bookkeeping calls rather than read from ambient state.
type Limits struct {
	MinStake int64
	MaxStake int64
}

// Validate checks the pair at configuration time.
func (l Limits) Validate() error {
	if l.MinStake <= 0 || l.MaxStake <= l.MinStake {
		return ErrInvalidStakeLimits
	}
	return nil
}

// Contains reports whether amount is within [MinStake, MaxStake].
func (l Limits) Contains(amount int64) bool {
	return amount >= l.MinStake && amount <= l.MaxStake
}
