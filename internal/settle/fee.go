package settle

import "errors"

// FeeCeilingBps is the hard cap on the platform fee rate (5%).
// Rates above the ceiling are rejected at configuration time, never clamped.
const FeeCeilingBps = 500

// BpsDenominator converts basis points to a fraction.
const BpsDenominator = 10_000

// ErrFeeAboveCeiling rejects fee rates above FeeCeilingBps.
var ErrFeeAboveCeiling = errors.New("fee rate above hard ceiling")

// ValidateFeeRate checks a rate at configuration time.
func ValidateFeeRate(rateBps int64) error {
	if rateBps < 0 || rateBps > FeeCeilingBps {
		return ErrFeeAboveCeiling
	}
	return nil
}

// ComputeFee returns total * rateBps / 10000, floored.
// Pure function of total and rate: whether a fee applies at all is the
// settlement policy's decision, not the fee computation's. The product
// can exceed int64 for large pools, so it shares the 128-bit
// multiply-divide with the payout path.
func ComputeFee(total, rateBps int64) int64 {
	return mulDivFloor(total, rateBps, BpsDenominator)
}
