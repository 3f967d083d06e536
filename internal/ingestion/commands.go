package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"PariPool/internal/market"
)

// Scheduler commands arriving over NATS. The fixtures scheduler batches
// resolutions and cancellations; per-entry conflicts are skipped by the
// engine, so redelivered commands converge instead of looping.

// --- JSON wire formats ---
// Field names use snake_case to match the scheduler.

type resolveCommandJSON struct {
	MatchIDs    []int64  `json:"match_ids"`
	Results     []string `json:"results"`
	TimestampUs int64    `json:"timestamp_us"`
}

type cancelCommandJSON struct {
	MatchIDs    []int64 `json:"match_ids"`
	Reason      string  `json:"reason"`
	TimestampUs int64   `json:"timestamp_us"`
}

// ResolveCommand is a parsed batch resolution request.
type ResolveCommand struct {
	MatchIDs  []int64
	Results   []market.Outcome
	Timestamp time.Time
}

// CancelCommand is a parsed batch cancellation request.
type CancelCommand struct {
	MatchIDs  []int64
	Reason    string
	Timestamp time.Time
}

// ParseResolveCommand validates the batch shape and outcome strings.
// Unknown outcome strings fail the parse: a malformed command is a
// producer bug, distinct from a per-entry state conflict.
func ParseResolveCommand(data []byte) (ResolveCommand, error) {
	var j resolveCommandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return ResolveCommand{}, fmt.Errorf("parse resolve command: %w", err)
	}
	if len(j.MatchIDs) != len(j.Results) {
		return ResolveCommand{}, fmt.Errorf("resolve command: %d ids but %d results", len(j.MatchIDs), len(j.Results))
	}
	if len(j.MatchIDs) == 0 {
		return ResolveCommand{}, fmt.Errorf("resolve command: empty batch")
	}
	if j.TimestampUs <= 0 {
		return ResolveCommand{}, fmt.Errorf("resolve command: missing timestamp_us")
	}

	outcomes := make([]market.Outcome, len(j.Results))
	for i, s := range j.Results {
		o, err := market.ParseOutcome(s)
		if err != nil {
			return ResolveCommand{}, fmt.Errorf("resolve command entry %d: %w", i, err)
		}
		outcomes[i] = o
	}

	return ResolveCommand{
		MatchIDs:  j.MatchIDs,
		Results:   outcomes,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}

// ParseCancelCommand validates the batch shape.
func ParseCancelCommand(data []byte) (CancelCommand, error) {
	var j cancelCommandJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return CancelCommand{}, fmt.Errorf("parse cancel command: %w", err)
	}
	if len(j.MatchIDs) == 0 {
		return CancelCommand{}, fmt.Errorf("cancel command: empty batch")
	}
	if j.Reason == "" {
		return CancelCommand{}, fmt.Errorf("cancel command: missing reason")
	}
	if j.TimestampUs <= 0 {
		return CancelCommand{}, fmt.Errorf("cancel command: missing timestamp_us")
	}

	return CancelCommand{
		MatchIDs:  j.MatchIDs,
		Reason:    j.Reason,
		Timestamp: time.UnixMicro(j.TimestampUs),
	}, nil
}
