package market

import (
	"fmt"
	"time"
)

// Outcome is one of the three mutually exclusive match results.
type Outcome int32

const (
	OutcomeNone Outcome = iota
	OutcomeHome
	OutcomeDraw
	OutcomeAway
)

// NumOutcomes is the number of stakeable outcomes (OutcomeNone excluded).
const NumOutcomes = 3

func (o Outcome) String() string {
	switch o {
	case OutcomeHome:
		return "home"
	case OutcomeDraw:
		return "draw"
	case OutcomeAway:
		return "away"
	case OutcomeNone:
		return "none"
	default:
		return "unknown"
	}
}

// Valid reports whether the outcome is stakeable (not None).
func (o Outcome) Valid() bool {
	return o == OutcomeHome || o == OutcomeDraw || o == OutcomeAway
}

// index maps a stakeable outcome to its pool slot.
func (o Outcome) index() int {
	return int(o) - 1
}

// ParseOutcome converts a wire string ("home"/"draw"/"away") into an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "home":
		return OutcomeHome, nil
	case "draw":
		return OutcomeDraw, nil
	case "away":
		return OutcomeAway, nil
	default:
		return OutcomeNone, fmt.Errorf("unknown outcome: %q", s)
	}
}

// Status is the lifecycle state of a match.
type Status int32

const (
	StatusOpen Status = iota
	StatusClosed
	StatusResolved
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClosed:
		return "closed"
	case StatusResolved:
		return "resolved"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseStatus converts a stored status string back into a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "open":
		return StatusOpen, nil
	case "closed":
		return StatusClosed, nil
	case "resolved":
		return StatusResolved, nil
	case "cancelled":
		return StatusCancelled, nil
	default:
		return StatusOpen, fmt.Errorf("unknown status: %q", s)
	}
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// CanTransitionTo enforces the lifecycle:
// Open → Closed → Resolved, Open|Closed → Cancelled. Terminal states are final.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusOpen:
		return next == StatusClosed || next == StatusResolved || next == StatusCancelled
	case StatusClosed:
		return next == StatusResolved || next == StatusCancelled
	default:
		return false
	}
}

// MaxMetadataLen bounds the descriptive fields of a match.
const MaxMetadataLen = 64

// Match is one wagering market over three outcomes.
// Pool fields are mutated only through AddStake while the match is Open;
// once Resolved or Cancelled the whole struct is immutable except for
// claim bookkeeping held elsewhere.
type Match struct {
	ID        int64
	HomeTeam  string
	AwayTeam  string
	Category  string
	StartTime time.Time

	Status Status
	Result Outcome // OutcomeNone until resolved

	// Per-outcome accumulated stake, indexed Home/Draw/Away.
	Pools  [NumOutcomes]int64
	Total  int64
	Counts [NumOutcomes]int64 // distinct stakers per outcome

	FeeCharged int64 // fixed at resolution, 0 until then
	Dust       int64 // floor-division remainder fixed at resolution

	CancelReason string
	CreatedAt    time.Time
	ResolvedAt   time.Time
}

// ValidateMetadata checks the descriptive fields of a new match.
func ValidateMetadata(home, away, category string) error {
	for _, f := range []struct {
		name, value string
	}{
		{"home_team", home},
		{"away_team", away},
		{"category", category},
	} {
		if f.value == "" {
			return fmt.Errorf("%s must not be empty", f.name)
		}
		if len(f.value) > MaxMetadataLen {
			return fmt.Errorf("%s exceeds %d bytes", f.name, MaxMetadataLen)
		}
	}
	return nil
}

// PoolFor returns the accumulated stake on one outcome.
func (m *Match) PoolFor(o Outcome) int64 {
	if !o.Valid() {
		return 0
	}
	return m.Pools[o.index()]
}

// CountFor returns the number of distinct stakers on one outcome.
func (m *Match) CountFor(o Outcome) int64 {
	if !o.Valid() {
		return 0
	}
	return m.Counts[o.index()]
}

// AddStake accumulates a stake into the pool. Callers are responsible for
// all validation; this is pure bookkeeping maintaining total == Σ pools.
func (m *Match) AddStake(o Outcome, amount int64) {
	m.Pools[o.index()] += amount
	m.Counts[o.index()]++
	m.Total += amount
}

// Odds returns the implied parimutuel multiplier per outcome
// (total / outcome pool), for display only. Empty pools report 0.
func (m *Match) Odds() [NumOutcomes]float64 {
	var odds [NumOutcomes]float64
	if m.Total == 0 {
		return odds
	}
	for i, p := range m.Pools {
		if p > 0 {
			odds[i] = float64(m.Total) / float64(p)
		}
	}
	return odds
}

// CheckConservation verifies total == Σ per-outcome pools.
func (m *Match) CheckConservation() error {
	var sum int64
	for _, p := range m.Pools {
		sum += p
	}
	if sum != m.Total {
		return fmt.Errorf("match %d pool mismatch: total=%d, sum(pools)=%d", m.ID, m.Total, sum)
	}
	return nil
}

// Clone returns a copy safe to hand to shells outside the engine's locks.
func (m *Match) Clone() *Match {
	c := *m
	return &c
}
