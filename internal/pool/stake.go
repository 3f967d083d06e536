package pool

import (
	"time"

	"PariPool/internal/market"

	"github.com/google/uuid"
)

// Stake is one participant's recorded position on one match.
// Created once at placement; the only later mutation is Claimed,
// set exactly once by a successful claim. Never deleted.
type Stake struct {
	MatchID     int64
	Participant uuid.UUID
	Outcome     market.Outcome
	Amount      int64
	Claimed     bool
	PlacedAt    time.Time
}
