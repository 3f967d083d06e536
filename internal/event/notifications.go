package event

import (
	"time"

	"github.com/google/uuid"
)

// Notification payloads. Field names use snake_case on the wire to match
// the downstream indexer's expectations.

type MatchCreated struct {
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	Category  string    `json:"category"`
	StartTime time.Time `json:"start_time"`
}

type StakePlaced struct {
	Participant uuid.UUID `json:"participant"`
	Outcome     string    `json:"outcome"`
	Amount      int64     `json:"amount"`
	PoolTotal   int64     `json:"pool_total"`
}

type MatchClosed struct {
	Total int64 `json:"total"`
}

type MatchResolved struct {
	Result     string `json:"result"`
	Total      int64  `json:"total"`
	WinnerPool int64  `json:"winner_pool"`
	Fee        int64  `json:"fee"`
	Dust       int64  `json:"dust"`
}

// ResolutionSkipped reports one batch entry that was left untouched,
// with the machine-readable reason code.
type ResolutionSkipped struct {
	Requested string `json:"requested_result"`
	Reason    string `json:"reason"`
}

type MatchCancelled struct {
	Reason string `json:"reason"`
	Total  int64  `json:"total"`
}

type CancellationSkipped struct {
	Reason string `json:"reason"`
}

// ClaimPaid carries profit = payout − stake for winnings; zero for refunds.
type ClaimPaid struct {
	Participant uuid.UUID `json:"participant"`
	Stake       int64     `json:"stake"`
	Payout      int64     `json:"payout"`
	Profit      int64     `json:"profit"`
	Refund      bool      `json:"refund"`
}

type BatchClaimPaid struct {
	Participant uuid.UUID `json:"participant"`
	Matches     []int64   `json:"matches"`
	Total       int64     `json:"total"`
}
