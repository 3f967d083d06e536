package query

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MatchHistory is one settled or voided match as served to the read side.
type MatchHistory struct {
	MatchID      int64      `json:"match_id"`
	HomeTeam     string     `json:"home_team"`
	AwayTeam     string     `json:"away_team"`
	Category     string     `json:"category"`
	StartTime    time.Time  `json:"start_time"`
	Status       string     `json:"status"`
	Result       string     `json:"result,omitempty"`
	Total        int64      `json:"total"`
	FeeCharged   int64      `json:"fee_charged"`
	Dust         int64      `json:"dust"`
	CancelReason string     `json:"cancel_reason,omitempty"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// ParticipantStake is one stake row as served to the read side.
type ParticipantStake struct {
	MatchID  int64     `json:"match_id"`
	HomeTeam string    `json:"home_team"`
	AwayTeam string    `json:"away_team"`
	Status   string    `json:"status"`
	Result   string    `json:"result,omitempty"`
	Outcome  string    `json:"outcome"`
	Amount   int64     `json:"amount"`
	Claimed  bool      `json:"claimed"`
	PlacedAt time.Time `json:"placed_at"`
}

// LedgerTotals are the platform-wide sums over persisted state.
type LedgerTotals struct {
	Matches       int64 `json:"matches"`
	TotalStaked   int64 `json:"total_staked"`
	FeesCollected int64 `json:"fees_collected"`
	DustRetained  int64 `json:"dust_retained"`
	AsOfSequence  int64 `json:"as_of_sequence"`
}

// NotificationRecord is one row from the notification log.
type NotificationRecord struct {
	Sequence  int64           `json:"sequence"`
	EventType string          `json:"event_type"`
	MatchID   int64           `json:"match_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// StakesFilter narrows a participant stake listing.
type StakesFilter struct {
	Participant uuid.UUID
	OnlyOpen    bool
}
