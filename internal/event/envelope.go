package event

import "time"

// Type discriminates outbound notification payloads.
type Type int32

const (
	TypeUnknown Type = iota
	TypeMatchCreated
	TypeStakePlaced
	TypeMatchClosed
	TypeMatchResolved
	TypeResolutionSkipped
	TypeMatchCancelled
	TypeCancellationSkipped
	TypeClaimPaid
	TypeBatchClaimPaid
)

func (t Type) String() string {
	switch t {
	case TypeMatchCreated:
		return "MatchCreated"
	case TypeStakePlaced:
		return "StakePlaced"
	case TypeMatchClosed:
		return "MatchClosed"
	case TypeMatchResolved:
		return "MatchResolved"
	case TypeResolutionSkipped:
		return "ResolutionSkipped"
	case TypeMatchCancelled:
		return "MatchCancelled"
	case TypeCancellationSkipped:
		return "CancellationSkipped"
	case TypeClaimPaid:
		return "ClaimPaid"
	case TypeBatchClaimPaid:
		return "BatchClaimPaid"
	default:
		return "Unknown"
	}
}

// Envelope wraps every notification emitted by the settlement engine.
// Sequence is a global monotonic counter assigned at emission; downstream
// consumers rely on it for ordering and gap detection. Timestamp is the
// versioned input timestamp of the triggering operation, never wall-clock
// time read inside the engine.
type Envelope struct {
	Sequence  int64       `json:"sequence"`
	Type      Type        `json:"type"`
	TypeName  string      `json:"type_name"`
	MatchID   int64       `json:"match_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}
