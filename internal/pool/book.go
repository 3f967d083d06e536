package pool

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"PariPool/internal/market"

	"github.com/google/uuid"
)

// Stake placement failures. State-conflict variants (not-open, closed,
// duplicate) are surfaced directly on single calls; the batch operations
// of the engine never place stakes, so no skip conversion applies here.
var (
	ErrMatchNotOpen     = errors.New("match is not open for staking")
	ErrStakingClosed    = errors.New("staking window has closed")
	ErrStakeOutOfBounds = errors.New("stake amount outside configured bounds")
	ErrDuplicateStake   = errors.New("participant already has a stake on this match")
	ErrInvalidOutcome   = errors.New("invalid outcome")
)

// Book holds the stake records for a single match.
// Pure bookkeeping, no policy; not safe for concurrent use — the engine
// serializes access per match.
type Book struct {
	stakes map[uuid.UUID]*Stake
}

func NewBook() *Book {
	return &Book{stakes: make(map[uuid.UUID]*Stake)}
}

// RecordStake validates and records one stake, accumulating the match pool.
// The value transfer into custody is the caller's responsibility and is
// assumed already completed atomically with this call.
func (b *Book) RecordStake(m *market.Match, participant uuid.UUID, outcome market.Outcome, amount int64, limits Limits, now time.Time) (*Stake, error) {
	if m.Status != market.StatusOpen {
		return nil, fmt.Errorf("match %d: %w", m.ID, ErrMatchNotOpen)
	}
	if !now.Before(m.StartTime) {
		return nil, fmt.Errorf("match %d: %w", m.ID, ErrStakingClosed)
	}
	if !outcome.Valid() {
		return nil, ErrInvalidOutcome
	}
	if !limits.Contains(amount) {
		return nil, fmt.Errorf("amount %d not in [%d, %d]: %w",
			amount, limits.MinStake, limits.MaxStake, ErrStakeOutOfBounds)
	}
	if _, exists := b.stakes[participant]; exists {
		return nil, fmt.Errorf("match %d participant %s: %w", m.ID, participant, ErrDuplicateStake)
	}

	s := &Stake{
		MatchID:     m.ID,
		Participant: participant,
		Outcome:     outcome,
		Amount:      amount,
		PlacedAt:    now,
	}
	b.stakes[participant] = s
	m.AddStake(outcome, amount)

	return s, nil
}

// Get returns the participant's stake, or nil.
func (b *Book) Get(participant uuid.UUID) *Stake {
	return b.stakes[participant]
}

// Len returns the number of stakes in the book.
func (b *Book) Len() int {
	return len(b.stakes)
}

// All returns all stakes ordered by participant ID. Deterministic
// iteration keeps settlement math and dust computation reproducible.
func (b *Book) All() []*Stake {
	out := make([]*Stake, 0, len(b.stakes))
	for _, s := range b.stakes {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Participant.String() < out[j].Participant.String()
	})
	return out
}

// OnOutcome returns all stakes on one outcome, ordered by participant ID.
func (b *Book) OnOutcome(o market.Outcome) []*Stake {
	out := make([]*Stake, 0)
	for _, s := range b.All() {
		if s.Outcome == o {
			out = append(out, s)
		}
	}
	return out
}

// SumStakes returns Σ stake.amount across the book. Used by conservation
// checks: it must equal the match total at all times.
func (b *Book) SumStakes() int64 {
	var sum int64
	for _, s := range b.stakes {
		sum += s.Amount
	}
	return sum
}

// Restore inserts a previously persisted stake without validation.
func (b *Book) Restore(s *Stake) {
	b.stakes[s.Participant] = s
}
