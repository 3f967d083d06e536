package engine

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"PariPool/internal/event"
	"PariPool/internal/market"
	"PariPool/internal/observability"
	"PariPool/internal/pool"
	"PariPool/internal/settle"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PayoutSender moves value out of custody to a participant. It is the
// external transfer collaborator: fast and fail-fast, invoked while the
// relevant match locks are held so that a failure rolls back the claim
// atomically. The corresponding transfer INTO custody at stake placement
// is assumed already completed by the caller.
type PayoutSender interface {
	Send(participant uuid.UUID, amount int64) error
}

// Output carries one notification plus the post-operation row snapshots
// the persistence shell needs. Snapshots are clones: safe to read after
// the engine has released its locks.
type Output struct {
	Envelope event.Envelope
	Match    *market.Match
	Stakes   []pool.Stake
}

// Config is the settlement policy configuration. Validated at
// construction and on every update; invalid values are rejected, never
// clamped.
type Config struct {
	FeeRateBps  int64
	Limits      pool.Limits
	GracePeriod time.Duration
}

func (c Config) validate() error {
	if err := settle.ValidateFeeRate(c.FeeRateBps); err != nil {
		return err
	}
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("grace period must not be negative")
	}
	return nil
}

// MaxClaimBatch bounds ClaimBatch input size (DOS bound).
const MaxClaimBatch = 64

// matchState is one match plus its stake book, guarded by its own mutex.
// All mutations of the match pool, status, and claimed flags happen under
// this lock; operations on different matches proceed independently.
type matchState struct {
	mu   sync.Mutex
	m    *market.Match
	book *pool.Book
}

// Engine is the pooled-wagering settlement core: match lifecycle, stake
// bookkeeping, idempotent single and batch resolution/cancellation, and
// claim/refund accounting. Mutating operations take an explicit `now`
// from the caller shell; the engine never reads wall-clock time itself,
// which keeps every decision deterministically replayable.
type Engine struct {
	mu      sync.RWMutex // guards matches map and nextID
	matches map[int64]*matchState
	nextID  int64

	cfgMu  sync.Mutex
	limits pool.Limits
	feeBps int64
	grace  time.Duration

	sequence atomic.Int64 // notification sequence

	// Ledger-wide aggregates: informational, not authoritative.
	feesCollected atomic.Int64
	totalPaidOut  atomic.Int64
	dustRetained  atomic.Int64

	payout PayoutSender

	persistChan chan<- Output         // blocking send: backpressure, no loss
	publishChan chan<- event.Envelope // non-blocking send: drop on full

	metrics *observability.Metrics
	logger  zerolog.Logger
}

// New constructs an engine with the given policy configuration.
// persistChan and publishChan may be nil (tests); payout must not be.
func New(cfg Config, payout PayoutSender, persistChan chan<- Output, publishChan chan<- event.Envelope, metrics *observability.Metrics, logger zerolog.Logger) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if payout == nil {
		return nil, fmt.Errorf("engine: payout sender is required")
	}

	return &Engine{
		matches:     make(map[int64]*matchState),
		nextID:      1,
		limits:      cfg.Limits,
		feeBps:      cfg.FeeRateBps,
		grace:       cfg.GracePeriod,
		payout:      payout,
		persistChan: persistChan,
		publishChan: publishChan,
		metrics:     metrics,
		logger:      logger,
	}, nil
}

func (e *Engine) state(id int64) (*matchState, bool) {
	e.mu.RLock()
	st, ok := e.matches[id]
	e.mu.RUnlock()
	return st, ok
}

// emit assigns the next notification sequence and hands the output to the
// shells: blocking to persistence (no notification is ever lost),
// non-blocking to the publisher (consumers can rebuild from the log).
func (e *Engine) emit(typ event.Type, matchID int64, ts time.Time, payload interface{}, m *market.Match, stakes []pool.Stake) {
	seq := e.sequence.Add(1)

	out := Output{
		Envelope: event.Envelope{
			Sequence:  seq,
			Type:      typ,
			TypeName:  typ.String(),
			MatchID:   matchID,
			Timestamp: ts,
			Payload:   payload,
		},
		Match:  m,
		Stakes: stakes,
	}

	if e.metrics != nil {
		e.metrics.NotificationSeq.Set(float64(seq))
	}

	if e.persistChan != nil {
		if e.metrics != nil && len(e.persistChan) == cap(e.persistChan) {
			e.metrics.PersistBackpressure.Inc()
		}
		e.persistChan <- out
	}

	if e.publishChan != nil {
		select {
		case e.publishChan <- out.Envelope:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}
}

func (e *Engine) observe(op string, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.OpsApplied.WithLabelValues(op).Inc()
	e.metrics.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (e *Engine) reject(op, reason string) {
	if e.metrics != nil {
		e.metrics.OpsRejected.WithLabelValues(op, reason).Inc()
	}
}

// CreateMatch registers a new Open match and returns its identifier.
// The caller collaborator is assumed to have authorized the creation.
func (e *Engine) CreateMatch(home, away, category string, startTime, now time.Time) (int64, error) {
	start := time.Now()

	if err := market.ValidateMetadata(home, away, category); err != nil {
		e.reject("create_match", "metadata")
		return 0, err
	}
	if !startTime.After(now) {
		e.reject("create_match", "start_time")
		return 0, ErrInvalidStartTime
	}

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	m := &market.Match{
		ID:        id,
		HomeTeam:  home,
		AwayTeam:  away,
		Category:  category,
		StartTime: startTime,
		Status:    market.StatusOpen,
		CreatedAt: now,
	}
	e.matches[id] = &matchState{m: m, book: pool.NewBook()}
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.OpenMatches.Inc()
	}
	e.logger.Info().
		Int64("match_id", id).
		Str("home", home).
		Str("away", away).
		Time("start_time", startTime).
		Msg("match created")

	e.emit(event.TypeMatchCreated, id, now, event.MatchCreated{
		HomeTeam:  home,
		AwayTeam:  away,
		Category:  category,
		StartTime: startTime,
	}, m.Clone(), nil)

	e.observe("create_match", start)
	return id, nil
}

// PlaceStake records one participant's stake on an open match.
func (e *Engine) PlaceStake(matchID int64, participant uuid.UUID, outcome market.Outcome, amount int64, now time.Time) error {
	start := time.Now()

	st, ok := e.state(matchID)
	if !ok {
		e.reject("place_stake", "not_found")
		return ErrMatchNotFound
	}

	limits := e.StakeLimits()

	st.mu.Lock()
	s, err := st.book.RecordStake(st.m, participant, outcome, amount, limits, now)
	if err != nil {
		st.mu.Unlock()
		e.reject("place_stake", "validation")
		return err
	}
	mSnap := st.m.Clone()
	sSnap := *s

	if e.metrics != nil {
		e.metrics.StakesPlaced.Inc()
		e.metrics.StakedAmount.Add(float64(amount))
	}

	// Emit under the lock: sequence assignment and the persist send must
	// be ordered with the mutation, or a concurrent operation on the same
	// match could enqueue a newer snapshot first and the writer's
	// last-wins dedupe would persist the stale one.
	e.emit(event.TypeStakePlaced, matchID, now, event.StakePlaced{
		Participant: participant,
		Outcome:     outcome.String(),
		Amount:      amount,
		PoolTotal:   mSnap.Total,
	}, mSnap, []pool.Stake{sSnap})
	st.mu.Unlock()

	e.observe("place_stake", start)
	return nil
}

// CloseMatch explicitly stops staking before resolution. Resolution also
// closes implicitly; the explicit call exists for early lock-down.
func (e *Engine) CloseMatch(matchID int64, now time.Time) error {
	start := time.Now()

	st, ok := e.state(matchID)
	if !ok {
		e.reject("close_match", "not_found")
		return ErrMatchNotFound
	}

	st.mu.Lock()
	switch st.m.Status {
	case market.StatusResolved:
		st.mu.Unlock()
		e.reject("close_match", "already_resolved")
		return ErrAlreadyResolved
	case market.StatusCancelled:
		st.mu.Unlock()
		e.reject("close_match", "already_cancelled")
		return ErrAlreadyCancelled
	case market.StatusClosed:
		st.mu.Unlock()
		e.reject("close_match", "already_closed")
		return ErrAlreadyClosed
	}
	st.m.Status = market.StatusClosed
	mSnap := st.m.Clone()
	e.emit(event.TypeMatchClosed, matchID, now, event.MatchClosed{Total: mSnap.Total}, mSnap, nil)
	st.mu.Unlock()

	e.observe("close_match", start)
	return nil
}

// resolveCheck classifies whether a match can be resolved now. Terminal
// states are checked before input validity so that a retried batch entry
// reports what actually happened to the match, not a request defect.
func resolveCheck(m *market.Match, outcome market.Outcome, grace time.Duration, now time.Time) SkipReason {
	switch m.Status {
	case market.StatusResolved:
		if m.Result == outcome {
			return SkipAlreadyResolvedSameResult
		}
		return SkipAlreadyResolvedDifferentResult
	case market.StatusCancelled:
		return SkipAlreadyCancelled
	}
	if !outcome.Valid() {
		return SkipInvalidOutcome
	}
	if now.Before(m.StartTime.Add(grace)) {
		return SkipTooEarly
	}
	return SkipNone
}

func resolveErr(r SkipReason) error {
	switch r {
	case SkipAlreadyResolvedSameResult, SkipAlreadyResolvedDifferentResult:
		return ErrAlreadyResolved
	case SkipAlreadyCancelled:
		return ErrAlreadyCancelled
	case SkipInvalidOutcome:
		return ErrInvalidOutcome
	case SkipTooEarly:
		return ErrTooEarly
	default:
		return nil
	}
}

// applyResolveLocked fixes the settlement terms on an eligible match.
// Caller holds st.mu and has already run resolveCheck.
func (e *Engine) applyResolveLocked(st *matchState, outcome market.Outcome, now time.Time) {
	m := st.m

	// Implicit Open → Closed at resolution time.
	if m.Status == market.StatusOpen {
		m.Status = market.StatusClosed
	}

	terms := settle.Settle(m.Total, m.PoolFor(outcome), e.FeeRate())

	winners := st.book.OnOutcome(outcome)
	winnerAmounts := make([]int64, len(winners))
	for i, s := range winners {
		winnerAmounts[i] = s.Amount
	}

	m.Status = market.StatusResolved
	m.Result = outcome
	m.FeeCharged = terms.Fee
	m.Dust = terms.Dust(winnerAmounts)
	m.ResolvedAt = now

	e.feesCollected.Add(m.FeeCharged)
	e.dustRetained.Add(m.Dust)

	// Settlement fixes parameters, never per-user amounts. Anything that
	// breaks pool conservation here is corrupted state, not a caller error.
	if err := m.CheckConservation(); err != nil {
		panic(fmt.Sprintf("FATAL: conservation violated at resolution: %v", err))
	}
	if sum := st.book.SumStakes(); sum != m.Total {
		panic(fmt.Sprintf("FATAL: match %d stake sum %d != total %d", m.ID, sum, m.Total))
	}

	if e.metrics != nil {
		e.metrics.OpenMatches.Dec()
		e.metrics.FeesCollected.Add(float64(m.FeeCharged))
		e.metrics.DustRetained.Add(float64(m.Dust))
	}

	e.logger.Info().
		Int64("match_id", m.ID).
		Str("result", outcome.String()).
		Int64("total", m.Total).
		Int64("winner_pool", terms.WinnerPool).
		Int64("fee", m.FeeCharged).
		Int64("dust", m.Dust).
		Str("case", terms.Case.String()).
		Msg("match resolved")

	e.emit(event.TypeMatchResolved, m.ID, now, event.MatchResolved{
		Result:     outcome.String(),
		Total:      m.Total,
		WinnerPool: terms.WinnerPool,
		Fee:        m.FeeCharged,
		Dust:       m.Dust,
	}, m.Clone(), nil)
}

// Resolve settles a single match. Strict: any conflict fails the call —
// the caller has full context. Use ResolveMany for retry-safe batches.
func (e *Engine) Resolve(matchID int64, outcome market.Outcome, now time.Time) error {
	start := time.Now()

	st, ok := e.state(matchID)
	if !ok {
		e.reject("resolve", "not_found")
		return ErrMatchNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if r := resolveCheck(st.m, outcome, e.gracePeriod(), now); r != SkipNone {
		e.reject("resolve", r.String())
		return fmt.Errorf("match %d: %w", matchID, resolveErr(r))
	}

	e.applyResolveLocked(st, outcome, now)
	e.observe("resolve", start)
	return nil
}

// ResolveMany settles a batch with per-entry skip semantics. The call
// succeeds whenever the array lengths match; entries hitting a terminal
// state or a validation failure are skipped with a recorded reason and
// their stored results never change. Each entry is evaluated against the
// state as of its own turn, so a batch that repeats a match id converges
// to one resolution plus one already-resolved skip.
func (e *Engine) ResolveMany(matchIDs []int64, outcomes []market.Outcome, now time.Time) (BatchResult, error) {
	start := time.Now()

	if len(matchIDs) != len(outcomes) {
		e.reject("resolve_many", "length_mismatch")
		return BatchResult{}, ErrBatchMismatch
	}
	if len(matchIDs) == 0 {
		e.reject("resolve_many", "empty")
		return BatchResult{}, ErrEmptyBatch
	}

	var res BatchResult
	grace := e.gracePeriod()

	for i, id := range matchIDs {
		outcome := outcomes[i]

		st, ok := e.state(id)
		if !ok {
			res.Skipped = append(res.Skipped, newSkipEntry(id, SkipNotFound))
			e.skipResolution(id, outcome, SkipNotFound, now)
			continue
		}

		st.mu.Lock()
		if r := resolveCheck(st.m, outcome, grace, now); r != SkipNone {
			st.mu.Unlock()
			res.Skipped = append(res.Skipped, newSkipEntry(id, r))
			e.skipResolution(id, outcome, r, now)
			continue
		}
		e.applyResolveLocked(st, outcome, now)
		st.mu.Unlock()

		res.Applied++
	}

	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues("resolve_many").Inc()
		e.metrics.OpDuration.WithLabelValues("resolve_many").Observe(time.Since(start).Seconds())
	}
	e.logger.Info().
		Int("resolved", res.Applied).
		Int("skipped", len(res.Skipped)).
		Msg("batch resolution applied")

	return res, nil
}

func (e *Engine) skipResolution(id int64, outcome market.Outcome, r SkipReason, now time.Time) {
	if e.metrics != nil {
		e.metrics.BatchSkipped.WithLabelValues("resolve_many", r.String()).Inc()
	}
	e.emit(event.TypeResolutionSkipped, id, now, event.ResolutionSkipped{
		Requested: outcome.String(),
		Reason:    r.String(),
	}, nil, nil)
}

func cancelCheck(m *market.Match) SkipReason {
	switch m.Status {
	case market.StatusResolved:
		return SkipAlreadyResolved
	case market.StatusCancelled:
		return SkipAlreadyCancelled
	default:
		return SkipNone
	}
}

func (e *Engine) applyCancelLocked(st *matchState, reason string, now time.Time) {
	m := st.m
	m.Status = market.StatusCancelled
	m.Result = market.OutcomeNone
	m.CancelReason = reason
	m.ResolvedAt = now

	if e.metrics != nil {
		e.metrics.OpenMatches.Dec()
	}

	e.logger.Info().
		Int64("match_id", m.ID).
		Str("reason", reason).
		Int64("total", m.Total).
		Msg("match cancelled")

	e.emit(event.TypeMatchCancelled, m.ID, now, event.MatchCancelled{
		Reason: reason,
		Total:  m.Total,
	}, m.Clone(), nil)
}

// Cancel voids a single match, enabling refunds. Rejected only when the
// match is already terminal.
func (e *Engine) Cancel(matchID int64, reason string, now time.Time) error {
	start := time.Now()

	st, ok := e.state(matchID)
	if !ok {
		e.reject("cancel", "not_found")
		return ErrMatchNotFound
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	switch cancelCheck(st.m) {
	case SkipAlreadyResolved:
		e.reject("cancel", "already_resolved")
		return fmt.Errorf("match %d: %w", matchID, ErrAlreadyResolved)
	case SkipAlreadyCancelled:
		e.reject("cancel", "already_cancelled")
		return fmt.Errorf("match %d: %w", matchID, ErrAlreadyCancelled)
	}

	e.applyCancelLocked(st, reason, now)
	e.observe("cancel", start)
	return nil
}

// CancelMany voids a batch with the same skip semantics as ResolveMany.
func (e *Engine) CancelMany(matchIDs []int64, reason string, now time.Time) (BatchResult, error) {
	start := time.Now()

	if len(matchIDs) == 0 {
		e.reject("cancel_many", "empty")
		return BatchResult{}, ErrEmptyBatch
	}

	var res BatchResult

	for _, id := range matchIDs {
		st, ok := e.state(id)
		if !ok {
			res.Skipped = append(res.Skipped, newSkipEntry(id, SkipNotFound))
			e.skipCancellation(id, SkipNotFound, now)
			continue
		}

		st.mu.Lock()
		if r := cancelCheck(st.m); r != SkipNone {
			st.mu.Unlock()
			res.Skipped = append(res.Skipped, newSkipEntry(id, r))
			e.skipCancellation(id, r, now)
			continue
		}
		e.applyCancelLocked(st, reason, now)
		st.mu.Unlock()

		res.Applied++
	}

	if e.metrics != nil {
		e.metrics.OpsApplied.WithLabelValues("cancel_many").Inc()
		e.metrics.OpDuration.WithLabelValues("cancel_many").Observe(time.Since(start).Seconds())
	}

	return res, nil
}

func (e *Engine) skipCancellation(id int64, r SkipReason, now time.Time) {
	if e.metrics != nil {
		e.metrics.BatchSkipped.WithLabelValues("cancel_many", r.String()).Inc()
	}
	e.emit(event.TypeCancellationSkipped, id, now, event.CancellationSkipped{
		Reason: r.String(),
	}, nil, nil)
}

// lockAll acquires the given match states in ascending match ID order.
// Consistent ordering prevents deadlock between overlapping batches.
func lockAll(states map[int64]*matchState) (unlock func()) {
	ids := make([]int64, 0, len(states))
	for id := range states {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		states[id].mu.Lock()
	}
	return func() {
		for i := len(ids) - 1; i >= 0; i-- {
			states[ids[i]].mu.Unlock()
		}
	}
}
