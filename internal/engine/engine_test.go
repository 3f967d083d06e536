package engine_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"PariPool/internal/engine"
	"PariPool/internal/event"
	"PariPool/internal/market"
	"PariPool/internal/pool"
	"PariPool/internal/testutil"

	"github.com/google/uuid"
)

var base = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// newMatch creates an open match starting one hour after base.
func newMatch(t *testing.T, eng *engine.Engine) int64 {
	t.Helper()
	id, err := eng.CreateMatch("Arsenal", "Chelsea", "premier-league", base.Add(time.Hour), base)
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	return id
}

func stake(t *testing.T, eng *engine.Engine, matchID int64, outcome market.Outcome, amount int64) uuid.UUID {
	t.Helper()
	p := uuid.New()
	if err := eng.PlaceStake(matchID, p, outcome, amount, base); err != nil {
		t.Fatalf("place stake: %v", err)
	}
	return p
}

// resolveAt is the earliest resolution instant with zero grace.
func resolveAt() time.Time { return base.Add(time.Hour) }

// ============================================================================
// Test: match lifecycle
// ============================================================================

func TestCreateMatch_Validation(t *testing.T) {
	eng, _ := testutil.NewTestEngine(t, testutil.DefaultConfig())

	if _, err := eng.CreateMatch("Arsenal", "Chelsea", "epl", base, base); !errors.Is(err, engine.ErrInvalidStartTime) {
		t.Errorf("start time not in future: got %v", err)
	}
	if _, err := eng.CreateMatch("", "Chelsea", "epl", base.Add(time.Hour), base); err == nil {
		t.Error("empty home team accepted")
	}
}

func TestCreateMatch_SequentialIDs(t *testing.T) {
	eng, _ := testutil.NewTestEngine(t, testutil.DefaultConfig())

	first := newMatch(t, eng)
	second := newMatch(t, eng)
	if second != first+1 {
		t.Errorf("ids %d, %d: want sequential", first, second)
	}
}

func TestCloseMatch_StopsStaking(t *testing.T) {
	eng, _ := testutil.NewTestEngine(t, testutil.DefaultConfig())
	id := newMatch(t, eng)

	if err := eng.CloseMatch(id, base); err != nil {
		t.Fatalf("close: %v", err)
	}
	err := eng.PlaceStake(id, uuid.New(), market.OutcomeHome, 100, base)
	if !errors.Is(err, pool.ErrMatchNotOpen) {
		t.Errorf("stake on closed match: got %v", err)
	}
	if err := eng.CloseMatch(id, base); !errors.Is(err, engine.ErrAlreadyClosed) {
		t.Errorf("double close: got %v", err)
	}
}

func TestPlaceStake_StopsAtStartTime(t *testing.T) {
	eng, _ := testutil.NewTestEngine(t, testutil.DefaultConfig())
	id := newMatch(t, eng)

	err := eng.PlaceStake(id, uuid.New(), market.OutcomeHome, 100, base.Add(time.Hour))
	if !errors.Is(err, pool.ErrStakingClosed) {
		t.Errorf("stake at start time: got %v", err)
	}
}

func TestPlaceStake_UnknownMatch(t *testing.T) {
	eng, _ := testutil.NewTestEngine(t, testutil.DefaultConfig())

	err := eng.PlaceStake(999, uuid.New(), market.OutcomeHome, 100, base)
	if !errors.Is(err, engine.ErrMatchNotFound) {
		t.Errorf("got %v, want ErrMatchNotFound", err)
	}
}

func TestPlaceStake_PersistOrderMatchesPoolOrder(t *testing.T) {
	eng, _, capture := testutil.NewCapturingEngine(t, testutil.DefaultConfig())
	id := newMatch(t, eng)
	capture.Drain()

	// Concurrent stakes on one match: the emitted snapshots must reach
	// the persist channel in pool order, or a last-wins writer would
	// durably keep a stale total.
	const workers = 16
	const perWorker = 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if err := eng.PlaceStake(id, uuid.New(), market.OutcomeHome, 10, base); err != nil {
					t.Errorf("place stake: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	var prevSeq, prevTotal int64
	for _, out := range capture.Drain() {
		if out.Envelope.Type != event.TypeStakePlaced {
			continue
		}
		if out.Envelope.Sequence <= prevSeq {
			t.Fatalf("sequence %d not after %d in persist order", out.Envelope.Sequence, prevSeq)
		}
		if out.Match.Total <= prevTotal {
			t.Fatalf("snapshot total %d not after %d in persist order", out.Match.Total, prevTotal)
		}
		prevSeq = out.Envelope.Sequence
		prevTotal = out.Match.Total
	}
	if prevTotal != workers*perWorker*10 {
		t.Errorf("final snapshot total = %d, want %d", prevTotal, workers*perWorker*10)
	}
}

// ============================================================================
// Test: resolution
// ============================================================================

func TestResolve_MixedPool(t *testing.T) {
	eng, sender := testutil.NewTestEngine(t, testutil.DefaultConfig())
	id := newMatch(t, eng)

	small := stake(t, eng, id, market.OutcomeHome, 100)
	big := stake(t, eng, id, market.OutcomeHome, 300)
	loser := stake(t, eng, id, market.OutcomeAway, 600)

	if err := eng.Resolve(id, market.OutcomeHome, resolveAt()); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	m, err := eng.GetMatch(id)
	if err != nil {
		t.Fatalf("get match: %v", err)
	}
	if m.Status != market.StatusResolved || m.Result != market.OutcomeHome {
		t.Errorf("state = %v/%v, want resolved/home", m.Status, m.Result)
	}
	if m.FeeCharged != 10 {
		t.Errorf("fee = %d, want 10", m.FeeCharged)
	}
	if m.Dust != 1 {
		t.Errorf("dust = %d, want 1", m.Dust)
	}

	got, err := eng.Claim(id, small, resolveAt())
	if err != nil || got != 247 {
		t.Errorf("small winner: %d, %v, want 247", got, err)
	}
	got, err = eng.Claim(id, big, resolveAt())
	if err != nil || got != 742 {
		t.Errorf("big winner: %d, %v, want 742", got, err)
	}

	if _, err := eng.Claim(id, loser, resolveAt()); !errors.Is(err, engine.ErrNotAWinner) {
		t.Errorf("loser claim: got %v", err)
	}

	if total := sender.Total(); total != 989 {
		t.Errorf("transfers total = %d, want 989", total)
	}

	// fee + dust + paid = total with nothing left unclaimed
	if err := eng.AuditMatch(id); err != nil {
		t.Errorf("audit: %v", err)
	}
}

func TestResolve_NoWinnersRefundsWithoutFee(t *testing.T) {
	eng, _ := testutil.NewTestEngine(t, testutil.DefaultConfig())
	id := newMatch(t, eng)

	a := stake(t, eng, id, market.OutcomeHome, 400)
	b := stake(t, eng, id, market.OutcomeAway, 600)

	if err := eng.Resolve(id, market.OutcomeDraw, resolveAt()); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	m, _ := eng.GetMatch(id)
	if m.FeeCharged != 0 || m.Dust != 0 {
		t.Errorf("fee=%d dust=%d, want 0/0 for empty winner pool", m.FeeCharged, m.Dust)
	}

	if got, err := eng.Claim(id, a, resolveAt()); err != nil || got != 400 {
		t.Errorf("refund a: %d, %v", got, err)
	}
	if got, err := eng.Claim(id, b, resolveAt()); err != nil || got != 600 {
		t.Errorf("refund b: %d, %v", got, err)
	}
	if err := eng.AuditMatch(id); err != nil {
		t.Errorf("audit: %v", err)
	}
}

func TestResolve_AllWinnersRefundsWithoutFee(t *testing.T) {
	eng, _ := testutil.NewTestEngine(t, testutil.DefaultConfig())
	id := newMatch(t, eng)

	a := stake(t, eng, id, market.OutcomeHome, 400)
	b := stake(t, eng, id, market.OutcomeHome, 600)

	if err := eng.Resolve(id, market.OutcomeHome, resolveAt()); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	m, _ := eng.GetMatch(id)
	if m.FeeCharged != 0 {
		t.Errorf("fee = %d, want 0 when everyone won", m.FeeCharged)
	}
	if got, _ := eng.Claim(id, a, resolveAt()); got != 400 {
		t.Errorf("refund a = %d, want 400", got)
	}
	if got, _ := eng.Claim(id, b, resolveAt()); got != 600 {
		t.Errorf("refund b = %d, want 600", got)
	}
}

func TestResolve_GracePeriod(t *testing.T) {
	cfg := testutil.DefaultConfig()
	cfg.GracePeriod = 2 * time.Hour
	eng, _ := testutil.NewTestEngine(t, cfg)
	id := newMatch(t, eng)

	if err := eng.Resolve(id, market.OutcomeHome, base.Add(time.Hour)); !errors.Is(err, engine.ErrTooEarly) {
		t.Errorf("inside grace: got %v", err)
	}
	if err := eng.Resolve(id, market.OutcomeHome, base.Add(3*time.Hour)); err != nil {
		t.Errorf("after grace: %v", err)
	}
}

func TestResolve_StateConflicts(t *testing.T) {
	eng, _ := testutil.NewTestEngine(t, testutil.DefaultConfig())
	id := newMatch(t, eng)

	if err := eng.Resolve(id, market.OutcomeNone, resolveAt()); !errors.Is(err, engine.ErrInvalidOutcome) {
		t.Errorf("invalid outcome: got %v", err)
	}
	if err := eng.Resolve(id, market.OutcomeHome, resolveAt()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := eng.Resolve(id, market.OutcomeHome, resolveAt()); !errors.Is(err, engine.ErrAlreadyResolved) {
		t.Errorf("re-resolve: got %v", err)
	}
	if err := eng.Cancel(id, "weather", resolveAt()); !errors.Is(err, engine.ErrAlreadyResolved) {
		t.Errorf("cancel resolved: got %v", err)
	}
}

// ============================================================================
// Test: cancellation and refunds
// ============================================================================

func TestCancel_EnablesFullRefunds(t *testing.T) {
	eng, sender := testutil.NewTestEngine(t, testutil.DefaultConfig())
	id := newMatch(t, eng)

	a := stake(t, eng, id, market.OutcomeHome, 150)
	b := stake(t, eng, id, market.OutcomeAway, 850)

	if err := eng.Cancel(id, "venue unavailable", base); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if got, err := eng.Claim(id, a, base); err != nil || got != 150 {
		t.Errorf("refund a: %d, %v", got, err)
	}
	if got, err := eng.Claim(id, b, base); err != nil || got != 850 {
		t.Errorf("refund b: %d, %v", got, err)
	}
	if sender.Total() != 1000 {
		t.Errorf("refunds total = %d, want full pool", sender.Total())
	}

	if err := eng.Cancel(id, "again", base); !errors.Is(err, engine.ErrAlreadyCancelled) {
		t.Errorf("double cancel: got %v", err)
	}
}

// ============================================================================
// Test: batch resolution skip semantics
// ============================================================================

func TestResolveMany_SkipReasons(t *testing.T) {
	eng, _ := testutil.NewTestEngine(t, testutil.DefaultConfig())

	resolved := newMatch(t, eng)
	cancelled := newMatch(t, eng)
	fresh := newMatch(t, eng)

	if err := eng.Resolve(resolved, market.OutcomeHome, resolveAt()); err != nil {
		t.Fatalf("setup resolve: %v", err)
	}
	if err := eng.Cancel(cancelled, "rain", base); err != nil {
		t.Fatalf("setup cancel: %v", err)
	}

	ids := []int64{resolved, resolved, cancelled, 999, fresh, fresh}
	outcomes := []market.Outcome{
		market.OutcomeHome, // same stored result
		market.OutcomeAway, // different stored result
		market.OutcomeHome,
		market.OutcomeHome,
		market.OutcomeDraw, // applies
		market.OutcomeNone, // now resolved: same-result conflict beats input validation
	}

	res, err := eng.ResolveMany(ids, outcomes, resolveAt())
	if err != nil {
		t.Fatalf("resolve many: %v", err)
	}
	if res.Applied != 1 {
		t.Errorf("applied = %d, want 1", res.Applied)
	}

	wantCodes := []string{
		"already_resolved_same_result",
		"already_resolved_different_result",
		"already_cancelled",
		"not_found",
		"already_resolved_different_result",
	}
	if len(res.Skipped) != len(wantCodes) {
		t.Fatalf("skipped = %d entries, want %d: %+v", len(res.Skipped), len(wantCodes), res.Skipped)
	}
	for i, want := range wantCodes {
		if res.Skipped[i].Code != want {
			t.Errorf("skip[%d] = %q, want %q", i, res.Skipped[i].Code, want)
		}
	}

	// True idempotency: replaying the full batch applies nothing new.
	res, err = eng.ResolveMany(ids, outcomes, resolveAt())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Applied != 0 {
		t.Errorf("replay applied = %d, want 0", res.Applied)
	}
}

func TestResolveMany_ShapeErrors(t *testing.T) {
	eng, _ := testutil.NewTestEngine(t, testutil.DefaultConfig())

	if _, err := eng.ResolveMany([]int64{1, 2}, []market.Outcome{market.OutcomeHome}, base); !errors.Is(err, engine.ErrBatchMismatch) {
		t.Errorf("length mismatch: got %v", err)
	}
	if _, err := eng.ResolveMany(nil, nil, base); !errors.Is(err, engine.ErrEmptyBatch) {
		t.Errorf("empty batch: got %v", err)
	}
}

func TestCancelMany_SkipReasons(t *testing.T) {
	eng, _ := testutil.NewTestEngine(t, testutil.DefaultConfig())

	resolved := newMatch(t, eng)
	fresh := newMatch(t, eng)
	if err := eng.Resolve(resolved, market.OutcomeHome, resolveAt()); err != nil {
		t.Fatalf("setup: %v", err)
	}

	res, err := eng.CancelMany([]int64{resolved, 999, fresh}, "postponed", base)
	if err != nil {
		t.Fatalf("cancel many: %v", err)
	}
	if res.Applied != 1 {
		t.Errorf("applied = %d, want 1", res.Applied)
	}
	if res.Skipped[0].Code != "already_resolved" || res.Skipped[1].Code != "not_found" {
		t.Errorf("skip codes = %+v", res.Skipped)
	}
}

// ============================================================================
// Test: claims
// ============================================================================

func TestClaim_Preconditions(t *testing.T) {
	eng, _ := testutil.NewTestEngine(t, testutil.DefaultConfig())
	id := newMatch(t, eng)
	p := stake(t, eng, id, market.OutcomeHome, 100)
	stake(t, eng, id, market.OutcomeAway, 100)

	if _, err := eng.Claim(id, p, base); !errors.Is(err, engine.ErrNotResolved) {
		t.Errorf("claim before settlement: got %v", err)
	}
	if _, err := eng.Claim(999, p, base); !errors.Is(err, engine.ErrMatchNotFound) {
		t.Errorf("claim unknown match: got %v", err)
	}

	if err := eng.Resolve(id, market.OutcomeHome, resolveAt()); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := eng.Claim(id, uuid.New(), resolveAt()); !errors.Is(err, engine.ErrNoStake) {
		t.Errorf("claim without stake: got %v", err)
	}

	if _, err := eng.Claim(id, p, resolveAt()); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := eng.Claim(id, p, resolveAt()); !errors.Is(err, engine.ErrAlreadyClaimed) {
		t.Errorf("double claim: got %v", err)
	}
}

func TestClaim_PayoutFailureRollsBack(t *testing.T) {
	eng, sender := testutil.NewTestEngine(t, testutil.DefaultConfig())
	id := newMatch(t, eng)
	p := stake(t, eng, id, market.OutcomeHome, 100)
	stake(t, eng, id, market.OutcomeAway, 900)

	if err := eng.Resolve(id, market.OutcomeHome, resolveAt()); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	sender.FailNext(testutil.ErrTransferRefused)
	if _, err := eng.Claim(id, p, resolveAt()); !errors.Is(err, engine.ErrPayoutFailed) {
		t.Fatalf("got %v, want ErrPayoutFailed", err)
	}

	s, err := eng.GetStake(id, p)
	if err != nil {
		t.Fatalf("get stake: %v", err)
	}
	if s.Claimed {
		t.Error("failed transfer must not mark the stake claimed")
	}

	// Retry succeeds once the transfer side recovers.
	sender.FailNext(nil)
	if got, err := eng.Claim(id, p, resolveAt()); err != nil || got != 990 {
		t.Errorf("retry: %d, %v, want 990", got, err)
	}
	if a := eng.AggregateTotals(); a.TotalPaidOut != 990 {
		t.Errorf("paid-out aggregate = %d, want 990", a.TotalPaidOut)
	}
}

func TestClaim_ConcurrentDoubleClaim(t *testing.T) {
	eng, sender := testutil.NewTestEngine(t, testutil.DefaultConfig())
	id := newMatch(t, eng)
	p := stake(t, eng, id, market.OutcomeHome, 100)
	stake(t, eng, id, market.OutcomeAway, 900)

	if err := eng.Resolve(id, market.OutcomeHome, resolveAt()); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.Claim(id, p, resolveAt())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded int
	for err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, engine.ErrAlreadyClaimed) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d claims succeeded, want exactly 1", succeeded)
	}
	if len(sender.Sends()) != 1 {
		t.Errorf("%d transfers, want 1", len(sender.Sends()))
	}
}

// ============================================================================
// Test: batch claims
// ============================================================================

func TestClaimBatch_AggregatesSingleTransfer(t *testing.T) {
	eng, sender := testutil.NewTestEngine(t, testutil.DefaultConfig())
	p := uuid.New()

	// Three settled matches with one entitlement each, one unresolved,
	// one where p lost, plus a duplicate and an unknown id.
	won := newMatch(t, eng)
	if err := eng.PlaceStake(won, p, market.OutcomeHome, 100, base); err != nil {
		t.Fatal(err)
	}
	stake(t, eng, won, market.OutcomeAway, 900)

	refunded := newMatch(t, eng)
	if err := eng.PlaceStake(refunded, p, market.OutcomeDraw, 200, base); err != nil {
		t.Fatal(err)
	}

	lost := newMatch(t, eng)
	if err := eng.PlaceStake(lost, p, market.OutcomeAway, 300, base); err != nil {
		t.Fatal(err)
	}
	stake(t, eng, lost, market.OutcomeHome, 300)

	open := newMatch(t, eng)
	if err := eng.PlaceStake(open, p, market.OutcomeHome, 50, base); err != nil {
		t.Fatal(err)
	}

	if err := eng.Resolve(won, market.OutcomeHome, resolveAt()); err != nil {
		t.Fatal(err)
	}
	if err := eng.Cancel(refunded, "abandoned", base); err != nil {
		t.Fatal(err)
	}
	if err := eng.Resolve(lost, market.OutcomeHome, resolveAt()); err != nil {
		t.Fatal(err)
	}

	total, res, err := eng.ClaimBatch(p, []int64{won, refunded, lost, open, won, 999}, resolveAt())
	if err != nil {
		t.Fatalf("claim batch: %v", err)
	}

	// won pays 990, refunded pays 200 back.
	if total != 1190 {
		t.Errorf("total = %d, want 1190", total)
	}
	if res.Applied != 2 {
		t.Errorf("applied = %d, want 2", res.Applied)
	}

	sends := sender.Sends()
	if len(sends) != 1 || sends[0].Amount != 1190 {
		t.Errorf("want one aggregate transfer of 1190, got %+v", sends)
	}

	codes := map[string]bool{}
	for _, s := range res.Skipped {
		codes[s.Code] = true
	}
	for _, want := range []string{"not_a_winner", "not_resolved", "duplicate_entry", "not_found"} {
		if !codes[want] {
			t.Errorf("missing skip code %q in %+v", want, res.Skipped)
		}
	}

	// Everything claimable was claimed; the batch now has nothing to pay.
	if _, _, err := eng.ClaimBatch(p, []int64{won, refunded}, resolveAt()); !errors.Is(err, engine.ErrNothingToClaim) {
		t.Errorf("replay: got %v, want ErrNothingToClaim", err)
	}
}

func TestClaimBatch_Limits(t *testing.T) {
	eng, _ := testutil.NewTestEngine(t, testutil.DefaultConfig())
	p := uuid.New()

	if _, _, err := eng.ClaimBatch(p, nil, base); !errors.Is(err, engine.ErrEmptyBatch) {
		t.Errorf("empty: got %v", err)
	}

	ids := make([]int64, engine.MaxClaimBatch+1)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	if _, _, err := eng.ClaimBatch(p, ids, base); !errors.Is(err, engine.ErrBatchTooLarge) {
		t.Errorf("oversized: got %v", err)
	}
}

func TestClaimBatch_TransferFailureLeavesAllUnclaimed(t *testing.T) {
	eng, sender := testutil.NewTestEngine(t, testutil.DefaultConfig())
	p := uuid.New()

	first := newMatch(t, eng)
	if err := eng.PlaceStake(first, p, market.OutcomeHome, 100, base); err != nil {
		t.Fatal(err)
	}
	second := newMatch(t, eng)
	if err := eng.PlaceStake(second, p, market.OutcomeHome, 200, base); err != nil {
		t.Fatal(err)
	}
	if err := eng.Cancel(first, "void", base); err != nil {
		t.Fatal(err)
	}
	if err := eng.Cancel(second, "void", base); err != nil {
		t.Fatal(err)
	}

	sender.FailNext(testutil.ErrTransferRefused)
	if _, _, err := eng.ClaimBatch(p, []int64{first, second}, base); !errors.Is(err, engine.ErrPayoutFailed) {
		t.Fatalf("got %v, want ErrPayoutFailed", err)
	}

	for _, id := range []int64{first, second} {
		s, err := eng.GetStake(id, p)
		if err != nil {
			t.Fatal(err)
		}
		if s.Claimed {
			t.Errorf("match %d stake marked claimed after failed batch transfer", id)
		}
	}

	sender.FailNext(nil)
	total, _, err := eng.ClaimBatch(p, []int64{first, second}, base)
	if err != nil || total != 300 {
		t.Errorf("retry: %d, %v, want 300", total, err)
	}
}

// ============================================================================
// Test: claim quotes
// ============================================================================

func TestGetClaimable_MatchesPayingPath(t *testing.T) {
	eng, _ := testutil.NewTestEngine(t, testutil.DefaultConfig())
	id := newMatch(t, eng)
	p := stake(t, eng, id, market.OutcomeHome, 100)
	stake(t, eng, id, market.OutcomeHome, 300)
	stake(t, eng, id, market.OutcomeAway, 600)

	q, err := eng.GetClaimable(id, p)
	if err != nil {
		t.Fatal(err)
	}
	if q.Claimable || q.Reason != "not_resolved" {
		t.Errorf("quote before settlement: %+v", q)
	}

	if err := eng.Resolve(id, market.OutcomeHome, resolveAt()); err != nil {
		t.Fatal(err)
	}

	q, err = eng.GetClaimable(id, p)
	if err != nil {
		t.Fatal(err)
	}
	if !q.Claimable || q.Amount != 247 || q.Refund {
		t.Errorf("quote = %+v, want claimable 247 winnings", q)
	}

	paid, err := eng.Claim(id, p, resolveAt())
	if err != nil {
		t.Fatal(err)
	}
	if paid != q.Amount {
		t.Errorf("quoted %d but paid %d", q.Amount, paid)
	}

	q, _ = eng.GetClaimable(id, p)
	if q.Claimable || q.Reason != "already_claimed" {
		t.Errorf("quote after claim: %+v", q)
	}
}

func TestGetOdds(t *testing.T) {
	eng, _ := testutil.NewTestEngine(t, testutil.DefaultConfig())
	id := newMatch(t, eng)
	stake(t, eng, id, market.OutcomeHome, 250)
	stake(t, eng, id, market.OutcomeAway, 750)

	odds, err := eng.GetOdds(id)
	if err != nil {
		t.Fatal(err)
	}
	if odds[0] != 4.0 {
		t.Errorf("home odds = %v, want 4.0", odds[0])
	}
	if odds[1] != 0 {
		t.Errorf("draw odds = %v, want 0 for an empty pool", odds[1])
	}
	if want := 1000.0 / 750.0; odds[2] != want {
		t.Errorf("away odds = %v, want %v", odds[2], want)
	}

	if _, err := eng.GetOdds(999); err != engine.ErrMatchNotFound {
		t.Errorf("expected ErrMatchNotFound, got %v", err)
	}
}

// ============================================================================
// Test: policy configuration
// ============================================================================

func TestSetFeeRate_ReturnsPreviousAndRejectsAboveCeiling(t *testing.T) {
	eng, _ := testutil.NewTestEngine(t, testutil.DefaultConfig())

	prev, err := eng.SetFeeRate(250)
	if err != nil {
		t.Fatalf("set fee: %v", err)
	}
	if prev != 100 {
		t.Errorf("previous = %d, want 100", prev)
	}

	if _, err := eng.SetFeeRate(501); err == nil {
		t.Error("rate above ceiling accepted")
	}
	if got := eng.FeeRate(); got != 250 {
		t.Errorf("rate after rejected update = %d, want unchanged 250", got)
	}
}

func TestSetStakeLimits_ReturnsPreviousAndRejectsInvalid(t *testing.T) {
	eng, _ := testutil.NewTestEngine(t, testutil.DefaultConfig())

	prev, err := eng.SetStakeLimits(pool.Limits{MinStake: 50, MaxStake: 500})
	if err != nil {
		t.Fatalf("set limits: %v", err)
	}
	if prev.MinStake != 10 || prev.MaxStake != 1_000_000 {
		t.Errorf("previous = %+v", prev)
	}

	if _, err := eng.SetStakeLimits(pool.Limits{MinStake: 500, MaxStake: 50}); err == nil {
		t.Error("inverted limits accepted")
	}
	if got := eng.StakeLimits(); got.MinStake != 50 || got.MaxStake != 500 {
		t.Errorf("limits after rejected update = %+v", got)
	}
}

func TestFeeRateChange_DoesNotAffectSettledMatches(t *testing.T) {
	eng, _ := testutil.NewTestEngine(t, testutil.DefaultConfig())
	id := newMatch(t, eng)
	p := stake(t, eng, id, market.OutcomeHome, 100)
	stake(t, eng, id, market.OutcomeAway, 900)

	if err := eng.Resolve(id, market.OutcomeHome, resolveAt()); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.SetFeeRate(500); err != nil {
		t.Fatal(err)
	}

	// Fee stays at the 100bps fixed at resolution: payout 1000-10=990.
	if got, err := eng.Claim(id, p, resolveAt()); err != nil || got != 990 {
		t.Errorf("claim after rate change: %d, %v, want 990", got, err)
	}
}

// ============================================================================
// Test: notifications
// ============================================================================

func TestNotifications_SequenceAndTypes(t *testing.T) {
	eng, _, capture := testutil.NewCapturingEngine(t, testutil.DefaultConfig())
	id := newMatch(t, eng)

	p := uuid.New()
	if err := eng.PlaceStake(id, p, market.OutcomeHome, 100, base); err != nil {
		t.Fatal(err)
	}
	if err := eng.PlaceStake(id, uuid.New(), market.OutcomeAway, 900, base); err != nil {
		t.Fatal(err)
	}
	if err := eng.Resolve(id, market.OutcomeHome, resolveAt()); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Claim(id, p, resolveAt()); err != nil {
		t.Fatal(err)
	}

	envs := capture.Envelopes()
	wantTypes := []event.Type{
		event.TypeMatchCreated,
		event.TypeStakePlaced,
		event.TypeStakePlaced,
		event.TypeMatchResolved,
		event.TypeClaimPaid,
	}
	if len(envs) != len(wantTypes) {
		t.Fatalf("%d notifications, want %d", len(envs), len(wantTypes))
	}
	for i, env := range envs {
		if env.Type != wantTypes[i] {
			t.Errorf("notification[%d] = %v, want %v", i, env.Type, wantTypes[i])
		}
		if env.Sequence != int64(i+1) {
			t.Errorf("notification[%d] sequence = %d, want %d", i, env.Sequence, i+1)
		}
	}
}

func TestNotifications_BatchSkipsAreReported(t *testing.T) {
	eng, _, capture := testutil.NewCapturingEngine(t, testutil.DefaultConfig())
	id := newMatch(t, eng)
	if err := eng.Resolve(id, market.OutcomeHome, resolveAt()); err != nil {
		t.Fatal(err)
	}
	capture.Drain()

	if _, err := eng.ResolveMany([]int64{id}, []market.Outcome{market.OutcomeAway}, resolveAt()); err != nil {
		t.Fatal(err)
	}

	envs := capture.Envelopes()
	if len(envs) != 1 || envs[0].Type != event.TypeResolutionSkipped {
		t.Fatalf("want one ResolutionSkipped, got %+v", envs)
	}
	payload, ok := envs[0].Payload.(event.ResolutionSkipped)
	if !ok {
		t.Fatalf("payload type %T", envs[0].Payload)
	}
	if payload.Reason != "already_resolved_different_result" {
		t.Errorf("reason = %q", payload.Reason)
	}
}

// ============================================================================
// Test: aggregates and restore
// ============================================================================

func TestAggregateTotals(t *testing.T) {
	eng, _ := testutil.NewTestEngine(t, testutil.DefaultConfig())
	id := newMatch(t, eng)
	p := stake(t, eng, id, market.OutcomeHome, 100)
	stake(t, eng, id, market.OutcomeHome, 300)
	stake(t, eng, id, market.OutcomeAway, 600)

	if err := eng.Resolve(id, market.OutcomeHome, resolveAt()); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Claim(id, p, resolveAt()); err != nil {
		t.Fatal(err)
	}

	a := eng.AggregateTotals()
	if a.FeesCollected != 10 {
		t.Errorf("fees = %d, want 10", a.FeesCollected)
	}
	if a.DustRetained != 1 {
		t.Errorf("dust = %d, want 1", a.DustRetained)
	}
	if a.TotalPaidOut != 247 {
		t.Errorf("paid = %d, want 247", a.TotalPaidOut)
	}
	if a.Matches != 1 {
		t.Errorf("matches = %d, want 1", a.Matches)
	}
}

func TestRestoreMatch_RebuildsStateAndAggregates(t *testing.T) {
	eng, _ := testutil.NewTestEngine(t, testutil.DefaultConfig())

	winner := uuid.New()
	loser := uuid.New()
	m := &market.Match{
		ID:         7,
		HomeTeam:   "Arsenal",
		AwayTeam:   "Chelsea",
		Category:   "premier-league",
		StartTime:  base.Add(time.Hour),
		Status:     market.StatusResolved,
		Result:     market.OutcomeHome,
		FeeCharged: 10,
		Dust:       0,
		CreatedAt:  base,
		ResolvedAt: resolveAt(),
	}
	m.AddStake(market.OutcomeHome, 400)
	m.AddStake(market.OutcomeAway, 600)

	stakes := []pool.Stake{
		{MatchID: 7, Participant: winner, Outcome: market.OutcomeHome, Amount: 400, Claimed: true, PlacedAt: base},
		{MatchID: 7, Participant: loser, Outcome: market.OutcomeAway, Amount: 600, PlacedAt: base},
	}
	if err := eng.RestoreMatch(m, stakes); err != nil {
		t.Fatalf("restore: %v", err)
	}
	eng.RestoreSequence(42)
	eng.RecomputeAggregates()

	a := eng.AggregateTotals()
	if a.FeesCollected != 10 {
		t.Errorf("fees = %d, want 10", a.FeesCollected)
	}
	if a.TotalPaidOut != 990 {
		t.Errorf("paid = %d, want 990 (claimed winner)", a.TotalPaidOut)
	}
	if a.Sequence != 42 {
		t.Errorf("sequence = %d, want 42", a.Sequence)
	}

	// A new match continues after the restored id.
	next := newMatch(t, eng)
	if next != 8 {
		t.Errorf("next id = %d, want 8", next)
	}

	// The winner's claim is already consumed; a retry is rejected.
	if _, err := eng.Claim(7, winner, resolveAt()); !errors.Is(err, engine.ErrAlreadyClaimed) {
		t.Errorf("restored claim: got %v", err)
	}
	if err := eng.AuditMatch(7); err != nil {
		t.Errorf("audit restored match: %v", err)
	}
}

// ============================================================================
// Test: conservation across a busy match
// ============================================================================

func TestConservation_MixedClaims(t *testing.T) {
	eng, sender := testutil.NewTestEngine(t, testutil.DefaultConfig())
	id := newMatch(t, eng)

	winners := make([]uuid.UUID, 0, 7)
	for i := 0; i < 7; i++ {
		winners = append(winners, stake(t, eng, id, market.OutcomeDraw, int64(37+13*i)))
	}
	for i := 0; i < 5; i++ {
		stake(t, eng, id, market.OutcomeAway, int64(101+7*i))
	}

	if err := eng.Resolve(id, market.OutcomeDraw, resolveAt()); err != nil {
		t.Fatal(err)
	}

	// Claim only some winners, then audit: unclaimed entitlements must
	// still balance the books.
	for _, w := range winners[:4] {
		if _, err := eng.Claim(id, w, resolveAt()); err != nil {
			t.Fatalf("claim: %v", err)
		}
	}
	if err := eng.AuditMatch(id); err != nil {
		t.Errorf("audit mid-claims: %v", err)
	}

	for _, w := range winners[4:] {
		if _, err := eng.Claim(id, w, resolveAt()); err != nil {
			t.Fatalf("claim: %v", err)
		}
	}

	m, _ := eng.GetMatch(id)
	if paid := sender.Total(); m.FeeCharged+m.Dust+paid != m.Total {
		t.Errorf("fee %d + dust %d + paid %d != total %d", m.FeeCharged, m.Dust, paid, m.Total)
	}
	if err := eng.AuditMatch(id); err != nil {
		t.Errorf("audit after all claims: %v", err)
	}
}
