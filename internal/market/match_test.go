package market_test

import (
	"strings"
	"testing"
	"time"

	"PariPool/internal/market"
)

// ============================================================================
// Test: Outcome
// ============================================================================

func TestParseOutcome(t *testing.T) {
	cases := map[string]market.Outcome{
		"home": market.OutcomeHome,
		"draw": market.OutcomeDraw,
		"away": market.OutcomeAway,
	}
	for s, want := range cases {
		got, err := market.ParseOutcome(s)
		if err != nil {
			t.Errorf("ParseOutcome(%q): %v", s, err)
		}
		if got != want {
			t.Errorf("ParseOutcome(%q) = %v, want %v", s, got, want)
		}
	}

	if _, err := market.ParseOutcome("none"); err == nil {
		t.Error("ParseOutcome(none) should fail")
	}
	if _, err := market.ParseOutcome("HOME"); err == nil {
		t.Error("ParseOutcome is case-sensitive, HOME should fail")
	}
}

func TestOutcome_Valid(t *testing.T) {
	if market.OutcomeNone.Valid() {
		t.Error("OutcomeNone should not be stakeable")
	}
	for _, o := range []market.Outcome{market.OutcomeHome, market.OutcomeDraw, market.OutcomeAway} {
		if !o.Valid() {
			t.Errorf("%v should be stakeable", o)
		}
	}
}

// ============================================================================
// Test: Status lifecycle
// ============================================================================

func TestStatus_Transitions(t *testing.T) {
	cases := []struct {
		from, to market.Status
		ok       bool
	}{
		{market.StatusOpen, market.StatusClosed, true},
		{market.StatusOpen, market.StatusResolved, true},
		{market.StatusOpen, market.StatusCancelled, true},
		{market.StatusClosed, market.StatusResolved, true},
		{market.StatusClosed, market.StatusCancelled, true},
		{market.StatusClosed, market.StatusOpen, false},
		{market.StatusResolved, market.StatusCancelled, false},
		{market.StatusResolved, market.StatusOpen, false},
		{market.StatusCancelled, market.StatusResolved, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.ok {
			t.Errorf("%v -> %v = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	if market.StatusOpen.Terminal() || market.StatusClosed.Terminal() {
		t.Error("open and closed are not terminal")
	}
	if !market.StatusResolved.Terminal() || !market.StatusCancelled.Terminal() {
		t.Error("resolved and cancelled are terminal")
	}
}

// ============================================================================
// Test: Match bookkeeping
// ============================================================================

func TestMatch_AddStakeConservation(t *testing.T) {
	m := &market.Match{ID: 1, Status: market.StatusOpen}

	m.AddStake(market.OutcomeHome, 100)
	m.AddStake(market.OutcomeAway, 250)
	m.AddStake(market.OutcomeHome, 50)

	if m.Total != 400 {
		t.Errorf("total = %d, want 400", m.Total)
	}
	if got := m.PoolFor(market.OutcomeHome); got != 150 {
		t.Errorf("home pool = %d, want 150", got)
	}
	if got := m.CountFor(market.OutcomeHome); got != 2 {
		t.Errorf("home count = %d, want 2", got)
	}
	if err := m.CheckConservation(); err != nil {
		t.Errorf("conservation: %v", err)
	}
}

func TestMatch_Odds(t *testing.T) {
	m := &market.Match{ID: 1}
	m.AddStake(market.OutcomeHome, 250)
	m.AddStake(market.OutcomeAway, 750)

	odds := m.Odds()
	if odds[0] != 4.0 {
		t.Errorf("home odds = %v, want 4.0", odds[0])
	}
	if odds[1] != 0 {
		t.Errorf("draw odds = %v, want 0 for empty pool", odds[1])
	}
	if odds[2] != 1000.0/750.0 {
		t.Errorf("away odds = %v", odds[2])
	}
}

func TestValidateMetadata(t *testing.T) {
	if err := market.ValidateMetadata("Arsenal", "Chelsea", "premier-league"); err != nil {
		t.Errorf("valid metadata rejected: %v", err)
	}
	if err := market.ValidateMetadata("", "Chelsea", "premier-league"); err == nil {
		t.Error("empty home team should be rejected")
	}
	long := strings.Repeat("x", market.MaxMetadataLen+1)
	if err := market.ValidateMetadata("Arsenal", long, "premier-league"); err == nil {
		t.Error("oversized away team should be rejected")
	}
}

func TestMatch_CloneIsIndependent(t *testing.T) {
	m := &market.Match{ID: 7, Status: market.StatusOpen, StartTime: time.Now()}
	m.AddStake(market.OutcomeDraw, 100)

	c := m.Clone()
	c.AddStake(market.OutcomeDraw, 100)

	if m.Total != 100 {
		t.Errorf("clone mutation leaked into original: total = %d", m.Total)
	}
}
