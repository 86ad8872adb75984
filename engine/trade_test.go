package engine

import "testing"

func TestExecuteTradeOpensPositionAndChargesFee(t *testing.T) {
	e := newTestEngine(t)

	lpIdx, err := e.AddLP([32]byte{1}, [32]byte{2}, u(1_000_000))
	if err != nil {
		t.Fatalf("AddLP: %v", err)
	}
	userIdx, err := e.AddUser(u(2_000))
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	size := i(10_000)
	matcher := MatcherOut{
		LPFillSize:   i(-10_000),
		UserFillSize: i(10_000),
		ExecPrice:    1_000_000,
	}

	if err := e.ExecuteTrade(lpIdx, userIdx, 1_000_000, e.CurrentSlot, size, 1_000_000, matcher); err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	assertInvariants(t, e)

	lp, _ := e.Account(lpIdx)
	user, _ := e.Account(userIdx)

	if user.PositionSize.Cmp(i(10_000)) != 0 {
		t.Fatalf("user position = %v, want 10000", user.PositionSize)
	}
	if lp.PositionSize.Cmp(i(-10_000)) != 0 {
		t.Fatalf("lp position = %v, want -10000", lp.PositionSize)
	}
	// notional = 10000 * 1_000_000 / 1e6 = 10000; fee = 10000*10bps/10000 = 10.
	if user.Capital.Cmp(u(1_990)) != 0 {
		t.Fatalf("user capital = %v, want 1990 after 10-unit fee", user.Capital)
	}
	if e.I.Cmp(u(10)) != 0 {
		t.Fatalf("insurance = %v, want 10", e.I)
	}
}

func TestExecuteTradeRejectsBelowInitialMargin(t *testing.T) {
	e := newTestEngine(t)
	lpIdx, _ := e.AddLP([32]byte{}, [32]byte{}, u(1_000_000))
	userIdx, _ := e.AddUser(u(50)) // far too little capital for the fill below

	size := i(10_000)
	matcher := MatcherOut{LPFillSize: i(-10_000), UserFillSize: i(10_000), ExecPrice: 1_000_000}

	err := e.ExecuteTrade(lpIdx, userIdx, 1_000_000, e.CurrentSlot, size, 1_000_000, matcher)
	if err == nil {
		t.Fatalf("expected margin violation")
	}
}

// TestExecuteTradeAddingToPositionRealizesZeroSumTradePnl guards against
// re-basing a pre-existing position's entry at exec_price for free: the
// untraded portion must realize its mark against exec_price via set_pnl
// (zero-sum across both sides) before the whole post-trade position is
// re-based.
func TestExecuteTradeAddingToPositionRealizesZeroSumTradePnl(t *testing.T) {
	e := newTestEngine(t)

	lpIdx, _ := e.AddLP([32]byte{}, [32]byte{}, u(100_000))
	userIdx, _ := e.AddUser(u(100_000))
	lp, _ := e.Account(lpIdx)
	user, _ := e.Account(userIdx)

	user.PositionSize = i(100)
	user.EntryPrice = 1_000_000
	lp.PositionSize = i(-100)
	lp.EntryPrice = 1_000_000

	matcher := MatcherOut{LPFillSize: i(-50), UserFillSize: i(50), ExecPrice: 1_050_000}
	if err := e.ExecuteTrade(lpIdx, userIdx, 1_000_000, e.CurrentSlot, i(50), 1_050_000, matcher); err != nil {
		t.Fatalf("ExecuteTrade: %v", err)
	}
	assertInvariants(t, e)

	if user.PositionSize.Cmp(i(150)) != 0 {
		t.Fatalf("user position = %v, want 150", user.PositionSize)
	}
	if lp.PositionSize.Cmp(i(-150)) != 0 {
		t.Fatalf("lp position = %v, want -150", lp.PositionSize)
	}
	if user.EntryPrice != 1_050_000 || lp.EntryPrice != 1_050_000 {
		t.Fatalf("entry prices not re-based to exec_price: user=%d lp=%d", user.EntryPrice, lp.EntryPrice)
	}
	// The pre-trade 100 units never traded at 1.05; realizing their mark
	// against it via set_pnl is the zero-sum transfer the old code skipped
	// (it just overwrote entry_price for all 150 units for free).
	if user.PNL.Cmp(i(5)) != 0 {
		t.Fatalf("user pnl = %v, want 5 (realized mark on pre-existing 100 units)", user.PNL)
	}
	if lp.PNL.Cmp(i(-5)) != 0 {
		t.Fatalf("lp pnl = %v, want -5 (zero-sum counterpart)", lp.PNL)
	}
}

func TestExecuteTradeRejectsMismatchedMatcherOutput(t *testing.T) {
	e := newTestEngine(t)
	lpIdx, _ := e.AddLP([32]byte{}, [32]byte{}, u(1_000_000))
	userIdx, _ := e.AddUser(u(2_000))

	matcher := MatcherOut{LPFillSize: i(-9_000), UserFillSize: i(10_000), ExecPrice: 1_000_000}
	err := e.ExecuteTrade(lpIdx, userIdx, 1_000_000, e.CurrentSlot, i(10_000), 1_000_000, matcher)
	if err == nil {
		t.Fatalf("expected rejection of non-zero-sum matcher output")
	}
}
