package engine

import "testing"

// setupScenarioS4 builds the §8 S4 fixture: three users plus a keeper, an
// insurance fund too thin to cover the victim's liquidation on its own.
// Returns the engine and every account index so callers can continue into
// S5's recovery check.
func setupScenarioS4(t *testing.T) (e *Engine, victimIdx, bIdx, cIdx, keeperIdx uint16) {
	t.Helper()
	e = newTestEngine(t)

	var err error
	victimIdx, err = e.AddUser(u(1_000))
	if err != nil {
		t.Fatalf("AddUser victim: %v", err)
	}
	bIdx, err = e.AddUser(u(1_000))
	if err != nil {
		t.Fatalf("AddUser b: %v", err)
	}
	cIdx, err = e.AddUser(u(1_000))
	if err != nil {
		t.Fatalf("AddUser c: %v", err)
	}
	keeperIdx, err = e.AddUser(u(500))
	if err != nil {
		t.Fatalf("AddUser keeper: %v", err)
	}

	victim, _ := e.Account(victimIdx)
	b, _ := e.Account(bIdx)
	c, _ := e.Account(cIdx)

	// Victim is flat on pnl but carries a position that, marked against
	// the liquidation oracle price below, realizes a +5000 profit (a
	// system deficit the vault must route through ADL/insurance).
	victim.PositionSize = i(100_000)
	victim.EntryPrice = 1_000_000

	if err := e.setPnl(b, i(2_000)); err != nil {
		t.Fatalf("setPnl b: %v", err)
	}
	if err := e.setPnl(c, i(2_000)); err != nil {
		t.Fatalf("setPnl c: %v", err)
	}

	// I = 100, backed by an extra 100 of vault value beyond the four
	// deposits (3500) above, matching conservation (V >= C_tot + I).
	e.I = u(100)
	e.IFloor = u(0)
	e.V = u(3_600)
	assertInvariants(t, e)
	return e, victimIdx, bIdx, cIdx, keeperIdx
}

// TestScenarioS4ADLWithInsuranceShortfall is S4 of §8: the victim's
// realized profit (5000) exceeds what insurance (100) plus the other
// junior claimants' unwrapped pnl (2000 + 2000, haircut to 4000 total)
// can cover; the 900 shortfall bumps loss_accum and trips crisis mode.
func TestScenarioS4ADLWithInsuranceShortfall(t *testing.T) {
	e, victimIdx, bIdx, cIdx, keeperIdx := setupScenarioS4(t)
	victim, _ := e.Account(victimIdx)
	b, _ := e.Account(bIdx)
	c, _ := e.Account(cIdx)
	keeper, _ := e.Account(keeperIdx)

	if err := e.LiquidateAccount(victimIdx, keeperIdx, 1_050_000, 1); err != nil {
		t.Fatalf("LiquidateAccount: %v", err)
	}
	assertInvariants(t, e)

	if b.PNL.Sign() != 0 {
		t.Fatalf("pnl_b after ADL haircut = %v, want 0 (2000 haircut from 2000)", b.PNL)
	}
	if c.PNL.Sign() != 0 {
		t.Fatalf("pnl_c after ADL haircut = %v, want 0 (2000 haircut from 2000)", c.PNL)
	}
	if e.LossAccum.Cmp(u(900)) != 0 {
		t.Fatalf("loss_accum = %v, want 900 (5000 - 100 insurance - 4000 haircuts)", e.LossAccum)
	}
	if !e.WithdrawalOnly {
		t.Fatalf("expected withdrawal_only after insurance shortfall")
	}
	if !e.WarmupPaused || e.WarmupPauseSlot != 1 {
		t.Fatalf("expected warmup paused at slot 1")
	}
	if victim.PositionSize.Sign() != 0 {
		t.Fatalf("victim still has an open position: %v", victim.PositionSize)
	}
	// liquidation fee: 1000 * 50bps = 5; insurance share 5*5000bps = 2;
	// keeper share 3.
	if victim.Capital.Cmp(u(995)) != 0 {
		t.Fatalf("victim capital = %v, want 995", victim.Capital)
	}
	if e.I.Cmp(u(2)) != 0 {
		t.Fatalf("insurance after liquidation fee = %v, want 2", e.I)
	}
	if keeper.Capital.Cmp(u(503)) != 0 {
		t.Fatalf("keeper capital = %v, want 503", keeper.Capital)
	}
}

// TestScenarioS5RecoveryViaTopUp is S5 of §8: continuing from S4,
// top_up_insurance_fund clears loss_accum and the crisis flags, after
// which risk-increasing trades are admitted again.
func TestScenarioS5RecoveryViaTopUp(t *testing.T) {
	e, victimIdx, _, _, keeperIdx := setupScenarioS4(t)
	if err := e.LiquidateAccount(victimIdx, keeperIdx, 1_050_000, 1); err != nil {
		t.Fatalf("LiquidateAccount: %v", err)
	}
	if e.LossAccum.Cmp(u(900)) != 0 {
		t.Fatalf("precondition: loss_accum = %v, want 900", e.LossAccum)
	}

	exitedCrisis, err := e.TopUpInsuranceFund(u(900))
	if err != nil {
		t.Fatalf("TopUpInsuranceFund: %v", err)
	}
	if !exitedCrisis {
		t.Fatalf("expected TopUpInsuranceFund to report crisis exit")
	}
	if e.LossAccum.Sign() != 0 {
		t.Fatalf("loss_accum after top-up = %v, want 0", e.LossAccum)
	}
	if e.WithdrawalOnly {
		t.Fatalf("expected withdrawal_only cleared")
	}
	if e.WarmupPaused {
		t.Fatalf("expected warmup_paused cleared")
	}
	assertInvariants(t, e)

	// A deposit and a risk-increasing trade are admitted again.
	lpIdx, err := e.AddLP([32]byte{}, [32]byte{}, u(100_000))
	if err != nil {
		t.Fatalf("AddLP: %v", err)
	}
	userIdx, err := e.AddUser(u(100_000))
	if err != nil {
		t.Fatalf("AddUser: %v", err)
	}
	if err := e.Deposit(userIdx, u(1_000)); err != nil {
		t.Fatalf("Deposit after recovery: %v", err)
	}

	matcher := MatcherOut{LPFillSize: i(-10_000), UserFillSize: i(10_000), ExecPrice: 1_000_000}
	if err := e.ExecuteTrade(lpIdx, userIdx, 1_000_000, e.CurrentSlot, i(10_000), 1_000_000, matcher); err != nil {
		t.Fatalf("risk-increasing trade after recovery: %v", err)
	}
	assertInvariants(t, e)
}

func TestLiquidationAtLossCreditsInsurance(t *testing.T) {
	e := newTestEngine(t)

	victimIdx, err := e.AddUser(u(2_000))
	if err != nil {
		t.Fatalf("AddUser victim: %v", err)
	}
	keeperIdx, err := e.AddUser(u(500))
	if err != nil {
		t.Fatalf("AddUser keeper: %v", err)
	}

	victim, _ := e.Account(victimIdx)
	victim.PositionSize = i(100_000)
	victim.EntryPrice = 1_000_000

	if err := e.LiquidateAccount(victimIdx, keeperIdx, 990_000, 1); err != nil {
		t.Fatalf("LiquidateAccount: %v", err)
	}
	assertInvariants(t, e)

	keeper, _ := e.Account(keeperIdx)
	if victim.PositionSize.Sign() != 0 {
		t.Fatalf("victim still has an open position: %v", victim.PositionSize)
	}
	// loss = 100000 * 10000 / 1e6 = 1000; remaining capital = 2000-1000 = 1000,
	// and the realized 1000 loss is credited to insurance.
	// fee = 1000 * 50bps = 5; insurance share = 5*5000bps = 2; keeper share = 3.
	if victim.Capital.Cmp(u(995)) != 0 {
		t.Fatalf("victim capital = %v, want 995", victim.Capital)
	}
	if e.I.Cmp(u(1002)) != 0 {
		t.Fatalf("insurance = %v, want 1002", e.I)
	}
	if keeper.Capital.Cmp(u(503)) != 0 {
		t.Fatalf("keeper capital = %v, want 503", keeper.Capital)
	}
}

func TestLiquidateAccountRejectsSafeAccount(t *testing.T) {
	e := newTestEngine(t)
	victimIdx, _ := e.AddUser(u(1_000_000))
	keeperIdx, _ := e.AddUser(u(500))

	victim, _ := e.Account(victimIdx)
	victim.PositionSize = i(10)
	victim.EntryPrice = 1_000_000

	if err := e.LiquidateAccount(victimIdx, keeperIdx, 1_000_000, 1); err == nil {
		t.Fatalf("expected ErrAccountSafe for a well-margined account")
	}
	assertInvariants(t, e)
}

func TestLiquidateAccountRejectsSelfLiquidation(t *testing.T) {
	e := newTestEngine(t)
	idx, _ := e.AddUser(u(1_000))
	if err := e.LiquidateAccount(idx, idx, 1_000_000, 1); err == nil {
		t.Fatalf("expected ErrSelfLiquidation")
	}
}
