package engine

import "testing"

func TestRunADLDistributesProportionally(t *testing.T) {
	e := newTestEngine(t)

	aIdx, _ := e.AddUser(u(0))
	bIdx, _ := e.AddUser(u(0))
	excludedIdx, _ := e.AddUser(u(0))

	a, _ := e.Account(aIdx)
	b, _ := e.Account(bIdx)
	if err := e.setPnl(a, i(1000)); err != nil {
		t.Fatalf("setPnl a: %v", err)
	}
	if err := e.setPnl(b, i(500)); err != nil {
		t.Fatalf("setPnl b: %v", err)
	}
	// Zero slope keeps WarmableGross at 0 so the full pnl counts as
	// "unwrapped" (unmatured) for the distribution.
	e.I = u(1000)
	e.V = u(1000) // vault backs the insurance fund so V >= C_tot + I holds

	res, err := e.runADL(excludedIdx, i(300))
	if err != nil {
		t.Fatalf("runADL: %v", err)
	}
	if res.haircuts[aIdx].Cmp(i(200)) != 0 {
		t.Fatalf("haircut a = %v, want 200", res.haircuts[aIdx])
	}
	if res.haircuts[bIdx].Cmp(i(100)) != 0 {
		t.Fatalf("haircut b = %v, want 100", res.haircuts[bIdx])
	}
	if res.insuranceCharge.Sign() != 0 {
		t.Fatalf("insuranceCharge = %v, want 0 (fully absorbed by haircuts)", res.insuranceCharge)
	}
	if res.residue.Sign() != 0 {
		t.Fatalf("residue = %v, want 0", res.residue)
	}

	if err := e.applyADL(res, e.CurrentSlot); err != nil {
		t.Fatalf("applyADL: %v", err)
	}
	assertInvariants(t, e)
	if a.PNL.Cmp(i(800)) != 0 {
		t.Fatalf("a.PNL = %v, want 800", a.PNL)
	}
	if b.PNL.Cmp(i(400)) != 0 {
		t.Fatalf("b.PNL = %v, want 400", b.PNL)
	}
}

func TestRunADLResidueEntersCrisisMode(t *testing.T) {
	e := newTestEngine(t)
	aIdx, _ := e.AddUser(u(0))
	a, _ := e.Account(aIdx)
	if err := e.setPnl(a, i(100)); err != nil {
		t.Fatalf("setPnl: %v", err)
	}
	e.I = u(0)
	e.IFloor = u(0)

	res, err := e.runADL(0xFFFF, i(1000))
	if err != nil {
		t.Fatalf("runADL: %v", err)
	}
	if res.residue.Sign() <= 0 {
		t.Fatalf("expected positive residue, got %v", res.residue)
	}

	if err := e.applyADL(res, 42); err != nil {
		t.Fatalf("applyADL: %v", err)
	}
	if !e.WithdrawalOnly {
		t.Fatalf("expected engine to enter withdrawal-only crisis mode")
	}
	if !e.WarmupPaused || e.WarmupPauseSlot != 42 {
		t.Fatalf("expected warmup paused at slot 42")
	}
	if e.LossAccum.Sign() == 0 {
		t.Fatalf("expected non-zero loss_accum")
	}
}
