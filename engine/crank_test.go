package engine

import "testing"

func TestKeeperCrankAccruesFundingAndTouchesAccounts(t *testing.T) {
	e := newTestEngine(t)
	e.Params.FundingRatePerSlot = &ScaledInt{Value: 100}
	e.Params.FundingDtMin = 1

	idx, _ := e.AddUser(u(1000))

	touched := 0
	obs := func(ev CrankEvent) {
		if ev.Kind == CrankAccountTouched {
			touched++
		}
	}
	prices := OraclePriceLookup(func(a *Account) uint64 { return 1_000_000 })

	if err := e.KeeperCrank(5, prices, 16, obs); err != nil {
		t.Fatalf("KeeperCrank: %v", err)
	}
	assertInvariants(t, e)

	if e.FundingIndex.Sign() == 0 {
		t.Fatalf("expected funding index to advance")
	}
	if touched == 0 {
		t.Fatalf("expected the account to be touched during the crank")
	}
	_ = idx
}

func TestKeeperCrankGarbageCollectsDustSlots(t *testing.T) {
	e := newTestEngine(t)
	idx, _ := e.AddUser(u(0))

	prices := OraclePriceLookup(func(a *Account) uint64 { return 1_000_000 })
	var gced bool
	obs := func(ev CrankEvent) {
		if ev.Kind == CrankGCed && ev.Account == idx {
			gced = true
		}
	}

	if err := e.KeeperCrank(1, prices, 16, obs); err != nil {
		t.Fatalf("KeeperCrank: %v", err)
	}
	if !gced {
		t.Fatalf("expected the empty account to be garbage collected")
	}
	if e.IsUsed(idx) {
		t.Fatalf("slot %d should have been freed", idx)
	}
}

func TestKeeperCrankBudgetBoundsWork(t *testing.T) {
	e := newTestEngine(t)
	for k := 0; k < 8; k++ {
		if _, err := e.AddUser(u(10)); err != nil {
			t.Fatalf("AddUser: %v", err)
		}
	}
	prices := OraclePriceLookup(func(a *Account) uint64 { return 1_000_000 })

	visited := 0
	obs := func(ev CrankEvent) {
		if ev.Kind == CrankAccountTouched {
			visited++
		}
	}
	if err := e.KeeperCrank(1, prices, 3, obs); err != nil {
		t.Fatalf("KeeperCrank: %v", err)
	}
	if visited != 3 {
		t.Fatalf("visited = %d, want 3 (budget-bounded)", visited)
	}
}
