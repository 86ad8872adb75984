package engine

import "testing"

// TestScenarioS3LossIsolation is S3 of §8: one account's loss settles
// entirely from its own capital; every other account's capital is
// untouched.
func TestScenarioS3LossIsolation(t *testing.T) {
	e := newTestEngine(t)

	aIdx, err := e.AddUser(u(1_000))
	if err != nil {
		t.Fatalf("AddUser a: %v", err)
	}
	bIdx, err := e.AddUser(u(1_000))
	if err != nil {
		t.Fatalf("AddUser b: %v", err)
	}
	a, _ := e.Account(aIdx)
	b, _ := e.Account(bIdx)

	if err := e.setPnl(a, i(-500)); err != nil {
		t.Fatalf("setPnl a: %v", err)
	}
	if err := e.setPnl(b, i(500)); err != nil {
		t.Fatalf("setPnl b: %v", err)
	}
	assertInvariants(t, e)

	if err := e.touchAccountFull(a, 0, e.CurrentSlot); err != nil {
		t.Fatalf("touchAccountFull a: %v", err)
	}
	assertInvariants(t, e)

	if a.Capital.Cmp(u(500)) != 0 {
		t.Fatalf("capital_a = %v, want 500", a.Capital)
	}
	if a.PNL.Sign() != 0 {
		t.Fatalf("pnl_a after loss settlement = %v, want 0", a.PNL)
	}
	if b.Capital.Cmp(u(1_000)) != 0 {
		t.Fatalf("capital_b = %v, want 1000 (untouched)", b.Capital)
	}
	if b.PNL.Cmp(i(500)) != 0 {
		t.Fatalf("pnl_b = %v, want 500 (untouched)", b.PNL)
	}
}
