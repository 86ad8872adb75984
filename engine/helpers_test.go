package engine

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	p := DefaultParams()
	p.N = 16
	e, err := NewEngine(p)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

// assertInvariants checks the conservation and aggregate-accuracy
// invariants every external operation must leave intact.
func assertInvariants(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.CheckInvariants(); err != nil {
		t.Fatalf("invariant check failed: %v", err)
	}
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }
func i(v int64) *big.Int      { return big.NewInt(v) }
