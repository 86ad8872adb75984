// Package engine implements the perpetual-futures risk-engine accounting
// kernel: a single, synchronous, deterministic aggregate owning a fixed
// slab of account records. The kernel never touches tokens, never does
// I/O, and never spawns goroutines; the host (see package host) sequences
// calls into it one at a time.
package engine

import (
	"math/big"

	"github.com/holiman/uint256"
)

// Engine is the single owned aggregate described by the data model: a
// fixed slab of accounts plus the global scalars that must stay in sync
// with it. There is exactly one instance per deployment; the host holds it
// and serializes every call.
type Engine struct {
	slab *slab

	V       *uint256.Int
	I       *uint256.Int
	IFloor  *uint256.Int

	CurrentSlot     uint64
	FundingIndex    *big.Int
	LastFundingSlot uint64

	LossAccum       *uint256.Int
	WithdrawalOnly  bool
	WarmupPaused    bool
	WarmupPauseSlot uint64

	CTot     *uint256.Int
	PNLPosTot *uint256.Int

	crankCursor uint16

	Params Params
}

// NewEngine initializes an empty slab of Params.N accounts with zeroed
// aggregates. This is the once-only init() of §3's lifecycle section.
func NewEngine(params Params) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		slab:      newSlab(params.N),
		V:         zeroU256(),
		I:         zeroU256(),
		IFloor:    zeroU256(),
		FundingIndex: zeroI(),
		LossAccum: zeroU256(),
		CTot:      zeroU256(),
		PNLPosTot: zeroU256(),
		Params:    params,
	}, nil
}

// Residual is max(0, V - C_tot - I), the pool backing junior claims.
func (e *Engine) Residual() *uint256.Int {
	sum, overflow := new(uint256.Int).AddOverflow(e.CTot, e.I)
	if overflow {
		return zeroU256()
	}
	if e.V.Cmp(sum) <= 0 {
		return zeroU256()
	}
	return new(uint256.Int).Sub(e.V, sum)
}

// CheckInvariants verifies the conservation and aggregate-accuracy
// invariants a careful host re-checks after staging a transition. It never
// mutates state.
func (e *Engine) CheckInvariants() error {
	sum, overflow := new(uint256.Int).AddOverflow(e.CTot, e.I)
	if overflow || e.V.Cmp(sum) < 0 {
		return newErr("CheckInvariants", ErrKindInvariantCorrupt, ErrInvariantCorrupt)
	}
	wantCTot := zeroU256()
	wantPos := zeroU256()
	err := e.slab.forEachUsed(func(i uint16) error {
		acc, _ := e.slab.get(i)
		var of bool
		wantCTot, of = new(uint256.Int).AddOverflow(wantCTot, acc.Capital)
		if of {
			return ErrInvariantCorrupt
		}
		wantPos, of = new(uint256.Int).AddOverflow(wantPos, i128ToU256(maxI(acc.PNL, zeroI())))
		if of {
			return ErrInvariantCorrupt
		}
		return nil
	})
	if err != nil {
		return newErr("CheckInvariants", ErrKindInvariantCorrupt, err)
	}
	if wantCTot.Cmp(e.CTot) != 0 || wantPos.Cmp(e.PNLPosTot) != 0 {
		return newErr("CheckInvariants", ErrKindInvariantCorrupt, ErrInvariantCorrupt)
	}
	return nil
}

// Account exposes a read-only view of slot i's record. Returns false if the
// slot is free.
func (e *Engine) Account(i uint16) (*Account, bool) {
	return e.slab.get(i)
}

// IsUsed reports whether slot i currently holds a live account.
func (e *Engine) IsUsed(i uint16) bool { return e.slab.isUsed(i) }
