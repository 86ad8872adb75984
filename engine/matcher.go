package engine

import "math/big"

// MatcherOut is the value-type result the host's matching engine produces
// for a trade. The kernel never calls back into the host; it only
// validates and applies this struct (§9 design note: value-type matcher,
// no dynamic dispatch).
type MatcherOut struct {
	LPFillSize   *big.Int // base units, signed
	UserFillSize *big.Int // base units, signed, must equal -LPFillSize
	ExecPrice    uint64   // scaled 1e6, must be > 0
}

// validate rejects matcher outputs that violate the zero-sum fill or sign
// conventions the kernel requires. Rejection is a distinct verified
// property (§6).
func (m MatcherOut) validate(requestedSize *big.Int) error {
	if m.ExecPrice == 0 {
		return ErrMatcherMismatch
	}
	if m.LPFillSize == nil || m.UserFillSize == nil {
		return ErrMatcherMismatch
	}
	sum := new(big.Int).Add(m.LPFillSize, m.UserFillSize)
	if sum.Sign() != 0 {
		return ErrMatcherMismatch
	}
	if new(big.Int).Abs(m.UserFillSize).Cmp(new(big.Int).Abs(requestedSize)) != 0 {
		return ErrMatcherMismatch
	}
	return nil
}
