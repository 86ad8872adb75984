package engine

import (
	"math/big"

	"github.com/holiman/uint256"
)

// haircutRatio returns (h_num, h_den) per §4.3: (1,1) when there is no
// positive junior pnl outstanding, otherwise (min(Residual,PNLPosTot),
// PNLPosTot).
func (e *Engine) haircutRatio() (*big.Int, *big.Int) {
	pnlPosTot := u256ToI128(e.PNLPosTot)
	if pnlPosTot.Sign() == 0 {
		return big.NewInt(1), big.NewInt(1)
	}
	residual := u256ToI128(e.Residual())
	return minI(residual, pnlPosTot), pnlPosTot
}

// HaircutRatio exposes h_num/h_den for observability and host-side
// reporting; it performs no mutation and matches the ratio every
// settlement call uses internally.
func (e *Engine) HaircutRatio() (num, den *big.Int) {
	return e.haircutRatio()
}

// pnlEffPos is PNL_eff_pos_i: the haircut-scaled positive pnl used in all
// margin-equity computations.
func pnlEffPos(pnl *big.Int, hNum, hDen *big.Int) *big.Int {
	if pnl.Sign() <= 0 {
		return zeroI()
	}
	return floorMulDiv(pnl, hNum, hDen)
}

func feeDebt(a *Account) *big.Int {
	neg := new(big.Int).Neg(a.FeeCredits)
	return maxI(neg, zeroI())
}

// eqReal is Eq_real_i: max(0, capital + min(pnl,0) + PNL_eff_pos).
func (e *Engine) eqReal(a *Account) *big.Int {
	hNum, hDen := e.haircutRatio()
	eff := pnlEffPos(a.PNL, hNum, hDen)
	negPart := minI(a.PNL, zeroI())
	capital := u256ToI128(a.Capital)
	sum := new(big.Int).Add(capital, negPart)
	sum.Add(sum, eff)
	return maxI(sum, zeroI())
}

// eqMtmNet is Eq_mtm_net_i(P): the single margin-equity figure used by every
// check in the kernel.
func (e *Engine) eqMtmNet(a *Account, oraclePrice uint64) *big.Int {
	mark := markPnl(a.PositionSize, a.EntryPrice, oraclePrice)
	real := e.eqReal(a)
	mtm := maxI(new(big.Int).Add(real, mark), zeroI())
	net := new(big.Int).Sub(mtm, feeDebt(a))
	return maxI(net, zeroI())
}

// marginReq computes required margin (IM or MM) as
// |position_size| * price / 1e6 * bps / 10000.
func marginReq(positionSize *big.Int, price uint64, bps uint64) *uint256.Int {
	absPos := new(big.Int).Abs(positionSize)
	if absPos.Sign() == 0 {
		return zeroU256()
	}
	notional := new(big.Int).Mul(absPos, new(big.Int).SetUint64(price))
	notional.Quo(notional, big.NewInt(priceScale))
	notional.Mul(notional, new(big.Int).SetUint64(bps))
	notional.Quo(notional, big.NewInt(10_000))
	return i128ToU256(notional)
}

func (e *Engine) mmReq(a *Account, price uint64) *uint256.Int {
	return marginReq(a.PositionSize, price, e.Params.MaintenanceMarginBps)
}

func (e *Engine) imReq(a *Account, price uint64) *uint256.Int {
	return marginReq(a.PositionSize, price, e.Params.InitialMarginBps)
}
