package engine

import "github.com/holiman/uint256"

// Params holds the fixed risk parameters of one engine instance. All bps
// fields are basis points (1/100 of a percent).
type Params struct {
	N int // slab capacity, must match len(slab) at Init time

	WarmupSlots uint64 // T

	MaintenanceMarginBps uint64 // mm_bps
	InitialMarginBps     uint64 // im_bps

	TradingFeeBps        uint64
	LiquidationFeeBps    uint64
	InsuranceFeeShareBps uint64 // split of liquidation fee routed to insurance vs keeper
	AccountCreationFeeBps uint64

	MaintenanceFeePerSlot *uint256.Int // native per-slot fee charged against fee_credits

	MaxDeposit    *uint256.Int
	MaxWithdrawal *uint256.Int

	FundingDtMin       uint64 // minimum slot delta before funding index advances
	FundingRatePerSlot *ScaledInt // signed, quote-per-base per slot, scaled 1e6; policy input to crank

	CrankDefaultBudget uint16
}

// ScaledInt is a signed value scaled by 1e6, matching the funding-index and
// price conventions of the kernel.
type ScaledInt struct {
	Value int64
}

// DefaultParams returns the kernel's default risk parameters; config's
// generated default file starts from the same values (see
// config.defaultRiskParams).
func DefaultParams() Params {
	return Params{
		N:                     4096,
		WarmupSlots:           100,
		MaintenanceMarginBps:  500,
		InitialMarginBps:      1000,
		TradingFeeBps:         10,
		LiquidationFeeBps:     50,
		InsuranceFeeShareBps:  5000,
		AccountCreationFeeBps: 0,
		MaintenanceFeePerSlot: zeroU256(),
		MaxDeposit:            new(uint256.Int).Set(max128U256),
		MaxWithdrawal:         new(uint256.Int).Set(max128U256),
		FundingDtMin:          1,
		FundingRatePerSlot:    &ScaledInt{Value: 0},
		CrankDefaultBudget:    64,
	}
}

// Validate rejects parameter sets that would make the margin model
// incoherent (mm_bps must never exceed im_bps) or the slab capacity unusable.
func (p Params) Validate() error {
	if p.N <= 0 || p.N >= 1<<16 { // index 0xFFFF is the freelist sentinel
		return newErr("Params.Validate", ErrKindInvalidInput, nil)
	}
	if p.MaintenanceMarginBps == 0 || p.MaintenanceMarginBps > p.InitialMarginBps {
		return newErr("Params.Validate", ErrKindInvalidInput, nil)
	}
	if p.InsuranceFeeShareBps > 10_000 {
		return newErr("Params.Validate", ErrKindInvalidInput, nil)
	}
	if p.MaxDeposit == nil || p.MaxWithdrawal == nil || p.MaintenanceFeePerSlot == nil {
		return newErr("Params.Validate", ErrKindInvalidInput, nil)
	}
	return nil
}
