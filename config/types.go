package config

import (
	"perpkernel/engine"

	"github.com/holiman/uint256"
)

// RiskParams is the TOML-facing mirror of engine.Params. Bps fields are
// basis points (1/100 of a percent); monetary fields are decimal strings
// since TOML has no native 128-bit integer type.
type RiskParams struct {
	SlabCapacity          int    `toml:"SlabCapacity"`
	WarmupSlots           uint64 `toml:"WarmupSlots"`
	MaintenanceMarginBps  uint64 `toml:"MaintenanceMarginBps"`
	InitialMarginBps      uint64 `toml:"InitialMarginBps"`
	TradingFeeBps         uint64 `toml:"TradingFeeBps"`
	LiquidationFeeBps     uint64 `toml:"LiquidationFeeBps"`
	InsuranceFeeShareBps  uint64 `toml:"InsuranceFeeShareBps"`
	AccountCreationFeeBps uint64 `toml:"AccountCreationFeeBps"`
	MaintenanceFeePerSlot string `toml:"MaintenanceFeePerSlot"`
	MaxDeposit            string `toml:"MaxDeposit"`
	MaxWithdrawal         string `toml:"MaxWithdrawal"`
	FundingDtMin          uint64 `toml:"FundingDtMin"`
	FundingRatePerSlot    int64  `toml:"FundingRatePerSlot"`
	CrankDefaultBudget    uint16 `toml:"CrankDefaultBudget"`
}

// Config is the perpkerneld process configuration: where it listens, where
// it persists engine snapshots, where it ships logs and traces, and the
// risk parameters the engine starts with.
type Config struct {
	ListenAddress string     `toml:"ListenAddress"`
	DataDir       string     `toml:"DataDir"`
	LogLevel      string     `toml:"LogLevel"`
	LogPath       string     `toml:"LogPath"`
	OTLPEndpoint  string     `toml:"OTLPEndpoint"`
	Risk          RiskParams `toml:"Risk"`
}

// defaultRiskParams mirrors engine.DefaultParams in TOML-friendly form.
func defaultRiskParams() RiskParams {
	d := engine.DefaultParams()
	return RiskParams{
		SlabCapacity:          d.N,
		WarmupSlots:           d.WarmupSlots,
		MaintenanceMarginBps:  d.MaintenanceMarginBps,
		InitialMarginBps:      d.InitialMarginBps,
		TradingFeeBps:         d.TradingFeeBps,
		LiquidationFeeBps:     d.LiquidationFeeBps,
		InsuranceFeeShareBps:  d.InsuranceFeeShareBps,
		AccountCreationFeeBps: d.AccountCreationFeeBps,
		MaintenanceFeePerSlot: d.MaintenanceFeePerSlot.Dec(),
		MaxDeposit:            d.MaxDeposit.Dec(),
		MaxWithdrawal:         d.MaxWithdrawal.Dec(),
		FundingDtMin:          d.FundingDtMin,
		FundingRatePerSlot:    d.FundingRatePerSlot.Value,
		CrankDefaultBudget:    d.CrankDefaultBudget,
	}
}

// ToEngineParams parses the decimal-string monetary fields and assembles
// an engine.Params ready for engine.NewEngine.
func (r RiskParams) ToEngineParams() (engine.Params, error) {
	maintFee, err := parseU256(r.MaintenanceFeePerSlot)
	if err != nil {
		return engine.Params{}, err
	}
	maxDep, err := parseU256(r.MaxDeposit)
	if err != nil {
		return engine.Params{}, err
	}
	maxWd, err := parseU256(r.MaxWithdrawal)
	if err != nil {
		return engine.Params{}, err
	}
	return engine.Params{
		N:                     r.SlabCapacity,
		WarmupSlots:           r.WarmupSlots,
		MaintenanceMarginBps:  r.MaintenanceMarginBps,
		InitialMarginBps:      r.InitialMarginBps,
		TradingFeeBps:         r.TradingFeeBps,
		LiquidationFeeBps:     r.LiquidationFeeBps,
		InsuranceFeeShareBps:  r.InsuranceFeeShareBps,
		AccountCreationFeeBps: r.AccountCreationFeeBps,
		MaintenanceFeePerSlot: maintFee,
		MaxDeposit:            maxDep,
		MaxWithdrawal:         maxWd,
		FundingDtMin:          r.FundingDtMin,
		FundingRatePerSlot:    &engine.ScaledInt{Value: r.FundingRatePerSlot},
		CrankDefaultBudget:    r.CrankDefaultBudget,
	}, nil
}

func parseU256(s string) (*uint256.Int, error) {
	if s == "" {
		return uint256.NewInt(0), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, err
	}
	return v, nil
}
