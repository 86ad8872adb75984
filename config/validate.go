package config

import "fmt"

// ValidateConfig runs the sequential checks a malformed TOML file can
// still pass syntactically but must not pass semantically.
func ValidateConfig(cfg Config) error {
	if cfg.ListenAddress == "" {
		return fmt.Errorf("config: ListenAddress must not be empty")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	r := cfg.Risk
	if r.SlabCapacity <= 0 || r.SlabCapacity >= 1<<16 {
		return fmt.Errorf("config: Risk.SlabCapacity out of range")
	}
	if r.MaintenanceMarginBps == 0 || r.MaintenanceMarginBps > r.InitialMarginBps {
		return fmt.Errorf("config: Risk.MaintenanceMarginBps must be nonzero and <= InitialMarginBps")
	}
	if r.InsuranceFeeShareBps > 10_000 {
		return fmt.Errorf("config: Risk.InsuranceFeeShareBps must be <= 10000")
	}
	if r.FundingDtMin == 0 {
		return fmt.Errorf("config: Risk.FundingDtMin must be >= 1")
	}
	if r.CrankDefaultBudget == 0 {
		return fmt.Errorf("config: Risk.CrankDefaultBudget must be > 0")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: LogLevel must be one of debug,info,warn,error")
	}
	return nil
}
