package strategy

import "time"

// Config holds every exit threshold. It is built once per cycle and never mutated.
type Config struct {
	DisputeExitEnabled     bool    `yaml:"dispute_exit_enabled"`
	DisputeWindowExitPrice float64 `yaml:"dispute_window_exit_price"`

	AutoSellEnabled   bool    `yaml:"auto_sell_enabled"`
	AutoSellThreshold float64 `yaml:"auto_sell_threshold"`
	MinHoldSeconds    float64 `yaml:"min_hold_seconds"`

	QuickWinEnabled        bool    `yaml:"quick_win_enabled"`
	QuickWinMaxHoldMinutes float64 `yaml:"quick_win_max_hold_minutes"`
	QuickWinProfitPct      float64 `yaml:"quick_win_profit_pct"`

	StaleExitEnabled     bool    `yaml:"stale_exit_enabled"`
	StalePositionHours   float64 `yaml:"stale_position_hours"`
	StaleExpiryHoldHours float64 `yaml:"stale_expiry_hold_hours"`

	OversizedExitEnabled               bool    `yaml:"oversized_exit_enabled"`
	OversizedExitThresholdUSD          float64 `yaml:"oversized_exit_threshold_usd"`
	OversizedExitBreakevenTolerancePct float64 `yaml:"oversized_exit_breakeven_tolerance_pct"`
	OversizedExitHoursBeforeEvent      float64 `yaml:"oversized_exit_hours_before_event"`
}

// Defaults returns the documented default thresholds.
func Defaults() Config {
	return Config{
		DisputeExitEnabled:     true,
		DisputeWindowExitPrice: 0.999,

		AutoSellEnabled:   true,
		AutoSellThreshold: 0.999,
		MinHoldSeconds:    60,

		QuickWinEnabled:        false,
		QuickWinMaxHoldMinutes: 60,
		QuickWinProfitPct:      90,

		StaleExitEnabled:     true,
		StalePositionHours:   24,
		StaleExpiryHoldHours: 48,

		OversizedExitEnabled:               true,
		OversizedExitThresholdUSD:          25,
		OversizedExitBreakevenTolerancePct: 2,
		OversizedExitHoursBeforeEvent:      1,
	}
}

func (c Config) minHold() time.Duration {
	return hours(c.MinHoldSeconds / 3600)
}

func (c Config) quickWinWindow() time.Duration {
	return hours(c.QuickWinMaxHoldMinutes / 60)
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
