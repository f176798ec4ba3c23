// Package risk implements position and portfolio risk policy: the
// stateless Calculator, the policy Limits snapshot, and the stateful
// Manager that gates every trading cycle.
package risk

import (
	"fmt"

	"upbit-trading-bot/internal/money"
)

// Limits is an immutable risk policy snapshot. Percentages follow the
// sign convention of the engine: stop-loss thresholds are negative,
// take-profit thresholds positive.
type Limits struct {
	StopLossPct   money.Percentage // e.g. -5%
	TakeProfitPct money.Percentage // e.g. +10%

	UseATRStops         bool
	ATRStopMultiplier   float64
	ATRProfitMultiplier float64

	DailyLossLimitPct  money.Percentage // e.g. -10%
	WeeklyLossLimitPct money.Percentage // e.g. -20%

	MinTradeIntervalHours float64
	MaxTradesPerDay       int

	MinPositionSizePct money.Percentage
	MaxPositionSizePct money.Percentage
	RiskPerTradePct    money.Percentage

	TrailingStopEnabled   bool
	TrailingATRMultiplier float64

	PartialTP1Pct    money.Percentage // lower tier, partial exit
	PartialTP2Pct    money.Percentage // higher tier, full exit
	PartialSellRatio money.Ratio
}

// DefaultLimits returns conservative policy defaults.
func DefaultLimits() Limits {
	return Limits{
		StopLossPct:           money.PctFromFloat(-0.05),
		TakeProfitPct:         money.PctFromFloat(0.10),
		UseATRStops:           false,
		ATRStopMultiplier:     2.0,
		ATRProfitMultiplier:   3.0,
		DailyLossLimitPct:     money.PctFromFloat(-0.10),
		WeeklyLossLimitPct:    money.PctFromFloat(-0.20),
		MinTradeIntervalHours: 1.0,
		MaxTradesPerDay:       10,
		MinPositionSizePct:    money.PctFromFloat(0.05),
		MaxPositionSizePct:    money.PctFromFloat(0.30),
		RiskPerTradePct:       money.PctFromFloat(0.01),
		TrailingStopEnabled:   false,
		TrailingATRMultiplier: 2.0,
		PartialTP1Pct:         money.PctFromFloat(0.05),
		PartialTP2Pct:         money.PctFromFloat(0.10),
		PartialSellRatio:      money.MustRatio(0.5),
	}
}

// Validate rejects internally inconsistent policy snapshots.
func (l Limits) Validate() error {
	if !l.StopLossPct.IsNegative() && !l.StopLossPct.IsZero() {
		return fmt.Errorf("stop-loss percentage must be negative or zero, got %s", l.StopLossPct)
	}
	if l.TakeProfitPct.IsNegative() {
		return fmt.Errorf("take-profit percentage must not be negative, got %s", l.TakeProfitPct)
	}
	if !l.DailyLossLimitPct.IsNegative() {
		return fmt.Errorf("daily loss limit must be negative, got %s", l.DailyLossLimitPct)
	}
	if !l.WeeklyLossLimitPct.IsNegative() {
		return fmt.Errorf("weekly loss limit must be negative, got %s", l.WeeklyLossLimitPct)
	}
	if l.MaxTradesPerDay <= 0 {
		return fmt.Errorf("max trades per day must be positive, got %d", l.MaxTradesPerDay)
	}
	if l.MaxPositionSizePct.IsNegative() || l.MaxPositionSizePct.IsZero() {
		return fmt.Errorf("max position size must be positive, got %s", l.MaxPositionSizePct)
	}
	if l.MinPositionSizePct.GreaterThanOrEqual(l.MaxPositionSizePct) {
		return fmt.Errorf("min position size %s must be below max %s", l.MinPositionSizePct, l.MaxPositionSizePct)
	}
	if l.PartialTP1Pct.GreaterThanOrEqual(l.PartialTP2Pct) {
		return fmt.Errorf("partial take-profit tier 1 (%s) must be below tier 2 (%s)", l.PartialTP1Pct, l.PartialTP2Pct)
	}
	return nil
}
