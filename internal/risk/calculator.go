package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/domain"
	"upbit-trading-bot/internal/money"
)

// Level classifies risk severity.
type Level string

const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// Assessment is the outcome of a position or portfolio risk check.
// Allowed=false blocks new entries only; exits are never blocked.
type Assessment struct {
	Level           Level
	Allowed         bool
	Reasons         []string
	Recommendations []string
}

// Calculator is the stateless risk policy: price derivation, size limits
// and risk classification. All methods are pure functions of Limits.
type Calculator struct {
	limits Limits
}

// NewCalculator creates a calculator over a validated policy snapshot.
func NewCalculator(limits Limits) (*Calculator, error) {
	if err := limits.Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk limits: %w", err)
	}
	return &Calculator{limits: limits}, nil
}

// Limits returns the policy snapshot the calculator was built with.
func (c *Calculator) Limits() Limits { return c.limits }

// StopLossPrice derives the stop level: entry x (1 + stopLossPct).
func (c *Calculator) StopLossPrice(entry money.Money) money.Money {
	one := decimal.NewFromInt(1)
	return entry.Mul(one.Add(c.limits.StopLossPct.Ratio())).Round()
}

// TakeProfitPrice derives the profit level: entry x (1 + takeProfitPct).
func (c *Calculator) TakeProfitPrice(entry money.Money) money.Money {
	one := decimal.NewFromInt(1)
	return entry.Mul(one.Add(c.limits.TakeProfitPct.Ratio())).Round()
}

// ATRStopLossPrice derives the stop level from volatility: entry - ATR x multiplier.
func (c *Calculator) ATRStopLossPrice(entry, atr money.Money) money.Money {
	return entry.Sub(atr.Mul(decimal.NewFromFloat(c.limits.ATRStopMultiplier))).Round()
}

// ATRTakeProfitPrice derives the profit level from volatility: entry + ATR x multiplier.
func (c *Calculator) ATRTakeProfitPrice(entry, atr money.Money) money.Money {
	return entry.Add(atr.Mul(decimal.NewFromFloat(c.limits.ATRProfitMultiplier))).Round()
}

// highRiskPnlPct is the P&L band edge below which an open position is
// classified HIGH even before the stop-loss threshold is reached.
var highRiskPnlPct = money.PctFromFloat(-0.03)

// AssessPosition classifies an open position's risk at the current price.
// A stop-loss breach is CRITICAL but still allowed: risk controls never
// prevent exiting a loss.
func (c *Calculator) AssessPosition(pos *domain.Position, current money.Money, portfolioValue money.Money) Assessment {
	pnl := pos.PnLPercent(current)

	if pnl.LessThanOrEqual(c.limits.StopLossPct) {
		return Assessment{
			Level:   LevelCritical,
			Allowed: true,
			Reasons: []string{fmt.Sprintf("P&L %s breached stop-loss threshold %s", pnl, c.limits.StopLossPct)},
			Recommendations: []string{
				"exit the position immediately",
			},
		}
	}

	level := classifyPnl(pnl)
	a := Assessment{Level: level, Allowed: true}

	if pnl.GreaterThanOrEqual(c.limits.TakeProfitPct) {
		a.Reasons = append(a.Reasons, fmt.Sprintf("P&L %s reached take-profit threshold %s", pnl, c.limits.TakeProfitPct))
		a.Recommendations = append(a.Recommendations, "take profit")
	}
	if level == LevelHigh {
		a.Reasons = append(a.Reasons, fmt.Sprintf("P&L %s in high-risk band", pnl))
		a.Recommendations = append(a.Recommendations, "tighten stop or reduce exposure")
	}
	return a
}

func classifyPnl(pnl money.Percentage) Level {
	switch {
	case !pnl.IsNegative():
		return LevelLow
	case pnl.LessThanOrEqual(highRiskPnlPct):
		return LevelHigh
	default:
		return LevelMedium
	}
}

// AssessPortfolio classifies cumulative daily/weekly losses against the
// configured limits. An actual breach blocks; approaching the daily limit
// only warns.
func (c *Calculator) AssessPortfolio(dailyPnl, weeklyPnl money.Percentage) Assessment {
	if dailyPnl.Cmp(c.limits.DailyLossLimitPct) < 0 {
		return Assessment{
			Level:           LevelCritical,
			Allowed:         false,
			Reasons:         []string{fmt.Sprintf("daily P&L %s breached loss limit %s", dailyPnl, c.limits.DailyLossLimitPct)},
			Recommendations: []string{"halt trading for the day"},
		}
	}
	if weeklyPnl.Cmp(c.limits.WeeklyLossLimitPct) < 0 {
		return Assessment{
			Level:           LevelCritical,
			Allowed:         false,
			Reasons:         []string{fmt.Sprintf("weekly P&L %s breached loss limit %s", weeklyPnl, c.limits.WeeklyLossLimitPct)},
			Recommendations: []string{"halt trading for the week"},
		}
	}

	// Proximity warning: >= 70% of the way toward the daily limit is HIGH
	// risk, but blocking is reserved for an actual breach.
	warnAt := c.limits.DailyLossLimitPct.Scale(decimal.NewFromFloat(0.7))
	if dailyPnl.IsNegative() && dailyPnl.LessThanOrEqual(warnAt) {
		return Assessment{
			Level:           LevelHigh,
			Allowed:         true,
			Reasons:         []string{fmt.Sprintf("daily P&L %s is within 70%% of loss limit %s", dailyPnl, c.limits.DailyLossLimitPct)},
			Recommendations: []string{"reduce position sizes"},
		}
	}
	if dailyPnl.IsNegative() {
		return Assessment{Level: LevelMedium, Allowed: true}
	}
	return Assessment{Level: LevelLow, Allowed: true}
}

// ValidateTradeSize blocks trades exceeding the max position-size share of
// the portfolio. The boundary is inclusive: exactly the maximum is allowed.
func (c *Calculator) ValidateTradeSize(amount, portfolioValue money.Money) Assessment {
	if amount.IsZero() || amount.IsNegative() {
		return Assessment{
			Level:   LevelCritical,
			Allowed: false,
			Reasons: []string{fmt.Sprintf("trade size must be positive, got %s", amount)},
		}
	}

	maxAmount := portfolioValue.MulPct(c.limits.MaxPositionSizePct)
	if amount.GreaterThan(maxAmount) {
		return Assessment{
			Level:           LevelHigh,
			Allowed:         false,
			Reasons:         []string{fmt.Sprintf("trade size %s exceeds max position size %s (%s of portfolio)", amount, maxAmount, c.limits.MaxPositionSizePct)},
			Recommendations: []string{fmt.Sprintf("cap the trade at %s", maxAmount)},
		}
	}
	return Assessment{Level: LevelLow, Allowed: true}
}

// RecommendedSize returns the Kelly-style position size: the per-trade
// risk budget divided by the stop-loss distance, capped at the maximum
// position size. A zero stop-loss falls back to the cap.
func (c *Calculator) RecommendedSize(portfolioValue money.Money) money.Money {
	maxSize := portfolioValue.MulPct(c.limits.MaxPositionSizePct).Round()
	if c.limits.StopLossPct.IsZero() {
		return maxSize
	}

	riskBudget := portfolioValue.MulPct(c.limits.RiskPerTradePct)
	size := riskBudget.Div(c.limits.StopLossPct.Abs().Ratio()).Round()
	if size.GreaterThan(maxSize) {
		return maxSize
	}
	return size
}
