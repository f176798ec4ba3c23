// Package execution fills market orders through a single Port contract
// with two implementations: Live routes to the venue, Intrabar simulates
// fills from historical OHLC. Both share the same trigger and gap-pricing
// rules, which is what makes backtest results comparable to live runs.
package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/domain"
	"upbit-trading-bot/internal/money"
)

// Result is the outcome of one market order.
type Result struct {
	Success        bool
	Side           domain.Side
	ExecutedPrice  money.Money
	ExecutedVolume decimal.Decimal
	Slippage       money.Money // executed minus expected, signed
	Reason         string
	Timestamp      time.Time
}

// Port executes market orders.
type Port interface {
	// ExecuteMarketOrder fills volume at market. The candle carries the
	// pricing context: a historical bar for simulation, a degenerate
	// current-price sample for live trading. A venue failure yields
	// Success=false with a reason, not an error; errors are reserved for
	// invalid input.
	ExecuteMarketOrder(ctx context.Context, side domain.Side, volume decimal.Decimal,
		expected money.Money, candle domain.Candle, slippage money.Percentage) (Result, error)
}

// Exit identifies which protective level fired within a candle.
type Exit string

const (
	ExitNone       Exit = ""
	ExitStopLoss   Exit = "STOP_LOSS"
	ExitTakeProfit Exit = "TAKE_PROFIT"
)

// StopLossTriggered reports whether the candle touched the stop level.
func StopLossTriggered(stop money.Money, candle domain.Candle) bool {
	return candle.Low.LessThanOrEqual(stop)
}

// TakeProfitTriggered reports whether the candle touched the profit level.
func TakeProfitTriggered(tp money.Money, candle domain.Candle) bool {
	return candle.High.GreaterThanOrEqual(tp)
}

// StopLossExecutionPrice is the fill price for a triggered stop. A
// gap-down open below the stop fills at the open: the worse price is the
// honest one.
func StopLossExecutionPrice(stop money.Money, candle domain.Candle) money.Money {
	if candle.Open.LessThan(stop) {
		return candle.Open
	}
	return stop
}

// TakeProfitExecutionPrice is the fill price for a triggered take-profit.
// A gap-up open above the level fills at the open.
func TakeProfitExecutionPrice(tp money.Money, candle domain.Candle) money.Money {
	if candle.Open.GreaterThan(tp) {
		return candle.Open
	}
	return tp
}

// ExitPriority resolves which exit applies for a candle. When both levels
// were touched the engine cannot know which was hit first intrabar, so it
// always assumes the stop-loss.
func ExitPriority(stop, tp money.Money, candle domain.Candle) Exit {
	switch {
	case StopLossTriggered(stop, candle):
		return ExitStopLoss
	case TakeProfitTriggered(tp, candle):
		return ExitTakeProfit
	default:
		return ExitNone
	}
}
