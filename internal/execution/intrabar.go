package execution

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/domain"
	"upbit-trading-bot/internal/money"
)

// Intrabar simulates fills from historical OHLC. Fills are a pure
// function of the inputs, so a replay of the same candles always
// reproduces the same results.
type Intrabar struct {
	log zerolog.Logger
}

// NewIntrabar creates the simulated port.
func NewIntrabar(log zerolog.Logger) *Intrabar {
	return &Intrabar{log: log.With().Str("component", "execution_intrabar").Logger()}
}

// ExecuteMarketOrder fills at the candle close shifted by slippage: buys
// fill worse upward, sells worse downward.
func (p *Intrabar) ExecuteMarketOrder(_ context.Context, side domain.Side, volume decimal.Decimal,
	expected money.Money, candle domain.Candle, slippage money.Percentage) (Result, error) {

	if !volume.IsPositive() {
		return Result{}, fmt.Errorf("order volume must be positive, got %s", volume)
	}

	one := decimal.NewFromInt(1)
	var fill money.Money
	switch side {
	case domain.SideBuy:
		fill = candle.Close.Mul(one.Add(slippage.Ratio())).Round()
	case domain.SideSell:
		fill = candle.Close.Mul(one.Sub(slippage.Ratio())).Round()
	default:
		return Result{}, fmt.Errorf("unknown order side %q", side)
	}

	p.log.Debug().
		Str("side", string(side)).
		Str("fill", fill.String()).
		Str("volume", volume.String()).
		Msg("Simulated fill")

	return Result{
		Success:        true,
		Side:           side,
		ExecutedPrice:  fill,
		ExecutedVolume: volume,
		Slippage:       fill.Sub(expected),
		Timestamp:      candle.Timestamp,
	}, nil
}

var _ Port = (*Intrabar)(nil)
