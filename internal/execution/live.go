package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/domain"
	"upbit-trading-bot/internal/money"
	"upbit-trading-bot/internal/upbit"
)

// Live routes market orders to the venue. A failed venue call is a
// Success=false result with the venue's reason; nothing is mutated and
// the caller decides whether to retry on a later cycle.
type Live struct {
	venue  upbit.Exchange
	ticker string
	log    zerolog.Logger
}

// NewLive creates the live port for one instrument.
func NewLive(venue upbit.Exchange, ticker string, log zerolog.Logger) *Live {
	return &Live{
		venue:  venue,
		ticker: ticker,
		log:    log.With().Str("component", "execution_live").Str("ticker", ticker).Logger(),
	}
}

// ExecuteMarketOrder places a market order. Buys spend expected×volume in
// KRW; sells dispose of the volume directly. The candle is the degenerate
// current-price sample, kept for contract parity with simulation.
func (p *Live) ExecuteMarketOrder(ctx context.Context, side domain.Side, volume decimal.Decimal,
	expected money.Money, _ domain.Candle, _ money.Percentage) (Result, error) {

	if !volume.IsPositive() {
		return Result{}, fmt.Errorf("order volume must be positive, got %s", volume)
	}

	var fill upbit.OrderFill
	var err error
	switch side {
	case domain.SideBuy:
		amount := expected.Mul(volume).Round()
		fill, err = p.venue.BuyMarket(ctx, p.ticker, amount)
	case domain.SideSell:
		fill, err = p.venue.SellMarket(ctx, p.ticker, volume)
	default:
		return Result{}, fmt.Errorf("unknown order side %q", side)
	}

	if err != nil {
		p.log.Warn().Err(err).Str("side", string(side)).Msg("Venue order failed")
		return Result{
			Side:      side,
			Reason:    err.Error(),
			Timestamp: time.Now().UTC(),
		}, nil
	}

	p.log.Info().
		Str("side", string(side)).
		Str("fill", fill.Price.String()).
		Str("volume", fill.Volume.String()).
		Str("fee", fill.Fee.String()).
		Msg("Order filled")

	return Result{
		Success:        true,
		Side:           side,
		ExecutedPrice:  fill.Price,
		ExecutedVolume: fill.Volume,
		Slippage:       fill.Price.Sub(expected),
		Timestamp:      fill.Timestamp,
	}, nil
}

var _ Port = (*Live)(nil)
