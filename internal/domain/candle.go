package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/money"
)

// Candle is one OHLC bar, the unit of replay for simulated execution.
type Candle struct {
	Timestamp time.Time
	Open      money.Money
	High      money.Money
	Low       money.Money
	Close     money.Money
	Volume    decimal.Decimal
}

// CandleFromPrice builds the degenerate candle used by live execution:
// a single current-price sample with open=high=low=close.
func CandleFromPrice(price money.Money, at time.Time) Candle {
	return Candle{
		Timestamp: at,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
	}
}
