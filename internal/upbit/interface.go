// Package upbit is the venue adapter for the Upbit KRW spot exchange:
// a REST client with JWT-signed private calls, a websocket ticker stream
// and a mock client for dry runs.
package upbit

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/domain"
	"upbit-trading-bot/internal/money"
)

// OrderFill is the settled outcome of a market order.
type OrderFill struct {
	OrderID   string
	Ticker    string
	Side      domain.Side
	Price     money.Money // volume-weighted average fill price
	Volume    decimal.Decimal
	Fee       money.Money
	Timestamp time.Time
}

// Exchange defines the venue operations the engine needs.
type Exchange interface {
	// CurrentPrice returns the last trade price for a ticker.
	CurrentPrice(ctx context.Context, ticker string) (money.Money, error)

	// Candles returns up to count minute candles of the given unit,
	// oldest first.
	Candles(ctx context.Context, ticker string, unitMinutes, count int) ([]domain.Candle, error)

	// BuyMarket spends the given KRW amount at market.
	BuyMarket(ctx context.Context, ticker string, amount money.Money) (OrderFill, error)

	// SellMarket sells the given volume at market.
	SellMarket(ctx context.Context, ticker string, volume decimal.Decimal) (OrderFill, error)

	// Balance returns the available balance of a currency.
	Balance(ctx context.Context, currency money.Currency) (money.Money, error)
}

var _ Exchange = (*Client)(nil)
var _ Exchange = (*MockClient)(nil)
