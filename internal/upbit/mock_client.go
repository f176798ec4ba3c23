package upbit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/domain"
	"upbit-trading-bot/internal/money"
)

// MockClient simulates the exchange for dry runs and tests: fills are
// immediate at the posted price, balances are virtual and deterministic.
type MockClient struct {
	mu       sync.RWMutex
	prices   map[string]money.Money
	balances map[money.Currency]decimal.Decimal
	feeRate  money.Percentage
	fills    []OrderFill
}

// NewMockClient creates a mock exchange seeded with a KRW balance.
func NewMockClient(seed money.Money, feeRate money.Percentage) *MockClient {
	return &MockClient{
		prices: map[string]money.Money{
			"KRW-BTC": money.FromInt(50_000_000, money.KRW),
			"KRW-ETH": money.FromInt(3_500_000, money.KRW),
		},
		balances: map[money.Currency]decimal.Decimal{
			money.KRW: seed.Amount(),
		},
		feeRate: feeRate,
	}
}

// SetPrice posts the current price for a ticker.
func (mc *MockClient) SetPrice(ticker string, price money.Money) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.prices[ticker] = price
}

// Fills returns every simulated fill so far.
func (mc *MockClient) Fills() []OrderFill {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	out := make([]OrderFill, len(mc.fills))
	copy(out, mc.fills)
	return out
}

// CurrentPrice returns the posted price for a ticker.
func (mc *MockClient) CurrentPrice(_ context.Context, ticker string) (money.Money, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	price, ok := mc.prices[ticker]
	if !ok {
		return money.Money{}, fmt.Errorf("no price posted for %s", ticker)
	}
	return price, nil
}

// Candles synthesizes flat candles at the posted price.
func (mc *MockClient) Candles(ctx context.Context, ticker string, unitMinutes, count int) ([]domain.Candle, error) {
	price, err := mc.CurrentPrice(ctx, ticker)
	if err != nil {
		return nil, err
	}
	candles := make([]domain.Candle, 0, count)
	now := time.Now().UTC().Truncate(time.Duration(unitMinutes) * time.Minute)
	for i := count - 1; i >= 0; i-- {
		at := now.Add(-time.Duration(i*unitMinutes) * time.Minute)
		candles = append(candles, domain.CandleFromPrice(price, at))
	}
	return candles, nil
}

func baseCurrency(ticker string) money.Currency {
	for i := 0; i < len(ticker); i++ {
		if ticker[i] == '-' {
			return money.Currency(ticker[i+1:])
		}
	}
	return money.Currency(ticker)
}

// BuyMarket spends the KRW amount at the posted price. The fee is taken
// from the spend, mirroring how the venue settles ord_type=price orders.
func (mc *MockClient) BuyMarket(ctx context.Context, ticker string, amount money.Money) (OrderFill, error) {
	price, err := mc.CurrentPrice(ctx, ticker)
	if err != nil {
		return OrderFill{}, err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.balances[money.KRW].LessThan(amount.Amount()) {
		return OrderFill{}, fmt.Errorf("insufficient KRW balance: need %s, have %s",
			amount.Amount(), mc.balances[money.KRW])
	}

	fee := amount.MulPct(mc.feeRate).Round()
	net := amount.Sub(fee)
	volume := net.Amount().Div(price.Amount())

	base := baseCurrency(ticker)
	mc.balances[money.KRW] = mc.balances[money.KRW].Sub(amount.Amount())
	mc.balances[base] = mc.balances[base].Add(volume)

	fill := OrderFill{
		OrderID:   uuid.NewString(),
		Ticker:    ticker,
		Side:      domain.SideBuy,
		Price:     price,
		Volume:    volume,
		Fee:       fee,
		Timestamp: time.Now().UTC(),
	}
	mc.fills = append(mc.fills, fill)
	return fill, nil
}

// SellMarket sells the volume at the posted price; the fee comes out of
// the KRW proceeds.
func (mc *MockClient) SellMarket(ctx context.Context, ticker string, volume decimal.Decimal) (OrderFill, error) {
	price, err := mc.CurrentPrice(ctx, ticker)
	if err != nil {
		return OrderFill{}, err
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	base := baseCurrency(ticker)
	if mc.balances[base].LessThan(volume) {
		return OrderFill{}, fmt.Errorf("insufficient %s balance: need %s, have %s",
			base, volume, mc.balances[base])
	}

	gross := price.Mul(volume)
	fee := gross.MulPct(mc.feeRate).Round()
	net := gross.Sub(fee)

	mc.balances[base] = mc.balances[base].Sub(volume)
	mc.balances[money.KRW] = mc.balances[money.KRW].Add(net.Amount())

	fill := OrderFill{
		OrderID:   uuid.NewString(),
		Ticker:    ticker,
		Side:      domain.SideSell,
		Price:     price,
		Volume:    volume,
		Fee:       fee,
		Timestamp: time.Now().UTC(),
	}
	mc.fills = append(mc.fills, fill)
	return fill, nil
}

// Balance returns the virtual balance of a currency.
func (mc *MockClient) Balance(_ context.Context, currency money.Currency) (money.Money, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return money.New(mc.balances[currency], currency), nil
}
