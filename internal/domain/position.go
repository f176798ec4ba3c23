// Package domain provides the core trading types shared across the engine:
// positions, candles, sides and advisory decisions.
package domain

import (
	"fmt"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/money"
)

// tickerPattern matches Upbit-style QUOTE-BASE tickers, e.g. "KRW-BTC".
var tickerPattern = regexp.MustCompile(`^[A-Z]{3,4}-[A-Z0-9]{2,10}$`)

// ValidateTicker rejects malformed ticker strings before any state mutation.
func ValidateTicker(ticker string) error {
	if !tickerPattern.MatchString(ticker) {
		return fmt.Errorf("malformed ticker %q, expected QUOTE-BASE format like KRW-BTC", ticker)
	}
	return nil
}

// Position is a spot holding of a single instrument. A volume of exactly
// zero means no holding. AvgEntryPrice is the single authoritative entry
// price field; there is no alternate schema.
type Position struct {
	Ticker        string
	Symbol        string
	Volume        decimal.Decimal
	AvgEntryPrice money.Money
	EntryTime     time.Time
	ClosedAt      *time.Time
}

// NewPosition opens a position on the first fill of a ticker.
func NewPosition(ticker, symbol string, volume decimal.Decimal, entryPrice money.Money, entryTime time.Time) (*Position, error) {
	if err := ValidateTicker(ticker); err != nil {
		return nil, err
	}
	if !volume.IsPositive() {
		return nil, fmt.Errorf("position volume must be positive, got %s", volume)
	}
	if !entryPrice.Amount().IsPositive() {
		return nil, fmt.Errorf("entry price must be positive, got %s", entryPrice)
	}
	return &Position{
		Ticker:        ticker,
		Symbol:        symbol,
		Volume:        volume,
		AvgEntryPrice: entryPrice,
		EntryTime:     entryTime,
	}, nil
}

// IsOpen reports whether the position still holds any volume.
func (p *Position) IsOpen() bool {
	return p != nil && p.Volume.IsPositive()
}

// Add merges a further buy into the position, recomputing the
// volume-weighted average entry price.
func (p *Position) Add(volume decimal.Decimal, price money.Money) error {
	if !volume.IsPositive() {
		return fmt.Errorf("add volume must be positive, got %s", volume)
	}
	if price.Currency() != p.AvgEntryPrice.Currency() {
		return fmt.Errorf("add price currency %s does not match position currency %s",
			price.Currency(), p.AvgEntryPrice.Currency())
	}

	oldCost := p.AvgEntryPrice.Mul(p.Volume)
	newCost := price.Mul(volume)
	total := p.Volume.Add(volume)

	p.AvgEntryPrice = oldCost.Add(newCost).Div(total)
	p.Volume = total
	return nil
}

// Reduce removes volume on a partial or full sell. The average entry
// price is unchanged; the position closes when volume reaches exactly zero.
func (p *Position) Reduce(volume decimal.Decimal, at time.Time) error {
	if !volume.IsPositive() {
		return fmt.Errorf("reduce volume must be positive, got %s", volume)
	}
	if volume.GreaterThan(p.Volume) {
		return fmt.Errorf("cannot reduce %s from position holding %s", volume, p.Volume)
	}

	p.Volume = p.Volume.Sub(volume)
	if p.Volume.IsZero() {
		closedAt := at
		p.ClosedAt = &closedAt
	}
	return nil
}

// MarketValue returns the position's value at the given price.
func (p *Position) MarketValue(current money.Money) money.Money {
	return current.Mul(p.Volume)
}

// UnrealizedPnL returns the open profit or loss at the given price.
func (p *Position) UnrealizedPnL(current money.Money) money.Money {
	return current.Sub(p.AvgEntryPrice).Mul(p.Volume)
}

// PnLPercent returns the open P&L as a percentage of the entry price.
func (p *Position) PnLPercent(current money.Money) money.Percentage {
	return current.Sub(p.AvgEntryPrice).PctOf(p.AvgEntryPrice)
}
