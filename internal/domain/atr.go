package domain

import (
	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/money"
)

// ATR returns the average true range over the last period candles,
// or ok=false when there is not enough history. True range accounts for
// gaps against the previous close.
func ATR(candles []Candle, period int) (money.Money, bool) {
	if period <= 0 || len(candles) < period+1 {
		return money.Money{}, false
	}

	sum := decimal.Zero
	start := len(candles) - period
	for i := start; i < len(candles); i++ {
		c := candles[i]
		prevClose := candles[i-1].Close

		tr := c.High.Sub(c.Low).Amount()
		if gap := c.High.Sub(prevClose).Amount().Abs(); gap.GreaterThan(tr) {
			tr = gap
		}
		if gap := c.Low.Sub(prevClose).Amount().Abs(); gap.GreaterThan(tr) {
			tr = gap
		}
		sum = sum.Add(tr)
	}

	avg := sum.Div(decimal.NewFromInt(int64(period)))
	return money.New(avg, candles[0].Close.Currency()).Round(), true
}
