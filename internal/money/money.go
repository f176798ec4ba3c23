// Package money provides exact monetary and percentage arithmetic.
// All amounts are decimal.Decimal so fee and P&L math never accumulates
// float rounding error. Rounding happens only at explicit rounding points.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency identifies the unit a Money amount is denominated in.
type Currency string

const (
	KRW  Currency = "KRW"
	BTC  Currency = "BTC"
	USDT Currency = "USDT"
)

// Precision returns the number of fractional digits for the currency.
func (c Currency) Precision() int32 {
	switch c {
	case KRW:
		return 0
	case BTC:
		return 8
	case USDT:
		return 2
	default:
		return 8
	}
}

// Money is an exact amount tagged with a currency. Amounts may be
// negative (used for P&L). Arithmetic between mismatched currencies is a
// programming error and panics.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// New creates a Money value from an exact decimal amount.
func New(amount decimal.Decimal, currency Currency) Money {
	return Money{amount: amount, currency: currency}
}

// FromInt creates a Money value from an integer amount.
func FromInt(amount int64, currency Currency) Money {
	return Money{amount: decimal.NewFromInt(amount), currency: currency}
}

// FromString creates a Money value from a decimal string.
func FromString(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid money amount %q: %w", amount, err)
	}
	return Money{amount: d, currency: currency}, nil
}

// FromFloat creates a Money value from a float64. Only for use at external
// API boundaries; internal arithmetic stays decimal.
func FromFloat(amount float64, currency Currency) Money {
	return Money{amount: decimal.NewFromFloat(amount), currency: currency}
}

// Zero returns the zero value of the given currency.
func Zero(currency Currency) Money {
	return Money{amount: decimal.Zero, currency: currency}
}

// Amount returns the underlying decimal amount.
func (m Money) Amount() decimal.Decimal { return m.amount }

// Currency returns the currency tag.
func (m Money) Currency() Currency { return m.currency }

// assertSameCurrency panics on mismatch. Mixing currencies is a defect in
// the caller, never a recoverable runtime condition.
func (m Money) assertSameCurrency(other Money, op string) {
	if m.currency != other.currency {
		panic(fmt.Sprintf("money: %s on mismatched currencies %s and %s", op, m.currency, other.currency))
	}
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other, "add")
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}
}

// Sub returns m - other.
func (m Money) Sub(other Money) Money {
	m.assertSameCurrency(other, "sub")
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}
}

// Neg returns -m.
func (m Money) Neg() Money {
	return Money{amount: m.amount.Neg(), currency: m.currency}
}

// Mul returns m scaled by a decimal factor.
func (m Money) Mul(factor decimal.Decimal) Money {
	return Money{amount: m.amount.Mul(factor), currency: m.currency}
}

// Div returns m divided by a decimal divisor.
func (m Money) Div(divisor decimal.Decimal) Money {
	return Money{amount: m.amount.Div(divisor), currency: m.currency}
}

// MulPct returns m scaled by a percentage (5% of 100 KRW = 5 KRW).
func (m Money) MulPct(p Percentage) Money {
	return Money{amount: m.amount.Mul(p.ratio), currency: m.currency}
}

// MulRatio returns m scaled by a [0,1] sizing ratio.
func (m Money) MulRatio(r Ratio) Money {
	return Money{amount: m.amount.Mul(r.value), currency: m.currency}
}

// Round rounds to the currency's precision. Half-up.
func (m Money) Round() Money {
	return Money{amount: m.amount.Round(m.currency.Precision()), currency: m.currency}
}

// RoundDown truncates toward zero at the currency's precision. Used when
// solving for amounts that must not exceed a budget.
func (m Money) RoundDown() Money {
	return Money{amount: m.amount.RoundDown(m.currency.Precision()), currency: m.currency}
}

// Cmp returns -1, 0 or 1 comparing m against other.
func (m Money) Cmp(other Money) int {
	m.assertSameCurrency(other, "cmp")
	return m.amount.Cmp(other.amount)
}

// LessThan reports m < other.
func (m Money) LessThan(other Money) bool { return m.Cmp(other) < 0 }

// LessThanOrEqual reports m <= other.
func (m Money) LessThanOrEqual(other Money) bool { return m.Cmp(other) <= 0 }

// GreaterThan reports m > other.
func (m Money) GreaterThan(other Money) bool { return m.Cmp(other) > 0 }

// GreaterThanOrEqual reports m >= other.
func (m Money) GreaterThanOrEqual(other Money) bool { return m.Cmp(other) >= 0 }

// Equal reports m == other (exact amount and currency).
func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool { return m.amount.IsZero() }

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool { return m.amount.IsNegative() }

// IsPositive reports whether the amount is above zero.
func (m Money) IsPositive() bool { return m.amount.IsPositive() }

// PctOf returns (m / base) as a Percentage. Used for P&L ratios.
func (m Money) PctOf(base Money) Percentage {
	m.assertSameCurrency(base, "pctOf")
	return Percentage{ratio: m.amount.Div(base.amount)}
}

// Float64 returns the amount as a float64 for display and journaling only.
func (m Money) Float64() float64 {
	f, _ := m.amount.Float64()
	return f
}

func (m Money) String() string {
	return m.amount.StringFixed(m.currency.Precision()) + " " + string(m.currency)
}
