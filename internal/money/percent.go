package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Percentage is a ratio stored as an exact decimal where 0.05 means 5%.
// Signed values are allowed: stop-loss thresholds are negative,
// take-profit thresholds positive.
type Percentage struct {
	ratio decimal.Decimal
}

// NewPercentage creates a Percentage from a decimal ratio (0.05 = 5%).
func NewPercentage(ratio decimal.Decimal) Percentage {
	return Percentage{ratio: ratio}
}

// PctFromFloat creates a Percentage from a float ratio (0.05 = 5%).
func PctFromFloat(ratio float64) Percentage {
	return Percentage{ratio: decimal.NewFromFloat(ratio)}
}

// PctFromPoints creates a Percentage from percentage points (5 = 5%).
func PctFromPoints(points int64) Percentage {
	return Percentage{ratio: decimal.New(points, -2)}
}

// PctFromString creates a Percentage from a decimal ratio string.
func PctFromString(ratio string) (Percentage, error) {
	d, err := decimal.NewFromString(ratio)
	if err != nil {
		return Percentage{}, fmt.Errorf("invalid percentage %q: %w", ratio, err)
	}
	return Percentage{ratio: d}, nil
}

// ZeroPct is the zero percentage.
func ZeroPct() Percentage { return Percentage{ratio: decimal.Zero} }

// Ratio returns the underlying decimal ratio.
func (p Percentage) Ratio() decimal.Decimal { return p.ratio }

// Points returns the value in percentage points (0.05 -> 5).
func (p Percentage) Points() decimal.Decimal {
	return p.ratio.Mul(decimal.NewFromInt(100))
}

// BasisPoints returns the value in basis points (0.05 -> 500).
func (p Percentage) BasisPoints() decimal.Decimal {
	return p.ratio.Mul(decimal.NewFromInt(10000))
}

// Add returns p + other.
func (p Percentage) Add(other Percentage) Percentage {
	return Percentage{ratio: p.ratio.Add(other.ratio)}
}

// Sub returns p - other.
func (p Percentage) Sub(other Percentage) Percentage {
	return Percentage{ratio: p.ratio.Sub(other.ratio)}
}

// Neg returns -p.
func (p Percentage) Neg() Percentage {
	return Percentage{ratio: p.ratio.Neg()}
}

// Abs returns |p|.
func (p Percentage) Abs() Percentage {
	return Percentage{ratio: p.ratio.Abs()}
}

// Scale returns p multiplied by a decimal factor.
func (p Percentage) Scale(factor decimal.Decimal) Percentage {
	return Percentage{ratio: p.ratio.Mul(factor)}
}

// Of returns the percentage applied to a Money amount.
func (p Percentage) Of(m Money) Money {
	return m.MulPct(p)
}

// Cmp returns -1, 0 or 1 comparing p against other.
func (p Percentage) Cmp(other Percentage) int {
	return p.ratio.Cmp(other.ratio)
}

// LessThanOrEqual reports p <= other.
func (p Percentage) LessThanOrEqual(other Percentage) bool { return p.Cmp(other) <= 0 }

// GreaterThanOrEqual reports p >= other.
func (p Percentage) GreaterThanOrEqual(other Percentage) bool { return p.Cmp(other) >= 0 }

// IsZero reports whether the ratio is exactly zero.
func (p Percentage) IsZero() bool { return p.ratio.IsZero() }

// IsNegative reports whether the ratio is below zero.
func (p Percentage) IsNegative() bool { return p.ratio.IsNegative() }

// Float64 returns the ratio as float64 for display and journaling only.
func (p Percentage) Float64() float64 {
	f, _ := p.ratio.Float64()
	return f
}

// MarshalJSON encodes the ratio as a plain JSON number so persisted state
// stays exact and readable.
func (p Percentage) MarshalJSON() ([]byte, error) {
	return []byte(p.ratio.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and quoted decimal strings.
func (p *Percentage) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid percentage %q: %w", s, err)
	}
	p.ratio = d
	return nil
}

func (p Percentage) String() string {
	return p.Points().String() + "%"
}

// Ratio is a sizing fraction bounded to [0,1], used for partial-exit
// proportions. Constructing one outside that range is a validation error.
type Ratio struct {
	value decimal.Decimal
}

// NewRatio validates and creates a Ratio.
func NewRatio(value decimal.Decimal) (Ratio, error) {
	if value.IsNegative() || value.GreaterThan(decimal.NewFromInt(1)) {
		return Ratio{}, fmt.Errorf("ratio %s out of range [0,1]", value)
	}
	return Ratio{value: value}, nil
}

// RatioFromFloat validates and creates a Ratio from a float64.
func RatioFromFloat(value float64) (Ratio, error) {
	return NewRatio(decimal.NewFromFloat(value))
}

// MustRatio creates a Ratio and panics if out of range. For constants.
func MustRatio(value float64) Ratio {
	r, err := RatioFromFloat(value)
	if err != nil {
		panic(err)
	}
	return r
}

// Value returns the underlying decimal fraction.
func (r Ratio) Value() decimal.Decimal { return r.value }

// Complement returns 1 - r.
func (r Ratio) Complement() Ratio {
	return Ratio{value: decimal.NewFromInt(1).Sub(r.value)}
}

// IsZero reports whether the fraction is exactly zero.
func (r Ratio) IsZero() bool { return r.value.IsZero() }

func (r Ratio) String() string { return r.value.String() }
