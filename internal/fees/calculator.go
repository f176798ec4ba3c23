// Package fees converts gross trade amounts into {gross, fee, net}
// breakdowns using a rate-based fee with an optional minimum.
package fees

import (
	"fmt"

	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/money"
)

// Calculator computes trading fees. It is stateless and deterministic:
// the same amount always yields the same fee.
type Calculator struct {
	rate    money.Percentage
	minimum money.Money
}

// Breakdown is the audit view of a single fee application.
type Breakdown struct {
	Gross money.Money
	Fee   money.Money
	Net   money.Money
}

// NewCalculator creates a fee calculator. minimum may be the zero value of
// the traded currency when the venue has no fee floor.
func NewCalculator(rate money.Percentage, minimum money.Money) (*Calculator, error) {
	if rate.IsNegative() {
		return nil, fmt.Errorf("fee rate must not be negative, got %s", rate)
	}
	if minimum.IsNegative() {
		return nil, fmt.Errorf("minimum fee must not be negative, got %s", minimum)
	}
	return &Calculator{rate: rate, minimum: minimum}, nil
}

// Rate returns the configured fee rate.
func (c *Calculator) Rate() money.Percentage { return c.rate }

// Fee returns the fee for a gross amount: amount x rate, floored at the
// minimum fee, rounded to currency precision. Fee(0) == 0.
func (c *Calculator) Fee(amount money.Money) money.Money {
	if amount.IsZero() {
		return money.Zero(amount.Currency())
	}

	fee := amount.MulPct(c.rate)
	if fee.LessThan(c.minimum) {
		fee = c.minimum
	}
	return fee.Round()
}

// BuyAmount solves for the largest gross amount such that
// gross + Fee(gross) <= budget. When the minimum fee dominates the
// rate-based fee, the floor is subtracted from the budget directly.
func (c *Calculator) BuyAmount(budget money.Money) money.Money {
	if budget.IsZero() || budget.IsNegative() {
		return money.Zero(budget.Currency())
	}

	one := decimal.NewFromInt(1)
	gross := budget.Div(one.Add(c.rate.Ratio())).RoundDown()

	// If the rate-based fee on that gross would fall under the floor, the
	// floor applies instead and the gross is simply budget minus floor.
	if gross.MulPct(c.rate).Round().LessThan(c.minimum) {
		gross = budget.Sub(c.minimum).RoundDown()
		if gross.IsNegative() {
			return money.Zero(budget.Currency())
		}
	}
	return gross
}

// SellNet returns the proceeds of selling a gross amount after fees.
func (c *Calculator) SellNet(gross money.Money) money.Money {
	return gross.Sub(c.Fee(gross))
}

// BreakdownOf returns the {gross, fee, net} decomposition of a gross amount.
func (c *Calculator) BreakdownOf(gross money.Money) Breakdown {
	fee := c.Fee(gross)
	return Breakdown{
		Gross: gross,
		Fee:   fee,
		Net:   gross.Sub(fee),
	}
}
