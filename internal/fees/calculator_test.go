package fees

import (
	"testing"

	"upbit-trading-bot/internal/money"
)

func newCalc(t *testing.T, rate float64, minimum int64) *Calculator {
	t.Helper()
	c, err := NewCalculator(money.PctFromFloat(rate), money.FromInt(minimum, money.KRW))
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	return c
}

func TestFee_Basic(t *testing.T) {
	c := newCalc(t, 0.0005, 0) // 0.05%, no floor

	tests := []struct {
		name     string
		amount   int64
		expected string
	}{
		{"round amount", 1000000, "500 KRW"},
		{"zero amount", 0, "0 KRW"},
		{"small amount rounds", 1000, "1 KRW"}, // 0.5 rounds half-up
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Fee(money.FromInt(tt.amount, money.KRW))
			if got.String() != tt.expected {
				t.Errorf("Expected fee %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestFee_Deterministic(t *testing.T) {
	c := newCalc(t, 0.0005, 0)
	amount := money.FromInt(123456789, money.KRW)

	first := c.Fee(amount)
	second := c.Fee(amount)
	if !first.Equal(second) {
		t.Errorf("Expected identical fees for identical input, got %s and %s", first, second)
	}
}

func TestFee_MinimumFloor(t *testing.T) {
	c := newCalc(t, 0.0005, 100)

	// 0.05% of 10,000 is 5 KRW, below the 100 KRW floor.
	got := c.Fee(money.FromInt(10000, money.KRW))
	if got.String() != "100 KRW" {
		t.Errorf("Expected floor fee 100 KRW, got %s", got)
	}

	// Large amount: rate fee dominates.
	got = c.Fee(money.FromInt(1000000, money.KRW))
	if got.String() != "500 KRW" {
		t.Errorf("Expected rate fee 500 KRW, got %s", got)
	}
}

func TestBuyAmount_FitsBudget(t *testing.T) {
	c := newCalc(t, 0.0005, 0)

	tests := []struct {
		name   string
		budget int64
	}{
		{"round budget", 1000000},
		{"odd budget", 999999},
		{"small budget", 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			budget := money.FromInt(tt.budget, money.KRW)
			gross := c.BuyAmount(budget)

			total := gross.Add(c.Fee(gross))
			if total.GreaterThan(budget) {
				t.Errorf("Expected gross+fee <= budget, got %s > %s", total, budget)
			}
			if gross.IsNegative() || gross.IsZero() {
				t.Errorf("Expected positive gross for budget %s, got %s", budget, gross)
			}
		})
	}
}

func TestBuyAmount_FloorDominates(t *testing.T) {
	c := newCalc(t, 0.0005, 100)

	// Rate fee on ~10,000 would be 5 KRW, so the 100 KRW floor applies:
	// gross = budget - floor.
	budget := money.FromInt(10000, money.KRW)
	gross := c.BuyAmount(budget)
	if gross.String() != "9900 KRW" {
		t.Errorf("Expected gross 9900 KRW, got %s", gross)
	}

	total := gross.Add(c.Fee(gross))
	if total.GreaterThan(budget) {
		t.Errorf("Expected gross+fee <= budget, got %s > %s", total, budget)
	}
}

func TestBuyAmount_DegenerateBudgets(t *testing.T) {
	c := newCalc(t, 0.0005, 100)

	if got := c.BuyAmount(money.Zero(money.KRW)); !got.IsZero() {
		t.Errorf("Expected zero gross for zero budget, got %s", got)
	}
	if got := c.BuyAmount(money.FromInt(50, money.KRW)); !got.IsZero() {
		t.Errorf("Expected zero gross when budget is below the fee floor, got %s", got)
	}
}

func TestSellNet(t *testing.T) {
	c := newCalc(t, 0.0005, 0)

	gross := money.FromInt(1000000, money.KRW)
	net := c.SellNet(gross)
	if net.String() != "999500 KRW" {
		t.Errorf("Expected net 999500 KRW, got %s", net)
	}
}

func TestBreakdownOf(t *testing.T) {
	c := newCalc(t, 0.0005, 0)

	b := c.BreakdownOf(money.FromInt(1000000, money.KRW))
	if !b.Gross.Equal(b.Fee.Add(b.Net)) {
		t.Errorf("Expected gross == fee + net, got %s != %s + %s", b.Gross, b.Fee, b.Net)
	}
}
