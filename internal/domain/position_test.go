package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/money"
)

func TestValidateTicker(t *testing.T) {
	tests := []struct {
		ticker  string
		wantErr bool
	}{
		{"KRW-BTC", false},
		{"KRW-ETH", false},
		{"USDT-DOGE", false},
		{"krw-btc", true},
		{"BTC", true},
		{"KRW-", true},
		{"", true},
	}

	for _, tt := range tests {
		err := ValidateTicker(tt.ticker)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateTicker(%q): expected error=%v, got %v", tt.ticker, tt.wantErr, err)
		}
	}
}

func TestPosition_AddRecomputesAverage(t *testing.T) {
	pos, err := NewPosition("KRW-BTC", "BTC", decimal.NewFromFloat(0.1),
		money.FromInt(50000000, money.KRW), time.Now())
	if err != nil {
		t.Fatalf("NewPosition: %v", err)
	}

	// Buy 0.1 more at 60,000,000: average should be 55,000,000.
	if err := pos.Add(decimal.NewFromFloat(0.1), money.FromInt(60000000, money.KRW)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if pos.AvgEntryPrice.Amount().String() != "55000000" {
		t.Errorf("Expected average 55000000, got %s", pos.AvgEntryPrice.Amount())
	}
	if pos.Volume.String() != "0.2" {
		t.Errorf("Expected volume 0.2, got %s", pos.Volume)
	}
}

func TestPosition_ReduceKeepsAverage(t *testing.T) {
	pos, _ := NewPosition("KRW-BTC", "BTC", decimal.NewFromFloat(0.2),
		money.FromInt(55000000, money.KRW), time.Now())

	if err := pos.Reduce(decimal.NewFromFloat(0.1), time.Now()); err != nil {
		t.Fatalf("Reduce: %v", err)
	}

	if pos.AvgEntryPrice.Amount().String() != "55000000" {
		t.Errorf("Expected average unchanged at 55000000, got %s", pos.AvgEntryPrice.Amount())
	}
	if !pos.IsOpen() {
		t.Error("Expected position to remain open after partial reduce")
	}
}

func TestPosition_ClosesAtExactlyZero(t *testing.T) {
	pos, _ := NewPosition("KRW-BTC", "BTC", decimal.NewFromFloat(0.2),
		money.FromInt(55000000, money.KRW), time.Now())

	if err := pos.Reduce(decimal.NewFromFloat(0.2), time.Now()); err != nil {
		t.Fatalf("Reduce: %v", err)
	}

	if pos.IsOpen() {
		t.Error("Expected position closed at zero volume")
	}
	if pos.ClosedAt == nil {
		t.Error("Expected ClosedAt to be set on close")
	}
}

func TestNewPosition_RejectsInvalidInputs(t *testing.T) {
	now := time.Now()

	if _, err := NewPosition("KRW-BTC", "BTC", decimal.Zero,
		money.FromInt(50000000, money.KRW), now); err == nil {
		t.Error("Expected error for zero volume")
	}
	if _, err := NewPosition("KRW-BTC", "BTC", decimal.NewFromFloat(0.1),
		money.FromInt(0, money.KRW), now); err == nil {
		t.Error("Expected error for zero entry price")
	}
	if _, err := NewPosition("KRW-BTC", "BTC", decimal.NewFromFloat(0.1),
		money.FromInt(-1000, money.KRW), now); err == nil {
		t.Error("Expected error for negative entry price")
	}
}

func TestPosition_ReduceOverVolume(t *testing.T) {
	pos, _ := NewPosition("KRW-BTC", "BTC", decimal.NewFromFloat(0.1),
		money.FromInt(50000000, money.KRW), time.Now())

	if err := pos.Reduce(decimal.NewFromFloat(0.2), time.Now()); err == nil {
		t.Error("Expected error reducing more than held volume")
	}
}

func TestPosition_PnL(t *testing.T) {
	pos, _ := NewPosition("KRW-BTC", "BTC", decimal.NewFromFloat(0.1),
		money.FromInt(50000000, money.KRW), time.Now())

	current := money.FromInt(47500000, money.KRW)

	pnl := pos.UnrealizedPnL(current)
	if pnl.Amount().String() != "-250000" {
		t.Errorf("Expected unrealized P&L -250000, got %s", pnl.Amount())
	}

	pct := pos.PnLPercent(current)
	if pct.Points().String() != "-5" {
		t.Errorf("Expected P&L -5 points, got %s", pct.Points())
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		raw      string
		expected Decision
		wantErr  bool
	}{
		{"BUY", DecisionBuy, false},
		{"sell", DecisionSell, false},
		{" Hold ", DecisionHold, false},
		{"LONG", DecisionHold, true},
		{"", DecisionHold, true},
	}

	for _, tt := range tests {
		got, err := ParseDecision(tt.raw)
		if got != tt.expected {
			t.Errorf("ParseDecision(%q): expected %s, got %s", tt.raw, tt.expected, got)
		}
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDecision(%q): expected error=%v, got %v", tt.raw, tt.wantErr, err)
		}
	}
}
