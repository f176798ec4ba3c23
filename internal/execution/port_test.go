package execution

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/domain"
	"upbit-trading-bot/internal/money"
	"upbit-trading-bot/internal/upbit"
)

func krw(amount int64) money.Money { return money.FromInt(amount, money.KRW) }

func candle(open, high, low, close int64) domain.Candle {
	return domain.Candle{
		Timestamp: time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC),
		Open:      krw(open),
		High:      krw(high),
		Low:       krw(low),
		Close:     krw(close),
		Volume:    decimal.NewFromInt(1),
	}
}

func TestTriggerRules(t *testing.T) {
	stop := krw(47_500_000)
	tp := krw(55_000_000)

	tests := []struct {
		name    string
		candle  domain.Candle
		slHit   bool
		tpHit   bool
	}{
		{"quiet candle", candle(50_000_000, 51_000_000, 49_000_000, 50_500_000), false, false},
		{"low touches stop", candle(48_000_000, 48_500_000, 47_500_000, 48_200_000), true, false},
		{"high touches tp", candle(54_000_000, 55_000_000, 53_500_000, 54_800_000), false, true},
		{"wide candle hits both", candle(50_000_000, 55_500_000, 47_000_000, 51_000_000), true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StopLossTriggered(stop, tt.candle); got != tt.slHit {
				t.Errorf("StopLossTriggered = %v, want %v", got, tt.slHit)
			}
			if got := TakeProfitTriggered(tp, tt.candle); got != tt.tpHit {
				t.Errorf("TakeProfitTriggered = %v, want %v", got, tt.tpHit)
			}
		})
	}
}

func TestExitPriority_BothTriggeredResolvesToStopLoss(t *testing.T) {
	stop := krw(47_500_000)
	tp := krw(55_000_000)
	wide := candle(50_000_000, 55_500_000, 47_000_000, 51_000_000)

	if got := ExitPriority(stop, tp, wide); got != ExitStopLoss {
		t.Errorf("Expected STOP_LOSS priority on an ambiguous candle, got %s", got)
	}

	tpOnly := candle(54_000_000, 55_500_000, 53_000_000, 55_000_000)
	if got := ExitPriority(stop, tp, tpOnly); got != ExitTakeProfit {
		t.Errorf("Expected TAKE_PROFIT, got %s", got)
	}

	quiet := candle(50_000_000, 51_000_000, 49_000_000, 50_500_000)
	if got := ExitPriority(stop, tp, quiet); got != ExitNone {
		t.Errorf("Expected no exit, got %s", got)
	}
}

func TestGapPricing(t *testing.T) {
	stop := krw(47_500_000)
	tp := krw(55_000_000)

	// Gap-down: the open is already below the stop, so the fill takes the
	// worse open price.
	gapDown := candle(46_000_000, 46_500_000, 45_000_000, 45_500_000)
	if got := StopLossExecutionPrice(stop, gapDown); !got.Equal(krw(46_000_000)) {
		t.Errorf("Expected gap-down fill at the open, got %s", got)
	}

	// Normal touch fills at the stop level.
	touch := candle(48_000_000, 48_500_000, 47_400_000, 47_800_000)
	if got := StopLossExecutionPrice(stop, touch); !got.Equal(stop) {
		t.Errorf("Expected fill at the stop, got %s", got)
	}

	// Gap-up: the open above the take-profit is a better fill.
	gapUp := candle(56_000_000, 57_000_000, 55_500_000, 56_500_000)
	if got := TakeProfitExecutionPrice(tp, gapUp); !got.Equal(krw(56_000_000)) {
		t.Errorf("Expected gap-up fill at the open, got %s", got)
	}

	if got := TakeProfitExecutionPrice(tp, candle(54_000_000, 55_200_000, 53_000_000, 55_000_000)); !got.Equal(tp) {
		t.Errorf("Expected fill at the take-profit, got %s", got)
	}
}

func TestIntrabar_SlippageDirections(t *testing.T) {
	port := NewIntrabar(zerolog.Nop())
	ctx := context.Background()
	bar := candle(50_000_000, 51_000_000, 49_000_000, 50_000_000)
	slip := money.PctFromFloat(0.001)
	volume := decimal.NewFromFloat(0.01)

	buy, err := port.ExecuteMarketOrder(ctx, domain.SideBuy, volume, krw(50_000_000), bar, slip)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !buy.ExecutedPrice.Equal(krw(50_050_000)) {
		t.Errorf("Expected buy fill 50050000 KRW, got %s", buy.ExecutedPrice)
	}
	if !buy.Slippage.Equal(krw(50_000)) {
		t.Errorf("Expected slippage +50000 KRW, got %s", buy.Slippage)
	}

	sell, err := port.ExecuteMarketOrder(ctx, domain.SideSell, volume, krw(50_000_000), bar, slip)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if !sell.ExecutedPrice.Equal(krw(49_950_000)) {
		t.Errorf("Expected sell fill 49950000 KRW, got %s", sell.ExecutedPrice)
	}

	// Identical inputs give identical fills.
	again, _ := port.ExecuteMarketOrder(ctx, domain.SideBuy, volume, krw(50_000_000), bar, slip)
	if !again.ExecutedPrice.Equal(buy.ExecutedPrice) {
		t.Errorf("Expected deterministic fills, got %s then %s", buy.ExecutedPrice, again.ExecutedPrice)
	}

	if _, err := port.ExecuteMarketOrder(ctx, domain.SideBuy, decimal.Zero, krw(50_000_000), bar, slip); err == nil {
		t.Error("Expected error for zero volume")
	}
}

func TestLive_FillsAndVenueFailure(t *testing.T) {
	mock := upbit.NewMockClient(krw(1_000_000), money.PctFromFloat(0.0005))
	mock.SetPrice("KRW-BTC", krw(50_000_000))
	port := NewLive(mock, "KRW-BTC", zerolog.Nop())
	ctx := context.Background()
	sample := domain.CandleFromPrice(krw(50_000_000), time.Now())

	res, err := port.ExecuteMarketOrder(ctx, domain.SideBuy, decimal.NewFromFloat(0.01),
		krw(50_000_000), sample, money.ZeroPct())
	if err != nil {
		t.Fatalf("ExecuteMarketOrder: %v", err)
	}
	if !res.Success || !res.ExecutedVolume.IsPositive() {
		t.Errorf("Expected successful fill, got %+v", res)
	}

	// An unknown ticker fails at the venue: success=false, no error.
	badPort := NewLive(mock, "KRW-XRP", zerolog.Nop())
	res, err = badPort.ExecuteMarketOrder(ctx, domain.SideBuy, decimal.NewFromFloat(0.01),
		krw(1_000), sample, money.ZeroPct())
	if err != nil {
		t.Fatalf("Expected venue failure as a result, got error %v", err)
	}
	if res.Success || res.Reason == "" {
		t.Errorf("Expected failed result with reason, got %+v", res)
	}
}
