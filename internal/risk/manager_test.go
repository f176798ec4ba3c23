package risk

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/money"
	"upbit-trading-bot/internal/state"
)

func newManager(t *testing.T, limits Limits, store state.Store) *Manager {
	t.Helper()
	calc := newCalculator(t, limits)
	m, err := NewManager(calc, store, "KRW-BTC", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func krw(amount int64) money.Money { return money.FromInt(amount, money.KRW) }

func TestManager_FirstTradeAlwaysAllowed(t *testing.T) {
	m := newManager(t, DefaultLimits(), state.NewMemoryStore())

	ev := m.Evaluate(nil, krw(50_000_000), nil)
	if ev.Action != ActionHold || !ev.Allowed {
		t.Errorf("Expected first trade allowed, got %+v", ev)
	}
}

func TestManager_FrequencyGate(t *testing.T) {
	m := newManager(t, DefaultLimits(), state.NewMemoryStore())

	start := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return start }
	m.RecordTrade(money.ZeroPct())

	// 30 minutes later is inside the 1 hour minimum interval.
	m.now = func() time.Time { return start.Add(30 * time.Minute) }
	ev := m.Evaluate(nil, krw(50_000_000), nil)
	if ev.Allowed {
		t.Fatalf("Expected entry blocked inside the minimum interval, got %+v", ev)
	}
	if !strings.Contains(ev.Reason, "0.5 hours") {
		t.Errorf("Expected elapsed hours in the reason, got %q", ev.Reason)
	}

	// Past the interval the gate opens again.
	m.now = func() time.Time { return start.Add(2 * time.Hour) }
	ev = m.Evaluate(nil, krw(50_000_000), nil)
	if !ev.Allowed {
		t.Errorf("Expected entry allowed after the interval, got %+v", ev)
	}
}

func TestManager_DailyTradeCap(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxTradesPerDay = 2
	m := newManager(t, limits, state.NewMemoryStore())

	now := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	m.RecordTrade(money.ZeroPct())
	now = now.Add(2 * time.Hour)
	m.RecordTrade(money.ZeroPct())
	now = now.Add(2 * time.Hour)

	ev := m.Evaluate(nil, krw(50_000_000), nil)
	if ev.Allowed {
		t.Fatalf("Expected entry blocked at the daily cap, got %+v", ev)
	}
	if !strings.Contains(ev.Reason, "2/2") {
		t.Errorf("Expected cap figures in the reason, got %q", ev.Reason)
	}
}

func TestManager_CircuitBreakerEntersSafeMode(t *testing.T) {
	store := state.NewMemoryStore()
	m := newManager(t, DefaultLimits(), store)

	now := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	m.RecordTrade(money.PctFromFloat(-0.12))

	now = now.Add(2 * time.Hour)
	ev := m.Evaluate(nil, krw(50_000_000), nil)
	if ev.Allowed || ev.Action != ActionHold {
		t.Fatalf("Expected circuit breaker to block entries, got %+v", ev)
	}

	// Safe mode must be persisted, not only in memory.
	rec, err := store.Load("2026-01-02")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !rec.SafeMode || rec.SafeModeReason == "" {
		t.Errorf("Expected persisted safe mode with reason, got %+v", rec)
	}

	// Safe mode stays until lifted manually, even after the loss day.
	ev = m.Evaluate(nil, krw(50_000_000), nil)
	if ev.Allowed {
		t.Errorf("Expected safe mode to keep blocking, got %+v", ev)
	}

	// Lifting safe mode does not help while the daily loss still
	// breaches the limit: the breaker re-arms on the next cycle.
	m.DisableSafeMode()
	ev = m.Evaluate(nil, krw(50_000_000), nil)
	if ev.Allowed {
		t.Errorf("Expected breaker to re-arm on the loss day, got %+v", ev)
	}
}

func TestManager_WeeklyBreachBlocks(t *testing.T) {
	store := state.NewMemoryStore()
	// Seed six prior days of losses summing to -18%.
	for i := 1; i <= 6; i++ {
		date := time.Date(2026, 1, i, 0, 0, 0, 0, time.UTC).Format(state.DateFormat)
		if err := store.Save(date, state.DailyRecord{DailyPnl: money.PctFromFloat(-0.03)}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}

	m := newManager(t, DefaultLimits(), store)
	now := time.Date(2026, 1, 7, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	// -3% today pushes the trailing week to -21%, past the -20% limit.
	m.RecordTrade(money.PctFromFloat(-0.03))
	now = now.Add(2 * time.Hour)

	ev := m.Evaluate(nil, krw(50_000_000), nil)
	if ev.Allowed {
		t.Fatalf("Expected weekly breach to block entries, got %+v", ev)
	}
	if !strings.Contains(ev.Reason, "weekly") {
		t.Errorf("Expected weekly reason, got %q", ev.Reason)
	}
}

func TestManager_StopLossFiresUnderSafeMode(t *testing.T) {
	m := newManager(t, DefaultLimits(), state.NewMemoryStore())
	m.EnableSafeMode("manual")

	pos := openPosition(t, krw(50_000_000))
	ev := m.Evaluate(pos, krw(47_000_000), nil)
	if ev.Action != ActionStopLoss {
		t.Fatalf("Expected stop-loss exit despite safe mode, got %+v", ev)
	}
	if ev.SellRatio.Value().Cmp(decimal.NewFromInt(1)) != 0 {
		t.Errorf("Expected full exit, got ratio %s", ev.SellRatio)
	}
}

func TestManager_TakeProfitExit(t *testing.T) {
	m := newManager(t, DefaultLimits(), state.NewMemoryStore())

	pos := openPosition(t, krw(50_000_000))
	ev := m.Evaluate(pos, krw(55_000_000), nil)
	if ev.Action != ActionTakeProfit {
		t.Errorf("Expected take-profit at +10%%, got %+v", ev)
	}
}

func TestManager_ATRStopsFallBackToFixed(t *testing.T) {
	limits := DefaultLimits()
	limits.UseATRStops = true
	m := newManager(t, limits, state.NewMemoryStore())

	pos := openPosition(t, krw(50_000_000))

	// With ATR the stop sits at entry - 2*ATR = 49,000,000.
	atr := krw(500_000)
	ev := m.Evaluate(pos, krw(48_900_000), &atr)
	if ev.Action != ActionStopLoss {
		t.Errorf("Expected ATR stop-loss, got %+v", ev)
	}

	// Without ATR the fixed -5% stop applies, so 48.9M holds.
	ev = m.Evaluate(pos, krw(48_900_000), nil)
	if ev.Action != ActionHold {
		t.Errorf("Expected hold under the fixed stop, got %+v", ev)
	}
}

func TestManager_TrailingStop(t *testing.T) {
	limits := DefaultLimits()
	limits.TrailingStopEnabled = true
	m := newManager(t, limits, state.NewMemoryStore())

	pos := openPosition(t, krw(50_000_000))
	atr := krw(500_000)

	// Price runs up: high water 52M, trail 51M, no trigger.
	ev := m.Evaluate(pos, krw(52_000_000), &atr)
	if ev.Action != ActionHold {
		t.Fatalf("Expected hold at the high, got %+v", ev)
	}

	// Pullback to 50.9M is at or below the 51M trail.
	ev = m.Evaluate(pos, krw(50_900_000), &atr)
	if ev.Action != ActionTrailingStop {
		t.Fatalf("Expected trailing stop exit, got %+v", ev)
	}
	if !strings.Contains(ev.Reason, "51000000") {
		t.Errorf("Expected trailing level in the reason, got %q", ev.Reason)
	}
}

func TestManager_TrailingNeverLoosensStaticStop(t *testing.T) {
	limits := DefaultLimits()
	limits.TrailingStopEnabled = true
	m := newManager(t, limits, state.NewMemoryStore())

	pos := openPosition(t, krw(50_000_000))
	atr := krw(500_000)

	// Price drops immediately: trail would be 47M, below the 47.5M
	// static stop. The effective stop stays at 47.5M, so 48M holds.
	ev := m.Evaluate(pos, krw(48_000_000), &atr)
	if ev.Action != ActionHold {
		t.Errorf("Expected hold above the static stop, got %+v", ev)
	}
}

func TestManager_PartialTakeProfit(t *testing.T) {
	limits := DefaultLimits()
	limits.TakeProfitPct = money.PctFromFloat(0.20)
	m := newManager(t, limits, state.NewMemoryStore())

	pos := openPosition(t, krw(50_000_000))

	// +7% sits between tier 1 (5%) and tier 2 (10%): partial exit.
	ev := m.Evaluate(pos, krw(53_500_000), nil)
	if ev.Action != ActionPartialTakeProfit {
		t.Fatalf("Expected partial take-profit, got %+v", ev)
	}
	if ev.SellRatio.Value().Cmp(decimal.NewFromFloat(0.5)) != 0 {
		t.Errorf("Expected sell ratio 0.5, got %s", ev.SellRatio)
	}

	// +11% jumped past both tiers: tier 2 resolves to a full exit.
	ev = m.Evaluate(pos, krw(55_500_000), nil)
	if ev.Action != ActionTakeProfit {
		t.Fatalf("Expected tier-2 full exit, got %+v", ev)
	}
	if ev.SellRatio.Value().Cmp(decimal.NewFromInt(1)) != 0 {
		t.Errorf("Expected full exit ratio, got %s", ev.SellRatio)
	}
}

func TestManager_DayBoundaryResetsDaily(t *testing.T) {
	store := state.NewMemoryStore()
	m := newManager(t, DefaultLimits(), store)

	day1 := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return day1 }
	m.RecordTrade(money.PctFromFloat(-0.02))

	m.now = func() time.Time { return day1.AddDate(0, 0, 1) }
	ev := m.Evaluate(nil, krw(50_000_000), nil)
	if !ev.Allowed {
		t.Fatalf("Expected fresh day to allow trading, got %+v", ev)
	}

	snap := m.Snapshot()
	if !snap.DailyPnl.IsZero() || snap.TradeCount != 0 {
		t.Errorf("Expected daily fields reset at the day boundary, got %+v", snap)
	}
	if snap.WeeklyPnl.Points().String() != "-2" {
		t.Errorf("Expected weekly P&L to carry -2 points across days, got %s", snap.WeeklyPnl)
	}
}

func TestManager_FrequencyGateSpansMidnight(t *testing.T) {
	limits := DefaultLimits()
	limits.MinTradeIntervalHours = 6
	store := state.NewMemoryStore()
	m := newManager(t, limits, store)

	lateNight := time.Date(2026, 1, 2, 23, 50, 0, 0, time.UTC)
	m.now = func() time.Time { return lateNight }
	m.RecordTrade(money.ZeroPct())

	// 20 minutes later the calendar date has rolled, but the six hour
	// interval still applies.
	m.now = func() time.Time { return lateNight.Add(20 * time.Minute) }
	ev := m.Evaluate(nil, krw(50_000_000), nil)
	if ev.Allowed {
		t.Fatalf("Expected gate to hold across midnight, got %+v", ev)
	}
	if !strings.Contains(ev.Reason, "0.3 hours") {
		t.Errorf("Expected elapsed hours in the reason, got %q", ev.Reason)
	}

	// A restart inside the interval must not forget the timestamp either.
	m2 := newManager(t, limits, store)
	m2.now = func() time.Time { return lateNight.Add(20 * time.Minute) }
	ev = m2.Evaluate(nil, krw(50_000_000), nil)
	if ev.Allowed {
		t.Fatalf("Expected reloaded gate to hold across midnight, got %+v", ev)
	}

	// Past the interval the new day trades normally.
	m.now = func() time.Time { return lateNight.Add(7 * time.Hour) }
	ev = m.Evaluate(nil, krw(50_000_000), nil)
	if !ev.Allowed {
		t.Errorf("Expected entry allowed after the interval, got %+v", ev)
	}
}

// failingStore rejects every save; loads are empty.
type failingStore struct{}

func (failingStore) Load(string) (state.DailyRecord, error) { return state.DailyRecord{}, nil }
func (failingStore) LoadWeek(time.Time) ([]state.DailyRecord, error) {
	return make([]state.DailyRecord, state.RetentionDays), nil
}
func (failingStore) Save(string, state.DailyRecord) error {
	return errors.New("disk full")
}

func TestManager_PersistenceFailureKeepsMemoryAuthoritative(t *testing.T) {
	m := newManager(t, DefaultLimits(), failingStore{})

	now := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	m.RecordTrade(money.PctFromFloat(-0.02))

	snap := m.Snapshot()
	if snap.TradeCount != 1 || snap.DailyPnl.Points().String() != "-2" {
		t.Errorf("Expected in-memory state to survive a failed save, got %+v", snap)
	}

	// The frequency gate keeps working off the in-memory record.
	now = now.Add(30 * time.Minute)
	ev := m.Evaluate(nil, krw(50_000_000), nil)
	if ev.Allowed {
		t.Errorf("Expected gate to hold from in-memory state, got %+v", ev)
	}
}

func TestManager_RestartReloadsState(t *testing.T) {
	store := state.NewMemoryStore()
	m := newManager(t, DefaultLimits(), store)

	now := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	m.RecordTrade(money.PctFromFloat(-0.04))
	m.RecordTrade(money.PctFromFloat(-0.03))

	// A fresh manager over the same store sees the same counters.
	m2 := newManager(t, DefaultLimits(), store)
	m2.now = func() time.Time { return now.Add(time.Hour) }
	m2.Evaluate(nil, krw(50_000_000), nil)
	snap := m2.Snapshot()
	if snap.TradeCount != 2 {
		t.Errorf("Expected reloaded trade count 2, got %d", snap.TradeCount)
	}
	if snap.DailyPnl.Points().String() != "-7" {
		t.Errorf("Expected reloaded daily P&L -7 points, got %s", snap.DailyPnl)
	}
	if snap.WeeklyPnl.Points().String() != "-7" {
		t.Errorf("Expected recomputed weekly P&L -7 points, got %s", snap.WeeklyPnl)
	}
}
