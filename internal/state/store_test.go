package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"upbit-trading-bot/internal/money"
)

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewFileStore(filepath.Join(dir, "risk_state.json"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	return s
}

func TestFileStore_LoadMissingYieldsDefaults(t *testing.T) {
	s := newFileStore(t)

	rec, err := s.Load("2026-01-02")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !rec.DailyPnl.IsZero() || rec.TradeCount != 0 || rec.SafeMode {
		t.Errorf("Expected zero defaults, got %+v", rec)
	}
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	s := newFileStore(t)

	now := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	rec := DailyRecord{
		DailyPnl:       money.PctFromFloat(-0.021),
		TradeCount:     3,
		LastTradeTime:  &now,
		WeeklyPnl:      money.PctFromFloat(-0.04),
		SafeMode:       true,
		SafeModeReason: "daily loss limit breached",
		UpdatedAt:      now,
	}

	if err := s.Save("2026-01-02", rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load("2026-01-02")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.DailyPnl.Cmp(rec.DailyPnl) != 0 {
		t.Errorf("Expected daily pnl %s, got %s", rec.DailyPnl, got.DailyPnl)
	}
	if got.TradeCount != 3 || !got.SafeMode || got.SafeModeReason != rec.SafeModeReason {
		t.Errorf("Record did not round-trip: %+v", got)
	}
	if got.LastTradeTime == nil || !got.LastTradeTime.Equal(now) {
		t.Errorf("Expected last trade time %v, got %v", now, got.LastTradeTime)
	}
}

func TestFileStore_CorruptedFileYieldsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "risk_state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := NewFileStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	rec, err := s.Load("2026-01-02")
	if err != nil {
		t.Fatalf("Expected corrupted store to load defaults, got error: %v", err)
	}
	if !rec.DailyPnl.IsZero() {
		t.Errorf("Expected zero defaults from corrupted store, got %+v", rec)
	}
}

func TestFileStore_PrunesOldRecords(t *testing.T) {
	s := newFileStore(t)

	old := DailyRecord{DailyPnl: money.PctFromFloat(-0.01)}
	if err := s.Save("2026-01-01", old); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Saving 10 days later should prune the old record.
	if err := s.Save("2026-01-11", DailyRecord{TradeCount: 2}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, _ := s.Load("2026-01-01")
	if !got.DailyPnl.IsZero() {
		t.Errorf("Expected pruned record to load as defaults, got %+v", got)
	}

	// A record inside the window survives the next save.
	if err := s.Save("2026-01-12", DailyRecord{DailyPnl: money.PctFromFloat(-0.02)}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	kept, _ := s.Load("2026-01-11")
	if kept.TradeCount != 2 {
		t.Errorf("Expected in-window record kept with trade count 2, got %+v", kept)
	}
}

func TestFileStore_RestartRecomputesWeekly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "risk_state.json")
	s, err := NewFileStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	end := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	dailies := []float64{-0.01, 0.02, -0.03, 0, 0.01, -0.02, -0.01}
	for i, pnl := range dailies {
		date := end.AddDate(0, 0, i-6).Format(DateFormat)
		if err := s.Save(date, DailyRecord{DailyPnl: money.PctFromFloat(pnl)}); err != nil {
			t.Fatalf("Save(%s): %v", date, err)
		}
	}

	week, err := s.LoadWeek(end)
	if err != nil {
		t.Fatalf("LoadWeek: %v", err)
	}
	before := WeeklyPnl(week)

	// Simulate a restart: a fresh store over the same file.
	reloaded, err := NewFileStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewFileStore after restart: %v", err)
	}
	week2, err := reloaded.LoadWeek(end)
	if err != nil {
		t.Fatalf("LoadWeek after restart: %v", err)
	}
	after := WeeklyPnl(week2)

	if before.Cmp(after) != 0 {
		t.Errorf("Expected weekly P&L %s to survive restart, got %s", before, after)
	}
	if after.Points().String() != "-4" {
		t.Errorf("Expected weekly P&L -4 points, got %s", after.Points())
	}
}

func TestWindowDates(t *testing.T) {
	end := time.Date(2026, 1, 8, 12, 0, 0, 0, time.UTC)
	dates := WindowDates(end)

	if len(dates) != RetentionDays {
		t.Fatalf("Expected %d dates, got %d", RetentionDays, len(dates))
	}
	if dates[0] != "2026-01-02" || dates[6] != "2026-01-08" {
		t.Errorf("Expected window 2026-01-02..2026-01-08, got %s..%s", dates[0], dates[6])
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()

	rec := DailyRecord{DailyPnl: money.PctFromFloat(-0.05), TradeCount: 1}
	if err := s.Save("2026-01-02", rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, _ := s.Load("2026-01-02")
	if got.TradeCount != 1 {
		t.Errorf("Expected trade count 1, got %d", got.TradeCount)
	}

	missing, _ := s.Load("2026-01-03")
	if missing.TradeCount != 0 || !missing.DailyPnl.IsZero() {
		t.Errorf("Expected defaults for missing date, got %+v", missing)
	}
}
