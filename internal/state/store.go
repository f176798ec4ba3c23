// Package state persists daily risk accounting so process restarts never
// reset loss limits. Records are keyed by calendar date; only the trailing
// seven days are retained, which is enough to recompute the weekly P&L.
package state

import (
	"time"

	"upbit-trading-bot/internal/money"
)

// DateFormat is the ISO 8601 calendar-date key format.
const DateFormat = "2006-01-02"

// RetentionDays is how many daily records are kept. The weekly P&L is the
// sum of the last seven daily values, so nothing older is needed.
const RetentionDays = 7

// DailyRecord is one day of risk accounting.
type DailyRecord struct {
	DailyPnl       money.Percentage `json:"daily_pnl"`
	TradeCount     int              `json:"daily_trade_count"`
	LastTradeTime  *time.Time       `json:"last_trade_time"`
	WeeklyPnl      money.Percentage `json:"weekly_pnl"`
	SafeMode       bool             `json:"safe_mode"`
	SafeModeReason string           `json:"safe_mode_reason"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Store is the durable backing for risk state. Implementations must treat
// a missing or unreadable record as zero defaults, never a fatal error,
// and Save must be atomic: a crash mid-write never leaves a torn record.
type Store interface {
	// Load returns the record for a date, or the zero-value record when
	// none exists or the stored data is unreadable.
	Load(date string) (DailyRecord, error)

	// LoadWeek returns the records of the RetentionDays-day window ending
	// at (and including) the given date, oldest first. Missing days are
	// returned as zero-value records.
	LoadWeek(end time.Time) ([]DailyRecord, error)

	// Save durably stores the record for a date and prunes records older
	// than the retention window.
	Save(date string, rec DailyRecord) error
}

// WeeklyPnl sums daily P&L over a week of records.
func WeeklyPnl(week []DailyRecord) money.Percentage {
	total := money.ZeroPct()
	for _, rec := range week {
		total = total.Add(rec.DailyPnl)
	}
	return total
}

// WindowDates returns the retention window's date keys ending at end,
// oldest first.
func WindowDates(end time.Time) []string {
	dates := make([]string, 0, RetentionDays)
	for i := RetentionDays - 1; i >= 0; i-- {
		dates = append(dates, end.AddDate(0, 0, -i).Format(DateFormat))
	}
	return dates
}
