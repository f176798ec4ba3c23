package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/domain"
	"upbit-trading-bot/internal/money"
	"upbit-trading-bot/internal/state"
)

// Action is the outcome of a risk evaluation cycle.
type Action string

const (
	ActionHold              Action = "HOLD"
	ActionStopLoss          Action = "STOP_LOSS"
	ActionTakeProfit        Action = "TAKE_PROFIT"
	ActionTrailingStop      Action = "TRAILING_STOP"
	ActionPartialTakeProfit Action = "PARTIAL_TAKE_PROFIT"
)

// IsExit reports whether the action closes or reduces the position.
func (a Action) IsExit() bool {
	return a == ActionStopLoss || a == ActionTakeProfit ||
		a == ActionTrailingStop || a == ActionPartialTakeProfit
}

// fullExit sells the entire position.
var fullExit = money.MustRatio(1)

// Evaluation is the result of one Manager.Evaluate cycle. Allowed refers
// to new entries only: an exit Action is always actionable regardless of
// the circuit breaker or frequency gate.
type Evaluation struct {
	Action    Action
	Allowed   bool
	SellRatio money.Ratio
	Reason    string
}

// Snapshot is a read-only view of the manager's current risk state,
// served by the status API.
type Snapshot struct {
	Ticker         string           `json:"ticker"`
	Date           string           `json:"date"`
	DailyPnl       money.Percentage `json:"daily_pnl"`
	WeeklyPnl      money.Percentage `json:"weekly_pnl"`
	TradeCount     int              `json:"daily_trade_count"`
	LastTradeTime  *time.Time       `json:"last_trade_time"`
	SafeMode       bool             `json:"safe_mode"`
	SafeModeReason string           `json:"safe_mode_reason"`
	HighWater      *money.Money     `json:"-"`
}

// Manager is the stateful risk orchestrator for one instrument. It owns
// the daily and weekly loss accounting, the safe-mode flag and the
// trailing-stop high-water mark, and persists its counters through a
// state.Store so restarts never reset risk accounting. One Manager per
// instrument; instances are never shared across instruments.
type Manager struct {
	calc   *Calculator
	store  state.Store
	ticker string
	log    zerolog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	day       string
	daily     state.DailyRecord
	weekly    money.Percentage
	highWater *money.Money
	// lastTrade is the most recent trade time across all days, so the
	// minimum-interval gate keeps holding when the calendar date rolls.
	lastTrade *time.Time
}

// NewManager builds a manager for one ticker, loading today's record and
// recomputing the trailing weekly P&L from the store.
func NewManager(calc *Calculator, store state.Store, ticker string, log zerolog.Logger) (*Manager, error) {
	if err := domain.ValidateTicker(ticker); err != nil {
		return nil, err
	}
	m := &Manager{
		calc:   calc,
		store:  store,
		ticker: ticker,
		log:    log.With().Str("component", "risk_manager").Str("ticker", ticker).Logger(),
		now:    time.Now,
	}
	m.mu.Lock()
	m.rollDayLocked(m.now())
	m.mu.Unlock()
	return m, nil
}

// rollDayLocked reloads state when the calendar date changes. Daily fields
// reset to the stored record for the new date (zero defaults when absent)
// and the weekly P&L is recomputed as the trailing 7-day sum.
func (m *Manager) rollDayLocked(now time.Time) {
	date := now.Format(state.DateFormat)
	if date == m.day {
		return
	}

	rec, err := m.store.Load(date)
	if err != nil {
		m.log.Warn().Err(err).Str("date", date).Msg("Failed to load risk state, starting from defaults")
		rec = state.DailyRecord{}
	}
	week, err := m.store.LoadWeek(now)
	if err != nil {
		m.log.Warn().Err(err).Msg("Failed to load weekly history, using today only")
		week = []state.DailyRecord{rec}
	}

	m.day = date
	m.daily = rec
	m.weekly = state.WeeklyPnl(week)

	// The new day's record has no trade timestamp yet; fall back to the
	// newest one in the weekly window so midnight never reopens the gate.
	last := rec.LastTradeTime
	if last == nil {
		for i := len(week) - 1; i >= 0; i-- {
			if week[i].LastTradeTime != nil {
				last = week[i].LastTradeTime
				break
			}
		}
	}
	if last != nil && (m.lastTrade == nil || last.After(*m.lastTrade)) {
		m.lastTrade = last
	}
	m.log.Info().
		Str("date", date).
		Str("daily_pnl", m.daily.DailyPnl.String()).
		Str("weekly_pnl", m.weekly.String()).
		Int("trades", m.daily.TradeCount).
		Bool("safe_mode", m.daily.SafeMode).
		Msg("Risk state loaded")
}

// persistLocked saves the current record. A write failure is logged and
// the in-memory state stays authoritative; the durable copy catches up on
// the next successful save.
func (m *Manager) persistLocked(now time.Time) {
	m.daily.WeeklyPnl = m.weekly
	m.daily.UpdatedAt = now
	if err := m.store.Save(m.day, m.daily); err != nil {
		m.log.Error().Err(err).Str("date", m.day).Msg("Failed to persist risk state, in-memory state remains authoritative")
	}
}

// exitLevels returns the stop-loss and take-profit prices for a position,
// using ATR-based levels when enabled and ATR is available, else the
// fixed-percentage levels.
func (m *Manager) exitLevels(pos *domain.Position, atr *money.Money) (stop, tp money.Money) {
	if m.calc.limits.UseATRStops && atr != nil {
		return m.calc.ATRStopLossPrice(pos.AvgEntryPrice, *atr),
			m.calc.ATRTakeProfitPrice(pos.AvgEntryPrice, *atr)
	}
	return m.calc.StopLossPrice(pos.AvgEntryPrice), m.calc.TakeProfitPrice(pos.AvgEntryPrice)
}

// Evaluate runs one risk cycle against the current position and price.
// Checks run in strict order, first match wins: position exit limits,
// circuit breaker, frequency gate, trailing stop, partial take-profit.
// Exit actions are returned before the circuit breaker is consulted, so a
// stop-loss fires even under an active safe-mode block.
func (m *Manager) Evaluate(pos *domain.Position, current money.Money, atr *money.Money) Evaluation {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.rollDayLocked(now)

	if !pos.IsOpen() {
		m.highWater = nil
	}

	// 1. Position exit limits.
	if pos.IsOpen() {
		stop, tp := m.exitLevels(pos, atr)
		if current.LessThanOrEqual(stop) {
			m.highWater = nil
			return Evaluation{
				Action:    ActionStopLoss,
				Allowed:   true,
				SellRatio: fullExit,
				Reason:    fmt.Sprintf("price %s at or below stop-loss %s", current, stop),
			}
		}
		if current.GreaterThanOrEqual(tp) {
			m.highWater = nil
			return Evaluation{
				Action:    ActionTakeProfit,
				Allowed:   true,
				SellRatio: fullExit,
				Reason:    fmt.Sprintf("price %s at or above take-profit %s", current, tp),
			}
		}
	}

	// 2. Circuit breaker.
	if m.daily.SafeMode {
		return Evaluation{
			Action: ActionHold,
			Reason: "safe mode active: " + m.daily.SafeModeReason,
		}
	}
	if m.daily.DailyPnl.LessThanOrEqual(m.calc.limits.DailyLossLimitPct) {
		reason := fmt.Sprintf("daily P&L %s breached loss limit %s", m.daily.DailyPnl, m.calc.limits.DailyLossLimitPct)
		m.enableSafeModeLocked(reason, now)
		return Evaluation{Action: ActionHold, Reason: reason}
	}
	if m.weekly.LessThanOrEqual(m.calc.limits.WeeklyLossLimitPct) {
		reason := fmt.Sprintf("weekly P&L %s breached loss limit %s", m.weekly, m.calc.limits.WeeklyLossLimitPct)
		m.enableSafeModeLocked(reason, now)
		return Evaluation{Action: ActionHold, Reason: reason}
	}

	// 3. Frequency gate. The first trade ever is always allowed.
	if m.lastTrade != nil {
		elapsed := now.Sub(*m.lastTrade).Hours()
		if elapsed < m.calc.limits.MinTradeIntervalHours {
			return Evaluation{
				Action: ActionHold,
				Reason: fmt.Sprintf("last trade %.1f hours ago, minimum interval is %.1f hours",
					elapsed, m.calc.limits.MinTradeIntervalHours),
			}
		}
		if m.daily.TradeCount >= m.calc.limits.MaxTradesPerDay {
			return Evaluation{
				Action: ActionHold,
				Reason: fmt.Sprintf("daily trade cap reached (%d/%d)", m.daily.TradeCount, m.calc.limits.MaxTradesPerDay),
			}
		}
	}

	// 4. Trailing stop. The effective stop is the tighter of the static
	// stop and the high-water trail, so trailing can only raise the exit.
	if m.calc.limits.TrailingStopEnabled && pos.IsOpen() && atr != nil {
		if m.highWater == nil || current.GreaterThan(*m.highWater) {
			hw := current
			m.highWater = &hw
		}
		trail := m.highWater.Sub(atr.Mul(decimal.NewFromFloat(m.calc.limits.TrailingATRMultiplier))).Round()
		effective := m.calc.StopLossPrice(pos.AvgEntryPrice)
		if trail.GreaterThan(effective) {
			effective = trail
		}
		if current.LessThanOrEqual(effective) {
			hw := *m.highWater
			m.highWater = nil
			return Evaluation{
				Action:    ActionTrailingStop,
				Allowed:   true,
				SellRatio: fullExit,
				Reason:    fmt.Sprintf("price %s fell to trailing stop %s (high water %s)", current, effective, hw),
			}
		}
	}

	// 5. Partial take-profit, tiers high to low so a jump past both tiers
	// resolves to the full exit.
	if pos.IsOpen() && !m.calc.limits.PartialSellRatio.IsZero() {
		pnl := pos.PnLPercent(current)
		if pnl.GreaterThanOrEqual(m.calc.limits.PartialTP2Pct) {
			m.highWater = nil
			return Evaluation{
				Action:    ActionTakeProfit,
				Allowed:   true,
				SellRatio: fullExit,
				Reason:    fmt.Sprintf("P&L %s reached tier-2 take-profit %s", pnl, m.calc.limits.PartialTP2Pct),
			}
		}
		if pnl.GreaterThanOrEqual(m.calc.limits.PartialTP1Pct) {
			return Evaluation{
				Action:    ActionPartialTakeProfit,
				Allowed:   true,
				SellRatio: m.calc.limits.PartialSellRatio,
				Reason:    fmt.Sprintf("P&L %s reached tier-1 take-profit %s", pnl, m.calc.limits.PartialTP1Pct),
			}
		}
	}

	return Evaluation{Action: ActionHold, Allowed: true}
}

// RecordTrade folds a completed trade's realized P&L into the daily and
// weekly accounting and persists the updated record.
func (m *Manager) RecordTrade(pnl money.Percentage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.rollDayLocked(now)

	t := now
	m.daily.LastTradeTime = &t
	m.lastTrade = &t
	m.daily.TradeCount++
	m.daily.DailyPnl = m.daily.DailyPnl.Add(pnl)
	m.weekly = m.weekly.Add(pnl)
	m.persistLocked(now)

	m.log.Info().
		Str("pnl", pnl.String()).
		Str("daily_pnl", m.daily.DailyPnl.String()).
		Str("weekly_pnl", m.weekly.String()).
		Int("trades_today", m.daily.TradeCount).
		Msg("Trade recorded")
}

func (m *Manager) enableSafeModeLocked(reason string, now time.Time) {
	m.daily.SafeMode = true
	m.daily.SafeModeReason = reason
	m.persistLocked(now)
	m.log.Warn().Str("reason", reason).Msg("Safe mode enabled")
}

// EnableSafeMode blocks new entries and persists the flag immediately so
// a crash mid-cycle cannot drop an active block.
func (m *Manager) EnableSafeMode(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.rollDayLocked(now)
	m.enableSafeModeLocked(reason, now)
}

// DisableSafeMode lifts the block and persists immediately. Safe mode
// never auto-expires; this is the only way out.
func (m *Manager) DisableSafeMode() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.rollDayLocked(now)
	m.daily.SafeMode = false
	m.daily.SafeModeReason = ""
	m.persistLocked(now)
	m.log.Info().Msg("Safe mode disabled")
}

// Snapshot returns the current risk state for the status API.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Ticker:         m.ticker,
		Date:           m.day,
		DailyPnl:       m.daily.DailyPnl,
		WeeklyPnl:      m.weekly,
		TradeCount:     m.daily.TradeCount,
		LastTradeTime:  m.lastTrade,
		SafeMode:       m.daily.SafeMode,
		SafeModeReason: m.daily.SafeModeReason,
		HighWater:      m.highWater,
	}
}

// Calculator returns the stateless policy calculator the manager gates with.
func (m *Manager) Calculator() *Calculator { return m.calc }

// SetClock overrides the manager's time source so replayed candles drive
// the day roll and frequency gate. Live trading keeps the default clock.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}
