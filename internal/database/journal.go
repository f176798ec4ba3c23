package database

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/domain"
	"upbit-trading-bot/internal/money"
)

// TradeRecord is one journal row.
type TradeRecord struct {
	ID         int64
	Ticker     string
	Side       domain.Side
	Action     string
	Price      money.Money
	Volume     decimal.Decimal
	Fee        money.Money
	PnlPct     *money.Percentage
	Reason     string
	ExecutedAt time.Time
	CreatedAt  time.Time
}

// Journal appends executed trades and risk events.
type Journal struct {
	db *DB
}

// NewJournal creates the journal repository.
func NewJournal(db *DB) *Journal {
	return &Journal{db: db}
}

// RecordTrade appends a fill to the journal. Monetary columns are written
// as decimal strings so the NUMERIC values stay exact.
func (j *Journal) RecordTrade(ctx context.Context, rec *TradeRecord) error {
	var pnl *string
	if rec.PnlPct != nil {
		s := rec.PnlPct.Ratio().String()
		pnl = &s
	}

	query := `
		INSERT INTO trade_journal (ticker, side, action, price, volume, fee, pnl_pct, reason, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`
	err := j.db.Pool.QueryRow(ctx, query,
		rec.Ticker, string(rec.Side), rec.Action,
		rec.Price.Amount().String(), rec.Volume.String(), rec.Fee.Amount().String(),
		pnl, rec.Reason, rec.ExecutedAt,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to journal trade: %w", err)
	}
	return nil
}

// RecordRiskEvent appends a risk event (safe mode changes, breaker trips).
func (j *Journal) RecordRiskEvent(ctx context.Context, ticker, event, reason string) error {
	query := `INSERT INTO risk_events (ticker, event, reason) VALUES ($1, $2, $3)`
	if _, err := j.db.Pool.Exec(ctx, query, ticker, event, reason); err != nil {
		return fmt.Errorf("failed to journal risk event: %w", err)
	}
	return nil
}

// RecentTrades returns the latest journal rows for a ticker, newest first.
func (j *Journal) RecentTrades(ctx context.Context, ticker string, limit int) ([]TradeRecord, error) {
	query := `
		SELECT id, ticker, side, action, price, volume, fee, pnl_pct, reason, executed_at, created_at
		FROM trade_journal
		WHERE ticker = $1
		ORDER BY executed_at DESC
		LIMIT $2
	`
	rows, err := j.db.Pool.Query(ctx, query, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var records []TradeRecord
	for rows.Next() {
		var (
			rec                TradeRecord
			side               string
			price, volume, fee string
			pnl                *string
		)
		if err := rows.Scan(&rec.ID, &rec.Ticker, &side, &rec.Action,
			&price, &volume, &fee, &pnl, &rec.Reason, &rec.ExecutedAt, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}

		rec.Side = domain.Side(side)
		if rec.Price, err = money.FromString(price, money.KRW); err != nil {
			return nil, fmt.Errorf("corrupt journal price %q: %w", price, err)
		}
		if rec.Volume, err = decimal.NewFromString(volume); err != nil {
			return nil, fmt.Errorf("corrupt journal volume %q: %w", volume, err)
		}
		if rec.Fee, err = money.FromString(fee, money.KRW); err != nil {
			return nil, fmt.Errorf("corrupt journal fee %q: %w", fee, err)
		}
		if pnl != nil {
			p, err := money.PctFromString(*pnl)
			if err != nil {
				return nil, fmt.Errorf("corrupt journal pnl %q: %w", *pnl, err)
			}
			rec.PnlPct = &p
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
