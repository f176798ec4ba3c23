// Package backtest replays historical candles through the same risk
// manager and intrabar execution rules the live bot uses, so simulated
// results stay predictive of live behavior.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/domain"
	"upbit-trading-bot/internal/execution"
	"upbit-trading-bot/internal/fees"
	"upbit-trading-bot/internal/money"
	"upbit-trading-bot/internal/risk"
	"upbit-trading-bot/internal/state"
)

// atrPeriod is the lookback for volatility-based stops during replay.
const atrPeriod = 14

// Config holds the replay parameters.
type Config struct {
	Ticker         string
	InitialCapital money.Money
	Limits         risk.Limits
	FeeRate        money.Percentage
	MinFee         money.Money
	Slippage       money.Percentage
}

// StrategyFunc produces the entry decision for the candle at index i,
// seeing only candles up to and including i.
type StrategyFunc func(candles []domain.Candle, i int) domain.Decision

// Trade is one completed round trip (or partial exit) during replay.
type Trade struct {
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice money.Money
	ExitPrice  money.Money
	Volume     decimal.Decimal
	ExitReason string
	Pnl        money.Money
	PnlPct     money.Percentage
}

// EquityPoint samples the portfolio value at a candle close.
type EquityPoint struct {
	Timestamp time.Time
	Equity    money.Money
}

// Result aggregates the replay outcome.
type Result struct {
	Trades         []Trade
	TotalTrades    int
	WinningTrades  int
	LosingTrades   int
	WinRate        float64
	NetProfit      money.Money
	FinalEquity    money.Money
	MaxDrawdownPct money.Percentage
	EquityCurve    []EquityPoint
}

// Engine replays candles against the risk policy.
type Engine struct {
	cfg  Config
	port *execution.Intrabar
	fees *fees.Calculator
	log  zerolog.Logger
}

// NewEngine validates the configuration and builds the replay engine.
func NewEngine(cfg Config, log zerolog.Logger) (*Engine, error) {
	if !cfg.InitialCapital.IsPositive() {
		return nil, fmt.Errorf("initial capital must be positive, got %s", cfg.InitialCapital)
	}
	feeCalc, err := fees.NewCalculator(cfg.FeeRate, cfg.MinFee)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:  cfg,
		port: execution.NewIntrabar(log),
		fees: feeCalc,
		log:  log.With().Str("component", "backtest").Logger(),
	}, nil
}

// Run replays the candles. Protective exits run off each candle's
// high/low with stop-loss priority and gap pricing; trailing and partial
// exits evaluate at the close through the risk manager.
func (e *Engine) Run(candles []domain.Candle, strategy StrategyFunc) (*Result, error) {
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles to replay")
	}

	calc, err := risk.NewCalculator(e.cfg.Limits)
	if err != nil {
		return nil, err
	}
	manager, err := risk.NewManager(calc, state.NewMemoryStore(), e.cfg.Ticker, e.log)
	if err != nil {
		return nil, err
	}

	clock := candles[0].Timestamp
	manager.SetClock(func() time.Time { return clock })

	ctx := context.Background()
	result := &Result{}
	cash := e.cfg.InitialCapital
	var pos *domain.Position

	for i, c := range candles {
		clock = c.Timestamp

		// Intrabar protective exits first.
		if pos.IsOpen() {
			stop := calc.StopLossPrice(pos.AvgEntryPrice)
			tp := calc.TakeProfitPrice(pos.AvgEntryPrice)

			switch execution.ExitPriority(stop, tp, c) {
			case execution.ExitStopLoss:
				fill := execution.StopLossExecutionPrice(stop, c)
				cash, pos, err = e.closePortion(ctx, result, manager, pos, fill, c, fullRatio(), "stop_loss", cash)
			case execution.ExitTakeProfit:
				fill := execution.TakeProfitExecutionPrice(tp, c)
				cash, pos, err = e.closePortion(ctx, result, manager, pos, fill, c, fullRatio(), "take_profit", cash)
			}
			if err != nil {
				return nil, err
			}
		}

		// Close-driven evaluation: trailing stop, partial take-profit,
		// entry gating.
		atr := atrAt(candles, i)
		ev := manager.Evaluate(pos, c.Close, atr)

		if ev.Action.IsExit() && pos.IsOpen() {
			cash, pos, err = e.closePortion(ctx, result, manager, pos, c.Close, c, ev.SellRatio, string(ev.Action), cash)
			if err != nil {
				return nil, err
			}
		} else if !pos.IsOpen() && ev.Allowed {
			if strategy(candles[:i+1], i) == domain.DecisionBuy {
				cash, pos, err = e.open(ctx, manager, calc, c, cash)
				if err != nil {
					return nil, err
				}
			}
		}

		equity := cash
		if pos.IsOpen() {
			equity = equity.Add(pos.MarketValue(c.Close))
		}
		result.EquityCurve = append(result.EquityCurve, EquityPoint{Timestamp: c.Timestamp, Equity: equity})
	}

	// Liquidate at the final close so the result is fully realized.
	if pos.IsOpen() {
		last := candles[len(candles)-1]
		cash, pos, err = e.closePortion(ctx, result, manager, pos, last.Close, last, fullRatio(), "backtest_end", cash)
		if err != nil {
			return nil, err
		}
		result.EquityCurve = append(result.EquityCurve, EquityPoint{Timestamp: last.Timestamp, Equity: cash})
	}

	e.finalize(result, cash)
	return result, nil
}

func fullRatio() money.Ratio { return money.MustRatio(1) }

func atrAt(candles []domain.Candle, i int) *money.Money {
	if i+1 < atrPeriod+1 {
		return nil
	}
	atr, ok := domain.ATR(candles[:i+1], atrPeriod)
	if !ok {
		return nil
	}
	return &atr
}

// open sizes a new position off current equity and fills it at the close.
func (e *Engine) open(ctx context.Context, manager *risk.Manager, calc *risk.Calculator,
	c domain.Candle, cash money.Money) (money.Money, *domain.Position, error) {

	budget := calc.RecommendedSize(cash)
	if budget.GreaterThan(cash) {
		budget = cash
	}
	gross := e.fees.BuyAmount(budget)
	if !gross.IsPositive() {
		return cash, nil, nil
	}

	// Size off the slipped fill estimate so the spend stays inside the
	// budget after the worse fill.
	one := decimal.NewFromInt(1)
	fillEstimate := c.Close.Mul(one.Add(e.cfg.Slippage.Ratio()))
	res, err := e.port.ExecuteMarketOrder(ctx, domain.SideBuy, gross.Amount().Div(fillEstimate.Amount()),
		c.Close, c, e.cfg.Slippage)
	if err != nil {
		return cash, nil, err
	}

	spend := res.ExecutedPrice.Mul(res.ExecutedVolume)
	fee := e.fees.Fee(spend)
	cash = cash.Sub(spend).Sub(fee)

	pos, err := domain.NewPosition(e.cfg.Ticker, e.cfg.Ticker, res.ExecutedVolume, res.ExecutedPrice, c.Timestamp)
	if err != nil {
		return cash, nil, err
	}
	manager.RecordTrade(money.ZeroPct())
	return cash, pos, nil
}

// closePortion sells part or all of the position at the given fill price
// and folds the realized P&L into the result and the risk accounting.
func (e *Engine) closePortion(ctx context.Context, result *Result, manager *risk.Manager,
	pos *domain.Position, fillBase money.Money, c domain.Candle, ratio money.Ratio,
	reason string, cash money.Money) (money.Money, *domain.Position, error) {

	volume := pos.Volume.Mul(ratio.Value())
	if !volume.IsPositive() {
		return cash, pos, nil
	}

	// The trigger price is the pricing context for the simulated fill.
	res, err := e.port.ExecuteMarketOrder(ctx, domain.SideSell, volume,
		fillBase, domain.CandleFromPrice(fillBase, c.Timestamp), e.cfg.Slippage)
	if err != nil {
		return cash, pos, err
	}

	gross := res.ExecutedPrice.Mul(res.ExecutedVolume)
	proceeds := e.fees.SellNet(gross)
	cash = cash.Add(proceeds)

	pnlPct := pos.PnLPercent(res.ExecutedPrice)
	trade := Trade{
		EntryTime:  pos.EntryTime,
		ExitTime:   c.Timestamp,
		EntryPrice: pos.AvgEntryPrice,
		ExitPrice:  res.ExecutedPrice,
		Volume:     res.ExecutedVolume,
		ExitReason: reason,
		Pnl:        res.ExecutedPrice.Sub(pos.AvgEntryPrice).Mul(res.ExecutedVolume).Round(),
		PnlPct:     pnlPct,
	}
	result.Trades = append(result.Trades, trade)
	manager.RecordTrade(pnlPct)

	if err := pos.Reduce(res.ExecutedVolume, c.Timestamp); err != nil {
		return cash, pos, err
	}
	if !pos.IsOpen() {
		return cash, nil, nil
	}
	return cash, pos, nil
}

func (e *Engine) finalize(result *Result, finalEquity money.Money) {
	result.FinalEquity = finalEquity
	result.NetProfit = finalEquity.Sub(e.cfg.InitialCapital)
	result.TotalTrades = len(result.Trades)

	for _, trade := range result.Trades {
		if trade.Pnl.IsPositive() {
			result.WinningTrades++
		} else {
			result.LosingTrades++
		}
	}
	if result.TotalTrades > 0 {
		result.WinRate = float64(result.WinningTrades) / float64(result.TotalTrades)
	}
	result.MaxDrawdownPct = maxDrawdown(result.EquityCurve)
}

// maxDrawdown returns the largest peak-to-trough equity decline.
func maxDrawdown(curve []EquityPoint) money.Percentage {
	if len(curve) == 0 {
		return money.ZeroPct()
	}

	peak := curve[0].Equity
	worst := money.ZeroPct()
	for _, point := range curve {
		if point.Equity.GreaterThan(peak) {
			peak = point.Equity
		}
		if peak.IsPositive() {
			dd := point.Equity.Sub(peak).PctOf(peak)
			if dd.Cmp(worst) < 0 {
				worst = dd
			}
		}
	}
	return worst
}
