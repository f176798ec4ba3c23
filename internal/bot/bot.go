// Package bot runs the trading loop: one sequential cycle per tick that
// wires the venue, the advisory service, the risk manager and the
// execution port together. Any error inside a cycle degrades to a hold;
// the loop itself never dies.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"upbit-trading-bot/internal/advisor"
	"upbit-trading-bot/internal/database"
	"upbit-trading-bot/internal/domain"
	"upbit-trading-bot/internal/execution"
	"upbit-trading-bot/internal/fees"
	"upbit-trading-bot/internal/money"
	"upbit-trading-bot/internal/risk"
	"upbit-trading-bot/internal/upbit"
)

const (
	defaultInterval   = time.Minute
	defaultCandleUnit = 60
	cycleTimeout      = 30 * time.Second

	// atrPeriod is the lookback for volatility-based stops.
	atrPeriod   = 14
	candleCount = atrPeriod + 1
)

// fullExit sells the entire position.
var fullExit = money.MustRatio(1)

// Adviser produces a trading decision for the current market state.
type Adviser interface {
	Advise(ctx context.Context, ticker string, price money.Money, pos *domain.Position) (advisor.Advice, error)
}

// Journal persists executed trades and risk events. Writes are best
// effort; a journal failure never blocks the trading cycle.
type Journal interface {
	RecordTrade(ctx context.Context, rec *database.TradeRecord) error
	RecordRiskEvent(ctx context.Context, ticker, event, reason string) error
}

var _ Adviser = (*advisor.Client)(nil)
var _ Journal = (*database.Journal)(nil)

// Options configures the trading loop.
type Options struct {
	Ticker        string
	Interval      time.Duration
	CandleUnit    int // candle unit in minutes, for ATR lookback
	MinConfidence float64
	Slippage      money.Percentage // simulated ports only, the live port ignores it
}

// Bot owns the loop goroutine and the current position.
type Bot struct {
	opts    Options
	venue   upbit.Exchange
	port    execution.Port
	manager *risk.Manager
	fees    *fees.Calculator
	adviser Adviser
	journal Journal // nil disables journaling
	log     zerolog.Logger

	mu        sync.RWMutex
	position  *domain.Position
	lastBlock string

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New builds the bot. journal may be nil.
func New(opts Options, venue upbit.Exchange, port execution.Port, manager *risk.Manager,
	feeCalc *fees.Calculator, adviser Adviser, journal Journal, log zerolog.Logger) (*Bot, error) {

	if err := domain.ValidateTicker(opts.Ticker); err != nil {
		return nil, err
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.CandleUnit <= 0 {
		opts.CandleUnit = defaultCandleUnit
	}
	return &Bot{
		opts:     opts,
		venue:    venue,
		port:     port,
		manager:  manager,
		fees:     feeCalc,
		adviser:  adviser,
		journal:  journal,
		log:      log.With().Str("component", "bot").Str("ticker", opts.Ticker).Logger(),
		stopChan: make(chan struct{}),
	}, nil
}

// Start launches the trading loop goroutine.
func (b *Bot) Start() {
	b.wg.Add(1)
	go b.run()
	b.log.Info().Dur("interval", b.opts.Interval).Msg("Trading loop started")
}

// Stop signals the loop to exit and waits for the in-flight cycle.
func (b *Bot) Stop() {
	close(b.stopChan)
	b.wg.Wait()
	b.log.Info().Msg("Trading loop stopped")
}

func (b *Bot) run() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.opts.Interval)
	defer ticker.Stop()

	b.safeCycle()
	for {
		select {
		case <-ticker.C:
			b.safeCycle()
		case <-b.stopChan:
			return
		}
	}
}

// safeCycle runs one cycle with a panic guard so a single bad cycle
// degrades to a hold instead of killing the loop.
func (b *Bot) safeCycle() {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Interface("panic", r).Msg("Cycle panicked, holding")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()

	if err := b.Cycle(ctx); err != nil {
		b.log.Error().Err(err).Msg("Cycle failed, holding")
	}
}

// Cycle runs one trading cycle: fetch market state, evaluate risk,
// consult the adviser and route any resulting order.
func (b *Bot) Cycle(ctx context.Context) error {
	price, err := b.venue.CurrentPrice(ctx, b.opts.Ticker)
	if err != nil {
		return fmt.Errorf("failed to fetch price: %w", err)
	}

	var atr *money.Money
	candles, err := b.venue.Candles(ctx, b.opts.Ticker, b.opts.CandleUnit, candleCount)
	if err != nil {
		b.log.Warn().Err(err).Msg("Failed to fetch candles, using fixed stops this cycle")
	} else if v, ok := domain.ATR(candles, atrPeriod); ok {
		atr = &v
	}

	b.mu.RLock()
	pos := b.position
	b.mu.RUnlock()

	ev := b.manager.Evaluate(pos, price, atr)

	if ev.Action.IsExit() && pos.IsOpen() {
		return b.exit(ctx, pos, price, ev.SellRatio, string(ev.Action), ev.Reason)
	}
	if !ev.Allowed {
		b.noteBlock(ctx, ev.Reason)
		if !pos.IsOpen() {
			return nil
		}
	}

	advice, err := b.adviser.Advise(ctx, b.opts.Ticker, price, pos)
	if err != nil {
		return fmt.Errorf("advisory call failed: %w", err)
	}
	b.log.Debug().
		Str("decision", string(advice.Decision)).
		Float64("confidence", advice.Confidence).
		Msg("Advice received")

	switch advice.Decision {
	case domain.DecisionSell:
		// An advisory sell is an exit, so the entry gates do not apply.
		if pos.IsOpen() {
			return b.exit(ctx, pos, price, fullExit, "advisor_sell", advice.Reason)
		}
	case domain.DecisionBuy:
		if pos.IsOpen() || !ev.Allowed {
			return nil
		}
		if advice.Confidence < b.opts.MinConfidence {
			b.log.Debug().
				Float64("confidence", advice.Confidence).
				Float64("minimum", b.opts.MinConfidence).
				Msg("Confidence below threshold, holding")
			return nil
		}
		return b.enter(ctx, price, advice.Reason)
	}
	return nil
}

// enter sizes a new position off the available KRW balance and buys.
func (b *Bot) enter(ctx context.Context, price money.Money, reason string) error {
	balance, err := b.venue.Balance(ctx, money.KRW)
	if err != nil {
		return fmt.Errorf("failed to fetch balance: %w", err)
	}

	calc := b.manager.Calculator()
	budget := calc.RecommendedSize(balance)
	if budget.GreaterThan(balance) {
		budget = balance
	}
	if check := calc.ValidateTradeSize(budget, balance); !check.Allowed {
		b.log.Info().Strs("reasons", check.Reasons).Msg("Trade size rejected")
		return nil
	}

	gross := b.fees.BuyAmount(budget)
	if !gross.IsPositive() {
		return nil
	}
	volume := gross.Amount().Div(price.Amount())

	res, err := b.port.ExecuteMarketOrder(ctx, domain.SideBuy, volume, price,
		domain.CandleFromPrice(price, time.Now().UTC()), b.opts.Slippage)
	if err != nil {
		return fmt.Errorf("failed to place entry order: %w", err)
	}
	if !res.Success {
		b.log.Warn().Str("reason", res.Reason).Msg("Entry order rejected, retrying next cycle")
		return nil
	}

	pos, err := domain.NewPosition(b.opts.Ticker, b.opts.Ticker, res.ExecutedVolume, res.ExecutedPrice, res.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to open position from fill: %w", err)
	}
	b.mu.Lock()
	b.position = pos
	b.mu.Unlock()

	b.manager.RecordTrade(money.ZeroPct())
	b.journalTrade(ctx, domain.SideBuy, "entry", res, nil, reason)

	b.log.Info().
		Str("price", res.ExecutedPrice.String()).
		Str("volume", res.ExecutedVolume.String()).
		Str("reason", reason).
		Msg("Position opened")
	return nil
}

// exit sells part or all of the position and folds the realized P&L into
// the risk accounting.
func (b *Bot) exit(ctx context.Context, pos *domain.Position, price money.Money,
	ratio money.Ratio, action, reason string) error {

	volume := pos.Volume.Mul(ratio.Value())
	if !volume.IsPositive() {
		return nil
	}

	res, err := b.port.ExecuteMarketOrder(ctx, domain.SideSell, volume, price,
		domain.CandleFromPrice(price, time.Now().UTC()), b.opts.Slippage)
	if err != nil {
		return fmt.Errorf("failed to place exit order: %w", err)
	}
	if !res.Success {
		b.log.Warn().Str("reason", res.Reason).Str("action", action).
			Msg("Exit order rejected, retrying next cycle")
		return nil
	}

	pnl := pos.PnLPercent(res.ExecutedPrice)

	b.mu.Lock()
	reduceErr := pos.Reduce(res.ExecutedVolume, res.Timestamp)
	if !pos.IsOpen() {
		b.position = nil
	}
	b.mu.Unlock()
	if reduceErr != nil {
		return fmt.Errorf("failed to apply exit fill: %w", reduceErr)
	}

	b.manager.RecordTrade(pnl)
	b.journalTrade(ctx, domain.SideSell, action, res, &pnl, reason)

	b.log.Info().
		Str("action", action).
		Str("price", res.ExecutedPrice.String()).
		Str("volume", res.ExecutedVolume.String()).
		Str("pnl", pnl.String()).
		Str("reason", reason).
		Msg("Position reduced")
	return nil
}

// noteBlock logs an entry block once per distinct reason. Safe-mode
// blocks also land in the risk event journal; frequency-gate holds are
// routine and stay out of it.
func (b *Bot) noteBlock(ctx context.Context, reason string) {
	if reason == "" {
		return
	}
	b.mu.Lock()
	changed := reason != b.lastBlock
	b.lastBlock = reason
	b.mu.Unlock()
	if !changed {
		return
	}

	b.log.Info().Str("reason", reason).Msg("Entries blocked")
	if b.journal != nil && b.manager.Snapshot().SafeMode {
		if err := b.journal.RecordRiskEvent(ctx, b.opts.Ticker, "entry_blocked", reason); err != nil {
			b.log.Warn().Err(err).Msg("Failed to journal risk event")
		}
	}
}

func (b *Bot) journalTrade(ctx context.Context, side domain.Side, action string,
	res execution.Result, pnl *money.Percentage, reason string) {

	if b.journal == nil {
		return
	}
	rec := &database.TradeRecord{
		Ticker:     b.opts.Ticker,
		Side:       side,
		Action:     action,
		Price:      res.ExecutedPrice,
		Volume:     res.ExecutedVolume,
		Fee:        b.fees.Fee(res.ExecutedPrice.Mul(res.ExecutedVolume)),
		PnlPct:     pnl,
		Reason:     reason,
		ExecutedAt: res.Timestamp,
	}
	if err := b.journal.RecordTrade(ctx, rec); err != nil {
		b.log.Warn().Err(err).Msg("Failed to journal trade")
	}
}

// Position returns a copy of the current holding, or nil when flat.
func (b *Bot) Position() *domain.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.position == nil {
		return nil
	}
	cp := *b.position
	return &cp
}

// AdoptHolding checks the venue for a pre-existing base-currency balance
// at startup and adopts it as an open position priced at the current
// market. The entry basis is approximate, so stops are measured from the
// adoption price rather than the original fill.
func (b *Bot) AdoptHolding(ctx context.Context) error {
	parts := strings.SplitN(b.opts.Ticker, "-", 2)
	if len(parts) != 2 {
		return fmt.Errorf("malformed ticker %q", b.opts.Ticker)
	}
	base := money.Currency(parts[1])

	held, err := b.venue.Balance(ctx, base)
	if err != nil {
		return fmt.Errorf("failed to fetch %s balance: %w", base, err)
	}
	if !held.IsPositive() {
		return nil
	}

	price, err := b.venue.CurrentPrice(ctx, b.opts.Ticker)
	if err != nil {
		return fmt.Errorf("failed to fetch price: %w", err)
	}
	pos, err := domain.NewPosition(b.opts.Ticker, b.opts.Ticker, held.Amount(), price, time.Now().UTC())
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.position = pos
	b.mu.Unlock()

	b.log.Warn().
		Str("volume", held.Amount().String()).
		Str("adopted_price", price.String()).
		Msg("Adopted pre-existing holding, entry basis is the adoption price")
	return nil
}
