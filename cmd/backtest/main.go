// Command backtest replays historical candles from a CSV file through
// the risk-managed execution engine and prints the result.
//
// The CSV columns are: timestamp,open,high,low,close,volume with RFC3339
// timestamps, oldest row first.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/backtest"
	"upbit-trading-bot/internal/domain"
	"upbit-trading-bot/internal/logging"
	"upbit-trading-bot/internal/money"
	"upbit-trading-bot/internal/risk"
)

func main() {
	candlesPath := flag.String("candles", "", "path to the candle CSV file")
	ticker := flag.String("ticker", "KRW-BTC", "instrument ticker")
	capital := flag.Int64("capital", 10_000_000, "initial capital in KRW")
	feeRate := flag.Float64("fee", 0.0005, "trading fee rate")
	slippage := flag.Float64("slippage", 0.0005, "simulated slippage per fill")
	smaPeriod := flag.Int("sma", 20, "moving-average period for the entry signal")
	logLevel := flag.String("log-level", "warn", "log level during replay")
	flag.Parse()

	if *candlesPath == "" {
		log.Fatal("missing -candles: path to the candle CSV file")
	}

	candles, err := loadCandles(*candlesPath)
	if err != nil {
		log.Fatalf("Failed to load candles: %v", err)
	}
	if len(candles) == 0 {
		log.Fatal("no candles in input file")
	}

	logger := logging.New(logging.Config{Level: *logLevel, Pretty: true})

	engine, err := backtest.NewEngine(backtest.Config{
		Ticker:         *ticker,
		InitialCapital: money.FromInt(*capital, money.KRW),
		Limits:         risk.DefaultLimits(),
		FeeRate:        money.PctFromFloat(*feeRate),
		MinFee:         money.FromInt(100, money.KRW),
		Slippage:       money.PctFromFloat(*slippage),
	}, logger)
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}

	result, err := engine.Run(candles, smaCrossover(*smaPeriod))
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}

	printResult(result, money.FromInt(*capital, money.KRW))
}

// smaCrossover buys when the close crosses above its moving average.
// Exits are owned entirely by the risk policy.
func smaCrossover(period int) backtest.StrategyFunc {
	return func(candles []domain.Candle, i int) domain.Decision {
		if i < period {
			return domain.DecisionHold
		}

		sum := decimal.Zero
		for _, c := range candles[i-period : i] {
			sum = sum.Add(c.Close.Amount())
		}
		sma := sum.Div(decimal.NewFromInt(int64(period)))

		prev := candles[i-1].Close.Amount()
		curr := candles[i].Close.Amount()
		if prev.LessThanOrEqual(sma) && curr.GreaterThan(sma) {
			return domain.DecisionBuy
		}
		return domain.DecisionHold
	}
}

func loadCandles(path string) ([]domain.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 6

	var candles []domain.Candle
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if line == 1 && record[0] == "timestamp" {
			continue // header row
		}

		candle, err := parseCandle(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func parseCandle(record []string) (domain.Candle, error) {
	ts, err := time.Parse(time.RFC3339, record[0])
	if err != nil {
		return domain.Candle{}, fmt.Errorf("bad timestamp %q: %w", record[0], err)
	}

	prices := make([]money.Money, 4)
	for i, raw := range record[1:5] {
		prices[i], err = money.FromString(raw, money.KRW)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("bad price %q: %w", raw, err)
		}
	}
	volume, err := decimal.NewFromString(record[5])
	if err != nil {
		return domain.Candle{}, fmt.Errorf("bad volume %q: %w", record[5], err)
	}

	return domain.Candle{
		Timestamp: ts,
		Open:      prices[0],
		High:      prices[1],
		Low:       prices[2],
		Close:     prices[3],
		Volume:    volume,
	}, nil
}

func printResult(result *backtest.Result, initial money.Money) {
	fmt.Printf("Trades:        %d (%d wins, %d losses)\n",
		result.TotalTrades, result.WinningTrades, result.LosingTrades)
	fmt.Printf("Win rate:      %.1f%%\n", result.WinRate*100)
	fmt.Printf("Initial:       %s\n", initial)
	fmt.Printf("Final equity:  %s\n", result.FinalEquity)
	fmt.Printf("Net profit:    %s\n", result.NetProfit)
	fmt.Printf("Max drawdown:  %s\n", result.MaxDrawdownPct)

	for _, trade := range result.Trades {
		fmt.Printf("  %s  %-20s entry %s exit %s pnl %s\n",
			trade.ExitTime.Format("2006-01-02"), trade.ExitReason,
			trade.EntryPrice, trade.ExitPrice, trade.PnlPct)
	}
}
