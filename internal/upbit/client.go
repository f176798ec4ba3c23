package upbit

import (
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"upbit-trading-bot/internal/domain"
	"upbit-trading-bot/internal/money"
)

// DefaultBaseURL is the production Upbit REST endpoint.
const DefaultBaseURL = "https://api.upbit.com"

// fillPollAttempts and fillPollDelay bound how long a market order is
// polled before its fill is reported. Upbit settles market orders within
// a few hundred milliseconds under normal load.
const (
	fillPollAttempts = 5
	fillPollDelay    = 300 * time.Millisecond
)

// Client is the Upbit REST client. Private endpoints are authenticated
// with a JWT per request: HS256 over {access_key, nonce, query_hash}.
type Client struct {
	accessKey  string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a REST client. An empty baseURL selects production.
func NewClient(accessKey, secretKey, baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		accessKey:  accessKey,
		secretKey:  secretKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log.With().Str("component", "upbit_client").Logger(),
	}
}

// authToken builds the per-request JWT. The query hash covers the exact
// encoded query string sent on the wire.
func (c *Client) authToken(query string) (string, error) {
	claims := jwt.MapClaims{
		"access_key": c.accessKey,
		"nonce":      uuid.NewString(),
	}
	if query != "" {
		sum := sha512.Sum512([]byte(query))
		claims["query_hash"] = hex.EncodeToString(sum[:])
		claims["query_hash_alg"] = "SHA512"
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(c.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign auth token: %w", err)
	}
	return signed, nil
}

// apiError is Upbit's error envelope.
type apiError struct {
	Error struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path, query string, signed bool, out interface{}) error {
	endpoint := c.baseURL + path
	var body io.Reader
	if query != "" {
		if method == http.MethodGet || method == http.MethodDelete {
			endpoint += "?" + query
		} else {
			body = strings.NewReader(query)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if signed {
		token, err := c.authToken(query)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upbit request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read upbit response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Name != "" {
			return fmt.Errorf("upbit API error %s: %s", apiErr.Error.Name, apiErr.Error.Message)
		}
		return fmt.Errorf("upbit API error: status %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse upbit response: %w", err)
		}
	}
	return nil
}

type tickerPayload struct {
	Market     string  `json:"market"`
	TradePrice float64 `json:"trade_price"`
	Timestamp  int64   `json:"timestamp"`
}

// CurrentPrice returns the last trade price for a ticker.
func (c *Client) CurrentPrice(ctx context.Context, ticker string) (money.Money, error) {
	query := url.Values{"markets": {ticker}}.Encode()
	var tickers []tickerPayload
	if err := c.do(ctx, http.MethodGet, "/v1/ticker", query, false, &tickers); err != nil {
		return money.Money{}, err
	}
	if len(tickers) == 0 {
		return money.Money{}, fmt.Errorf("no ticker data for %s", ticker)
	}
	return money.FromFloat(tickers[0].TradePrice, money.KRW).Round(), nil
}

type candlePayload struct {
	Market            string  `json:"market"`
	CandleDateTimeUTC string  `json:"candle_date_time_utc"`
	OpeningPrice      float64 `json:"opening_price"`
	HighPrice         float64 `json:"high_price"`
	LowPrice          float64 `json:"low_price"`
	TradePrice        float64 `json:"trade_price"`
	AccTradeVolume    float64 `json:"candle_acc_trade_volume"`
}

// Candles returns minute candles, oldest first. Upbit serves newest
// first, so the slice is reversed before returning.
func (c *Client) Candles(ctx context.Context, ticker string, unitMinutes, count int) ([]domain.Candle, error) {
	query := url.Values{
		"market": {ticker},
		"count":  {fmt.Sprintf("%d", count)},
	}.Encode()
	path := fmt.Sprintf("/v1/candles/minutes/%d", unitMinutes)

	var payload []candlePayload
	if err := c.do(ctx, http.MethodGet, path, query, false, &payload); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(payload))
	for i := len(payload) - 1; i >= 0; i-- {
		p := payload[i]
		ts, err := time.Parse("2006-01-02T15:04:05", p.CandleDateTimeUTC)
		if err != nil {
			return nil, fmt.Errorf("invalid candle timestamp %q: %w", p.CandleDateTimeUTC, err)
		}
		candles = append(candles, domain.Candle{
			Timestamp: ts.UTC(),
			Open:      money.FromFloat(p.OpeningPrice, money.KRW).Round(),
			High:      money.FromFloat(p.HighPrice, money.KRW).Round(),
			Low:       money.FromFloat(p.LowPrice, money.KRW).Round(),
			Close:     money.FromFloat(p.TradePrice, money.KRW).Round(),
			Volume:    decimal.NewFromFloat(p.AccTradeVolume),
		})
	}
	return candles, nil
}

type orderPayload struct {
	UUID           string         `json:"uuid"`
	Side           string         `json:"side"`
	OrdType        string         `json:"ord_type"`
	State          string         `json:"state"`
	Market         string         `json:"market"`
	ExecutedVolume string         `json:"executed_volume"`
	PaidFee        string         `json:"paid_fee"`
	Trades         []tradePayload `json:"trades"`
}

type tradePayload struct {
	Price  string `json:"price"`
	Volume string `json:"volume"`
	Funds  string `json:"funds"`
}

// BuyMarket spends the given KRW amount at market (ord_type "price").
func (c *Client) BuyMarket(ctx context.Context, ticker string, amount money.Money) (OrderFill, error) {
	if amount.Currency() != money.KRW {
		return OrderFill{}, fmt.Errorf("market buys are priced in KRW, got %s", amount.Currency())
	}
	query := url.Values{
		"market":   {ticker},
		"side":     {"bid"},
		"price":    {amount.Amount().String()},
		"ord_type": {"price"},
	}.Encode()

	var order orderPayload
	if err := c.do(ctx, http.MethodPost, "/v1/orders", query, true, &order); err != nil {
		return OrderFill{}, err
	}
	return c.awaitFill(ctx, order.UUID, ticker, domain.SideBuy)
}

// SellMarket sells the given volume at market (ord_type "market").
func (c *Client) SellMarket(ctx context.Context, ticker string, volume decimal.Decimal) (OrderFill, error) {
	query := url.Values{
		"market":   {ticker},
		"side":     {"ask"},
		"volume":   {volume.String()},
		"ord_type": {"market"},
	}.Encode()

	var order orderPayload
	if err := c.do(ctx, http.MethodPost, "/v1/orders", query, true, &order); err != nil {
		return OrderFill{}, err
	}
	return c.awaitFill(ctx, order.UUID, ticker, domain.SideSell)
}

// awaitFill polls the order until trades appear and reduces them to a
// volume-weighted fill.
func (c *Client) awaitFill(ctx context.Context, orderID, ticker string, side domain.Side) (OrderFill, error) {
	var order orderPayload
	query := url.Values{"uuid": {orderID}}.Encode()

	for attempt := 0; attempt < fillPollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return OrderFill{}, ctx.Err()
			case <-time.After(fillPollDelay):
			}
		}
		if err := c.do(ctx, http.MethodGet, "/v1/order", query, true, &order); err != nil {
			return OrderFill{}, err
		}
		if len(order.Trades) > 0 {
			return reduceFill(order, ticker, side)
		}
	}
	return OrderFill{}, fmt.Errorf("order %s not filled after %d polls", orderID, fillPollAttempts)
}

func reduceFill(order orderPayload, ticker string, side domain.Side) (OrderFill, error) {
	totalFunds := decimal.Zero
	totalVolume := decimal.Zero
	for _, t := range order.Trades {
		funds, err := decimal.NewFromString(t.Funds)
		if err != nil {
			return OrderFill{}, fmt.Errorf("invalid trade funds %q: %w", t.Funds, err)
		}
		vol, err := decimal.NewFromString(t.Volume)
		if err != nil {
			return OrderFill{}, fmt.Errorf("invalid trade volume %q: %w", t.Volume, err)
		}
		totalFunds = totalFunds.Add(funds)
		totalVolume = totalVolume.Add(vol)
	}
	if totalVolume.IsZero() {
		return OrderFill{}, fmt.Errorf("order %s reported trades with zero volume", order.UUID)
	}

	fee, err := money.FromString(order.PaidFee, money.KRW)
	if err != nil {
		return OrderFill{}, fmt.Errorf("invalid paid fee %q: %w", order.PaidFee, err)
	}

	return OrderFill{
		OrderID:   order.UUID,
		Ticker:    ticker,
		Side:      side,
		Price:     money.New(totalFunds.Div(totalVolume), money.KRW).Round(),
		Volume:    totalVolume,
		Fee:       fee,
		Timestamp: time.Now().UTC(),
	}, nil
}

type accountPayload struct {
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
	Locked   string `json:"locked"`
}

// Balance returns the available (unlocked) balance of a currency.
func (c *Client) Balance(ctx context.Context, currency money.Currency) (money.Money, error) {
	var accounts []accountPayload
	if err := c.do(ctx, http.MethodGet, "/v1/accounts", "", true, &accounts); err != nil {
		return money.Money{}, err
	}
	for _, acc := range accounts {
		if acc.Currency == string(currency) {
			bal, err := money.FromString(acc.Balance, currency)
			if err != nil {
				return money.Money{}, fmt.Errorf("invalid balance %q: %w", acc.Balance, err)
			}
			return bal, nil
		}
	}
	return money.Zero(currency), nil
}
