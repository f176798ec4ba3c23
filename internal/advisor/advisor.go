// Package advisor queries the external advisory service for a trading
// decision. The wire payload is an untyped map; it is converted to the
// typed Advice at this boundary so nothing downstream handles raw maps.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"upbit-trading-bot/internal/domain"
	"upbit-trading-bot/internal/money"
)

// Advice is the typed advisory outcome. Unknown decision labels degrade
// to Hold with zero confidence.
type Advice struct {
	Decision   domain.Decision
	Confidence float64
	Reason     string
}

// Request carries the market context sent to the advisory service.
type Request struct {
	Ticker   string  `json:"ticker"`
	Price    float64 `json:"price"`
	Volume   float64 `json:"position_volume"`
	EntryPnl float64 `json:"position_pnl_pct"`
}

// Client calls the advisory service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates an advisory client.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With().Str("component", "advisor").Logger(),
	}
}

// Advise requests a decision for the current market state. Any transport
// or payload problem is an error; the caller degrades errors to Hold.
func (c *Client) Advise(ctx context.Context, ticker string, price money.Money, pos *domain.Position) (Advice, error) {
	req := Request{Ticker: ticker, Price: price.Float64()}
	if pos.IsOpen() {
		req.Volume = pos.Volume.InexactFloat64()
		req.EntryPnl = pos.PnLPercent(price).Float64()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Advice{}, fmt.Errorf("failed to encode advisory request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/advise", bytes.NewReader(body))
	if err != nil {
		return Advice{}, fmt.Errorf("failed to build advisory request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Advice{}, fmt.Errorf("advisory request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Advice{}, fmt.Errorf("failed to read advisory response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Advice{}, fmt.Errorf("advisory service error: status %d: %s", resp.StatusCode, string(data))
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return Advice{}, fmt.Errorf("failed to parse advisory response: %w", err)
	}
	return c.fromPayload(payload), nil
}

// fromPayload converts the untyped wire map into a typed Advice.
func (c *Client) fromPayload(payload map[string]interface{}) Advice {
	advice := Advice{Decision: domain.DecisionHold}

	if label, ok := payload["decision"].(string); ok {
		decision, err := domain.ParseDecision(label)
		if err != nil {
			c.log.Warn().Str("label", label).Msg("Unknown advisory decision, holding")
		}
		advice.Decision = decision
	}
	if confidence, ok := payload["confidence"].(float64); ok {
		advice.Confidence = confidence
	}
	if reason, ok := payload["reason"].(string); ok {
		advice.Reason = reason
	}
	return advice
}
