package upbit

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"upbit-trading-bot/internal/money"
)

// DefaultWSURL is the production Upbit websocket endpoint.
const DefaultWSURL = "wss://api.upbit.com/websocket/v1"

const (
	dialRetryDelay = 5 * time.Second
	reconnectDelay = 3 * time.Second
)

// TickerUpdate is one live price sample from the stream.
type TickerUpdate struct {
	Ticker    string
	Price     money.Money
	Timestamp time.Time
}

// TickerStream keeps a websocket subscription for live trade prices and
// reconnects on failure. Updates are delivered on a buffered channel;
// when the consumer lags, older samples are dropped in favor of newer
// ones.
type TickerStream struct {
	url     string
	codes   []string
	log     zerolog.Logger
	updates chan TickerUpdate
	stop    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	conn    *websocket.Conn
	running bool
}

// NewTickerStream creates a stream for the given tickers. An empty url
// selects production.
func NewTickerStream(url string, codes []string, log zerolog.Logger) *TickerStream {
	if url == "" {
		url = DefaultWSURL
	}
	return &TickerStream{
		url:     url,
		codes:   codes,
		log:     log.With().Str("component", "ticker_stream").Logger(),
		updates: make(chan TickerUpdate, 64),
		stop:    make(chan struct{}),
	}
}

// Updates returns the channel of live price samples.
func (s *TickerStream) Updates() <-chan TickerUpdate { return s.updates }

// Start connects and begins streaming until Stop is called.
func (s *TickerStream) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()
}

// Stop closes the stream and waits for the reader to exit.
func (s *TickerStream) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *TickerStream) run() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
		if err != nil {
			s.log.Warn().Err(err).Msg("Websocket dial failed, retrying")
			select {
			case <-s.stop:
				return
			case <-time.After(dialRetryDelay):
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()

		if err := s.subscribe(conn); err != nil {
			s.log.Warn().Err(err).Msg("Websocket subscribe failed")
			conn.Close()
			continue
		}

		s.log.Info().Strs("codes", s.codes).Msg("Ticker stream connected")
		s.readLoop(conn)

		select {
		case <-s.stop:
			return
		case <-time.After(reconnectDelay):
			s.log.Info().Msg("Ticker stream reconnecting")
		}
	}
}

func (s *TickerStream) subscribe(conn *websocket.Conn) error {
	request := []interface{}{
		map[string]string{"ticket": uuid.NewString()},
		map[string]interface{}{"type": "ticker", "codes": s.codes},
		map[string]string{"format": "DEFAULT"},
	}
	return conn.WriteJSON(request)
}

type streamPayload struct {
	Type       string  `json:"type"`
	Code       string  `json:"code"`
	TradePrice float64 `json:"trade_price"`
	Timestamp  int64   `json:"timestamp"`
}

func (s *TickerStream) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Info().Msg("Ticker stream closed")
			} else {
				s.log.Warn().Err(err).Msg("Ticker stream read error")
			}
			return
		}

		var payload streamPayload
		if err := json.Unmarshal(message, &payload); err != nil {
			s.log.Warn().Err(err).Msg("Unparseable stream message")
			continue
		}
		if payload.Type != "ticker" || payload.Code == "" {
			continue
		}

		update := TickerUpdate{
			Ticker:    payload.Code,
			Price:     money.FromFloat(payload.TradePrice, money.KRW).Round(),
			Timestamp: time.UnixMilli(payload.Timestamp).UTC(),
		}
		select {
		case s.updates <- update:
		default:
			// Drop the oldest sample so the channel always holds the
			// freshest prices.
			select {
			case <-s.updates:
			default:
			}
			select {
			case s.updates <- update:
			default:
			}
		}
	}
}
