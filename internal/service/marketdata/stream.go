package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"TradeBot/internal/domain/models"
	drepo "TradeBot/internal/domain/repository"
	applogger "TradeBot/pkg/logger"

	"github.com/gorilla/websocket"
)

var ErrNotConnected = errors.New("stream not connected")

const DefaultStreamURL = "wss://ws.finnhub.io"

// Stream is a live trade feed over the Finnhub websocket.
type Stream struct {
	apiKey         string
	url            string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *applogger.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

func NewStream(apiKey, url string, symbols []string, reconnectDelay, pingInterval time.Duration, l *applogger.Logger) *Stream {
	if url == "" {
		url = DefaultStreamURL
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &Stream{
		apiKey:         apiKey,
		url:            url,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            l,
	}
}

func (s *Stream) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s?token=%s", s.url, s.apiKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("stream connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.log.Info("market stream connected", applogger.Int("symbols", len(s.symbols)))
	return nil
}

func (s *Stream) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || !s.connected {
		return ErrNotConnected
	}
	for _, sym := range s.symbols {
		if err := s.conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": sym}); err != nil {
			return fmt.Errorf("subscribe %s: %w", sym, err)
		}
	}
	s.log.Debug("market stream subscribed", applogger.Strings("symbols", s.symbols))
	return nil
}

type wsTrade struct {
	S string  `json:"s"`
	P float64 `json:"p"`
	V float64 `json:"v"`
	T int64   `json:"t"`
}

type wsMessage struct {
	Type string    `json:"type"`
	Data []wsTrade `json:"data"`
}

// Read streams trades until ctx ends or the connection fails. Trades are dropped
// when the consumer falls behind.
func (s *Stream) Read(ctx context.Context) (<-chan *models.Trade, <-chan error) {
	trades := make(chan *models.Trade, 1024)
	errs := make(chan error, 1)

	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				if s.conn != nil {
					_ = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				}
				s.mu.Unlock()
			}
		}
	}()

	go func() {
		defer close(trades)
		defer close(errs)
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			errs <- ErrNotConnected
			return
		}
		for ctx.Err() == nil {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("stream read: %w", err)
				}
				return
			}
			var m wsMessage
			if err := json.Unmarshal(b, &m); err != nil || m.Type != "trade" {
				continue
			}
			for _, d := range m.Data {
				t := &models.Trade{Symbol: d.S, Price: d.P, Volume: d.V, Timestamp: time.UnixMilli(d.T).UTC()}
				select {
				case trades <- t:
				default:
				}
			}
		}
	}()

	return trades, errs
}

func (s *Stream) Reconnect(ctx context.Context) error {
	_ = s.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.reconnectDelay):
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

var _ drepo.MarketStream = (*Stream)(nil)
