package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"NiftyPulse/internal/domain/models"
	drepo "NiftyPulse/internal/domain/repository"
	"NiftyPulse/internal/service/clock"
	applogger "NiftyPulse/pkg/logger"
	"NiftyPulse/pkg/util"

	"github.com/gorilla/websocket"
)

// Config configures the broker feed.
type Config struct {
	URL            string
	AuthToken      string
	Tokens         map[string]string // broker token -> symbol
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

// Client implements a MarketStream backed by the broker's tick websocket.
type Client struct {
	cfg   Config
	clock clock.Clock
	l     *applogger.Logger

	mu        sync.Mutex // guards conn and serialises writes
	conn      *websocket.Conn
	connected atomic.Bool
}

var _ drepo.MarketStream = (*Client)(nil)

// New creates a new broker MarketStream.
func New(cfg Config, clk clock.Clock, l *applogger.Logger) *Client {
	if l == nil {
		l = applogger.NewNop()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &Client{cfg: cfg, clock: clk, l: l.With(applogger.String("component", "broker_feed"))}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	hdr := http.Header{}
	if c.cfg.AuthToken != "" {
		hdr.Set("Authorization", "Bearer "+c.cfg.AuthToken)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, hdr)
	if err != nil {
		return fmt.Errorf("broker connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.l.Info("broker feed connected", applogger.String("url", c.cfg.URL))
	return nil
}

// Subscribe subscribes to every configured token.
func (c *Client) Subscribe(context.Context) error {
	tokens := make([]string, 0, len(c.cfg.Tokens))
	for tk := range c.cfg.Tokens {
		tokens = append(tokens, tk)
	}
	msg := map[string]interface{}{"action": "subscribe", "mode": "ltp", "tokens": tokens}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || !c.connected.Load() {
		return fmt.Errorf("broker not connected")
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("broker subscribe: %w", err)
	}
	c.l.Info("broker feed subscribed", applogger.Strings("tokens", tokens))
	return nil
}

// Read streams ticks and errors of the current connection. Both channels close
// when the connection fails or ctx is cancelled.
func (c *Client) Read(ctx context.Context) (<-chan *models.Tick, <-chan error) {
	ticks := make(chan *models.Tick, 1024)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	rctx, cancel := context.WithCancel(ctx)
	go c.pingLoop(rctx, conn)

	go func() {
		defer cancel()
		defer close(ticks)
		defer close(errs)
		if conn == nil {
			errs <- fmt.Errorf("broker conn nil")
			return
		}
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				if rctx.Err() == nil {
					c.connected.Store(false)
					errs <- fmt.Errorf("broker read: %w", err)
				}
				return
			}
			parsed, err := ParseFrame(b, c.cfg.Tokens, c.clock.Now())
			if err != nil {
				c.l.Debug("broker frame skipped", applogger.Error(err))
				continue
			}
			for _, t := range parsed {
				select {
				case ticks <- t:
				case <-rctx.Done():
					return
				default:
					c.l.Warn("tick channel full, dropping", applogger.String("symbol", t.Symbol))
				}
			}
		}
	}()

	go func() {
		<-rctx.Done()
		if ctx.Err() != nil && conn != nil {
			_ = conn.Close()
		}
	}()

	return ticks, errs
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	if conn == nil {
		return
	}
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.mu.Unlock()
			if err != nil {
				c.l.Debug("broker ping failed", applogger.Error(err))
			}
		}
	}
}

// Reconnect closes, waits the reconnect delay, then connects and resubscribes.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.cfg.ReconnectDelay):
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected.Store(false)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected.Load() }

// frame covers both feed formats: token/last_traded_price (paise, ms timestamps)
// and the compact tk/ltp form (rupees).
type frame struct {
	Token             string   `json:"token"`
	LastTradedPrice   *float64 `json:"last_traded_price"`
	ExchangeType      int      `json:"exchange_type"`
	ExchangeTimestamp int64    `json:"exchange_timestamp"`
	VolumeTraded      float64  `json:"volume_trade_for_the_day"`

	Symbol   string   `json:"symbol"`
	TK       string   `json:"tk"`
	LTP      *float64 `json:"ltp"`
	LTPC     *float64 `json:"ltpc"`
	Exchange string   `json:"exchange"`
	Volume   float64  `json:"volume"`
	Vol      float64  `json:"vol"`
}

// ParseFrame decodes one websocket message, a single frame or an array of frames,
// into ticks stamped with receivedAt. Frames without a price are skipped.
func ParseFrame(b []byte, tokens map[string]string, receivedAt time.Time) ([]*models.Tick, error) {
	b = []byte(strings.TrimSpace(string(b)))
	var frames []frame
	if len(b) > 0 && b[0] == '[' {
		if err := json.Unmarshal(b, &frames); err != nil {
			return nil, fmt.Errorf("decode frames: %w", err)
		}
	} else {
		var f frame
		if err := json.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("decode frame: %w", err)
		}
		frames = []frame{f}
	}

	out := make([]*models.Tick, 0, len(frames))
	for _, f := range frames {
		if t := f.tick(tokens, receivedAt); t != nil {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f frame) tick(tokens map[string]string, receivedAt time.Time) *models.Tick {
	t := &models.Tick{ReceivedAt: receivedAt, Exchange: f.Exchange}
	switch {
	case f.LastTradedPrice != nil:
		t.Symbol = resolve(tokens, f.Token)
		t.Price = *f.LastTradedPrice / 100
		t.Volume = f.VolumeTraded
		if t.Exchange == "" {
			t.Exchange = exchangeName(f.ExchangeType)
		}
	case f.LTP != nil || f.LTPC != nil:
		t.Symbol = f.Symbol
		if t.Symbol == "" {
			t.Symbol = resolve(tokens, f.TK)
		}
		if f.LTP != nil {
			t.Price = *f.LTP
		} else {
			t.Price = *f.LTPC
		}
		t.Volume = f.Volume
		if t.Volume == 0 {
			t.Volume = f.Vol
		}
	default:
		return nil
	}
	if f.ExchangeTimestamp > 0 {
		ts := util.UnixAuto(f.ExchangeTimestamp)
		t.MarketTimestamp = &ts
	}
	if t.Symbol == "" {
		return nil
	}
	return t
}

func resolve(tokens map[string]string, token string) string {
	if sym, ok := tokens[token]; ok {
		return sym
	}
	return token
}

func exchangeName(t int) string {
	switch t {
	case 1:
		return "NSE"
	case 2:
		return "NFO"
	case 3:
		return "BSE"
	default:
		return ""
	}
}
