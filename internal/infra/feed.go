package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"vault_go/internal/domain"
	"vault_go/pkg/fixed"
)

// FeedWorker keeps a PriceBook updated from a websocket quote stream. It
// owns the connection lifecycle: reconnect with backoff, read deadlines and
// a ping loop.
type FeedWorker struct {
	url     string
	symbols map[string]domain.AssetID // feed symbol -> asset id
	book    *PriceBook

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	ReadTimeout  time.Duration
	PingInterval time.Duration
}

// quoteMessage is one inbound tick. Prices arrive as decimal strings and
// stay strings until converted to fixed point.
type quoteMessage struct {
	Symbol string `json:"symbol"`
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
}

// NewFeedWorker maps feed symbols onto assets and targets the given book.
func NewFeedWorker(url string, symbols map[string]domain.AssetID, book *PriceBook) *FeedWorker {
	return &FeedWorker{
		url:          url,
		symbols:      symbols,
		book:         book,
		ReadTimeout:  60 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

// Start launches the connection loop.
func (w *FeedWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.runLoop(ctx)
}

// Stop terminates the worker and waits for the loop to exit.
func (w *FeedWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.close()
	w.wg.Wait()
}

func (w *FeedWorker) runLoop(ctx context.Context) {
	defer w.wg.Done()
	retry := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.connect(ctx); err != nil {
			slog.Warn("feed connection failed", "url", w.url, "err", err, "retry", retry)
			delay := CalculateBackoff(retry)
			retry++

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retry = 0
		w.process(ctx)
	}
}

func (w *FeedWorker) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if err := w.subscribe(); err != nil {
		w.close()
		return fmt.Errorf("subscribe failed: %w", err)
	}

	if w.PingInterval > 0 {
		go w.pingLoop(ctx)
	}

	slog.Info("feed connected", "url", w.url, "symbols", len(w.symbols))
	return nil
}

func (w *FeedWorker) subscribe() error {
	args := make([]string, 0, len(w.symbols))
	for sym := range w.symbols {
		args = append(args, sym)
	}
	sub := map[string]any{"op": "subscribe", "args": args}
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	return w.write(websocket.TextMessage, data)
}

func (w *FeedWorker) process(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.close()
			return
		default:
		}

		w.mu.RLock()
		c := w.conn
		w.mu.RUnlock()
		if c == nil {
			return
		}

		c.SetReadDeadline(time.Now().Add(w.ReadTimeout))
		_, msg, err := c.ReadMessage()
		if err != nil {
			slog.Warn("feed read error", "url", w.url, "err", err)
			w.close()
			return
		}
		w.onMessage(msg)
	}
}

func (w *FeedWorker) onMessage(msg []byte) {
	var q quoteMessage
	if err := json.Unmarshal(msg, &q); err != nil {
		slog.Debug("feed message skipped", "err", err)
		return
	}
	asset, ok := w.symbols[q.Symbol]
	if !ok || q.Bid == "" || q.Ask == "" {
		return
	}
	bid, ask, err := ParseQuote(q.Bid, q.Ask)
	if err != nil {
		slog.Warn("feed quote rejected", "symbol", q.Symbol, "err", err)
		return
	}
	w.book.SetPrice(asset, bid, ask)
}

// ParseQuote converts a bid/ask pair of decimal strings into price
// precision. Zero or inverted quotes are rejected before they can reach
// the oracle.
func ParseQuote(bidStr, askStr string) (*uint256.Int, *uint256.Int, error) {
	bid, err := parsePrice(bidStr)
	if err != nil {
		return nil, nil, fmt.Errorf("bid %q: %w", bidStr, err)
	}
	ask, err := parsePrice(askStr)
	if err != nil {
		return nil, nil, fmt.Errorf("ask %q: %w", askStr, err)
	}
	if ask.Lt(bid) {
		return nil, nil, fmt.Errorf("inverted quote %s/%s", bidStr, askStr)
	}
	return bid, ask, nil
}

func parsePrice(s string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("price %s not positive", s)
	}
	scaled := d.Shift(fixed.PriceDecimals)
	p, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("price %s out of range", s)
	}
	return p, nil
}

func (w *FeedWorker) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(w.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.RLock()
			c := w.conn
			w.mu.RUnlock()
			if c == nil {
				return
			}
			if err := w.write(websocket.PingMessage, nil); err != nil {
				slog.Warn("feed ping error", "url", w.url, "err", err)
				w.close()
				return
			}
		}
	}
}

func (w *FeedWorker) write(msgType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	c := w.conn
	w.mu.RUnlock()
	if c == nil {
		return fmt.Errorf("feed not connected")
	}
	return c.WriteMessage(msgType, data)
}

func (w *FeedWorker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
}
