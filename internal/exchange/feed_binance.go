package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/market"
	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/metrics"
)

const (
	defaultBinanceURL   = "wss://stream.binance.com:9443/stream"
	binanceReadTimeout  = 30 * time.Second
	binancePingInterval = 15 * time.Second
	binanceMaxBackoff   = 30 * time.Second
)

type binanceEnvelope struct {
	Stream string       `json:"stream"`
	Data   binanceTrade `json:"data"`
}

type binanceTrade struct {
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

// WithBinanceURL points the Binance provider at a different combined-stream endpoint.
func WithBinanceURL(url string) Option {
	return func(f *Feed) {
		if url != "" {
			f.binanceURL = strings.TrimSuffix(url, "/")
		}
	}
}

func binanceStreamURL(base string, symbols []string) string {
	streams := make([]string, len(symbols))
	for i, sym := range symbols {
		streams[i] = strings.ToLower(sym) + "@trade"
	}
	return fmt.Sprintf("%s?streams=%s", base, strings.Join(streams, "/"))
}

// runBinance reconnects with capped exponential backoff until ctx ends.
func (f *Feed) runBinance(ctx context.Context, out chan<- market.Tick) error {
	symbols := f.snapshotSymbols()
	if len(symbols) == 0 {
		return fmt.Errorf("binance feed requires at least one symbol")
	}
	url := binanceStreamURL(f.binanceURL, symbols)
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := f.consumeBinanceStream(ctx, url, symbols, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.log.Warn().Err(err).Dur("backoff", backoff).Msg("binance feed disconnected, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = time.Duration(math.Min(float64(binanceMaxBackoff), float64(backoff)*1.8))
	}
}

func (f *Feed) consumeBinanceStream(ctx context.Context, url string, symbols []string, out chan<- market.Tick) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial binance: %w", err)
	}
	defer conn.Close()

	f.log.Info().Strs("symbols", symbols).Msg("connected price feed")

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(binanceReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(binanceReadTimeout))
	})

	// ReadMessage does not observe ctx; closing the conn unblocks it.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingBinance(pingCtx, conn)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read binance: %w", err)
		}
		tick, err := decodeBinanceTrade(message)
		if err != nil {
			f.log.Warn().Err(err).Msg("skipping binance message")
			continue
		}
		select {
		case out <- tick:
			metrics.TicksTotal.WithLabelValues(tick.Symbol).Inc()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Feed) pingBinance(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(binancePingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(5 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				f.log.Warn().Err(err).Msg("binance ping failed")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// decodeBinanceTrade converts one combined-stream trade message into a tick.
func decodeBinanceTrade(message []byte) (market.Tick, error) {
	var env binanceEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		return market.Tick{}, fmt.Errorf("decode: %w", err)
	}
	px, err := strconv.ParseFloat(env.Data.Price, 64)
	if err != nil {
		return market.Tick{}, fmt.Errorf("invalid price: %w", err)
	}
	qty, err := strconv.ParseFloat(env.Data.Quantity, 64)
	if err != nil {
		return market.Tick{}, fmt.Errorf("invalid quantity: %w", err)
	}
	side := 1
	if env.Data.IsBuyerMaker {
		side = -1
	}
	return market.Tick{
		Symbol: parseBinanceSymbol(env.Stream),
		Price:  px,
		Size:   qty,
		Side:   side,
		Ts:     time.UnixMilli(env.Data.TradeTime).UTC(),
	}, nil
}

func parseBinanceSymbol(stream string) string {
	parts := strings.Split(stream, "@")
	if len(parts) == 0 || parts[0] == "" {
		return strings.ToUpper(stream)
	}
	return strings.ToUpper(parts[0])
}
