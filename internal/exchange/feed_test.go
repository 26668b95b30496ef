package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/market"
)

func TestFeedRunEmitsTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewFeed(ProviderStub, []string{"BTCUSDT"}, zerolog.Nop(), WithStubInterval(10*time.Millisecond))
	ticks := make(chan market.Tick, 1)

	go func() {
		_ = feed.Run(ctx, ticks)
	}()

	select {
	case tk := <-ticks:
		if tk.Symbol != "BTCUSDT" {
			t.Fatalf("unexpected symbol %s", tk.Symbol)
		}
		cancel()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tick")
	}
}

func TestParseBinanceSymbol(t *testing.T) {
	cases := map[string]string{
		"btcusdt@trade":    "BTCUSDT",
		"ethusdt@aggTrade": "ETHUSDT",
		"dogeusdt":         "DOGEUSDT",
		"":                 "",
	}
	for stream, expected := range cases {
		if got := parseBinanceSymbol(stream); got != expected {
			t.Fatalf("expected %s got %s", expected, got)
		}
	}
}

func TestParseDexScreenerSymbols(t *testing.T) {
	targets, err := parseDexScreenerSymbols([]string{"WIFSOL@solana/PAIR", "BODEN@/another"}, "solana")
	if err != nil {
		t.Fatalf("parseDexScreenerSymbols returned error: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	if targets[0].Alias != "WIFSOL_PAIR" || targets[0].Chain != "solana" || targets[0].Address != "PAIR" {
		t.Fatalf("unexpected first target: %+v", targets[0])
	}
	if targets[1].Chain != "solana" {
		t.Fatalf("expected default chain applied")
	}
}

func TestRunDexScreenerEmitsTick(t *testing.T) {
	const body = `{"pairs":[{"priceUsd":"0.01","priceNative":"0.0001","txns":{"m5":{"buys":3,"sells":1},"h1":{"buys":5,"sells":4},"h6":{"buys":10,"sells":8},"h24":{"buys":20,"sells":20}},"volume":{"m5":120,"h1":500,"h6":1000,"h24":5000},"liquidity":{"usd":20000,"base":1000000,"quote":5000}}]}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewFeed(
		ProviderDexScreener,
		[]string{"WIFSOL@solana/PAIR"},
		zerolog.Nop(),
		WithDexScreenerConfig(server.URL, "solana"),
		WithPollInterval(50*time.Millisecond),
	)

	ticks := make(chan market.Tick, 1)
	errCh := make(chan error, 1)
	go func() {
		if err := feed.Run(ctx, ticks); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case tk := <-ticks:
		if tk.Symbol != "WIFSOL_PAIR" {
			t.Fatalf("unexpected symbol %s", tk.Symbol)
		}
		if tk.Price <= 0 {
			t.Fatalf("expected positive price")
		}
		if tk.Size <= 0 {
			t.Fatalf("expected positive size")
		}
		cancel()
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatalf("timed out waiting for tick")
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("feed returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("feed did not stop after cancel")
	}
}

func TestDecodeBinanceTrade(t *testing.T) {
	tick, err := decodeBinanceTrade([]byte(`{"stream":"ethusdt@trade","data":{"p":"2500.5","q":"0.2","T":1759320000000,"m":true}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tick.Symbol != "ETHUSDT" || tick.Price != 2500.5 || tick.Side != -1 {
		t.Fatalf("unexpected tick %+v", tick)
	}
	if tick.Ts.UnixMilli() != 1759320000000 || tick.Ts.Location() != time.UTC {
		t.Fatalf("unexpected timestamp %s", tick.Ts)
	}
	if _, err := decodeBinanceTrade([]byte(`{"stream":"x@trade","data":{"p":"nan?","q":"1"}}`)); err == nil {
		t.Fatalf("expected price error")
	}
}

func TestRunBinanceStreamsTrades(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotQuery := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery <- r.URL.Query().Get("streams")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@trade","data":{"p":"oops","q":"1"}}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@trade","data":{"p":"65000","q":"0.01","T":1759320000000,"m":false}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed := NewFeed(ProviderBinance, []string{"BTCUSDT"}, zerolog.Nop(),
		WithBinanceURL("ws"+strings.TrimPrefix(server.URL, "http")))
	ticks := make(chan market.Tick, 1)
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx, ticks) }()

	select {
	case tk := <-ticks:
		if tk.Symbol != "BTCUSDT" || tk.Price != 65000 || tk.Side != 1 {
			t.Fatalf("unexpected tick %+v", tk)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for binance tick")
	}
	if q := <-gotQuery; q != "btcusdt@trade" {
		t.Fatalf("unexpected streams query %q", q)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("binance feed did not stop after cancel")
	}
}

func TestRunBinanceRequiresSymbols(t *testing.T) {
	feed := NewFeed(ProviderBinance, nil, zerolog.Nop())
	if err := feed.Run(context.Background(), make(chan market.Tick)); err == nil {
		t.Fatal("expected error without symbols")
	}
}

func TestParseDexScreenerPairFallbacks(t *testing.T) {
	pair, err := parseDexScreenerPair([]byte(`{"pair":{"priceUsd":"","priceNative":"0.5","liquidity":{"usd":1000}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pair.price() != 0.5 {
		t.Fatalf("expected native price fallback, got %f", pair.price())
	}
	if got := pair.estimateSize(0.5); got != 1 {
		t.Fatalf("expected liquidity-based size 1, got %f", got)
	}
	if pair.side(1, 0.5) != -1 {
		t.Fatalf("expected sell side on a falling price without txns")
	}
	if _, err := parseDexScreenerPair([]byte(`{"pairs":[]}`)); err == nil {
		t.Fatalf("expected error for empty pairs")
	}
	if _, err := parseDexScreenerPair([]byte(`{"pair":null}`)); err == nil {
		t.Fatalf("expected error for null pair")
	}
}

func TestComposeDexAlias(t *testing.T) {
	cases := map[[2]string]string{
		{"wif-sol", "abcdef123456"}: "WIFSOL_123456",
		{"", "xyz"}:                 "PAIR_XYZ",
		{"", ""}:                    "PAIR",
		{"bonk", "--"}:              "BONK",
	}
	for in, want := range cases {
		if got := composeDexAlias(in[0], in[1]); got != want {
			t.Fatalf("composeDexAlias(%q, %q) = %q, want %q", in[0], in[1], got, want)
		}
	}
}

func TestSetSymbolsNormalizes(t *testing.T) {
	feed := NewFeed("", []string{" ETHUSDT", "BTCUSDT", "", "ETHUSDT"}, zerolog.Nop())
	got := feed.snapshotSymbols()
	if len(got) != 2 || got[0] != "BTCUSDT" || got[1] != "ETHUSDT" {
		t.Fatalf("unexpected symbols %v", got)
	}
	if feed.Provider() != ProviderStub {
		t.Fatalf("expected stub default, got %s", feed.Provider())
	}
	feed.SetSymbols(nil)
	if len(feed.snapshotSymbols()) != 0 {
		t.Fatalf("expected symbols cleared")
	}
}
