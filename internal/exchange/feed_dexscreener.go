package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/market"
	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/metrics"
)

type dexscreenerTarget struct {
	Alias   string
	Chain   string
	Address string
}

// dexscreenerPair is the subset of a pair document the feed reads.
type dexscreenerPair struct {
	PriceUSD    float64
	PriceNative float64
	Windows     []dexscreenerWindow
	LiquidityUS float64
}

// dexscreenerWindow is one of the m5/h1/h6/h24 activity buckets.
type dexscreenerWindow struct {
	Volume float64
	Buys   int64
	Sells  int64
}

var dexscreenerWindowKeys = []string{"m5", "h1", "h6", "h24"}

// parseDexScreenerPair reads the first entry of "pairs", falling back to the
// single-pair "pair" shape.
func parseDexScreenerPair(body []byte) (*dexscreenerPair, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decode response: invalid json")
	}
	doc := gjson.GetBytes(body, "pairs.0")
	if !doc.Exists() {
		doc = gjson.GetBytes(body, "pair")
	}
	if !doc.Exists() || doc.Type == gjson.Null {
		return nil, fmt.Errorf("no pair data returned")
	}
	pair := &dexscreenerPair{
		PriceUSD:    doc.Get("priceUsd").Float(),
		PriceNative: doc.Get("priceNative").Float(),
		LiquidityUS: doc.Get("liquidity.usd").Float(),
	}
	for _, key := range dexscreenerWindowKeys {
		pair.Windows = append(pair.Windows, dexscreenerWindow{
			Volume: doc.Get("volume." + key).Float(),
			Buys:   doc.Get("txns." + key + ".buys").Int(),
			Sells:  doc.Get("txns." + key + ".sells").Int(),
		})
	}
	return pair, nil
}

func (f *Feed) runDexScreener(ctx context.Context, out chan<- market.Tick) error {
	client := &http.Client{Timeout: 10 * time.Second}
	if err := f.pollDexScreener(ctx, client, out); err != nil && !errors.Is(err, context.Canceled) {
		f.log.Warn().Err(err).Msg("initial dexscreener poll failed")
	}

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := f.pollDexScreener(ctx, client, out); err != nil && !errors.Is(err, context.Canceled) {
				f.log.Warn().Err(err).Msg("dexscreener poll failed")
			}
		}
	}
}

func (f *Feed) pollDexScreener(ctx context.Context, client *http.Client, out chan<- market.Tick) error {
	targets, err := parseDexScreenerSymbols(f.snapshotSymbols(), f.dexscreenerDefaultChain)
	if err != nil {
		return err
	}
	for _, target := range targets {
		tick, err := f.fetchDexScreener(ctx, client, target)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Str("symbol", target.Alias).Msg("dexscreener fetch failed")
			continue
		}
		select {
		case out <- tick:
			metrics.TicksTotal.WithLabelValues(tick.Symbol).Inc()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *Feed) fetchDexScreener(ctx context.Context, client *http.Client, target dexscreenerTarget) (market.Tick, error) {
	url := fmt.Sprintf("%s/latest/dex/pairs/%s/%s", f.dexscreenerBaseURL, target.Chain, target.Address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return market.Tick{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "fusiond/1.0")
	resp, err := client.Do(req)
	if err != nil {
		return market.Tick{}, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return market.Tick{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return market.Tick{}, fmt.Errorf("read body: %w", err)
	}

	pair, err := parseDexScreenerPair(body)
	if err != nil {
		return market.Tick{}, err
	}
	price := pair.price()
	if price <= 0 {
		return market.Tick{}, fmt.Errorf("pair missing price")
	}
	qty := pair.estimateSize(price)
	if qty <= 0 {
		qty = math.Max(1e-6, 10/price)
	}

	f.mu.Lock()
	last := f.lastPrices[target.Alias]
	f.lastPrices[target.Alias] = price
	f.mu.Unlock()

	return market.Tick{
		Symbol: target.Alias,
		Price:  price,
		Size:   qty,
		Side:   pair.side(last, price),
		Ts:     time.Now().UTC(),
	}, nil
}

// price prefers the USD quote over the native one.
func (p *dexscreenerPair) price() float64 {
	if p.PriceUSD > 0 {
		return p.PriceUSD
	}
	return p.PriceNative
}

// side infers aggressor direction from recent buy/sell counts, else from the
// move against the last observed price.
func (p *dexscreenerPair) side(lastPrice, price float64) int {
	if recent := p.Windows[0]; recent.Buys+recent.Sells > 0 {
		if recent.Buys >= recent.Sells {
			return 1
		}
		return -1
	}
	if lastPrice > 0 && price < lastPrice {
		return -1
	}
	return 1
}

// estimateSize approximates a typical trade size from the shortest window
// with activity, falling back to a slice of liquidity.
func (p *dexscreenerPair) estimateSize(price float64) float64 {
	if price <= 0 {
		return 0
	}
	for _, w := range p.Windows {
		if trades := w.Buys + w.Sells; w.Volume > 0 && trades > 0 {
			return w.Volume / float64(trades) / price
		}
	}
	if p.LiquidityUS > 0 {
		return p.LiquidityUS * 0.0005 / price
	}
	return 0
}

// parseDexScreenerSymbols accepts "ALIAS@chain/address", "ALIAS@/address" or
// a bare address; a missing chain takes defaultChain.
func parseDexScreenerSymbols(symbols []string, defaultChain string) ([]dexscreenerTarget, error) {
	defaultChain = strings.ToLower(strings.TrimSpace(defaultChain))
	targets := make([]dexscreenerTarget, 0, len(symbols))
	for _, raw := range symbols {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		aliasPart, targetPart := raw, raw
		if a, t, ok := strings.Cut(raw, "@"); ok {
			aliasPart, targetPart = a, t
		}
		chain, address := defaultChain, targetPart
		if c, a, ok := strings.Cut(targetPart, "/"); ok {
			if c != "" {
				chain = c
			}
			address = a
		}
		chain = strings.ToLower(strings.TrimSpace(chain))
		address = strings.TrimSpace(address)
		if chain == "" || address == "" {
			return nil, fmt.Errorf("dexscreener symbol %q missing chain or address", raw)
		}
		targets = append(targets, dexscreenerTarget{
			Alias:   composeDexAlias(aliasPart, address),
			Chain:   chain,
			Address: address,
		})
	}
	return targets, nil
}
