// Package exchange hosts the price-tick producer and its venue connectors.
package exchange

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/market"
	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/metrics"
)

// Supported price providers.
const (
	ProviderStub        = "stub"
	ProviderBinance     = "binance"
	ProviderDexScreener = "dexscreener"
)

const (
	defaultPollInterval       = 2 * time.Second
	defaultStubInterval       = 500 * time.Millisecond
	defaultDexScreenerBaseURL = "https://api.dexscreener.com"
)

// Feed pushes ticks for a symbol set from one provider. Stub emits a
// synthetic upward drift, Binance streams trades over a websocket and
// Dexscreener polls pair snapshots over HTTP.
type Feed struct {
	provider string
	log      zerolog.Logger

	pollInterval            time.Duration
	stubInterval            time.Duration
	binanceURL              string
	dexscreenerBaseURL      string
	dexscreenerDefaultChain string

	mu         sync.RWMutex
	symbols    []string
	lastPrices map[string]float64
}

// Option configures a Feed.
type Option func(*Feed)

// WithPollInterval sets the Dexscreener polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(f *Feed) { f.pollInterval = positiveOr(d, f.pollInterval) }
}

// WithStubInterval sets how often the stub provider emits.
func WithStubInterval(d time.Duration) Option {
	return func(f *Feed) { f.stubInterval = positiveOr(d, f.stubInterval) }
}

// WithDexScreenerConfig overrides the API base URL and the chain used for
// symbols that do not name one.
func WithDexScreenerConfig(baseURL, defaultChain string) Option {
	return func(f *Feed) {
		if baseURL != "" {
			f.dexscreenerBaseURL = strings.TrimSuffix(baseURL, "/")
		}
		if defaultChain != "" {
			f.dexscreenerDefaultChain = strings.ToLower(defaultChain)
		}
	}
}

func positiveOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// NewFeed builds a feed; an empty provider means stub.
func NewFeed(provider string, symbols []string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	f := &Feed{
		provider:           strings.ToLower(provider),
		log:                log.With().Str("provider", strings.ToLower(provider)).Logger(),
		pollInterval:       defaultPollInterval,
		stubInterval:       defaultStubInterval,
		binanceURL:         defaultBinanceURL,
		dexscreenerBaseURL: defaultDexScreenerBaseURL,
		lastPrices:         make(map[string]float64),
	}
	f.SetSymbols(symbols)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Provider returns the normalized provider name.
func (f *Feed) Provider() string { return f.provider }

// SetSymbols replaces the tracked symbols, trimmed, de-duplicated and sorted.
// Binance picks up changes on its next reconnect; the other providers on their next emit.
func (f *Feed) SetSymbols(symbols []string) {
	cleaned := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if sym = strings.TrimSpace(sym); sym != "" {
			cleaned = append(cleaned, sym)
		}
	}
	slices.Sort(cleaned)
	cleaned = slices.Compact(cleaned)

	f.mu.Lock()
	f.symbols = cleaned
	f.mu.Unlock()
}

func (f *Feed) snapshotSymbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.symbols)
}

// Run emits ticks onto out until ctx ends or the provider fails for good.
func (f *Feed) Run(ctx context.Context, out chan<- market.Tick) error {
	switch f.provider {
	case ProviderBinance:
		return f.runBinance(ctx, out)
	case ProviderDexScreener:
		return f.runDexScreener(ctx, out)
	default:
		return f.runStub(ctx, out)
	}
}

func (f *Feed) runStub(ctx context.Context, out chan<- market.Tick) error {
	ticker := time.NewTicker(f.stubInterval)
	defer ticker.Stop()

	px := 100.0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			px += 0.1
			for _, sym := range f.snapshotSymbols() {
				select {
				case out <- market.Tick{Symbol: sym, Price: px, Size: 1, Side: 1, Ts: ts.UTC()}:
					metrics.TicksTotal.WithLabelValues(sym).Inc()
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}
