// Package news polls a JSON headline API and turns new items into news events.
package news

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/market"
	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/stream"
)

const (
	defaultPollInterval      = 30 * time.Second
	defaultRequestsPerMinute = 30
	defaultSeenCapacity      = 512
	maxBodyBytes             = 4 << 20
)

// ErrNoURL is returned by Connect when no endpoint is configured.
var ErrNoURL = errors.New("news: url not configured")

// Config selects the endpoint and where headline fields live in its JSON.
// Paths use gjson syntax and are evaluated relative to each item.
type Config struct {
	URL               string
	APIKey            string
	PollInterval      time.Duration
	RequestsPerMinute int
	ItemsPath         string
	IDPath            string
	TitlePath         string
	PublishedPath     string
	SourcePath        string
	SeenCapacity      int
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = defaultRequestsPerMinute
	}
	if c.ItemsPath == "" {
		c.ItemsPath = "articles"
	}
	if c.IDPath == "" {
		c.IDPath = "id"
	}
	if c.TitlePath == "" {
		c.TitlePath = "title"
	}
	if c.PublishedPath == "" {
		c.PublishedPath = "published_at"
	}
	if c.SourcePath == "" {
		c.SourcePath = "source"
	}
	if c.SeenCapacity <= 0 {
		c.SeenCapacity = defaultSeenCapacity
	}
	return c
}

// Option customizes a Producer.
type Option func(*Producer)

// WithHTTPClient swaps the HTTP client used for polling.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Producer) {
		if c != nil {
			p.client = c
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Producer) {
		if now != nil {
			p.now = now
		}
	}
}

// Producer polls the configured endpoint and hands out unseen headlines one
// per ProduceOne call.
type Producer struct {
	sourceID string
	cfg      Config
	log      zerolog.Logger
	client   *http.Client
	limiter  *rate.Limiter
	now      func() time.Time

	mu        sync.Mutex
	connected bool
	lastPoll  time.Time
	pending   []market.Headline
	seen      *seenSet
}

// NewProducer builds a news producer that emits events as sourceID.
func NewProducer(sourceID string, cfg Config, log zerolog.Logger, opts ...Option) *Producer {
	cfg = cfg.withDefaults()
	p := &Producer{
		sourceID: sourceID,
		cfg:      cfg,
		log:      log.With().Str("source", sourceID).Logger(),
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		now:      time.Now,
		seen:     newSeenSet(cfg.SeenCapacity),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connect validates the endpoint. Polling starts on the first ProduceOne.
func (p *Producer) Connect(context.Context) error {
	if strings.TrimSpace(p.cfg.URL) == "" {
		return ErrNoURL
	}
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return nil
}

// Disconnect drops queued headlines. Seen ids survive so a reconnect does not replay.
func (p *Producer) Disconnect() error {
	p.mu.Lock()
	p.connected = false
	p.pending = nil
	p.mu.Unlock()
	return nil
}

// ProduceOne returns the next unseen headline. It polls when the backlog is
// empty, the poll interval has elapsed and the rate limiter allows it.
func (p *Producer) ProduceOne(ctx context.Context) (*stream.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, fmt.Errorf("%s: not connected", p.sourceID)
	}
	if len(p.pending) == 0 {
		now := p.now()
		if !p.lastPoll.IsZero() && now.Sub(p.lastPoll) < p.cfg.PollInterval {
			return nil, nil
		}
		if !p.limiter.AllowN(now, 1) {
			return nil, nil
		}
		p.lastPoll = now
		items, err := p.fetch(ctx)
		if err != nil {
			return nil, err
		}
		for _, h := range items {
			if p.seen.add(h.ID) {
				p.pending = append(p.pending, h)
			}
		}
		if len(items) > 0 {
			p.log.Debug().Int("fetched", len(items)).Int("new", len(p.pending)).Msg("news poll")
		}
	}
	if len(p.pending) == 0 {
		return nil, nil
	}
	h := p.pending[0]
	p.pending = p.pending[1:]
	ev := stream.NewEvent(p.sourceID, market.EventNews, p.now(), h.Data())
	return &ev, nil
}

func (p *Producer) fetch(ctx context.Context) ([]market.Headline, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("X-Api-Key", p.cfg.APIKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("decode response: invalid json")
	}
	return parseHeadlines(body, p.cfg), nil
}

// parseHeadlines extracts items in document order. Items without an id or
// title are skipped; a missing id falls back to the title.
func parseHeadlines(body []byte, cfg Config) []market.Headline {
	items := gjson.GetBytes(body, cfg.ItemsPath).Array()
	out := make([]market.Headline, 0, len(items))
	for _, item := range items {
		title := strings.TrimSpace(item.Get(cfg.TitlePath).String())
		if title == "" {
			continue
		}
		id := strings.TrimSpace(item.Get(cfg.IDPath).String())
		if id == "" {
			id = title
		}
		h := market.Headline{
			ID:     id,
			Title:  title,
			Source: item.Get(cfg.SourcePath).String(),
		}
		if pub := item.Get(cfg.PublishedPath); pub.Exists() {
			h.Published = parsePublished(pub)
		}
		out = append(out, h)
	}
	return out
}

func parsePublished(v gjson.Result) time.Time {
	if v.Type == gjson.Number {
		return time.Unix(v.Int(), 0).UTC()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC1123Z, time.RFC1123} {
		if ts, err := time.Parse(layout, v.String()); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
