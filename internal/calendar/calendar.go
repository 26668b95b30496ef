// Package calendar emits proximity warnings ahead of scheduled economic releases.
package calendar

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/market"
	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/stream"
)

const (
	defaultWarnBefore    = 15 * time.Minute
	defaultCheckInterval = time.Second
)

// Entry is a scheduled release. One-off entries set At; recurring entries set Schedule.
type Entry struct {
	Name     string
	Currency string
	Impact   string
	At       time.Time
	Schedule cron.Schedule
}

// ParseEntry builds an Entry from an RFC3339 time or a standard five-field
// cron spec. Cron specs without a CRON_TZ prefix are evaluated in UTC.
func ParseEntry(name, currency, impact, at, spec string) (Entry, error) {
	e := Entry{Name: name, Currency: strings.ToUpper(currency), Impact: strings.ToLower(impact)}
	at, spec = strings.TrimSpace(at), strings.TrimSpace(spec)
	switch {
	case at != "" && spec != "":
		return Entry{}, fmt.Errorf("calendar entry %q: set either at or cron, not both", name)
	case at != "":
		ts, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return Entry{}, fmt.Errorf("calendar entry %q: parse at: %w", name, err)
		}
		e.At = ts.UTC()
	case spec != "":
		if !strings.HasPrefix(spec, "CRON_TZ=") && !strings.HasPrefix(spec, "TZ=") {
			spec = "CRON_TZ=UTC " + spec
		}
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			return Entry{}, fmt.Errorf("calendar entry %q: parse cron: %w", name, err)
		}
		e.Schedule = sched
	default:
		return Entry{}, fmt.Errorf("calendar entry %q: missing at or cron", name)
	}
	return e, nil
}

// next returns the first occurrence strictly after t, or false if none remains.
func (e Entry) next(t time.Time) (time.Time, bool) {
	if e.Schedule != nil {
		n := e.Schedule.Next(t)
		return n, !n.IsZero()
	}
	if e.At.After(t) {
		return e.At, true
	}
	return time.Time{}, false
}

// Option customizes a Producer.
type Option func(*Producer)

// WithWarnBefore sets how far ahead of an occurrence the warning fires.
func WithWarnBefore(d time.Duration) Option {
	return func(p *Producer) {
		if d > 0 {
			p.warnBefore = d
		}
	}
}

// WithCheckInterval sets how often the schedule is scanned.
func WithCheckInterval(d time.Duration) Option {
	return func(p *Producer) {
		if d > 0 {
			p.checkEvery = d
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

// Producer scans its entries and emits one calendar_proximity event per
// occurrence once it is within the warn window.
type Producer struct {
	sourceID   string
	entries    []Entry
	log        zerolog.Logger
	warnBefore time.Duration
	checkEvery time.Duration
	now        func() time.Time

	mu        sync.Mutex
	connected bool
	lastCheck time.Time
	warned    map[string]time.Time
	pending   []market.CalendarWarning
}

// NewProducer builds a calendar producer over entries.
func NewProducer(sourceID string, entries []Entry, log zerolog.Logger, opts ...Option) *Producer {
	p := &Producer{
		sourceID:   sourceID,
		entries:    append([]Entry(nil), entries...),
		log:        log.With().Str("source", sourceID).Logger(),
		warnBefore: defaultWarnBefore,
		checkEvery: defaultCheckInterval,
		now:        time.Now,
		warned:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connect arms the producer. Entries are local so nothing can fail here.
func (p *Producer) Connect(context.Context) error {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return nil
}

// Disconnect drops undelivered warnings.
func (p *Producer) Disconnect() error {
	p.mu.Lock()
	p.connected = false
	p.pending = nil
	p.mu.Unlock()
	return nil
}

// ProduceOne returns the next due warning or nothing.
func (p *Producer) ProduceOne(context.Context) (*stream.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, fmt.Errorf("%s: not connected", p.sourceID)
	}
	now := p.now().UTC()
	if len(p.pending) == 0 && (p.lastCheck.IsZero() || now.Sub(p.lastCheck) >= p.checkEvery) {
		p.lastCheck = now
		p.scan(now)
	}
	if len(p.pending) == 0 {
		return nil, nil
	}
	w := p.pending[0]
	p.pending = p.pending[1:]
	w.Until = w.ScheduleAt.Sub(now)
	ev := stream.NewEvent(p.sourceID, market.EventCalendarProximity, now, w.Data())
	return &ev, nil
}

func (p *Producer) scan(now time.Time) {
	for key, at := range p.warned {
		if !at.After(now) {
			delete(p.warned, key)
		}
	}
	for _, e := range p.entries {
		at, ok := e.next(now)
		if !ok || at.Sub(now) > p.warnBefore {
			continue
		}
		key := fmt.Sprintf("%s@%d", e.Name, at.Unix())
		if _, done := p.warned[key]; done {
			continue
		}
		p.warned[key] = at
		p.pending = append(p.pending, market.CalendarWarning{
			Name:       e.Name,
			Currency:   e.Currency,
			Impact:     e.Impact,
			ScheduleAt: at,
		})
		p.log.Info().Str("event", e.Name).Time("at", at).Msg("calendar release approaching")
	}
	sort.SliceStable(p.pending, func(i, j int) bool {
		return p.pending[i].ScheduleAt.Before(p.pending[j].ScheduleAt)
	})
}
