package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/metrics"
)

var (
	// ErrClosed is returned when starting a stream after Close.
	ErrClosed = errors.New("stream closed")
	// ErrConnect wraps a producer connect failure.
	ErrConnect = errors.New("stream connect failed")
)

// Producer is the upstream half of a data stream: a price feed, a news API, a
// calendar. ProduceOne returns (nil, nil) when nothing is available right now.
type Producer interface {
	Connect(ctx context.Context) error
	Disconnect() error
	ProduceOne(ctx context.Context) (*Event, error)
}

// ProducerFunc adapts a plain function into a Producer with no connection state.
type ProducerFunc func(ctx context.Context) (*Event, error)

// Connect is a no-op.
func (f ProducerFunc) Connect(context.Context) error { return nil }

// Disconnect is a no-op.
func (f ProducerFunc) Disconnect() error { return nil }

// ProduceOne calls f.
func (f ProducerFunc) ProduceOne(ctx context.Context) (*Event, error) { return f(ctx) }

// DataStream is what the fusion engine registers and drains.
type DataStream interface {
	Producer
	ID() string
	Start(ctx context.Context) error
	Stop()
	Close() error
	GetEvent(ctx context.Context, timeout time.Duration) (Event, bool)
	Stats() Stats
}

// Stats is a point-in-time health view of a stream.
type Stats struct {
	ID                string    `json:"id"`
	Status            Status    `json:"status"`
	EventCount        uint64    `json:"event_count"`
	ErrorCount        uint64    `json:"error_count"`
	ConsecutiveErrors int64     `json:"consecutive_errors"`
	DroppedCount      uint64    `json:"dropped_count"`
	QueueSize         int       `json:"queue_size"`
	QueueCapacity     int       `json:"queue_capacity"`
	LastEventAt       time.Time `json:"last_event_at,omitempty"`
}

const (
	// MaxConsecutiveErrors is the failure run a stream tolerates before entering StatusError.
	MaxConsecutiveErrors = 10

	defaultQueueCapacity   = 1000
	defaultProduceInterval = 10 * time.Millisecond
	defaultErrorBackoff    = time.Second
)

// Option configures Stream construction parameters.
type Option func(*Stream)

// WithQueueCapacity bounds the per-stream event queue.
func WithQueueCapacity(n int) Option {
	return func(s *Stream) {
		if n > 0 {
			s.queue = NewQueue[Event](n)
		}
	}
}

// WithProduceInterval sets the pause between successful ProduceOne calls.
func WithProduceInterval(d time.Duration) Option {
	return func(s *Stream) {
		if d >= 0 {
			s.interval = d
		}
	}
}

// WithErrorBackoff sets the pause after a failed ProduceOne call.
func WithErrorBackoff(d time.Duration) Option {
	return func(s *Stream) {
		if d >= 0 {
			s.backoff = d
		}
	}
}

// Stream runs a Producer in its own goroutine and buffers its output in a
// drop-oldest queue.
type Stream struct {
	id       string
	producer Producer
	log      zerolog.Logger
	queue    *Queue[Event]
	interval time.Duration
	backoff  time.Duration

	// lifecycle serializes Start, Stop and Close.
	lifecycle sync.Mutex
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}

	status      atomic.Int32
	events      atomic.Uint64
	errors      atomic.Uint64
	consecutive atomic.Int64
	lastEvent   atomic.Int64
}

// New wraps producer as a DataStream identified by id.
func New(id string, producer Producer, log zerolog.Logger, opts ...Option) *Stream {
	s := &Stream{
		id:       id,
		producer: producer,
		log:      log.With().Str("stream", id).Logger(),
		queue:    NewQueue[Event](defaultQueueCapacity),
		interval: defaultProduceInterval,
		backoff:  defaultErrorBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setStatus(StatusIdle)
	return s
}

// ID returns the stream identifier.
func (s *Stream) ID() string { return s.id }

// Status returns the current health state.
func (s *Stream) Status() Status { return Status(s.status.Load()) }

func (s *Stream) setStatus(st Status) {
	s.status.Store(int32(st))
	metrics.StreamStatus.WithLabelValues(s.id).Set(float64(st))
}

// Connect establishes the upstream connection. Calling it while connected is a no-op.
func (s *Stream) Connect(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.connectLocked(ctx)
}

func (s *Stream) connectLocked(ctx context.Context) error {
	if s.connected {
		return nil
	}
	if err := s.producer.Connect(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConnect, s.id, err)
	}
	s.connected = true
	return nil
}

// Disconnect releases upstream resources. Safe to call repeatedly.
func (s *Stream) Disconnect() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.disconnectLocked()
}

func (s *Stream) disconnectLocked() error {
	if !s.connected {
		return nil
	}
	s.connected = false
	if err := s.producer.Disconnect(); err != nil {
		return fmt.Errorf("disconnect %s: %w", s.id, err)
	}
	return nil
}

// ProduceOne pulls a single event straight from the producer, bypassing the queue.
func (s *Stream) ProduceOne(ctx context.Context) (*Event, error) {
	return s.producer.ProduceOne(ctx)
}

// Start connects if needed and launches the production loop. A failed connect
// leaves the stream in StatusError. Restarting from StatusError drops the old
// connection and reconnects.
func (s *Stream) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	switch s.Status() {
	case StatusActive:
		return nil
	case StatusClosed:
		return ErrClosed
	}

	if s.Status() == StatusError {
		s.stopLocked()
		if err := s.disconnectLocked(); err != nil {
			s.log.Warn().Err(err).Msg("disconnect before restart failed")
		}
	}
	if !s.connected {
		s.setStatus(StatusConnecting)
		if err := s.connectLocked(ctx); err != nil {
			s.setStatus(StatusError)
			s.log.Error().Err(err).Msg("stream connect failed")
			return err
		}
	}

	s.stopLocked()
	s.consecutive.Store(0)
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.setStatus(StatusActive)
	go s.run(loopCtx, s.done)
	s.log.Info().Msg("stream started")
	return nil
}

// Stop cancels the production loop and waits for it to exit.
func (s *Stream) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.stopLocked()
}

func (s *Stream) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	if s.status.CompareAndSwap(int32(StatusActive), int32(StatusPaused)) {
		metrics.StreamStatus.WithLabelValues(s.id).Set(float64(StatusPaused))
		s.log.Info().Msg("stream paused")
	}
}

// Close stops the loop, disconnects and marks the stream terminal.
func (s *Stream) Close() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.Status() == StatusClosed {
		return nil
	}
	s.stopLocked()
	err := s.disconnectLocked()
	s.setStatus(StatusClosed)
	s.log.Info().Msg("stream closed")
	return err
}

// GetEvent pops the oldest queued event, waiting up to timeout.
func (s *Stream) GetEvent(ctx context.Context, timeout time.Duration) (Event, bool) {
	return s.queue.Pop(ctx, timeout)
}

// Stats reports counters and queue occupancy.
func (s *Stream) Stats() Stats {
	st := Stats{
		ID:                s.id,
		Status:            s.Status(),
		EventCount:        s.events.Load(),
		ErrorCount:        s.errors.Load(),
		ConsecutiveErrors: s.consecutive.Load(),
		DroppedCount:      s.queue.Dropped(),
		QueueSize:         s.queue.Len(),
		QueueCapacity:     s.queue.Cap(),
	}
	if ns := s.lastEvent.Load(); ns > 0 {
		st.LastEventAt = time.Unix(0, ns).UTC()
	}
	return st
}

func (s *Stream) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for s.Status() == StatusActive {
		ev, err := s.producer.ProduceOne(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.errors.Add(1)
			metrics.StreamErrorsTotal.WithLabelValues(s.id).Inc()
			if n := s.consecutive.Add(1); n > MaxConsecutiveErrors {
				s.setStatus(StatusError)
				s.log.Error().Err(err).Int64("consecutive_errors", n).Msg("stream exceeded error threshold")
				return
			}
			s.log.Warn().Err(err).Msg("produce failed")
			if !sleepCtx(ctx, s.backoff) {
				return
			}
			continue
		}
		s.consecutive.Store(0)
		if ev != nil {
			if s.queue.Push(*ev) {
				metrics.StreamEventsDroppedTotal.WithLabelValues(s.id).Inc()
			}
			s.events.Add(1)
			s.lastEvent.Store(time.Now().UnixNano())
			metrics.StreamEventsTotal.WithLabelValues(s.id).Inc()
		}
		if !sleepCtx(ctx, s.interval) {
			return
		}
	}
}

// sleepCtx waits d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
