// Package fusion aligns events from independent data streams into composite
// snapshots that decision logic can read atomically.
package fusion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/metrics"
	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/stream"
)

var (
	// ErrEngineClosed is returned when starting or registering on a closed engine.
	ErrEngineClosed = errors.New("fusion engine closed")
	// ErrDuplicateStream is returned when a stream id is registered twice.
	ErrDuplicateStream = errors.New("stream already registered")
)

// Engine drains registered streams, aligns their events and keeps the
// resulting snapshots in a Buffer.
//
// One goroutine runs the fusion loop and one runs the cleanup loop; both
// exit before Stop returns.
type Engine struct {
	cfg       Config
	log       zerolog.Logger
	aligner   *Aligner
	buffer    *Buffer
	recorders []Recorder
	now       func() time.Time

	mu      sync.RWMutex
	streams map[string]stream.DataStream
	order   []string

	lifecycle sync.Mutex
	running   atomic.Bool
	closed    bool
	startCtx  context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	fusions    atomic.Uint64
	loopErrors atomic.Uint64
}

// Stats aggregates engine, stream, aligner and buffer observability.
type Stats struct {
	Running      bool                    `json:"running"`
	StreamCount  int                     `json:"stream_count"`
	FusionCount  uint64                  `json:"fusion_count"`
	LoopErrors   uint64                  `json:"loop_errors"`
	SyncWindowMs int64                   `json:"sync_window_ms"`
	Streams      map[string]stream.Stats `json:"streams"`
	Aligner      AlignerStats            `json:"aligner"`
	Buffer       BufferStats             `json:"buffer"`
}

// NewEngine builds an engine with no registered streams.
func NewEngine(cfg Config, log zerolog.Logger, opts ...Option) *Engine {
	cfg = cfg.normalize()
	e := &Engine{
		cfg:     cfg,
		log:     log.With().Str("component", "fusion").Logger(),
		aligner: NewAligner(cfg.SyncWindow, cfg.MaxEventsPerSource),
		buffer:  NewBuffer(cfg.BufferCapacity, cfg.ArchiveSize),
		now:     time.Now,
		streams: make(map[string]stream.DataStream),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the normalized configuration.
func (e *Engine) Config() Config { return e.cfg }

// AddStream registers s. Unless AutoStartLateStreams is set, a stream added to
// a running engine is drained but not started.
func (e *Engine) AddStream(s stream.DataStream) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if e.closed {
		return ErrEngineClosed
	}

	e.mu.Lock()
	if _, ok := e.streams[s.ID()]; ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateStream, s.ID())
	}
	e.streams[s.ID()] = s
	e.order = append(e.order, s.ID())
	e.mu.Unlock()

	e.log.Info().Str("stream", s.ID()).Msg("stream registered")
	if e.running.Load() && e.cfg.AutoStartLateStreams {
		if err := s.Start(e.startCtx); err != nil {
			e.log.Warn().Err(err).Str("stream", s.ID()).Msg("late stream start failed")
		}
	}
	return nil
}

// RemoveStream unregisters the stream with id and hands it back; the caller
// owns stopping or closing it.
func (e *Engine) RemoveStream(id string) (stream.DataStream, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.streams[id]
	if !ok {
		return nil, false
	}
	delete(e.streams, id)
	for i, existing := range e.order {
		if existing == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.log.Info().Str("stream", id).Msg("stream removed")
	return s, true
}

func (e *Engine) registered() []stream.DataStream {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]stream.DataStream, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.streams[id])
	}
	return out
}

// Start starts every registered stream and launches the fusion and cleanup
// loops. Stream start failures are logged and leave that stream in error.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	if e.running.Load() {
		return nil
	}

	streams := e.registered()
	for _, s := range streams {
		if err := s.Start(ctx); err != nil {
			e.log.Warn().Err(err).Str("stream", s.ID()).Msg("stream start failed")
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.startCtx = ctx
	e.cancel = cancel
	e.running.Store(true)
	e.wg.Add(2)
	go e.fusionLoop(runCtx)
	go e.cleanupLoop(runCtx)

	e.log.Info().
		Int("streams", len(streams)).
		Dur("sync_window", e.cfg.SyncWindow).
		Dur("cleanup_interval", e.cfg.CleanupInterval).
		Msg("fusion engine started")
	return nil
}

// Stop cancels both loops, waits for them, then stops every stream.
func (e *Engine) Stop() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	if !e.running.Load() {
		return
	}
	e.cancel()
	e.wg.Wait()
	e.cancel = nil
	e.startCtx = nil
	e.running.Store(false)

	for _, s := range e.registered() {
		s.Stop()
	}
	e.log.Info().Uint64("fusion_count", e.fusions.Load()).Msg("fusion engine stopped")
}

// Close stops the engine, closes every stream and clears the registry. The
// engine cannot be restarted afterwards.
func (e *Engine) Close() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()
	if e.closed {
		return nil
	}
	e.stopLocked()

	var errs []error
	for _, s := range e.registered() {
		if err := s.Close(); err != nil {
			e.log.Warn().Err(err).Str("stream", s.ID()).Msg("stream close failed")
			errs = append(errs, err)
		}
	}

	e.mu.Lock()
	e.streams = make(map[string]stream.DataStream)
	e.order = nil
	e.mu.Unlock()
	e.closed = true
	e.log.Info().Msg("fusion engine closed")
	return errors.Join(errs...)
}

// Running reports whether the loops are active.
func (e *Engine) Running() bool { return e.running.Load() }

// FusionCount returns how many snapshots have been assembled.
func (e *Engine) FusionCount() uint64 { return e.fusions.Load() }

// LatestSnapshot returns the newest snapshot, if any.
func (e *Engine) LatestSnapshot() (Snapshot, bool) {
	latest := e.buffer.Latest(1)
	if len(latest) == 0 {
		return Snapshot{}, false
	}
	return latest[0], true
}

// LatestSnapshots returns up to count snapshots, newest first.
func (e *Engine) LatestSnapshots(count int) []Snapshot {
	return e.buffer.Latest(count)
}

// SnapshotsInRange returns active snapshots stamped within [start, end].
func (e *Engine) SnapshotsInRange(start, end time.Time) []Snapshot {
	return e.buffer.Range(start, end)
}

// Stats aggregates the engine's observability payload.
func (e *Engine) Stats() Stats {
	registered := e.registered()
	st := Stats{
		Running:      e.running.Load(),
		StreamCount:  len(registered),
		FusionCount:  e.fusions.Load(),
		LoopErrors:   e.loopErrors.Load(),
		SyncWindowMs: e.cfg.SyncWindow.Milliseconds(),
		Streams:      make(map[string]stream.Stats, len(registered)),
		Aligner:      e.aligner.Stats(),
		Buffer:       e.buffer.Stats(),
	}
	for _, s := range registered {
		st.Streams[s.ID()] = s.Stats()
	}
	return st
}

func (e *Engine) fusionLoop(ctx context.Context) {
	defer e.wg.Done()
	timer := time.NewTimer(e.cfg.LoopDelay)
	defer timer.Stop()
	for {
		delay := e.cfg.LoopDelay
		if err := e.fuseOnce(ctx); err != nil {
			e.loopErrors.Add(1)
			metrics.FusionLoopErrorsTotal.Inc()
			e.log.Warn().Err(err).Msg("fusion iteration failed")
			delay = e.cfg.ErrorBackoff
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(delay)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// fuseOnce turns a panic into an error.
func (e *Engine) fuseOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fusion iteration panic: %v", r)
		}
	}()

	ingested := 0
	for _, s := range e.registered() {
		ev, ok := s.GetEvent(ctx, e.cfg.EventTimeout)
		if !ok {
			continue
		}
		e.aligner.AddEvent(ev)
		ingested++
	}
	if ctx.Err() != nil {
		return nil
	}
	if e.cfg.FuseOnUpdateOnly && ingested == 0 {
		return nil
	}

	aligned := e.aligner.AlignedEvents(time.Time{})
	if len(aligned) == 0 {
		return nil
	}
	snap := NewSnapshot(aligned)
	e.buffer.Add(snap)
	e.fusions.Add(1)
	metrics.SnapshotsTotal.Inc()
	metrics.SnapshotSources.Observe(float64(len(aligned)))
	for _, r := range e.recorders {
		r.Record(snap)
	}
	return nil
}

func (e *Engine) cleanupLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := e.cleanupOnce()
			if err != nil {
				e.loopErrors.Add(1)
				metrics.FusionLoopErrorsTotal.Inc()
				e.log.Warn().Err(err).Msg("aligner cleanup failed")
				continue
			}
			if removed > 0 {
				metrics.AlignerPurgedTotal.Add(float64(removed))
			}
			e.log.Debug().Int("removed", removed).Msg("aligner cleanup")
		}
	}
}

func (e *Engine) cleanupOnce() (removed int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup panic: %v", r)
		}
	}()
	cutoff := e.now().Add(-e.cfg.CleanupInterval)
	return e.aligner.CleanupOldEvents(cutoff), nil
}
