package fusion

import (
	"time"
)

// Config tunes the engine. Zero values take defaults.
type Config struct {
	SyncWindow         time.Duration
	BufferCapacity     int
	ArchiveSize        int
	CleanupInterval    time.Duration
	MaxEventsPerSource int
	// EventTimeout bounds how long one silent stream can hold up an iteration.
	EventTimeout time.Duration
	LoopDelay    time.Duration
	ErrorBackoff time.Duration
	// FuseOnUpdateOnly skips alignment in iterations that ingested nothing.
	FuseOnUpdateOnly bool
	// AutoStartLateStreams starts streams added while the engine runs.
	AutoStartLateStreams bool
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{}.normalize()
}

func (c Config) normalize() Config {
	if c.SyncWindow <= 0 {
		c.SyncWindow = defaultSyncWindow
	}
	if c.BufferCapacity <= 0 {
		c.BufferCapacity = defaultBufferCapacity
	}
	if c.ArchiveSize <= 0 {
		c.ArchiveSize = defaultArchiveSize
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 60 * time.Second
	}
	if c.MaxEventsPerSource <= 0 {
		c.MaxEventsPerSource = defaultMaxEventsPerSource
	}
	if c.EventTimeout <= 0 {
		c.EventTimeout = 100 * time.Millisecond
	}
	if c.LoopDelay <= 0 {
		c.LoopDelay = 10 * time.Millisecond
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 100 * time.Millisecond
	}
	return c
}

// Recorder receives every snapshot the engine assembles.
type Recorder interface {
	Record(Snapshot)
}

// Option configures Engine construction parameters.
type Option func(*Engine)

// WithRecorder attaches a snapshot sink.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorders = append(e.recorders, r)
		}
	}
}

// WithClock overrides the wall clock used by the cleanup loop.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
