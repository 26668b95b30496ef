package fusion

import (
	"sync"
	"time"

	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/stream"
)

const (
	defaultSyncWindow         = 100 * time.Millisecond
	defaultMaxEventsPerSource = 1000
)

// Aligner keeps a short rolling history per source and picks, for a reference
// time, the closest event of each source inside the sync window.
type Aligner struct {
	window    time.Duration
	maxEvents int

	mu      sync.Mutex
	buffers map[string][]stream.Event
	latest  map[string]time.Time
	aligned uint64
	dropped uint64
	purged  uint64
}

// SourceStats describes one source's buffered history.
type SourceStats struct {
	Buffered int       `json:"buffered"`
	Latest   time.Time `json:"latest"`
}

// AlignerStats is the observability view of the aligner.
type AlignerStats struct {
	SyncWindowMs  int64                  `json:"sync_window_ms"`
	Sources       map[string]SourceStats `json:"sources"`
	TotalBuffered int                    `json:"total_buffered"`
	AlignedCount  uint64                 `json:"aligned_count"`
	DroppedCount  uint64                 `json:"dropped_count"`
	PurgedCount   uint64                 `json:"purged_count"`
}

// NewAligner builds an aligner. Non-positive arguments fall back to 100ms and 1000 events.
func NewAligner(window time.Duration, maxEventsPerSource int) *Aligner {
	if window <= 0 {
		window = defaultSyncWindow
	}
	if maxEventsPerSource <= 0 {
		maxEventsPerSource = defaultMaxEventsPerSource
	}
	return &Aligner{
		window:    window,
		maxEvents: maxEventsPerSource,
		buffers:   make(map[string][]stream.Event),
		latest:    make(map[string]time.Time),
	}
}

// Window returns the sync window.
func (a *Aligner) Window() time.Duration { return a.window }

// AddEvent appends ev to its source history, evicting the oldest entries past the bound.
func (a *Aligner) AddEvent(ev stream.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf := append(a.buffers[ev.SourceID], ev)
	if over := len(buf) - a.maxEvents; over > 0 {
		n := copy(buf, buf[over:])
		clear(buf[n:])
		buf = buf[:n]
		a.dropped += uint64(over)
	}
	a.buffers[ev.SourceID] = buf
	a.latest[ev.SourceID] = ev.Timestamp
}

// AlignedEvents returns, per source, the buffered event nearest to ref whose
// distance does not exceed the window. A zero ref aligns to the newest latest
// timestamp across sources. Sources without a candidate are absent.
//
// On equal distance the earlier timestamp wins, then the earlier-buffered event.
func (a *Aligner) AlignedEvents(ref time.Time) map[string]stream.Event {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ref.IsZero() {
		for _, ts := range a.latest {
			if ts.After(ref) {
				ref = ts
			}
		}
		if ref.IsZero() {
			return map[string]stream.Event{}
		}
	}

	out := make(map[string]stream.Event, len(a.buffers))
	for source, buf := range a.buffers {
		best := -1
		var bestDist time.Duration
		for i, ev := range buf {
			dist := absDuration(ev.Timestamp.Sub(ref))
			if dist > a.window {
				continue
			}
			if best < 0 || dist < bestDist || (dist == bestDist && ev.Timestamp.Before(buf[best].Timestamp)) {
				best, bestDist = i, dist
			}
		}
		if best >= 0 {
			out[source] = buf[best]
		}
	}
	if len(out) > 0 {
		a.aligned++
	}
	return out
}

// CleanupOldEvents discards buffered events older than cutoff and returns how many were removed.
func (a *Aligner) CleanupOldEvents(cutoff time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for source, buf := range a.buffers {
		kept := buf[:0]
		for _, ev := range buf {
			if ev.Timestamp.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, ev)
		}
		clear(buf[len(kept):])
		a.buffers[source] = kept
	}
	a.purged += uint64(removed)
	return removed
}

// Stats snapshots buffer sizes and counters.
func (a *Aligner) Stats() AlignerStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := AlignerStats{
		SyncWindowMs: a.window.Milliseconds(),
		Sources:      make(map[string]SourceStats, len(a.latest)),
		AlignedCount: a.aligned,
		DroppedCount: a.dropped,
		PurgedCount:  a.purged,
	}
	for source, ts := range a.latest {
		n := len(a.buffers[source])
		st.Sources[source] = SourceStats{Buffered: n, Latest: ts}
		st.TotalBuffered += n
	}
	return st
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
