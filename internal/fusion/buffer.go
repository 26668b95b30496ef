package fusion

import (
	"sync"
	"time"
)

const (
	defaultBufferCapacity = 1000
	defaultArchiveSize    = 100
)

// ring is a fixed-capacity FIFO of snapshots. Index 0 is the oldest entry.
type ring struct {
	items []Snapshot
	head  int
	size  int
}

func newRing(capacity int) ring {
	if capacity < 0 {
		capacity = 0
	}
	return ring{items: make([]Snapshot, capacity)}
}

func (r *ring) push(s Snapshot) (Snapshot, bool) {
	if len(r.items) == 0 {
		return s, true
	}
	var evicted Snapshot
	full := r.size == len(r.items)
	if full {
		evicted = r.items[r.head]
		r.head = (r.head + 1) % len(r.items)
		r.size--
	}
	r.items[(r.head+r.size)%len(r.items)] = s
	r.size++
	return evicted, full
}

func (r *ring) at(i int) Snapshot {
	return r.items[(r.head+i)%len(r.items)]
}

func (r *ring) reset() {
	clear(r.items)
	r.head = 0
	r.size = 0
}

// Buffer retains completed snapshots in an active ring; snapshots evicted from
// it move into a smaller archive ring before being discarded.
type Buffer struct {
	mu            sync.RWMutex
	active        ring
	archive       ring
	totalAdded    uint64
	totalArchived uint64
}

// BufferStats is the observability view of the buffer.
type BufferStats struct {
	Capacity      int     `json:"capacity"`
	Size          int     `json:"size"`
	ArchiveSize   int     `json:"archive_size"`
	ArchiveCap    int     `json:"archive_capacity"`
	TotalAdded    uint64  `json:"total_snapshots"`
	TotalArchived uint64  `json:"total_archived"`
	Utilization   float64 `json:"utilization"`
	MemoryBytes   int64   `json:"memory_bytes"`
}

// NewBuffer builds a buffer with active capacity and archive size. A
// non-positive capacity falls back to 1000; a negative archive size to 100.
func NewBuffer(capacity, archiveSize int) *Buffer {
	if capacity <= 0 {
		capacity = defaultBufferCapacity
	}
	if archiveSize < 0 {
		archiveSize = defaultArchiveSize
	}
	return &Buffer{
		active:  newRing(capacity),
		archive: newRing(archiveSize),
	}
}

// Add inserts s, moving the oldest active snapshot into the archive when full.
func (b *Buffer) Add(s Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if evicted, ok := b.active.push(s); ok && len(b.archive.items) > 0 {
		b.archive.push(evicted)
		b.totalArchived++
	}
	b.totalAdded++
}

// Latest returns up to count snapshots, newest first.
func (b *Buffer) Latest(count int) []Snapshot {
	if count <= 0 {
		return []Snapshot{}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if count > b.active.size {
		count = b.active.size
	}
	out := make([]Snapshot, 0, count)
	for i := b.active.size - 1; i >= b.active.size-count; i-- {
		out = append(out, b.active.at(i))
	}
	return out
}

// Range returns active snapshots with start <= timestamp <= end, oldest first.
func (b *Buffer) Range(start, end time.Time) []Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Snapshot
	for i := 0; i < b.active.size; i++ {
		s := b.active.at(i)
		if s.Timestamp.Before(start) || s.Timestamp.After(end) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// At returns the i-th active snapshot, 0 being the oldest.
func (b *Buffer) At(i int) (Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if i < 0 || i >= b.active.size {
		return Snapshot{}, false
	}
	return b.active.at(i), true
}

// Archived returns the archive ring contents, oldest first.
func (b *Buffer) Archived() []Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Snapshot, 0, b.archive.size)
	for i := 0; i < b.archive.size; i++ {
		out = append(out, b.archive.at(i))
	}
	return out
}

// Len returns the number of active snapshots.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active.size
}

// Clear empties the active ring only.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.active.reset()
	b.mu.Unlock()
}

// ClearAll empties both rings.
func (b *Buffer) ClearAll() {
	b.mu.Lock()
	b.active.reset()
	b.archive.reset()
	b.mu.Unlock()
}

// Stats reports occupancy, lifetime totals and the memory estimate.
func (b *Buffer) Stats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := BufferStats{
		Capacity:      len(b.active.items),
		Size:          b.active.size,
		ArchiveSize:   b.archive.size,
		ArchiveCap:    len(b.archive.items),
		TotalAdded:    b.totalAdded,
		TotalArchived: b.totalArchived,
		MemoryBytes:   b.memoryLocked(),
	}
	if st.Capacity > 0 {
		st.Utilization = float64(st.Size) / float64(st.Capacity)
	}
	return st
}

// MemoryUsage is a best-effort byte estimate of both rings.
func (b *Buffer) MemoryUsage() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.memoryLocked()
}

func (b *Buffer) memoryLocked() int64 {
	var total int64
	for _, r := range []*ring{&b.active, &b.archive} {
		for i := 0; i < r.size; i++ {
			total += estimateSnapshot(r.at(i))
		}
	}
	return total
}
