package fusion

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/stream"
)

// Snapshot is a point-in-time composite of the best aligned event per source.
// Consumers must treat it as read-only.
type Snapshot struct {
	ID        string                    `json:"id"`
	Timestamp time.Time                 `json:"timestamp"`
	Data      map[string]map[string]any `json:"data"`
	Metadata  map[string]any            `json:"metadata"`
}

// Metadata keys set on every snapshot.
const (
	MetaSourceCount      = "source_count"
	MetaSources          = "sources"
	MetaSnapshotID       = "snapshot_id"
	MetaSkewMs           = "skew_ms"
	MetaSourceTimestamps = "source_timestamps"
)

// NewSnapshot assembles aligned events. The snapshot timestamp is the newest
// contributing event timestamp.
func NewSnapshot(aligned map[string]stream.Event) Snapshot {
	sources := make([]string, 0, len(aligned))
	for source := range aligned {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	data := make(map[string]map[string]any, len(aligned))
	stamps := make(map[string]time.Time, len(aligned))
	var newest, oldest time.Time
	for i, source := range sources {
		ev := aligned[source]
		data[source] = copyPayload(ev.Data)
		stamps[source] = ev.Timestamp
		if i == 0 || ev.Timestamp.After(newest) {
			newest = ev.Timestamp
		}
		if i == 0 || ev.Timestamp.Before(oldest) {
			oldest = ev.Timestamp
		}
	}

	id := uuid.NewString()
	return Snapshot{
		ID:        id,
		Timestamp: newest,
		Data:      data,
		Metadata: map[string]any{
			MetaSourceCount:      len(sources),
			MetaSources:          sources,
			MetaSnapshotID:       id,
			MetaSkewMs:           newest.Sub(oldest).Milliseconds(),
			MetaSourceTimestamps: stamps,
		},
	}
}

// Sources lists contributing source ids in sorted order.
func (s Snapshot) Sources() []string {
	if sources, ok := s.Metadata[MetaSources].([]string); ok {
		return sources
	}
	out := make([]string, 0, len(s.Data))
	for source := range s.Data {
		out = append(out, source)
	}
	sort.Strings(out)
	return out
}

// Has reports whether source contributed to the snapshot.
func (s Snapshot) Has(source string) bool {
	_, ok := s.Data[source]
	return ok
}

func copyPayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
