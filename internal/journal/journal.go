// Package journal persists fused snapshots as JSON lines for later analysis.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jackpalm88/cautious-chainsaw-sub000/internal/fusion"
)

// Entry is the on-disk shape of one snapshot.
type Entry struct {
	ID        string                    `json:"id"`
	Timestamp time.Time                 `json:"timestamp"`
	Sources   []string                  `json:"sources"`
	Data      map[string]map[string]any `json:"data"`
	Metadata  map[string]any            `json:"metadata,omitempty"`
}

func entryOf(s fusion.Snapshot) Entry {
	return Entry{
		ID:        s.ID,
		Timestamp: s.Timestamp,
		Sources:   s.Sources(),
		Data:      s.Data,
		Metadata:  s.Metadata,
	}
}

// JSONLRecorder appends snapshots to a file. It satisfies fusion.Recorder.
type JSONLRecorder struct {
	mu      sync.Mutex
	file    *os.File
	enc     *json.Encoder
	log     zerolog.Logger
	written int64
	failed  int64
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
func NewJSONLRecorder(path string, log zerolog.Logger) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &JSONLRecorder{
		file: file,
		enc:  json.NewEncoder(file),
		log:  log.With().Str("journal", path).Logger(),
	}, nil
}

// Record writes a single snapshot. Writes after Close are dropped.
func (r *JSONLRecorder) Record(s fusion.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return
	}
	if err := r.enc.Encode(entryOf(s)); err != nil {
		r.failed++
		r.log.Warn().Err(err).Str("snapshot", s.ID).Msg("journal write failed")
		return
	}
	r.written++
}

// Counts reports successful and failed writes.
func (r *JSONLRecorder) Counts() (written, failed int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written, r.failed
}

// Close flushes and closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Replay decodes every entry in path in file order and hands it to fn.
// It stops at the first malformed line or fn error.
func Replay(path string, fn func(Entry) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)
	line := 0
	for scanner.Scan() {
		line++
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return fmt.Errorf("journal line %d: %w", line, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return scanner.Err()
}
