package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"roomforge/internal/sim/room"
)

// Placement history is persisted as JSON lines compressed with zstd. A new
// segment file starts whenever the UTC hour changes, so a long-lived room
// produces prunable segments instead of one unbounded file.

const segmentHourFormat = "2006-01-02-15"

type jsonlWriter struct {
	dir    string
	prefix string

	mu   sync.Mutex
	hour string
	file *os.File
	zw   *zstd.Encoder
	buf  *bufio.Writer
}

func newJSONLWriter(dir, prefix string) *jsonlWriter {
	return &jsonlWriter{dir: dir, prefix: prefix}
}

func (w *jsonlWriter) append(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if hour := time.Now().UTC().Format(segmentHourFormat); hour != w.hour {
		if err := w.openSegment(hour); err != nil {
			return err
		}
	}
	if _, err := w.buf.Write(append(b, '\n')); err != nil {
		return err
	}
	return w.buf.Flush()
}

func (w *jsonlWriter) openSegment(hour string) error {
	if err := w.closeSegment(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour)
	f, err := os.OpenFile(filepath.Join(w.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.file = f
	w.zw = zw
	w.buf = bufio.NewWriterSize(zw, 128*1024)
	w.hour = hour
	return nil
}

// closeSegment flushes and closes the current segment, reporting the first
// failure so a truncated segment is never mistaken for a clean one.
func (w *jsonlWriter) closeSegment() error {
	if w.file == nil {
		return nil
	}
	err := w.buf.Flush()
	if cerr := w.zw.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if cerr := w.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	w.file = nil
	w.zw = nil
	w.buf = nil
	w.hour = ""
	return err
}

func (w *jsonlWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeSegment()
}

// TickLogger writes one JSONL entry per stepped tick that carried actions;
// the replay tool consumes these to verify determinism.
type TickLogger struct{ w *jsonlWriter }

func NewTickLogger(roomDir string) *TickLogger {
	return &TickLogger{w: newJSONLWriter(filepath.Join(roomDir, "events"), "events")}
}

func (l *TickLogger) WriteTick(v room.TickLogEntry) error { return l.w.append(v) }
func (l *TickLogger) Close() error                        { return l.w.Close() }

// AuditLogger writes one JSONL entry per committed grid mutation.
type AuditLogger struct{ w *jsonlWriter }

func NewAuditLogger(roomDir string) *AuditLogger {
	return &AuditLogger{w: newJSONLWriter(filepath.Join(roomDir, "audit"), "audit")}
}

func (l *AuditLogger) WriteAudit(v room.AuditEntry) error { return l.w.append(v) }
func (l *AuditLogger) Close() error                       { return l.w.Close() }
