// Package audit implements the C8 append-only structured audit logger:
// severity-filtered events, file rotation by size, an out-of-band alert
// callback at Critical and above, and a bounded in-memory ring buffer for recent
// queries.
//
// Grounded on internal/obs's zap-singleton conventions for how logging is
// wired through the rest of the codebase; the file-rotation and ring
// buffer mechanics are original to spec.md §4.8 (the teacher has no
// equivalent — ailang logs to stderr via zap only, with no rotation).
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
)

// Severity is the event severity ladder of spec.md §4.8.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
	Critical
	Emergency
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "Info"
	case Warning:
		return "Warning"
	case Error:
		return "Error"
	case Critical:
		return "Critical"
	case Emergency:
		return "Emergency"
	default:
		return "Unknown"
	}
}

// Context carries the optional structured fields of spec.md §4.8.
type Context struct {
	User     string            `json:"user,omitempty"`
	Source   string            `json:"source,omitempty"`
	Path     string            `json:"path,omitempty"`
	Operation string           `json:"operation,omitempty"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Event is one append-only audit record (spec.md §4.8).
type Event struct {
	ID          string    `json:"id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Severity    Severity  `json:"-"`
	SeverityStr string    `json:"severity"`
	Category    string    `json:"category"`
	Module      string    `json:"module,omitempty"`
	Description string    `json:"description"`
	Context     Context   `json:"context"`
}

// AlertSink receives events at or above Critical severity (spec.md §4.8's
// "out-of-band alert callback"), deliberately left pluggable — see
// DESIGN.md's C8 Open Question decision.
type AlertSink interface {
	Alert(Event)
}

// StderrColorSink is the default AlertSink: Critical in red, Emergency in
// bold red, written to stderr.
type StderrColorSink struct{}

func (StderrColorSink) Alert(ev Event) {
	line := fmt.Sprintf("[%s] %s: %s", ev.SeverityStr, ev.Category, ev.Description)
	switch ev.Severity {
	case Emergency:
		color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, line)
	default:
		color.New(color.FgRed).Fprintln(os.Stderr, line)
	}
}

const ringBufferCapacity = 10_000

// Logger is the C8 audit logger: filtered append-only writes to a
// rotating file, a bounded ring buffer, and alert dispatch.
type Logger struct {
	mu sync.Mutex

	minSeverity  Severity
	path         string
	maxFileBytes int64
	file         *os.File
	written      int64

	sink AlertSink
	ring []Event
	head int
	size int
}

// Option configures a Logger at construction.
type Option func(*Logger)

// WithAlertSink overrides the default StderrColorSink.
func WithAlertSink(sink AlertSink) Option { return func(l *Logger) { l.sink = sink } }

// WithMinSeverity sets the severity filter floor; events below it are
// dropped (spec.md §4.8).
func WithMinSeverity(s Severity) Option { return func(l *Logger) { l.minSeverity = s } }

// WithMaxFileBytes sets the rotation threshold. Zero disables rotation.
func WithMaxFileBytes(n int64) Option { return func(l *Logger) { l.maxFileBytes = n } }

// New opens (creating if absent) the audit log file at path and returns a
// ready Logger.
func New(path string, opts ...Option) (*Logger, error) {
	l := &Logger{
		path:         path,
		maxFileBytes: 100 * 1024 * 1024,
		sink:         StderrColorSink{},
		ring:         make([]Event, ringBufferCapacity),
	}
	for _, opt := range opts {
		opt(l)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("audit: stat log file: %w", err)
	}
	l.file = f
	l.written = info.Size()
	return l, nil
}

// Close flushes and closes the underlying log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Log appends an event, dropping it if below the severity filter,
// rotating the file first if it has crossed the size threshold, and
// firing the alert sink at Critical and above.
func (l *Logger) Log(ev Event) error {
	if ev.Severity < l.minSeverity {
		return nil
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.SeverityStr = ev.Severity.String()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxFileBytes > 0 && l.written >= l.maxFileBytes {
		if err := l.rotateLocked(); err != nil {
			return err
		}
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}
	line = append(line, '\n')
	n, err := l.file.Write(line)
	if err != nil {
		return fmt.Errorf("audit: write event: %w", err)
	}
	l.written += int64(n)

	l.pushRingLocked(ev)

	if ev.Severity >= Critical {
		l.sink.Alert(ev)
	}
	return nil
}

// rotateLocked renames the current file to a timestamped name and opens a
// fresh one, per spec.md §4.8. Must be called with l.mu held.
func (l *Logger) rotateLocked() error {
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("audit: close for rotation: %w", err)
	}
	rotated := fmt.Sprintf("%s.%s", l.path, time.Now().UTC().Format("20060102_150405"))
	if err := os.Rename(l.path, rotated); err != nil {
		return fmt.Errorf("audit: rotate: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("audit: reopen after rotation: %w", err)
	}
	l.file = f
	l.written = 0
	return nil
}

// pushRingLocked appends ev to the bounded ring buffer, evicting the
// oldest entry once full. Must be called with l.mu held.
func (l *Logger) pushRingLocked(ev Event) {
	idx := (l.head + l.size) % ringBufferCapacity
	l.ring[idx] = ev
	if l.size < ringBufferCapacity {
		l.size++
	} else {
		l.head = (l.head + 1) % ringBufferCapacity
	}
}

// Recent returns up to n of the most recently logged events, newest
// last.
func (l *Logger) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > l.size {
		n = l.size
	}
	out := make([]Event, n)
	for i := 0; i < n; i++ {
		idx := (l.head + l.size - n + i) % ringBufferCapacity
		out[i] = l.ring[idx]
	}
	return out
}
