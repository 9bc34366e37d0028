// Package logsink delivers health events to their destinations. Events carry
// a printf-style formatted message at WARNING or ERROR severity.
package logsink

import (
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// Severity of a health event.
type Severity string

// Event severities.
const (
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// Sink receives health events.
type Sink interface {
	Warningf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Event is a single formatted health event.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
}

func newEvent(sev Severity, format string, args ...any) Event {
	return Event{
		Timestamp: time.Now(),
		Severity:  sev,
		Message:   fmt.Sprintf(format, args...),
	}
}

// ---------------------------------------------------------------------------
// Klog
// ---------------------------------------------------------------------------

// Klog forwards events to the process log.
type Klog struct{}

// Warningf logs the event at klog WARNING severity.
func (Klog) Warningf(format string, args ...any) {
	klog.WarningDepth(1, fmt.Sprintf(format, args...))
}

// Errorf logs the event at klog ERROR severity.
func (Klog) Errorf(format string, args ...any) {
	klog.ErrorDepth(1, fmt.Sprintf(format, args...))
}

// ---------------------------------------------------------------------------
// Multi
// ---------------------------------------------------------------------------

// Multi fans every event out to each non-nil sink in order.
type Multi []Sink

// NewMulti drops nil entries from sinks.
func NewMulti(sinks ...Sink) Multi {
	var m Multi
	for _, s := range sinks {
		if s != nil {
			m = append(m, s)
		}
	}
	return m
}

// Warningf passes the event to every sink.
func (m Multi) Warningf(format string, args ...any) {
	for _, s := range m {
		s.Warningf(format, args...)
	}
}

// Errorf passes the event to every sink.
func (m Multi) Errorf(format string, args ...any) {
	for _, s := range m {
		s.Errorf(format, args...)
	}
}

// ---------------------------------------------------------------------------
// Recorder
// ---------------------------------------------------------------------------

// Recorder keeps every event in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Warningf records a WARNING event.
func (r *Recorder) Warningf(format string, args ...any) {
	r.add(newEvent(SeverityWarning, format, args...))
}

// Errorf records an ERROR event.
func (r *Recorder) Errorf(format string, args ...any) {
	r.add(newEvent(SeverityError, format, args...))
}

func (r *Recorder) add(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events in arrival order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Reset discards recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
