package logsink

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
)

// ErrNilWriter is returned by JSON.Log when the sink was constructed with a
// nil writer.
var ErrNilWriter = errors.New("json sink: writer is nil")

// JSON writes events, or any other JSON-encodable record, as newline-delimited
// JSON to an io.Writer. It is safe for concurrent use.
type JSON struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSON returns a JSON sink that writes to w. If w is nil the returned sink
// is also nil; callers must check for nil before use.
func NewJSON(w io.Writer) *JSON {
	if w == nil {
		return nil
	}
	return &JSON{w: w}
}

// Log serialises record as a single JSON line.
func (j *JSON) Log(record any) error {
	if j == nil || j.w == nil {
		return ErrNilWriter
	}

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	j.mu.Lock()
	_, err = j.w.Write(data)
	j.mu.Unlock()

	return err
}

// Warningf writes a WARNING event. Write errors are dropped.
func (j *JSON) Warningf(format string, args ...any) {
	_ = j.Log(newEvent(SeverityWarning, format, args...))
}

// Errorf writes an ERROR event.
func (j *JSON) Errorf(format string, args ...any) {
	_ = j.Log(newEvent(SeverityError, format, args...))
}
