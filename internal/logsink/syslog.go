package logsink

import (
	"fmt"
	"log/syslog"
)

// DefaultTag identifies health events in the system log.
const DefaultTag = "HEALTHMONITOR"

// Syslog sends events to the local system logger with the daemon facility.
type Syslog struct {
	w *syslog.Writer
}

// NewSyslog connects to the local system logger. An empty tag means
// DefaultTag.
func NewSyslog(tag string) (*Syslog, error) {
	if tag == "" {
		tag = DefaultTag
	}
	w, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_WARNING, tag)
	if err != nil {
		return nil, fmt.Errorf("connect to syslog: %w", err)
	}
	return &Syslog{w: w}, nil
}

// Warningf writes the event at LOG_WARNING.
func (s *Syslog) Warningf(format string, args ...any) {
	_ = s.w.Warning(fmt.Sprintf(format, args...))
}

// Errorf writes the event at LOG_ERR.
func (s *Syslog) Errorf(format string, args ...any) {
	_ = s.w.Err(fmt.Sprintf(format, args...))
}

// Close disconnects from the system logger.
func (s *Syslog) Close() error {
	return s.w.Close()
}
