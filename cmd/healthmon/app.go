package main

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/multierr"
	"k8s.io/klog/v2"

	"github.com/jamesprial/healthmon/internal/config"
	"github.com/jamesprial/healthmon/internal/health"
	"github.com/jamesprial/healthmon/internal/logsink"
	"github.com/jamesprial/healthmon/internal/register"
	"github.com/jamesprial/healthmon/internal/schema"
	"github.com/jamesprial/healthmon/internal/status"
)

// app owns the monitor and the resources its sinks hold open.
type app struct {
	monitor *health.Monitor
	sink    logsink.Sink
	closers []io.Closer
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{}
	sinks := []logsink.Sink{logsink.Klog{}}

	if cfg.Log.Syslog {
		s, err := logsink.NewSyslog(cfg.Log.Tag)
		if err != nil {
			klog.Warningf("syslog unavailable, events go to the process log only: %v", err)
		} else {
			sinks = append(sinks, s)
			a.closers = append(a.closers, s)
		}
	}

	if cfg.Log.EventLog != "" {
		f, err := os.OpenFile(cfg.Log.EventLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("open event log: %w", err)
		}
		sinks = append(sinks, logsink.NewJSON(f))
		a.closers = append(a.closers, f)
	}

	a.sink = logsink.NewMulti(sinks...)
	reader := register.NewReader(cfg.Paths.Registers)
	a.monitor = health.New(
		schema.NewCache(cfg.Paths.Schema),
		status.NewEvaluator(reader),
		a.sink,
		health.WithChecks(cfg.Checks()),
		health.WithTempBindings(cfg.TempBindings()),
	)
	return a, nil
}

// openCallLog opens cfg.Log.CallLog for appending. It returns nil when no
// call log is configured.
func (a *app) openCallLog(cfg *config.Config) (*logsink.JSON, error) {
	if cfg.Log.CallLog == "" {
		return nil, nil
	}
	f, err := os.OpenFile(cfg.Log.CallLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open call log: %w", err)
	}
	a.closers = append(a.closers, f)
	return logsink.NewJSON(f), nil
}

// Close releases the sinks in reverse order of creation.
func (a *app) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i].Close())
	}
	a.closers = nil
	return err
}
