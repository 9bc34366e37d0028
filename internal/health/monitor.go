package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jamesprial/healthmon/internal/logsink"
	"github.com/jamesprial/healthmon/internal/schema"
	"github.com/jamesprial/healthmon/internal/status"
)

// Monitor runs the health checks. A Monitor is driven by one goroutine:
// Tick must not be called concurrently.
type Monitor struct {
	schemas SchemaSource
	eval    Evaluator
	sink    logsink.Sink
	checks  Checks
	temps   TempBindings
	now     func() time.Time

	prev Snapshot
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithChecks selects the classes evaluated by Tick.
func WithChecks(c Checks) Option {
	return func(m *Monitor) { m.checks = c }
}

// WithTempBindings sets the temperature sensor mapping and thresholds.
func WithTempBindings(b TempBindings) Option {
	return func(m *Monitor) { m.temps = b }
}

// WithClock replaces time.Now for snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New returns a Monitor that loads the schema from schemas, evaluates
// classes with eval, and reports events to sink.
func New(schemas SchemaSource, eval Evaluator, sink logsink.Sink, opts ...Option) *Monitor {
	m := &Monitor{
		schemas: schemas,
		eval:    eval,
		sink:    sink,
		checks:  DefaultChecks,
		temps:   DefaultTempBindings,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Tick runs every enabled check once and returns the resulting Snapshot.
// A failing class is logged and recorded in Snapshot.Failures; the remaining
// classes still run.
func (m *Monitor) Tick(ctx context.Context) Snapshot {
	snap := Snapshot{
		Time:       m.now(),
		PrevInTemp: m.prev.InTemp,
	}

	if m.checks.Fan {
		m.guard(&snap, schema.ClassFan, func() error {
			r, err := m.CheckFans(ctx)
			if err != nil {
				return err
			}
			snap.Fans, snap.FanOKNum = r.Results, r.OKNum
			return nil
		})
	}
	if m.checks.Temp {
		m.guard(&snap, schema.ClassTemp, func() error {
			r, err := m.CheckTemps(ctx)
			if err != nil {
				return err
			}
			snap.Temps = r.Results
			snap.InTemp, snap.OutTemp, snap.BoardTemp = r.InTemp, r.OutTemp, r.BoardTemp
			snap.MacAverage, snap.MacMax = r.MacAverage, r.MacMax
			return nil
		})
	}
	if m.checks.CPU {
		m.guard(&snap, schema.ClassCPU, func() error {
			r, err := m.CheckCPU(ctx)
			if err != nil {
				return err
			}
			snap.CPUs, snap.CPUTemp = r.Results, r.CPUTemp
			return nil
		})
	}
	if m.checks.PSU {
		m.guard(&snap, schema.ClassPSU, func() error {
			r, err := m.CheckPSUs(ctx)
			if err != nil {
				return err
			}
			snap.PSUs = r
			return nil
		})
	}

	m.prev = snap
	return snap
}

// guard runs one class check, turning an error or a panic into an ERROR
// event and a ClassFailure.
func (m *Monitor) guard(snap *Snapshot, class string, check func() error) {
	snap.Checked = append(snap.Checked, class)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return check()
	}()
	if err == nil {
		return
	}

	m.sink.Errorf("%s check failed: %v", class, err)
	snap.Failures = append(snap.Failures, ClassFailure{Class: class, Err: err.Error()})
}

// Run ticks until ctx is cancelled, pausing interval between the end of one
// tick and the start of the next. onSnapshot, if non-nil, receives each
// Snapshot. Cancellation is only observed between ticks: a tick in progress
// runs every enabled class to completion.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, onSnapshot func(Snapshot)) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		snap := m.Tick(context.WithoutCancel(ctx))
		if onSnapshot != nil {
			onSnapshot(snap)
		}

		t := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// ErrUnknownClass is returned by Status for a class the schema cannot
// describe.
var ErrUnknownClass = errors.New("unknown sensor class")

// Status evaluates one class and returns its results sorted by ID without
// applying any check policy or emitting events.
func (m *Monitor) Status(ctx context.Context, class string) ([]status.Result, error) {
	switch class {
	case schema.ClassFan, schema.ClassPSU, schema.ClassTemp, schema.ClassCPU:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	return m.evaluate(ctx, class)
}

// evaluate loads the schema and evaluates class.
func (m *Monitor) evaluate(ctx context.Context, class string) ([]status.Result, error) {
	s, err := m.schemas.Schema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	results, err := m.eval.Evaluate(ctx, s, class)
	if err != nil {
		return nil, err
	}
	status.SortByID(results)
	return results, nil
}
