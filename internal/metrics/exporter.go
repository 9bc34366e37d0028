// Package metrics exports health snapshots as Prometheus metrics, written to
// a file for the node exporter textfile collector.
package metrics

import (
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jamesprial/healthmon/internal/health"
	"github.com/jamesprial/healthmon/internal/schema"
	"github.com/jamesprial/healthmon/internal/status"
)

const namespace = "healthmon"

// ErrNoTextfile is returned by Flush when the exporter has no output path.
var ErrNoTextfile = errors.New("metrics: no textfile path configured")

// Exporter holds the gauges fed by Observe on a private registry.
type Exporter struct {
	path     string
	registry *prometheus.Registry

	mu sync.Mutex

	ticks         prometheus.Counter
	classFailures *prometheus.CounterVec
	lastTick      prometheus.Gauge
	fansOK        prometheus.Gauge
	sensorErrCode *prometheus.GaugeVec
	temperature   *prometheus.GaugeVec
}

// NewExporter returns an Exporter writing to path. path may be empty when
// only Registry is used.
func NewExporter(path string) *Exporter {
	e := &Exporter{
		path:     path,
		registry: prometheus.NewRegistry(),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Number of completed health ticks.",
		}),
		classFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "class_failures_total",
			Help:      "Number of sensor class checks that could not complete.",
		}, []string{"class"}),
		lastTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_tick_timestamp_seconds",
			Help:      "Unix time of the most recent tick.",
		}),
		fansOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fans_ok",
			Help:      "Number of fans reporting a healthy status.",
		}),
		sensorErrCode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensor_errcode",
			Help:      "Error code of each evaluated sensor, 0 when healthy.",
		}, []string{"class", "id"}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Measured temperatures by position.",
		}, []string{"sensor"}),
	}
	e.registry.MustRegister(
		e.ticks,
		e.classFailures,
		e.lastTick,
		e.fansOK,
		e.sensorErrCode,
		e.temperature,
	)
	return e
}

// Registry returns the exporter's private registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Observe replaces the per-sensor gauges with the contents of snap. Classes
// that did not run in snap keep no series.
func (e *Exporter) Observe(snap health.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ticks.Inc()
	e.lastTick.Set(float64(snap.Time.Unix()))
	for _, f := range snap.Failures {
		e.classFailures.WithLabelValues(f.Class).Inc()
	}

	e.sensorErrCode.Reset()
	for class, results := range map[string][]status.Result{
		schema.ClassFan:  snap.Fans,
		schema.ClassPSU:  snap.PSUs,
		schema.ClassTemp: snap.Temps,
		schema.ClassCPU:  snap.CPUs,
	} {
		for _, r := range results {
			e.sensorErrCode.WithLabelValues(class, r.ID).Set(float64(r.ErrCode))
		}
	}
	if snap.Ran(schema.ClassFan) && !snap.Failed(schema.ClassFan) {
		e.fansOK.Set(float64(snap.FanOKNum))
	}

	e.temperature.Reset()
	for sensor, t := range map[string]health.Temperature{
		"inlet":       snap.InTemp,
		"outlet":      snap.OutTemp,
		"board":       snap.BoardTemp,
		"cpu":         snap.CPUTemp,
		"mac_average": snap.MacAverage,
		"mac_max":     snap.MacMax,
	} {
		if t.Measured {
			e.temperature.WithLabelValues(sensor).Set(t.Celsius)
		}
	}
}

// Flush writes the current metrics to the textfile atomically.
func (e *Exporter) Flush() error {
	if e.path == "" {
		return ErrNoTextfile
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := prometheus.WriteToTextfile(e.path, e.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
