// Package health folds sensor evaluations into periodic health decisions for
// a switch: healthy fan count, PSU faults, and board and CPU temperatures.
package health

import (
	"context"
	"strconv"
	"time"

	"github.com/jamesprial/healthmon/internal/schema"
	"github.com/jamesprial/healthmon/internal/status"
)

// Fixed policy.
const (
	// MinHealthyFans is the fan count below which an aggregate warning is
	// raised.
	MinHealthyFans = 4

	// MinFanSpeedRPM is the speed below which a healthy fan is reported as
	// too slow.
	MinFanSpeedRPM = 1000

	// DefaultInterval is the pause between two ticks.
	DefaultInterval = 30 * time.Second
)

// Property names the monitor reads from evaluated results.
const (
	SpeedProperty   = "Speed"
	TempProperty    = "temp1_input"
	cpuNameProperty = "name"
	cpuTempProperty = "temp"
	cpuMaxProperty  = "max"
)

// Evaluator produces the results for one sensor class.
type Evaluator interface {
	Evaluate(ctx context.Context, s *schema.Schema, class string) ([]status.Result, error)
}

// SchemaSource provides the sensor description, typically a *schema.Cache.
type SchemaSource interface {
	Schema() (*schema.Schema, error)
}

// Temperature is a reading in degrees Celsius. Measured is false until a
// sensor has actually produced a value; Celsius is meaningless then.
type Temperature struct {
	Celsius  float64 `json:"celsius"`
	Measured bool    `json:"measured"`
}

// Celsius returns a measured Temperature.
func Celsius(c float64) Temperature {
	return Temperature{Celsius: c, Measured: true}
}

// String formats the reading with one decimal, or "unknown".
func (t Temperature) String() string {
	if !t.Measured {
		return "unknown"
	}
	return strconv.FormatFloat(t.Celsius, 'f', 1, 64)
}

// Checks selects which sensor classes a tick evaluates.
type Checks struct {
	Fan  bool
	PSU  bool
	Temp bool
	CPU  bool
}

// DefaultChecks runs the fan and PSU checks only.
var DefaultChecks = Checks{Fan: true, PSU: true}

// TempBindings maps temperature sensor ids to the snapshot fields they feed
// and sets the optional warning thresholds. A zero threshold is disabled.
type TempBindings struct {
	Inlet      string
	Outlet     string
	Board      string
	MacAverage string
	MacMax     string

	// CPULabel is the label of the CPU package sensor.
	CPULabel string

	InletMax  float64
	OutletMax float64
	BoardMax  float64
}

// DefaultTempBindings matches the LM75 sensors of the reference board.
var DefaultTempBindings = TempBindings{
	Inlet:    "lm75in",
	Outlet:   "lm75out",
	Board:    "lm75hot",
	CPULabel: "Physical id 0",
}

// ClassFailure records a sensor class whose check could not complete.
type ClassFailure struct {
	Class string `json:"class"`
	Err   string `json:"error"`
}

// Snapshot is the outcome of one tick. It is never modified after Tick
// returns it.
type Snapshot struct {
	Time time.Time `json:"time"`

	// Checked lists the classes the tick attempted, in order.
	Checked []string `json:"checked"`

	FanOKNum int             `json:"fan_ok_num"`
	Fans     []status.Result `json:"fans,omitempty"`
	PSUs     []status.Result `json:"psus,omitempty"`
	Temps    []status.Result `json:"temps,omitempty"`
	CPUs     []status.Result `json:"cpus,omitempty"`

	InTemp     Temperature `json:"intemp"`
	OutTemp    Temperature `json:"outtemp"`
	BoardTemp  Temperature `json:"boardtemp"`
	CPUTemp    Temperature `json:"cputemp"`
	MacAverage Temperature `json:"mac_aver"`
	MacMax     Temperature `json:"mac_max"`

	// PrevInTemp is InTemp of the previous tick.
	PrevInTemp Temperature `json:"pre_intemp"`

	Failures []ClassFailure `json:"failures,omitempty"`
}

// Ran reports whether the tick attempted class.
func (s Snapshot) Ran(class string) bool {
	for _, c := range s.Checked {
		if c == class {
			return true
		}
	}
	return false
}

// Failed reports whether class failed during the tick.
func (s Snapshot) Failed(class string) bool {
	for _, f := range s.Failures {
		if f.Class == class {
			return true
		}
	}
	return false
}

// PSUFaults returns the PSU results with a non-zero error code.
func (s Snapshot) PSUFaults() []status.Result {
	var out []status.Result
	for _, r := range s.PSUs {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// FanReport is the outcome of a fan check.
type FanReport struct {
	Results []status.Result
	OKNum   int
}

// TempReport is the outcome of a board temperature check.
type TempReport struct {
	Results    []status.Result
	InTemp     Temperature
	OutTemp    Temperature
	BoardTemp  Temperature
	MacAverage Temperature
	MacMax     Temperature
}

// CPUReport is the outcome of a CPU temperature check.
type CPUReport struct {
	Results []status.Result
	CPUTemp Temperature
}
