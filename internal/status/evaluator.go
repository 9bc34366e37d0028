package status

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jamesprial/healthmon/internal/register"
	"github.com/jamesprial/healthmon/internal/schema"
)

// CPU temperature property names, and the hwmon file suffix each is read from.
var cpuFields = []struct {
	name   string
	suffix string
	enc    register.Encoding
}{
	{"name", "_label", register.EncodingRaw},
	{"temp", "_input", register.EncodingMilli},
	{"alarm", "_crit_alarm", register.EncodingMilli},
	{"crit", "_crit", register.EncodingMilli},
	{"max", "_max", register.EncodingMilli},
}

// Evaluator reads and decodes the registers a schema describes. It holds no
// state between calls.
type Evaluator struct {
	reader *register.Reader
}

// NewEvaluator returns an Evaluator reading registers through reader.
func NewEvaluator(reader *register.Reader) *Evaluator {
	return &Evaluator{reader: reader}
}

// Evaluate produces one Result per sensor of class, in schema order.
// Register and decode failures are recorded in the Results; an error is
// returned only when the class as a whole cannot be evaluated.
func (e *Evaluator) Evaluate(ctx context.Context, s *schema.Schema, class string) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if class == schema.ClassCPU {
		return e.EvaluateCPU(ctx, s)
	}

	sensors := s.Describe(class)
	results := make([]Result, 0, len(sensors))
	for _, sensor := range sensors {
		r, err := e.evaluateSensor(s, sensor)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s: %w", class, err)
		}
		results = append(results, r)
	}
	return results, nil
}

// evaluateSensor walks the properties of one sensor. A decoded value that
// differs from its expected value ends the walk: later properties of the
// same sensor are not read.
func (e *Evaluator) evaluateSensor(s *schema.Schema, sensor schema.Sensor) (Result, error) {
	res := Result{ID: sensor.ID}

	for _, p := range sensor.Properties {
		v, err := register.Decode(e.reader.Read(p.Location), p.Bit, p.Encoding)
		if err != nil {
			res.fault(faultKind(err), err.Error())
			continue
		}
		val := v.String()

		if p.Decode != "" {
			tbl, err := s.LookupDecode(p.Decode)
			if err != nil {
				return Result{}, err
			}
			msg, ok := tbl.Lookup(val)
			if !ok {
				return Result{}, &InconsistencyError{SensorID: sensor.ID, Property: p.Name, Table: p.Decode, Value: val}
			}
			if val != p.Default {
				res.mismatch(msg)
				break
			}
			if res.OK() {
				res.ErrMsg = msg
			}
		} else if res.OK() && res.ErrMsg == "" {
			res.ErrMsg = msgNone
		}

		res.set(p.Name, val)
	}

	if res.OK() && res.ErrMsg == "" {
		res.ErrMsg = msgNone
	}
	return res, nil
}

// EvaluateCPU scans the directory of every cpus group for *_input files and
// builds one Result per discovered sensor, in ascending file name order.
func (e *Evaluator) EvaluateCPU(ctx context.Context, s *schema.Schema) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []Result
	for _, group := range s.Describe(schema.ClassCPU) {
		if group.Location == "" {
			return nil, fmt.Errorf("%w: cpus group %q has no location", schema.ErrInconsistent, group.ID)
		}
		inputs, err := e.reader.ListInputs(group.Location)
		if err != nil {
			return nil, fmt.Errorf("scan cpu temperatures: %w", err)
		}
		for _, input := range inputs {
			prefix := strings.TrimSuffix(input, "_input")
			results = append(results, e.cpuResult(group.Location, prefix))
		}
	}
	return results, nil
}

func (e *Evaluator) cpuResult(dir, prefix string) Result {
	res := Result{ID: prefix}
	for _, f := range cpuFields {
		v, err := e.reader.ReadValue(filepath.Join(dir, prefix+f.suffix), 0, f.enc)
		if err != nil {
			res.fault(faultKind(err), err.Error())
			continue
		}
		res.set(f.name, v.String())
	}
	if res.OK() {
		res.ErrMsg = msgNone
	}
	return res
}

func faultKind(err error) Fault {
	if errors.Is(err, register.ErrDecode) {
		return FaultDecode
	}
	return FaultNotFound
}
