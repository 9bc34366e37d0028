// Package status evaluates sensor classes described by a schema against the
// current register contents and produces one Result per sensor instance.
package status

import (
	"errors"
	"fmt"
	"sort"
)

// Result error codes.
const (
	ErrCodeOK    = 0
	ErrCodeFault = -1
)

// msgNone is the message of a sensor that has no fault and no decode table.
const msgNone = "none"

// ErrInconsistent is returned when a decoded value has no entry in the
// decode table the schema binds it to.
var ErrInconsistent = errors.New("decode table inconsistency")

// InconsistencyError describes a decoded value missing from its table.
type InconsistencyError struct {
	SensorID string
	Property string
	Table    string
	Value    string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("%s %s: value %q has no entry in decode table %q", e.SensorID, e.Property, e.Value, e.Table)
}

// Is reports whether target is ErrInconsistent.
func (e *InconsistencyError) Is(target error) bool {
	return target == ErrInconsistent
}

// Fault classifies why a Result carries ErrCodeFault.
type Fault int

const (
	// FaultNone means the result carries no fault.
	FaultNone Fault = iota
	// FaultNotFound means a register endpoint was missing or unreadable.
	FaultNotFound
	// FaultDecode means a register value did not parse.
	FaultDecode
	// FaultMismatch means a decoded value differed from its expected value.
	FaultMismatch
)

// String returns the fault kind name used in logs and JSON.
func (f Fault) String() string {
	switch f {
	case FaultNotFound:
		return "not-found"
	case FaultDecode:
		return "decode"
	case FaultMismatch:
		return "mismatch"
	default:
		return "none"
	}
}

// MarshalText renders the fault kind by name.
func (f Fault) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (f *Fault) UnmarshalText(text []byte) error {
	for k := FaultNone; k <= FaultMismatch; k++ {
		if k.String() == string(text) {
			*f = k
			return nil
		}
	}
	return fmt.Errorf("unknown fault kind %q", text)
}

// Pair is one decoded property value.
type Pair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Result is the evaluation of a single sensor instance.
type Result struct {
	ID         string `json:"id"`
	Properties []Pair `json:"properties"`
	ErrCode    int    `json:"errcode"`
	ErrMsg     string `json:"errmsg"`
	Fault      Fault  `json:"fault"`
}

// OK reports whether the sensor evaluated without fault.
func (r Result) OK() bool {
	return r.ErrCode == ErrCodeOK
}

// Get returns the value recorded under name.
func (r Result) Get(name string) (string, bool) {
	for _, p := range r.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

func (r *Result) set(name, value string) {
	for i := range r.Properties {
		if r.Properties[i].Name == name {
			r.Properties[i].Value = value
			return
		}
	}
	r.Properties = append(r.Properties, Pair{Name: name, Value: value})
}

// fault marks the result faulted by a register read or parse failure. The
// first such fault's kind and message are kept.
func (r *Result) fault(kind Fault, msg string) {
	if r.ErrCode == ErrCodeFault {
		return
	}
	r.ErrCode = ErrCodeFault
	r.ErrMsg = msg
	r.Fault = kind
}

// mismatch marks the result faulted with the decoded message of an unexpected
// value. It replaces any earlier register fault.
func (r *Result) mismatch(msg string) {
	r.ErrCode = ErrCodeFault
	r.ErrMsg = msg
	r.Fault = FaultMismatch
}

// SortByID orders results by ID. Equal IDs keep their relative order.
func SortByID(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ID < results[j].ID
	})
}
