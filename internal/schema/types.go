// Package schema models the declarative sensor description file (dev.xml):
// sensor classes, their register-bound properties, and the shared decode
// tables used to turn register values into status messages.
package schema

import (
	"errors"

	"github.com/jamesprial/healthmon/internal/register"
)

// Sensor classes known to the health monitor.
const (
	ClassFan  = "fan"
	ClassPSU  = "psu"
	ClassTemp = "temp"
	ClassCPU  = "cpus"
)

// decodeSection is the element holding the named decode tables.
const decodeSection = "decode"

// ErrInconsistent is returned when the description file references something
// it does not define, or defines it in a malformed way.
var ErrInconsistent = errors.New("schema inconsistency")

// Property binds one named value of a sensor to a register location.
type Property struct {
	// Name is the key the decoded value is recorded under.
	Name string

	// Location is the register path, relative to the register root unless
	// absolute.
	Location string

	Encoding register.Encoding
	Bit      int

	// Default is the expected decoded value. Only meaningful with Decode.
	Default string

	// Decode names a DecodeTable; empty when the property has none.
	Decode string
}

// Sensor is one instance of a sensor class, e.g. a single fan tray.
type Sensor struct {
	// ID identifies the instance (the "id" attribute).
	ID string

	// Location is the sensor-level location attribute. CPU temperature
	// groups use it as the directory to scan.
	Location string

	// Properties are in document order.
	Properties []Property
}

// DecodeTable maps a decoded value, in its string form, to a message.
type DecodeTable struct {
	Name    string
	keys    []string
	entries map[string]string
}

// Lookup returns the message for key.
func (t DecodeTable) Lookup(key string) (string, bool) {
	msg, ok := t.entries[key]
	return msg, ok
}

// Keys returns the table keys in document order.
func (t DecodeTable) Keys() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Len returns the number of entries.
func (t DecodeTable) Len() int {
	return len(t.keys)
}
