package schema

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/multierr"

	"github.com/jamesprial/healthmon/internal/register"
)

// Schema is the parsed sensor description. It is immutable once returned by
// Load or Parse and safe to share between ticks.
type Schema struct {
	classes map[string][]Sensor
	decodes map[string]DecodeTable
}

// node is a generic element of the description document.
type node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Nodes   []node     `xml:",any"`
}

func (n node) attrs() map[string]string {
	m := make(map[string]string, len(n.Attrs))
	for _, a := range n.Attrs {
		m[a.Name.Local] = a.Value
	}
	return m
}

// Load reads and parses the description file at path.
func Load(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sensor description: %w", err)
	}
	defer func() { _ = f.Close() }()

	s, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse reads a description document from r. Every reference and attribute
// is validated; all problems found are reported together.
func Parse(r io.Reader) (*Schema, error) {
	var root node
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("parse sensor description: %w", err)
	}

	s := &Schema{
		classes: make(map[string][]Sensor),
		decodes: make(map[string]DecodeTable),
	}

	var errs error
	errs = multierr.Append(errs, s.collectDecodes(root))
	errs = multierr.Append(errs, s.collectSensors(root))
	errs = multierr.Append(errs, s.checkReferences())
	if errs != nil {
		return nil, errs
	}
	return s, nil
}

// Describe returns the sensors of class in document order. Unknown classes
// yield an empty slice.
func (s *Schema) Describe(class string) []Sensor {
	sensors := s.classes[class]
	out := make([]Sensor, len(sensors))
	copy(out, sensors)
	return out
}

// LookupDecode resolves a decode table by name.
func (s *Schema) LookupDecode(name string) (DecodeTable, error) {
	t, ok := s.decodes[name]
	if !ok {
		return DecodeTable{}, fmt.Errorf("%w: decode table %q not defined", ErrInconsistent, name)
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Document walking
// ---------------------------------------------------------------------------

func (s *Schema) collectDecodes(root node) error {
	var errs error
	walk(root, func(n node) bool {
		if n.XMLName.Local != decodeSection {
			return true
		}
		for _, tbl := range n.Nodes {
			errs = multierr.Append(errs, s.addDecodeTable(tbl))
		}
		return false
	})
	return errs
}

func (s *Schema) addDecodeTable(tbl node) error {
	name := tbl.XMLName.Local
	if _, dup := s.decodes[name]; dup {
		return fmt.Errorf("%w: decode table %q defined twice", ErrInconsistent, name)
	}

	t := DecodeTable{Name: name, entries: make(map[string]string)}
	var errs error
	walk(tbl, func(n node) bool {
		if n.XMLName.Local != "code" {
			return true
		}
		a := n.attrs()
		key, ok := a["key"]
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: decode table %q has a code without key", ErrInconsistent, name))
			return false
		}
		if _, dup := t.entries[key]; dup {
			errs = multierr.Append(errs, fmt.Errorf("%w: decode table %q repeats key %q", ErrInconsistent, name, key))
			return false
		}
		t.keys = append(t.keys, key)
		t.entries[key] = a["value"]
		return false
	})
	s.decodes[name] = t
	return errs
}

func (s *Schema) collectSensors(root node) error {
	var errs error
	walk(root, func(n node) bool {
		switch n.XMLName.Local {
		case decodeSection:
			return false
		case ClassFan, ClassPSU, ClassTemp, ClassCPU:
			sensor, err := newSensor(n)
			errs = multierr.Append(errs, err)
			s.classes[n.XMLName.Local] = append(s.classes[n.XMLName.Local], sensor)
			return false
		}
		return true
	})
	return errs
}

func newSensor(n node) (Sensor, error) {
	class := n.XMLName.Local
	parent := n.attrs()
	sensor := Sensor{ID: parent["id"], Location: parent["location"]}

	var errs error
	walk(n, func(child node) bool {
		if child.XMLName.Local != "property" {
			return true
		}
		attrs := make(map[string]string, len(parent)+len(child.Attrs))
		for k, v := range parent {
			attrs[k] = v
		}
		for k, v := range child.attrs() {
			attrs[k] = v
		}
		p, err := newProperty(attrs)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s %q: %w", class, sensor.ID, err))
			return false
		}
		sensor.Properties = append(sensor.Properties, p)
		return false
	})
	return sensor, errs
}

func newProperty(a map[string]string) (Property, error) {
	p := Property{
		Name:     a["name"],
		Location: a["location"],
		Default:  a["default"],
		Decode:   a["decode"],
	}
	if p.Name == "" {
		return p, fmt.Errorf("%w: property without name", ErrInconsistent)
	}
	if p.Location == "" {
		return p, fmt.Errorf("%w: property %q has no location", ErrInconsistent, p.Name)
	}
	if v, ok := a["type"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("%w: property %q type %q is not an integer", ErrInconsistent, p.Name, v)
		}
		p.Encoding = register.Encoding(n)
	}
	if v, ok := a["bit"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 63 {
			return p, fmt.Errorf("%w: property %q bit %q must be 0..63", ErrInconsistent, p.Name, v)
		}
		p.Bit = n
	}
	if _, ok := a["default"]; p.Decode != "" && !ok {
		return p, fmt.Errorf("%w: property %q decodes with %q but has no default", ErrInconsistent, p.Name, p.Decode)
	}
	return p, nil
}

func (s *Schema) checkReferences() error {
	var errs error
	for _, class := range []string{ClassFan, ClassPSU, ClassTemp, ClassCPU} {
		for _, sensor := range s.classes[class] {
			for _, p := range sensor.Properties {
				if p.Decode == "" {
					continue
				}
				if _, ok := s.decodes[p.Decode]; !ok {
					errs = multierr.Append(errs, fmt.Errorf("%w: %s %q property %q references undefined decode table %q",
						ErrInconsistent, class, sensor.ID, p.Name, p.Decode))
				}
			}
		}
	}
	return errs
}

// walk visits n and its descendants depth first in document order. visit
// returns false to skip the children of the node it was given.
func walk(n node, visit func(node) bool) {
	if !visit(n) {
		return
	}
	for _, child := range n.Nodes {
		walk(child, visit)
	}
}
