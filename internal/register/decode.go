package register

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Encoding is the declared interpretation of a raw register value. The
// numeric codes match the "type" attribute of the sensor description.
type Encoding int

const (
	// EncodingRaw returns the register text unchanged.
	EncodingRaw Encoding = 0
	// EncodingMilli parses a milli-unit number and divides by 1000.
	EncodingMilli Encoding = 1
	// EncodingCenti parses a centi-unit number and divides by 100.
	EncodingCenti Encoding = 2
	// EncodingBit parses a hexadecimal integer and isolates one bit.
	EncodingBit Encoding = 3
)

// String returns the encoding name.
func (e Encoding) String() string {
	switch e {
	case EncodingMilli:
		return "milli"
	case EncodingCenti:
		return "centi"
	case EncodingBit:
		return "bit"
	default:
		return "raw"
	}
}

// maxBit is the highest bit index a 64-bit register can isolate.
const maxBit = 63

// Value is a decoded register value.
type Value struct {
	Encoding Encoding
	// Text holds the unchanged register text for raw encodings.
	Text string
	// Number holds the scaled value, or 0/1 for bit encodings.
	Number float64
}

// String returns the canonical text form used for comparisons against
// expected values and decode-table keys.
func (v Value) String() string {
	switch v.Encoding {
	case EncodingMilli, EncodingCenti:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case EncodingBit:
		return strconv.Itoa(int(v.Number))
	default:
		return v.Text
	}
}

// Float returns the numeric value. Raw values are parsed on demand.
func (v Value) Float() (float64, error) {
	switch v.Encoding {
	case EncodingMilli, EncodingCenti, EncodingBit:
		return v.Number, nil
	default:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Text), 64)
		if err != nil {
			return 0, &DecodeError{Raw: v.Text, Encoding: EncodingRaw, Err: err}
		}
		return f, nil
	}
}

// Decode converts a register reading into a Value. A failed reading is
// returned as its own error, whatever the encoding.
func Decode(rd Reading, bit int, enc Encoding) (Value, error) {
	if rd.Failed() {
		return Value{}, rd.Err
	}

	switch enc {
	case EncodingMilli:
		return scaled(rd.Raw, enc, 1000)
	case EncodingCenti:
		return scaled(rd.Raw, enc, 100)
	case EncodingBit:
		if bit < 0 || bit > maxBit {
			return Value{}, &DecodeError{Raw: rd.Raw, Encoding: enc, Err: fmt.Errorf("bit %d out of range", bit)}
		}
		n, err := parseHex(rd.Raw)
		if err != nil {
			return Value{}, &DecodeError{Raw: rd.Raw, Encoding: enc, Err: err}
		}
		return Value{Encoding: enc, Number: float64((n >> uint(bit)) & 1)}, nil
	default:
		return Value{Encoding: EncodingRaw, Text: rd.Raw}, nil
	}
}

// ReadValue reads location and decodes it in one step.
func (r *Reader) ReadValue(location string, bit int, enc Encoding) (Value, error) {
	return Decode(r.Read(location), bit, enc)
}

func scaled(raw string, enc Encoding, divisor float64) (Value, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return Value{}, &DecodeError{Raw: raw, Encoding: enc, Err: err}
	}
	return Value{Encoding: enc, Number: f / divisor}, nil
}

func parseHex(raw string) (uint64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return 0, errors.New("empty value")
	}
	return strconv.ParseUint(s, 16, 64)
}
