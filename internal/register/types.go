// Package register reads raw sensor registers exposed as flat files by the
// kernel bus layer and decodes them into semantic values.
package register

import (
	"errors"
	"fmt"
)

// DefaultRoot is the directory relative register locations resolve under.
const DefaultRoot = "/sys/bus/i2c/devices/"

// ErrNotFound matches any NotFoundError via errors.Is.
var ErrNotFound = errors.New("register not found")

// ErrDecode matches any DecodeError via errors.Is.
var ErrDecode = errors.New("register decode failed")

// NotFoundError reports a register endpoint that does not exist. This is a
// normal condition for removed hardware.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ERR %s notfound", e.Path)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ReadError reports an endpoint that exists but could not be read.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("ERR %s unreadable: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// DecodeError reports a raw register value that does not parse under its
// declared encoding.
type DecodeError struct {
	Raw      string
	Encoding Encoding
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q as %s: %v", e.Raw, e.Encoding, e.Err)
}

// Is reports whether target is ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Reading is the outcome of a single register read: either Raw holds the
// trimmed register text, or Err describes why it could not be obtained.
type Reading struct {
	// Path is the resolved filesystem path of the endpoint.
	Path string

	// Raw is the register content with trailing CR/LF and leading spaces
	// removed. Empty when Err is set.
	Raw string

	// Err is a *NotFoundError or *ReadError on failure.
	Err error
}

// Failed reports whether the read did not produce a value.
func (r Reading) Failed() bool {
	return r.Err != nil
}
