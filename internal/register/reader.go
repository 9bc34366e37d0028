package register

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// inputSuffix marks the per-sensor value files in a hwmon-style directory.
const inputSuffix = "_input"

// Reader resolves register locations against a root directory and reads
// them. It never writes to the register filesystem.
type Reader struct {
	root string
}

// NewReader returns a Reader rooted at root. An empty root means DefaultRoot.
func NewReader(root string) *Reader {
	if root == "" {
		root = DefaultRoot
	}
	return &Reader{root: root}
}

// Root returns the directory relative locations resolve under.
func (r *Reader) Root() string {
	return r.root
}

// Resolve maps a schema location to a filesystem path. Absolute locations are
// returned unchanged.
func (r *Reader) Resolve(location string) string {
	if filepath.IsAbs(location) {
		return location
	}
	return filepath.Join(r.root, location)
}

// Read returns the content of the register at location.
func (r *Reader) Read(location string) Reading {
	path := r.Resolve(location)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return Reading{Path: path, Err: &NotFoundError{Path: path}}
		}
		return Reading{Path: path, Err: &ReadError{Path: path, Err: err}}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Reading{Path: path, Err: &ReadError{Path: path, Err: err}}
	}

	raw := strings.TrimRight(string(data), "\r\n")
	raw = strings.TrimLeft(raw, " ")
	return Reading{Path: path, Raw: raw}
}

// ListInputs returns the names of files in dir ending in "_input", sorted
// ascending. The names are relative to dir.
func (r *Reader) ListInputs(dir string) ([]string, error) {
	path := r.Resolve(dir)

	entries, err := os.ReadDir(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &NotFoundError{Path: path}
		}
		return nil, fmt.Errorf("list %s: %w", path, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), inputSuffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
