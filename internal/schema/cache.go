package schema

import "sync"

// Cache loads the description file on first use and keeps the parsed Schema
// for later callers. A failed load is not cached, so the next call retries.
type Cache struct {
	path string

	mu     sync.Mutex
	schema *Schema
}

// NewCache returns a Cache for the description file at path.
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// Path returns the description file path.
func (c *Cache) Path() string {
	return c.path
}

// Schema returns the cached Schema, loading it if necessary.
func (c *Cache) Schema() (*Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.schema != nil {
		return c.schema, nil
	}
	s, err := Load(c.path)
	if err != nil {
		return nil, err
	}
	c.schema = s
	return s, nil
}
