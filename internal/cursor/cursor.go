// Package cursor persists the per-authority gather positions.
package cursor

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/law-makers/plancrawl/pkg/models"
)

// ErrNotFound is returned by Get for an authority with no saved cursor.
var ErrNotFound = errors.New("cursor not found")

// Store loads and saves cursors keyed by authority name.
type Store interface {
	Get(ctx context.Context, authority string) (*models.Cursor, error)
	Put(ctx context.Context, c *models.Cursor) error
	List(ctx context.Context) ([]*models.Cursor, error)
	Delete(ctx context.Context, authority string) error
	Close() error
}

// Memory is a Store kept in process memory.
type Memory struct {
	mu   sync.Mutex
	rows map[string]models.Cursor
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{rows: make(map[string]models.Cursor)}
}

// Get implements Store. The returned cursor is a copy.
func (m *Memory) Get(_ context.Context, authority string) (*models.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[authority]
	if !ok {
		return nil, ErrNotFound
	}
	c.Seen = slices.Clone(c.Seen)
	return &c, nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, c *models.Cursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := *c
	row.Seen = slices.Clone(c.Seen)
	m.rows[row.Authority] = row
	return nil
}

// List implements Store, ordered by authority.
func (m *Memory) List(context.Context) ([]*models.Cursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Cursor, 0, len(m.rows))
	for _, c := range m.rows {
		c := c
		c.Seen = slices.Clone(c.Seen)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Authority < out[j].Authority })
	return out, nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, authority string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, authority)
	return nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
