package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/ehr/patientsim/internal/domain/observation"
)

// MemoryChannel is a single-slot, last-write-wins channel held in memory.
// It has the same visibility contract as FileChannel without depending on
// filesystem timing.
type MemoryChannel struct {
	name string

	mu     sync.RWMutex
	table  *Table
	writes int
	fail   error
}

// NewMemoryChannel returns an empty channel; reads report ErrNotReady
// until the first write.
func NewMemoryChannel(name string) *MemoryChannel {
	return &MemoryChannel{name: name}
}

// Name returns the channel name.
func (c *MemoryChannel) Name() string {
	return c.name
}

// FailWrites makes every subsequent write return err; nil restores normal
// operation.
func (c *MemoryChannel) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = err
}

// Writes returns the number of completed writes.
func (c *MemoryChannel) Writes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.writes
}

// Write replaces the slot content with rows.
func (c *MemoryChannel) Write(ctx context.Context, rows []observation.Observation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return fmt.Errorf("write %s: %w", c.name, c.fail)
	}
	c.table = EncodeTable(rows)
	c.writes++
	return nil
}

// WriteTable replaces the slot with a raw table, which need not be well
// formed.
func (c *MemoryChannel) WriteTable(t *Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = cloneTable(t)
	c.writes++
}

// Clear empties the slot so reads report ErrNotReady again.
func (c *MemoryChannel) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = nil
}

// Read decodes the slot content.
func (c *MemoryChannel) Read(ctx context.Context) ([]observation.Observation, error) {
	t, err := c.ReadTable(ctx)
	if err != nil {
		return nil, err
	}
	return DecodeTable(t)
}

// ReadTable returns a copy of the slot content.
func (c *MemoryChannel) ReadTable(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.table == nil {
		return nil, fmt.Errorf("%w: %s has not been written", ErrNotReady, c.name)
	}
	return cloneTable(c.table), nil
}

func cloneTable(t *Table) *Table {
	out := &Table{
		Header: append([]string(nil), t.Header...),
		Rows:   make([][]string, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = append([]string(nil), r...)
	}
	return out
}
