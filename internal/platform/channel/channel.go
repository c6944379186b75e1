// Package channel is the mailbox between the producer and the dashboard:
// a named tabular resource that is written and read as a whole dataset.
//
// There is no locking between writer and reader. The only promise is that
// the most recent completed write is visible to subsequent reads; a read
// racing a write may see ErrNotReady or a malformed document and is
// expected to try again later.
package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/ehr/patientsim/internal/domain/observation"
)

var (
	// ErrNotReady means the resource does not exist yet or is empty.
	ErrNotReady = errors.New("channel: resource not ready")
	// ErrMalformed means the resource exists but could not be parsed.
	ErrMalformed = errors.New("channel: malformed document")
)

// Table is the raw content of a channel: a header and the rows below it.
// Rows may be shorter than the header when a read interleaved a write.
type Table struct {
	Header []string
	Rows   [][]string
}

// Index returns the header index of the table.
func (t *Table) Index() observation.HeaderIndex {
	return observation.NewHeaderIndex(t.Header)
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Channel is a whole-dataset mailbox.
type Channel interface {
	Name() string
	Write(ctx context.Context, rows []observation.Observation) error
	Read(ctx context.Context) ([]observation.Observation, error)
	ReadTable(ctx context.Context) (*Table, error)
}

// EncodeTable turns observations into a table with the standard header.
func EncodeTable(rows []observation.Observation) *Table {
	t := &Table{
		Header: append([]string(nil), observation.Columns...),
		Rows:   make([][]string, 0, len(rows)),
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, r.ToRecord())
	}
	return t
}

// DecodeTable strictly decodes every row of t. Any row that fails to
// decode makes the whole table malformed.
func DecodeTable(t *Table) ([]observation.Observation, error) {
	idx := t.Index()
	out := make([]observation.Observation, 0, len(t.Rows))
	for i, row := range t.Rows {
		o, err := observation.FromRecord(idx, row)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformed, i+1, err)
		}
		out = append(out, o)
	}
	return out, nil
}
