package channel

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ehr/patientsim/internal/domain/observation"
)

// FileChannel stores the dataset as a comma-separated file with a header
// row. Writes go to a temporary file in the same directory which is then
// renamed over the target, so a reader sees either the previous or the
// new document.
type FileChannel struct {
	path string
}

// NewFileChannel returns a channel backed by the file at path.
func NewFileChannel(path string) *FileChannel {
	return &FileChannel{path: path}
}

// Name returns the file name of the channel.
func (c *FileChannel) Name() string {
	return filepath.Base(c.path)
}

// Path returns the full path of the backing file.
func (c *FileChannel) Path() string {
	return c.path
}

// Write replaces the file with rows.
func (c *FileChannel) Write(ctx context.Context, rows []observation.Observation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.WriteTable(EncodeTable(rows))
}

// WriteTable replaces the file with the raw table t.
func (c *FileChannel) WriteTable(t *Table) error {
	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	w := csv.NewWriter(tmp)
	if err := w.Write(t.Header); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replace %s: %w", c.path, err)
	}
	return nil
}

// Read decodes every row of the file.
func (c *FileChannel) Read(ctx context.Context) ([]observation.Observation, error) {
	t, err := c.ReadTable(ctx)
	if err != nil {
		return nil, err
	}
	return DecodeTable(t)
}

// ReadTable returns the raw header and rows. A missing or zero-length
// file is ErrNotReady; a document the CSV reader rejects is ErrMalformed.
// Rows with a field count different from the header are kept as-is.
func (c *FileChannel) ReadTable(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s not found", ErrNotReady, c.Name())
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", c.path, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrNotReady, c.Name())
	}

	f, err := os.Open(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s not found", ErrNotReady, c.Name())
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", c.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s has no header", ErrNotReady, c.Name())
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, c.Name(), err)
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, c.Name(), err)
	}
	return &Table{Header: header, Rows: rows}, nil
}
