package results

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// CSVWriter writes rows to a comma-separated file. The file is truncated on
// open and flushed after every row so a failed sweep keeps its finished rows.
type CSVWriter struct {
	path string
	f    *os.File
	w    *csv.Writer
}

// CreateCSV creates path (and its directory) and writes the header.
func CreateCSV(path string) (*CSVWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "results: create directory %s", dir)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, eris.Wrap(err, "results: create file")
	}

	cw := &CSVWriter{path: path, f: f, w: csv.NewWriter(f)}
	if err := cw.writeRecord(Header); err != nil {
		_ = f.Close()
		return nil, eris.Wrap(err, "results: write header")
	}
	return cw, nil
}

// Path returns the output file path.
func (c *CSVWriter) Path() string { return c.path }

// Write appends one row.
func (c *CSVWriter) Write(_ context.Context, row Row) error {
	if err := c.writeRecord(row.Record()); err != nil {
		return eris.Wrap(err, "results: write row")
	}
	return nil
}

func (c *CSVWriter) writeRecord(rec []string) error {
	if err := c.w.Write(rec); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

// Close flushes and closes the file.
func (c *CSVWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		_ = c.f.Close()
		return eris.Wrap(err, "results: flush")
	}
	return eris.Wrap(c.f.Close(), "results: close file")
}
