// Package sink implements the durable append-only output for parsed
// frames.
package sink

import (
	"encoding/csv"
	"fmt"
	"os"
)

// CSV is an append-only CSV file. The header row is written exactly
// once, at open time and only when the file did not already exist, so
// re-running the collector against the same file never duplicates it.
// Every Append flushes before returning; a crash loses at most the row
// in flight.
type CSV struct {
	path string
	file *os.File
	w    *csv.Writer
}

// OpenCSV opens path for appending, creating it with the given header
// when it does not already exist.
func OpenCSV(path string, header []string) (*CSV, error) {
	_, statErr := os.Stat(path)
	existed := statErr == nil

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open sink %s: %w", path, err)
	}

	c := &CSV{
		path: path,
		file: f,
		w:    csv.NewWriter(f),
	}

	if !existed {
		if err := c.Append(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write sink header: %w", err)
		}
	}

	return c, nil
}

// Append writes one row and flushes it immediately.
func (c *CSV) Append(row []string) error {
	if err := c.w.Write(row); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

// Path returns the sink file path.
func (c *CSV) Path() string { return c.path }

// Close flushes any buffered output and closes the file.
func (c *CSV) Close() error {
	c.w.Flush()
	flushErr := c.w.Error()
	if err := c.file.Close(); err != nil {
		return err
	}
	return flushErr
}
