// Package csvlog writes completed telemetry records to numbered CSV files,
// one row per record.
package csvlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/banshee-data/skylink/internal/fsutil"
	"github.com/banshee-data/skylink/internal/telemetry"
)

// DefaultPattern is the ground station log file pattern. "{}" is replaced by
// the file number.
const DefaultPattern = "data_{}.csv"

// NextFilename returns pattern with "{}" replaced by one more than the highest
// number among existing files that match it. The first file is number 1.
func NextFilename(fsys fsutil.FileSystem, pattern string) (string, error) {
	if strings.Count(pattern, "{}") != 1 {
		return "", fmt.Errorf("pattern %q must contain exactly one {}", pattern)
	}
	matches, err := fsys.Glob(strings.Replace(pattern, "{}", "*", 1))
	if err != nil {
		return "", fmt.Errorf("glob %q: %w", pattern, err)
	}

	re := regexp.MustCompile("^" + strings.Replace(regexp.QuoteMeta(filepath.Clean(pattern)), `\{\}`, `(\d+)`, 1) + "$")
	highest := 0
	for _, m := range matches {
		sub := re.FindStringSubmatch(filepath.Clean(m))
		if sub == nil {
			continue
		}
		if n, err := strconv.Atoi(sub[1]); err == nil && n > highest {
			highest = n
		}
	}
	return strings.Replace(pattern, "{}", strconv.Itoa(highest+1), 1), nil
}

// Writer appends records to one CSV file. It satisfies frame.Sink.
type Writer struct {
	mu     sync.Mutex
	file   io.WriteCloser
	csv    *csv.Writer
	schema *telemetry.Schema
	rows   int
	name   string
}

// Open creates the next numbered file for pattern and writes the header row.
func Open(fsys fsutil.FileSystem, pattern string, schema *telemetry.Schema) (*Writer, error) {
	name, err := NextFilename(fsys, pattern)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(name); dir != "." {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	f, err := fsys.OpenAppend(name)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	w := &Writer{file: f, csv: csv.NewWriter(f), schema: schema, name: name}

	header := make([]string, schema.Len())
	for i, field := range schema.Fields {
		header[i] = field.Label()
	}
	if err := w.writeRow(header); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Name returns the file being written.
func (w *Writer) Name() string { return w.name }

// Rows returns the number of records written, excluding the header.
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// RecordTelemetry appends one record as a row in schema order. Records built
// on a different schema are rejected.
func (w *Writer) RecordTelemetry(rec telemetry.Record) error {
	if rec.Schema != w.schema {
		return fmt.Errorf("record schema does not match %s header", w.name)
	}
	row := make([]string, len(rec.Values))
	for i, v := range rec.Values {
		row[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writeRow(row); err != nil {
		return err
	}
	w.rows++
	return nil
}

func (w *Writer) writeRow(row []string) error {
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("write %s: %w", w.name, err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", w.name, err)
	}
	return nil
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.csv.Flush()
	return w.file.Close()
}
