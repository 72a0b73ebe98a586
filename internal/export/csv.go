package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"canlog/internal/domain"
	"canlog/internal/telemetry"
)

// ── CSV Destination ────────────────────────────────────────
// Writes one CSV file per target into a directory. Placeholder cells
// that are nil are written empty.

// CSVWriter implements Destination for a directory of CSV files.
type CSVWriter struct {
	Dir string
}

// NewCSVWriter returns a writer rooted at dir. An empty dir means the
// current directory.
func NewCSVWriter(dir string) *CSVWriter {
	return &CSVWriter{Dir: dir}
}

// Path returns the file a target is written to.
func (w *CSVWriter) Path(target string) string {
	if filepath.Ext(target) == "" {
		target += ".csv"
	}
	if filepath.IsAbs(target) || w.Dir == "" {
		return target
	}
	return filepath.Join(w.Dir, target)
}

func (w *CSVWriter) Write(ctx context.Context, t *telemetry.Table, target string, mode domain.SyncMode) (int, error) {
	path := w.Path(target)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("create export directory: %w", err)
	}

	header := true
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if mode == domain.SyncAppend {
		existing, err := readHeader(path)
		if err != nil {
			return 0, err
		}
		if existing != nil {
			if !slices.Equal(existing, t.Header()) {
				return 0, fmt.Errorf("append to %s: existing header has %d columns, table has %d or differs in order",
					path, len(existing), len(t.Header()))
			}
			header = false
			flags = os.O_WRONLY | os.O_APPEND
		}
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	n, werr := writeCSV(ctx, f, t, header)
	if cerr := f.Close(); werr == nil && cerr != nil {
		werr = fmt.Errorf("close %s: %w", path, cerr)
	}
	return n, werr
}

func (w *CSVWriter) TestConnection(ctx context.Context) error {
	if w.Dir == "" {
		return nil
	}
	info, err := os.Stat(w.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return os.MkdirAll(w.Dir, 0o755)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", w.Dir)
	}
	return nil
}

func (w *CSVWriter) Close() error { return nil }

// WriteCSV writes t with its header row to out.
func WriteCSV(ctx context.Context, out io.Writer, t *telemetry.Table) (int, error) {
	return writeCSV(ctx, out, t, true)
}

func writeCSV(ctx context.Context, out io.Writer, t *telemetry.Table, header bool) (int, error) {
	cw := csv.NewWriter(out)
	if header {
		if err := cw.Write(t.Header()); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
	}

	record := make([]string, len(t.Columns)+1)
	written := 0
	for i, row := range t.Rows {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return written, err
			}
		}
		record[0] = FormatCell(row.Timestamp)
		for j, v := range row.Values {
			record[j+1] = FormatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return written, fmt.Errorf("write row %d: %w", i, err)
		}
		written++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return written, fmt.Errorf("flush csv: %w", err)
	}
	return written, nil
}

// FormatCell renders a table value as text. nil renders empty and
// floats use the shortest exact decimal form.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// readHeader returns the first record of an existing CSV file, or nil if
// the file is missing or empty.
func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	rec, err := csv.NewReader(f).Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	return rec, nil
}
