package local

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shpitdev/site-classifier/pkg/pipeline/schema"
)

// Table is a CSV document: a header and records keyed by column name.
type Table struct {
	Header  []string
	Records []map[string]string
}

// ReadTable reads a CSV with a header row. Column names are trimmed. Short
// records leave trailing columns empty. Every required column must be present.
func ReadTable(r io.Reader, required ...string) (Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return Table{}, fmt.Errorf("read header: empty file")
	}
	if err != nil {
		return Table{}, fmt.Errorf("read header: %w", err)
	}
	for i, col := range header {
		if i == 0 {
			col = strings.TrimPrefix(col, "\ufeff")
		}
		header[i] = strings.TrimSpace(col)
	}
	if missing := schema.MissingColumns(header, required...); len(missing) > 0 {
		return Table{}, fmt.Errorf("missing required column %q", missing[0])
	}

	t := Table{Header: header}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			return Table{}, fmt.Errorf("read row: %w", err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = ""
			}
		}
		t.Records = append(t.Records, row)
	}
}

// ReadTableFile opens path and reads it with ReadTable.
func ReadTableFile(path string, required ...string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, err
	}
	defer f.Close()
	t, err := ReadTable(f, required...)
	if err != nil {
		return Table{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// WriteTable writes header then each record's values in header order.
func WriteTable(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	rec := make([]string, len(t.Header))
	for _, r := range t.Records {
		for i, col := range t.Header {
			rec[i] = r[col]
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTableFileAtomic writes t to a temp file next to path and renames it
// into place, so readers never observe a partial file.
func WriteTableFileAtomic(path string, t Table) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := WriteTable(tmp, t); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write csv: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close csv: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename csv into place: %w", err)
	}
	return nil
}
