// Package source reads point-of-interest source tables. A table is a header
// row followed by data rows; CSV and XLSX files are supported.
package source

import (
	"iter"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/couchcryptid/poimap-etl/internal/domain"
)

// Row is one data row keyed by header name.
type Row struct {
	Line   int // 1-based data row number, header excluded
	Fields map[string]string
}

// Get returns the trimmed value of column, or "" when the row lacks it.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r.Fields[column])
}

// Table is an open source table. Rows are produced lazily, in file order.
// A non-nil error paired with a Row describes that row only; iteration
// continues past it.
type Table interface {
	Header() []string
	Rows() iter.Seq2[Row, error]
	Close() error
}

// Open opens the table at path, choosing a reader by file extension.
// Failures wrap domain.ErrSourceUnavailable.
func Open(path string) (Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		t, err := openCSV(path)
		if err != nil {
			return nil, err
		}
		return t, nil
	case ".xlsx":
		t, err := openXLSX(path)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, eris.Wrapf(domain.ErrSourceUnavailable, "unsupported source format %q", path)
	}
}

// RequireColumns checks that every column is present in the table header.
func RequireColumns(t Table, columns ...string) error {
	present := make(map[string]bool, len(t.Header()))
	for _, h := range t.Header() {
		present[h] = true
	}
	var missing []string
	for _, c := range columns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return eris.Wrapf(domain.ErrSourceUnavailable, "missing required columns %s", strings.Join(missing, ", "))
	}
	return nil
}

// normalizeHeader trims header cells so " Latitude" and "Latitude" match.
func normalizeHeader(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

// zip pairs header names with cells. Short rows leave trailing columns empty
// and cells beyond the header are dropped.
func zip(header, cells []string) map[string]string {
	fields := make(map[string]string, len(header))
	for i, name := range header {
		if name == "" {
			continue
		}
		if i < len(cells) {
			fields[name] = cells[i]
		} else {
			fields[name] = ""
		}
	}
	return fields
}
