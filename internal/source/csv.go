package source

import (
	"encoding/csv"
	"errors"
	"io"
	"iter"
	"os"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/couchcryptid/poimap-etl/internal/domain"
)

type csvTable struct {
	file   *os.File
	reader *csv.Reader
	header []string
}

func openCSV(path string) (*csvTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(errors.Join(domain.ErrSourceUnavailable, err), "open %s", path)
	}

	// Spreadsheet exports often start with a UTF-8 byte order mark, which
	// would otherwise end up in the first header name.
	decoded := transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	r := csv.NewReader(decoded)
	r.FieldsPerRecord = -1 // allow variable fields

	header, err := r.Read()
	if err != nil {
		_ = f.Close()
		if err == io.EOF {
			return nil, eris.Wrapf(domain.ErrSourceUnavailable, "%s has no header row", path)
		}
		return nil, eris.Wrapf(errors.Join(domain.ErrSourceUnavailable, err), "read header of %s", path)
	}

	return &csvTable{file: f, reader: r, header: normalizeHeader(header)}, nil
}

func (t *csvTable) Header() []string { return t.header }

func (t *csvTable) Rows() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		line := 0
		for {
			record, err := t.reader.Read()
			if err == io.EOF {
				return
			}
			line++

			if err != nil {
				var pe *csv.ParseError
				if !errors.As(err, &pe) {
					// I/O failure: nothing further can be read.
					yield(Row{Line: line}, eris.Wrap(errors.Join(domain.ErrRowMalformed, err), "csv: read row"))
					return
				}
				if !yield(Row{Line: line}, eris.Wrapf(errors.Join(domain.ErrRowMalformed, err), "csv: row %d", line)) {
					return
				}
				continue
			}

			if !yield(Row{Line: line, Fields: zip(t.header, record)}, nil) {
				return
			}
		}
	}
}

func (t *csvTable) Close() error {
	return t.file.Close()
}
