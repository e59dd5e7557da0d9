// Package importer reads buyer lists from CSV and XLSX files, maps their
// columns onto buyer field keys and turns each row into a set of field
// values ready to be applied through the provenance gate.
package importer

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Table is a parsed spreadsheet: one header row plus data rows.
type Table struct {
	Header []string
	// Rows holds data rows. Line numbers in reports are index + 2.
	Rows [][]string
}

// ReadOptions configures file parsing.
type ReadOptions struct {
	Delimiter  rune   // CSV only, default ','
	SheetName  string // XLSX only, overrides SheetIndex
	SheetIndex int    // XLSX only
}

// ReadFile parses path as CSV, TSV or XLSX based on its extension.
func ReadFile(ctx context.Context, path string, opts ReadOptions) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return ReadXLSX(ctx, path, opts)
	case ".tsv":
		if opts.Delimiter == 0 {
			opts.Delimiter = '\t'
		}
		fallthrough
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "importer: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(ctx, f, opts)
	default:
		return nil, eris.Errorf("importer: unsupported file type %q", filepath.Ext(path))
	}
}

// ReadCSV parses a delimited file whose first non-blank row is the header.
// Cells are trimmed.
func ReadCSV(ctx context.Context, r io.Reader, opts ReadOptions) (*Table, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	var raw [][]string
	for {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "csv: context cancelled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		raw = append(raw, record)
	}
	return newTable(raw)
}

// ReadXLSX parses one sheet of a workbook. The first row is the header.
func ReadXLSX(ctx context.Context, path string, opts ReadOptions) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}

	raw := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "xlsx: context cancelled")
		}
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		raw = append(raw, cells)
	}
	return newTable(raw)
}

func getSheet(f *xlsx.File, opts ReadOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func newTable(raw [][]string) (*Table, error) {
	t := &Table{}
	for _, rec := range raw {
		for i := range rec {
			rec[i] = strings.TrimSpace(rec[i])
		}
		if t.Header == nil {
			if isBlankRow(rec) {
				continue
			}
			t.Header = rec
			continue
		}
		// Keep blank rows as placeholders so line numbers stay stable.
		t.Rows = append(t.Rows, rec)
	}
	if t.Header == nil {
		return nil, eris.New("importer: file has no header row")
	}
	return t, nil
}

func isBlankRow(rec []string) bool {
	for _, c := range rec {
		if c != "" {
			return false
		}
	}
	return true
}
