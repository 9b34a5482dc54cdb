package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for input files that are neither delimited
// text nor a spreadsheet.
var ErrUnsupportedFormat = errors.New("unsupported input format")

// ErrEmptyInput is returned when the input has no header row.
var ErrEmptyInput = errors.New("input has no header row")

const utf8BOM = "\ufeff"

// Load reads the original dataset at path and detects its URL column. All
// rows start unresolved.
func Load(path string) (*Table, error) {
	records, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromRecords(records)
}

// ReadFile reads every record of a .csv or .xlsx/.xlsm file, header first.
func ReadFile(path string) ([][]string, error) {
	// #nosec G304 -- the input path is operator supplied.
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt", ".tsv":
		return ReadCSV(f, delimiterFor(path))
	case ".xlsx", ".xlsm":
		return ReadXLSX(f)
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}

// ReadCSV decodes delimited text. Ragged rows are tolerated and a leading
// byte-order mark is dropped from the first header cell.
func ReadCSV(r io.Reader, delimiter rune) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], utf8BOM)
	}
	return records, nil
}

// ReadXLSX decodes the first worksheet of a workbook, skipping blank rows.
func ReadXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyInput
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// EncodeCSV renders records as comma-separated text.
func EncodeCSV(records [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeXLSX renders records into a single-sheet workbook.
func EncodeXLSX(records [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	for i, rec := range records {
		start, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, fmt.Errorf("cell name for row %d: %w", i+1, err)
		}
		row := rec
		if err := f.SetSheetRow(sheet, start, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// FromRecords builds a fresh working table from raw records (header first).
func FromRecords(records [][]string) (*Table, error) {
	if len(records) == 0 || isBlank(records[0]) {
		return nil, ErrEmptyInput
	}
	header := trimHeader(records[0])
	body := records[1:]
	col, err := DetectURLColumn(header, body)
	if err != nil {
		return nil, err
	}
	t := &Table{
		Header:    header,
		URLColumn: col,
		Rows:      make([]Row, 0, len(body)),
	}
	for _, rec := range body {
		t.Rows = append(t.Rows, Row{Fields: pad(rec, len(header))})
	}
	return t, nil
}

// FromSnapshot parses a previously persisted output. The status and detail
// columns are split off into each row's state; URLColumn is located by
// urlColumn name and is -1 when the snapshot does not carry it. Records
// appends those columns last, so an input column that shares their name
// stays an ordinary field.
func FromSnapshot(records [][]string, urlColumn string) (*Table, error) {
	if len(records) == 0 || isBlank(records[0]) {
		return nil, ErrEmptyInput
	}
	full := trimHeader(records[0])
	statusIdx := lastColumnIndex(full, StatusColumn)
	detailIdx := lastColumnIndex(full, DetailColumn)

	keep := make([]int, 0, len(full))
	header := make([]string, 0, len(full))
	for i, name := range full {
		if i == statusIdx || i == detailIdx {
			continue
		}
		keep = append(keep, i)
		header = append(header, name)
	}

	t := &Table{
		Header:    header,
		URLColumn: columnIndex(header, urlColumn),
		Rows:      make([]Row, 0, len(records)-1),
	}
	for _, rec := range records[1:] {
		fields := make([]string, len(keep))
		for j, src := range keep {
			fields[j] = cell(rec, src)
		}
		t.Rows = append(t.Rows, Row{
			Fields: fields,
			Status: ParseStatus(cell(rec, statusIdx)),
			Detail: cell(rec, detailIdx),
		})
	}
	return t, nil
}

func delimiterFor(path string) rune {
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		return '\t'
	}
	return ','
}

func trimHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = strings.TrimSpace(h)
	}
	return out
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
