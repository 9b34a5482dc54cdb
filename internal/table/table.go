// Package table holds the working table of input rows together with the
// verification state recorded for each of them.
package table

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the verification state of a single row.
type Status string

// Row status values. The unresolved status serializes to an empty cell so a
// snapshot written mid-run reads back as "not yet checked".
const (
	StatusUnresolved Status = ""
	StatusValid      Status = "valid"
	StatusInvalid    Status = "invalid"
)

// Column names appended to the original header when the table is persisted.
const (
	StatusColumn = "status"
	DetailColumn = "status_detail"
)

var (
	// ErrAlreadyResolved is returned when a caller tries to overwrite a row
	// whose status is already terminal.
	ErrAlreadyResolved = errors.New("row already resolved")
	// ErrIndexOutOfRange is returned for row indices outside the table.
	ErrIndexOutOfRange = errors.New("row index out of range")
)

// ParseStatus maps a persisted status cell back to a Status. Anything that is
// not a recognised terminal value (empty cells, "nan", garbage) is unresolved.
func ParseStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(StatusValid):
		return StatusValid
	case string(StatusInvalid):
		return StatusInvalid
	default:
		return StatusUnresolved
	}
}

// Resolved reports whether the status is terminal.
func (s Status) Resolved() bool {
	return s == StatusValid || s == StatusInvalid
}

// Row is one input record plus its verification state.
type Row struct {
	Fields []string
	Status Status
	Detail string
}

// Table is the ordered working set of rows. URLColumn indexes into Header and
// into every row's Fields.
type Table struct {
	Header    []string
	URLColumn int
	Rows      []Row
}

// Summary counts rows per status.
type Summary struct {
	Total      int `json:"total"`
	Valid      int `json:"valid"`
	Invalid    int `json:"invalid"`
	Unresolved int `json:"unresolved"`
}

// Resolved returns the number of rows with a terminal status.
func (s Summary) Resolved() int {
	return s.Valid + s.Invalid
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// URLColumnName returns the header name of the detected URL column.
func (t *Table) URLColumnName() string {
	if t == nil || t.URLColumn < 0 || t.URLColumn >= len(t.Header) {
		return ""
	}
	return t.Header[t.URLColumn]
}

// URL returns the raw URL cell for row i.
func (t *Table) URL(i int) string {
	if i < 0 || i >= t.Len() {
		return ""
	}
	return cell(t.Rows[i].Fields, t.URLColumn)
}

// FirstUnresolved returns the index of the first row without a terminal
// status. ok is false when every row is resolved.
func (t *Table) FirstUnresolved() (int, bool) {
	for i := range t.Rows {
		if !t.Rows[i].Status.Resolved() {
			return i, true
		}
	}
	return 0, false
}

// Set records the verification result for row i. A row transitions at most
// once from unresolved to a terminal status.
func (t *Table) Set(i int, status Status, detail string) error {
	if i < 0 || i >= t.Len() {
		return fmt.Errorf("set row %d: %w", i, ErrIndexOutOfRange)
	}
	if !status.Resolved() {
		return fmt.Errorf("set row %d: status %q is not terminal", i, status)
	}
	if t.Rows[i].Status.Resolved() {
		return fmt.Errorf("set row %d: %w", i, ErrAlreadyResolved)
	}
	t.Rows[i].Status = status
	t.Rows[i].Detail = detail
	return nil
}

// Summary tallies the current row statuses.
func (t *Table) Summary() Summary {
	s := Summary{Total: t.Len()}
	if t == nil {
		return s
	}
	for _, row := range t.Rows {
		switch row.Status {
		case StatusValid:
			s.Valid++
		case StatusInvalid:
			s.Invalid++
		default:
			s.Unresolved++
		}
	}
	return s
}

// Records renders the table as a header row followed by one record per row,
// with the status and detail columns appended. Every record has the same width.
func (t *Table) Records() [][]string {
	width := len(t.Header)
	out := make([][]string, 0, t.Len()+1)
	header := make([]string, 0, width+2)
	header = append(header, t.Header...)
	header = append(header, StatusColumn, DetailColumn)
	out = append(out, header)
	for _, row := range t.Rows {
		rec := make([]string, 0, width+2)
		rec = append(rec, pad(row.Fields, width)...)
		rec = append(rec, string(row.Status), row.Detail)
		out = append(out, rec)
	}
	return out
}

func cell(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}

func pad(fields []string, width int) []string {
	if len(fields) >= width {
		return fields[:width]
	}
	out := make([]string, width)
	copy(out, fields)
	return out
}
