package table

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrColumnNotFound indicates no URL-bearing column could be identified.
var ErrColumnNotFound = errors.New("url column not found")

// ColumnNotFoundError carries the header that failed detection.
type ColumnNotFoundError struct {
	Header []string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf(
		"could not find a URL column among %q: name one of url/link/website or include http(s) links",
		e.Header,
	)
}

// Unwrap lets errors.Is match ErrColumnNotFound.
func (e *ColumnNotFoundError) Unwrap() error {
	return ErrColumnNotFound
}

const detectSampleSize = 20

var (
	urlColumnNames = map[string]struct{}{
		"url":     {},
		"link":    {},
		"website": {},
	}
	httpPrefix = regexp.MustCompile(`^https?://`)
)

// DetectURLColumn picks the URL-bearing column. A header named url, link or
// website (case-insensitive) wins; otherwise the first column whose leading
// sample contains an http(s) value is used.
func DetectURLColumn(header []string, rows [][]string) (int, error) {
	for i, name := range header {
		if _, ok := urlColumnNames[strings.ToLower(strings.TrimSpace(name))]; ok {
			return i, nil
		}
	}
	sample := rows
	if len(sample) > detectSampleSize {
		sample = sample[:detectSampleSize]
	}
	for col := range header {
		for _, rec := range sample {
			if httpPrefix.MatchString(strings.TrimSpace(cell(rec, col))) {
				return col, nil
			}
		}
	}
	return -1, &ColumnNotFoundError{Header: append([]string(nil), header...)}
}

func columnIndex(header []string, name string) int {
	for i, h := range header {
		if h == name {
			return i
		}
	}
	return -1
}

func lastColumnIndex(header []string, name string) int {
	for i := len(header) - 1; i >= 0; i-- {
		if header[i] == name {
			return i
		}
	}
	return -1
}
