package table

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectURLColumnByName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header []string
		want   int
	}{
		{"exact", []string{"name", "url"}, 1},
		{"upper case", []string{"College", "URL"}, 1},
		{"padded", []string{" Website ", "code"}, 0},
		{"link", []string{"id", "Link", "url"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DetectURLColumn(tt.header, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectURLColumnBySample(t *testing.T) {
	t.Parallel()

	header := []string{"name", "homepage", "mirror"}
	rows := [][]string{
		{"a", "example.com", ""},
		{"b", "https://b.example", "http://mirror"},
	}
	got, err := DetectURLColumn(header, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestDetectURLColumnSampleIsBounded(t *testing.T) {
	t.Parallel()

	header := []string{"homepage"}
	rows := make([][]string, 0, 25)
	for i := 0; i < 21; i++ {
		rows = append(rows, []string{"example.com"})
	}
	rows = append(rows, []string{"https://late.example"})
	_, err := DetectURLColumn(header, rows)
	require.ErrorIs(t, err, ErrColumnNotFound)
}

func TestDetectURLColumnNotFound(t *testing.T) {
	t.Parallel()

	_, err := DetectURLColumn([]string{"name", "code"}, [][]string{{"a", "1"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrColumnNotFound))
	var colErr *ColumnNotFoundError
	require.ErrorAs(t, err, &colErr)
	assert.Equal(t, []string{"name", "code"}, colErr.Header)
}

func TestSetIsMonotonic(t *testing.T) {
	t.Parallel()

	tbl := newTable([]string{"a.com", "b.com"})
	require.NoError(t, tbl.Set(0, StatusValid, "ok"))
	err := tbl.Set(0, StatusInvalid, "later")
	require.ErrorIs(t, err, ErrAlreadyResolved)
	assert.Equal(t, StatusValid, tbl.Rows[0].Status)
	assert.Equal(t, "ok", tbl.Rows[0].Detail)

	require.ErrorIs(t, tbl.Set(5, StatusValid, ""), ErrIndexOutOfRange)
	require.Error(t, tbl.Set(1, StatusUnresolved, ""))
}

func TestFirstUnresolved(t *testing.T) {
	t.Parallel()

	tbl := newTable([]string{"a.com", "b.com", "c.com"})
	idx, ok := tbl.FirstUnresolved()
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	require.NoError(t, tbl.Set(0, StatusValid, ""))
	require.NoError(t, tbl.Set(2, StatusInvalid, ""))
	idx, ok = tbl.FirstUnresolved()
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	require.NoError(t, tbl.Set(1, StatusValid, ""))
	_, ok = tbl.FirstUnresolved()
	assert.False(t, ok)
	assert.Equal(t, Summary{Total: 3, Valid: 2, Invalid: 1}, tbl.Summary())
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, StatusValid, ParseStatus(" Valid "))
	assert.Equal(t, StatusInvalid, ParseStatus("invalid"))
	assert.Equal(t, StatusUnresolved, ParseStatus("nan"))
	assert.Equal(t, StatusUnresolved, ParseStatus(""))
}

func TestRecordsAppendsStatusColumns(t *testing.T) {
	t.Parallel()

	tbl := &Table{
		Header:    []string{"name", "url"},
		URLColumn: 1,
		Rows: []Row{
			{Fields: []string{"a", "a.com"}, Status: StatusValid, Detail: "ok"},
			{Fields: []string{"b"}},
		},
	}
	assert.Equal(t, [][]string{
		{"name", "url", StatusColumn, DetailColumn},
		{"a", "a.com", "valid", "ok"},
		{"b", "", "", ""},
	}, tbl.Records())
}

func TestLoadCSVAndSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "input.csv")
	content := "\ufeffCollege,URL\nAlpha,alpha.edu\nBeta,\"https://beta.edu\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	tbl, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"College", "URL"}, tbl.Header)
	assert.Equal(t, 1, tbl.URLColumn)
	assert.Equal(t, "https://beta.edu", tbl.URL(1))

	require.NoError(t, tbl.Set(0, StatusInvalid, "empty url"))
	data, err := EncodeCSV(tbl.Records())
	require.NoError(t, err)

	records, err := ReadCSV(bytes.NewReader(data), ',')
	require.NoError(t, err)
	snap, err := FromSnapshot(records, "URL")
	require.NoError(t, err)
	assert.Equal(t, tbl.Header, snap.Header)
	assert.Equal(t, 1, snap.URLColumn)
	assert.Equal(t, StatusInvalid, snap.Rows[0].Status)
	assert.Equal(t, "empty url", snap.Rows[0].Detail)
	assert.Equal(t, StatusUnresolved, snap.Rows[1].Status)
}

func TestSnapshotKeepsInputColumnsNamedLikeStatus(t *testing.T) {
	t.Parallel()

	tbl, err := FromRecords([][]string{
		{"Name", "URL", StatusColumn, DetailColumn},
		{"Alpha", "alpha.edu", "active", "note"},
		{"Beta", "beta.edu", "valid", ""},
	})
	require.NoError(t, err)
	require.NoError(t, tbl.Set(0, StatusValid, "render:ok"))

	snap, err := FromSnapshot(tbl.Records(), "URL")
	require.NoError(t, err)
	assert.Equal(t, tbl.Header, snap.Header)
	assert.Equal(t, 1, snap.URLColumn)
	assert.Equal(t, []string{"Alpha", "alpha.edu", "active", "note"}, snap.Rows[0].Fields)
	assert.Equal(t, StatusValid, snap.Rows[0].Status)
	assert.Equal(t, "render:ok", snap.Rows[0].Detail)
	assert.Equal(t, []string{"Beta", "beta.edu", "valid", ""}, snap.Rows[1].Fields)
	assert.Equal(t, StatusUnresolved, snap.Rows[1].Status, "input cells are never read as verdicts")
}

func TestLoadXLSX(t *testing.T) {
	t.Parallel()

	data, err := EncodeXLSX([][]string{
		{"Code", "Website"},
		{"1", "https://one.example"},
		{"", ""},
		{"2", "two.example"},
	})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "input.xlsx")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	tbl, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.URLColumn)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "two.example", tbl.URL(1))
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err := Load(path)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoadFailsWithoutURLColumn(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte("name,code\na,1\n"), 0o600))
	_, err := Load(path)
	require.ErrorIs(t, err, ErrColumnNotFound)
}

func newTable(urls []string) *Table {
	t := &Table{Header: []string{"url"}, URLColumn: 0}
	for _, u := range urls {
		t.Rows = append(t.Rows, Row{Fields: []string{u}})
	}
	return t
}
