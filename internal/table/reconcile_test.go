package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileWithoutPrevious(t *testing.T) {
	t.Parallel()

	original := newTable([]string{"a.com", "b.com"})
	got, strategy := Reconcile(original, nil, ReconcileOptions{TrustPositional: true})
	assert.Equal(t, StrategyFresh, strategy)
	require.Equal(t, 2, got.Len())
	for _, row := range got.Rows {
		assert.Equal(t, StatusUnresolved, row.Status)
	}

	got.Rows[0].Fields[0] = "mutated"
	assert.Equal(t, "a.com", original.URL(0), "working table must not alias the original")
}

func TestReconcileMergesByURLWhenCountsDiffer(t *testing.T) {
	t.Parallel()

	original := newTable([]string{"A", "B", "C"})
	previous := &Table{
		Header:    []string{"url"},
		URLColumn: 0,
		Rows: []Row{
			{Fields: []string{"A"}, Status: StatusValid, Detail: "a-ok"},
			{Fields: []string{"C"}, Status: StatusValid, Detail: "c-ok"},
		},
	}

	got, strategy := Reconcile(original, previous, ReconcileOptions{TrustPositional: true})
	assert.Equal(t, StrategyMergeByURL, strategy)
	require.Equal(t, 3, got.Len())
	assert.Equal(t, StatusValid, got.Rows[0].Status)
	assert.Equal(t, "a-ok", got.Rows[0].Detail)
	assert.Equal(t, StatusUnresolved, got.Rows[1].Status)
	assert.Equal(t, StatusValid, got.Rows[2].Status)
	assert.Equal(t, "c-ok", got.Rows[2].Detail)
}

func TestReconcileDropsPreviousOnlyRows(t *testing.T) {
	t.Parallel()

	original := newTable([]string{"A"})
	previous := &Table{
		Header:    []string{"url"},
		URLColumn: 0,
		Rows: []Row{
			{Fields: []string{"Z"}, Status: StatusInvalid},
			{Fields: []string{"A"}, Status: StatusValid},
			{Fields: []string{"A"}, Status: StatusInvalid},
		},
	}

	got, strategy := Reconcile(original, previous, ReconcileOptions{TrustPositional: true})
	assert.Equal(t, StrategyMergeByURL, strategy)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, StatusValid, got.Rows[0].Status, "first matching previous row wins")
}

func TestReconcileDuplicateURLPrefersResolvedRow(t *testing.T) {
	t.Parallel()

	original := newTable([]string{"A", "B"})
	previous := &Table{
		Header:    []string{"url"},
		URLColumn: 0,
		Rows: []Row{
			{Fields: []string{"A"}},
			{Fields: []string{"B"}},
			{Fields: []string{"A"}, Status: StatusInvalid, Detail: "both_waits_failed"},
			{Fields: []string{"A"}, Status: StatusValid, Detail: "render:ok"},
		},
	}

	got, strategy := Reconcile(original, previous, ReconcileOptions{TrustPositional: true})
	assert.Equal(t, StrategyMergeByURL, strategy)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, StatusInvalid, got.Rows[0].Status, "first resolved duplicate wins over an earlier unresolved one")
	assert.Equal(t, "both_waits_failed", got.Rows[0].Detail)
	assert.Equal(t, StatusUnresolved, got.Rows[1].Status)
}

func TestReconcilePositionalWhenCountsMatch(t *testing.T) {
	t.Parallel()

	original := newTable([]string{"A", "B"})
	previous := &Table{
		Header:    []string{"url"},
		URLColumn: 0,
		Rows: []Row{
			{Fields: []string{"X"}, Status: StatusValid, Detail: "x"},
			{Fields: []string{"Y"}},
		},
	}

	got, strategy := Reconcile(original, previous, ReconcileOptions{TrustPositional: true})
	assert.Equal(t, StrategyPositional, strategy)
	assert.Equal(t, StatusValid, got.Rows[0].Status)
	assert.Equal(t, "A", got.URL(0), "original field values are kept")
	assert.Equal(t, StatusUnresolved, got.Rows[1].Status)
}

func TestReconcileDistrustsPositionWhenAsked(t *testing.T) {
	t.Parallel()

	original := newTable([]string{"A", "B"})
	previous := &Table{
		Header:    []string{"url"},
		URLColumn: 0,
		Rows: []Row{
			{Fields: []string{"X"}, Status: StatusValid},
			{Fields: []string{"A"}, Status: StatusInvalid},
		},
	}

	got, strategy := Reconcile(original, previous, ReconcileOptions{TrustPositional: false})
	assert.Equal(t, StrategyMergeByURL, strategy)
	assert.Equal(t, StatusInvalid, got.Rows[0].Status)
	assert.Equal(t, StatusUnresolved, got.Rows[1].Status)
}

func TestReconcileIgnoresPreviousWithoutURLColumn(t *testing.T) {
	t.Parallel()

	original := newTable([]string{"A"})
	previous := &Table{
		Header:    []string{"something_else"},
		URLColumn: -1,
		Rows:      []Row{{Fields: []string{"A"}, Status: StatusValid}},
	}

	got, strategy := Reconcile(original, previous, ReconcileOptions{TrustPositional: true})
	assert.Equal(t, StrategyIgnored, strategy)
	assert.Equal(t, StatusUnresolved, got.Rows[0].Status)
}
