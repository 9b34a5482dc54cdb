package table

import "strings"

// Strategy names how a working table was derived at startup.
type Strategy string

// Reconciliation strategies.
const (
	// StrategyFresh means no usable previous output existed.
	StrategyFresh Strategy = "fresh"
	// StrategyPositional adopts previous statuses index by index.
	StrategyPositional Strategy = "positional"
	// StrategyMergeByURL carries statuses over by URL-field equality.
	StrategyMergeByURL Strategy = "merge_by_url"
	// StrategyIgnored means a previous output existed but lacked the URL column.
	StrategyIgnored Strategy = "ignored"
)

// ReconcileOptions tunes Reconcile.
type ReconcileOptions struct {
	// TrustPositional adopts a same-length previous output positionally.
	// When false, equal lengths are merged by URL as well.
	TrustPositional bool
}

// Reconcile derives the authoritative working table from the original input
// and an optional previous output. The result always has exactly the
// original rows, in original order; previous-only rows are dropped.
func Reconcile(original, previous *Table, opts ReconcileOptions) (*Table, Strategy) {
	working := freshCopy(original)
	if previous == nil {
		return working, StrategyFresh
	}
	prevURL := columnIndex(previous.Header, original.URLColumnName())
	if prevURL < 0 {
		return working, StrategyIgnored
	}

	if opts.TrustPositional && previous.Len() == original.Len() {
		for i := range working.Rows {
			working.Rows[i].Status = previous.Rows[i].Status
			working.Rows[i].Detail = previous.Rows[i].Detail
		}
		return working, StrategyPositional
	}

	// A duplicated URL takes the first resolved previous row, or the first
	// row when none of them is resolved.
	byURL := make(map[string]Row, previous.Len())
	for _, row := range previous.Rows {
		key := urlKey(cell(row.Fields, prevURL))
		if seen, ok := byURL[key]; ok && (seen.Status.Resolved() || !row.Status.Resolved()) {
			continue
		}
		byURL[key] = row
	}
	for i := range working.Rows {
		prev, ok := byURL[urlKey(working.URL(i))]
		if !ok {
			continue
		}
		working.Rows[i].Status = prev.Status
		working.Rows[i].Detail = prev.Detail
	}
	return working, StrategyMergeByURL
}

func freshCopy(original *Table) *Table {
	t := &Table{
		Header:    append([]string(nil), original.Header...),
		URLColumn: original.URLColumn,
		Rows:      make([]Row, len(original.Rows)),
	}
	for i, row := range original.Rows {
		t.Rows[i] = Row{Fields: append([]string(nil), row.Fields...)}
	}
	return t
}

func urlKey(raw string) string {
	return strings.TrimSpace(raw)
}
