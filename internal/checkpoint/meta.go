package checkpoint

import (
	"encoding/json"
	"fmt"
	"time"
)

// Meta is the small progress record written next to the snapshot. Unknown
// keys found on load are preserved on the next write.
type Meta struct {
	// LastProcessedIndex is advisory; the snapshot's statuses are authoritative.
	LastProcessedIndex *int
	RunID              string
	InputPath          string
	InputSHA256        string
	RowCount           int
	Resolved           int
	UpdatedAt          time.Time
	Extra              map[string]json.RawMessage
}

type metaFields struct {
	LastProcessedIndex *int      `json:"last_processed_index"`
	RunID              string    `json:"run_id,omitempty"`
	InputPath          string    `json:"input_path,omitempty"`
	InputSHA256        string    `json:"input_sha256,omitempty"`
	RowCount           int       `json:"row_count"`
	Resolved           int       `json:"resolved"`
	UpdatedAt          time.Time `json:"updated_at"`
}

var metaKeys = []string{
	"last_processed_index",
	"run_id",
	"input_path",
	"input_sha256",
	"row_count",
	"resolved",
	"updated_at",
}

// MarkProcessed advances LastProcessedIndex to i when i is further along.
func (m *Meta) MarkProcessed(i int) {
	if m.LastProcessedIndex != nil && *m.LastProcessedIndex >= i {
		return
	}
	m.LastProcessedIndex = &i
}

// MarshalJSON merges the known fields over any preserved extra keys.
func (m Meta) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(metaFields{
		LastProcessedIndex: m.LastProcessedIndex,
		RunID:              m.RunID,
		InputPath:          m.InputPath,
		InputSHA256:        m.InputSHA256,
		RowCount:           m.RowCount,
		Resolved:           m.Resolved,
		UpdatedAt:          m.UpdatedAt,
	})
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return known, nil
	}
	merged := make(map[string]json.RawMessage, len(m.Extra)+len(metaKeys))
	for k, v := range m.Extra {
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

// UnmarshalJSON reads the known fields and keeps the rest in Extra.
func (m *Meta) UnmarshalJSON(data []byte) error {
	var fields metaFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode checkpoint meta: %w", err)
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return fmt.Errorf("decode checkpoint meta: %w", err)
	}
	for _, k := range metaKeys {
		delete(all, k)
	}
	*m = Meta{
		LastProcessedIndex: fields.LastProcessedIndex,
		RunID:              fields.RunID,
		InputPath:          fields.InputPath,
		InputSHA256:        fields.InputSHA256,
		RowCount:           fields.RowCount,
		Resolved:           fields.Resolved,
		UpdatedAt:          fields.UpdatedAt,
	}
	if len(all) > 0 {
		m.Extra = all
	}
	return nil
}
