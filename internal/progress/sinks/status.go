package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/linkcheck/internal/progress"
	"github.com/JakeFAU/linkcheck/internal/table"
)

// Snapshot is the latest known state of the current run.
type Snapshot struct {
	RunID     string        `json:"run_id,omitempty"`
	Stage     string        `json:"stage,omitempty"`
	Summary   table.Summary `json:"summary"`
	Checked   int           `json:"checked"`
	LastIndex *int          `json:"last_index"`
	LastURL   string        `json:"last_url,omitempty"`
	Note      string        `json:"note,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// StatusSink keeps a Snapshot for the status endpoint.
type StatusSink struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStatusSink returns an empty StatusSink.
func NewStatusSink() *StatusSink {
	return &StatusSink{}
}

// Consume folds batch into the snapshot.
func (s *StatusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if evt.RunID != s.snap.RunID {
			s.snap = Snapshot{RunID: evt.RunID}
		}
		s.snap.Stage = string(evt.Stage)
		s.snap.UpdatedAt = evt.TS
		switch evt.Stage {
		case progress.StageRowDone:
			idx := evt.Index
			s.snap.Checked++
			s.snap.LastIndex = &idx
			s.snap.LastURL = evt.URL
			s.snap.Summary.Unresolved--
			if evt.Status == table.StatusValid {
				s.snap.Summary.Valid++
			} else {
				s.snap.Summary.Invalid++
			}
			if s.snap.Summary.Unresolved < 0 {
				s.snap.Summary.Unresolved = 0
			}
		default:
			if evt.Summary.Total > 0 {
				s.snap.Summary = evt.Summary
			}
			s.snap.Note = evt.Note
		}
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (s *StatusSink) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	if s.snap.LastIndex != nil {
		idx := *s.snap.LastIndex
		out.LastIndex = &idx
	}
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *StatusSink) Close(context.Context) error {
	return nil
}
