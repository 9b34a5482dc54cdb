package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/linkcheck/internal/table"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageRowDone      Stage = "ROW_DONE"
	StageCheckpoint   Stage = "CHECKPOINT"
	StageRunDone      Stage = "RUN_DONE"
	StageRunCancelled Stage = "RUN_CANCELLED"
	StageRunError     Stage = "RUN_ERROR"
)

// Terminal reports whether the stage ends a run.
func (s Stage) Terminal() bool {
	switch s {
	case StageRunDone, StageRunCancelled, StageRunError:
		return true
	}
	return false
}

// Event captures a single milestone of a run.
type Event struct {
	// RunID identifies the run; it survives resumes of the same input.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	Stage Stage

	// Row fields, set on ROW_DONE.
	Index      int
	URL        string
	Status     table.Status
	Kind       string
	ProbeClass string

	// Dur is the row check time for ROW_DONE and the wall time for terminal stages.
	Dur time.Duration
	// Summary is the table tally for run and checkpoint stages.
	Summary table.Summary

	// Input identification, set on RUN_START.
	InputPath   string
	InputSHA256 string

	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageCheckpoint, StageRunDone, StageRunCancelled, StageRunError:
	case StageRowDone:
		if e.Index < 0 {
			return errors.New("row done requires a non-negative index")
		}
		if !e.Status.Resolved() {
			return errors.New("row done requires a resolved status")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
