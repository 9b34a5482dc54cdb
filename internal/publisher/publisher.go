// Package publisher defines the notification contract used to announce run
// results to downstream consumers.
package publisher

import (
	"context"
	"time"

	"github.com/JakeFAU/linkcheck/internal/table"
)

// Publisher delivers a JSON-serializable payload tagged with an event name and
// returns the broker's message id.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) (string, error)
}

// Event names.
const (
	EventRunFinished = "run.finished"
)

// RunSummary is the payload announced when a run ends.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	Result      string        `json:"result"`
	InputPath   string        `json:"input_path,omitempty"`
	InputSHA256 string        `json:"input_sha256,omitempty"`
	Summary     table.Summary `json:"summary"`
	Duration    float64       `json:"duration_seconds"`
	Error       string        `json:"error,omitempty"`
	FinishedAt  time.Time     `json:"finished_at"`
}
