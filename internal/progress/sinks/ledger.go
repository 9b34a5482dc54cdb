package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/progress"
	"github.com/JakeFAU/linkcheck/internal/storage/postgres"
	"github.com/JakeFAU/linkcheck/internal/table"
)

// RunRecorder persists run lifecycle rows. postgres.ResultStore satisfies it.
type RunRecorder interface {
	StartRun(ctx context.Context, runID, inputPath, inputSHA string) error
	FinishRun(ctx context.Context, runID string, status postgres.RunStatus, summary table.Summary, errMsg *string) error
}

// LedgerSink records run starts and endings in a RunRecorder. Row events are
// ignored; row verdicts reach the database through the checkpoint mirrors.
type LedgerSink struct {
	repo   RunRecorder
	logger *zap.Logger
}

// NewLedgerSink constructs a LedgerSink for repo.
func NewLedgerSink(repo RunRecorder, logger *zap.Logger) *LedgerSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerSink{repo: repo, logger: logger}
}

// Consume forwards run lifecycle events and returns the first repository error.
func (s *LedgerSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		switch {
		case evt.Stage == progress.StageRunStart:
			if err := s.repo.StartRun(ctx, evt.RunID, evt.InputPath, evt.InputSHA256); err != nil {
				return fmt.Errorf("record run start: %w", err)
			}
		case evt.Stage.Terminal():
			var note *string
			if evt.Note != "" {
				note = &evt.Note
			}
			if err := s.repo.FinishRun(ctx, evt.RunID, ledgerStatus(evt.Stage), evt.Summary, note); err != nil {
				return fmt.Errorf("record run finish: %w", err)
			}
		}
	}
	return nil
}

func ledgerStatus(stage progress.Stage) postgres.RunStatus {
	switch stage {
	case progress.StageRunDone:
		return postgres.RunSuccess
	case progress.StageRunCancelled:
		return postgres.RunCancelled
	default:
		return postgres.RunError
	}
}

// Close implements the Sink interface; it performs no action.
func (s *LedgerSink) Close(context.Context) error {
	return nil
}
