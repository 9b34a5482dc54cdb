package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/progress"
	"github.com/JakeFAU/linkcheck/internal/publisher"
)

// NotifySink announces finished runs through a publisher.
type NotifySink struct {
	pub    publisher.Publisher
	logger *zap.Logger
	inputs map[string]progress.Event
}

// NewNotifySink constructs a NotifySink for pub.
func NewNotifySink(pub publisher.Publisher, logger *zap.Logger) *NotifySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifySink{pub: pub, logger: logger, inputs: make(map[string]progress.Event)}
}

// Consume publishes one RunSummary per terminal event. The hub calls Consume
// from a single goroutine.
func (s *NotifySink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	for _, evt := range batch {
		switch {
		case evt.Stage == progress.StageRunStart:
			s.inputs[evt.RunID] = evt
		case evt.Stage.Terminal():
			start := s.inputs[evt.RunID]
			delete(s.inputs, evt.RunID)
			msg := publisher.RunSummary{
				RunID:       evt.RunID,
				Result:      runResult(evt.Stage),
				InputPath:   start.InputPath,
				InputSHA256: start.InputSHA256,
				Summary:     evt.Summary,
				Duration:    evt.Dur.Seconds(),
				Error:       evt.Note,
				FinishedAt:  evt.TS,
			}
			id, err := s.pub.Publish(ctx, publisher.EventRunFinished, msg)
			if err != nil {
				return fmt.Errorf("publish run summary: %w", err)
			}
			s.logger.Info("run summary published", zap.String("run_id", evt.RunID), zap.String("message_id", id))
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *NotifySink) Close(context.Context) error {
	return nil
}
