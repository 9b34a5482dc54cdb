package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/progress"
)

// LogSink writes run milestones as structured logs. Row events are logged at
// debug level since the check loop already logs each verdict.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Stage == progress.StageRowDone {
			fields = append(fields,
				zap.Int("index", evt.Index),
				zap.String("url", evt.URL),
				zap.String("status", string(evt.Status)),
				zap.String("kind", evt.Kind),
				zap.String("probe", evt.ProbeClass),
				zap.Duration("dur", evt.Dur),
			)
			s.logger.Debug("progress event", fields...)
			continue
		}
		fields = append(fields,
			zap.Int("total", evt.Summary.Total),
			zap.Int("valid", evt.Summary.Valid),
			zap.Int("invalid", evt.Summary.Invalid),
			zap.Int("unresolved", evt.Summary.Unresolved),
		)
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
