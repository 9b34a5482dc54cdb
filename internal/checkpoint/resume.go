package checkpoint

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/table"
)

// IDGenerator mints run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// ResumeInput describes the run being started.
type ResumeInput struct {
	Original    *table.Table
	InputPath   string
	InputSHA256 string
	// TrustPositional allows same-length snapshots to be adopted by index, but
	// only when the snapshot was produced from an input with the same digest.
	TrustPositional bool
	// ForceRestart discards every previous artifact first.
	ForceRestart bool
	// ValidRunID reports whether a persisted run ID may be reused.
	ValidRunID func(string) bool
}

// ResumeState is the working table and meta record a run starts from.
type ResumeState struct {
	Table    *table.Table
	Meta     *Meta
	Strategy table.Strategy
}

// Resume reconstructs the starting position from the original table and any
// previous artifacts.
func (m *Manager) Resume(ctx context.Context, in ResumeInput, ids IDGenerator) (ResumeState, error) {
	if in.Original == nil {
		return ResumeState{}, fmt.Errorf("original table is required")
	}
	if in.ForceRestart {
		if err := m.Reset(ctx); err != nil {
			return ResumeState{}, fmt.Errorf("force restart: %w", err)
		}
		m.logger.Info("discarded previous output")
	}

	prev, prevMeta := m.Load(ctx, in.Original.URLColumnName())
	sameInput := prevMeta != nil && prevMeta.InputSHA256 != "" && prevMeta.InputSHA256 == in.InputSHA256

	working, strategy := table.Reconcile(in.Original, prev, table.ReconcileOptions{
		TrustPositional: in.TrustPositional && sameInput,
	})

	meta := &Meta{InputPath: in.InputPath, InputSHA256: in.InputSHA256}
	if prevMeta != nil {
		meta.Extra = prevMeta.Extra
		if sameInput && strategy != table.StrategyFresh && strategy != table.StrategyIgnored {
			meta.LastProcessedIndex = prevMeta.LastProcessedIndex
			if in.ValidRunID == nil || in.ValidRunID(prevMeta.RunID) {
				meta.RunID = prevMeta.RunID
			}
		}
	}
	if meta.RunID == "" {
		id, err := ids.NewID()
		if err != nil {
			return ResumeState{}, fmt.Errorf("run id: %w", err)
		}
		meta.RunID = id
	}

	summary := working.Summary()
	fields := []zap.Field{
		zap.String("run_id", meta.RunID),
		zap.String("strategy", string(strategy)),
		zap.Int("rows", summary.Total),
		zap.Int("resolved", summary.Resolved()),
		zap.Bool("same_input", sameInput),
	}
	if strategy == table.StrategyIgnored {
		m.logger.Warn("previous output lacks the url column; starting fresh", fields...)
	} else {
		m.logger.Info("working table ready", fields...)
	}
	return ResumeState{Table: working, Meta: meta, Strategy: strategy}, nil
}
