// Package runner drives the sequential check loop: one pass over the
// unresolved rows, persisting at a fixed cadence and always flushing once on
// the way out.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/checkpoint"
	"github.com/JakeFAU/linkcheck/internal/progress"
	"github.com/JakeFAU/linkcheck/internal/table"
	"github.com/JakeFAU/linkcheck/internal/verifier"
)

// Verifier checks one raw URL cell.
type Verifier interface {
	Verify(ctx context.Context, raw string) verifier.Outcome
}

// Checkpointer persists the table. checkpoint.Manager satisfies it.
type Checkpointer interface {
	Persist(ctx context.Context, t *table.Table, meta *checkpoint.Meta) error
	Flush(ctx context.Context, t *table.Table, meta *checkpoint.Meta) error
}

// Clock measures row and run durations.
type Clock interface {
	Now() time.Time
	Since(time.Time) time.Duration
}

// Config controls the loop.
//   - Cadence: persist after this many checked rows (default 1).
//   - FlushTimeout: bound on the final flush, which ignores cancellation (default 2m).
type Config struct {
	Cadence      int
	FlushTimeout time.Duration
}

const defaultFlushTimeout = 2 * time.Minute

// Result reports what a run did.
type Result struct {
	Summary table.Summary
	// Checked counts rows verified by this run, not rows adopted from a resume.
	Checked int
	Elapsed time.Duration
	Stage   progress.Stage
}

// Runner owns the loop. It is not safe for concurrent Runs.
type Runner struct {
	verifier Verifier
	cp       Checkpointer
	cfg      Config
	emitter  progress.Emitter
	clock    Clock
	logger   *zap.Logger
}

// Option customizes a Runner.
type Option func(*Runner)

// WithEmitter sends progress events to e.
func WithEmitter(e progress.Emitter) Option {
	return func(r *Runner) {
		if e != nil {
			r.emitter = e
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(r *Runner) {
		if c != nil {
			r.clock = c
		}
	}
}

type wallClock struct{}

func (wallClock) Now() time.Time                  { return time.Now() }
func (wallClock) Since(t time.Time) time.Duration { return time.Since(t) }

// New builds a Runner.
func New(v Verifier, cp Checkpointer, cfg Config, opts ...Option) (*Runner, error) {
	if v == nil {
		return nil, errors.New("verifier is required")
	}
	if cp == nil {
		return nil, errors.New("checkpointer is required")
	}
	if cfg.Cadence <= 0 {
		cfg.Cadence = 1
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = defaultFlushTimeout
	}
	r := &Runner{
		verifier: v,
		cp:       cp,
		cfg:      cfg,
		emitter:  progress.NopEmitter{},
		clock:    wallClock{},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("runner")
	return r, nil
}

// Run checks every unresolved row of t in order. The final flush runs on
// every exit path, including cancellation and panics. A cancelled run
// returns an error wrapping ctx.Err(); a row whose check was interrupted is
// left unresolved.
func (r *Runner) Run(ctx context.Context, t *table.Table, meta *checkpoint.Meta) (res Result, err error) {
	if t == nil || meta == nil {
		return Result{}, errors.New("table and meta are required")
	}
	start := r.clock.Now()
	r.emit(progress.Event{
		RunID:       meta.RunID,
		Stage:       progress.StageRunStart,
		Summary:     t.Summary(),
		InputPath:   meta.InputPath,
		InputSHA256: meta.InputSHA256,
	})

	defer func() {
		rec := recover()
		if rec != nil {
			err = fmt.Errorf("run panicked: %v", rec)
		}
		r.finish(ctx, t, meta, start, &res, err)
		if rec != nil {
			panic(rec)
		}
	}()

	first, ok := t.FirstUnresolved()
	if !ok {
		r.logger.Info("all rows already resolved", zap.Int("rows", t.Len()))
		return res, nil
	}
	r.logger.Info("run starting",
		zap.String("run_id", meta.RunID),
		zap.Int("first_unresolved", first),
		zap.Int("rows", t.Len()),
	)

	sinceSave := 0
	for i := first; i < t.Len(); i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("run interrupted before row %d: %w", i, ctxErr)
		}
		if t.Rows[i].Status.Resolved() {
			continue
		}
		if err := r.checkRow(ctx, t, meta, i); err != nil {
			return res, err
		}
		res.Checked++
		sinceSave++
		if sinceSave >= r.cfg.Cadence {
			sinceSave = 0
			r.persist(ctx, t, meta)
		}
	}
	return res, nil
}

func (r *Runner) checkRow(ctx context.Context, t *table.Table, meta *checkpoint.Meta, i int) error {
	rowStart := r.clock.Now()
	out := r.verifier.Verify(ctx, t.URL(i))
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("run interrupted during row %d: %w", i, ctxErr)
	}
	elapsed := r.clock.Since(rowStart)
	if err := t.Set(i, out.Status, out.Detail()); err != nil {
		return fmt.Errorf("record row %d: %w", i, err)
	}
	meta.MarkProcessed(i)

	url := out.URL
	if url == "" {
		url = t.URL(i)
	}
	r.logger.Info("row checked",
		zap.Int("index", i),
		zap.String("url", url),
		zap.String("status", string(out.Status)),
		zap.String("kind", string(out.Kind)),
		zap.Duration("elapsed", elapsed),
	)
	r.emit(progress.Event{
		RunID:      meta.RunID,
		Stage:      progress.StageRowDone,
		Index:      i,
		URL:        url,
		Status:     out.Status,
		Kind:       string(out.Kind),
		ProbeClass: out.ProbeClass(),
		Dur:        elapsed,
	})
	return nil
}

func (r *Runner) persist(ctx context.Context, t *table.Table, meta *checkpoint.Meta) {
	if err := r.cp.Persist(ctx, t, meta); err != nil {
		r.logger.Warn("checkpoint persist failed", zap.Error(err))
		return
	}
	r.emit(progress.Event{RunID: meta.RunID, Stage: progress.StageCheckpoint, Summary: t.Summary()})
}

func (r *Runner) finish(
	ctx context.Context,
	t *table.Table,
	meta *checkpoint.Meta,
	start time.Time,
	res *Result,
	runErr error,
) {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.FlushTimeout)
	defer cancel()
	if err := r.cp.Flush(flushCtx, t, meta); err != nil {
		r.logger.Warn("final flush failed", zap.Error(err))
	}

	res.Summary = t.Summary()
	res.Elapsed = r.clock.Since(start)
	res.Stage = terminalStage(runErr)

	evt := progress.Event{
		RunID:   meta.RunID,
		Stage:   res.Stage,
		Summary: res.Summary,
		Dur:     res.Elapsed,
	}
	if res.Stage == progress.StageRunError {
		evt.Note = runErr.Error()
	}
	r.emit(evt)

	fields := []zap.Field{
		zap.String("run_id", meta.RunID),
		zap.String("result", string(res.Stage)),
		zap.Int("checked", res.Checked),
		zap.Int("valid", res.Summary.Valid),
		zap.Int("invalid", res.Summary.Invalid),
		zap.Int("unresolved", res.Summary.Unresolved),
		zap.Duration("elapsed", res.Elapsed),
	}
	if runErr != nil {
		fields = append(fields, zap.Error(runErr))
	}
	r.logger.Info("run finished", fields...)
}

func terminalStage(err error) progress.Stage {
	switch {
	case err == nil:
		return progress.StageRunDone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return progress.StageRunCancelled
	default:
		return progress.StageRunError
	}
}

func (r *Runner) emit(evt progress.Event) {
	if evt.TS.IsZero() {
		evt.TS = time.Now().UTC()
	}
	r.emitter.Emit(evt)
}
