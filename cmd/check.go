package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/checkpoint"
	"github.com/JakeFAU/linkcheck/internal/clock/system"
	"github.com/JakeFAU/linkcheck/internal/config"
	collyfetcher "github.com/JakeFAU/linkcheck/internal/fetcher/colly"
	"github.com/JakeFAU/linkcheck/internal/fetcher/headless"
	"github.com/JakeFAU/linkcheck/internal/hash/sha256"
	"github.com/JakeFAU/linkcheck/internal/id/uuid"
	"github.com/JakeFAU/linkcheck/internal/runner"
	"github.com/JakeFAU/linkcheck/internal/table"
	"github.com/JakeFAU/linkcheck/internal/verifier"
)

// browser is a verifier.Renderer that owns a process.
type browser interface {
	verifier.Renderer
	Close() error
}

// newBrowser launches the renderer. Tests replace it to avoid Chrome.
var newBrowser = func(cfg config.Config, logger *zap.Logger) (browser, error) {
	return headless.New(headless.Config{
		UserAgent: cfg.Probe.UserAgent,
		Headless:  cfg.Render.Headless,
		ExecPath:  cfg.Render.ChromePath,
		NoSandbox: cfg.Render.NoSandbox,
	}, logger)
}

// newCheckCmd creates and configures the 'check' subcommand.
func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Checks every URL in the input table",
		Long: `Loads the input table, resumes from any previous output, and checks each
unresolved URL in order. Results are written next to the output CSV after
every row, plus a spreadsheet copy at the end of the run.`,
		Args: cobra.NoArgs,
		RunE: runCheckCommand,
	}

	f := cmd.Flags()
	f.StringP("input", "i", "", "input CSV or XLSX file")
	f.StringP("output", "o", "", "output CSV path (spreadsheet and checkpoint go next to it)")
	f.String("xlsx", "", "output spreadsheet path (defaults next to --output)")
	f.Bool("no-xlsx", false, "skip writing the spreadsheet copy")
	f.Int("checkpoint-every", 1, "persist after this many checked rows")
	f.Bool("force-restart", false, "discard previous output and start over")
	f.Bool("no-probe", false, "skip the advisory HTTP probe")
	f.Bool("headful", false, "show the browser window")
	f.String("chrome-path", "", "Chrome or Chromium binary to launch")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("metrics-addr", "", "serve /metrics and /v1/status on this address")
	return cmd
}

func runCheckCommand(cmd *cobra.Command, _ []string) error {
	sess, err := sessionFrom(cmd.Context())
	if err != nil {
		return err
	}
	defer sess.close(cmd.Context())

	res, err := runCheck(cmd.Context(), sess)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(),
		"%s: checked %d, valid %d, invalid %d, unresolved %d of %d rows in %s\n",
		res.Stage, res.Checked, res.Summary.Valid, res.Summary.Invalid,
		res.Summary.Unresolved, res.Summary.Total, res.Elapsed.Round(time.Millisecond),
	)
	return nil
}

func runCheck(ctx context.Context, sess *session) (runner.Result, error) {
	cfg, logger := sess.cfg, sess.logger

	original, err := table.Load(cfg.Input.Path)
	if err != nil {
		return runner.Result{}, fmt.Errorf("load input: %w", err)
	}
	digest, err := sha256.New().HashFile(cfg.Input.Path)
	if err != nil {
		return runner.Result{}, fmt.Errorf("hash input: %w", err)
	}

	state, err := sess.app.Checkpoints().Resume(ctx, checkpoint.ResumeInput{
		Original:        original,
		InputPath:       cfg.Input.Path,
		InputSHA256:     digest,
		TrustPositional: cfg.Checkpoint.TrustPositional,
		ForceRestart:    cfg.Checkpoint.ForceRestart,
		ValidRunID:      uuid.Valid,
	}, uuid.New())
	if err != nil {
		return runner.Result{}, fmt.Errorf("resume: %w", err)
	}
	summary := state.Table.Summary()
	logger.Info("input loaded",
		zap.String("input", cfg.Input.Path),
		zap.String("url_column", state.Table.URLColumnName()),
		zap.String("run_id", state.Meta.RunID),
		zap.String("strategy", string(state.Strategy)),
		zap.Int("rows", summary.Total),
		zap.Int("resolved", summary.Resolved()),
	)

	var prober verifier.Prober
	if cfg.Probe.Enabled {
		prober = collyfetcher.New(collyfetcher.Config{UserAgent: cfg.Probe.UserAgent, Timeout: cfg.Probe.Timeout})
	}
	// A complete table never needs the browser; the runner only writes its
	// final snapshot.
	var renderer verifier.Renderer
	if _, pending := state.Table.FirstUnresolved(); pending {
		b, err := newBrowser(cfg, logger)
		if err != nil {
			flushFinal(ctx, sess, state)
			return runner.Result{Summary: summary}, fmt.Errorf("launch browser: %w", err)
		}
		defer func() {
			if cerr := b.Close(); cerr != nil {
				logger.Warn("failed to close browser", zap.Error(cerr))
			}
		}()
		renderer = b
	}

	v, err := verifier.New(prober, renderer, system.Monotonic{}, verifier.Config{
		PageLoadTimeout: cfg.Render.PageLoadTimeout,
		ShortWait:       cfg.Render.ShortWait,
		LongWait:        cfg.Render.LongWait,
		MaxPerURL:       cfg.Render.MaxPerURL,
		SettleDelay:     cfg.Render.SettleDelay,
		MinBodyLength:   cfg.Render.MinBodyLength,
	}, logger)
	if err != nil {
		return runner.Result{}, fmt.Errorf("init verifier: %w", err)
	}

	r, err := runner.New(v, sess.app.Checkpoints(), runner.Config{Cadence: cfg.Checkpoint.Every},
		runner.WithEmitter(sess.app.Emitter()),
		runner.WithLogger(logger),
		runner.WithClock(system.Monotonic{}),
	)
	if err != nil {
		return runner.Result{}, fmt.Errorf("init runner: %w", err)
	}

	sess.app.SetReady(true)
	res, err := r.Run(ctx, state.Table, state.Meta)
	if err != nil && !errors.Is(err, context.Canceled) {
		return res, fmt.Errorf("run: %w", err)
	}
	return res, nil
}

// flushFinal persists the reconciled table when the run cannot start.
func flushFinal(ctx context.Context, sess *session, state checkpoint.ResumeState) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := sess.app.Checkpoints().Flush(ctx, state.Table, state.Meta); err != nil {
		sess.logger.Warn("final flush failed", zap.Error(err))
	}
}
