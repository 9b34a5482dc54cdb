// Package verifier decides whether a URL is live. A quick HTTP probe runs
// first and is recorded for auditing only; the verdict comes from loading the
// page in a real browser with a short readiness wait, escalated once to a
// longer wait while the per-URL ceiling allows.
package verifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/table"
)

// Prober issues the lightweight advisory request.
type Prober interface {
	Probe(ctx context.Context, url string) ProbeResult
}

// Renderer drives a browser. Navigate may return an error wrapping
// ErrNavigationTimeout, in which case the readiness waits still run.
type Renderer interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// WaitReady waits for a complete document with a body, sleeps settle, and
	// returns the rendered body length. settle counts against timeout.
	WaitReady(ctx context.Context, timeout, settle time.Duration) (int, error)
}

// Clock measures elapsed time against the per-URL ceiling.
type Clock interface {
	Now() time.Time
	Since(time.Time) time.Duration
}

// Config holds the render timing policy.
type Config struct {
	PageLoadTimeout time.Duration
	ShortWait       time.Duration
	LongWait        time.Duration
	MaxPerURL       time.Duration
	SettleDelay     time.Duration
	MinBodyLength   int
}

// Validate checks the timing policy is usable.
func (c Config) Validate() error {
	switch {
	case c.PageLoadTimeout <= 0:
		return fmt.Errorf("page load timeout must be positive")
	case c.ShortWait <= 0 || c.LongWait <= 0:
		return fmt.Errorf("readiness waits must be positive")
	case c.MaxPerURL <= 0:
		return fmt.Errorf("per-url ceiling must be positive")
	case c.SettleDelay < 0:
		return fmt.Errorf("settle delay must not be negative")
	case c.MinBodyLength < 0:
		return fmt.Errorf("minimum body length must not be negative")
	}
	return nil
}

// Verifier runs the two-stage check for one URL at a time.
type Verifier struct {
	prober   Prober
	renderer Renderer
	clock    Clock
	cfg      Config
	logger   *zap.Logger
}

// New builds a Verifier. prober may be nil to skip the advisory probe.
func New(prober Prober, renderer Renderer, clock Clock, cfg Config, logger *zap.Logger) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		prober:   prober,
		renderer: renderer,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.Named("verifier"),
	}, nil
}

// NormalizeURL trims raw and prepends http:// when no scheme is present.
// Empty and placeholder values ("nan", "none") report false.
func NormalizeURL(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "", "nan", "none":
		return "", false
	}
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		s = "http://" + s
	}
	return s, true
}

// Verify checks raw and never returns an error: every failure is encoded in
// the Outcome.
func (v *Verifier) Verify(ctx context.Context, raw string) Outcome {
	start := v.clock.Now()
	url, ok := NormalizeURL(raw)
	if !ok {
		return Outcome{
			Status:  table.StatusInvalid,
			Kind:    KindEmptyURL,
			Message: "empty url",
			minBody: v.cfg.MinBodyLength,
		}
	}

	out := Outcome{URL: url, minBody: v.cfg.MinBodyLength}
	if v.prober != nil {
		out.Probe = v.prober.Probe(ctx, url)
		out.ProbeRan = true
		v.logger.Debug("probe finished",
			zap.String("url", url),
			zap.Bool("completed", out.Probe.Completed),
			zap.Int("status_code", out.Probe.StatusCode),
			zap.Error(out.Probe.Err),
		)
	}

	v.render(ctx, url, &out)
	out.Elapsed = v.clock.Since(start)
	return out
}

func (v *Verifier) render(ctx context.Context, url string, out *Outcome) {
	if v.renderer == nil {
		v.fail(out, KindUnexpected, "renderer not configured")
		return
	}
	renderStart := v.clock.Now()
	remaining := func() time.Duration {
		return v.cfg.MaxPerURL - v.clock.Since(renderStart)
	}

	navErr := v.renderer.Navigate(ctx, url, minDuration(v.cfg.PageLoadTimeout, v.cfg.MaxPerURL))
	if navErr != nil {
		kind := classify(navErr)
		out.Attempts = append(out.Attempts, Attempt{
			Stage:   StageNavigate,
			Kind:    kind,
			Message: navErr.Error(),
			Elapsed: v.clock.Since(renderStart),
		})
		if kind != KindNavigationTimeout {
			v.fail(out, kind, fmt.Sprintf("%s:%s", kind, navErr.Error()))
			return
		}
	}

	short := v.wait(ctx, StageShortWait, minDuration(v.cfg.ShortWait, remaining()), renderStart)
	out.Attempts = append(out.Attempts, short)
	if short.Ready() {
		v.succeed(out, short)
		return
	}

	left := remaining()
	if left <= 0 {
		v.fail(out, short.Kind, "short_wait_failed_and_no_time_for_long_wait; detail="+short.describe(v.cfg.MinBodyLength))
		return
	}

	long := v.wait(ctx, StageLongWait, minDuration(v.cfg.LongWait, left), renderStart)
	out.Attempts = append(out.Attempts, long)
	if long.Ready() {
		v.succeed(out, long)
		return
	}
	v.fail(out, long.Kind, fmt.Sprintf(
		"both_waits_failed: short_detail=%s; long_detail=%s",
		short.describe(v.cfg.MinBodyLength),
		long.describe(v.cfg.MinBodyLength),
	))
}

func (v *Verifier) wait(ctx context.Context, stage Stage, timeout time.Duration, renderStart time.Time) Attempt {
	if timeout <= 0 {
		return Attempt{
			Stage:   stage,
			Kind:    KindWaitTimeout,
			Message: "no time left",
			Elapsed: v.clock.Since(renderStart),
		}
	}
	bodyLen, err := v.renderer.WaitReady(ctx, timeout, minDuration(v.cfg.SettleDelay, timeout))
	a := Attempt{
		Stage:   stage,
		Kind:    classify(err),
		BodyLen: bodyLen,
		Elapsed: v.clock.Since(renderStart),
	}
	if err != nil {
		a.Message = err.Error()
	}
	return a
}

func (v *Verifier) succeed(out *Outcome, a Attempt) {
	out.Status = table.StatusValid
	out.Kind = KindOK
	out.SmallBody = a.BodyLen < v.cfg.MinBodyLength
	out.Message = string(a.Stage) + "_ok"
}

func (v *Verifier) fail(out *Outcome, kind Kind, msg string) {
	out.Status = table.StatusInvalid
	out.Kind = kind
	out.Message = msg
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
