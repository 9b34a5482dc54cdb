package verifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/linkcheck/internal/table"
)

// Kind tags how a verification (or one of its stages) ended.
type Kind string

// Outcome kinds.
const (
	KindOK                Kind = "ok"
	KindEmptyURL          Kind = "empty_url"
	KindNavigationTimeout Kind = "navigation_timeout"
	KindInvalidURL        Kind = "invalid_url"
	KindTransport         Kind = "transport_error"
	KindWaitTimeout       Kind = "wait_timeout"
	KindUnexpected        Kind = "unexpected_error"
)

// Errors renderers wrap so the verifier can classify failures.
var (
	ErrNavigationTimeout = errors.New("navigation timed out")
	ErrInvalidURL        = errors.New("invalid url")
	ErrTransport         = errors.New("renderer transport error")
	ErrWaitTimeout       = errors.New("readiness wait timed out")
)

func classify(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, ErrNavigationTimeout):
		return KindNavigationTimeout
	case errors.Is(err, ErrInvalidURL):
		return KindInvalidURL
	case errors.Is(err, ErrWaitTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindWaitTimeout
	case errors.Is(err, ErrTransport):
		return KindTransport
	default:
		return KindUnexpected
	}
}

// Stage names a step of the render protocol.
type Stage string

// Render stages.
const (
	StageNavigate  Stage = "navigate"
	StageShortWait Stage = "short_wait"
	StageLongWait  Stage = "long_wait"
)

// Attempt records one render stage.
type Attempt struct {
	Stage   Stage
	Kind    Kind
	Message string
	BodyLen int
	// Elapsed is measured from the start of the render stage.
	Elapsed time.Duration
}

// Ready reports whether the stage observed a loaded document.
func (a Attempt) Ready() bool {
	return a.Kind == KindOK
}

func (a Attempt) describe(minBody int) string {
	if a.Ready() {
		readiness := "ready"
		if a.BodyLen < minBody {
			readiness = "ready_but_small_body"
		}
		return fmt.Sprintf("%s; body_len=%d", readiness, a.BodyLen)
	}
	return fmt.Sprintf("%s:%s", a.Kind, a.Message)
}

// ProbeResult is the advisory outcome of the lightweight GET.
type ProbeResult struct {
	Completed  bool
	StatusCode int
	Err        error
	Duration   time.Duration
}

// OK reports whether the probe completed with a non-error status.
func (p ProbeResult) OK() bool {
	return p.Completed && p.StatusCode > 0 && p.StatusCode < 400
}

// Outcome is the structured result of verifying one URL.
type Outcome struct {
	// URL is the normalized URL that was checked; empty for empty input.
	URL      string
	Status   table.Status
	Kind     Kind
	Message  string
	Elapsed  time.Duration
	Attempts []Attempt
	Probe    ProbeResult
	ProbeRan bool
	// SmallBody marks a ready page whose content was below the threshold.
	SmallBody bool

	minBody int
}

// Valid reports whether the URL was confirmed live.
func (o Outcome) Valid() bool {
	return o.Status == table.StatusValid
}

// Detail serializes the outcome for the status_detail column.
func (o Outcome) Detail() string {
	if o.Kind == KindEmptyURL {
		return "empty url"
	}
	var parts []string
	switch {
	case o.Valid() && len(o.Attempts) > 0:
		last := o.Attempts[len(o.Attempts)-1]
		parts = append(parts, fmt.Sprintf("render:%s_ok:%s", last.Stage, last.describe(o.minBody)))
	case o.Valid():
		parts = append(parts, "render:ok")
	default:
		parts = append(parts, "render_error:"+o.Message)
	}
	for _, a := range o.Attempts {
		if a.Stage == StageNavigate && a.Kind == KindNavigationTimeout {
			parts = append(parts, "navigate="+string(a.Kind))
		}
	}
	parts = append(parts,
		fmt.Sprintf("elapsed=%.1fs", o.Elapsed.Seconds()),
		fmt.Sprintf("requests_ok:%t", o.Probe.OK()),
	)
	return strings.Join(parts, "; ")
}

// ProbeClass buckets the probe result for metrics, e.g. "2xx" or "error".
func (o Outcome) ProbeClass() string {
	switch {
	case !o.ProbeRan:
		return "skipped"
	case !o.Probe.Completed:
		return "error"
	default:
		return fmt.Sprintf("%dxx", o.Probe.StatusCode/100)
	}
}
