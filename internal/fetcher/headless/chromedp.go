// Package headless drives a single Chrome tab via chromedp to confirm that
// pages actually render.
package headless

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/verifier"
)

// ErrRendererClosed is returned by calls made after Close.
var ErrRendererClosed = errors.New("renderer closed")

const (
	defaultPollInterval = 250 * time.Millisecond

	readyStateJS = `document.readyState`
	bodyLenJS    = `document.body ? document.body.innerHTML.length : 0`
)

// Config controls the browser process.
type Config struct {
	UserAgent string
	Headless  bool
	// ExecPath points at a specific Chrome/Chromium binary; empty searches PATH.
	ExecPath  string
	NoSandbox bool
	// PollInterval is how often document.readyState is sampled.
	PollInterval time.Duration
}

// Renderer owns one browser and one tab, reused for every URL.
type Renderer struct {
	cfg             Config
	logger          *zap.Logger
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// New launches the browser and opens the tab. Callers must Close it.
func New(cfg Config, logger *zap.Logger) (*Renderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}

	named := logger.Named("renderer")
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx,
		chromedp.WithLogf(named.Sugar().Debugf),
		chromedp.WithErrorf(named.Sugar().Debugf),
	)
	if err := chromedp.Run(browserCtx, setupAction(cfg.UserAgent)); err != nil {
		browserCancel()
		allocatorCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	named.Info("browser started", zap.Bool("headless", cfg.Headless))

	return &Renderer{
		cfg:             cfg,
		logger:          named,
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
	}, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (r *Renderer) Close() error {
	if r == nil {
		return nil
	}
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		r.browserCancel()
		r.allocatorCancel()
		r.logger.Info("browser closed")
	})
	return nil
}

// Navigate loads url in the tab. A load that outlives timeout returns an
// error wrapping verifier.ErrNavigationTimeout; the page keeps loading.
func (r *Renderer) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	taskCtx, done, err := r.task(ctx, timeout)
	if err != nil {
		return err
	}
	defer done()

	runErr := chromedp.Run(taskCtx, chromedp.Navigate(url))
	return classifyNavigate(runErr, ctx, taskCtx)
}

// WaitReady waits for document.readyState to be complete and a body to
// exist, sleeps settle, then reports the rendered body length. The whole
// sequence is bounded by timeout.
func (r *Renderer) WaitReady(ctx context.Context, timeout, settle time.Duration) (int, error) {
	waitCtx, done, err := r.task(ctx, timeout)
	if err != nil {
		return 0, err
	}
	defer done()

	var bodyLen int
	runErr := chromedp.Run(waitCtx,
		r.pollReadyState(),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.Evaluate(bodyLenJS, &bodyLen),
	)
	if runErr != nil {
		return 0, classifyWait(runErr, ctx, waitCtx)
	}
	return bodyLen, nil
}

func (r *Renderer) pollReadyState() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(r.cfg.PollInterval)
		defer ticker.Stop()
		for {
			var state string
			if err := chromedp.Evaluate(readyStateJS, &state).Do(ctx); err != nil {
				return fmt.Errorf("read document state: %w", err)
			}
			if state == "complete" {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	})
}

// task derives a bounded context from the tab that is also cancelled when
// the caller's ctx is.
func (r *Renderer) task(ctx context.Context, timeout time.Duration) (context.Context, func(), error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, nil, ErrRendererClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	taskCtx, cancelTask := context.WithTimeout(r.browserCtx, timeout)
	stopForward := forwardCancel(ctx, cancelTask)
	return taskCtx, func() {
		stopForward()
		cancelTask()
	}, nil
}

func setupAction(userAgent string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if userAgent != "" {
			if err := emulation.SetUserAgentOverride(userAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func classifyNavigate(err error, parent, task context.Context) error {
	switch {
	case err == nil:
		return nil
	case parent.Err() != nil:
		return fmt.Errorf("navigate: %w", parent.Err())
	case task.Err() != nil || errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("navigate: %w", verifier.ErrNavigationTimeout)
	case isInvalidURL(err):
		return fmt.Errorf("navigate: %w: %v", verifier.ErrInvalidURL, err)
	default:
		return fmt.Errorf("navigate: %w: %v", verifier.ErrTransport, err)
	}
}

func classifyWait(err error, parent, task context.Context) error {
	switch {
	case parent.Err() != nil:
		return fmt.Errorf("wait: %w", parent.Err())
	case task.Err() != nil || errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("wait: %w", verifier.ErrWaitTimeout)
	default:
		return fmt.Errorf("wait: %w: %v", verifier.ErrTransport, err)
	}
}

func isInvalidURL(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "invalid url") || strings.Contains(msg, "err_invalid_url")
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
