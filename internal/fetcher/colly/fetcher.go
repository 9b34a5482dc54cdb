// Package collyfetcher implements the advisory HTTP probe using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/linkcheck/internal/verifier"
)

const (
	defaultTimeout = 8 * time.Second
	maxProbeBody   = 64 * 1024
)

// DefaultUserAgent mimics a desktop Chrome so simple bot filters let the probe through.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/115.0 Safari/537.36"

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Prober issues one GET per URL, following redirects.
type Prober struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Prober.
func New(cfg Config) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(maxProbeBody),
	)
	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Prober{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Probe fetches url once. Any HTTP status counts as completed; only transport
// failures leave Completed false.
func (p *Prober) Probe(ctx context.Context, url string) verifier.ProbeResult {
	var (
		result   verifier.ProbeResult
		fetchErr error
	)
	start := time.Now()
	collector := p.buildCollector(ctx)
	p.configureCollectorHooks(collector, &result, &fetchErr)

	// On cancellation the visit goroutine may still own result, so it is
	// only read after a clean return.
	if err := p.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return verifier.ProbeResult{Err: err, Duration: time.Since(start)}
	}
	result.Duration = time.Since(start)
	return result
}

func (p *Prober) buildCollector(ctx context.Context) *colly.Collector {
	collector := p.baseCollector.Clone()
	collector.UserAgent = p.cfg.UserAgent
	collector.Context = ctx
	collector.SetRequestTimeout(p.cfg.Timeout)
	collector.WithTransport(p.transport)
	return collector
}

func (p *Prober) configureCollectorHooks(hooks collectorHooks, result *verifier.ProbeResult, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		result.Completed = true
		result.StatusCode = r.StatusCode
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			result.Completed = true
			result.StatusCode = r.StatusCode
			return
		}
		*fetchErr = err
	})
}

func (p *Prober) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("probe canceled: %w", ctx.Err())
	case err := <-done:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("probe canceled: %w", ctxErr)
		}
		if *fetchErr != nil {
			return fmt.Errorf("probe response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("probe visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
