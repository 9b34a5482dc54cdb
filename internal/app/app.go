// Package app builds and owns the long-lived services of a run, acting as a
// dependency injection container for the check command.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/checkpoint"
	"github.com/JakeFAU/linkcheck/internal/clock/system"
	"github.com/JakeFAU/linkcheck/internal/config"
	"github.com/JakeFAU/linkcheck/internal/metrics"
	"github.com/JakeFAU/linkcheck/internal/progress"
	"github.com/JakeFAU/linkcheck/internal/progress/sinks"
	"github.com/JakeFAU/linkcheck/internal/publisher"
	pubsubpub "github.com/JakeFAU/linkcheck/internal/publisher/pubsub"
	"github.com/JakeFAU/linkcheck/internal/storage"
	"github.com/JakeFAU/linkcheck/internal/storage/gcs"
	"github.com/JakeFAU/linkcheck/internal/storage/local"
	"github.com/JakeFAU/linkcheck/internal/storage/postgres"
)

// App holds the services shared by a run.
type App struct {
	cfg         config.Config
	logger      *zap.Logger
	store       *local.BlobStore
	checkpoints *checkpoint.Manager
	registry    *prometheus.Registry
	hub         *progress.Hub
	status      *sinks.StatusSink
	server      *metrics.Server

	closers []func(context.Context) error
}

type options struct {
	notifier publisher.Publisher
	mirrors  []storage.Mirror
}

// Option customizes New.
type Option func(*options)

// WithNotifier uses pub for run summaries instead of dialing Pub/Sub.
func WithNotifier(pub publisher.Publisher) Option {
	return func(o *options) { o.notifier = pub }
}

// WithBlobMirrors adds snapshot mirrors alongside any configured GCS bucket.
func WithBlobMirrors(mirrors ...storage.Mirror) Option {
	return func(o *options) { o.mirrors = append(o.mirrors, mirrors...) }
}

// New wires the services described by cfg. Optional backends (GCS, Postgres,
// Pub/Sub, the metrics server) are only dialed when configured; a configured
// backend that cannot be reached is an error. Close must be called even when
// New fails part way, which it handles by releasing what it built.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		status:   sinks.NewStatusSink(),
	}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.store, err = local.New(local.Config{BaseDir: cfg.Output.Dir()})
	if err != nil {
		return nil, fmt.Errorf("output store: %w", err)
	}

	mirrors := append([]storage.Mirror(nil), o.mirrors...)
	if cfg.GCS.Bucket != "" {
		bucket, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.GCS.Bucket, Prefix: cfg.GCS.Prefix})
		if err != nil {
			return nil, fmt.Errorf("gcs mirror: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return bucket.Close() })
		mirrors = append(mirrors, bucket)
		logger.Info("snapshot mirror enabled", zap.String("mirror", bucket.Name()))
	}

	var rowMirrors []checkpoint.RowMirror
	progressSinks := []progress.Sink{a.status, sinks.NewLogSink(logger.Named("progress"))}
	if cfg.Postgres.DSN != "" {
		results, err := postgres.New(ctx, postgres.Config{DSN: cfg.Postgres.DSN, Table: cfg.Postgres.Table})
		if err != nil {
			return nil, fmt.Errorf("postgres mirror: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { results.Close(); return nil })
		if err := results.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		rowMirrors = append(rowMirrors, results)
		progressSinks = append(progressSinks, sinks.NewLedgerSink(results, logger))
		logger.Info("row mirror enabled", zap.String("mirror", results.Name()))
	}

	notifier := o.notifier
	if notifier == nil && cfg.PubSub.Topic != "" {
		pub, err := pubsubpub.Open(ctx, pubsubpub.Config{ProjectID: cfg.PubSub.ProjectID, Topic: cfg.PubSub.Topic})
		if err != nil {
			return nil, fmt.Errorf("pubsub notifier: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return pub.Close() })
		notifier = pub
		logger.Info("run notifications enabled", zap.String("topic", cfg.PubSub.Topic))
	}
	if notifier != nil {
		progressSinks = append(progressSinks, sinks.NewNotifySink(notifier, logger))
	}

	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return nil, err
	}
	progressSinks = append(progressSinks, promSink)

	a.checkpoints, err = checkpoint.New(a.store, checkpoint.Config{
		CSVName:   filepath.Base(cfg.Output.CSVPath),
		XLSXName:  filepath.Base(cfg.Output.XLSXPath),
		MetaName:  filepath.Base(cfg.Output.CheckpointPath),
		WriteXLSX: cfg.Output.WriteXLSX,
	}, logger,
		checkpoint.WithBlobMirrors(mirrors...),
		checkpoint.WithRowMirrors(rowMirrors...),
		checkpoint.WithClock(system.New().Now),
	)
	if err != nil {
		return nil, fmt.Errorf("checkpoint manager: %w", err)
	}

	a.hub = progress.NewHub(progress.Config{Logger: logger}, progressSinks...)

	if cfg.Metrics.Addr != "" {
		a.server, err = metrics.NewServer(a.registry, a.status, logger)
		if err != nil {
			return nil, err
		}
		if err := a.server.Start(cfg.Metrics.Addr); err != nil {
			a.server = nil
			return nil, err
		}
	}
	return a, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Checkpoints returns the checkpoint manager bound to the output directory.
func (a *App) Checkpoints() *checkpoint.Manager { return a.checkpoints }

// Emitter returns the progress hub.
func (a *App) Emitter() progress.Emitter { return a.hub }

// Status returns the current run snapshot.
func (a *App) Status() sinks.Snapshot { return a.status.Snapshot() }

// Registry returns the Prometheus registry backing /metrics.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// MetricsAddr returns the bound metrics address, or "" when disabled.
func (a *App) MetricsAddr() string {
	if a.server == nil {
		return ""
	}
	return a.server.Addr()
}

// SetReady marks the run as ready on /readyz.
func (a *App) SetReady(ready bool) {
	if a.server != nil {
		a.server.SetReady(ready)
	}
}

// Close drains progress sinks, stops the metrics server, and releases
// backends in reverse order of construction.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
