package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/linkcheck/internal/progress"
)

// PrometheusSink exports run progress via Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runRuntime    prometheus.Histogram

	rowsChecked *prometheus.CounterVec
	rowDuration *prometheus.HistogramVec
	probes      *prometheus.CounterVec
	checkpoints prometheus.Counter

	tableRows *prometheus.GaugeVec
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkcheck_runs_started_total",
			Help: "Runs that have started, including resumes.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkcheck_runs_completed_total",
			Help: "Runs that have ended partitioned by result.",
		}, []string{"result"}),
		runRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkcheck_run_duration_seconds",
			Help:    "Wall time per ended run.",
			Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200, 14400},
		}),
		rowsChecked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkcheck_rows_checked_total",
			Help: "Rows verified partitioned by status and outcome kind.",
		}, []string{"status", "kind"}),
		rowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkcheck_row_duration_seconds",
			Help:    "Time spent verifying one row.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60, 70, 90},
		}, []string{"status"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkcheck_probe_results_total",
			Help: "Advisory probe results partitioned by status class.",
		}, []string{"class"}),
		checkpoints: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkcheck_checkpoints_total",
			Help: "Checkpoints persisted.",
		}),
		tableRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "linkcheck_table_rows",
			Help: "Rows in the current table partitioned by status.",
		}, []string{"status"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runRuntime,
		s.rowsChecked,
		s.rowDuration,
		s.probes,
		s.checkpoints,
		s.tableRows,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		s.observeTable(evt)
	case progress.StageRowDone:
		s.handleRow(evt)
	case progress.StageCheckpoint:
		s.checkpoints.Inc()
		s.observeTable(evt)
	case progress.StageRunDone, progress.StageRunCancelled, progress.StageRunError:
		s.runsCompleted.WithLabelValues(runResult(evt.Stage)).Inc()
		if evt.Dur > 0 {
			s.runRuntime.Observe(evt.Dur.Seconds())
		}
		s.observeTable(evt)
	}
}

func (s *PrometheusSink) handleRow(evt progress.Event) {
	kind := evt.Kind
	if kind == "" {
		kind = "unknown"
	}
	s.rowsChecked.WithLabelValues(string(evt.Status), kind).Inc()
	if evt.Dur > 0 {
		s.rowDuration.WithLabelValues(string(evt.Status)).Observe(evt.Dur.Seconds())
	}
	if evt.ProbeClass != "" {
		s.probes.WithLabelValues(evt.ProbeClass).Inc()
	}
}

func (s *PrometheusSink) observeTable(evt progress.Event) {
	if evt.Summary.Total == 0 {
		return
	}
	s.tableRows.WithLabelValues("valid").Set(float64(evt.Summary.Valid))
	s.tableRows.WithLabelValues("invalid").Set(float64(evt.Summary.Invalid))
	s.tableRows.WithLabelValues("unresolved").Set(float64(evt.Summary.Unresolved))
}

func runResult(stage progress.Stage) string {
	switch stage {
	case progress.StageRunDone:
		return "success"
	case progress.StageRunCancelled:
		return "cancelled"
	default:
		return "error"
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
