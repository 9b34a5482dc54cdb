// Package checkpoint persists the working table and its progress record so a
// run can be interrupted at any point and resumed later.
package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/storage"
	"github.com/JakeFAU/linkcheck/internal/table"
)

const (
	contentTypeCSV  = "text/csv"
	contentTypeJSON = "application/json"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Config names the artifacts inside the store.
type Config struct {
	CSVName   string
	XLSXName  string
	MetaName  string
	WriteXLSX bool
}

// RowMirror receives resolved rows on every flush.
type RowMirror interface {
	Name() string
	MirrorRows(ctx context.Context, runID string, t *table.Table) error
}

// Manager writes snapshots through an atomic store and fans final copies out
// to mirrors.
type Manager struct {
	store  storage.Store
	cfg    Config
	logger *zap.Logger
	blobs  []storage.Mirror
	rows   []RowMirror
	now    func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithBlobMirrors copies every flushed artifact to the given mirrors.
func WithBlobMirrors(mirrors ...storage.Mirror) Option {
	return func(m *Manager) {
		m.blobs = append(m.blobs, mirrors...)
	}
}

// WithRowMirrors upserts resolved rows into the given mirrors on flush.
func WithRowMirrors(mirrors ...RowMirror) Option {
	return func(m *Manager) {
		m.rows = append(m.rows, mirrors...)
	}
}

// WithClock overrides the timestamp source for Meta.UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// New builds a Manager over store.
func New(store storage.Store, cfg Config, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if strings.TrimSpace(cfg.CSVName) == "" || strings.TrimSpace(cfg.MetaName) == "" {
		return nil, fmt.Errorf("checkpoint csv and meta names are required")
	}
	if cfg.WriteXLSX && strings.TrimSpace(cfg.XLSXName) == "" {
		return nil, fmt.Errorf("checkpoint xlsx name is required when xlsx output is enabled")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		store:  store,
		cfg:    cfg,
		logger: logger.Named("checkpoint"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Persist atomically writes the CSV snapshot and then the meta record. The
// meta record is never written ahead of a failed snapshot.
func (m *Manager) Persist(ctx context.Context, t *table.Table, meta *Meta) error {
	_, err := m.persist(ctx, t, meta)
	return err
}

func (m *Manager) persist(ctx context.Context, t *table.Table, meta *Meta) ([]byte, error) {
	summary := t.Summary()
	meta.RowCount = summary.Total
	meta.Resolved = summary.Resolved()
	meta.UpdatedAt = m.now()

	snapshot, err := table.EncodeCSV(t.Records())
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if _, err := m.store.PutObject(ctx, m.cfg.CSVName, contentTypeCSV, bytes.NewReader(snapshot)); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return snapshot, fmt.Errorf("encode meta: %w", err)
	}
	if _, err := m.store.PutObject(ctx, m.cfg.MetaName, contentTypeJSON, bytes.NewReader(metaJSON)); err != nil {
		return snapshot, fmt.Errorf("write meta: %w", err)
	}
	return snapshot, nil
}

// Flush persists like Persist, then writes the spreadsheet snapshot and
// updates every mirror. Mirror failures are logged, not returned.
func (m *Manager) Flush(ctx context.Context, t *table.Table, meta *Meta) error {
	snapshot, persistErr := m.persist(ctx, t, meta)

	var xlsx []byte
	var xlsxErr error
	if m.cfg.WriteXLSX {
		xlsx, xlsxErr = m.writeXLSX(ctx, t)
	}

	if snapshot != nil {
		m.mirrorBlob(ctx, m.cfg.CSVName, contentTypeCSV, snapshot)
	}
	if xlsx != nil {
		m.mirrorBlob(ctx, m.cfg.XLSXName, contentTypeXLSX, xlsx)
	}
	for _, rm := range m.rows {
		if err := rm.MirrorRows(ctx, meta.RunID, t); err != nil {
			m.logger.Warn("row mirror failed", zap.String("mirror", rm.Name()), zap.Error(err))
		}
	}
	return errors.Join(persistErr, xlsxErr)
}

func (m *Manager) writeXLSX(ctx context.Context, t *table.Table) ([]byte, error) {
	data, err := table.EncodeXLSX(t.Records())
	if err != nil {
		return nil, fmt.Errorf("encode spreadsheet: %w", err)
	}
	if _, err := m.store.PutObject(ctx, m.cfg.XLSXName, contentTypeXLSX, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("write spreadsheet: %w", err)
	}
	return data, nil
}

func (m *Manager) mirrorBlob(ctx context.Context, name, contentType string, data []byte) {
	for _, mirror := range m.blobs {
		uri, err := mirror.PutObject(ctx, name, contentType, bytes.NewReader(data))
		if err != nil {
			m.logger.Warn("blob mirror failed",
				zap.String("mirror", mirror.Name()),
				zap.String("object", name),
				zap.Error(err),
			)
			continue
		}
		m.logger.Debug("mirrored artifact", zap.String("uri", uri))
	}
}

// Load reads the previous snapshot and meta record. Either may be nil: a
// missing or unreadable artifact is reported in the log and treated as absent.
func (m *Manager) Load(ctx context.Context, urlColumn string) (*table.Table, *Meta) {
	return m.loadSnapshot(ctx, urlColumn), m.loadMeta(ctx)
}

func (m *Manager) loadSnapshot(ctx context.Context, urlColumn string) *table.Table {
	data, ok := m.read(ctx, m.cfg.CSVName)
	if !ok {
		return nil
	}
	records, err := table.ReadCSV(bytes.NewReader(data), ',')
	if err != nil {
		m.logger.Warn("ignoring unreadable snapshot", zap.String("object", m.cfg.CSVName), zap.Error(err))
		return nil
	}
	prev, err := table.FromSnapshot(records, urlColumn)
	if err != nil {
		m.logger.Warn("ignoring unreadable snapshot", zap.String("object", m.cfg.CSVName), zap.Error(err))
		return nil
	}
	return prev
}

func (m *Manager) loadMeta(ctx context.Context) *Meta {
	data, ok := m.read(ctx, m.cfg.MetaName)
	if !ok {
		return nil
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		m.logger.Warn("ignoring unreadable checkpoint meta", zap.String("object", m.cfg.MetaName), zap.Error(err))
		return nil
	}
	return &meta
}

func (m *Manager) read(ctx context.Context, name string) ([]byte, bool) {
	data, err := m.store.GetObject(ctx, name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		m.logger.Debug("no previous artifact", zap.String("object", name))
		return nil, false
	case err != nil:
		m.logger.Warn("ignoring unreadable artifact", zap.String("object", name), zap.Error(err))
		return nil, false
	}
	return data, true
}

// Reset removes every artifact so the next run starts fresh.
func (m *Manager) Reset(ctx context.Context) error {
	names := []string{m.cfg.CSVName, m.cfg.MetaName}
	if m.cfg.XLSXName != "" {
		names = append(names, m.cfg.XLSXName)
	}
	var errs []error
	for _, name := range names {
		if err := m.store.DeleteObject(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
