package usecase

import (
	"context"
	"math"
	"time"

	"LineGuard/internal/domain/errs"
	"LineGuard/internal/domain/models"
	domrepo "LineGuard/internal/domain/repository"
	"LineGuard/internal/services/features"
	"LineGuard/internal/services/timeseries"
	applogger "LineGuard/pkg/logger"
	"LineGuard/pkg/metrics"
)

// SimulationSink receives every simulated prediction besides the caller.
type SimulationSink interface {
	PublishSimulation(ctx context.Context, e models.SimEvent) error
}

// Simulator replays the rows of a window through the current model at a
// fixed pace, emitting running totals after every row.
type Simulator struct {
	loader   DatasetLoader
	bundles  domrepo.BundleStore
	sink     SimulationSink
	metrics  domrepo.Metrics
	interval time.Duration
	maxRows  int
	log      *applogger.Logger
}

type SimulatorOption func(*Simulator)

// WithPacing sets the delay between events; 0 disables pacing.
func WithPacing(d time.Duration) SimulatorOption {
	return func(s *Simulator) { s.interval = d }
}

// WithSimulationRowLimit caps the rows replayed; n <= 0 means unlimited.
func WithSimulationRowLimit(n int) SimulatorOption {
	return func(s *Simulator) { s.maxRows = n }
}

func WithSimulationSink(sink SimulationSink) SimulatorOption {
	return func(s *Simulator) { s.sink = sink }
}

func WithSimulatorMetrics(m domrepo.Metrics) SimulatorOption {
	return func(s *Simulator) { s.metrics = m }
}

func WithSimulatorLogger(l *applogger.Logger) SimulatorOption {
	return func(s *Simulator) { s.log = l }
}

func NewSimulator(loader DatasetLoader, bundles domrepo.BundleStore, opts ...SimulatorOption) *Simulator {
	s := &Simulator{
		loader:   loader,
		bundles:  bundles,
		metrics:  metrics.Nop{},
		interval: time.Second,
		log:      applogger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run scores the window and calls emit once per row, then once more with
// Done set. It stops early when ctx is cancelled or emit fails; the totals
// reached so far are returned either way.
func (s *Simulator) Run(ctx context.Context, w models.Window, emit func(models.SimEvent) error) (models.SimTotals, error) {
	var totals models.SimTotals
	if w.Start.After(w.End) {
		return totals, errs.BadInput("simStart must be before or equal to simEnd")
	}
	ds, err := s.loader.Load(ctx)
	if err != nil {
		return totals, classify(err, "load dataset")
	}
	b, err := s.bundles.Load(ctx)
	if err != nil {
		return totals, classify(err, "load model bundle")
	}
	sc, err := newScorer(b)
	if err != nil {
		return totals, errs.Internal(err, "prepare model")
	}

	window := timeseries.Slice(ds, w).Head(s.maxRows)
	X, err := features.AlignDataset(window, b.Features)
	if err != nil {
		return totals, err
	}
	preds, err := sc.scoreMatrix(X)
	if err != nil {
		return totals, errs.Internal(err, "score simulation window")
	}

	var ids, labels []float64
	if c, ok := window.Column(features.IDColumn(window)); ok && c.Numeric() {
		ids = c.Numbers
	}
	if c, ok := window.Column(models.LabelColumn); ok && c.Numeric() {
		labels = c.Numbers
	}

	s.log.Info("simulation started",
		applogger.Time("start", w.Start),
		applogger.Time("end", w.End),
		applogger.Int("rows", len(preds)),
	)
	var timer *time.Timer
	if s.interval > 0 {
		timer = time.NewTimer(s.interval)
		defer timer.Stop()
	}
	for i, p := range preds {
		totals.Add(p)
		ts := window.Timestamps[i]
		e := models.SimEvent{
			Ts:         &ts,
			ID:         int64(totals.N),
			Prediction: p.Prediction,
			Confidence: p.Confidence,
			Totals:     totals,
		}
		if ids != nil && !math.IsNaN(ids[i]) {
			e.ID = int64(ids[i])
		}
		if labels != nil && !math.IsNaN(labels[i]) {
			actual := int(labels[i])
			e.Actual = &actual
		}
		if err := s.deliver(ctx, e, emit); err != nil {
			return totals, err
		}
		if timer != nil && i < len(preds)-1 {
			timer.Reset(s.interval)
			select {
			case <-ctx.Done():
				return totals, ctx.Err()
			case <-timer.C:
			}
		}
	}
	s.metrics.RecordPredictions("simulation", len(preds))
	return totals, s.deliver(ctx, models.SimEvent{Done: true, Totals: totals}, emit)
}

func (s *Simulator) deliver(ctx context.Context, e models.SimEvent, emit func(models.SimEvent) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := emit(e); err != nil {
		return err
	}
	if s.sink != nil {
		if err := s.sink.PublishSimulation(ctx, e); err != nil {
			s.log.Debug("publish simulation event", applogger.Error(err))
		}
	}
	return nil
}
