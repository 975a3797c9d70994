package usecase

import (
	"context"
	"time"

	"LineGuard/internal/domain/errs"
	"LineGuard/internal/domain/models"
	domrepo "LineGuard/internal/domain/repository"
	"LineGuard/pkg/cache"
	applogger "LineGuard/pkg/logger"
	"LineGuard/pkg/metrics"
)

// Predictor scores rows against the persisted bundle. The bundle is reloaded
// on every call so a finished training run is picked up immediately.
type Predictor struct {
	bundles domrepo.BundleStore
	cache   cache.Service
	metrics domrepo.Metrics
	log     *applogger.Logger
}

func NewPredictor(bundles domrepo.BundleStore, c cache.Service, m domrepo.Metrics, l *applogger.Logger) *Predictor {
	if m == nil {
		m = metrics.Nop{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &Predictor{bundles: bundles, cache: c, metrics: m, log: l}
}

// Predict returns one result per row, in input order.
func (p *Predictor) Predict(ctx context.Context, rows []map[string]interface{}) ([]models.Prediction, error) {
	return p.predict(ctx, "http", rows)
}

func (p *Predictor) predict(ctx context.Context, source string, rows []map[string]interface{}) ([]models.Prediction, error) {
	start := time.Now()
	s, err := p.loadScorer(ctx)
	if err != nil {
		p.metrics.RecordError("predict_load")
		return nil, err
	}
	out, err := s.scoreRows(rows)
	if err != nil {
		p.metrics.RecordError("predict_score")
		return nil, classify(err, "score rows")
	}
	p.metrics.RecordPredictions(source, len(out))
	p.metrics.RecordLatency("predict", time.Since(start).Seconds())
	return out, nil
}

func (p *Predictor) loadScorer(ctx context.Context) (*scorer, error) {
	b, err := p.bundles.Load(ctx)
	if err != nil {
		return nil, classify(err, "load model bundle")
	}
	s, err := newScorer(b)
	if err != nil {
		return nil, errs.Internal(err, "prepare model")
	}
	return s, nil
}

// Model describes the current bundle, preferring the cached summary.
func (p *Predictor) Model(ctx context.Context) (*models.ModelSummary, error) {
	if p.cache != nil {
		var s models.ModelSummary
		if err := p.cache.Get(ctx, modelSummaryKey, &s); err == nil && s.RunID != "" {
			return &s, nil
		}
	}
	b, err := p.bundles.Load(ctx)
	if err != nil {
		return nil, classify(err, "load model bundle")
	}
	s := b.Summary()
	if p.cache != nil {
		if err := p.cache.Set(ctx, modelSummaryKey, s, 0); err != nil {
			p.log.Debug("cache model summary", applogger.Error(err))
		}
	}
	return &s, nil
}
