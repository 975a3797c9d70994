package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"LineGuard/internal/domain/errs"
	"LineGuard/internal/domain/models"
	domrepo "LineGuard/internal/domain/repository"
	"LineGuard/internal/services/features"
	"LineGuard/internal/services/ml"
	"LineGuard/internal/services/timeseries"
	"LineGuard/pkg/cache"
	applogger "LineGuard/pkg/logger"
	"LineGuard/pkg/metrics"
)

const (
	trainLockKey    = "train:lock"
	modelSummaryKey = "model:summary"
)

// DatasetLoader yields the augmented dataset.
type DatasetLoader interface {
	Load(ctx context.Context) (*models.Dataset, error)
}

// TrainParams selects the train and test windows and optional row caps.
// A cap <= 0 keeps every row.
type TrainParams struct {
	Train        models.Window
	Test         models.Window
	MaxTrainRows int
	MaxTestRows  int
}

// Trainer runs the training pipeline end to end and persists its bundle.
type Trainer struct {
	loader   DatasetLoader
	bundles  domrepo.BundleStore
	registry domrepo.RunRegistry
	events   domrepo.EventPublisher
	cache    cache.Service
	metrics  domrepo.Metrics
	params   ml.Params
	lockTTL  time.Duration
	log      *applogger.Logger
	now      func() time.Time
}

type TrainerOption func(*Trainer)

func WithTrainingParams(p ml.Params) TrainerOption {
	return func(t *Trainer) { t.params = p }
}

// WithRunRegistry records every successful run.
func WithRunRegistry(r domrepo.RunRegistry) TrainerOption {
	return func(t *Trainer) { t.registry = r }
}

func WithTrainerEvents(p domrepo.EventPublisher) TrainerOption {
	return func(t *Trainer) { t.events = p }
}

// WithTrainingLock serializes runs through c and caches the latest model
// summary in it.
func WithTrainingLock(c cache.Service, ttl time.Duration) TrainerOption {
	return func(t *Trainer) {
		t.cache = c
		t.lockTTL = ttl
	}
}

func WithTrainerMetrics(m domrepo.Metrics) TrainerOption {
	return func(t *Trainer) { t.metrics = m }
}

func WithTrainerLogger(l *applogger.Logger) TrainerOption {
	return func(t *Trainer) { t.log = l }
}

func NewTrainer(loader DatasetLoader, bundles domrepo.BundleStore, opts ...TrainerOption) *Trainer {
	t := &Trainer{
		loader:  loader,
		bundles: bundles,
		metrics: metrics.Nop{},
		params:  ml.DefaultParams(),
		lockTTL: 30 * time.Minute,
		log:     applogger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Train fits, evaluates and persists a new model. Only one run may be in
// flight; a concurrent call fails with errs.KindConflict.
func (t *Trainer) Train(ctx context.Context, p TrainParams) (*models.TrainResult, error) {
	start := t.now()
	res, err := t.train(ctx, p)
	if err != nil {
		kind := errs.KindOf(err)
		t.metrics.RecordTraining(kind.String(), 0)
		t.metrics.RecordError("train_" + kind.String())
		t.log.Warn("training failed", applogger.String("kind", kind.String()), applogger.Error(err))
		return nil, err
	}
	elapsed := t.now().Sub(start)
	res.Duration = elapsed
	t.metrics.RecordTraining("ok", elapsed.Seconds())
	t.metrics.RecordModelQuality(res.Metrics)
	return res, nil
}

func (t *Trainer) train(ctx context.Context, p TrainParams) (*models.TrainResult, error) {
	started := t.now()
	// The run id doubles as the lock token.
	runID := uuid.NewString()
	if t.cache != nil {
		ok, err := t.cache.TryLock(ctx, trainLockKey, runID, t.lockTTL)
		if err != nil {
			return nil, errs.Internal(err, "acquire training lock")
		}
		if !ok {
			return nil, errs.Conflict("a training run is already in progress")
		}
		defer func() {
			if err := t.cache.Unlock(context.Background(), trainLockKey, runID); err != nil {
				t.log.Warn("release training lock", applogger.Error(err))
			}
		}()
	}

	ds, err := t.loader.Load(ctx)
	if err != nil {
		return nil, classify(err, "load dataset")
	}
	trainDS := timeseries.Slice(ds, p.Train)
	testDS := timeseries.Slice(ds, p.Test)
	if trainDS.Len() == 0 || testDS.Len() == 0 {
		return nil, errs.EmptyWindow("Training or testing window produced zero rows. Adjust date ranges.")
	}
	trainDS = trainDS.Head(p.MaxTrainRows)
	testDS = testDS.Head(p.MaxTestRows)

	fs, err := features.Select(trainDS)
	if err != nil {
		return nil, err
	}
	Xtr, ytr, err := design(trainDS, fs)
	if err != nil {
		return nil, err
	}
	Xte, yte, err := design(testDS, fs)
	if err != nil {
		return nil, err
	}

	imp, err := ml.FitMeanImputer(Xtr, fs.Len())
	if err != nil {
		return nil, errs.Internal(err, "fit imputer")
	}
	if Xtr, err = imp.Transform(Xtr); err != nil {
		return nil, errs.Internal(err, "impute training set")
	}
	if Xte, err = imp.Transform(Xte); err != nil {
		return nil, errs.Internal(err, "impute test set")
	}

	params := t.params
	params.ScalePosWeight = ml.ScalePosWeight(ytr)
	t.log.Info("training started",
		applogger.String("windows", p.String()),
		applogger.Int("train_rows", len(Xtr)),
		applogger.Int("test_rows", len(Xte)),
		applogger.Int("features", fs.Len()),
		applogger.Float("scale_pos_weight", params.ScalePosWeight),
		applogger.Int("rounds", params.Rounds),
	)
	fitStart := t.now()
	booster, report, err := ml.Fit(Xtr, ytr, params, &ml.EvalSet{X: Xte, Y: yte})
	if err != nil {
		return nil, errs.Internal(err, "fit model")
	}
	t.metrics.RecordLatency("fit", t.now().Sub(fitStart).Seconds())

	metricsOut, confusion, err := ml.Evaluate(yte, booster.PredictBatch(Xte))
	if err != nil {
		return nil, errs.Internal(err, "evaluate model")
	}

	trainedAt := t.now().UTC()
	bundle := &ml.Bundle{
		FormatVersion:  ml.BundleFormatVersion,
		RunID:          runID,
		TrainedAt:      trainedAt,
		Model:          booster,
		Imputer:        imp,
		Features:       fs,
		Metrics:        metricsOut,
		Confusion:      confusion,
		ScalePosWeight: params.ScalePosWeight,
	}
	if err := t.bundles.Save(ctx, bundle); err != nil {
		return nil, errs.Internal(err, "persist model bundle")
	}

	res := &models.TrainResult{
		Status:         "success",
		RunID:          runID,
		TrainedAt:      trainedAt,
		Metrics:        metricsOut,
		Confusion:      confusion,
		History:        buildHistory(report.EvalLoss, metricsOut.Accuracy),
		ScalePosWeight: params.ScalePosWeight,
		TrainRows:      len(Xtr),
		TestRows:       len(Xte),
		Features:       fs.Len(),
	}
	t.afterTraining(ctx, bundle, p, res, started)

	t.log.Info("training finished",
		applogger.String("run_id", runID),
		applogger.Float("accuracy", metricsOut.Accuracy),
		applogger.Float("f1", metricsOut.F1),
		applogger.String("artifact", t.bundles.Location()),
	)
	return res, nil
}

// afterTraining does the bookkeeping that must never fail a finished run.
func (t *Trainer) afterTraining(ctx context.Context, b *ml.Bundle, p TrainParams, res *models.TrainResult, started time.Time) {
	summary := b.Summary()
	if t.cache != nil {
		if err := t.cache.Set(ctx, modelSummaryKey, summary, 0); err != nil {
			t.log.Warn("cache model summary", applogger.Error(err))
		}
	}
	if t.registry != nil {
		run := &models.TrainingRun{
			RunID:          res.RunID,
			TrainedAt:      res.TrainedAt,
			TrainStart:     p.Train.Start,
			TrainEnd:       p.Train.End,
			TestStart:      p.Test.Start,
			TestEnd:        p.Test.End,
			TrainRows:      res.TrainRows,
			TestRows:       res.TestRows,
			Features:       res.Features,
			Rounds:         len(b.Model.Trees),
			ScalePosWeight: res.ScalePosWeight,
			Metrics:        res.Metrics,
			Confusion:      res.Confusion,
			ArtifactPath:   t.bundles.Location(),
			DurationMs:     t.now().Sub(started).Milliseconds(),
		}
		if err := t.registry.Record(ctx, run); err != nil {
			t.metrics.RecordError("registry_record")
			t.log.Warn("record training run", applogger.String("run_id", res.RunID), applogger.Error(err))
		}
	}
	if t.events != nil {
		if err := t.events.PublishTrained(ctx, summary); err != nil {
			t.metrics.RecordError("publish_trained")
			t.log.Warn("publish training event", applogger.String("run_id", res.RunID), applogger.Error(err))
		}
	}
}

func design(ds *models.Dataset, fs models.FeatureSet) ([][]float64, []int, error) {
	X, err := features.Matrix(ds, fs)
	if err != nil {
		return nil, nil, err
	}
	y, err := features.Labels(ds)
	if err != nil {
		return nil, nil, err
	}
	if len(X) != len(y) {
		return nil, nil, errs.Schema("%d feature rows vs %d labels", len(X), len(y))
	}
	return X, y, nil
}

// buildHistory reports per-round test loss. Accuracy is only measured once,
// so the final value is repeated for every round.
func buildHistory(loss []float64, accuracy float64) models.History {
	h := models.History{
		Epochs:   make([]int, len(loss)),
		Loss:     append([]float64(nil), loss...),
		Accuracy: make([]float64, len(loss)),
	}
	for i := range loss {
		h.Epochs[i] = i + 1
		h.Accuracy[i] = accuracy
	}
	return h
}

func (p TrainParams) String() string {
	return fmt.Sprintf("train=[%s, %s] test=[%s, %s]", p.Train.Start.Format(time.RFC3339), p.Train.End.Format(time.RFC3339),
		p.Test.Start.Format(time.RFC3339), p.Test.End.Format(time.RFC3339))
}
