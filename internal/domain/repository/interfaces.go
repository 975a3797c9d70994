package repository

import (
	"context"
	"io"

	"LineGuard/internal/domain/models"
	"LineGuard/internal/services/ml"
)

// DatasetSource yields the raw, row-ordered dataset. Missing storage is
// reported as errs.KindDatasetNotFound.
type DatasetSource interface {
	Name() string
	Load(ctx context.Context) (*models.Dataset, error)
}

// DatasetWriter replaces the stored dataset with a new raw file.
type DatasetWriter interface {
	Replace(ctx context.Context, r io.Reader) error
}

// BundleStore persists the model bundle. Save must be atomic: readers see
// either the previous bundle or the new one, never a mix.
type BundleStore interface {
	Save(ctx context.Context, b *ml.Bundle) error
	Load(ctx context.Context) (*ml.Bundle, error)
	Exists(ctx context.Context) bool
	Location() string
}

type RunRegistry interface {
	Record(ctx context.Context, run *models.TrainingRun) error
	List(ctx context.Context, limit int) ([]models.TrainingRun, error)
	Close() error
}

type EventPublisher interface {
	PublishTrained(ctx context.Context, s models.ModelSummary) error
	PublishSimulation(ctx context.Context, e models.SimEvent) error
	PublishScoring(ctx context.Context, r models.ScoringResult) error
	Close() error
}

type Metrics interface {
	RecordTraining(status string, seconds float64)
	RecordModelQuality(m models.Metrics)
	RecordPredictions(source string, n int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
