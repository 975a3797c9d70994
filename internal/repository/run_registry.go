package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"LineGuard/internal/domain/models"
	domrepo "LineGuard/internal/domain/repository"
)

// trainingRunRecord is the persisted row of one training run.
type trainingRunRecord struct {
	ID             uint      `gorm:"primaryKey"`
	RunID          string    `gorm:"uniqueIndex;not null"`
	TrainedAt      time.Time `gorm:"index;not null"`
	TrainStart     time.Time
	TrainEnd       time.Time
	TestStart      time.Time
	TestEnd        time.Time
	TrainRows      int
	TestRows       int
	Features       int
	Rounds         int
	ScalePosWeight float64
	Accuracy       float64
	Precision      float64
	Recall         float64
	F1             float64
	TP             int
	TN             int
	FP             int
	FN             int
	ArtifactPath   string
	DurationMs     int64
}

func (trainingRunRecord) TableName() string { return "training_runs" }

// SQLRunRegistry keeps the training run history in a GORM-managed table.
type SQLRunRegistry struct {
	db *gorm.DB
}

var _ domrepo.RunRegistry = (*SQLRunRegistry)(nil)

// OpenSQLiteRegistry opens (or creates) the SQLite registry at path and
// migrates its schema. ":memory:" is accepted for tests.
func OpenSQLiteRegistry(path string) (*SQLRunRegistry, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create registry dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	return NewSQLRunRegistry(db)
}

func NewSQLRunRegistry(db *gorm.DB) (*SQLRunRegistry, error) {
	if err := db.AutoMigrate(&trainingRunRecord{}); err != nil {
		return nil, fmt.Errorf("migrate registry: %w", err)
	}
	return &SQLRunRegistry{db: db}, nil
}

func (r *SQLRunRegistry) Record(ctx context.Context, run *models.TrainingRun) error {
	rec := toRecord(run)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("record run %s: %w", run.RunID, err)
	}
	return nil
}

// List returns up to limit runs, newest first.
func (r *SQLRunRegistry) List(ctx context.Context, limit int) ([]models.TrainingRun, error) {
	var recs []trainingRunRecord
	err := r.db.WithContext(ctx).
		Order("trained_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]models.TrainingRun, len(recs))
	for i := range recs {
		out[i] = fromRecord(&recs[i])
	}
	return out, nil
}

// Ping checks the underlying database connection.
func (r *SQLRunRegistry) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *SQLRunRegistry) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toRecord(run *models.TrainingRun) trainingRunRecord {
	return trainingRunRecord{
		RunID:          run.RunID,
		TrainedAt:      run.TrainedAt.UTC(),
		TrainStart:     run.TrainStart.UTC(),
		TrainEnd:       run.TrainEnd.UTC(),
		TestStart:      run.TestStart.UTC(),
		TestEnd:        run.TestEnd.UTC(),
		TrainRows:      run.TrainRows,
		TestRows:       run.TestRows,
		Features:       run.Features,
		Rounds:         run.Rounds,
		ScalePosWeight: run.ScalePosWeight,
		Accuracy:       run.Metrics.Accuracy,
		Precision:      run.Metrics.Precision,
		Recall:         run.Metrics.Recall,
		F1:             run.Metrics.F1,
		TP:             run.Confusion.TP,
		TN:             run.Confusion.TN,
		FP:             run.Confusion.FP,
		FN:             run.Confusion.FN,
		ArtifactPath:   run.ArtifactPath,
		DurationMs:     run.DurationMs,
	}
}

func fromRecord(rec *trainingRunRecord) models.TrainingRun {
	return models.TrainingRun{
		RunID:          rec.RunID,
		TrainedAt:      rec.TrainedAt.UTC(),
		TrainStart:     rec.TrainStart.UTC(),
		TrainEnd:       rec.TrainEnd.UTC(),
		TestStart:      rec.TestStart.UTC(),
		TestEnd:        rec.TestEnd.UTC(),
		TrainRows:      rec.TrainRows,
		TestRows:       rec.TestRows,
		Features:       rec.Features,
		Rounds:         rec.Rounds,
		ScalePosWeight: rec.ScalePosWeight,
		Metrics: models.Metrics{
			Accuracy:  rec.Accuracy,
			Precision: rec.Precision,
			Recall:    rec.Recall,
			F1:        rec.F1,
		},
		Confusion:    models.Confusion{TP: rec.TP, TN: rec.TN, FP: rec.FP, FN: rec.FN},
		ArtifactPath: rec.ArtifactPath,
		DurationMs:   rec.DurationMs,
	}
}
