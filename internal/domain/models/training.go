package models

import "time"

type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

type Confusion struct {
	TP int `json:"tp"`
	TN int `json:"tn"`
	FP int `json:"fp"`
	FN int `json:"fn"`
}

// History has one entry per boosting round. Accuracy is the final accuracy
// replicated across rounds.
type History struct {
	Epochs   []int     `json:"epochs"`
	Loss     []float64 `json:"loss"`
	Accuracy []float64 `json:"accuracy"`
}

// TrainResult is the outcome of one training run.
type TrainResult struct {
	Status         string
	RunID          string
	TrainedAt      time.Time
	Metrics        Metrics
	Confusion      Confusion
	History        History
	ScalePosWeight float64
	TrainRows      int
	TestRows       int
	Features       int
	Duration       time.Duration
}

// ModelSummary describes the currently persisted bundle.
type ModelSummary struct {
	RunID          string    `json:"run_id"`
	TrainedAt      time.Time `json:"trained_at"`
	Objective      string    `json:"objective"`
	Rounds         int       `json:"rounds"`
	FeatureCount   int       `json:"feature_count"`
	Features       []string  `json:"features"`
	Metrics        Metrics   `json:"metrics"`
	Confusion      Confusion `json:"confusion"`
	ScalePosWeight float64   `json:"scale_pos_weight"`
}

// TrainingRun is one registry entry.
type TrainingRun struct {
	RunID          string    `json:"run_id"`
	TrainedAt      time.Time `json:"trained_at"`
	TrainStart     time.Time `json:"train_start"`
	TrainEnd       time.Time `json:"train_end"`
	TestStart      time.Time `json:"test_start"`
	TestEnd        time.Time `json:"test_end"`
	TrainRows      int       `json:"train_rows"`
	TestRows       int       `json:"test_rows"`
	Features       int       `json:"features"`
	Rounds         int       `json:"rounds"`
	ScalePosWeight float64   `json:"scale_pos_weight"`
	Metrics        Metrics   `json:"metrics"`
	Confusion      Confusion `json:"confusion"`
	ArtifactPath   string    `json:"artifact_path"`
	DurationMs     int64     `json:"duration_ms"`
}
