package models

import "time"

// Prediction is the per-row inference output.
type Prediction struct {
	Prediction int     `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

// SimTotals are running counters of a simulation stream.
type SimTotals struct {
	N             int     `json:"n"`
	Pass          int     `json:"pass"`
	Fail          int     `json:"fail"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// Add folds one prediction into the totals.
func (t *SimTotals) Add(p Prediction) {
	t.N++
	if p.Prediction == 1 {
		t.Pass++
	} else {
		t.Fail++
	}
	t.AvgConfidence = (t.AvgConfidence*float64(t.N-1) + p.Confidence) / float64(t.N)
}

// SimEvent is emitted for every simulated row; the final event has Done set.
type SimEvent struct {
	Ts         *time.Time `json:"ts,omitempty"`
	ID         int64      `json:"id"`
	Prediction int        `json:"prediction"`
	Confidence float64    `json:"confidence"`
	Actual     *int       `json:"actual,omitempty"`
	Totals     SimTotals  `json:"totals"`
	Done       bool       `json:"done,omitempty"`
}

// ScoringRequest is the Kafka payload of an asynchronous scoring job.
type ScoringRequest struct {
	RequestID string                   `json:"request_id"`
	Rows      []map[string]interface{} `json:"rows"`
}

// ScoringResult is published once a scoring job completes.
type ScoringResult struct {
	RequestID string       `json:"request_id"`
	Results   []Prediction `json:"results,omitempty"`
	Error     string       `json:"error,omitempty"`
	ScoredAt  time.Time    `json:"scored_at"`
}
