package ml

import "fmt"

// Classifier scores one aligned, imputed feature row. Confidence is always in
// [0, 1], whatever the underlying model reports natively.
type Classifier interface {
	Predict(row []float64) int
	Confidence(row []float64) float64
}

// ProbabilisticClassifier wraps a model that reports class probabilities.
type ProbabilisticClassifier struct {
	booster *Booster
}

func (c *ProbabilisticClassifier) Predict(row []float64) int { return c.booster.Predict(row) }

// Confidence is P(label = 1).
func (c *ProbabilisticClassifier) Confidence(row []float64) float64 {
	return c.booster.PredictProba(row)
}

// MarginClassifier wraps a model that only reports a decision margin.
type MarginClassifier struct {
	booster *Booster
}

func (c *MarginClassifier) Predict(row []float64) int { return c.booster.Predict(row) }

// Confidence squashes the margin through the logistic function.
func (c *MarginClassifier) Confidence(row []float64) float64 {
	return sigmoid(c.booster.PredictMargin(row))
}

// NewClassifier picks the confidence path once, from the model's objective.
func NewClassifier(b *Booster) (Classifier, error) {
	if b == nil {
		return nil, fmt.Errorf("classifier: nil model")
	}
	switch b.Objective {
	case ObjectiveLogistic:
		return &ProbabilisticClassifier{booster: b}, nil
	case ObjectiveLogitRaw:
		return &MarginClassifier{booster: b}, nil
	default:
		return nil, fmt.Errorf("classifier: unsupported objective %q", b.Objective)
	}
}
