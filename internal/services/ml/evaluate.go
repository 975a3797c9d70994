package ml

import (
	"fmt"

	"LineGuard/internal/domain/models"
)

// ScalePosWeight returns count(negative)/count(positive), or 1.0 when there
// is no positive label.
func ScalePosWeight(labels []int) float64 {
	var pos, neg int
	for _, y := range labels {
		switch y {
		case 1:
			pos++
		case 0:
			neg++
		}
	}
	if pos == 0 {
		return 1.0
	}
	return float64(neg) / float64(pos)
}

// Evaluate computes classification metrics with positive label 1. Any
// metric whose denominator is zero is reported as 0.
func Evaluate(yTrue, yPred []int) (models.Metrics, models.Confusion, error) {
	if len(yTrue) != len(yPred) {
		return models.Metrics{}, models.Confusion{}, fmt.Errorf("evaluate: %d labels vs %d predictions", len(yTrue), len(yPred))
	}
	var c models.Confusion
	for i, y := range yTrue {
		p := yPred[i]
		switch {
		case y == 1 && p == 1:
			c.TP++
		case y == 0 && p == 0:
			c.TN++
		case y == 0 && p == 1:
			c.FP++
		default:
			c.FN++
		}
	}
	m := models.Metrics{
		Accuracy:  ratio(c.TP+c.TN, len(yTrue)),
		Precision: ratio(c.TP, c.TP+c.FP),
		Recall:    ratio(c.TP, c.TP+c.FN),
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m, c, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
