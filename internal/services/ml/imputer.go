package ml

import (
	"fmt"
	"math"
)

// MeanImputer replaces missing values (NaN) with per-column means learned
// from the data it was fit on. It is never refit on evaluation or inference
// data.
type MeanImputer struct {
	Means []float64
}

// FitMeanImputer learns column means from X. A column without a single
// observed value imputes to 0.
func FitMeanImputer(X [][]float64, numFeatures int) (*MeanImputer, error) {
	if len(X) == 0 {
		return nil, fmt.Errorf("fit imputer: empty matrix")
	}
	sums := make([]float64, numFeatures)
	counts := make([]int, numFeatures)
	for r, row := range X {
		if len(row) != numFeatures {
			return nil, fmt.Errorf("fit imputer: row %d has %d values, want %d", r, len(row), numFeatures)
		}
		for j, v := range row {
			if math.IsNaN(v) {
				continue
			}
			sums[j] += v
			counts[j]++
		}
	}
	means := make([]float64, numFeatures)
	for j := range means {
		if counts[j] > 0 {
			means[j] = sums[j] / float64(counts[j])
		}
	}
	return &MeanImputer{Means: means}, nil
}

// Transform returns a copy of X with NaN cells replaced by the fitted means.
func (m *MeanImputer) Transform(X [][]float64) ([][]float64, error) {
	out := make([][]float64, len(X))
	for r, row := range X {
		if len(row) != len(m.Means) {
			return nil, fmt.Errorf("impute: row %d has %d values, want %d", r, len(row), len(m.Means))
		}
		dst := make([]float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) {
				v = m.Means[j]
			}
			dst[j] = v
		}
		out[r] = dst
	}
	return out, nil
}

// Width is the number of columns the imputer was fit on.
func (m *MeanImputer) Width() int { return len(m.Means) }
