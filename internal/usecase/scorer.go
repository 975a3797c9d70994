package usecase

import (
	"fmt"

	"LineGuard/internal/domain/models"
	"LineGuard/internal/services/features"
	"LineGuard/internal/services/ml"
)

// scorer applies one loaded bundle: align, impute with the frozen means,
// predict and derive confidence.
type scorer struct {
	clf ml.Classifier
	imp *ml.MeanImputer
	fs  models.FeatureSet
}

func newScorer(b *ml.Bundle) (*scorer, error) {
	clf, err := b.Classifier()
	if err != nil {
		return nil, fmt.Errorf("select classifier: %w", err)
	}
	return &scorer{clf: clf, imp: b.Imputer, fs: b.Features}, nil
}

func (s *scorer) scoreRows(rows []map[string]interface{}) ([]models.Prediction, error) {
	X, err := features.MatrixFromRows(rows, s.fs)
	if err != nil {
		return nil, err
	}
	return s.scoreMatrix(X)
}

func (s *scorer) scoreMatrix(X [][]float64) ([]models.Prediction, error) {
	Xi, err := s.imp.Transform(X)
	if err != nil {
		return nil, fmt.Errorf("impute: %w", err)
	}
	out := make([]models.Prediction, len(Xi))
	for i, row := range Xi {
		out[i] = models.Prediction{
			Prediction: s.clf.Predict(row),
			Confidence: s.clf.Confidence(row),
		}
	}
	return out, nil
}
