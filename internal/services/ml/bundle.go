package ml

import (
	"fmt"
	"time"

	"LineGuard/internal/domain/models"
)

// BundleFormatVersion is bumped whenever the persisted layout changes.
const BundleFormatVersion = 1

// Bundle is the unit of persistence: model, imputer and the ordered feature
// list they were fit on. The three are always written and read together.
type Bundle struct {
	FormatVersion  int
	RunID          string
	TrainedAt      time.Time
	Model          *Booster
	Imputer        *MeanImputer
	Features       models.FeatureSet
	Metrics        models.Metrics
	Confusion      models.Confusion
	ScalePosWeight float64
}

// Validate rejects bundles whose parts disagree on the feature width.
func (b *Bundle) Validate() error {
	if b == nil {
		return fmt.Errorf("bundle is nil")
	}
	if b.FormatVersion != BundleFormatVersion {
		return fmt.Errorf("bundle format %d, want %d", b.FormatVersion, BundleFormatVersion)
	}
	if err := b.Features.Validate(); err != nil {
		return fmt.Errorf("bundle features: %w", err)
	}
	if err := b.Model.Validate(); err != nil {
		return fmt.Errorf("bundle model: %w", err)
	}
	if b.Imputer == nil {
		return fmt.Errorf("bundle imputer is nil")
	}
	if w := b.Imputer.Width(); w != b.Features.Len() {
		return fmt.Errorf("imputer width %d != %d features", w, b.Features.Len())
	}
	if b.Model.NumFeatures != b.Features.Len() {
		return fmt.Errorf("model width %d != %d features", b.Model.NumFeatures, b.Features.Len())
	}
	return nil
}

// Classifier returns the confidence-capable view of the bundled model.
func (b *Bundle) Classifier() (Classifier, error) {
	return NewClassifier(b.Model)
}

// Summary describes the bundle for the model endpoint.
func (b *Bundle) Summary() models.ModelSummary {
	s := models.ModelSummary{
		RunID:          b.RunID,
		TrainedAt:      b.TrainedAt,
		FeatureCount:   b.Features.Len(),
		Features:       append([]string(nil), b.Features.Names...),
		Metrics:        b.Metrics,
		Confusion:      b.Confusion,
		ScalePosWeight: b.ScalePosWeight,
	}
	if b.Model != nil {
		s.Objective = string(b.Model.Objective)
		s.Rounds = len(b.Model.Trees)
	}
	return s
}
