package repository

import (
	"context"
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LineGuard/internal/domain/errs"
	"LineGuard/internal/domain/models"
	"LineGuard/internal/services/ml"
)

func trainedBundle(t *testing.T) (*ml.Bundle, [][]float64) {
	t.Helper()
	X := make([][]float64, 200)
	y := make([]int, 200)
	for i := range X {
		a := float64(i%20) / 20
		X[i] = []float64{a, float64(i % 7)}
		if a > 0.5 {
			y[i] = 1
		}
	}
	X[3][1] = math.NaN()
	imp, err := ml.FitMeanImputer(X, 2)
	require.NoError(t, err)
	Xi, err := imp.Transform(X)
	require.NoError(t, err)

	p := ml.DefaultParams()
	p.Rounds = 8
	booster, _, err := ml.Fit(Xi, y, p, nil)
	require.NoError(t, err)

	fs, err := models.NewFeatureSet([]string{"a", "b"})
	require.NoError(t, err)
	return &ml.Bundle{
		FormatVersion: ml.BundleFormatVersion,
		RunID:         "run-1",
		TrainedAt:     time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Model:         booster,
		Imputer:       imp,
		Features:      fs,
	}, X
}

func TestFileBundleStoreRoundTrip(t *testing.T) {
	b, X := trainedBundle(t)
	store := NewFileBundleStore(filepath.Join(t.TempDir(), "nested", "model.gob"))
	assert.False(t, store.Exists(context.Background()))

	require.NoError(t, store.Save(context.Background(), b))
	assert.True(t, store.Exists(context.Background()))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, b.Features.Names, got.Features.Names)
	assert.Equal(t, b.RunID, got.RunID)
	assert.True(t, b.TrainedAt.Equal(got.TrainedAt))

	before, err := b.Imputer.Transform(X)
	require.NoError(t, err)
	after, err := got.Imputer.Transform(X)
	require.NoError(t, err)
	for i := range before {
		assert.Equal(t, b.Model.Predict(before[i]), got.Model.Predict(after[i]))
		assert.Equal(t, b.Model.PredictProba(before[i]), got.Model.PredictProba(after[i]))
	}

	entries, err := os.ReadDir(filepath.Dir(store.Location()))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileBundleStoreRejectsInvalid(t *testing.T) {
	b, _ := trainedBundle(t)
	b.Imputer = &ml.MeanImputer{Means: []float64{1}}
	store := NewFileBundleStore(filepath.Join(t.TempDir(), "model.gob"))
	assert.Error(t, store.Save(context.Background(), b))
	assert.False(t, store.Exists(context.Background()))

	_, err := store.Load(context.Background())
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(store.Location(), []byte("garbage"), 0o644))
	_, err = store.Load(context.Background())
	assert.Error(t, err)
	assert.Equal(t, errs.KindInternal, errs.KindOf(err))
}

func TestFileBundleStoreCorruptFeaturesAreInternal(t *testing.T) {
	b, _ := trainedBundle(t)
	b.Features = models.FeatureSet{Names: []string{"a", "a"}}
	store := NewFileBundleStore(filepath.Join(t.TempDir(), "model.gob"))

	f, err := os.Create(store.Location())
	require.NoError(t, err)
	require.NoError(t, gob.NewEncoder(f).Encode(b))
	require.NoError(t, f.Close())

	_, err = store.Load(context.Background())
	require.Error(t, err)
	assert.Equal(t, errs.KindInternal, errs.KindOf(err))
	assert.Contains(t, err.Error(), "appears more than once")
}
