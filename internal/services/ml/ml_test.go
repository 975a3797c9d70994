package ml

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LineGuard/internal/domain/models"
)

func syntheticData(n int, seed int64) ([][]float64, []int) {
	rng := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]int, n)
	for i := range X {
		a, b, noise := rng.Float64(), rng.Float64(), rng.NormFloat64()
		X[i] = []float64{a, b, noise}
		if a+0.5*b > 0.8 {
			y[i] = 1
		}
	}
	return X, y
}

func fastParams() Params {
	p := DefaultParams()
	p.Rounds = 40
	p.MaxDepth = 4
	p.LearningRate = 0.3
	return p
}

func TestScalePosWeight(t *testing.T) {
	assert.Equal(t, 4.0, ScalePosWeight([]int{0, 0, 0, 0, 1}))
	assert.Equal(t, 1.0, ScalePosWeight([]int{0, 0, 0}))
	assert.Equal(t, 1.0, ScalePosWeight(nil))
	assert.Equal(t, 0.5, ScalePosWeight([]int{1, 1, 0}))
}

func TestEvaluate(t *testing.T) {
	m, c, err := Evaluate([]int{1, 1, 0, 0}, []int{1, 0, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, models.Confusion{TP: 1, TN: 1, FP: 1, FN: 1}, c)
	assert.InDelta(t, 0.5, m.Accuracy, 1e-12)
	assert.InDelta(t, 0.5, m.Precision, 1e-12)
	assert.InDelta(t, 0.5, m.Recall, 1e-12)
	assert.InDelta(t, 0.5, m.F1, 1e-12)
}

func TestEvaluateZeroDivision(t *testing.T) {
	m, c, err := Evaluate([]int{0, 0, 0}, []int{0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 3, c.TN)
	assert.Equal(t, 1.0, m.Accuracy)
	assert.Zero(t, m.Precision)
	assert.Zero(t, m.Recall)
	assert.Zero(t, m.F1)

	m, _, err = Evaluate(nil, nil)
	require.NoError(t, err)
	assert.Zero(t, m.Accuracy)

	_, _, err = Evaluate([]int{1}, nil)
	assert.Error(t, err)
}

func TestMeanImputer(t *testing.T) {
	nan := math.NaN()
	imp, err := FitMeanImputer([][]float64{
		{1, nan, nan},
		{3, 4, nan},
	}, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 4, 0}, imp.Means)

	out, err := imp.Transform([][]float64{{nan, nan, nan}, {5, 6, 7}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{2, 4, 0}, {5, 6, 7}}, out)

	_, err = imp.Transform([][]float64{{1}})
	assert.Error(t, err)
}

func TestQuantileCuts(t *testing.T) {
	assert.Nil(t, quantileCuts([]float64{math.NaN()}, 16))
	assert.Equal(t, []float64{1, 2, 3}, quantileCuts([]float64{3, 1, 2, 2, math.NaN()}, 16))

	col := make([]float64, 1000)
	for i := range col {
		col[i] = float64(i)
	}
	cuts := quantileCuts(col, 10)
	require.Len(t, cuts, 10)
	assert.Equal(t, 999.0, cuts[len(cuts)-1])
	for i := 1; i < len(cuts); i++ {
		assert.Less(t, cuts[i-1], cuts[i])
	}
	assert.Equal(t, uint8(0), binOf(math.NaN(), cuts))
	assert.Equal(t, uint8(9), binOf(5000, cuts))
}

func TestFitLearnsSeparableSignal(t *testing.T) {
	X, y := syntheticData(1500, 1)
	testX, testY := syntheticData(500, 2)

	b, report, err := Fit(X, y, fastParams(), &EvalSet{X: testX, Y: testY})
	require.NoError(t, err)
	require.Len(t, b.Trees, 40)
	require.Len(t, report.EvalLoss, 40)
	require.Len(t, report.TrainLoss, 40)
	assert.Less(t, report.EvalLoss[len(report.EvalLoss)-1], report.EvalLoss[0])
	assert.LessOrEqual(t, b.MaxDepth(), 4)
	require.NoError(t, b.Validate())

	m, _, err := Evaluate(testY, b.PredictBatch(testX))
	require.NoError(t, err)
	assert.Greater(t, m.Accuracy, 0.85)
}

func TestFitDeterministicAcrossWorkers(t *testing.T) {
	X, y := syntheticData(400, 3)
	p := fastParams()
	p.Rounds = 10

	p.Workers = 1
	a, _, err := Fit(X, y, p, nil)
	require.NoError(t, err)
	p.Workers = 8
	b, _, err := Fit(X, y, p, nil)
	require.NoError(t, err)

	for _, row := range X[:50] {
		assert.Equal(t, a.PredictMargin(row), b.PredictMargin(row))
	}
}

func TestFitRejectsBadInput(t *testing.T) {
	p := fastParams()
	_, _, err := Fit(nil, nil, p, nil)
	assert.Error(t, err)

	_, _, err = Fit([][]float64{{1}, {2}}, []int{0, 2}, p, nil)
	assert.Error(t, err)

	_, _, err = Fit([][]float64{{1}, {2, 3}}, []int{0, 1}, p, nil)
	assert.Error(t, err)

	p.Objective = "multi:softmax"
	_, _, err = Fit([][]float64{{1}, {2}}, []int{0, 1}, p, nil)
	assert.Error(t, err)
}

func TestMissingValuesGoLeft(t *testing.T) {
	tree := Tree{Nodes: []Node{
		{Feature: 0, Threshold: 1, Left: 1, Right: 2},
		{Leaf: true, Value: -1},
		{Leaf: true, Value: 1},
	}}
	assert.Equal(t, -1.0, tree.predict([]float64{math.NaN()}))
	assert.Equal(t, -1.0, tree.predict([]float64{1}))
	assert.Equal(t, 1.0, tree.predict([]float64{1.5}))
}

func TestClassifierConfidencePaths(t *testing.T) {
	X, y := syntheticData(300, 4)
	p := fastParams()
	p.Rounds = 5

	b, _, err := Fit(X, y, p, nil)
	require.NoError(t, err)
	c, err := NewClassifier(b)
	require.NoError(t, err)
	assert.IsType(t, &ProbabilisticClassifier{}, c)

	p.Objective = ObjectiveLogitRaw
	raw, _, err := Fit(X, y, p, nil)
	require.NoError(t, err)
	rc, err := NewClassifier(raw)
	require.NoError(t, err)
	assert.IsType(t, &MarginClassifier{}, rc)

	for _, row := range X[:20] {
		for _, cl := range []Classifier{c, rc} {
			conf := cl.Confidence(row)
			assert.GreaterOrEqual(t, conf, 0.0)
			assert.LessOrEqual(t, conf, 1.0)
			assert.Equal(t, conf > 0.5, cl.Predict(row) == 1)
		}
	}

	_, err = NewClassifier(&Booster{Objective: "reg:squarederror", NumFeatures: 1})
	assert.Error(t, err)
}

func TestBundleValidate(t *testing.T) {
	fs, err := models.NewFeatureSet([]string{"a", "b"})
	require.NoError(t, err)
	model := &Booster{Objective: ObjectiveLogistic, NumFeatures: 2, Trees: []Tree{{Nodes: []Node{{Leaf: true}}}}}
	b := &Bundle{
		FormatVersion: BundleFormatVersion,
		Model:         model,
		Imputer:       &MeanImputer{Means: []float64{0, 0}},
		Features:      fs,
	}
	require.NoError(t, b.Validate())
	assert.Equal(t, 2, b.Summary().FeatureCount)
	assert.Equal(t, "binary:logistic", b.Summary().Objective)

	b.Imputer = &MeanImputer{Means: []float64{0}}
	assert.Error(t, b.Validate())

	b.Imputer = &MeanImputer{Means: []float64{0, 0}}
	b.FormatVersion = 99
	assert.Error(t, b.Validate())
}
