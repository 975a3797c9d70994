package ml

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
)

// Objective names the learning objective a booster was trained with.
type Objective string

const (
	// ObjectiveLogistic models report probabilities.
	ObjectiveLogistic Objective = "binary:logistic"
	// ObjectiveLogitRaw models report raw margins; confidence is derived
	// through the logistic function.
	ObjectiveLogitRaw Objective = "binary:logitraw"
)

// Params configures gradient-boosted training.
type Params struct {
	Rounds          int
	MaxDepth        int
	LearningRate    float64
	Subsample       float64
	ColsampleByTree float64
	Lambda          float64
	MinChildWeight  float64
	MaxBins         int
	Seed            int64
	Workers         int
	Objective       Objective
	ScalePosWeight  float64
}

// DefaultParams mirrors the production training configuration.
func DefaultParams() Params {
	return Params{
		Rounds:          200,
		MaxDepth:        6,
		LearningRate:    0.1,
		Subsample:       0.9,
		ColsampleByTree: 0.9,
		Lambda:          1,
		MinChildWeight:  1,
		MaxBins:         maxHistogramBins,
		Seed:            42,
		Objective:       ObjectiveLogistic,
		ScalePosWeight:  1,
	}
}

func (p Params) validate() error {
	switch {
	case p.Rounds < 1:
		return fmt.Errorf("rounds must be >= 1, got %d", p.Rounds)
	case p.MaxDepth < 1:
		return fmt.Errorf("max depth must be >= 1, got %d", p.MaxDepth)
	case p.LearningRate <= 0:
		return fmt.Errorf("learning rate must be > 0, got %g", p.LearningRate)
	case p.Subsample <= 0 || p.Subsample > 1:
		return fmt.Errorf("subsample must be in (0, 1], got %g", p.Subsample)
	case p.ColsampleByTree <= 0 || p.ColsampleByTree > 1:
		return fmt.Errorf("colsample_bytree must be in (0, 1], got %g", p.ColsampleByTree)
	case p.Lambda < 0:
		return fmt.Errorf("lambda must be >= 0, got %g", p.Lambda)
	case p.ScalePosWeight <= 0:
		return fmt.Errorf("scale_pos_weight must be > 0, got %g", p.ScalePosWeight)
	}
	switch p.Objective {
	case ObjectiveLogistic, ObjectiveLogitRaw:
	default:
		return fmt.Errorf("unsupported objective %q", p.Objective)
	}
	return nil
}

// Booster is a trained additive ensemble of regression trees over the
// logistic loss.
type Booster struct {
	Objective   Objective
	NumFeatures int
	BaseMargin  float64
	Trees       []Tree
}

// EvalSet is held-out data scored after every round.
type EvalSet struct {
	X [][]float64
	Y []int
}

// FitReport records per-round log loss on the training and eval sets.
// EvalLoss is empty when no eval set was supplied.
type FitReport struct {
	TrainLoss []float64
	EvalLoss  []float64
}

// Fit trains a booster on X (rows of NumFeatures values, NaN allowed) and
// binary labels y. Training is deterministic for a fixed Params.Seed.
func Fit(X [][]float64, y []int, params Params, eval *EvalSet) (*Booster, *FitReport, error) {
	if err := params.validate(); err != nil {
		return nil, nil, fmt.Errorf("fit: %w", err)
	}
	n := len(X)
	if n == 0 {
		return nil, nil, fmt.Errorf("fit: empty training matrix")
	}
	if len(y) != n {
		return nil, nil, fmt.Errorf("fit: %d rows vs %d labels", n, len(y))
	}
	nf := len(X[0])
	if nf == 0 {
		return nil, nil, fmt.Errorf("fit: zero features")
	}
	if err := checkMatrix(X, y, nf); err != nil {
		return nil, nil, fmt.Errorf("fit: %w", err)
	}
	if eval != nil {
		if len(eval.X) != len(eval.Y) {
			return nil, nil, fmt.Errorf("fit: eval set has %d rows vs %d labels", len(eval.X), len(eval.Y))
		}
		if err := checkMatrix(eval.X, eval.Y, nf); err != nil {
			return nil, nil, fmt.Errorf("fit: eval set: %w", err)
		}
	}

	workers := params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	data := newBinnedMatrix(X, nf, params.MaxBins)
	rng := rand.New(rand.NewSource(params.Seed))
	booster := &Booster{Objective: params.Objective, NumFeatures: nf}

	margin := make([]float64, n)
	grad := make([]float64, n)
	hess := make([]float64, n)
	var evalMargin []float64
	if eval != nil {
		evalMargin = make([]float64, len(eval.X))
	}
	report := &FitReport{}
	weights := make([]float64, n)
	for i, label := range y {
		weights[i] = 1
		if label == 1 {
			weights[i] = params.ScalePosWeight
		}
	}

	for round := 0; round < params.Rounds; round++ {
		for i := range margin {
			p := sigmoid(margin[i])
			grad[i] = (p - float64(y[i])) * weights[i]
			hess[i] = math.Max(p*(1-p)*weights[i], 1e-16)
		}

		builder := &treeBuilder{
			data:    data,
			grad:    grad,
			hess:    hess,
			cols:    sampleColumns(rng, nf, params.ColsampleByTree),
			params:  params,
			workers: workers,
		}
		tree := builder.build(sampleRows(rng, n, params.Subsample))
		booster.Trees = append(booster.Trees, tree)

		for i, row := range X {
			margin[i] += tree.predict(row)
		}
		report.TrainLoss = append(report.TrainLoss, logLoss(margin, y))
		if eval != nil {
			for i, row := range eval.X {
				evalMargin[i] += tree.predict(row)
			}
			report.EvalLoss = append(report.EvalLoss, logLoss(evalMargin, eval.Y))
		}
	}
	return booster, report, nil
}

func checkMatrix(X [][]float64, y []int, nf int) error {
	for i, row := range X {
		if len(row) != nf {
			return fmt.Errorf("row %d has %d values, want %d", i, len(row), nf)
		}
	}
	for i, label := range y {
		if label != 0 && label != 1 {
			return fmt.Errorf("label %d at row %d is not binary", label, i)
		}
	}
	return nil
}

func sampleRows(rng *rand.Rand, n int, rate float64) []int {
	rows := make([]int, 0, n)
	if rate >= 1 {
		for i := 0; i < n; i++ {
			rows = append(rows, i)
		}
		return rows
	}
	for i := 0; i < n; i++ {
		if rng.Float64() < rate {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		for i := 0; i < n; i++ {
			rows = append(rows, i)
		}
	}
	return rows
}

func sampleColumns(rng *rand.Rand, nf int, rate float64) []int {
	k := int(math.Floor(rate * float64(nf)))
	if k < 1 {
		k = 1
	}
	if k >= nf {
		cols := make([]int, nf)
		for i := range cols {
			cols[i] = i
		}
		return cols
	}
	cols := rng.Perm(nf)[:k]
	sort.Ints(cols)
	return cols
}

// PredictMargin returns the raw additive score for one row.
func (b *Booster) PredictMargin(row []float64) float64 {
	m := b.BaseMargin
	for i := range b.Trees {
		m += b.Trees[i].predict(row)
	}
	return m
}

// PredictProba returns P(label = 1) for one row.
func (b *Booster) PredictProba(row []float64) float64 {
	return sigmoid(b.PredictMargin(row))
}

// Predict returns the hard label for one row.
func (b *Booster) Predict(row []float64) int {
	if b.PredictMargin(row) > 0 {
		return 1
	}
	return 0
}

// PredictBatch labels every row of X.
func (b *Booster) PredictBatch(X [][]float64) []int {
	out := make([]int, len(X))
	for i, row := range X {
		out[i] = b.Predict(row)
	}
	return out
}

// Validate checks structural consistency after decoding.
func (b *Booster) Validate() error {
	if b == nil {
		return fmt.Errorf("booster is nil")
	}
	if b.NumFeatures < 1 {
		return fmt.Errorf("booster has %d features", b.NumFeatures)
	}
	for ti, t := range b.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", ti)
		}
		for ni, n := range t.Nodes {
			if n.Leaf {
				continue
			}
			if n.Feature < 0 || n.Feature >= b.NumFeatures {
				return fmt.Errorf("tree %d node %d splits on feature %d", ti, ni, n.Feature)
			}
			if n.Left <= ni || n.Right <= ni || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d has invalid children", ti, ni)
			}
		}
	}
	return nil
}

// MaxDepth reports the deepest tree in the ensemble.
func (b *Booster) MaxDepth() int {
	d := 0
	for i := range b.Trees {
		if td := b.Trees[i].depth(); td > d {
			d = td
		}
	}
	return d
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// logLoss is the unweighted mean binary cross-entropy of margins.
func logLoss(margin []float64, y []int) float64 {
	if len(margin) == 0 {
		return 0
	}
	const eps = 1e-15
	var sum float64
	for i, m := range margin {
		p := math.Min(math.Max(sigmoid(m), eps), 1-eps)
		if y[i] == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(len(margin))
}
