package ml

import (
	"math"
	"sort"
)

const maxHistogramBins = 256

// quantileCuts returns ascending, distinct upper bin edges for one column.
// The last cut is always the column maximum, so every observed value maps to
// a bin. NaN values are ignored.
func quantileCuts(col []float64, maxBins int) []float64 {
	if maxBins <= 0 || maxBins > maxHistogramBins {
		maxBins = maxHistogramBins
	}
	vals := make([]float64, 0, len(col))
	for _, v := range col {
		if !math.IsNaN(v) {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return nil
	}
	sort.Float64s(vals)

	distinct := vals[:0:0]
	for i, v := range vals {
		if i == 0 || v != vals[i-1] {
			distinct = append(distinct, v)
		}
		if len(distinct) > maxBins {
			break
		}
	}
	if len(distinct) <= maxBins {
		return distinct
	}

	cuts := make([]float64, 0, maxBins)
	for i := 1; i <= maxBins; i++ {
		v := vals[i*len(vals)/maxBins-1]
		if len(cuts) == 0 || v > cuts[len(cuts)-1] {
			cuts = append(cuts, v)
		}
	}
	return cuts
}

// binOf maps x to the first bin whose edge is >= x. NaN lands in bin 0,
// which always sits on the left side of a split.
func binOf(x float64, cuts []float64) uint8 {
	if len(cuts) == 0 || math.IsNaN(x) {
		return 0
	}
	k := sort.SearchFloat64s(cuts, x)
	if k >= len(cuts) {
		k = len(cuts) - 1
	}
	return uint8(k)
}

// binnedMatrix is the column-major quantized training matrix.
type binnedMatrix struct {
	cuts [][]float64
	bins [][]uint8
}

func newBinnedMatrix(X [][]float64, numFeatures, maxBins int) *binnedMatrix {
	m := &binnedMatrix{
		cuts: make([][]float64, numFeatures),
		bins: make([][]uint8, numFeatures),
	}
	col := make([]float64, len(X))
	for j := 0; j < numFeatures; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		cuts := quantileCuts(col, maxBins)
		b := make([]uint8, len(X))
		for i, v := range col {
			b[i] = binOf(v, cuts)
		}
		m.cuts[j] = cuts
		m.bins[j] = b
	}
	return m
}
