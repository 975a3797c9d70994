package features

import (
	"math"

	"LineGuard/internal/domain/errs"
	"LineGuard/internal/domain/models"
)

// IDColumn returns the first identifier spelling present in ds, or "".
func IDColumn(ds *models.Dataset) string {
	for _, c := range models.IDCandidates {
		if _, ok := ds.Column(c); ok {
			return c
		}
	}
	return ""
}

// Select lists the numeric columns of ds in natural order, excluding the
// label, the synthetic timestamp and the identifier column.
func Select(ds *models.Dataset) (models.FeatureSet, error) {
	exclude := map[string]struct{}{
		models.LabelColumn:     {},
		models.TimestampColumn: {},
	}
	if id := IDColumn(ds); id != "" {
		exclude[id] = struct{}{}
	}

	names := make([]string, 0, len(ds.Columns))
	for _, c := range ds.Columns {
		if !c.Numeric() {
			continue
		}
		if _, skip := exclude[c.Name]; skip {
			continue
		}
		names = append(names, c.Name)
	}
	return models.NewFeatureSet(names)
}

// Matrix builds a row-major matrix of ds in the feature set's order. Missing
// cells stay NaN.
func Matrix(ds *models.Dataset, fs models.FeatureSet) ([][]float64, error) {
	cols := make([][]float64, fs.Len())
	for j, name := range fs.Names {
		c, ok := ds.Column(name)
		if !ok {
			return nil, errs.Schema("feature column %q is missing", name)
		}
		if !c.Numeric() {
			return nil, errs.Schema("feature column %q is not numeric", name)
		}
		cols[j] = c.Numbers
	}

	X := make([][]float64, ds.Len())
	flat := make([]float64, ds.Len()*fs.Len())
	for i := range X {
		row := flat[i*fs.Len() : (i+1)*fs.Len() : (i+1)*fs.Len()]
		for j, col := range cols {
			row[j] = col[i]
		}
		X[i] = row
	}
	return X, nil
}

// Labels extracts the binary label column. Any value other than 0 or 1,
// including a missing one, is a schema error.
func Labels(ds *models.Dataset) ([]int, error) {
	c, ok := ds.Column(models.LabelColumn)
	if !ok {
		return nil, errs.Schema("dataset is missing required column %q", models.LabelColumn)
	}
	if !c.Numeric() {
		return nil, errs.Schema("label column %q is not numeric", models.LabelColumn)
	}
	y := make([]int, len(c.Numbers))
	for i, v := range c.Numbers {
		switch {
		case v == 0:
			y[i] = 0
		case v == 1:
			y[i] = 1
		case math.IsNaN(v):
			return nil, errs.Schema("label is missing at row %d", i)
		default:
			return nil, errs.Schema("label %v at row %d is not 0 or 1", v, i)
		}
	}
	return y, nil
}
