package features

import (
	"math"

	"LineGuard/internal/domain/errs"
	"LineGuard/internal/domain/models"
)

// AlignDataset builds an inference matrix from ds in the frozen feature
// order. Unlike Matrix it tolerates drift: a feature column absent from ds
// is all-missing, and text columns are coerced cell by cell.
func AlignDataset(ds *models.Dataset, fs models.FeatureSet) ([][]float64, error) {
	n, w := ds.Len(), fs.Len()
	flat := make([]float64, n*w)
	for j, name := range fs.Names {
		c, ok := ds.Column(name)
		for i := 0; i < n; i++ {
			v := math.NaN()
			switch {
			case !ok:
			case c.Numeric():
				v = c.Numbers[i]
			default:
				f, err := ToFloat(c.Text[i])
				if err != nil {
					return nil, errs.Wrap(errs.KindInternal, err, "column \""+name+"\"")
				}
				v = f
			}
			flat[i*w+j] = v
		}
	}
	X := make([][]float64, n)
	for i := range X {
		X[i] = flat[i*w : (i+1)*w : (i+1)*w]
	}
	return X, nil
}
