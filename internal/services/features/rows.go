package features

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"LineGuard/internal/domain/errs"
	"LineGuard/internal/domain/models"
)

// MatrixFromRows aligns free-form records to the frozen feature order.
// Absent keys become NaN and unknown keys are ignored.
func MatrixFromRows(rows []map[string]interface{}, fs models.FeatureSet) ([][]float64, error) {
	X := make([][]float64, len(rows))
	for i, rec := range rows {
		row := make([]float64, fs.Len())
		for j, name := range fs.Names {
			raw, ok := rec[name]
			if !ok {
				row[j] = math.NaN()
				continue
			}
			v, err := ToFloat(raw)
			if err != nil {
				return nil, errs.Wrap(errs.KindInternal, err, "row "+strconv.Itoa(i)+": column \""+name+"\"")
			}
			row[j] = v
		}
		X[i] = row
	}
	return X, nil
}

// ToFloat coerces a decoded JSON value to a float. nil and blank strings
// are missing (NaN); booleans map to 1 and 0.
func ToFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return math.NaN(), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errs.BadInput("cannot convert %q to a number", t)
		}
		return f, nil
	default:
		return 0, errs.BadInput("cannot convert %T to a number", v)
	}
}
