package features

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LineGuard/internal/domain/errs"
	"LineGuard/internal/domain/models"
)

func num(name string, vals ...float64) models.Column {
	return models.Column{Name: name, Kind: models.ColumnNumeric, Numbers: vals}
}

func text(name string, vals ...string) models.Column {
	return models.Column{Name: name, Kind: models.ColumnText, Text: vals}
}

func TestSelectExcludesReservedColumnsAnywhere(t *testing.T) {
	orders := [][]models.Column{
		{num("Id", 1, 2), num("a", 1, 2), num(models.LabelColumn, 0, 1), num("b", 3, 4)},
		{num("a", 1, 2), num(models.LabelColumn, 0, 1), num("b", 3, 4), num("Id", 1, 2)},
		{num(models.LabelColumn, 0, 1), num("a", 1, 2), num("Id", 1, 2), num("b", 3, 4)},
	}
	for _, cols := range orders {
		fs, err := Select(&models.Dataset{Columns: cols, N: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, fs.Names)
	}
}

func TestSelectOnlyFirstIDCandidate(t *testing.T) {
	ds := &models.Dataset{Columns: []models.Column{num("id", 1), num("ID", 5), num("x", 2), num(models.LabelColumn, 1)}, N: 1}
	fs, err := Select(ds)
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "x"}, fs.Names)
}

func TestSelectSkipsTextAndFailsWhenEmpty(t *testing.T) {
	ds := &models.Dataset{Columns: []models.Column{text("name", "a"), num("Id", 1), num(models.LabelColumn, 1)}, N: 1}
	_, err := Select(ds)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindEmptyFeatureSet))
}

func TestMatrixFollowsFeatureOrder(t *testing.T) {
	ds := &models.Dataset{Columns: []models.Column{num("a", 1, 2), num("b", 3, math.NaN())}, N: 2}
	fs, err := models.NewFeatureSet([]string{"b", "a"})
	require.NoError(t, err)

	X, err := Matrix(ds, fs)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1}, X[0])
	assert.True(t, math.IsNaN(X[1][0]))
	assert.Equal(t, 2.0, X[1][1])

	missing, _ := models.NewFeatureSet([]string{"c"})
	_, err = Matrix(ds, missing)
	assert.True(t, errs.Is(err, errs.KindSchema))
}

func TestLabels(t *testing.T) {
	y, err := Labels(&models.Dataset{Columns: []models.Column{num(models.LabelColumn, 0, 1, 1)}, N: 3})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 1}, y)

	_, err = Labels(&models.Dataset{Columns: []models.Column{num(models.LabelColumn, 0, 2)}, N: 2})
	assert.True(t, errs.Is(err, errs.KindSchema))

	_, err = Labels(&models.Dataset{Columns: []models.Column{num(models.LabelColumn, math.NaN())}, N: 1})
	assert.True(t, errs.Is(err, errs.KindSchema))
}

func TestMatrixFromRowsAlignsColumns(t *testing.T) {
	fs, err := models.NewFeatureSet([]string{"a", "b", "c"})
	require.NoError(t, err)

	rows := []map[string]interface{}{
		{"c": 3.0, "a": 1.0, "b": 2.0, "extra": "ignored"},
		{"a": "4.5", "b": nil},
		{"b": true, "c": json.Number("7")},
	}
	X, err := MatrixFromRows(rows, fs)
	require.NoError(t, err)
	require.Len(t, X, 3)
	assert.Equal(t, []float64{1, 2, 3}, X[0])
	assert.Equal(t, 4.5, X[1][0])
	assert.True(t, math.IsNaN(X[1][1]))
	assert.True(t, math.IsNaN(X[1][2]))
	assert.True(t, math.IsNaN(X[2][0]))
	assert.Equal(t, 1.0, X[2][1])
	assert.Equal(t, 7.0, X[2][2])
}

func TestMatrixFromRowsRejectsNonNumeric(t *testing.T) {
	fs, _ := models.NewFeatureSet([]string{"a"})
	_, err := MatrixFromRows([]map[string]interface{}{{"a": "abc"}}, fs)
	require.Error(t, err)
	assert.Equal(t, errs.KindInternal, errs.KindOf(err))
	assert.Contains(t, err.Error(), `"a"`)

	_, err = MatrixFromRows([]map[string]interface{}{{"a": []interface{}{1}}}, fs)
	assert.Error(t, err)
}

func TestAlignDatasetToleratesDrift(t *testing.T) {
	ds := &models.Dataset{Columns: []models.Column{text("b", "2", ""), num("a", 1, 3)}, N: 2}
	fs, _ := models.NewFeatureSet([]string{"a", "b", "gone"})

	X, err := AlignDataset(ds, fs)
	require.NoError(t, err)
	assert.Equal(t, 1.0, X[0][0])
	assert.Equal(t, 2.0, X[0][1])
	assert.True(t, math.IsNaN(X[0][2]))
	assert.True(t, math.IsNaN(X[1][1]))

	bad := &models.Dataset{Columns: []models.Column{text("a", "x")}, N: 1}
	_, err = AlignDataset(bad, fs)
	assert.Error(t, err)
}
