package repository

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LineGuard/internal/domain/errs"
	"LineGuard/internal/domain/models"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestCSVSourceTypesColumns(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "data.csv", "\ufeffId,f1,cat,Response\n1,0.5,a,0\n2,,b,1\n3,NaN,c,0\n")

	ds, err := NewCSVSource(p).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, []string{"Id", "f1", "cat", models.LabelColumn}, ds.ColumnNames())

	f1, ok := ds.Column("f1")
	require.True(t, ok)
	assert.True(t, f1.Numeric())
	assert.Equal(t, 0.5, f1.Numbers[0])
	assert.True(t, math.IsNaN(f1.Numbers[1]))
	assert.True(t, math.IsNaN(f1.Numbers[2]))

	cat, _ := ds.Column("cat")
	assert.False(t, cat.Numeric())
	assert.Equal(t, []string{"a", "b", "c"}, cat.Text)
}

func TestCSVSourceRowCap(t *testing.T) {
	var b strings.Builder
	b.WriteString("x,Response\n")
	for i := 0; i < 50; i++ {
		b.WriteString("1,0\n")
	}
	p := writeFile(t, t.TempDir(), "data.csv", b.String())

	ds, err := NewCSVSource(p, WithMaxRows(10)).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, ds.Len())

	ds, err = NewCSVSource(p, WithMaxRows(0)).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50, ds.Len())
}

func TestCSVSourceErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := NewCSVSource(filepath.Join(dir, "missing.csv")).Load(context.Background())
	assert.True(t, errs.Is(err, errs.KindDatasetNotFound))

	ragged := writeFile(t, dir, "ragged.csv", "a,b\n1,2\n3\n")
	_, err = NewCSVSource(ragged).Load(context.Background())
	assert.True(t, errs.Is(err, errs.KindSchema))

	empty := writeFile(t, dir, "empty.csv", "")
	_, err = NewCSVSource(empty).Load(context.Background())
	assert.True(t, errs.Is(err, errs.KindSchema))

	dup := writeFile(t, dir, "dup.csv", "a,a\n1,2\n")
	_, err = NewCSVSource(dup).Load(context.Background())
	assert.True(t, errs.Is(err, errs.KindSchema))
}

func TestCSVSourceReplace(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "data.csv", "x,Response\n1,0\n")
	src := NewCSVSource(p)

	err := src.Replace(context.Background(), strings.NewReader("x,y\n1,2\n"))
	assert.True(t, errs.Is(err, errs.KindSchema))
	ds, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())

	require.NoError(t, src.Replace(context.Background(), strings.NewReader("x,Response\n1,0\n2,1\n3,1\n")))
	ds, err = src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
