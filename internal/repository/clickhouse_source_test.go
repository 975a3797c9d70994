package repository

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNumericCHType(t *testing.T) {
	for _, name := range []string{"Int32", "UInt8", "Float64", "Nullable(Float32)", "Decimal(10, 2)", "LowCardinality(Nullable(Int64))", "Bool"} {
		assert.True(t, numericCHType(name), name)
	}
	for _, name := range []string{"String", "Nullable(String)", "DateTime", "LowCardinality(String)", "UUID"} {
		assert.False(t, numericCHType(name), name)
	}
}

func TestCHValueConversion(t *testing.T) {
	f := 2.5
	var nilPtr *float64
	assert.Equal(t, 2.5, toFloat(&f))
	assert.Equal(t, 7.0, toFloat(int32(7)))
	assert.Equal(t, 9.0, toFloat(uint64(9)))
	assert.Equal(t, 1.0, toFloat(true))
	assert.True(t, math.IsNaN(toFloat(nilPtr)))
	assert.True(t, math.IsNaN(toFloat(nil)))

	s := "x"
	assert.Equal(t, "x", toText(&s))
	assert.Equal(t, "", toText(nil))
	assert.Equal(t, "12", toText(12))
}
