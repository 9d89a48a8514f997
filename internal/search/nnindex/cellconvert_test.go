package nnindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertCellType_NoOpWhenTypesMatch(t *testing.T) {
	in := Tensor{Cells: []float64{1.5}, CellType: CellFloat64}
	out := convertCellType(in, CellFloat64)
	assert.Equal(t, in.Cells, out.Cells)
}

func TestConvertCellType_Int8Clamps(t *testing.T) {
	out := convertCellType(Tensor{Cells: []float64{500, -500}, CellType: CellFloat64}, CellInt8)
	assert.Equal(t, []float64{127, -128}, out.Cells)
	assert.Equal(t, CellInt8, out.CellType)
}

func TestConvertCellType_BFloat16LosesPrecisionRelativeToFloat64(t *testing.T) {
	v := 1.0 / 3.0
	out := convertCellType(Tensor{Cells: []float64{v}, CellType: CellFloat64}, CellBFloat16)
	assert.NotEqual(t, v, out.Cells[0])
}
