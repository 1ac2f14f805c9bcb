// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sparse

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestExtendShiftsEveryTriplet(t *testing.T) {
	local, err := FromTriplets(2, 3, []int{0, 0, 1}, []int{0, 2, 1}, []float64{1, -2, 3})
	require.NoError(t, err)

	var global Coord
	global.Append(0, 0, 9)
	global.Extend(&local.Coord, 4, 10)

	want := Coord{
		Row: []int{0, 4, 4, 5},
		Col: []int{0, 10, 12, 11},
		Val: []float64{9, 1, -2, 3},
	}
	if diff := cmp.Diff(want, global); diff != "" {
		t.Fatalf("Extend mismatch (-want +got):\n%s", diff)
	}

	global.Reset()
	global.ExtendScaled(&local.Coord, 1, 1, -1)
	assert.Equal(t, []float64{-1, 2, -3}, global.Val)
	assert.Equal(t, []int{1, 1, 2}, global.Row)
}

func TestCheckRejectsOutOfShape(t *testing.T) {
	_, err := FromTriplets(1, 3, []int{0, 1}, []int{0, 0}, []float64{1, 1})
	require.ErrorIs(t, err, ErrShape)

	_, err = FromTriplets(1, 3, []int{0}, []int{3}, []float64{1})
	require.ErrorIs(t, err, ErrShape)

	_, err = FromTriplets(1, 3, []int{0, 0}, []int{0}, []float64{1, 1})
	require.ErrorIs(t, err, ErrShape)

	m := New(-1, 2, 0)
	require.ErrorIs(t, m.Check(), ErrShape)
}

func TestDenseSumsDuplicates(t *testing.T) {
	m, err := FromTriplets(2, 2, []int{0, 0, 1, 0}, []int{0, 1, 1, 0}, []float64{1, 2, 3, 4})
	require.NoError(t, err)

	want := mat.NewDense(2, 2, []float64{5, 2, 0, 3})
	assert.True(t, mat.Equal(want, m.Dense()))
	assert.Equal(t, []int{3, 1}, m.RowCount())
}

func TestMulVec(t *testing.T) {
	m, err := FromTriplets(2, 3, []int{0, 0, 1, 1}, []int{0, 2, 1, 1}, []float64{1, 2, 3, 1})
	require.NoError(t, err)

	y := make([]float64, 2)
	m.MulVec(y, []float64{1, 2, 3})
	assert.Equal(t, []float64{7, 8}, y)

	z := make([]float64, 3)
	m.MulTransVec(z, []float64{1, 2})
	assert.Equal(t, []float64{1, 8, 2}, z)

	assert.Panics(t, func() { m.MulVec(y, []float64{1}) })
}

func TestEmptyMatrix(t *testing.T) {
	m := New(0, 3, 0)
	require.NoError(t, m.Check())
	assert.Zero(t, m.Len())
	assert.True(t, m.Dense().IsEmpty())
}
