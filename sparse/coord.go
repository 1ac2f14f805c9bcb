// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sparse implements the coordinate (triplet) matrix format used for
// every Jacobian exchanged between grey-box models, their bindings and the
// aggregated problem.
//
// A coordinate matrix stores three parallel sequences: row indices, column
// indices and values. Duplicate (row, col) pairs are permitted and their
// values are summed by every consumer in this module.
package sparse

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrShape reports a triplet whose index lies outside the declared shape,
// or whose parallel sequences differ in length.
var ErrShape = errors.New("sparse: shape mismatch")

// Coord holds a sequence of (row, col, value) triplets without a shape.
// The zero value is an empty, ready to use buffer.
type Coord struct {
	Row []int
	Col []int
	Val []float64
}

// Len returns the number of stored triplets.
func (c *Coord) Len() int {
	return len(c.Val)
}

// Append adds a single triplet.
func (c *Coord) Append(i, j int, v float64) {
	c.Row = append(c.Row, i)
	c.Col = append(c.Col, j)
	c.Val = append(c.Val, v)
}

// Extend appends every triplet of src shifted by (rowOff, colOff).
func (c *Coord) Extend(src *Coord, rowOff, colOff int) {
	for k, v := range src.Val {
		c.Append(src.Row[k]+rowOff, src.Col[k]+colOff, v)
	}
}

// ExtendScaled appends every triplet of src shifted by (rowOff, colOff)
// with values multiplied by alpha.
func (c *Coord) ExtendScaled(src *Coord, rowOff, colOff int, alpha float64) {
	for k, v := range src.Val {
		c.Append(src.Row[k]+rowOff, src.Col[k]+colOff, alpha*v)
	}
}

// Reset truncates the buffer while keeping its capacity.
func (c *Coord) Reset() {
	c.Row, c.Col, c.Val = c.Row[:0], c.Col[:0], c.Val[:0]
}

// Matrix is a coordinate matrix with an explicit shape.
type Matrix struct {
	Rows, Cols int
	Coord
}

// New returns an empty rows×cols matrix with room for nnz triplets.
func New(rows, cols, nnz int) *Matrix {
	return &Matrix{
		Rows: rows,
		Cols: cols,
		Coord: Coord{
			Row: make([]int, 0, nnz),
			Col: make([]int, 0, nnz),
			Val: make([]float64, 0, nnz),
		},
	}
}

// FromTriplets builds a rows×cols matrix from parallel sequences.
// The sequences are copied and checked.
func FromTriplets(rows, cols int, row, col []int, val []float64) (*Matrix, error) {
	if len(row) != len(val) || len(col) != len(val) {
		return nil, fmt.Errorf("%w: %d rows, %d cols, %d values", ErrShape, len(row), len(col), len(val))
	}
	m := New(rows, cols, len(val))
	m.Row = append(m.Row, row...)
	m.Col = append(m.Col, col...)
	m.Val = append(m.Val, val...)
	return m, m.Check()
}

// Check verifies the sequences are parallel and every index lies in
// [0, Rows) × [0, Cols).
func (m *Matrix) Check() error {
	switch {
	case m.Rows < 0 || m.Cols < 0:
		return fmt.Errorf("%w: negative dimensions %d×%d", ErrShape, m.Rows, m.Cols)
	case len(m.Row) != len(m.Val) || len(m.Col) != len(m.Val):
		return fmt.Errorf("%w: %d rows, %d cols, %d values", ErrShape, len(m.Row), len(m.Col), len(m.Val))
	}
	for k := range m.Val {
		i, j := m.Row[k], m.Col[k]
		if i < 0 || i >= m.Rows || j < 0 || j >= m.Cols {
			return fmt.Errorf("%w: entry %d at (%d,%d) outside %d×%d", ErrShape, k, i, j, m.Rows, m.Cols)
		}
	}
	return nil
}

// Dense expands the matrix, summing duplicates.
func (m *Matrix) Dense() *mat.Dense {
	if m.Rows == 0 || m.Cols == 0 {
		return &mat.Dense{}
	}
	d := mat.NewDense(m.Rows, m.Cols, nil)
	for k, v := range m.Val {
		i, j := m.Row[k], m.Col[k]
		d.Set(i, j, d.At(i, j)+v)
	}
	return d
}

// MulVec computes y = A·x. len(x) must be Cols and len(y) must be Rows.
func (m *Matrix) MulVec(y, x []float64) {
	if len(x) != m.Cols || len(y) != m.Rows {
		panic("sparse: bad vector length")
	}
	clear(y)
	for k, v := range m.Val {
		y[m.Row[k]] += v * x[m.Col[k]]
	}
}

// MulTransVec computes y = Aᵀ·x. len(x) must be Rows and len(y) must be Cols.
func (m *Matrix) MulTransVec(y, x []float64) {
	if len(x) != m.Rows || len(y) != m.Cols {
		panic("sparse: bad vector length")
	}
	clear(y)
	for k, v := range m.Val {
		y[m.Col[k]] += v * x[m.Row[k]]
	}
}

// RowCount returns the number of stored triplets in each row.
func (m *Matrix) RowCount() []int {
	n := make([]int, m.Rows)
	for _, i := range m.Row {
		n[i]++
	}
	return n
}
