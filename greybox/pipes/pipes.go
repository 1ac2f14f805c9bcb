// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pipes provides grey-box models of a pipe sequence with a quadratic
// pressure drop, used to exercise every way a model can be published.
//
// The physical system is Pin → P1 → P2 → P3 → Pout, where each of the four
// segments loses 𝐜𝐅² of pressure. The models differ only in which pressures
// are inputs, which are outputs and which are held by equality residuals.
package pipes

import (
	"github.com/curioloop/greybox/greybox"
	"github.com/curioloop/greybox/sparse"
)

// SingleOutput computes the outlet pressure directly.
//
//	𝐮 = [Pin, c, F]
//	𝒉ₒ(𝐮) = [Pin - 4cF²]
type SingleOutput struct {
	greybox.Inputs
	greybox.NoEqualities
}

func NewSingleOutput() *SingleOutput {
	return &SingleOutput{Inputs: greybox.NewInputs("Pin", "c", "F")}
}

func (*SingleOutput) OutputNames() []string { return []string{"Pout"} }

func (m *SingleOutput) EvaluateOutputs() ([]float64, error) {
	u, err := m.Values()
	if err != nil {
		return nil, err
	}
	pin, c, f := u[0], u[1], u[2]
	return []float64{pin - 4*c*f*f}, nil
}

func (m *SingleOutput) EvaluateJacobianOutputs() (*sparse.Matrix, error) {
	u, err := m.Values()
	if err != nil {
		return nil, err
	}
	c, f := u[1], u[2]
	return sparse.FromTriplets(1, 3,
		[]int{0, 0, 0},
		[]int{0, 1, 2},
		[]float64{1, -4 * f * f, -4 * c * 2 * f})
}

// SingleEquality treats the outlet pressure as an input converged by the solver.
//
//	𝐮 = [Pin, c, F, Pout]
//	𝒉ₑ(𝐮) = [Pout - (Pin - 4cF²)]
type SingleEquality struct {
	greybox.Inputs
	greybox.NoOutputs
}

func NewSingleEquality() *SingleEquality {
	return &SingleEquality{Inputs: greybox.NewInputs("Pin", "c", "F", "Pout")}
}

func (*SingleEquality) EqualityConstraintNames() []string { return []string{"pdrop"} }

func (m *SingleEquality) EvaluateEqualityConstraints() ([]float64, error) {
	u, err := m.Values()
	if err != nil {
		return nil, err
	}
	pin, c, f, pout := u[0], u[1], u[2], u[3]
	return []float64{pout - (pin - 4*c*f*f)}, nil
}

func (m *SingleEquality) EvaluateJacobianEqualityConstraints() (*sparse.Matrix, error) {
	u, err := m.Values()
	if err != nil {
		return nil, err
	}
	c, f := u[1], u[2]
	return sparse.FromTriplets(1, 4,
		[]int{0, 0, 0, 0},
		[]int{0, 1, 2, 3},
		[]float64{-1, 4 * f * f, 4 * 2 * c * f, 1})
}

// TwoOutputs computes the pressure at node 2 and at the outlet.
//
//	𝐮 = [Pin, c, F]
//	𝒉ₒ(𝐮) = [Pin - 2cF², Pin - 4cF²]
type TwoOutputs struct {
	greybox.Inputs
	greybox.NoEqualities
}

func NewTwoOutputs() *TwoOutputs {
	return &TwoOutputs{Inputs: greybox.NewInputs("Pin", "c", "F")}
}

func (*TwoOutputs) OutputNames() []string { return []string{"P2", "Pout"} }

func (m *TwoOutputs) EvaluateOutputs() ([]float64, error) {
	u, err := m.Values()
	if err != nil {
		return nil, err
	}
	pin, c, f := u[0], u[1], u[2]
	return []float64{pin - 2*c*f*f, pin - 4*c*f*f}, nil
}

func (m *TwoOutputs) EvaluateJacobianOutputs() (*sparse.Matrix, error) {
	u, err := m.Values()
	if err != nil {
		return nil, err
	}
	c, f := u[1], u[2]
	return sparse.FromTriplets(2, 3,
		[]int{0, 0, 0, 1, 1, 1},
		[]int{0, 1, 2, 0, 1, 2},
		[]float64{1, -2 * f * f, -2 * c * 2 * f, 1, -4 * f * f, -4 * c * 2 * f})
}

// TwoEqualities converges both P2 and Pout through equality residuals.
//
//	𝐮 = [Pin, c, F, P2, Pout]
//	𝒉ₑ(𝐮) = [P2 - (Pin - 2cF²), Pout - (P2 - 2cF²)]
type TwoEqualities struct {
	greybox.Inputs
	greybox.NoOutputs
}

func NewTwoEqualities() *TwoEqualities {
	return &TwoEqualities{Inputs: greybox.NewInputs("Pin", "c", "F", "P2", "Pout")}
}

func (*TwoEqualities) EqualityConstraintNames() []string {
	return []string{"pdrop2", "pdropout"}
}

func (m *TwoEqualities) EvaluateEqualityConstraints() ([]float64, error) {
	u, err := m.Values()
	if err != nil {
		return nil, err
	}
	pin, c, f, p2, pout := u[0], u[1], u[2], u[3], u[4]
	return []float64{p2 - (pin - 2*c*f*f), pout - (p2 - 2*c*f*f)}, nil
}

func (m *TwoEqualities) EvaluateJacobianEqualityConstraints() (*sparse.Matrix, error) {
	u, err := m.Values()
	if err != nil {
		return nil, err
	}
	c, f := u[1], u[2]
	return sparse.FromTriplets(2, 5,
		[]int{0, 0, 0, 0, 1, 1, 1, 1},
		[]int{0, 1, 2, 3, 1, 2, 3, 4},
		[]float64{-1, 2 * f * f, 2 * 2 * c * f, 1, 2 * f * f, 2 * 2 * c * f, -1, 1})
}

// TwoEqualitiesTwoOutputs mixes both categories.
//
//	𝐮 = [Pin, c, F, P1, P3]
//	𝒉ₑ(𝐮) = [P1 - (Pin - cF²), P3 - (P1 - 2cF²)]
//	𝒉ₒ(𝐮) = [P1 - cF², Pin - 4cF²]
type TwoEqualitiesTwoOutputs struct {
	greybox.Inputs
}

func NewTwoEqualitiesTwoOutputs() *TwoEqualitiesTwoOutputs {
	return &TwoEqualitiesTwoOutputs{Inputs: greybox.NewInputs("Pin", "c", "F", "P1", "P3")}
}

func (*TwoEqualitiesTwoOutputs) EqualityConstraintNames() []string {
	return []string{"pdrop1", "pdrop3"}
}

func (*TwoEqualitiesTwoOutputs) OutputNames() []string { return []string{"P2", "Pout"} }

func (m *TwoEqualitiesTwoOutputs) EvaluateEqualityConstraints() ([]float64, error) {
	u, err := m.Values()
	if err != nil {
		return nil, err
	}
	pin, c, f, p1, p3 := u[0], u[1], u[2], u[3], u[4]
	return []float64{p1 - (pin - c*f*f), p3 - (p1 - 2*c*f*f)}, nil
}

func (m *TwoEqualitiesTwoOutputs) EvaluateOutputs() ([]float64, error) {
	u, err := m.Values()
	if err != nil {
		return nil, err
	}
	pin, c, f, p1 := u[0], u[1], u[2], u[3]
	return []float64{p1 - c*f*f, pin - 4*c*f*f}, nil
}

func (m *TwoEqualitiesTwoOutputs) EvaluateJacobianEqualityConstraints() (*sparse.Matrix, error) {
	u, err := m.Values()
	if err != nil {
		return nil, err
	}
	c, f := u[1], u[2]
	return sparse.FromTriplets(2, 5,
		[]int{0, 0, 0, 0, 1, 1, 1, 1},
		[]int{0, 1, 2, 3, 1, 2, 3, 4},
		[]float64{-1, f * f, 2 * c * f, 1, 2 * f * f, 4 * c * f, -1, 1})
}

func (m *TwoEqualitiesTwoOutputs) EvaluateJacobianOutputs() (*sparse.Matrix, error) {
	u, err := m.Values()
	if err != nil {
		return nil, err
	}
	c, f := u[1], u[2]
	return sparse.FromTriplets(2, 5,
		[]int{0, 0, 0, 1, 1, 1},
		[]int{1, 2, 3, 0, 1, 2},
		[]float64{-f * f, -c * 2 * f, 1, 1, -4 * f * f, -4 * c * 2 * f})
}

var (
	_ greybox.Model = (*SingleOutput)(nil)
	_ greybox.Model = (*SingleEquality)(nil)
	_ greybox.Model = (*TwoOutputs)(nil)
	_ greybox.Model = (*TwoEqualities)(nil)
	_ greybox.Model = (*TwoEqualitiesTwoOutputs)(nil)
)
