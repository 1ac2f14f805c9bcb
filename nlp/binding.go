// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"fmt"

	"github.com/curioloop/greybox/greybox"
	"github.com/curioloop/greybox/sparse"
)

// Offsets locates one binding in the global index space.
type Offsets struct {
	Input    int // first primal column of the inputs
	Output   int // first constraint row of the output equations
	Equality int // first constraint row of the equality residuals
}

// Binding presents one grey-box model as a slice-addressable participant of
// the global sparse system. It owns the model's input buffer: the model must
// not be shared with another binding.
type Binding struct {
	name  string
	model greybox.Model
	nIn   int
	nEq   int
	nOut  int
	off   Offsets
	u     []float64
}

// Bind attaches model at the given offsets. It validates the declared names
// but never touches the model state.
func Bind(name string, model greybox.Model, off Offsets) (*Binding, error) {
	if err := greybox.Validate(model); err != nil {
		return nil, fmt.Errorf("block %q: %w", name, err)
	}
	if off.Input < 0 || off.Output < 0 || off.Equality < 0 {
		return nil, fmt.Errorf("block %q: %w: negative offset %+v", name, greybox.ErrConfiguration, off)
	}
	nIn := len(model.InputNames())
	return &Binding{
		name:    name,
		model:   model,
		nIn:     nIn,
		nEq:     len(model.EqualityConstraintNames()),
		nOut:    len(model.OutputNames()),
		off:     off,
		u:       make([]float64, nIn),
	}, nil
}

func (b *Binding) Name() string         { return b.name }
func (b *Binding) Model() greybox.Model { return b.model }
func (b *Binding) NumInputs() int       { return b.nIn }
func (b *Binding) NumEqualities() int   { return b.nEq }
func (b *Binding) NumOutputs() int      { return b.nOut }

// Offsets returns a copy of the binding's place in the global index space.
func (b *Binding) Offsets() Offsets { return b.off }

// PushInputs hands x[Input : Input+NumInputs()] to the model.
func (b *Binding) PushInputs(x []float64) error {
	if end := b.off.Input + b.nIn; len(x) < end {
		return fmt.Errorf("block %q: %w: primal vector has %d entries, inputs end at %d",
			b.name, greybox.ErrDimension, len(x), end)
	}
	copy(b.u, x[b.off.Input:b.off.Input+b.nIn])
	if err := b.model.SetInputValues(b.u); err != nil {
		return fmt.Errorf("block %q: %w", b.name, err)
	}
	return nil
}

// Equalities returns 𝒉ₑ(𝐮) for the last pushed inputs.
// The model is not called when it declares no equalities.
func (b *Binding) Equalities() ([]float64, error) {
	if b.nEq == 0 {
		return nil, nil
	}
	v, err := b.model.EvaluateEqualityConstraints()
	return b.checkValues("equality", v, b.nEq, err)
}

// Outputs returns 𝒉ₒ(𝐮) for the last pushed inputs.
// The model is not called when it declares no outputs.
func (b *Binding) Outputs() ([]float64, error) {
	if b.nOut == 0 {
		return nil, nil
	}
	v, err := b.model.EvaluateOutputs()
	return b.checkValues("output", v, b.nOut, err)
}

// AppendEqualityJacobian appends ∂𝒉ₑ/∂𝐮 to dst in global coordinates:
// local (i, j) lands at (Equality+i, Input+j).
func (b *Binding) AppendEqualityJacobian(dst *sparse.Coord) error {
	if b.nEq == 0 {
		return nil
	}
	jac, err := b.model.EvaluateJacobianEqualityConstraints()
	if err = b.checkJacobian("equality", jac, b.nEq, err); err != nil {
		return err
	}
	dst.Extend(&jac.Coord, b.off.Equality, b.off.Input)
	return nil
}

// AppendOutputJacobian appends alpha·∂𝒉ₒ/∂𝐮 to dst in global coordinates:
// local (i, j) lands at (Output+i, Input+j).
func (b *Binding) AppendOutputJacobian(dst *sparse.Coord, alpha float64) error {
	if b.nOut == 0 {
		return nil
	}
	jac, err := b.model.EvaluateJacobianOutputs()
	if err = b.checkJacobian("output", jac, b.nOut, err); err != nil {
		return err
	}
	dst.ExtendScaled(&jac.Coord, b.off.Output, b.off.Input, alpha)
	return nil
}

// PullEqualities evaluates the equality values and their Jacobian in
// global coordinates. Both are empty when the model declares no equalities.
func (b *Binding) PullEqualities() ([]float64, *sparse.Coord, error) {
	v, err := b.Equalities()
	if err != nil {
		return nil, nil, err
	}
	var jac sparse.Coord
	if err = b.AppendEqualityJacobian(&jac); err != nil {
		return nil, nil, err
	}
	return v, &jac, nil
}

// PullOutputs evaluates the output values and their Jacobian in global
// coordinates. Both are empty when the model declares no outputs.
func (b *Binding) PullOutputs() ([]float64, *sparse.Coord, error) {
	v, err := b.Outputs()
	if err != nil {
		return nil, nil, err
	}
	var jac sparse.Coord
	if err = b.AppendOutputJacobian(&jac, 1); err != nil {
		return nil, nil, err
	}
	return v, &jac, nil
}

func (b *Binding) checkValues(kind string, v []float64, n int, err error) ([]float64, error) {
	switch {
	case err != nil:
		return nil, fmt.Errorf("block %q: %s values: %w", b.name, kind, err)
	case len(v) != n:
		return nil, fmt.Errorf("block %q: %w: got %d %s values, want %d",
			b.name, greybox.ErrDimension, len(v), kind, n)
	}
	return v, nil
}

func (b *Binding) checkJacobian(kind string, jac *sparse.Matrix, rows int, err error) error {
	switch {
	case err != nil:
		return fmt.Errorf("block %q: %s jacobian: %w", b.name, kind, err)
	case jac == nil:
		return fmt.Errorf("block %q: %w: nil %s jacobian", b.name, greybox.ErrDimension, kind)
	case jac.Rows != rows || jac.Cols != b.nIn:
		return fmt.Errorf("block %q: %w: %s jacobian is %d×%d, want %d×%d",
			b.name, greybox.ErrDimension, kind, jac.Rows, jac.Cols, rows, b.nIn)
	}
	if err = jac.Check(); err != nil {
		return fmt.Errorf("block %q: %s jacobian: %w: %w", b.name, kind, greybox.ErrDimension, err)
	}
	return nil
}
