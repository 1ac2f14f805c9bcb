// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package greybox

import (
	"fmt"
	"slices"

	"github.com/curioloop/greybox/sparse"
)

// Inputs is an owned input buffer meant to be embedded by concrete models.
// It implements InputNames and SetInputValues.
type Inputs struct {
	names  []string
	values []float64
	set    bool
}

// NewInputs declares the ordered input names.
func NewInputs(names ...string) Inputs {
	return Inputs{
		names:  slices.Clone(names),
		values: make([]float64, len(names)),
	}
}

func (in *Inputs) InputNames() []string {
	return slices.Clone(in.names)
}

func (in *Inputs) SetInputValues(x []float64) error {
	if len(x) != len(in.names) {
		return fmt.Errorf("%w: got %d input values, want %d", ErrDimension, len(x), len(in.names))
	}
	copy(in.values, x)
	in.set = true
	return nil
}

// Values returns the buffer last stored by SetInputValues.
// The slice is owned by the model and must not be retained by callers.
func (in *Inputs) Values() ([]float64, error) {
	if !in.set {
		return nil, ErrInputsUnset
	}
	return in.values, nil
}

// NoEqualities is embedded by models that publish no equality constraints.
type NoEqualities struct{}

func (NoEqualities) EqualityConstraintNames() []string { return nil }

func (NoEqualities) EvaluateEqualityConstraints() ([]float64, error) {
	return nil, Unsupported("EvaluateEqualityConstraints")
}

func (NoEqualities) EvaluateJacobianEqualityConstraints() (*sparse.Matrix, error) {
	return nil, Unsupported("EvaluateJacobianEqualityConstraints")
}

// NoOutputs is embedded by models that publish no outputs.
type NoOutputs struct{}

func (NoOutputs) OutputNames() []string { return nil }

func (NoOutputs) EvaluateOutputs() ([]float64, error) {
	return nil, Unsupported("EvaluateOutputs")
}

func (NoOutputs) EvaluateJacobianOutputs() (*sparse.Matrix, error) {
	return nil, Unsupported("EvaluateJacobianOutputs")
}
