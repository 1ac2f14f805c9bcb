// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package greybox defines the contract an external model implements to be
// embedded in a sparse nonlinear program.
//
// A grey-box model hides how it computes, but exposes:
//   - an ordered list of inputs 𝐮,
//   - an ordered list of equality residuals 𝒉ₑ(𝐮) that the solver drives to zero,
//   - an ordered list of outputs 𝒉ₒ(𝐮) computed directly from the inputs,
//
// together with the sparse Jacobians ∂𝒉ₑ/∂𝐮 and ∂𝒉ₒ/∂𝐮 in coordinate form.
// Residuals follow the lhs - rhs convention: 𝐲 = 𝒇(𝐮) is written 𝐲 - 𝒇(𝐮).
//
// The same physical relation can be published as an equality (the solver
// converges an input to satisfy it) or as an output (its value is computed
// and substituted), without changing the model internals.
package greybox

import (
	"errors"
	"fmt"

	"github.com/curioloop/greybox/sparse"
)

var (
	// ErrDimension reports a vector whose length differs from the declared count.
	ErrDimension = errors.New("greybox: dimension mismatch")
	// ErrUnsupported reports an evaluator invoked for a category the model
	// declares empty. It is a caller bug, never a numeric failure.
	ErrUnsupported = errors.New("greybox: unsupported operation")
	// ErrConfiguration reports a structural problem found before evaluation.
	ErrConfiguration = errors.New("greybox: configuration error")
	// ErrInputsUnset reports an evaluation before the first SetInputValues.
	ErrInputsUnset = errors.New("greybox: input values not set")
)

// Model is the capability every grey-box model implements.
//
// Name lists are fixed at construction. Evaluators are only valid once
// SetInputValues succeeded, and only for categories with at least one
// declared entry; otherwise they return ErrInputsUnset or ErrUnsupported.
type Model interface {
	// InputNames returns the ordered input names, unique within the model.
	InputNames() []string
	// EqualityConstraintNames returns the ordered equality names, possibly empty.
	EqualityConstraintNames() []string
	// OutputNames returns the ordered output names, possibly empty.
	OutputNames() []string

	// SetInputValues stores a private copy of x. len(x) must equal len(InputNames()).
	SetInputValues(x []float64) error

	// EvaluateEqualityConstraints returns 𝒉ₑ(𝐮).
	EvaluateEqualityConstraints() ([]float64, error)
	// EvaluateOutputs returns 𝒉ₒ(𝐮).
	EvaluateOutputs() ([]float64, error)
	// EvaluateJacobianEqualityConstraints returns ∂𝒉ₑ/∂𝐮 shaped #equalities × #inputs.
	EvaluateJacobianEqualityConstraints() (*sparse.Matrix, error)
	// EvaluateJacobianOutputs returns ∂𝒉ₒ/∂𝐮 shaped #outputs × #inputs.
	EvaluateJacobianOutputs() (*sparse.Matrix, error)
}

// Unsupported returns an ErrUnsupported naming the rejected operation.
func Unsupported(op string) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, op)
}

// Validate checks that no declared name of m is empty or repeated within
// its category.
func Validate(m Model) error {
	if m == nil {
		return fmt.Errorf("%w: nil model", ErrConfiguration)
	}
	for _, c := range []struct {
		kind  string
		names []string
	}{
		{"input", m.InputNames()},
		{"equality", m.EqualityConstraintNames()},
		{"output", m.OutputNames()},
	} {
		seen := make(map[string]struct{}, len(c.names))
		for k, name := range c.names {
			if name == "" {
				return fmt.Errorf("%w: empty %s name at %d", ErrConfiguration, c.kind, k)
			}
			if _, dup := seen[name]; dup {
				return fmt.Errorf("%w: duplicate %s name %q", ErrConfiguration, c.kind, name)
			}
			seen[name] = struct{}{}
		}
	}
	return nil
}
