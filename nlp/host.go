// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"github.com/curioloop/greybox/greybox"
)

// Bound represents the bounds for a host variable.
// Infinite values mean the side is unbounded.
type Bound struct {
	Lower, Upper float64
}

// Variable is a native variable of the host model.
type Variable struct {
	Name string
	// Value is the externally supplied initial value, used only when HasValue is set.
	Value    float64
	HasValue bool
	// Optional bounds, nil means free.
	Bound *Bound
}

// Function evaluates a scalar function of the referenced variables.
// v holds the current values of Vars in order.
type Function func(v []float64) float64

// Gradient writes the partials of a Function into g, aligned with Vars.
type Gradient func(v []float64, g []float64)

// Constraint is a native equality of the host model, residual lhs - rhs.
//
// Vars are resolved once when the problem is built: a host variable name,
// or "block.name" for a grey-box input or output.
type Constraint struct {
	Name string
	Vars []string
	Func Function
	Grad Gradient
}

// Objective is passed through to the consumer. Grey-box models never own it,
// but it may reference their inputs and outputs like a constraint does.
type Objective struct {
	Vars []string
	Func Function
	Grad Gradient
}

// Host is the algebraic part of the problem surrounding the grey-box blocks.
type Host struct {
	Variables   []Variable
	Constraints []Constraint
	Objective   *Objective
}

// Block attaches a grey-box model to the problem.
type Block struct {
	Name  string
	Model greybox.Model
	// Expose maps an output name to the host variable that carries its value.
	// Each exposed output is joined to the global system through a dummy bridge.
	Expose map[string]string
	// Init holds optional initial values keyed by input or unexposed output name.
	Init map[string]float64
}
