// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package newton drives a composed grey-box system to a root of its
// constraint residuals with a damped Newton iteration.
//
// Only square systems are accepted: the number of primals must equal the
// number of constraints, so the Newton step 𝐉Δ𝐱 = 𝐜 is fully determined.
// Each iteration factorizes the dense Jacobian and backtracks along the
// step until ‖𝐜‖₂ decreases sufficiently.
package newton

import (
	"fmt"
	"log/slog"

	"github.com/curioloop/greybox/greybox"
	"github.com/curioloop/greybox/sparse"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// System is the pull interface of a composed program.
type System interface {
	NumPrimals() int
	NumConstraints() int
	EvaluateConstraints(x []float64) ([]float64, error)
	EvaluateJacobian(x []float64) (*sparse.Matrix, error)
}

// Bounded is implemented by systems that declare primal bounds.
// Every point the solver evaluates is projected onto them.
type Bounded interface {
	PrimalBounds() (lower, upper []float64)
}

type Status int

const (
	// Converged the residual norm fell below the tolerance.
	Converged Status = iota
	// ExceedMaxIter more than max iterations.
	ExceedMaxIter
	// SingularJacobian the Jacobian could not be factorized.
	SingularJacobian
	// StepFailed backtracking could not decrease the residual norm.
	StepFailed
	// EvalFailed an evaluator returned an error.
	EvalFailed
)

func (s Status) String() string {
	switch s {
	case Converged:
		return "converged"
	case ExceedMaxIter:
		return "exceed max iterations"
	case SingularJacobian:
		return "singular jacobian"
	case StepFailed:
		return "step failed"
	case EvalFailed:
		return "evaluation failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Termination specifies the stopping criteria.
type Termination struct {
	// The iteration stops when ‖𝐜(𝐱ₖ)‖₂ ≤ 𝚝𝚘𝚕.
	Tolerance float64 `validate:"gt=0"`
	// The iteration stops when the number of iterations exceeds limit.
	MaxIterations int `validate:"gt=0"`
}

// LineSearch specifies the backtracking along the Newton step.
// Zero fields take the defaults Shrink = 0.5, Armijo = 1e-4, MaxSteps = 20.
type LineSearch struct {
	// Step length factor applied on each rejected trial.
	Shrink float64 `validate:"gte=0,lt=1"`
	// Sufficient decrease: accept when ‖𝐜(𝐱 - αΔ𝐱)‖ ≤ (1 - Armijo·α)‖𝐜(𝐱)‖.
	Armijo float64 `validate:"gte=0,lt=1"`
	// Maximum number of trials per iteration.
	MaxSteps int `validate:"gte=0"`
}

// Problem specifies the system to solve.
type Problem struct {
	System System
	Stop   Termination
	Line   LineSearch
	Logger *slog.Logger // nil discards
}

// New checks the problem and creates a solver for it.
func (p *Problem) New() (*Solver, error) {
	if p.System == nil {
		return nil, fmt.Errorf("%w: system is required", greybox.ErrConfiguration)
	}
	if err := validate.Struct(p.Stop); err != nil {
		return nil, fmt.Errorf("%w: termination: %w", greybox.ErrConfiguration, err)
	}
	if err := validate.Struct(p.Line); err != nil {
		return nil, fmt.Errorf("%w: line search: %w", greybox.ErrConfiguration, err)
	}

	n, m := p.System.NumPrimals(), p.System.NumConstraints()
	switch {
	case n <= 0:
		return nil, fmt.Errorf("%w: system has no primals", greybox.ErrConfiguration)
	case n != m:
		return nil, fmt.Errorf("%w: system is not square: %d primals, %d constraints", greybox.ErrConfiguration, n, m)
	}

	line := p.Line
	if line.Shrink == 0 {
		line.Shrink = 0.5
	}
	if line.Armijo == 0 {
		line.Armijo = 1e-4
	}
	if line.MaxSteps == 0 {
		line.MaxSteps = 20
	}

	var lower, upper []float64
	if b, ok := p.System.(Bounded); ok {
		lower, upper = b.PrimalBounds()
		if len(lower) != n || len(upper) != n {
			return nil, fmt.Errorf("%w: bounds have %d/%d entries, want %d", greybox.ErrDimension, len(lower), len(upper), n)
		}
		for i := range n {
			if lower[i] > upper[i] {
				return nil, fmt.Errorf("%w: empty bound at %d", greybox.ErrConfiguration, i)
			}
		}
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Solver{
		sys:    p.System,
		n:      n,
		stop:   p.Stop,
		line:   line,
		lower:  lower,
		upper:  upper,
		logger: logger,
	}, nil
}

// Result contains the final state of the iteration.
type Result struct {
	OK       bool      // Whether the iteration converged.
	X        []float64 // Final point.
	Residual float64   // Final ‖𝐜(𝐱)‖₂.
	Err      error     // Evaluator error when Status is EvalFailed.
	Summary
}

// Summary contains a summary of the iteration.
type Summary struct {
	Status  Status // Final status.
	NumIter int    // Number of Newton steps taken.
	NumEval int    // Number of residual evaluations.
}
