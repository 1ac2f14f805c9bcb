// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package newton

import (
	"log/slog"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Solver runs the damped Newton iteration for one problem.
// A Solver drives a stateful system and must not be shared between goroutines.
type Solver struct {
	sys    System
	n      int
	stop   Termination
	line   LineSearch
	lower  []float64 // nil when unbounded
	upper  []float64
	logger *slog.Logger
}

// project clips x onto the primal bounds in place.
func (s *Solver) project(x []float64) {
	if s.lower == nil {
		return
	}
	for i, v := range x {
		x[i] = math.Min(math.Max(v, s.lower[i]), s.upper[i])
	}
}

type newtonLoc struct {
	x, c []float64
	norm float64
}

// Solve iterates from x0, which is left untouched.
// Points outside the system bounds are projected onto them.
func (s *Solver) Solve(x0 []float64) *Result {

	if len(x0) != s.n {
		panic("initial x dimension not match system")
	}

	var sum Summary
	res := &Result{}
	finish := func(loc *newtonLoc, status Status) *Result {
		sum.Status = status
		res.OK = status == Converged
		res.X, res.Residual, res.Summary = loc.x, loc.norm, sum
		s.logger.Info("newton finished",
			slog.String("status", status.String()),
			slog.Int("iter", sum.NumIter),
			slog.Int("eval", sum.NumEval),
			slog.Float64("residual", loc.norm))
		return res
	}

	eval := func(x []float64) (*newtonLoc, error) {
		sum.NumEval++
		c, err := s.sys.EvaluateConstraints(x)
		if err != nil {
			return nil, err
		}
		return &newtonLoc{x: x, c: c, norm: floats.Norm(c, 2)}, nil
	}

	start := slices.Clone(x0)
	s.project(start)
	loc, err := eval(start)
	if err != nil {
		res.Err = err
		return finish(&newtonLoc{x: start, norm: math.NaN()}, EvalFailed)
	}

	dx := mat.NewVecDense(s.n, nil)
	trial := make([]float64, s.n)
	for {
		if loc.norm <= s.stop.Tolerance {
			return finish(loc, Converged)
		}
		if sum.NumIter >= s.stop.MaxIterations {
			return finish(loc, ExceedMaxIter)
		}

		jac, err := s.sys.EvaluateJacobian(loc.x)
		if err != nil {
			res.Err = err
			return finish(loc, EvalFailed)
		}

		var lu mat.LU
		lu.Factorize(jac.Dense())
		if lu.Det() == 0 {
			return finish(loc, SingularJacobian)
		}
		if err = lu.SolveVecTo(dx, false, mat.NewVecDense(s.n, loc.c)); err != nil {
			s.logger.Debug("ill-conditioned jacobian", slog.Int("iter", sum.NumIter), slog.Any("cond", err))
		}
		step := dx.RawVector().Data
		if floats.HasNaN(step) || math.IsInf(floats.Max(step), 1) || math.IsInf(floats.Min(step), -1) {
			return finish(loc, SingularJacobian)
		}

		next, status := s.backtrack(loc, step, trial, eval)
		if status != Converged {
			if status == EvalFailed {
				res.Err = next.err
			}
			return finish(loc, status)
		}
		sum.NumIter++
		s.logger.Debug("newton step",
			slog.Int("iter", sum.NumIter),
			slog.Float64("alpha", next.alpha),
			slog.Float64("residual", next.loc.norm))
		loc = next.loc
		trial = make([]float64, s.n)
	}
}

type trialStep struct {
	loc   *newtonLoc
	alpha float64
	err   error
}

// backtrack shrinks α until 𝐱 - αΔ𝐱 decreases the residual norm enough.
// Converged here means a step was accepted.
func (s *Solver) backtrack(loc *newtonLoc, step, trial []float64, eval func([]float64) (*newtonLoc, error)) (trialStep, Status) {
	alpha := 1.0
	for range s.line.MaxSteps {
		floats.AddScaledTo(trial, loc.x, -alpha, step)
		s.project(trial)
		next, err := eval(trial)
		if err != nil {
			return trialStep{err: err}, EvalFailed
		}
		if next.norm <= (1-s.line.Armijo*alpha)*loc.norm {
			return trialStep{loc: next, alpha: alpha}, Converged
		}
		alpha *= s.line.Shrink
	}
	return trialStep{}, StepFailed
}
