// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package newton

import (
	"errors"
	"math"
	"testing"

	"github.com/curioloop/greybox/greybox"
	"github.com/curioloop/greybox/greybox/pipes"
	"github.com/curioloop/greybox/nlp"
	"github.com/curioloop/greybox/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stop = Termination{Tolerance: 1e-10, MaxIterations: 50}

func fix(name, ref string, value float64) nlp.Constraint {
	return nlp.Constraint{
		Name: name,
		Vars: []string{ref},
		Func: func(v []float64) float64 { return v[0] - value },
		Grad: func(_, g []float64) { g[0] = 1 },
	}
}

func TestSolveSingleEquality(t *testing.T) {
	p := nlp.Problem{
		Host: nlp.Host{Constraints: []nlp.Constraint{
			fix("pin", "a.Pin", 100),
			fix("c", "a.c", 2),
			fix("F", "a.F", 3),
		}},
		Blocks: []nlp.Block{{Name: "a", Model: pipes.NewSingleEquality()}},
	}
	sys, err := p.New()
	require.NoError(t, err)

	solver, err := (&Problem{System: sys, Stop: stop}).New()
	require.NoError(t, err)

	x0 := sys.InitPrimals()
	res := solver.Solve(x0)
	require.True(t, res.OK, res.Status.String())
	assert.Equal(t, Converged, res.Status)
	assert.Equal(t, make([]float64, 4), x0, "x0 must be left untouched")

	values, err := sys.Values(res.X)
	require.NoError(t, err)
	assert.InDelta(t, 28, values["a.Pout"], 1e-8)
	assert.InDelta(t, 100, values["a.Pin"], 1e-10)
	assert.LessOrEqual(t, res.Residual, 1e-10)
	assert.Positive(t, res.NumIter)
	assert.Greater(t, res.NumEval, res.NumIter)
}

func TestSolveBridgedOutputs(t *testing.T) {
	p := nlp.Problem{
		Host: nlp.Host{
			Variables: []nlp.Variable{{Name: "P2"}, {Name: "Pout"}},
			Constraints: []nlp.Constraint{
				fix("pin", "egb.Pin", 100),
				fix("c", "egb.c", 2),
				fix("F", "egb.F", 3),
			},
		},
		Blocks: []nlp.Block{{
			Name:   "egb",
			Model:  pipes.NewTwoOutputs(),
			Expose: map[string]string{"P2": "P2", "Pout": "Pout"},
		}},
	}
	sys, err := p.New()
	require.NoError(t, err)
	require.Equal(t, 7, sys.NumPrimals())
	require.Equal(t, 7, sys.NumConstraints())

	solver, err := (&Problem{System: sys, Stop: stop}).New()
	require.NoError(t, err)
	res := solver.Solve(sys.InitPrimals())
	require.True(t, res.OK, res.Status.String())

	values, err := sys.Values(res.X)
	require.NoError(t, err)
	assert.InDelta(t, 64, values["P2"], 1e-8)
	assert.InDelta(t, 28, values["Pout"], 1e-8)
	assert.InDelta(t, 64, values["egb.dummy[P2]"], 1e-8)
	assert.InDelta(t, 28, values["egb.dummy[Pout]"], 1e-8)
}

func TestSingularJacobian(t *testing.T) {
	p := nlp.Problem{
		Host: nlp.Host{Constraints: []nlp.Constraint{
			fix("pin", "a.Pin", 100),
			fix("pin_again", "a.Pin", 100),
			fix("c", "a.c", 2),
		}},
		Blocks: []nlp.Block{{Name: "a", Model: pipes.NewSingleEquality()}},
	}
	sys, err := p.New()
	require.NoError(t, err)

	solver, err := (&Problem{System: sys, Stop: stop}).New()
	require.NoError(t, err)
	res := solver.Solve(sys.InitPrimals())
	assert.False(t, res.OK)
	assert.Equal(t, SingularJacobian, res.Status)
	assert.Zero(t, res.NumIter)
}

// flaky fails its residual evaluation after a number of calls.
type flaky struct {
	calls, limit int
}

func (f *flaky) NumPrimals() int     { return 1 }
func (f *flaky) NumConstraints() int { return 1 }

func (f *flaky) EvaluateConstraints(x []float64) ([]float64, error) {
	f.calls++
	if f.calls > f.limit {
		return nil, greybox.ErrInputsUnset
	}
	return []float64{x[0]*x[0] - 4}, nil
}

func (f *flaky) EvaluateJacobian(x []float64) (*sparse.Matrix, error) {
	return sparse.FromTriplets(1, 1, []int{0}, []int{0}, []float64{2 * x[0]})
}

func TestScalarRoot(t *testing.T) {
	solver, err := (&Problem{System: &flaky{limit: math.MaxInt}, Stop: stop}).New()
	require.NoError(t, err)
	res := solver.Solve([]float64{1})
	require.True(t, res.OK)
	assert.InDelta(t, 2, res.X[0], 1e-10)

	res = solver.Solve([]float64{0})
	assert.Equal(t, SingularJacobian, res.Status)
}

// capped restricts flaky to x ≤ 1.5, which excludes the root x = 2.
type capped struct{ *flaky }

func (capped) PrimalBounds() (lower, upper []float64) {
	return []float64{math.Inf(-1)}, []float64{1.5}
}

func TestBoundsProjection(t *testing.T) {
	solver, err := (&Problem{System: capped{&flaky{limit: math.MaxInt}}, Stop: stop}).New()
	require.NoError(t, err)
	res := solver.Solve([]float64{1})
	assert.False(t, res.OK)
	assert.Equal(t, StepFailed, res.Status)
	assert.Equal(t, []float64{1.5}, res.X)
	assert.Equal(t, 1, res.NumIter)

	p := nlp.Problem{
		Host: nlp.Host{
			Variables: []nlp.Variable{{Name: "P2"}, {Name: "Pout", Bound: &nlp.Bound{Lower: 0, Upper: 20}}},
			Constraints: []nlp.Constraint{
				fix("pin", "egb.Pin", 100),
				fix("c", "egb.c", 2),
				fix("F", "egb.F", 3),
			},
		},
		Blocks: []nlp.Block{{
			Name:   "egb",
			Model:  pipes.NewTwoOutputs(),
			Expose: map[string]string{"P2": "P2", "Pout": "Pout"},
		}},
	}
	sys, err := p.New()
	require.NoError(t, err)
	solver, err = (&Problem{System: sys, Stop: stop}).New()
	require.NoError(t, err)
	res = solver.Solve(sys.InitPrimals())
	assert.False(t, res.OK, "outlet pressure 28 lies outside its bound")

	lower, upper := sys.PrimalBounds()
	for i, v := range res.X {
		assert.GreaterOrEqual(t, v, lower[i])
		assert.LessOrEqual(t, v, upper[i])
	}
}

type inverted struct{ *flaky }

func (inverted) PrimalBounds() (lower, upper []float64) {
	return []float64{1}, []float64{0}
}

func TestEvalFailure(t *testing.T) {
	solver, err := (&Problem{System: &flaky{limit: 2}, Stop: stop}).New()
	require.NoError(t, err)
	res := solver.Solve([]float64{1})
	assert.Equal(t, EvalFailed, res.Status)
	assert.True(t, errors.Is(res.Err, greybox.ErrInputsUnset))
	assert.Equal(t, 1, res.NumIter)
}

func TestExceedMaxIter(t *testing.T) {
	solver, err := (&Problem{
		System: &flaky{limit: math.MaxInt},
		Stop:   Termination{Tolerance: 1e-300, MaxIterations: 2},
	}).New()
	require.NoError(t, err)
	res := solver.Solve([]float64{100})
	assert.Equal(t, ExceedMaxIter, res.Status)
	assert.Equal(t, 2, res.NumIter)
}

func TestProblemErrors(t *testing.T) {
	square := &flaky{}
	cases := map[string]Problem{
		"no_system":     {Stop: stop},
		"no_tolerance":  {System: square, Stop: Termination{MaxIterations: 1}},
		"no_iterations": {System: square, Stop: Termination{Tolerance: 1}},
		"bad_shrink":    {System: square, Stop: stop, Line: LineSearch{Shrink: 1.5}},
		"bad_steps":     {System: square, Stop: stop, Line: LineSearch{MaxSteps: -1}},
	}
	for name, p := range cases {
		_, err := p.New()
		assert.ErrorIs(t, err, greybox.ErrConfiguration, name)
	}

	_, err := (&Problem{System: inverted{square}, Stop: stop}).New()
	assert.ErrorIs(t, err, greybox.ErrConfiguration, "empty bound")

	sys, err := (&nlp.Problem{
		Blocks: []nlp.Block{{Name: "a", Model: pipes.NewSingleEquality()}},
	}).New()
	require.NoError(t, err)
	_, err = (&Problem{System: sys, Stop: stop}).New()
	assert.ErrorIs(t, err, greybox.ErrConfiguration, "4 primals and 1 constraint")
}
