// Package numdiff approximates Jacobians by finite differences and checks
// the analytic derivatives supplied by grey-box models against them.
package numdiff

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Central use central difference in interior points and the second order accuracy
	// forward or backward difference near the boundary.
	Central
)

// Bound holds the lower and upper bound of one variable. NaN means unbounded.
type Bound [2]float64

// Object evaluates an m-vector function: y = 𝒇(x).
// An error aborts the approximation.
type Object func(x, y []float64) error

// ApproxSpec configures the finite difference scheme.
//
// # Reference:
//
//   - https://en.wikipedia.org/wiki/Finite_difference
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
type ApproxSpec struct {
	// Finite difference method to use.
	Method Method
	// Lower and upper bounds on independent variables, nil for none.
	// The function is never evaluated outside of them.
	Bounds []Bound
	// Relative step size used to compute absolute step size.
	// The default absolute step size is h = eps * sign(x0) * max(1, abs(x0)),
	// otherwise h = RelStep * sign(x0) * abs(x0).
	RelStep float64
	// Absolute step size to use, possibly adjusted to fit into the bounds.
	// For Central method the sign of AbsStep is ignored.
	AbsStep float64
}

// Jacobian approximates the m×n Jacobian of f at x0. x0 is left untouched.
func (as *ApproxSpec) Jacobian(f Object, x0 []float64, m int) (*mat.Dense, error) {
	n := len(x0)
	switch {
	case n == 0 || m <= 0:
		return nil, errors.New("numdiff: empty dimensions")
	case f == nil:
		return nil, errors.New("numdiff: object function is required")
	case as.Method != Forward && as.Method != Central:
		return nil, errors.New("numdiff: unknown method")
	}

	bounds, err := as.checkBounds(x0)
	if err != nil {
		return nil, err
	}

	h := absoluteStep(as.Method, as.RelStep, as.AbsStep, x0)
	oneSide := adjustToBounds(as.Method, x0, h, bounds)

	x := slices.Clone(x0)
	f0 := make([]float64, m)
	f1 := make([]float64, m)
	f2 := make([]float64, m)
	if err = f(x, f0); err != nil {
		return nil, err
	}

	jac := mat.NewDense(m, n, nil)
	for i, s := range h {
		xi := x[i]
		switch {
		case as.Method == Forward:
			x[i] = xi + s
			if err = f(x, f1); err != nil {
				return nil, err
			}
			for j := range f0 {
				jac.Set(j, i, (f1[j]-f0[j])/s)
			}
		case oneSide[i]:
			x[i] = xi + s
			if err = f(x, f1); err != nil {
				return nil, err
			}
			x[i] = xi + 2*s
			if err = f(x, f2); err != nil {
				return nil, err
			}
			for j := range f0 {
				jac.Set(j, i, (4*f1[j]-3*f0[j]-f2[j])/(2*s))
			}
		default:
			x[i] = xi - s
			if err = f(x, f1); err != nil {
				return nil, err
			}
			x[i] = xi + s
			if err = f(x, f2); err != nil {
				return nil, err
			}
			for j := range f0 {
				jac.Set(j, i, (f2[j]-f1[j])/(2*s))
			}
		}
		x[i] = xi
	}
	return jac, nil
}

// checkBounds returns nil when no side is finite.
func (as *ApproxSpec) checkBounds(x0 []float64) ([]Bound, error) {
	if as.Bounds == nil {
		return nil, nil
	}
	if len(as.Bounds) != len(x0) {
		return nil, errors.New("numdiff: invalid bound dimension")
	}
	bounds := slices.Clone(as.Bounds)
	finite := false
	for i, b := range bounds {
		if math.IsNaN(b[0]) {
			b[0] = math.Inf(-1)
		}
		if math.IsNaN(b[1]) {
			b[1] = math.Inf(1)
		}
		if b[0] > b[1] {
			return nil, fmt.Errorf("numdiff: invalid bound range at %d", i)
		}
		if x0[i] < b[0] || x0[i] > b[1] {
			return nil, fmt.Errorf("numdiff: x0 violates bound at %d", i)
		}
		finite = finite || !math.IsInf(b[0], 0) || !math.IsInf(b[1], 0)
		bounds[i] = b
	}
	if !finite {
		return nil, nil
	}
	return bounds, nil
}

func absoluteStep(method Method, rel, abs float64, x0 []float64) []float64 {
	eps := sqrtEps
	if method == Central {
		eps = cubeEps
	}
	auto := func(v float64) float64 {
		return math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
	}

	h := make([]float64, len(x0))
	for i, v := range x0 {
		if abs == 0 && rel == 0 {
			h[i] = auto(v)
			continue
		}
		s := abs
		if s == 0 {
			s = math.Copysign(rel, v) * math.Abs(v)
		}
		if (v+s)-v == 0 {
			s = auto(v)
		}
		h[i] = s
	}
	return h
}

// adjustToBounds shrinks or flips h in place so every evaluation stays
// feasible, and reports which central steps fall back to one side.
func adjustToBounds(method Method, x0, h []float64, bounds []Bound) (oneSide []bool) {
	if method == Central {
		oneSide = make([]bool, len(h))
		for i, v := range h {
			h[i] = math.Abs(v)
		}
	}
	if bounds == nil {
		return
	}

	for i, x := range x0 {
		ld, ud := x-bounds[i][0], bounds[i][1]-x
		if method == Forward {
			violated := x+h[i] < bounds[i][0] || x+h[i] > bounds[i][1]
			fitting := math.Abs(h[i]) < math.Max(ld, ud)
			switch {
			case violated && fitting:
				h[i] = -h[i]
			case !fitting && ud >= ld:
				h[i] = ud
			case !fitting:
				h[i] = -ld
			}
			continue
		}

		central := ld >= h[i] && ud >= h[i]
		if central {
			continue
		}
		if ud >= ld {
			h[i] = math.Min(h[i], 0.5*ud)
		} else {
			h[i] = -math.Min(h[i], 0.5*ld)
		}
		oneSide[i] = true
		if minDist := math.Min(ud, ld); math.Abs(h[i]) <= minDist {
			h[i] = minDist
			oneSide[i] = false
		}
	}
	return
}
