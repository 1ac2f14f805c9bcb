package numdiff

import (
	"fmt"
	"math"

	"github.com/curioloop/greybox/greybox"
	"github.com/curioloop/greybox/sparse"
	"gonum.org/v1/gonum/mat"
)

// Mismatch is one Jacobian entry whose analytic value disagrees with the
// finite difference approximation.
type Mismatch struct {
	Kind     string // "equality", "output" or "constraint"
	Row, Col int
	Analytic float64
	Approx   float64
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s (%d,%d): analytic %g, approx %g", m.Kind, m.Row, m.Col, m.Analytic, m.Approx)
}

// Report lists the entries whose scaled error |a - b| / max(1, |a|, |b|)
// exceeds the tolerance.
type Report struct {
	MaxError   float64
	Mismatches []Mismatch
}

func (r *Report) OK() bool { return len(r.Mismatches) == 0 }

func (r *Report) compare(kind string, analytic, approx *mat.Dense, tol float64) {
	rows, cols := approx.Dims()
	for i := range rows {
		for j := range cols {
			a, b := analytic.At(i, j), approx.At(i, j)
			e := math.Abs(a-b) / math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
			r.MaxError = math.Max(r.MaxError, e)
			if e > tol {
				r.Mismatches = append(r.Mismatches, Mismatch{Kind: kind, Row: i, Col: j, Analytic: a, Approx: b})
			}
		}
	}
}

// CheckModel compares both analytic Jacobians of m at the input point x
// against a finite difference approximation. Empty categories are skipped.
// The model is left holding x.
func CheckModel(m greybox.Model, x []float64, as ApproxSpec, tol float64) (*Report, error) {
	if err := m.SetInputValues(x); err != nil {
		return nil, err
	}

	report := new(Report)
	for _, c := range []struct {
		kind string
		n    int
		eval func() ([]float64, error)
		jac  func() (*sparse.Matrix, error)
	}{
		{"equality", len(m.EqualityConstraintNames()), m.EvaluateEqualityConstraints, m.EvaluateJacobianEqualityConstraints},
		{"output", len(m.OutputNames()), m.EvaluateOutputs, m.EvaluateJacobianOutputs},
	} {
		if c.n == 0 {
			continue
		}
		analytic, err := c.jac()
		if err != nil {
			return nil, err
		}
		object := func(u, y []float64) error {
			if err := m.SetInputValues(u); err != nil {
				return err
			}
			v, err := c.eval()
			if err != nil {
				return err
			}
			if len(v) != len(y) {
				return fmt.Errorf("%w: got %d %s values, want %d", greybox.ErrDimension, len(v), c.kind, len(y))
			}
			copy(y, v)
			return nil
		}
		approx, err := as.Jacobian(object, x, c.n)
		if err != nil {
			return nil, err
		}
		if err = m.SetInputValues(x); err != nil {
			return nil, err
		}
		dense, err := denseOf(analytic, c.n, len(x))
		if err != nil {
			return nil, err
		}
		report.compare(c.kind, dense, approx, tol)
	}
	return report, nil
}

// System is the part of an aggregated program the checker drives.
type System interface {
	NumPrimals() int
	NumConstraints() int
	EvaluateConstraints(x []float64) ([]float64, error)
	EvaluateJacobian(x []float64) (*sparse.Matrix, error)
}

// CheckSystem compares the aggregated constraint Jacobian of sys at x
// against a finite difference approximation.
func CheckSystem(sys System, x []float64, as ApproxSpec, tol float64) (*Report, error) {
	m, n := sys.NumConstraints(), sys.NumPrimals()
	report := new(Report)
	if m == 0 {
		return report, nil
	}
	analytic, err := sys.EvaluateJacobian(x)
	if err != nil {
		return nil, err
	}
	approx, err := as.Jacobian(func(u, y []float64) error {
		c, err := sys.EvaluateConstraints(u)
		if err != nil {
			return err
		}
		copy(y, c)
		return nil
	}, x, m)
	if err != nil {
		return nil, err
	}
	dense, err := denseOf(analytic, m, n)
	if err != nil {
		return nil, err
	}
	report.compare("constraint", dense, approx, tol)
	return report, nil
}

func denseOf(jac *sparse.Matrix, rows, cols int) (*mat.Dense, error) {
	if jac == nil || jac.Rows != rows || jac.Cols != cols {
		return nil, fmt.Errorf("%w: jacobian shape differs from %d×%d", greybox.ErrDimension, rows, cols)
	}
	if err := jac.Check(); err != nil {
		return nil, fmt.Errorf("%w: %w", greybox.ErrDimension, err)
	}
	return jac.Dense(), nil
}
