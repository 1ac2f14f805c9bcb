// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/curioloop/greybox/greybox"
	"github.com/curioloop/greybox/sparse"
)

func (nlp *GreyBoxNLP) NumPrimals() int     { return nlp.nPrimal }
func (nlp *GreyBoxNLP) NumConstraints() int { return nlp.nCon }

// InitPrimals returns a fresh copy of the initial primal vector.
func (nlp *GreyBoxNLP) InitPrimals() []float64 { return slices.Clone(nlp.init) }

// PrimalBounds returns fresh copies of the lower and upper primal bounds.
func (nlp *GreyBoxNLP) PrimalBounds() (lower, upper []float64) {
	return slices.Clone(nlp.lower), slices.Clone(nlp.upper)
}

func (nlp *GreyBoxNLP) PrimalNames() []string     { return slices.Clone(nlp.primalNames) }
func (nlp *GreyBoxNLP) ConstraintNames() []string { return slices.Clone(nlp.conNames) }

// Column returns the primal column of a host variable, a grey-box input or
// output ("block.name"), or a dummy ("block.dummy[output]").
func (nlp *GreyBoxNLP) Column(ref string) (int, bool) {
	c, ok := nlp.columns[ref]
	return c, ok
}

// Row returns the constraint row of a host constraint, a grey-box equality
// ("block.name"), an output equation ("block.output[name]") or a bridge
// ("block.dummy[name]").
func (nlp *GreyBoxNLP) Row(ref string) (int, bool) {
	r, ok := nlp.rows[ref]
	return r, ok
}

// Bindings returns the bound blocks in registration order.
func (nlp *GreyBoxNLP) Bindings() []*Binding {
	bs := make([]*Binding, len(nlp.blocks))
	for k, b := range nlp.blocks {
		bs[k] = b.Binding
	}
	return bs
}

// Bridges returns a copy of the dummy bridges in layout order.
func (nlp *GreyBoxNLP) Bridges() []Bridge { return slices.Clone(nlp.bridges) }

func (nlp *GreyBoxNLP) Stats() Stats { return nlp.stats }

// Values maps every primal name to its value in x.
func (nlp *GreyBoxNLP) Values(x []float64) (map[string]float64, error) {
	if err := nlp.checkPrimal(x); err != nil {
		return nil, err
	}
	m := make(map[string]float64, len(x))
	for k, name := range nlp.primalNames {
		m[name] = x[k]
	}
	return m, nil
}

// Objective evaluates the host objective, zero when the host has none.
func (nlp *GreyBoxNLP) Objective(x []float64) (float64, error) {
	if err := nlp.checkPrimal(x); err != nil {
		return 0, err
	}
	nlp.stats.NumObj++
	if nlp.obj == nil {
		return 0, nil
	}
	return nlp.obj.f(nlp.obj.gather(x)), nil
}

// ObjectiveGradient returns the dense objective gradient.
func (nlp *GreyBoxNLP) ObjectiveGradient(x []float64) ([]float64, error) {
	if err := nlp.checkPrimal(x); err != nil {
		return nil, err
	}
	nlp.stats.NumGrad++
	g := make([]float64, nlp.nPrimal)
	if o := nlp.obj; o != nil {
		clear(o.d)
		o.g(o.gather(x), o.d)
		for k, c := range o.cols {
			g[c] += o.d[k]
		}
	}
	return g, nil
}

// EvaluateConstraints returns the residual of every row in layout order.
func (nlp *GreyBoxNLP) EvaluateConstraints(x []float64) ([]float64, error) {
	if err := nlp.push(x); err != nil {
		return nil, err
	}

	c := make([]float64, nlp.nCon)
	for k := range nlp.cons {
		r := &nlp.cons[k]
		c[k] = r.f(r.gather(x))
	}
	for _, b := range nlp.blocks {
		eq, err := b.Equalities()
		if err != nil {
			return nil, err
		}
		copy(c[b.off.Equality:], eq)
	}
	for _, b := range nlp.blocks {
		out, err := b.Outputs()
		if err != nil {
			return nil, err
		}
		for i, v := range out {
			c[b.off.Output+i] = x[b.outCols[i]] - v
		}
	}
	for k := range nlp.bridges {
		br := &nlp.bridges[k]
		c[br.Row] = br.residual(x)
	}

	nlp.stats.NumCons++
	nlp.logger.Debug("constraints evaluated", slog.Int("call", nlp.stats.NumCons))
	return c, nil
}

// EvaluateJacobian returns the global constraint Jacobian in coordinate form.
// The structure is identical between calls, only the values change.
func (nlp *GreyBoxNLP) EvaluateJacobian(x []float64) (*sparse.Matrix, error) {
	if err := nlp.push(x); err != nil {
		return nil, err
	}

	jac := sparse.New(nlp.nCon, nlp.nPrimal, nlp.nnz)
	for k := range nlp.cons {
		r := &nlp.cons[k]
		clear(r.d)
		r.g(r.gather(x), r.d)
		for i, col := range r.cols {
			jac.Append(k, col, r.d[i])
		}
	}
	for _, b := range nlp.blocks {
		if err := b.AppendEqualityJacobian(&jac.Coord); err != nil {
			return nil, err
		}
	}
	for _, b := range nlp.blocks {
		for i, col := range b.outCols {
			jac.Append(b.off.Output+i, col, 1)
		}
		if err := b.AppendOutputJacobian(&jac.Coord, -1); err != nil {
			return nil, err
		}
	}
	for k := range nlp.bridges {
		nlp.bridges[k].jacobian(&jac.Coord)
	}

	nlp.nnz = jac.Len()
	nlp.stats.NumJac++
	nlp.logger.Debug("jacobian evaluated", slog.Int("call", nlp.stats.NumJac), slog.Int("nnz", nlp.nnz))
	return jac, nil
}

func (nlp *GreyBoxNLP) checkPrimal(x []float64) error {
	if len(x) != nlp.nPrimal {
		return fmt.Errorf("%w: got %d primal values, want %d", greybox.ErrDimension, len(x), nlp.nPrimal)
	}
	return nil
}

func (nlp *GreyBoxNLP) push(x []float64) error {
	if err := nlp.checkPrimal(x); err != nil {
		return err
	}
	for _, b := range nlp.blocks {
		if err := b.PushInputs(x); err != nil {
			return err
		}
	}
	return nil
}
