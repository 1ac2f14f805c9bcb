// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nlp composes a host algebraic model and any number of grey-box
// blocks into one sparse nonlinear program.
//
// The index arena is computed once by Problem.New and never changes.
//
// Primal vector:
//
//	[ host variables | block inputs ... | block output slots ... | dummies ]
//
// Constraint vector:
//
//	[ host constraints | block equalities ... | block outputs ... | bridges ]
//
// An output exposed to a host variable has no slot of its own: its value
// lives in the host column and a dummy bridge joins it to the system.
// Every output, exposed or not, contributes the row x[col] - 𝒉ₒ(𝐮).
package nlp

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/curioloop/greybox/greybox"
)

// Problem specifies the composed program.
type Problem struct {
	Host   Host
	Blocks []Block
	// Optional logger, nil discards.
	Logger *slog.Logger
}

type resolved struct {
	cols []int
	f    Function
	g    Gradient
	v    []float64
	d    []float64
}

func (r *resolved) gather(x []float64) []float64 {
	for k, c := range r.cols {
		r.v[k] = x[c]
	}
	return r.v
}

type blockLayout struct {
	*Binding
	outCols []int // primal column carrying each output
}

// GreyBoxNLP is the aggregated sparse program handed to a solver.
// It is not safe for concurrent use.
type GreyBoxNLP struct {
	logger *slog.Logger

	nPrimal, nCon int
	nHostVar      int
	nHostCon      int

	blocks  []blockLayout
	bridges []Bridge
	cons    []resolved
	obj     *resolved

	primalNames []string
	conNames    []string
	columns     map[string]int
	rows        map[string]int

	init         []float64
	lower, upper []float64

	nnz   int
	stats Stats
}

// Stats counts evaluation calls.
type Stats struct {
	NumCons int // constraint evaluations
	NumJac  int // Jacobian evaluations
	NumObj  int // objective evaluations
	NumGrad int // objective gradient evaluations
}

// New builds the index arena for the problem.
func (p *Problem) New() (*GreyBoxNLP, error) {

	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	nlp := &GreyBoxNLP{
		logger:  logger,
		columns: make(map[string]int),
		rows:    make(map[string]int),
	}

	hostVars := p.Host.Variables
	varByName := make(map[string]*Variable, len(hostVars))
	for k := range hostVars {
		v := &hostVars[k]
		if err := nlp.addColumn(v.Name); err != nil {
			return nil, err
		}
		if b := v.Bound; b != nil && b.Lower > b.Upper {
			return nil, fmt.Errorf("%w: variable %q bound has no feasible value", greybox.ErrConfiguration, v.Name)
		}
		varByName[v.Name] = v
	}
	nlp.nHostVar = len(hostVars)

	// Host variables claimed by an exposed output, to reject double exposure.
	claimed := make(map[string]string)
	seen := make(map[string]struct{}, len(p.Blocks))
	for _, blk := range p.Blocks {
		if _, dup := seen[blk.Name]; dup || blk.Name == "" {
			return nil, fmt.Errorf("%w: invalid or duplicate block name %q", greybox.ErrConfiguration, blk.Name)
		}
		seen[blk.Name] = struct{}{}

		b, err := Bind(blk.Name, blk.Model, Offsets{})
		if err != nil {
			return nil, err
		}
		outputs := blk.Model.OutputNames()
		for out, host := range blk.Expose {
			if !slices.Contains(outputs, out) {
				return nil, fmt.Errorf("%w: block %q exposes unknown output %q", greybox.ErrConfiguration, blk.Name, out)
			}
			if _, ok := varByName[host]; !ok {
				return nil, fmt.Errorf("%w: block %q exposes %q to unknown host variable %q",
					greybox.ErrConfiguration, blk.Name, out, host)
			}
			if prev, ok := claimed[host]; ok {
				return nil, fmt.Errorf("%w: host variable %q already carries %s", greybox.ErrConfiguration, host, prev)
			}
			claimed[host] = blk.Name + "." + out
		}
		inputs := blk.Model.InputNames()
		for name := range blk.Init {
			_, exposed := blk.Expose[name]
			switch {
			case slices.Contains(inputs, name):
			case slices.Contains(outputs, name) && !exposed:
			default:
				return nil, fmt.Errorf("%w: block %q has initial value for %q, which is neither an input nor an unexposed output",
					greybox.ErrConfiguration, blk.Name, name)
			}
		}
		nlp.blocks = append(nlp.blocks, blockLayout{Binding: b, outCols: make([]int, b.nOut)})
	}

	// Inputs, one segment per block.
	for k, blk := range p.Blocks {
		b := nlp.blocks[k]
		b.off.Input = len(nlp.primalNames)
		for _, name := range blk.Model.InputNames() {
			if err := nlp.addColumn(blk.Name + "." + name); err != nil {
				return nil, err
			}
		}
	}

	// Output slots for outputs not carried by a host variable.
	for k, blk := range p.Blocks {
		b := nlp.blocks[k]
		for i, name := range blk.Model.OutputNames() {
			ref := blk.Name + "." + name
			if host, ok := blk.Expose[name]; ok {
				b.outCols[i] = nlp.columns[host]
				if _, dup := nlp.columns[ref]; dup {
					return nil, fmt.Errorf("%w: duplicate column %q", greybox.ErrConfiguration, ref)
				}
				nlp.columns[ref] = b.outCols[i]
				continue
			}
			b.outCols[i] = len(nlp.primalNames)
			if err := nlp.addColumn(ref); err != nil {
				return nil, err
			}
		}
	}

	// Dummy columns, one per exposed output.
	for k, blk := range p.Blocks {
		b := nlp.blocks[k]
		for i, name := range blk.Model.OutputNames() {
			host, ok := blk.Expose[name]
			if !ok {
				continue
			}
			ref := blk.Name + "." + name
			dummy := len(nlp.primalNames)
			if err := nlp.addColumn(blk.Name + ".dummy[" + name + "]"); err != nil {
				return nil, err
			}
			nlp.bridges = append(nlp.bridges, Bridge{
				Output: ref,
				Source: b.outCols[i],
				Dummy:  dummy,
				Init:   bridgeInit([]*Variable{varByName[host]}),
			})
		}
	}

	nlp.nPrimal = len(nlp.primalNames)
	if nlp.nPrimal == 0 {
		return nil, fmt.Errorf("%w: composed problem has no variables", greybox.ErrConfiguration)
	}

	// Rows: host constraints first.
	for _, c := range p.Host.Constraints {
		r, err := nlp.resolve(c.Name, c.Vars, c.Func, c.Grad)
		if err != nil {
			return nil, err
		}
		if err = nlp.addRow(c.Name); err != nil {
			return nil, err
		}
		nlp.cons = append(nlp.cons, r)
	}
	nlp.nHostCon = len(p.Host.Constraints)

	for k, blk := range p.Blocks {
		b := nlp.blocks[k]
		b.off.Equality = len(nlp.conNames)
		for _, name := range blk.Model.EqualityConstraintNames() {
			if err := nlp.addRow(blk.Name + "." + name); err != nil {
				return nil, err
			}
		}
	}
	for k, blk := range p.Blocks {
		b := nlp.blocks[k]
		b.off.Output = len(nlp.conNames)
		for _, name := range blk.Model.OutputNames() {
			if err := nlp.addRow(blk.Name + ".output[" + name + "]"); err != nil {
				return nil, err
			}
		}
	}
	for k := range nlp.bridges {
		br := &nlp.bridges[k]
		br.Row = len(nlp.conNames)
		if err := nlp.addRow(nlp.primalNames[br.Dummy]); err != nil {
			return nil, err
		}
	}
	nlp.nCon = len(nlp.conNames)

	if o := p.Host.Objective; o != nil {
		r, err := nlp.resolve("objective", o.Vars, o.Func, o.Grad)
		if err != nil {
			return nil, err
		}
		nlp.obj = &r
	}

	nlp.initPrimals(p)
	if err := nlp.verify(); err != nil {
		return nil, err
	}

	logger.Info("grey-box problem built",
		slog.Int("primals", nlp.nPrimal),
		slog.Int("constraints", nlp.nCon),
		slog.Int("blocks", len(nlp.blocks)),
		slog.Int("bridges", len(nlp.bridges)))
	for _, b := range nlp.blocks {
		logger.Debug("grey-box block bound",
			slog.String("block", b.name),
			slog.Int("input", b.off.Input),
			slog.Int("equality", b.off.Equality),
			slog.Int("output", b.off.Output),
			slog.Any("output_columns", b.outCols))
	}
	return nlp, nil
}

func (nlp *GreyBoxNLP) addColumn(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty variable name", greybox.ErrConfiguration)
	}
	if _, dup := nlp.columns[name]; dup {
		return fmt.Errorf("%w: duplicate column %q", greybox.ErrConfiguration, name)
	}
	nlp.columns[name] = len(nlp.primalNames)
	nlp.primalNames = append(nlp.primalNames, name)
	return nil
}

func (nlp *GreyBoxNLP) addRow(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty constraint name", greybox.ErrConfiguration)
	}
	if _, dup := nlp.rows[name]; dup {
		return fmt.Errorf("%w: duplicate row %q", greybox.ErrConfiguration, name)
	}
	nlp.rows[name] = len(nlp.conNames)
	nlp.conNames = append(nlp.conNames, name)
	return nil
}

func (nlp *GreyBoxNLP) resolve(name string, vars []string, f Function, g Gradient) (resolved, error) {
	switch {
	case f == nil:
		return resolved{}, fmt.Errorf("%w: %q has no function", greybox.ErrConfiguration, name)
	case g == nil:
		return resolved{}, fmt.Errorf("%w: %q has no gradient", greybox.ErrConfiguration, name)
	}
	cols := make([]int, len(vars))
	for k, ref := range vars {
		c, ok := nlp.columns[ref]
		if !ok {
			return resolved{}, fmt.Errorf("%w: %q references unknown variable %q", greybox.ErrConfiguration, name, ref)
		}
		cols[k] = c
	}
	return resolved{
		cols: cols,
		f:    f, g: g,
		v: make([]float64, len(vars)),
		d: make([]float64, len(vars)),
	}, nil
}

func (nlp *GreyBoxNLP) initPrimals(p *Problem) {
	n := nlp.nPrimal
	nlp.init = make([]float64, n)
	nlp.lower = make([]float64, n)
	nlp.upper = make([]float64, n)
	for i := range n {
		nlp.lower[i] = math.Inf(-1)
		nlp.upper[i] = math.Inf(1)
	}
	for k, v := range p.Host.Variables {
		if v.HasValue {
			nlp.init[k] = v.Value
		}
		if v.Bound != nil {
			nlp.lower[k], nlp.upper[k] = v.Bound.Lower, v.Bound.Upper
		}
	}
	for k, blk := range p.Blocks {
		b := nlp.blocks[k]
		for i, name := range blk.Model.InputNames() {
			nlp.init[b.off.Input+i] = blk.Init[name]
		}
		for i, name := range blk.Model.OutputNames() {
			if _, ok := blk.Expose[name]; !ok {
				nlp.init[b.outCols[i]] = blk.Init[name]
			}
		}
	}
	for _, br := range nlp.bridges {
		nlp.init[br.Dummy] = br.Init
	}
}

// verify checks that the owned column and row ranges are pairwise disjoint
// and cover the index space without gaps.
func (nlp *GreyBoxNLP) verify() error {
	cols := make([]int, nlp.nPrimal)
	rows := make([]int, nlp.nCon)
	claim := func(owner []int, from, n int) {
		for i := from; i < from+n && i < len(owner); i++ {
			owner[i]++
		}
	}
	claim(cols, 0, nlp.nHostVar)
	claim(rows, 0, nlp.nHostCon)
	for _, b := range nlp.blocks {
		claim(cols, b.off.Input, b.nIn)
		claim(rows, b.off.Equality, b.nEq)
		claim(rows, b.off.Output, b.nOut)
		for _, c := range b.outCols {
			if c >= nlp.nHostVar {
				claim(cols, c, 1)
			}
		}
	}
	for _, br := range nlp.bridges {
		claim(cols, br.Dummy, 1)
		claim(rows, br.Row, 1)
	}
	for i, n := range cols {
		if n != 1 {
			return fmt.Errorf("%w: column %d claimed %d times", greybox.ErrConfiguration, i, n)
		}
	}
	for i, n := range rows {
		if n != 1 {
			return fmt.Errorf("%w: row %d claimed %d times", greybox.ErrConfiguration, i, n)
		}
	}
	return nil
}
