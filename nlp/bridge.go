// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"github.com/curioloop/greybox/sparse"
)

// Bridge joins a grey-box output exposed to a host variable into the regular
// equality machinery: a synthetic dummy column and one synthetic row
//
//	r = x[Dummy] - x[Source]
//
// whose Jacobian row holds exactly +1 at Dummy and -1 at Source.
type Bridge struct {
	Output string // "block.output"
	Source int    // primal column carrying the output value
	Dummy  int    // primal column of the dummy variable
	Row    int    // constraint row of the bridge equation
	Init   float64
}

func (b *Bridge) residual(x []float64) float64 {
	return x[b.Dummy] - x[b.Source]
}

func (b *Bridge) jacobian(dst *sparse.Coord) {
	dst.Append(b.Row, b.Dummy, 1)
	dst.Append(b.Row, b.Source, -1)
}

// bridgeInit sums the initial values of the referenced host variables.
// A variable without an initial value counts as zero for this sum only.
func bridgeInit(refs []*Variable) float64 {
	s := 0.0
	for _, v := range refs {
		if v.HasValue {
			s += v.Value
		}
	}
	return s
}
