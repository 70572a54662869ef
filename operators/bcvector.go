package operators

import (
	"github.com/notargets/goibm/boundary"
)

// ghostRef records that a local row of an operator reads the ghost of face point N with weight
// Coeff; the ghost's a0 part is folded into the operator, the a1 part goes to a BCVector
type ghostRef struct {
	Row   int
	Coeff float64
	SB    boundary.SingleBoundary
	N     int
}

// BCVector is the boundary contribution of an operator (bc1 for the Laplacian, bc2 for the
// divergence). Its values follow the boundary coefficients and must be refreshed with Update
// after the boundary changes.
type BCVector struct {
	refs   []ghostRef
	Values []float64 // Local piece, row layout of the operator
}

func newBCVector(nLocal int) *BCVector {
	return &BCVector{Values: make([]float64, nLocal)}
}

func (bv *BCVector) add(row int, coeff float64, sb boundary.SingleBoundary, n int) {
	bv.refs = append(bv.refs, ghostRef{Row: row, Coeff: coeff, SB: sb, N: n})
}

func (bv *BCVector) Update() {
	for i := range bv.Values {
		bv.Values[i] = 0
	}
	for _, ref := range bv.refs {
		_, a1 := ref.SB.Coefficients(ref.N)
		bv.Values[ref.Row] += ref.Coeff * a1
	}
}
