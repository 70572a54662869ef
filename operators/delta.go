package operators

import (
	"math"

	"github.com/notargets/goibm/body"
	"github.com/notargets/goibm/delta"
	"github.com/notargets/goibm/mesh"
	"github.com/notargets/goibm/types"
	"github.com/notargets/goibm/utils"
)

// window is the index half width searched around a marker's pressure index; the kernel support
// is 1.5 widths, so two points on each side cover both cell centered and face points
const window = 2

// CreateDelta assembles the interpolation operator E (markers x velocity) and the spreading
// operator H = diag(1/dV) E^T (velocity x markers) (collective)
func CreateDelta(comm *utils.Comm, m *mesh.CartesianMesh, bp *body.BodyPack) (E, H utils.DistCSR) {
	dok := utils.NewDOK(bp.Layout, m.ULayout, "E")
	for b, bdy := range bp.Bodies {
		start, _ := bp.Layout.BlockRange(b)
		for c := 0; c < bdy.NLclPts; c++ {
			X := bdy.Coords[bdy.BgPt+c]
			for d := 0; d < bdy.Dim; d++ {
				row := start + c*bdy.Dim + d
				forEachNeighbor(m, types.Field(d), X, bdy.MeshIdx[c], func(ijk [3]int, w float64) {
					dok.Add(row, m.Index(types.Field(d), ijk), w)
				})
			}
		}
	}
	E = dok.ToCSR()
	H = utils.TransposeScatter(comm, E, m.ULayout, bp.Layout, func(g int) float64 {
		f, ijk := m.DecodeVelocity(g)
		return 1 / m.Volume(f, ijk)
	}, "H")
	return
}

// forEachNeighbor visits the points of field f inside the kernel support around X, with their
// tensor product weight
func forEachNeighbor(m *mesh.CartesianMesh, f types.Field, X []float64, meshIdx []int,
	fn func(ijk [3]int, w float64)) {
	var (
		ijk [3]int
		dim = m.Dim
	)
	var visit func(a int, w float64)
	visit = func(a int, w float64) {
		if a < 0 {
			fn(ijk, w)
			return
		}
		np := m.NPts[f][a]
		L := m.Max[a] - m.Min[a]
		for k := meshIdx[a] - window; k <= meshIdx[a]+window; k++ {
			kk := k
			if kk < 0 || kk >= np {
				if !m.Periodic[a] {
					continue
				}
				kk = (kk + np) % np
			}
			dist := m.Coord(f, a, kk) - X[a]
			if m.Periodic[a] {
				dist -= L * math.Round(dist/L)
			}
			wa := delta.Kernel(dist / m.Width(f, a, kk))
			if wa == 0 {
				continue
			}
			ijk[a] = kk
			visit(a-1, w*wa)
		}
	}
	visit(dim-1, 1)
}
