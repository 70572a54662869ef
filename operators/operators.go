package operators

import (
	"github.com/notargets/goibm/boundary"
	"github.com/notargets/goibm/mesh"
	"github.com/notargets/goibm/types"
	"github.com/notargets/goibm/utils"
)

// CreateLaplacian assembles the velocity Laplacian on the stretched mesh. Ghost neighbors fold
// their a0 coefficient into the diagonal; the a1 part is returned as bc1.
func CreateLaplacian(m *mesh.CartesianMesh, bd *boundary.Boundary) (L utils.DistCSR, bc1 *BCVector) {
	var (
		ul  = m.ULayout
		dok = utils.NewDOK(ul, ul, "L")
	)
	bc1 = newBCVector(ul.NLocal)
	ul.ForEachOwned(func(row, g int) {
		f, ijk := m.DecodeVelocity(g)
		for a := 0; a < m.Dim; a++ {
			var (
				i   = ijk[a]
				x   = m.Coord(f, a, i)
				dxm = x - m.ExtCoord(f, a, i-1)
				dxp = m.ExtCoord(f, a, i+1) - x
				cm  = 2 / (dxm * (dxm + dxp))
				cp  = 2 / (dxp * (dxm + dxp))
			)
			dok.Add(row, g, -(cm + cp))
			for _, side := range []struct {
				step  int
				coeff float64
			}{{-1, cm}, {1, cp}} {
				nb, ghost := m.Neighbor(f, ijk, a, side.step)
				if !ghost {
					dok.Add(row, m.Index(f, nb), side.coeff)
					continue
				}
				sb, n := bd.Ghost(f, ijk, a, side.step > 0)
				a0, _ := sb.Coefficients(n)
				dok.Add(row, g, side.coeff*a0)
				bc1.add(row, side.coeff, sb, n)
			}
		}
	})
	L = dok.ToCSR()
	bc1.Update()
	return
}

// CreateDivergence maps velocity to pressure cells; boundary faces read the normal ghost, whose
// a1 part is returned as bc2
func CreateDivergence(m *mesh.CartesianMesh, bd *boundary.Boundary) (D utils.DistCSR, bc2 *BCVector) {
	var (
		pl  = m.PLayout
		dok = utils.NewDOK(pl, m.ULayout, "D")
	)
	bc2 = newBCVector(pl.NLocal)
	pl.ForEachOwned(func(row, g int) {
		ijk := m.DecodePressure(g)
		for a := 0; a < m.Dim; a++ {
			var (
				f     = types.Field(a)
				i     = ijk[a]
				np    = m.NPts[f][a]
				coeff = 1 / m.Width(types.P, a, i)
			)
			// Plus face of cell i is velocity point i, minus face is point i-1
			face := func(k int, sign float64, plus bool) {
				pt := ijk
				switch {
				case k >= 0 && k < np:
					pt[a] = k
					dok.Add(row, m.Index(f, pt), sign*coeff)
				case m.Periodic[a]:
					pt[a] = (k + np) % np
					dok.Add(row, m.Index(f, pt), sign*coeff)
				default:
					pt[a] = 0
					if plus {
						pt[a] = np - 1
					}
					sb, n := bd.Ghost(f, pt, a, plus)
					a0, _ := sb.Coefficients(n)
					dok.Add(row, m.Index(f, pt), sign*coeff*a0)
					bc2.add(row, sign*coeff, sb, n)
				}
			}
			face(i, 1, true)
			face(i-1, -1, false)
		}
	})
	D = dok.ToCSR()
	bc2.Update()
	return
}

// CreateGradient maps pressure to velocity points
func CreateGradient(m *mesh.CartesianMesh) (G utils.DistCSR) {
	var (
		ul  = m.ULayout
		dok = utils.NewDOK(ul, m.PLayout, "G")
	)
	ul.ForEachOwned(func(row, g int) {
		f, ijk := m.DecodeVelocity(g)
		var (
			a      = int(f)
			i      = ijk[a]
			coeff  = 1 / m.Width(f, a, i)
			lo, hi = ijk, ijk
		)
		hi[a] = (i + 1) % m.N[a] // Wraps only for the last point of a periodic axis
		dok.Add(row, m.Index(types.P, hi), coeff)
		dok.Add(row, m.Index(types.P, lo), -coeff)
	})
	G = dok.ToCSR()
	return
}

// CreateBnHead is the explicit approximation of the inverse momentum operator, dt*I
func CreateBnHead(m *mesh.CartesianMesh, dt float64) utils.DistCSR {
	return utils.Identity(m.ULayout, dt, "BN")
}
