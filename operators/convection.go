package operators

import (
	"github.com/notargets/goibm/boundary"
	"github.com/notargets/goibm/mesh"
	"github.com/notargets/goibm/types"
	"github.com/notargets/goibm/utils"
)

// Convection evaluates the explicit convective term div(u u) of every velocity component with
// central averages on the staggered mesh; ghost values come from the current boundary state
type Convection struct {
	comm *utils.Comm
	mesh *mesh.CartesianMesh
	bd   *boundary.Boundary
}

func CreateConvection(comm *utils.Comm, m *mesh.CartesianMesh, bd *boundary.Boundary) *Convection {
	return &Convection{comm: comm, mesh: m, bd: bd}
}

// value fetches field f at ijk from the gathered velocity, stepping at most one point outside
// the domain along one axis
func (cv *Convection) value(uGlobal []float64, f types.Field, ijk [3]int) float64 {
	m := cv.mesh
	for a := 0; a < m.Dim; a++ {
		if np := m.NPts[f][a]; m.Periodic[a] {
			ijk[a] = (ijk[a] + np) % np
		}
	}
	for a := 0; a < m.Dim; a++ {
		np := m.NPts[f][a]
		if ijk[a] >= 0 && ijk[a] < np {
			continue
		}
		plus := ijk[a] >= np
		pt := ijk
		pt[a] = 0
		if plus {
			pt[a] = np - 1
		}
		sb, n := cv.bd.Ghost(f, pt, a, plus)
		return sb.Evaluate(n, cv.value(uGlobal, f, pt))
	}
	return uGlobal[m.Index(f, ijk)]
}

// Apply sets H to the convective term of u (collective)
func (cv *Convection) Apply(u, H []float64) {
	var (
		m       = cv.mesh
		uGlobal = m.ULayout.Gather(cv.comm, u)
	)
	m.ULayout.ForEachOwned(func(row, g int) {
		f, ijk := m.DecodeVelocity(g)
		var (
			fa  = int(f)
			sum float64
		)
		for b := 0; b < m.Dim; b++ {
			var (
				fm, fp [3]int
				flux   [2]float64
			)
			fm[b], fp[b] = -1, 1
			if b == fa {
				// Control volume faces sit at cell centers, between neighbors along f
				for s, off := range [2][3]int{fm, fp} {
					var nb [3]int
					for a := range nb {
						nb[a] = ijk[a] + off[a]
					}
					ubar := 0.5 * (cv.value(uGlobal, f, ijk) + cv.value(uGlobal, f, nb))
					flux[s] = ubar * ubar
				}
			} else {
				// Faces at vertices along b; u_b there is averaged along f
				for s, off := range [2][3]int{fm, fp} {
					var nb, bLo, bHi [3]int
					for a := range nb {
						nb[a] = ijk[a] + off[a]
					}
					uf := 0.5 * (cv.value(uGlobal, f, ijk) + cv.value(uGlobal, f, nb))
					bLo, bHi = ijk, ijk
					// u_b index along b: plus face is ijk[b], minus face ijk[b]-1
					bLo[b] = ijk[b] + (off[b]-1)/2
					bHi[b] = bLo[b]
					// Along f, the u_f point lies between centers ijk[f] and ijk[f]+1
					bHi[fa] = ijk[fa] + 1
					ub := 0.5 * (cv.value(uGlobal, types.Field(b), bLo) + cv.value(uGlobal, types.Field(b), bHi))
					flux[s] = uf * ub
				}
			}
			sum += (flux[1] - flux[0]) / m.Width(f, b, ijk[b])
		}
		H[row] = sum
	})
}
