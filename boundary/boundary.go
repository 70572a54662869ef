package boundary

import (
	"fmt"
	"strings"

	"github.com/notargets/goibm/InputParameters"
	"github.com/notargets/goibm/mesh"
	"github.com/notargets/goibm/types"
	"github.com/notargets/goibm/utils"
)

// Boundary holds the treatment of every velocity component on every face of the domain
type Boundary struct {
	Dim  int
	mesh *mesh.CartesianMesh
	BDs  [6][3]SingleBoundary // [face][field]
}

// PeriodicFlags derives the periodic axes from the case file: a periodic axis needs every
// component to be periodic on both of its faces
func PeriodicFlags(dim int, bcs map[types.BCLoc][]*InputParameters.FieldBC) (periodic [3]bool, err error) {
	if err = checkComplete(dim, bcs); err != nil {
		return
	}
	for a := 0; a < dim; a++ {
		var count int
		for _, loc := range []types.BCLoc{types.BCLoc(2 * a), types.BCLoc(2*a + 1)} {
			for f := 0; f < dim; f++ {
				if strings.ToLower(bcs[loc][f].Type) == "periodic" {
					count++
				}
			}
		}
		switch count {
		case 0:
		case 2 * dim:
			periodic[a] = true
		default:
			err = fmt.Errorf("axis %c is periodic for only some faces or components: %w", 'x'+a,
				types.ErrConfiguration)
			return
		}
	}
	return
}

func checkComplete(dim int, bcs map[types.BCLoc][]*InputParameters.FieldBC) error {
	for loc := types.XMINUS; int(loc) < 2*dim; loc++ {
		fbcs, ok := bcs[loc]
		if !ok {
			return fmt.Errorf("no boundary condition on %s: %w", loc, types.ErrConfiguration)
		}
		for f := 0; f < dim; f++ {
			if fbcs[f] == nil {
				return fmt.Errorf("no boundary condition for %s on %s: %w", types.Field(f), loc,
					types.ErrConfiguration)
			}
		}
	}
	for loc := range bcs {
		if loc.Axis() >= dim {
			return fmt.Errorf("boundary %s in a %dD case: %w", loc, dim, types.ErrConfiguration)
		}
	}
	return nil
}

func NewBoundary(m *mesh.CartesianMesh, bcs map[types.BCLoc][]*InputParameters.FieldBC) (bd *Boundary, err error) {
	var periodic [3]bool
	if periodic, err = PeriodicFlags(m.Dim, bcs); err != nil {
		return
	}
	if periodic != m.Periodic {
		err = fmt.Errorf("mesh periodicity %v disagrees with the boundary conditions %v: %w",
			m.Periodic, periodic, types.ErrConfiguration)
		return
	}
	bd = &Boundary{Dim: m.Dim, mesh: m}
	for loc := types.XMINUS; int(loc) < 2*m.Dim; loc++ {
		for f := 0; f < m.Dim; f++ {
			var bcType types.BCType
			fbc := bcs[loc][f]
			if bcType, err = types.NewBCType(fbc.Type); err != nil {
				return
			}
			if bd.BDs[loc][f], err = NewSingleBoundary(m, loc, types.Field(f), fbc.Value, bcType); err != nil {
				return
			}
		}
	}
	return
}

// Ghost finds the face treatment and face point number for the ghost neighbor of point ijk of
// field f, reached by stepping out of the domain along axis a
func (bd *Boundary) Ghost(f types.Field, ijk [3]int, a int, plus bool) (sb SingleBoundary, n int) {
	loc := types.BCLoc(2 * a)
	if plus {
		loc++
	}
	sb = bd.BDs[loc][f]
	n = PointIndex(bd.mesh, f, a, ijk)
	return
}

// SetGhostICs initializes the state of convective faces from the initial velocity (collective)
func (bd *Boundary) SetGhostICs(comm *utils.Comm, u []float64) {
	uGlobal := bd.mesh.ULayout.Gather(comm, u)
	bd.forEach(func(sb SingleBoundary) { sb.SetGhostICs(uGlobal) })
}

// UpdateEquations advances convective boundary values by one time step (collective)
func (bd *Boundary) UpdateEquations(comm *utils.Comm, u []float64, dt float64) {
	uGlobal := bd.mesh.ULayout.Gather(comm, u)
	bd.forEach(func(sb SingleBoundary) { sb.UpdateEquations(uGlobal, dt) })
}

func (bd *Boundary) forEach(fn func(sb SingleBoundary)) {
	for loc := 0; loc < 2*bd.Dim; loc++ {
		for f := 0; f < bd.Dim; f++ {
			fn(bd.BDs[loc][f])
		}
	}
}

// ConvectiveState lists the boundary values of every convective face, in face/field order
func (bd *Boundary) ConvectiveState() (state [][]float64) {
	bd.forEach(func(sb SingleBoundary) {
		if c, ok := sb.(*Convective); ok {
			ub := make([]float64, len(c.UB))
			copy(ub, c.UB)
			state = append(state, ub)
		}
	})
	return
}

func (bd *Boundary) RestoreConvectiveState(state [][]float64) (err error) {
	var i int
	bd.forEach(func(sb SingleBoundary) {
		if c, ok := sb.(*Convective); ok && err == nil {
			if i >= len(state) {
				err = fmt.Errorf("restart holds %d convective boundaries, case has more: %w",
					len(state), types.ErrFileFormat)
				return
			}
			err = c.SetBoundaryValues(state[i])
			i++
		}
	})
	if err == nil && i != len(state) {
		err = fmt.Errorf("restart holds %d convective boundaries, case has %d: %w",
			len(state), i, types.ErrFileFormat)
	}
	return
}

func (bd *Boundary) Info() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Boundary conditions\n")
	for loc := 0; loc < 2*bd.Dim; loc++ {
		fmt.Fprintf(&sb, "  %-6s:", types.BCLoc(loc))
		for f := 0; f < bd.Dim; f++ {
			b := bd.BDs[loc][f]
			fmt.Fprintf(&sb, " %s=%s(%g)", b.Field(), b.Type(), b.Value())
		}
		fmt.Fprintf(&sb, "\n")
	}
	return sb.String()
}
