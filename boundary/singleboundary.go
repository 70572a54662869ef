package boundary

import (
	"fmt"
	"math"

	"github.com/notargets/goibm/mesh"
	"github.com/notargets/goibm/types"
)

/*
	A SingleBoundary is the treatment of one velocity component on one domain face. Every point
	of the component adjacent to the face has a ghost neighbor outside the domain whose value is
		ghost = a0 * interior + a1
	The points are held by every rank; they are numbered by collapsing the face's axis out of
	the point's (i,j,k).
*/
type SingleBoundary interface {
	Loc() types.BCLoc
	Field() types.Field
	Type() types.BCType
	Value() float64
	NPts() int
	Interior(n int) int // Global velocity index of the interior point
	Coefficients(n int) (a0, a1 float64)
	Evaluate(n int, interior float64) float64
	SetGhostICs(uGlobal []float64)
	UpdateEquations(uGlobal []float64, dt float64)
}

func NewSingleBoundary(m *mesh.CartesianMesh, loc types.BCLoc, field types.Field, value float64,
	bcType types.BCType) (sb SingleBoundary, err error) {
	if int(field) >= m.Dim || loc.Axis() >= m.Dim {
		err = fmt.Errorf("boundary %s for field %s in a %dD mesh: %w", loc, field, m.Dim, types.ErrConfiguration)
		return
	}
	b := newBase(m, loc, field, value, bcType)
	switch bcType {
	case types.NOBC:
		sb = b
	case types.PERIODIC:
		sb = newPeriodic(m, b)
	case types.DIRICHLET:
		sb = newDirichlet(b)
	case types.NEUMANN:
		sb = newNeumann(b)
	case types.CONVECTIVE:
		sb = newConvective(b)
	default:
		err = fmt.Errorf("boundary type %v on %s: %w", bcType, loc, types.ErrUnsupportedType)
	}
	return
}

type base struct {
	loc      types.BCLoc
	field    types.Field
	bcType   types.BCType
	value    float64
	normal   bool      // Field is the velocity component normal to the face
	interior []int     // Global velocity index of the points next to the face
	dL       []float64 // Distance from each point to the face
	a0, a1   []float64
}

func newBase(m *mesh.CartesianMesh, loc types.BCLoc, field types.Field, value float64, bcType types.BCType) (b *base) {
	var (
		a     = loc.Axis()
		np    = m.NPts[field]
		faceX = m.Min[a]
		iFace = 0
	)
	if loc.IsPlus() {
		faceX, iFace = m.Max[a], np[a]-1
	}
	b = &base{
		loc:    loc,
		field:  field,
		bcType: bcType,
		value:  value,
		normal: int(field) == a,
	}
	// Walk the face in the same order as PointIndex numbers it
	var ijk [3]int
	ijk[a] = iFace
	var walk func(axis int)
	walk = func(axis int) {
		if axis < 0 {
			b.interior = append(b.interior, m.Index(field, ijk))
			b.dL = append(b.dL, math.Abs(m.Coord(field, a, iFace)-faceX))
			return
		}
		if axis == a {
			walk(axis - 1)
			return
		}
		for ijk[axis] = 0; ijk[axis] < np[axis]; ijk[axis]++ {
			walk(axis - 1)
		}
	}
	walk(m.Dim - 1)
	n := len(b.interior)
	b.a0, b.a1 = make([]float64, n), make([]float64, n)
	return
}

// PointIndex numbers the points of a face: the point's (i,j,k) with the face axis collapsed
func PointIndex(m *mesh.CartesianMesh, field types.Field, faceAxis int, ijk [3]int) (n int) {
	np := m.NPts[field]
	for axis := m.Dim - 1; axis >= 0; axis-- {
		if axis == faceAxis {
			continue
		}
		n = n*np[axis] + ijk[axis]
	}
	return
}

func (b *base) Loc() types.BCLoc                    { return b.loc }
func (b *base) Field() types.Field                  { return b.field }
func (b *base) Type() types.BCType                  { return b.bcType }
func (b *base) Value() float64                      { return b.value }
func (b *base) NPts() int                           { return len(b.interior) }
func (b *base) Interior(n int) int                  { return b.interior[n] }
func (b *base) Coefficients(n int) (a0, a1 float64) { return b.a0[n], b.a1[n] }

func (b *base) Evaluate(n int, interior float64) float64 {
	return b.a0[n]*interior + b.a1[n]
}

func (b *base) SetGhostICs(uGlobal []float64)                 {}
func (b *base) UpdateEquations(uGlobal []float64, dt float64) {}

func (b *base) fill(a0, a1 float64) {
	for n := range b.a0 {
		b.a0[n], b.a1[n] = a0, a1
	}
}

// Periodic ghosts take the value of the point at the far end of the wrapped axis
type Periodic struct {
	*base
	opposite []int // Global velocity index of the wrapped neighbor
}

func newPeriodic(m *mesh.CartesianMesh, b *base) (p *Periodic) {
	var (
		a   = b.loc.Axis()
		end = m.NPts[b.field][a] - 1
	)
	p = &Periodic{base: b, opposite: make([]int, len(b.interior))}
	for n, g := range b.interior {
		_, ijk := m.DecodeVelocity(g)
		ijk[a] = end - ijk[a]
		p.opposite[n] = m.Index(b.field, ijk)
	}
	return
}

func (p *Periodic) SetGhostICs(uGlobal []float64) { p.UpdateEquations(uGlobal, 0) }

func (p *Periodic) UpdateEquations(uGlobal []float64, dt float64) {
	for n, g := range p.opposite {
		p.a0[n], p.a1[n] = 0, uGlobal[g]
	}
}

type Dirichlet struct {
	*base
}

func newDirichlet(b *base) *Dirichlet {
	if b.normal {
		b.fill(0, b.value)
	} else {
		b.fill(-1, 2*b.value)
	}
	return &Dirichlet{base: b}
}

// Neumann is a zero gradient condition
type Neumann struct {
	*base
}

func newNeumann(b *base) *Neumann {
	b.fill(1, 0)
	return &Neumann{base: b}
}

// Convective carries the boundary value ub out of the domain at the configured speed
type Convective struct {
	*base
	UB []float64
}

func newConvective(b *base) (c *Convective) {
	c = &Convective{base: b, UB: make([]float64, len(b.interior))}
	c.setCoefficients()
	return
}

func (c *Convective) setCoefficients() {
	for n, ub := range c.UB {
		if c.normal {
			c.a0[n], c.a1[n] = 0, ub
		} else {
			c.a0[n], c.a1[n] = -1, 2*ub
		}
	}
}

// SetGhostICs starts the boundary value from the adjacent interior velocity
func (c *Convective) SetGhostICs(uGlobal []float64) {
	for n, g := range c.interior {
		c.UB[n] = uGlobal[g]
	}
	c.setCoefficients()
}

func (c *Convective) UpdateEquations(uGlobal []float64, dt float64) {
	for n, g := range c.interior {
		c.UB[n] -= c.value * dt / c.dL[n] * (c.UB[n] - uGlobal[g])
	}
	c.setCoefficients()
}

func (c *Convective) SetBoundaryValues(ub []float64) (err error) {
	if len(ub) != len(c.UB) {
		return fmt.Errorf("convective boundary %s/%s has %d points, restart holds %d: %w",
			c.loc, c.field, len(c.UB), len(ub), types.ErrFileFormat)
	}
	copy(c.UB, ub)
	c.setCoefficients()
	return
}
