package mesh

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/notargets/goibm/InputParameters"
	"github.com/notargets/goibm/types"
	"github.com/notargets/goibm/utils"
)

/*
	CartesianMesh is a stretched, axis aligned, staggered mesh. Pressure lives at cell centers;
	velocity component f lives on the faces normal to axis f, so along its own axis it has n-1
	interior points (n when the axis is periodic, the last face then doubles as the first) and
	n cell centered points along the other axes.

	For every field and axis the mesh stores the point coordinates, the control volume widths,
	and an extended coordinate array holding one ghost position on each side:
		normal to the boundary  : the ghost sits on the boundary face
		tangent to the boundary : the ghost is mirrored half a cell outside the domain
		periodic                : the ghost is the image of the point on the opposite side
*/
type CartesianMesh struct {
	Dim      int
	N        [3]int // Cells per axis, 1 for the unused axis of a 2D mesh
	Min, Max [3]float64
	Periodic [3]bool
	vertices [3][]float64
	centers  [3][]float64
	coord    [4][3][]float64 // [field][axis], types.P indexes pressure
	ext      [4][3][]float64 // coord with a ghost position prepended and appended
	width    [4][3][]float64
	NPts     [4][3]int
	UOffsets [3]int // Global offset of each velocity component in the velocity vector
	UN, PN   int    // Global sizes of the velocity and pressure vectors
	ULayout  *utils.Layout
	PLayout  *utils.Layout
}

func NewCartesianMesh(comm *utils.Comm, dirs []InputParameters.MeshDirection, periodic [3]bool) (m *CartesianMesh, err error) {
	dim := len(dirs)
	if dim != 2 && dim != 3 {
		err = fmt.Errorf("mesh with %d directions: %w", dim, types.ErrConfiguration)
		return
	}
	m = &CartesianMesh{Dim: dim, Periodic: periodic}
	for a := 0; a < 3; a++ {
		if a >= dim {
			m.N[a] = 1
			m.vertices[a] = []float64{0, 1}
			m.Max[a] = 1
			m.Periodic[a] = false
			continue
		}
		if dir := strings.ToLower(dirs[a].Direction); dir != string(rune('x'+a)) {
			err = fmt.Errorf("mesh direction %d is %q: %w", a, dirs[a].Direction, types.ErrConfiguration)
			return
		}
		if m.vertices[a], err = stretchedVertices(dirs[a]); err != nil {
			return
		}
		m.N[a] = len(m.vertices[a]) - 1
		m.Min[a], m.Max[a] = m.vertices[a][0], m.vertices[a][m.N[a]]
	}
	for a := 0; a < 3; a++ {
		m.centers[a] = make([]float64, m.N[a])
		for i := range m.centers[a] {
			m.centers[a][i] = 0.5 * (m.vertices[a][i] + m.vertices[a][i+1])
		}
	}
	for f := types.U; f <= types.P; f++ {
		if f < types.P && int(f) >= dim {
			continue
		}
		for a := 0; a < 3; a++ {
			m.buildAxis(f, a)
		}
	}
	names := []string{"u", "v", "w"}[:dim]
	sizes := make([]int, dim)
	for f := 0; f < dim; f++ {
		m.UOffsets[f] = m.UN
		sizes[f] = m.FieldSize(types.Field(f))
		m.UN += sizes[f]
	}
	m.PN = m.FieldSize(types.P)
	m.ULayout = utils.NewBlockLayout(comm, sizes, names...)
	m.PLayout = utils.NewBlockLayout(comm, []int{m.PN}, "p")
	return
}

// stretchedVertices builds the vertex coordinates of one direction; in each sub-domain the
// cell widths grow geometrically, w_i = w_0 r^i
func stretchedVertices(md InputParameters.MeshDirection) (v []float64, err error) {
	v = []float64{md.Start}
	start := md.Start
	for _, sd := range md.SubDomains {
		r := sd.StretchRatio
		if r == 0 {
			r = 1
		}
		if sd.End <= start || sd.Cells < 1 || r < 0 {
			err = fmt.Errorf("sub-domain %+v of direction %q: %w", sd, md.Direction, types.ErrConfiguration)
			return
		}
		var (
			L  = sd.End - start
			w0 = L / float64(sd.Cells)
		)
		if math.Abs(r-1) > 1.e-12 {
			w0 = L * (r - 1) / (math.Pow(r, float64(sd.Cells)) - 1)
		}
		x, w := start, w0
		for i := 0; i < sd.Cells-1; i++ {
			x += w
			w *= r
			v = append(v, x)
		}
		v = append(v, sd.End) // Exact sub-domain end, no round off drift
		start = sd.End
	}
	return
}

func (m *CartesianMesh) buildAxis(f types.Field, a int) {
	var (
		n     = m.N[a]
		verts = m.vertices[a]
		cents = m.centers[a]
		L     = m.Max[a] - m.Min[a]
		c, w  []float64
		lo    float64
		hi    float64
	)
	normal := f != types.P && int(f) == a
	switch {
	case normal && m.Periodic[a]:
		c = make([]float64, n)
		copy(c, verts[1:])
		w = make([]float64, n)
		for i := 0; i < n-1; i++ {
			w[i] = cents[i+1] - cents[i]
		}
		w[n-1] = (verts[n] - cents[n-1]) + (cents[0] - verts[0])
	case normal:
		c = make([]float64, n-1)
		copy(c, verts[1:n])
		w = make([]float64, n-1)
		for i := range w {
			w[i] = cents[i+1] - cents[i]
		}
	default:
		c = make([]float64, n)
		copy(c, cents)
		w = make([]float64, n)
		for i := range w {
			w[i] = verts[i+1] - verts[i]
		}
	}
	switch {
	case m.Periodic[a]:
		lo, hi = c[len(c)-1]-L, c[0]+L
	case normal:
		lo, hi = verts[0], verts[n]
	default:
		lo, hi = 2*verts[0]-cents[0], 2*verts[n]-cents[n-1]
	}
	m.coord[f][a], m.width[f][a], m.NPts[f][a] = c, w, len(c)
	m.ext[f][a] = append(append([]float64{lo}, c...), hi)
}

func (m *CartesianMesh) Vertices(a int) []float64 { return m.vertices[a] }
func (m *CartesianMesh) Centers(a int) []float64  { return m.centers[a] }

// Coord is the coordinate of the i-th point of field f along axis a
func (m *CartesianMesh) Coord(f types.Field, a, i int) float64 { return m.coord[f][a][i] }

// ExtCoord accepts i in [-1, NPts], -1 and NPts are the ghost positions
func (m *CartesianMesh) ExtCoord(f types.Field, a, i int) float64 { return m.ext[f][a][i+1] }

func (m *CartesianMesh) Width(f types.Field, a, i int) float64 { return m.width[f][a][i] }

// Volume is the control volume of a point of field f
func (m *CartesianMesh) Volume(f types.Field, ijk [3]int) (vol float64) {
	vol = 1
	for a := 0; a < m.Dim; a++ {
		vol *= m.width[f][a][ijk[a]]
	}
	return
}

func (m *CartesianMesh) FieldSize(f types.Field) (n int) {
	n = 1
	for a := 0; a < m.Dim; a++ {
		n *= m.NPts[f][a]
	}
	return
}

// Index encodes a point of field f into the global velocity (f < P) or pressure index
func (m *CartesianMesh) Index(f types.Field, ijk [3]int) (g int) {
	np := m.NPts[f]
	for a := m.Dim - 1; a >= 0; a-- {
		g = g*np[a] + ijk[a]
	}
	if f < types.P {
		g += m.UOffsets[f]
	}
	return
}

// DecodeVelocity inverts Index for the velocity vector
func (m *CartesianMesh) DecodeVelocity(g int) (f types.Field, ijk [3]int) {
	for f = types.Field(m.Dim - 1); f > types.U; f-- {
		if g >= m.UOffsets[f] {
			break
		}
	}
	ijk = m.decode(f, g-m.UOffsets[f])
	return
}

func (m *CartesianMesh) DecodePressure(g int) [3]int { return m.decode(types.P, g) }

func (m *CartesianMesh) decode(f types.Field, local int) (ijk [3]int) {
	np := m.NPts[f]
	for a := 0; a < m.Dim; a++ {
		ijk[a] = local % np[a]
		local /= np[a]
	}
	return
}

// Neighbor steps from point ijk of field f by +/-1 along axis a. It wraps on periodic axes and
// reports ghost=true when the step leaves the domain through a face.
func (m *CartesianMesh) Neighbor(f types.Field, ijk [3]int, a, step int) (nb [3]int, ghost bool) {
	nb = ijk
	nb[a] += step
	n := m.NPts[f][a]
	if nb[a] >= 0 && nb[a] < n {
		return
	}
	if m.Periodic[a] {
		nb[a] = (nb[a] + n) % n
		return
	}
	return nb, true
}

// PressureIndex returns the index of the last pressure point at or before x along axis a (-1
// between the face and the first cell center); x must be strictly inside the domain
func (m *CartesianMesh) PressureIndex(a int, x float64) (i int, err error) {
	if x <= m.Min[a] || x >= m.Max[a] {
		err = fmt.Errorf("coordinate %g on axis %d outside of (%g, %g): %w",
			x, a, m.Min[a], m.Max[a], types.ErrDomainBounds)
		return
	}
	c := m.coord[types.P][a]
	i = sort.Search(len(c), func(k int) bool { return c[k] > x }) - 1
	return
}

func (m *CartesianMesh) Info() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Cartesian mesh, %dD\n", m.Dim)
	for a := 0; a < m.Dim; a++ {
		fmt.Fprintf(&sb, "  %c: [%g, %g], %d cells, periodic = %v\n", 'x'+a, m.Min[a], m.Max[a], m.N[a], m.Periodic[a])
	}
	for f := 0; f < m.Dim; f++ {
		fmt.Fprintf(&sb, "  %s: %v points\n", types.Field(f), m.NPts[f][:m.Dim])
	}
	fmt.Fprintf(&sb, "  p: %v points\n", m.NPts[types.P][:m.Dim])
	return sb.String()
}
