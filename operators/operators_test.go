package operators

import (
	"math"
	"testing"

	"github.com/notargets/goibm/InputParameters"
	"github.com/notargets/goibm/body"
	"github.com/notargets/goibm/boundary"
	"github.com/notargets/goibm/mesh"
	"github.com/notargets/goibm/types"
	"github.com/notargets/goibm/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCase struct {
	m  *mesh.CartesianMesh
	bd *boundary.Boundary
}

// newCase builds a 2D box on [-2,2]x[-2,2]; x faces carry u=uIn, y faces are periodic or
// Dirichlet with u=uIn, v=0
func newCase(t *testing.T, comm *utils.Comm, n int, uIn float64, periodicY bool, stretch float64) testCase {
	fbc := func(bcType string, v float64) *InputParameters.FieldBC {
		return &InputParameters.FieldBC{Type: bcType, Value: v}
	}
	yType := "DIRICHLET"
	if periodicY {
		yType = "PERIODIC"
	}
	bcs := map[types.BCLoc][]*InputParameters.FieldBC{
		types.XMINUS: {fbc("DIRICHLET", uIn), fbc("DIRICHLET", 0)},
		types.XPLUS:  {fbc("DIRICHLET", uIn), fbc("DIRICHLET", 0)},
		types.YMINUS: {fbc(yType, uIn), fbc(yType, 0)},
		types.YPLUS:  {fbc(yType, uIn), fbc(yType, 0)},
	}
	periodic, err := boundary.PeriodicFlags(2, bcs)
	require.NoError(t, err)
	dirs := []InputParameters.MeshDirection{
		{Direction: "x", Start: -2, SubDomains: []InputParameters.SubDomain{
			{End: 0, Cells: n / 2, StretchRatio: 1 / stretch}, {End: 2, Cells: n / 2, StretchRatio: stretch}}},
		{Direction: "y", Start: -2, SubDomains: []InputParameters.SubDomain{{End: 2, Cells: n, StretchRatio: 1}}},
	}
	m, err := mesh.NewCartesianMesh(comm, dirs, periodic)
	require.NoError(t, err)
	bd, err := boundary.NewBoundary(m, bcs)
	require.NoError(t, err)
	return testCase{m: m, bd: bd}
}

func fill(m *mesh.CartesianMesh, fn func(f types.Field, x [3]float64) float64) (u []float64) {
	u = m.ULayout.NewVector()
	m.ULayout.ForEachOwned(func(i, g int) {
		f, ijk := m.DecodeVelocity(g)
		var x [3]float64
		for a := 0; a < m.Dim; a++ {
			x[a] = m.Coord(f, a, ijk[a])
		}
		u[i] = fn(f, x)
	})
	return
}

func TestLaplacianDivergenceGradient(t *testing.T) {
	for _, NP := range []int{1, 3} {
		err := utils.RunSPMD(NP, func(comm *utils.Comm) error {
			tc := newCase(t, comm, 8, 1, false, 1.2)
			m := tc.m
			L, bc1 := CreateLaplacian(m, tc.bd)
			D, bc2 := CreateDivergence(m, tc.bd)
			G := CreateGradient(m)
			{ // A field equal to its boundary values has no Laplacian and no divergence
				u := fill(m, func(f types.Field, x [3]float64) float64 {
					if f == types.U {
						return 1
					}
					return 0
				})
				Lu := L.MulVec(comm, u)
				for i := range Lu {
					assert.InDelta(t, 0, Lu[i]+bc1.Values[i], 1.e-10)
				}
				Du := D.MulVec(comm, u)
				for i := range Du {
					assert.InDelta(t, 0, Du[i]+bc2.Values[i], 1.e-12)
				}
			}
			{ // The stretched three point stencil is exact for quadratics away from walls
				u := fill(m, func(f types.Field, x [3]float64) float64 { return x[0] * x[0] })
				Lu := L.MulVec(comm, u)
				m.ULayout.ForEachOwned(func(i, g int) {
					f, ijk := m.DecodeVelocity(g)
					if ijk[0] == 0 || ijk[0] == m.NPts[f][0]-1 || ijk[1] == 0 || ijk[1] == m.NPts[f][1]-1 {
						return
					}
					assert.InDelta(t, 2, Lu[i], 1.e-9)
				})
			}
			{ // Gradient of a linear pressure
				p := m.PLayout.NewVector()
				m.PLayout.ForEachOwned(func(i, g int) {
					ijk := m.DecodePressure(g)
					p[i] = 3*m.Coord(types.P, 0, ijk[0]) - m.Coord(types.P, 1, ijk[1])
				})
				Gp := G.MulVec(comm, p)
				m.ULayout.ForEachOwned(func(i, g int) {
					f, _ := m.DecodeVelocity(g)
					expected := 3.
					if f == types.V {
						expected = -1
					}
					assert.InDelta(t, expected, Gp[i], 1.e-12)
				})
			}
			return nil
		})
		require.NoError(t, err)
	}
}

func TestPeriodicOperators(t *testing.T) {
	comm := utils.NewSerialComm()
	tc := newCase(t, comm, 8, 1, true, 1)
	m := tc.m
	assert.Equal(t, 8, m.NPts[types.V][1])
	L, bc1 := CreateLaplacian(m, tc.bd)
	// A periodic sine wave in y is an eigenfunction of the discrete Laplacian
	u := fill(m, func(f types.Field, x [3]float64) float64 {
		if f == types.V {
			return math.Sin(math.Pi * x[1] / 2)
		}
		return 1
	})
	Lu := L.MulVec(comm, u)
	h := 0.5
	lambda := -4 / (h * h) * math.Pow(math.Sin(math.Pi*h/4), 2)
	m.ULayout.ForEachOwned(func(i, g int) {
		f, ijk := m.DecodeVelocity(g)
		if f != types.V || ijk[0] == 0 || ijk[0] == m.NPts[f][0]-1 {
			return
		}
		assert.InDelta(t, lambda*u[i], Lu[i]+bc1.Values[i], 1.e-10)
	})
	// Uniform flow is convected without change
	N := m.ULayout.NewVector()
	uniform := fill(m, func(f types.Field, x [3]float64) float64 {
		if f == types.U {
			return 1
		}
		return 0
	})
	CreateConvection(comm, m, tc.bd).Apply(uniform, N)
	for _, v := range N {
		assert.InDelta(t, 0, v, 1.e-12)
	}
}

func TestConvection(t *testing.T) {
	comm := utils.NewSerialComm()
	tc := newCase(t, comm, 32, 1, true, 1)
	m := tc.m
	// u = 1, v = sin(pi y/2): the u term is d(uv)/dy and the v term is d(vv)/dy
	u := fill(m, func(f types.Field, x [3]float64) float64 {
		if f == types.V {
			return math.Sin(math.Pi * x[1] / 2)
		}
		return 1
	})
	N := m.ULayout.NewVector()
	CreateConvection(comm, m, tc.bd).Apply(u, N)
	m.ULayout.ForEachOwned(func(i, g int) {
		f, ijk := m.DecodeVelocity(g)
		if ijk[0] == 0 || ijk[0] == m.NPts[f][0]-1 {
			return
		}
		y := m.Coord(f, 1, ijk[1])
		switch f {
		case types.U: // d(uv)/dy with u = 1
			assert.InDelta(t, math.Pi/2*math.Cos(math.Pi*y/2), N[i], 0.05)
		case types.V: // d(vv)/dy
			assert.InDelta(t, math.Pi/2*math.Sin(math.Pi*y), N[i], 0.1)
		}
	})
	{ // Shifting the flow one cell along the periodic axis shifts the result, corners included
		tc := newCase(t, comm, 8, 1, true, 1.2)
		m := tc.m
		h := 0.5
		wave := func(shift float64) []float64 {
			return fill(m, func(f types.Field, x [3]float64) float64 {
				y := x[1] + shift
				if f == types.V {
					return 0.3 * math.Sin(math.Pi*y/2) * (4 - x[0]*x[0])
				}
				return 1 + 0.2*math.Cos(math.Pi*y/2)
			})
		}
		cv := CreateConvection(comm, m, tc.bd)
		N0, N1 := m.ULayout.NewVector(), m.ULayout.NewVector()
		cv.Apply(wave(0), N0)
		cv.Apply(wave(h), N1)
		N0g := m.ULayout.Gather(comm, N0)
		m.ULayout.ForEachOwned(func(i, g int) {
			f, ijk := m.DecodeVelocity(g)
			next := ijk
			next[1] = (ijk[1] + 1) % m.NPts[f][1]
			assert.InDelta(t, N0g[m.Index(f, next)], N1[i], 1.e-12, "%v %v", f, ijk)
		})
	}
}

func TestDelta(t *testing.T) {
	for _, NP := range []int{1, 2} {
		err := utils.RunSPMD(NP, func(comm *utils.Comm) error {
			tc := newCase(t, comm, 16, 1, true, 1)
			m := tc.m
			coords := body.Circle([]float64{0.05, -0.1}, 0.5, 0.25)
			b, err := body.NewSingleBodyFromCoords(comm, 2, "circle", coords)
			if err != nil {
				return err
			}
			bp, err := body.NewBodyPackFromBodies(comm, 2, []*body.SingleBody{b})
			if err != nil {
				return err
			}
			require.NoError(t, bp.UpdateMeshIdx(m))
			E, H := CreateDelta(comm, m, bp)
			{ // Interior markers interpolate a constant exactly
				ones := m.ULayout.NewVector()
				for i := range ones {
					ones[i] = 1
				}
				Eu := E.MulVec(comm, ones)
				for _, v := range Eu {
					assert.InDelta(t, 1, v, 1.e-12)
				}
			}
			{ // Interpolation of a linear field is exact for the Roma kernel
				u := fill(m, func(f types.Field, x [3]float64) float64 { return 2*x[0] + x[1] })
				Eu := E.MulVec(comm, u)
				for c := 0; c < b.NLclPts; c++ {
					X := b.Coords[b.BgPt+c]
					for d := 0; d < 2; d++ {
						assert.InDelta(t, 2*X[0]+X[1], Eu[c*2+d], 1.e-10)
					}
				}
			}
			{ // H is the volume scaled transpose of E
				Ef := E.Gather(comm)
				for _, tr := range H.GatherTriplets(comm) {
					f, ijk := m.DecodeVelocity(tr.Row)
					assert.InDelta(t, Ef.At(tr.Col, tr.Row)/m.Volume(f, ijk), tr.Val, 1.e-12)
				}
				assert.Equal(t, int(comm.AllReduceSumScalar(float64(E.NNZ()))),
					int(comm.AllReduceSumScalar(float64(H.NNZ()))))
			}
			{ // Coupled system shapes and the pinned reference row
				P := utils.Concat(m.PLayout, bp.Layout)
				D, _ := CreateDivergence(m, tc.bd)
				G := CreateGradient(m)
				BN := CreateBnHead(m, 0.1)
				DEBNGH, BNGH, DE := CreateCoupledSystem(comm, P, D, E, BN, G, H)
				assert.Equal(t, P.N, DEBNGH.ColLayout.N)
				assert.Equal(t, P.N, BNGH.ColLayout.N)
				assert.Equal(t, m.UN, DE.ColLayout.N)
				full := DEBNGH.Gather(comm)
				assert.Equal(t, 1., full.At(ReferenceRow, ReferenceRow))
				assert.Equal(t, 0., full.At(ReferenceRow, ReferenceRow+1))
				// The force block of DE*BN*GH is E*BN*H
				EBNH, _ := CreateForcesSystem(comm, E, BN, H)
				eFull := EBNH.Gather(comm)
				for r := 0; r < bp.Layout.N; r++ {
					for c := 0; c < bp.Layout.N; c++ {
						assert.InDelta(t, eFull.At(r, c), full.At(m.PN+r, m.PN+c), 1.e-12)
					}
				}
				DBNG, _ := CreatePoissonSystem(comm, D, BN, G)
				assert.Equal(t, m.PN, DBNG.RowLayout.N)
			}
			return nil
		})
		require.NoError(t, err)
	}
}
