package boundary

import (
	"testing"

	"github.com/notargets/goibm/InputParameters"
	"github.com/notargets/goibm/mesh"
	"github.com/notargets/goibm/types"
	"github.com/notargets/goibm/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fbc(bcType string, value float64) *InputParameters.FieldBC {
	return &InputParameters.FieldBC{Type: bcType, Value: value}
}

// channel: inlet on x-, convective outlet on x+, y periodic, 4x2 cells on [0,4]x[0,2]
func channel(t *testing.T) (m *mesh.CartesianMesh, bcs map[types.BCLoc][]*InputParameters.FieldBC) {
	bcs = map[types.BCLoc][]*InputParameters.FieldBC{
		types.XMINUS: {fbc("DIRICHLET", 1), fbc("DIRICHLET", 0.5), nil},
		types.XPLUS:  {fbc("CONVECTIVE", 1), fbc("NEUMANN", 0), nil},
		types.YMINUS: {fbc("PERIODIC", 0), fbc("PERIODIC", 0), nil},
		types.YPLUS:  {fbc("PERIODIC", 0), fbc("PERIODIC", 0), nil},
	}
	periodic, err := PeriodicFlags(2, bcs)
	require.NoError(t, err)
	assert.Equal(t, [3]bool{false, true, false}, periodic)
	sub := func(dir string, end float64, cells int) InputParameters.MeshDirection {
		return InputParameters.MeshDirection{Direction: dir,
			SubDomains: []InputParameters.SubDomain{{End: end, Cells: cells, StretchRatio: 1}}}
	}
	m, err = mesh.NewCartesianMesh(utils.NewSerialComm(),
		[]InputParameters.MeshDirection{sub("x", 4, 4), sub("y", 2, 2)}, periodic)
	require.NoError(t, err)
	return
}

func TestCoefficients(t *testing.T) {
	m, bcs := channel(t)
	bd, err := NewBoundary(m, bcs)
	require.NoError(t, err)
	{ // Dirichlet: normal ghost on the face, tangential ghost mirrored
		sb := bd.BDs[types.XMINUS][types.U]
		assert.Equal(t, 2, sb.NPts())
		a0, a1 := sb.Coefficients(1)
		assert.Equal(t, [2]float64{0, 1}, [2]float64{a0, a1})
		a0, a1 = bd.BDs[types.XMINUS][types.V].Coefficients(0)
		assert.Equal(t, [2]float64{-1, 1}, [2]float64{a0, a1})
		assert.Equal(t, 0., bd.BDs[types.XMINUS][types.V].Evaluate(0, 1)) // Mean of ghost and interior is 0.5
	}
	{ // Neumann copies the interior
		sb := bd.BDs[types.XPLUS][types.V]
		assert.Equal(t, 0.3, sb.Evaluate(0, 0.3))
	}
	{ // Periodic ghosts are the wrapped neighbors on the far face
		uGlobal := make([]float64, m.ULayout.N)
		for g := range uGlobal {
			uGlobal[g] = float64(g)
		}
		bd.SetGhostICs(utils.NewSerialComm(), uGlobal)
		for _, f := range []types.Field{types.U, types.V} {
			lo, hi := bd.BDs[types.YMINUS][f], bd.BDs[types.YPLUS][f]
			last := m.NPts[f][1] - 1
			for n := 0; n < lo.NPts(); n++ {
				far := float64(m.Index(f, [3]int{n, last}))
				assert.Equal(t, far, lo.Evaluate(n, -1))
				a0, a1 := lo.Coefficients(n)
				assert.Equal(t, [2]float64{0, far}, [2]float64{a0, a1})
				assert.Equal(t, float64(m.Index(f, [3]int{n, 0})), hi.Evaluate(n, -1))
			}
		}
		uGlobal[m.Index(types.U, [3]int{1, 0})] = 42
		bd.UpdateEquations(utils.NewSerialComm(), uGlobal, 0.1)
		assert.Equal(t, 42., bd.BDs[types.YPLUS][types.U].Evaluate(1, 0))
	}
	{ // NoBC ghosts are zero
		sb, err := NewSingleBoundary(m, types.XPLUS, types.U, 3, types.NOBC)
		require.NoError(t, err)
		assert.Equal(t, 0., sb.Evaluate(0, 7))
	}
	{ // Unknown types are refused
		_, err := NewSingleBoundary(m, types.XPLUS, types.U, 0, types.BCType(42))
		assert.ErrorIs(t, err, types.ErrUnsupportedType)
		bad := map[types.BCLoc][]*InputParameters.FieldBC{}
		for k, v := range bcs {
			bad[k] = v
		}
		bad[types.XPLUS] = []*InputParameters.FieldBC{fbc("OUTFLOW", 0), fbc("NEUMANN", 0)}
		_, err = NewBoundary(m, bad)
		assert.ErrorIs(t, err, types.ErrUnsupportedType)
	}
	{ // Ghost lookup finds the face and numbers points along the face
		sb, n := bd.Ghost(types.U, [3]int{2, 1, 0}, 0, true)
		assert.Equal(t, types.XPLUS, sb.Loc())
		assert.Equal(t, 1, n)
		assert.Equal(t, m.Index(types.U, [3]int{2, 1, 0}), sb.Interior(n))
	}
}

func TestConvective(t *testing.T) {
	m, bcs := channel(t)
	bd, err := NewBoundary(m, bcs)
	require.NoError(t, err)
	comm := utils.NewSerialComm()
	u := m.ULayout.NewVector()
	for i := range u {
		u[i] = 2
	}
	bd.SetGhostICs(comm, u)
	sb := bd.BDs[types.XPLUS][types.U]
	a0, a1 := sb.Coefficients(0)
	assert.Equal(t, [2]float64{0, 2}, [2]float64{a0, a1})
	// Interior drops to 1, ub relaxes by c*dt/dL with dL = 1 (last u face at x=3)
	for i := range u {
		u[i] = 1
	}
	bd.UpdateEquations(comm, u, 0.1)
	_, a1 = sb.Coefficients(0)
	assert.InDelta(t, 2-0.1*(2-1), a1, 1.e-14)
	state := bd.ConvectiveState()
	require.Len(t, state, 1)
	assert.InDeltaSlice(t, []float64{1.9, 1.9}, state[0], 1.e-14)
	// Restore
	require.NoError(t, bd.RestoreConvectiveState([][]float64{{5, 6}}))
	_, a1 = sb.Coefficients(1)
	assert.Equal(t, 6., a1)
	assert.ErrorIs(t, bd.RestoreConvectiveState([][]float64{{5}}), types.ErrFileFormat)
	assert.ErrorIs(t, bd.RestoreConvectiveState(nil), types.ErrFileFormat)
}

func TestPeriodicFlags(t *testing.T) {
	bcs := map[types.BCLoc][]*InputParameters.FieldBC{
		types.XMINUS: {fbc("PERIODIC", 0), fbc("PERIODIC", 0)},
		types.XPLUS:  {fbc("PERIODIC", 0), fbc("DIRICHLET", 0)},
		types.YMINUS: {fbc("DIRICHLET", 0), fbc("DIRICHLET", 0)},
		types.YPLUS:  {fbc("DIRICHLET", 0), fbc("DIRICHLET", 0)},
	}
	_, err := PeriodicFlags(2, bcs)
	assert.ErrorIs(t, err, types.ErrConfiguration)
	delete(bcs, types.YPLUS)
	_, err = PeriodicFlags(2, bcs)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}
