package NavierStokes

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/notargets/goibm/InputParameters"
	"github.com/notargets/goibm/body"
	"github.com/notargets/goibm/linsolver"
	"github.com/notargets/goibm/types"
	"github.com/notargets/goibm/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cylinderCase is uniform flow u=1 through [-2,2]x[-2,2], periodic in y, past a circle of
// radius 0.5 with markers spaced like the mesh
func cylinderCase(t *testing.T, solver string, nt int) (ip *InputParameters.InputParameters, dir string) {
	const n = 24
	dir = t.TempDir()
	fp, err := os.Create(filepath.Join(dir, "circle.body"))
	require.NoError(t, err)
	require.NoError(t, body.WriteBody(fp, body.Circle([]float64{0, 0}, 0.5, 4./n)))
	require.NoError(t, fp.Close())
	caseFile := fmt.Sprintf(`
title: cylinder
mesh:
  - {direction: x, start: -2, subDomains: [{end: 2, cells: %d}]}
  - {direction: y, start: -2, subDomains: [{end: 2, cells: %d}]}
flow:
  nu: 0.01
  initialVelocity: [1, 0]
  boundaryConditions:
    - {location: xMinus, u: {type: DIRICHLET, value: 1}, v: {type: DIRICHLET, value: 0}}
    - {location: xPlus, u: {type: DIRICHLET, value: 1}, v: {type: DIRICHLET, value: 0}}
    - {location: yMinus, u: {type: PERIODIC}, v: {type: PERIODIC}}
    - {location: yPlus, u: {type: PERIODIC}, v: {type: PERIODIC}}
parameters:
  dt: 0.01
  nt: %d
  solver: %s
  velocitySolver: {type: bicgstab, preconditioner: jacobi, rtol: 1e-12}
  poissonSolver: {type: direct}
  forcesSolver: {type: direct}
bodies:
  - {name: cylinder, file: circle.body}
`, n, n, nt, solver)
	ip = &InputParameters.InputParameters{}
	require.NoError(t, ip.Parse([]byte(caseFile)))
	return
}

// cavityCase is the lid driven cavity on the unit square, every wall is a no-penetration wall
func cavityCase(t *testing.T, n, nt int) (ip *InputParameters.InputParameters) {
	caseFile := fmt.Sprintf(`
mesh:
  - {direction: x, start: 0, subDomains: [{end: 0.5, cells: %d, stretchRatio: 0.9}, {end: 1, cells: %d, stretchRatio: 1.1}]}
  - {direction: y, start: 0, subDomains: [{end: 1, cells: %d}]}
flow:
  nu: 0.1
  boundaryConditions:
    - {location: xMinus, u: {type: DIRICHLET}, v: {type: DIRICHLET}}
    - {location: xPlus, u: {type: DIRICHLET}, v: {type: DIRICHLET}}
    - {location: yMinus, u: {type: DIRICHLET}, v: {type: DIRICHLET}}
    - {location: yPlus, u: {type: DIRICHLET, value: 1}, v: {type: DIRICHLET}}
parameters:
  dt: 0.01
  nt: %d
  velocitySolver: {type: bicgstab, preconditioner: jacobi, rtol: 1e-12}
  poissonSolver: {type: direct}
  forcesSolver: {type: direct}
`, n/2, n/2, n, nt)
	ip = &InputParameters.InputParameters{}
	require.NoError(t, ip.Parse([]byte(caseFile)))
	return
}

func maxAbs(v []float64) (m float64) {
	for _, x := range v {
		m = math.Max(m, math.Abs(x))
	}
	return
}

func TestCylinderOneStep(t *testing.T) {
	ip, dir := cylinderCase(t, "IBPM", 1)
	drag := make(map[int][]float64)
	for _, NP := range []int{1, 2} {
		err := utils.RunSPMD(NP, func(comm *utils.Comm) (err error) {
			var s Solver
			if s, err = NewSolver(comm, ip, Options{Dir: dir}); err != nil {
				return
			}
			if err = s.Initialize(); err != nil {
				return
			}
			if err = s.Advance(); err != nil {
				return
			}
			if comm.Rank() == 0 {
				drag[NP] = s.Forces()[0]
			}
			assert.Equal(t, 1, s.TimeIndex())
			assert.InDelta(t, 0.01, s.Time(), 1.e-15)
			assert.Len(t, s.Iterations(), 2)
			return
		})
		require.NoError(t, err)
	}
	{ // The body holds the flow back
		f := drag[1]
		require.Len(t, f, 2)
		assert.False(t, utils.IsNan(f))
		assert.Greater(t, f[0], 0.)
		assert.Less(t, math.Abs(f[1]), 1.e-4*f[0]) // Symmetric about y = 0
	}
	{ // Partitioning does not change the answer
		assert.InDeltaSlice(t, drag[1], drag[2], 1.e-6*math.Abs(drag[1][0]))
	}
}

func TestVariantsAgree(t *testing.T) {
	comm := utils.NewSerialComm()
	forces := make(map[string][]float64)
	for _, solver := range []string{"IBPM", "TAIRACOLONIUS", "DECOUPLED"} {
		ip, dir := cylinderCase(t, solver, 1)
		s, err := NewSolver(comm, ip, Options{Dir: dir})
		require.NoError(t, err)
		require.NoError(t, s.Initialize())
		require.NoError(t, s.Advance())
		forces[solver] = s.Forces()[0]
		assert.Greater(t, forces[solver][0], 0., solver)
		if ib, ok := s.(*IBPM); ok { // The coupled solve leaves the markers at rest
			assert.Less(t, maxAbs(ib.E.MulVec(comm, ib.U)), 1.e-8, solver)
		}
	}
	// With P = 0 initially the incremental and the non incremental first steps coincide
	assert.InDeltaSlice(t, forces["IBPM"], forces["TAIRACOLONIUS"], 1.e-8*forces["IBPM"][0])
	// The decoupled splitting changes the force, not its order of magnitude
	assert.Greater(t, forces["DECOUPLED"][0], 0.2*forces["IBPM"][0])
	assert.Less(t, forces["DECOUPLED"][0], 5*forces["IBPM"][0])
}

func TestDivergenceFree(t *testing.T) {
	ip := cavityCase(t, 16, 3)
	for _, NP := range []int{1, 2} {
		err := utils.RunSPMD(NP, func(comm *utils.Comm) (err error) {
			var ns *NavierStokes
			if ns, err = NewNavierStokes(comm, ip, Options{}); err != nil {
				return
			}
			if err = ns.Initialize(); err != nil {
				return
			}
			for i := 0; i < 3; i++ {
				if err = ns.Advance(); err != nil {
					return
				}
				div := comm.AllReduceMax(maxAbs(ns.Divergence()))
				assert.Less(t, div, 1.e-9)
			}
			assert.Nil(t, ns.Forces())
			// The lid drags the fluid along
			assert.Greater(t, comm.AllReduceMax(maxAbs(ns.Velocity())), 0.1)
			return
		})
		require.NoError(t, err)
	}
	{ // The iterative Poisson default leaves a divergence at the level of its tolerance
		ip := cavityCase(t, 16, 3)
		ip.Parameters.PoissonSolver = linsolver.DefaultConfig()
		comm := utils.NewSerialComm()
		ns, err := NewNavierStokes(comm, ip, Options{})
		require.NoError(t, err)
		require.NoError(t, ns.Initialize())
		for i := 0; i < 3; i++ {
			require.NoError(t, ns.Advance())
			assert.Less(t, maxAbs(ns.Divergence()), 1.e-5)
		}
		assert.Contains(t, ns.Info(), "poisson solver: bicgstab, preconditioner = jacobi")
	}
}

func TestStateMachine(t *testing.T) {
	comm := utils.NewSerialComm()
	ip := cavityCase(t, 8, 1)
	s, err := NewSolver(comm, ip, Options{})
	require.NoError(t, err)
	assert.Equal(t, Uninitialized, s.State())
	{ // Nothing moves before initialization
		assert.ErrorIs(t, s.Advance(), ErrWrongState)
		assert.ErrorIs(t, s.Finalize(), ErrWrongState)
		assert.ErrorIs(t, s.ReadRestart(nil), ErrWrongState)
	}
	require.NoError(t, s.Initialize())
	assert.Equal(t, Initialized, s.State())
	assert.ErrorIs(t, s.Initialize(), ErrWrongState)
	require.NoError(t, s.Advance())
	assert.Equal(t, Stepping, s.State())
	assert.ErrorIs(t, s.ReadRestart(nil), ErrWrongState)
	require.NoError(t, s.Finalize())
	assert.Equal(t, Finalized, s.State())
	assert.ErrorIs(t, s.Advance(), ErrWrongState)
	assert.Equal(t, "Finalized", s.State().String())
}

func TestConfigurationErrors(t *testing.T) {
	comm := utils.NewSerialComm()
	{ // Convection must be explicit
		ip := cavityCase(t, 8, 1)
		ip.Parameters.Convection = "CRANK_NICOLSON"
		_, err := NewSolver(comm, ip, Options{})
		assert.ErrorIs(t, err, types.ErrConfiguration)
	}
	{ // Diffusion may not use two levels
		ip := cavityCase(t, 8, 1)
		ip.Parameters.Diffusion = "ADAMS_BASHFORTH_2"
		_, err := NewSolver(comm, ip, Options{})
		assert.ErrorIs(t, err, types.ErrConfiguration)
	}
	{ // Immersed boundary solvers need a body
		ip := cavityCase(t, 8, 1)
		for _, solver := range []string{"IBPM", "DECOUPLED", "TAIRACOLONIUS"} {
			ip.Parameters.Solver = solver
			_, err := NewSolver(comm, ip, Options{})
			assert.ErrorIs(t, err, types.ErrConfiguration)
		}
	}
	{ // Unknown linear solver
		ip := cavityCase(t, 8, 1)
		ip.Parameters.PoissonSolver.Type = "gmres"
		s, err := NewSolver(comm, ip, Options{})
		require.NoError(t, err)
		assert.ErrorIs(t, s.Initialize(), types.ErrUnsupportedType)
	}
}

func TestRestart(t *testing.T) {
	comm := utils.NewSerialComm()
	ip, dir := cylinderCase(t, "IBPM", 3)
	s, err := NewSolver(comm, ip, Options{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, s.Initialize())
	require.NoError(t, s.Advance())
	require.NoError(t, s.Advance())
	var buf bytes.Buffer
	require.NoError(t, s.WriteRestart(&buf))

	r, err := NewSolver(comm, ip, Options{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, r.Initialize())
	require.NoError(t, r.ReadRestart(&buf))
	assert.Equal(t, 2, r.TimeIndex())
	assert.InDelta(t, s.Time(), r.Time(), 1.e-15)
	assert.Equal(t, s.Velocity(), r.Velocity())
	assert.Equal(t, s.Pressure(), r.Pressure())
	assert.Equal(t, s.(*IBPM).F, r.(*IBPM).F)
	{ // Both continue identically
		require.NoError(t, s.Advance())
		require.NoError(t, r.Advance())
		assert.InDeltaSlice(t, s.Velocity(), r.Velocity(), 1.e-12)
		assert.InDeltaSlice(t, s.Forces()[0], r.Forces()[0], 1.e-10)
	}
	{ // A restart from another mesh is rejected
		ip2 := cavityCase(t, 8, 1)
		o, err := NewSolver(comm, ip2, Options{})
		require.NoError(t, err)
		require.NoError(t, o.Initialize())
		buf.Reset()
		require.NoError(t, s.WriteRestart(&buf))
		assert.ErrorIs(t, o.ReadRestart(&buf), types.ErrFileFormat)
		assert.ErrorIs(t, o.ReadRestart(bytes.NewReader([]byte("junk"))), types.ErrFileFormat)
	}
	{ // Same mesh and bodies, but another solver's unknowns
		ipD, dirD := cylinderCase(t, "DECOUPLED", 3)
		d, err := NewSolver(comm, ipD, Options{Dir: dirD})
		require.NoError(t, err)
		require.NoError(t, d.Initialize())
		buf.Reset()
		require.NoError(t, s.WriteRestart(&buf))
		err = d.ReadRestart(&buf)
		assert.ErrorIs(t, err, types.ErrFileFormat)
		assert.Contains(t, err.Error(), "IBPM")
		assert.Equal(t, 0, d.TimeIndex())
	}
}

func countLines(t *testing.T, file string) (n int) {
	fp, err := os.Open(file)
	require.NoError(t, err)
	defer fp.Close()
	scanner := bufio.NewScanner(fp)
	for scanner.Scan() {
		n++
	}
	return
}

func TestSimulation(t *testing.T) {
	ip, dir := cylinderCase(t, "DECOUPLED", 3)
	ip.Parameters.NRestart = 2
	out := filepath.Join(dir, "out")
	var history []float64
	err := utils.RunSPMD(2, func(comm *utils.Comm) (err error) {
		var (
			sim *Simulation
			w   bytes.Buffer
		)
		if sim, err = NewSimulation(comm, ip, out, Options{Dir: dir, Verbose: true, Out: &w}); err != nil {
			return
		}
		if comm.Rank() == 0 {
			sim.OnStep = func(tIdx int, time float64, forces [][]float64) {
				history = append(history, forces[0][0])
			}
		}
		if err = sim.Run(); err != nil {
			return
		}
		if comm.Rank() == 0 {
			assert.Contains(t, w.String(), "Decoupled IBPM")
			assert.Contains(t, w.String(), "solveForces")
		} else {
			assert.Zero(t, w.Len())
		}
		return
	})
	require.NoError(t, err)
	assert.Len(t, history, 3)
	assert.Equal(t, 3, countLines(t, filepath.Join(out, "forces-0.txt")))
	assert.Equal(t, 3, countLines(t, filepath.Join(out, "iterations-0.txt")))
	assert.FileExists(t, RestartFile(out, 2))
	assert.NoFileExists(t, RestartFile(out, 3))
	{ // Continue from step 2, serially
		ip.Parameters.StartStep = 2
		sim, err := NewSimulation(utils.NewSerialComm(), ip, out, Options{Dir: dir})
		require.NoError(t, err)
		require.NoError(t, sim.Run())
		assert.Equal(t, 3, sim.Solver.TimeIndex())
		assert.Equal(t, 1, countLines(t, filepath.Join(out, "forces-2.txt")))
		assert.InDelta(t, history[2], sim.Solver.Forces()[0][0], 1.e-6*math.Abs(history[2]))
	}
	{ // Missing restart
		ip.Parameters.StartStep = 1
		sim, err := NewSimulation(utils.NewSerialComm(), ip, out, Options{Dir: dir})
		require.NoError(t, err)
		assert.Error(t, sim.Run())
	}
}

func TestOutputs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteForces(&buf, 0.5, [][]float64{{1, -2}, {0.25, 0}}))
	require.NoError(t, WriteIterations(&buf, 7, []int{3, 1}))
	assert.Equal(t, "0.500000\t1.0000000000e+00\t-2.0000000000e+00\t2.5000000000e-01\t0.0000000000e+00\n"+
		"7\t3\t1\n", buf.String())
	{
		st := NewStageTimers("a", "b")
		require.NoError(t, st.Time("b", func() error { return nil }))
		assert.Error(t, st.Time("c", func() error { return fmt.Errorf("failed") }))
		assert.Equal(t, 1, st.Count("b"))
		assert.Equal(t, 0, st.Count("a"))
		var w bytes.Buffer
		st.Print(&w)
		assert.NotContains(t, w.String(), "a ")
		assert.Contains(t, w.String(), "c ")
	}
}
