package NavierStokes

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/notargets/goibm/InputParameters"
	"github.com/notargets/goibm/boundary"
	"github.com/notargets/goibm/linsolver"
	"github.com/notargets/goibm/mesh"
	"github.com/notargets/goibm/operators"
	"github.com/notargets/goibm/types"
	"github.com/notargets/goibm/utils"
	"gonum.org/v1/gonum/floats"
)

type SolverState uint8

const (
	Uninitialized SolverState = iota
	Initialized
	Stepping
	Finalized
)

var SolverStatePrintNames = []string{"Uninitialized", "Initialized", "Stepping", "Finalized"}

func (s SolverState) String() string {
	if int(s) < len(SolverStatePrintNames) {
		return SolverStatePrintNames[s]
	}
	return fmt.Sprintf("SolverState(%d)", int(s))
}

var ErrWrongState = errors.New("operation not allowed in the current solver state")

// Solver advances the flow one time step at a time. All methods are collective.
type Solver interface {
	Initialize() error
	Advance() error
	Finalize() error
	State() SolverState
	TimeIndex() int
	Time() float64
	Velocity() []float64            // Local piece of u
	Pressure() []float64            // Local piece of p
	Forces() [][]float64            // Force on each body after the last step, nil without bodies
	Iterations() []int              // Iterations of each linear solve of the last step
	WriteRestart(w io.Writer) error // Only rank 0's writer is used
	ReadRestart(r io.Reader) error  // Only rank 0's reader is used
	Info() string
	PrintHeader()
	PrintUpdate()
	PrintFinal(elapsed time.Duration, steps int)
}

type Options struct {
	Verbose bool
	Out     io.Writer // Progress output of rank 0, defaults to os.Stdout
	Dir     string    // Base directory of relative body files
}

// Stage names reported by the timers
const (
	StageInitialize      = "initialize"
	StageRHSVelocity     = "rhsVelocity"
	StageSolveVelocity   = "solveVelocity"
	StageRHSPoisson      = "rhsPoisson"
	StageSolvePoisson    = "solvePoisson"
	StageRHSForces       = "rhsForces"
	StageSolveForces     = "solveForces"
	StageProjection      = "projection"
	StageIntegrateForces = "integrateForces"
)

// variant holds the parts of a step that differ between the solvers
type variant interface {
	createOperators() error
	// pressureTerm adds the explicit pressure (and force) contribution to the velocity RHS
	pressureTerm(rhs []float64)
	project() error
	integrateForces() ([][]float64, error)
	forceUnknowns() ([]float64, *utils.Layout) // Local force unknowns and their layout, nil without bodies
	name() string
	Info() string
}

// NavierStokes is the fractional step solver without immersed bodies; the IB solvers embed it
type NavierStokes struct {
	comm       *utils.Comm
	Mesh       *mesh.CartesianMesh
	BC         *boundary.Boundary
	Nu, Dt     float64
	Convection types.StepScheme
	Diffusion  types.StepScheme
	cImp, cExp float64 // Diffusion weights at n+1 and n
	a1, a2     float64 // Convection weights at n and n-1
	initialU   []float64
	configs    struct{ velocity, poisson, forces linsolver.Config }

	L, D, G, BN, A utils.DistCSR
	BNG, DBNG      utils.DistCSR
	bc1, bc2       *operators.BCVector
	conv           *operators.Convection

	U, P                  []float64
	convCur, convPrev     []float64
	haveConvPrev          bool
	rhs1, uStar, lu, rhs2 []float64
	dp                    []float64

	velSolver, poissonSolver linsolver.LinSolver

	tIdx       int
	t          float64
	state      SolverState
	nBodies    int
	forces     [][]float64
	iterations []int
	Timers     *StageTimers
	verbose    bool
	out        io.Writer
	impl       variant
}

// NewSolver picks the variant named by the case
func NewSolver(comm *utils.Comm, ip *InputParameters.InputParameters, opts Options) (s Solver, err error) {
	var st types.SolverType
	if st, err = types.NewSolverType(ip.Parameters.Solver); err != nil {
		return
	}
	switch st {
	case types.NAVIERSTOKES:
		s, err = NewNavierStokes(comm, ip, opts)
	case types.IBPM:
		s, err = NewIBPM(comm, ip, opts, true)
	case types.TAIRACOLONIUS:
		s, err = NewIBPM(comm, ip, opts, false)
	case types.DECOUPLED:
		s, err = NewDecoupled(comm, ip, opts)
	default:
		err = fmt.Errorf("solver %v: %w", st, types.ErrUnsupportedType)
	}
	return
}

func NewNavierStokes(comm *utils.Comm, ip *InputParameters.InputParameters, opts Options) (ns *NavierStokes, err error) {
	if ns, err = newNavierStokes(comm, ip, opts); err != nil {
		return
	}
	ns.impl = ns
	return
}

func newNavierStokes(comm *utils.Comm, ip *InputParameters.InputParameters, opts Options) (ns *NavierStokes, err error) {
	var (
		bcs      map[types.BCLoc][]*InputParameters.FieldBC
		periodic [3]bool
		dim      = ip.Dim()
	)
	ns = &NavierStokes{
		comm:     comm,
		Nu:       ip.Flow.Nu,
		Dt:       ip.Parameters.Dt,
		initialU: make([]float64, dim),
		Timers: NewStageTimers(StageInitialize, StageRHSVelocity, StageSolveVelocity, StageRHSForces,
			StageSolveForces, StageRHSPoisson, StageSolvePoisson, StageProjection, StageIntegrateForces),
		verbose: opts.Verbose && comm.Rank() == 0,
		out:     opts.Out,
	}
	if ns.out == nil {
		ns.out = os.Stdout
	}
	copy(ns.initialU, ip.Flow.InitialVelocity)
	ns.configs.velocity = ip.Parameters.VelocitySolver
	ns.configs.poisson = ip.Parameters.PoissonSolver
	ns.configs.forces = ip.Parameters.ForcesSolver
	if ns.Convection, err = types.NewStepScheme(ip.Parameters.Convection); err != nil {
		return
	}
	if ns.Diffusion, err = types.NewStepScheme(ip.Parameters.Diffusion); err != nil {
		return
	}
	var implicit float64
	if implicit, ns.a1, ns.a2 = ns.Convection.Coefficients(); implicit != 0 {
		err = fmt.Errorf("convection scheme %v is implicit, only explicit schemes are supported: %w",
			ns.Convection, types.ErrConfiguration)
		return
	}
	var previous float64
	if ns.cImp, ns.cExp, previous = ns.Diffusion.Coefficients(); previous != 0 {
		err = fmt.Errorf("diffusion scheme %v uses two previous levels: %w", ns.Diffusion, types.ErrConfiguration)
		return
	}
	if bcs, err = ip.FieldBCs(); err != nil {
		return
	}
	if periodic, err = boundary.PeriodicFlags(dim, bcs); err != nil {
		return
	}
	if ns.Mesh, err = mesh.NewCartesianMesh(comm, ip.Mesh, periodic); err != nil {
		return
	}
	ns.BC, err = boundary.NewBoundary(ns.Mesh, bcs)
	return
}

func (ns *NavierStokes) State() SolverState  { return ns.state }
func (ns *NavierStokes) TimeIndex() int      { return ns.tIdx }
func (ns *NavierStokes) Time() float64       { return ns.t }
func (ns *NavierStokes) Velocity() []float64 { return ns.U }
func (ns *NavierStokes) Pressure() []float64 { return ns.P }
func (ns *NavierStokes) Forces() [][]float64 { return ns.forces }
func (ns *NavierStokes) Iterations() []int   { return ns.iterations }

func (ns *NavierStokes) checkState(op string, allowed ...SolverState) error {
	for _, s := range allowed {
		if ns.state == s {
			return nil
		}
	}
	return fmt.Errorf("%s in state %v: %w", op, ns.state, ErrWrongState)
}

// Initialize builds the operators and the linear solvers and sets the initial condition
func (ns *NavierStokes) Initialize() (err error) {
	if err = ns.checkState("initialize", Uninitialized); err != nil {
		return
	}
	err = ns.Timers.Time(StageInitialize, func() (err error) {
		m := ns.Mesh
		ns.L, ns.bc1 = operators.CreateLaplacian(m, ns.BC)
		ns.D, ns.bc2 = operators.CreateDivergence(m, ns.BC)
		ns.G = operators.CreateGradient(m)
		ns.BN = operators.CreateBnHead(m, ns.Dt)
		ns.A = operators.CreateVelocitySystem(ns.L, ns.Dt, ns.Nu, ns.cImp)
		ns.conv = operators.CreateConvection(ns.comm, m, ns.BC)

		ul := m.ULayout
		ns.U = ul.NewVector()
		ul.ForEachOwned(func(i, g int) {
			f, _ := m.DecodeVelocity(g)
			ns.U[i] = ns.initialU[f]
		})
		ns.convCur, ns.convPrev = ul.NewVector(), ul.NewVector()
		ns.rhs1, ns.uStar, ns.lu = ul.NewVector(), ul.NewVector(), ul.NewVector()
		ns.BC.SetGhostICs(ns.comm, ns.U)
		ns.bc1.Update()
		ns.bc2.Update()

		if ns.velSolver, err = linsolver.NewLinSolver(ns.comm, "velocity", ns.configs.velocity); err != nil {
			return
		}
		if err = ns.velSolver.SetOperator(ns.A); err != nil {
			return
		}
		return ns.impl.createOperators()
	})
	if err != nil {
		return
	}
	ns.state = Initialized
	ns.PrintInitialization()
	return
}

func (ns *NavierStokes) createOperators() (err error) {
	ns.DBNG, ns.BNG = operators.CreatePoissonSystem(ns.comm, ns.D, ns.BN, ns.G)
	ns.P = ns.Mesh.PLayout.NewVector()
	ns.rhs2, ns.dp = ns.Mesh.PLayout.NewVector(), ns.Mesh.PLayout.NewVector()
	if ns.poissonSolver, err = linsolver.NewLinSolver(ns.comm, "poisson", ns.configs.poisson); err != nil {
		return
	}
	return ns.poissonSolver.SetOperator(ns.DBNG)
}

// Advance moves the solution from time index n to n+1
func (ns *NavierStokes) Advance() (err error) {
	if err = ns.checkState("advance", Initialized, Stepping); err != nil {
		return
	}
	ns.state = Stepping
	ns.iterations = ns.iterations[:0]
	if err = ns.Timers.Time(StageRHSVelocity, ns.assembleRHSVelocity); err != nil {
		return
	}
	if err = ns.Timers.Time(StageSolveVelocity, ns.solveVelocity); err != nil {
		return
	}
	if err = ns.impl.project(); err != nil {
		return
	}
	err = ns.Timers.Time(StageIntegrateForces, func() (err error) {
		if ns.forces, err = ns.impl.integrateForces(); err != nil {
			return
		}
		if utils.IsNan(ns.forces) {
			err = fmt.Errorf("forces %v at time index %d: %w", ns.forces, ns.tIdx+1, types.ErrSolverConvergence)
		}
		return
	})
	if err != nil {
		return
	}
	ns.convCur, ns.convPrev = ns.convPrev, ns.convCur
	ns.haveConvPrev = true
	ns.tIdx++
	ns.t += ns.Dt
	return
}

func (ns *NavierStokes) assembleRHSVelocity() (err error) {
	ns.BC.UpdateEquations(ns.comm, ns.U, ns.Dt)
	ns.bc1.Update()
	ns.bc2.Update()
	ns.conv.Apply(ns.U, ns.convCur)
	if !ns.haveConvPrev {
		copy(ns.convPrev, ns.convCur)
	}
	ns.L.MulVecTo(ns.comm, ns.lu, ns.U)
	var (
		nuExp = ns.Nu * ns.cExp
		nuBC  = ns.Nu * (ns.cImp + ns.cExp)
		bc1   = ns.bc1.Values
	)
	floats.ScaleTo(ns.rhs1, 1/ns.Dt, ns.U)
	floats.AddScaled(ns.rhs1, nuExp, ns.lu)
	floats.AddScaled(ns.rhs1, nuBC, bc1)
	floats.AddScaled(ns.rhs1, -ns.a1, ns.convCur)
	floats.AddScaled(ns.rhs1, -ns.a2, ns.convPrev)
	ns.impl.pressureTerm(ns.rhs1)
	return
}

func (ns *NavierStokes) solveVelocity() (err error) {
	copy(ns.uStar, ns.U)
	err = ns.solve(ns.velSolver, ns.uStar, ns.rhs1)
	return
}

// solve records the iteration count and tags failures with the time index
func (ns *NavierStokes) solve(ls linsolver.LinSolver, x, b []float64) (err error) {
	if err = ls.Solve(x, b); err != nil {
		return fmt.Errorf("time index %d: %w", ns.tIdx+1, err)
	}
	ns.iterations = append(ns.iterations, ls.Iterations())
	return
}

// pinReference zeroes the RHS entry of the pinned pressure row
func pinReference(l *utils.Layout, rhs []float64) {
	if i := l.Local(operators.ReferenceRow); i >= 0 {
		rhs[i] = 0
	}
}

func (ns *NavierStokes) pressureTerm(rhs []float64) {
	floats.Sub(rhs, ns.G.MulVec(ns.comm, ns.P))
}

func (ns *NavierStokes) project() (err error) {
	ns.Timers.Time(StageRHSPoisson, func() error {
		ns.D.MulVecTo(ns.comm, ns.rhs2, ns.uStar)
		floats.Add(ns.rhs2, ns.bc2.Values)
		pinReference(ns.Mesh.PLayout, ns.rhs2)
		return nil
	})
	err = ns.Timers.Time(StageSolvePoisson, func() error {
		clear(ns.dp)
		return ns.solve(ns.poissonSolver, ns.dp, ns.rhs2)
	})
	if err != nil {
		return
	}
	return ns.Timers.Time(StageProjection, func() error {
		floats.SubTo(ns.U, ns.uStar, ns.BNG.MulVec(ns.comm, ns.dp))
		floats.Add(ns.P, ns.dp)
		return nil
	})
}

func (ns *NavierStokes) integrateForces() ([][]float64, error)     { return nil, nil }
func (ns *NavierStokes) forceUnknowns() ([]float64, *utils.Layout) { return nil, nil }
func (ns *NavierStokes) name() string                              { return types.NAVIERSTOKES.String() }

// Finalize stops the time loop and reports the stage timers
func (ns *NavierStokes) Finalize() (err error) {
	if err = ns.checkState("finalize", Initialized, Stepping); err != nil {
		return
	}
	ns.state = Finalized
	if ns.verbose {
		fmt.Fprintf(ns.out, "\nStage timers, rank 0\n")
		ns.Timers.Print(ns.out)
		fmt.Fprintf(ns.out, "%s\n", utils.GetMemUsage())
	}
	return
}

// Divergence returns D u + bc2 on the local pressure cells, the mass residual of u
func (ns *NavierStokes) Divergence() (div []float64) {
	div = ns.D.MulVec(ns.comm, ns.U)
	floats.Add(div, ns.bc2.Values)
	return
}

func (ns *NavierStokes) Info() string {
	return fmt.Sprintf("Solver: %s\n%s%s"+
		"nu = %g, dt = %g\nconvection: %v, diffusion: %v\n"+
		"velocity solver: %v\npoisson solver: %v\n",
		ns.impl.name(), ns.Mesh.Info(), ns.BC.Info(),
		ns.Nu, ns.Dt, ns.Convection, ns.Diffusion,
		ns.configs.velocity, ns.configs.poisson)
}

func (ns *NavierStokes) PrintInitialization() {
	if !ns.verbose {
		return
	}
	fmt.Fprintf(ns.out, "%s", ns.impl.Info())
	fmt.Fprintf(ns.out, "Initialization took %v\n", ns.Timers.Elapsed(StageInitialize).Round(time.Millisecond))
	fmt.Fprintf(ns.out, "%s\n", utils.GetMemUsage())
}

// PrintHeader starts the progress table written by PrintUpdate
func (ns *NavierStokes) PrintHeader() {
	if !ns.verbose {
		return
	}
	fmt.Fprintf(ns.out, "    iter        time     max|div|")
	for b := 0; b < ns.nBodies; b++ {
		fmt.Fprintf(ns.out, "   Fx[%d]      Fy[%d]     ", b, b)
	}
	fmt.Fprintf(ns.out, " iterations\n")
}

// PrintUpdate writes one row of the progress table (collective)
func (ns *NavierStokes) PrintUpdate() {
	var maxDiv float64
	for _, d := range ns.Divergence() {
		if d < 0 {
			d = -d
		}
		if d > maxDiv {
			maxDiv = d
		}
	}
	maxDiv = ns.comm.AllReduceMax(maxDiv)
	if !ns.verbose {
		return
	}
	format := "%11.4e"
	fmt.Fprintf(ns.out, "%8d%12.5f ", ns.tIdx, ns.t)
	fmt.Fprintf(ns.out, format, maxDiv)
	for _, f := range ns.forces {
		fmt.Fprintf(ns.out, " ")
		for d := 0; d < len(f) && d < 2; d++ {
			fmt.Fprintf(ns.out, format, f[d])
		}
	}
	fmt.Fprintf(ns.out, "  %v\n", ns.iterations)
}

func (ns *NavierStokes) PrintFinal(elapsed time.Duration, steps int) {
	if !ns.verbose || steps == 0 {
		return
	}
	rate := float64(elapsed.Microseconds()) / float64(ns.Mesh.UN*steps)
	fmt.Fprintf(ns.out, "\nRate of execution = %8.5f us/(velocity unknown*iteration) over %d iterations\n",
		rate, steps)
}
