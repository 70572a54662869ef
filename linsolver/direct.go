package linsolver

import (
	"fmt"
	"math"

	"github.com/notargets/goibm/types"
	"github.com/notargets/goibm/utils"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const maxCondition = 1.e14

// Direct gathers the whole operator on every rank and factors it once with a dense LU; it is
// meant for the modest coupled systems and for checking the Krylov solvers
type Direct struct {
	comm       *utils.Comm
	name       string
	layout     *utils.Layout
	lu         mat.LU
	rhs, sol   *mat.VecDense
	residual   float64
	iterations int
	factored   bool
	A          utils.DistCSR
}

func (ds *Direct) Name() string      { return ds.name }
func (ds *Direct) Iterations() int   { return ds.iterations }
func (ds *Direct) Residual() float64 { return ds.residual }

func (ds *Direct) SetOperator(A utils.DistCSR) (err error) {
	if A.RowLayout.N != A.ColLayout.N {
		return fmt.Errorf("operator %q of solver %q is not square", A.Name(), ds.name)
	}
	var (
		N     = A.RowLayout.N
		dense *mat.Dense
	)
	ds.A, ds.layout, ds.factored = A, A.RowLayout, false
	triplets := A.GatherTriplets(ds.comm)
	if N == 0 {
		return
	}
	dense = mat.NewDense(N, N, nil)
	for _, tr := range triplets {
		dense.Set(tr.Row, tr.Col, dense.At(tr.Row, tr.Col)+tr.Val)
	}
	ds.lu.Factorize(dense)
	if cond := ds.lu.Cond(); math.IsInf(cond, 1) || math.IsNaN(cond) || cond > maxCondition {
		return fmt.Errorf("direct solver %q: operator %q is singular (condition number %g): %w",
			ds.name, A.Name(), cond, types.ErrSolverConvergence)
	}
	ds.rhs, ds.sol = mat.NewVecDense(N, nil), mat.NewVecDense(N, nil)
	ds.factored = true
	return
}

func (ds *Direct) Solve(x, b []float64) (err error) {
	if ds.layout == nil {
		return fmt.Errorf("solver %q used before SetOperator", ds.name)
	}
	if len(x) != len(b) || len(x) != ds.layout.NLocal {
		return fmt.Errorf("solver %q: vector lengths %d and %d, operator has %d local rows",
			ds.name, len(x), len(b), ds.layout.NLocal)
	}
	bGlobal := ds.layout.Gather(ds.comm, b)
	ds.iterations = 1
	if !ds.factored { // Empty system
		ds.iterations = 0
		return
	}
	copy(ds.rhs.RawVector().Data, bGlobal)
	if err = ds.lu.SolveVecTo(ds.sol, false, ds.rhs); err != nil {
		return fmt.Errorf("direct solver %q: %v: %w", ds.name, err, types.ErrSolverConvergence)
	}
	xGlobal := ds.sol.RawVector().Data
	copy(x, ds.layout.Scatter(xGlobal))
	// True residual of the global system, identical on every rank
	ax := make([]float64, len(xGlobal))
	for _, tr := range ds.A.Triplets() {
		ax[tr.Row] += tr.Val * xGlobal[tr.Col]
	}
	local := make([]float64, ds.layout.NLocal)
	ds.layout.ForEachOwned(func(i, g int) {
		local[i] = bGlobal[g] - ax[g]
	})
	ds.residual = math.Sqrt(ds.comm.AllReduceSumScalar(floats.Dot(local, local)))
	return
}
