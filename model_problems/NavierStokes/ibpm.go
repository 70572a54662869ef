package NavierStokes

import (
	"fmt"
	"strings"

	"github.com/notargets/goibm/InputParameters"
	"github.com/notargets/goibm/body"
	"github.com/notargets/goibm/linsolver"
	"github.com/notargets/goibm/operators"
	"github.com/notargets/goibm/types"
	"github.com/notargets/goibm/utils"
	"gonum.org/v1/gonum/floats"
)

/*
	IBPM solves pressure and Lagrangian forces together. The unknown P = [p; f] lives on a
	composite layout, pressure block first, then one block per body. The modified Poisson system
	DE*BN*GH, with GH = [G, -H] and DE = [D; -E], enforces the divergence constraint on the cells
	and the no-slip constraint E u = 0 on the markers.

	Incremental (IBPM): the velocity RHS carries -GH*P^n and the system is solved for dP.
	Non incremental (Taira and Colonius 2007): the velocity RHS has no pressure term and the
	system is solved for P itself.
*/
type IBPM struct {
	*NavierStokes
	Bodies      *body.BodyPack
	Incremental bool
	E, H        utils.DistCSR
	DE          utils.DistCSR
	BNGH        utils.DistCSR
	DEBNGH      utils.DistCSR
	PLayout     *utils.Layout // Pressure followed by the force blocks of each body
	Pc, dPc     []float64     // Composite unknowns, P and f are views into Pc
	F           []float64
	rhsC        []float64
}

func NewIBPM(comm *utils.Comm, ip *InputParameters.InputParameters, opts Options, incremental bool) (ib *IBPM, err error) {
	ib = &IBPM{Incremental: incremental}
	if ib.NavierStokes, err = newNavierStokes(comm, ip, opts); err != nil {
		return
	}
	if len(ip.Bodies) == 0 {
		err = fmt.Errorf("%s needs at least one body: %w", ib.name(), types.ErrConfiguration)
		return
	}
	if ib.Bodies, err = body.NewBodyPack(comm, ib.Mesh, ip.Bodies, opts.Dir); err != nil {
		return
	}
	ib.nBodies = ib.Bodies.NBodies
	ib.impl = ib
	return
}

func NewTairaColonius(comm *utils.Comm, ip *InputParameters.InputParameters, opts Options) (*IBPM, error) {
	return NewIBPM(comm, ip, opts, false)
}

func (ib *IBPM) name() string {
	if ib.Incremental {
		return types.IBPM.String()
	}
	return types.TAIRACOLONIUS.String()
}

func (ib *IBPM) createOperators() (err error) {
	var (
		m  = ib.Mesh
		np = m.PLayout.NLocal
	)
	ib.E, ib.H = operators.CreateDelta(ib.comm, m, ib.Bodies)
	ib.PLayout = utils.Concat(m.PLayout, ib.Bodies.Layout)
	ib.DEBNGH, ib.BNGH, ib.DE = operators.CreateCoupledSystem(ib.comm, ib.PLayout, ib.D, ib.E, ib.BN, ib.G, ib.H)
	ib.Pc, ib.dPc, ib.rhsC = ib.PLayout.NewVector(), ib.PLayout.NewVector(), ib.PLayout.NewVector()
	ib.P, ib.F = ib.Pc[:np:np], ib.Pc[np:]
	if ib.poissonSolver, err = linsolver.NewLinSolver(ib.comm, "modified poisson", ib.configs.poisson); err != nil {
		return
	}
	return ib.poissonSolver.SetOperator(ib.DEBNGH)
}

// pressureTerm subtracts GH*P = G p - H f
func (ib *IBPM) pressureTerm(rhs []float64) {
	if !ib.Incremental {
		return
	}
	floats.Sub(rhs, ib.G.MulVec(ib.comm, ib.P))
	floats.Add(rhs, ib.H.MulVec(ib.comm, ib.F))
}

func (ib *IBPM) project() (err error) {
	ib.Timers.Time(StageRHSPoisson, func() error {
		ib.DE.MulVecTo(ib.comm, ib.rhsC, ib.uStar)
		floats.Add(ib.rhsC[:len(ib.bc2.Values)], ib.bc2.Values) // Pressure block leads the local vector
		pinReference(ib.PLayout, ib.rhsC)
		return nil
	})
	err = ib.Timers.Time(StageSolvePoisson, func() error {
		if ib.Incremental {
			clear(ib.dPc)
		} else {
			copy(ib.dPc, ib.Pc)
		}
		return ib.solve(ib.poissonSolver, ib.dPc, ib.rhsC)
	})
	if err != nil {
		return
	}
	return ib.Timers.Time(StageProjection, func() error {
		floats.SubTo(ib.U, ib.uStar, ib.BNGH.MulVec(ib.comm, ib.dPc))
		if ib.Incremental {
			floats.Add(ib.Pc, ib.dPc)
		} else {
			copy(ib.Pc, ib.dPc)
		}
		return nil
	})
}

func (ib *IBPM) integrateForces() ([][]float64, error) {
	return ib.Bodies.CalculateAvgForces(ib.F)
}

func (ib *IBPM) forceUnknowns() ([]float64, *utils.Layout) { return ib.F, ib.Bodies.Layout }

func (ib *IBPM) Info() string {
	var sb strings.Builder
	sb.WriteString(ib.NavierStokes.Info())
	sb.WriteString(ib.Bodies.Info())
	if ib.PLayout != nil {
		fmt.Fprintf(&sb, "modified poisson system: %d unknowns, %d pressure + %d forces\n",
			ib.PLayout.N, ib.Mesh.PN, ib.Bodies.Layout.N)
	}
	return sb.String()
}
