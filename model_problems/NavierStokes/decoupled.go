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
	Decoupled is the decoupled IBPM of Li et al. (2016). After the velocity solve the force
	increment comes from the no-slip system E*BN*H df = u_B - E u*, the intermediate velocity is
	corrected by BN*H df and only then projected onto the divergence free space with the plain
	Poisson system.
*/
type Decoupled struct {
	*NavierStokes
	Bodies       *body.BodyPack
	E, H         utils.DistCSR
	EBNH, BNH    utils.DistCSR
	F, dF, rhsF  []float64
	forcesSolver linsolver.LinSolver
}

func NewDecoupled(comm *utils.Comm, ip *InputParameters.InputParameters, opts Options) (dc *Decoupled, err error) {
	dc = &Decoupled{}
	if dc.NavierStokes, err = newNavierStokes(comm, ip, opts); err != nil {
		return
	}
	if len(ip.Bodies) == 0 {
		err = fmt.Errorf("%s needs at least one body: %w", dc.name(), types.ErrConfiguration)
		return
	}
	if dc.Bodies, err = body.NewBodyPack(comm, dc.Mesh, ip.Bodies, opts.Dir); err != nil {
		return
	}
	dc.nBodies = dc.Bodies.NBodies
	dc.impl = dc
	return
}

func (dc *Decoupled) name() string { return types.DECOUPLED.String() }

func (dc *Decoupled) createOperators() (err error) {
	if err = dc.NavierStokes.createOperators(); err != nil {
		return
	}
	dc.E, dc.H = operators.CreateDelta(dc.comm, dc.Mesh, dc.Bodies)
	dc.EBNH, dc.BNH = operators.CreateForcesSystem(dc.comm, dc.E, dc.BN, dc.H)
	l := dc.Bodies.Layout
	dc.F, dc.dF, dc.rhsF = l.NewVector(), l.NewVector(), l.NewVector()
	if dc.forcesSolver, err = linsolver.NewLinSolver(dc.comm, "forces", dc.configs.forces); err != nil {
		return
	}
	return dc.forcesSolver.SetOperator(dc.EBNH)
}

// pressureTerm subtracts G p - H f
func (dc *Decoupled) pressureTerm(rhs []float64) {
	dc.NavierStokes.pressureTerm(rhs)
	floats.Add(rhs, dc.H.MulVec(dc.comm, dc.F))
}

func (dc *Decoupled) project() (err error) {
	dc.Timers.Time(StageRHSForces, func() error {
		dc.E.MulVecTo(dc.comm, dc.rhsF, dc.uStar)
		floats.Scale(-1, dc.rhsF) // Markers are at rest, u_B = 0
		return nil
	})
	err = dc.Timers.Time(StageSolveForces, func() error {
		clear(dc.dF)
		return dc.solve(dc.forcesSolver, dc.dF, dc.rhsF)
	})
	if err != nil {
		return
	}
	dc.Timers.Time(StageProjection, func() error {
		floats.Add(dc.uStar, dc.BNH.MulVec(dc.comm, dc.dF))
		floats.Add(dc.F, dc.dF)
		return nil
	})
	return dc.NavierStokes.project()
}

func (dc *Decoupled) integrateForces() ([][]float64, error) {
	return dc.Bodies.CalculateAvgForces(dc.F)
}

func (dc *Decoupled) forceUnknowns() ([]float64, *utils.Layout) { return dc.F, dc.Bodies.Layout }

func (dc *Decoupled) Info() string {
	var sb strings.Builder
	sb.WriteString(dc.NavierStokes.Info())
	sb.WriteString(dc.Bodies.Info())
	fmt.Fprintf(&sb, "forces solver: %v\n", dc.configs.forces)
	return sb.String()
}
