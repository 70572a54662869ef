package operators

import (
	"github.com/notargets/goibm/utils"
)

// ReferenceRow is the global row pinned to fix the pressure level
const ReferenceRow = 0

// CreateVelocitySystem is A = I/dt - nu*cImplicit*L
func CreateVelocitySystem(L utils.DistCSR, dt, nu, cImplicit float64) utils.DistCSR {
	return L.ShiftDiagonal(-nu*cImplicit, 1/dt, "A")
}

// CreatePoissonSystem is D*BN*G with the reference row pinned (collective)
func CreatePoissonSystem(comm *utils.Comm, D, BN, G utils.DistCSR) (DBNG, BNG utils.DistCSR) {
	BNG = utils.Mul(comm, BN, G, "BNG")
	DBNG = utils.Mul(comm, D, BNG, "DBNG").PinRow(ReferenceRow, "DBNG")
	return
}

// CreateForcesSystem is E*BN*H (collective)
func CreateForcesSystem(comm *utils.Comm, E, BN, H utils.DistCSR) (EBNH, BNH utils.DistCSR) {
	BNH = utils.Mul(comm, BN, H, "BNH")
	EBNH = utils.Mul(comm, E, BNH, "EBNH")
	return
}

// CreateCoupledSystem joins the pressure and the forces: GH = [G, -H], DE = [D; -E] and the
// modified Poisson system DE*BN*GH with the reference row pinned (collective)
func CreateCoupledSystem(comm *utils.Comm, P *utils.Layout, D, E, BN, G, H utils.DistCSR) (DEBNGH, BNGH, DE utils.DistCSR) {
	GH := utils.HStack(P, "GH", utils.Block{M: G, Alpha: 1}, utils.Block{M: H, Alpha: -1})
	DE = utils.VStack(P, "DE", utils.Block{M: D, Alpha: 1}, utils.Block{M: E, Alpha: -1})
	BNGH = utils.Mul(comm, BN, GH, "BNGH")
	DEBNGH = utils.Mul(comm, DE, BNGH, "DEBNGH").PinRow(ReferenceRow, "DEBNGH")
	return
}
