package linsolver

import (
	"fmt"
	"math"
	"strings"

	"github.com/notargets/goibm/types"
	"github.com/notargets/goibm/utils"
	"gonum.org/v1/gonum/floats"
)

/*
	A LinSolver solves A x = b for a square distributed operator. Vectors are the calling rank's
	local piece in the operator's row layout. SetOperator and Solve are collective: every rank of
	the world calls them in the same order.
*/
type LinSolver interface {
	Name() string
	SetOperator(A utils.DistCSR) error
	Solve(x, b []float64) error // x holds the initial guess on entry
	Iterations() int
	Residual() float64
}

type KrylovType uint8

const (
	CG KrylovType = iota
	BICGSTAB
	DIRECT
)

var (
	KrylovNames = map[string]KrylovType{
		"cg":       CG,
		"bicgstab": BICGSTAB,
		"direct":   DIRECT,
		"lu":       DIRECT,
	}
	KrylovPrintNames = []string{"CG", "BiCGStab", "Direct LU"}
)

func (kt KrylovType) String() string { return KrylovPrintNames[kt] }

type Config struct {
	Type           string  `json:"type"`
	Preconditioner string  `json:"preconditioner"` // none | jacobi
	RTol           float64 `json:"rtol"`
	ATol           float64 `json:"atol"`
	MaxIter        int     `json:"maxIter"`
}

func DefaultConfig() Config {
	return Config{Type: "bicgstab", Preconditioner: "jacobi", RTol: 1.e-8, MaxIter: 10000}
}

func (cfg Config) String() string {
	if strings.ToLower(cfg.Type) == "direct" {
		return "direct"
	}
	return fmt.Sprintf("%s, preconditioner = %s, rtol = %g, atol = %g, maxIter = %d",
		cfg.Type, cfg.Preconditioner, cfg.RTol, cfg.ATol, cfg.MaxIter)
}

func NewLinSolver(comm *utils.Comm, name string, cfg Config) (ls LinSolver, err error) {
	var (
		kt     KrylovType
		ok     bool
		jacobi bool
	)
	if cfg.Type == "" {
		cfg.Type = DefaultConfig().Type
	}
	if kt, ok = KrylovNames[strings.ToLower(cfg.Type)]; !ok {
		err = fmt.Errorf("linear solver type %q for %q: %w", cfg.Type, name, types.ErrUnsupportedType)
		return
	}
	switch strings.ToLower(cfg.Preconditioner) {
	case "", "none":
	case "jacobi":
		jacobi = true
	default:
		err = fmt.Errorf("preconditioner %q for %q: %w", cfg.Preconditioner, name, types.ErrUnsupportedType)
		return
	}
	if cfg.RTol <= 0 && cfg.ATol <= 0 {
		cfg.RTol = DefaultConfig().RTol
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = DefaultConfig().MaxIter
	}
	if kt == DIRECT {
		ls = &Direct{comm: comm, name: name}
		return
	}
	ls = &Krylov{
		comm:   comm,
		name:   name,
		kt:     kt,
		jacobi: jacobi,
		rtol:   cfg.RTol,
		atol:   cfg.ATol,
		maxIt:  cfg.MaxIter,
	}
	return
}

// Krylov implements CG and BiCGStab with optional Jacobi preconditioning
type Krylov struct {
	comm             *utils.Comm
	name             string
	kt               KrylovType
	jacobi           bool
	rtol, atol       float64
	maxIt            int
	A                utils.DistCSR
	invDiag          []float64
	iterations       int
	residual         float64
	haveOperator     bool
	r, z, p, q, s, t []float64 // Work vectors
	rHat, pHat, sHat []float64
}

func (ks *Krylov) Name() string      { return ks.name }
func (ks *Krylov) Iterations() int   { return ks.iterations }
func (ks *Krylov) Residual() float64 { return ks.residual }

func (ks *Krylov) SetOperator(A utils.DistCSR) (err error) {
	if A.RowLayout.N != A.ColLayout.N {
		return fmt.Errorf("operator %q of solver %q is not square", A.Name(), ks.name)
	}
	ks.A = A
	n := A.RowLayout.NLocal
	ks.invDiag = make([]float64, n)
	for i, d := range A.Diagonal() {
		if d == 0 || !ks.jacobi {
			ks.invDiag[i] = 1
		} else {
			ks.invDiag[i] = 1 / d
		}
	}
	alloc := func() []float64 { return make([]float64, n) }
	ks.r, ks.z, ks.p, ks.q, ks.s, ks.t = alloc(), alloc(), alloc(), alloc(), alloc(), alloc()
	ks.rHat, ks.pHat, ks.sHat = alloc(), alloc(), alloc()
	ks.haveOperator = true
	return
}

func (ks *Krylov) dot(a, b []float64) float64 {
	return ks.comm.AllReduceSumScalar(floats.Dot(a, b))
}

func (ks *Krylov) norm(a []float64) float64 {
	return math.Sqrt(ks.dot(a, a))
}

func (ks *Krylov) precondition(dst, src []float64) {
	floats.MulTo(dst, ks.invDiag, src)
}

func (ks *Krylov) Solve(x, b []float64) (err error) {
	if !ks.haveOperator {
		return fmt.Errorf("solver %q used before SetOperator", ks.name)
	}
	if len(x) != len(b) || len(x) != ks.A.RowLayout.NLocal {
		return fmt.Errorf("solver %q: vector lengths %d and %d, operator has %d local rows",
			ks.name, len(x), len(b), ks.A.RowLayout.NLocal)
	}
	ks.iterations = 0
	bNorm := ks.norm(b)
	if bNorm == 0 {
		for i := range x {
			x[i] = 0
		}
		ks.residual = 0
		return
	}
	tol := math.Max(ks.rtol*bNorm, ks.atol)
	// r = b - A x
	ks.A.MulVecTo(ks.comm, ks.r, x)
	floats.SubTo(ks.r, b, ks.r)
	switch ks.kt {
	case CG:
		err = ks.cg(x, tol)
	case BICGSTAB:
		err = ks.bicgstab(x, tol)
	}
	if err != nil {
		return
	}
	if ks.residual > tol {
		err = fmt.Errorf("%s solver %q: residual %g above tolerance %g after %d iterations: %w",
			ks.kt, ks.name, ks.residual, tol, ks.iterations, types.ErrSolverConvergence)
	}
	return
}

func (ks *Krylov) breakdown(what string) error {
	return fmt.Errorf("%s solver %q: breakdown (%s) after %d iterations: %w",
		ks.kt, ks.name, what, ks.iterations, types.ErrSolverConvergence)
}

func (ks *Krylov) cg(x []float64, tol float64) (err error) {
	var (
		r, z, p, q = ks.r, ks.z, ks.p, ks.q
	)
	ks.precondition(z, r)
	copy(p, z)
	rz := ks.dot(r, z)
	if ks.residual = ks.norm(r); ks.residual <= tol {
		return
	}
	for ks.iterations < ks.maxIt {
		ks.A.MulVecTo(ks.comm, q, p)
		pq := ks.dot(p, q)
		if pq == 0 {
			return ks.breakdown("p.Ap = 0")
		}
		alpha := rz / pq
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, q)
		ks.iterations++
		if ks.residual = ks.norm(r); ks.residual <= tol {
			return
		}
		ks.precondition(z, r)
		rzNew := ks.dot(r, z)
		beta := rzNew / rz
		rz = rzNew
		// p = z + beta p
		floats.AddScaledTo(p, z, beta, p)
	}
	return
}

func (ks *Krylov) bicgstab(x []float64, tol float64) (err error) {
	var (
		r, v, p, s, t    = ks.r, ks.q, ks.p, ks.s, ks.t
		rHat, pHat, sHat = ks.rHat, ks.pHat, ks.sHat
		rho, alpha, w    = 1., 1., 1.
	)
	copy(rHat, r)
	for i := range p {
		p[i], v[i] = 0, 0
	}
	if ks.residual = ks.norm(r); ks.residual <= tol {
		return
	}
	for ks.iterations < ks.maxIt {
		rhoNew := ks.dot(rHat, r)
		if rhoNew == 0 {
			return ks.breakdown("rho = 0")
		}
		beta := (rhoNew / rho) * (alpha / w)
		rho = rhoNew
		// p = r + beta (p - w v)
		floats.AddScaled(p, -w, v)
		floats.AddScaledTo(p, r, beta, p)
		ks.precondition(pHat, p)
		ks.A.MulVecTo(ks.comm, v, pHat)
		rv := ks.dot(rHat, v)
		if rv == 0 {
			return ks.breakdown("rHat.v = 0")
		}
		alpha = rho / rv
		floats.AddScaledTo(s, r, -alpha, v)
		ks.iterations++
		if sNorm := ks.norm(s); sNorm <= tol {
			floats.AddScaled(x, alpha, pHat)
			copy(r, s)
			ks.residual = sNorm
			return
		}
		ks.precondition(sHat, s)
		ks.A.MulVecTo(ks.comm, t, sHat)
		tt := ks.dot(t, t)
		if tt == 0 {
			return ks.breakdown("t.t = 0")
		}
		w = ks.dot(t, s) / tt
		floats.AddScaled(x, alpha, pHat)
		floats.AddScaled(x, w, sHat)
		floats.AddScaledTo(r, s, -w, t)
		if ks.residual = ks.norm(r); ks.residual <= tol {
			return
		}
		if w == 0 {
			return ks.breakdown("omega = 0")
		}
	}
	return
}
