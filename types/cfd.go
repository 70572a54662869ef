package types

import (
	"fmt"
	"strings"
)

// BCType is the closed set of boundary treatments for a velocity field on a domain face
type BCType uint8

const (
	NOBC BCType = iota
	PERIODIC
	DIRICHLET
	NEUMANN
	CONVECTIVE
)

var (
	BCTypeNames = map[string]BCType{
		"nobc":       NOBC,
		"periodic":   PERIODIC,
		"dirichlet":  DIRICHLET,
		"neumann":    NEUMANN,
		"convective": CONVECTIVE,
	}
	BCTypePrintNames = []string{"NOBC", "PERIODIC", "DIRICHLET", "NEUMANN", "CONVECTIVE"}
)

func NewBCType(label string) (bt BCType, err error) {
	var ok bool
	if bt, ok = BCTypeNames[strings.ToLower(strings.TrimSpace(label))]; !ok {
		err = fmt.Errorf("boundary type %q: %w", label, ErrUnsupportedType)
	}
	return
}

func (bt BCType) String() string {
	if int(bt) < len(BCTypePrintNames) {
		return BCTypePrintNames[bt]
	}
	return fmt.Sprintf("BCType(%d)", int(bt))
}

// BCLoc is a domain face, ordered so that Axis() = loc/2 and odd values are the plus side
type BCLoc uint8

const (
	XMINUS BCLoc = iota
	XPLUS
	YMINUS
	YPLUS
	ZMINUS
	ZPLUS
)

var (
	BCLocNames = map[string]BCLoc{
		"xminus": XMINUS,
		"xplus":  XPLUS,
		"yminus": YMINUS,
		"yplus":  YPLUS,
		"zminus": ZMINUS,
		"zplus":  ZPLUS,
	}
	BCLocPrintNames = []string{"XMINUS", "XPLUS", "YMINUS", "YPLUS", "ZMINUS", "ZPLUS"}
)

func NewBCLoc(label string) (loc BCLoc, err error) {
	var ok bool
	if loc, ok = BCLocNames[strings.ToLower(strings.TrimSpace(label))]; !ok {
		err = fmt.Errorf("boundary location %q: %w", label, ErrConfiguration)
	}
	return
}

func (loc BCLoc) Axis() int    { return int(loc) / 2 }
func (loc BCLoc) IsPlus() bool { return int(loc)%2 == 1 }
func (loc BCLoc) String() string {
	if int(loc) < len(BCLocPrintNames) {
		return BCLocPrintNames[loc]
	}
	return fmt.Sprintf("BCLoc(%d)", int(loc))
}

// Field identifies a staggered unknown: the velocity components and pressure
type Field uint8

const (
	U Field = iota
	V
	W
	P
)

var FieldPrintNames = []string{"u", "v", "w", "p"}

func (f Field) String() string {
	if int(f) < len(FieldPrintNames) {
		return FieldPrintNames[f]
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

// StepScheme selects the explicit/implicit weighting of a term in the velocity system
type StepScheme uint8

const (
	EULER_EXPLICIT StepScheme = iota
	EULER_IMPLICIT
	ADAMS_BASHFORTH_2
	CRANK_NICOLSON
)

var (
	StepSchemeNames = map[string]StepScheme{
		"euler_explicit":    EULER_EXPLICIT,
		"euler_implicit":    EULER_IMPLICIT,
		"adams_bashforth_2": ADAMS_BASHFORTH_2,
		"crank_nicolson":    CRANK_NICOLSON,
	}
	StepSchemePrintNames = []string{"Euler Explicit", "Euler Implicit", "Adams-Bashforth 2", "Crank-Nicolson"}
)

func NewStepScheme(label string) (ss StepScheme, err error) {
	var ok bool
	if ss, ok = StepSchemeNames[strings.ToLower(strings.TrimSpace(label))]; !ok {
		err = fmt.Errorf("time scheme %q: %w", label, ErrUnsupportedType)
	}
	return
}

func (ss StepScheme) String() string {
	if int(ss) < len(StepSchemePrintNames) {
		return StepSchemePrintNames[ss]
	}
	return fmt.Sprintf("StepScheme(%d)", int(ss))
}

// Coefficients returns the weights applied at levels n+1, n and n-1
func (ss StepScheme) Coefficients() (implicit, current, previous float64) {
	switch ss {
	case EULER_EXPLICIT:
		return 0, 1, 0
	case EULER_IMPLICIT:
		return 1, 0, 0
	case ADAMS_BASHFORTH_2:
		return 0, 1.5, -0.5
	case CRANK_NICOLSON:
		return 0.5, 0.5, 0
	}
	panic(fmt.Errorf("no coefficients for %v", ss))
}

// SolverType selects the time-integration variant
type SolverType uint8

const (
	NAVIERSTOKES SolverType = iota
	IBPM
	DECOUPLED
	TAIRACOLONIUS
)

var (
	SolverTypeNames = map[string]SolverType{
		"navierstokes":  NAVIERSTOKES,
		"ibpm":          IBPM,
		"decoupled":     DECOUPLED,
		"decoupledibpm": DECOUPLED,
		"tairacolonius": TAIRACOLONIUS,
	}
	SolverTypePrintNames = []string{
		"Navier-Stokes (no immersed body)",
		"IBPM, coupled pressure/force system",
		"Decoupled IBPM (Li et al. 2016)",
		"Taira and Colonius (2007)",
	}
)

func NewSolverType(label string) (st SolverType, err error) {
	var ok bool
	if st, ok = SolverTypeNames[strings.ToLower(strings.TrimSpace(label))]; !ok {
		err = fmt.Errorf("solver %q: %w", label, ErrUnsupportedType)
	}
	return
}

func (st SolverType) String() string {
	if int(st) < len(SolverTypePrintNames) {
		return SolverTypePrintNames[st]
	}
	return fmt.Sprintf("SolverType(%d)", int(st))
}
