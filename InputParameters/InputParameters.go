package InputParameters

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ghodss/yaml"

	"github.com/notargets/goibm/linsolver"
	"github.com/notargets/goibm/types"
)

// Parameters obtained from the YAML case file
type InputParameters struct {
	Title      string          `json:"title"`
	Mesh       []MeshDirection `json:"mesh"`
	Flow       Flow            `json:"flow"`
	Parameters Parameters      `json:"parameters"`
	Bodies     []BodyEntry     `json:"bodies"`
}

type MeshDirection struct {
	Direction  string      `json:"direction"` // x, y or z
	Start      float64     `json:"start"`
	SubDomains []SubDomain `json:"subDomains"`
}

// UnmarshalJSON accepts an unquoted y, which YAML 1.1 reads as a boolean and may hand over
// either as true or as "true"
func (md *MeshDirection) UnmarshalJSON(data []byte) (err error) {
	type plain MeshDirection
	var raw struct {
		plain
		Direction json.RawMessage `json:"direction"`
	}
	if err = json.Unmarshal(data, &raw); err != nil {
		return
	}
	*md = MeshDirection(raw.plain)
	if len(raw.Direction) == 0 {
		return
	}
	var dir interface{}
	if err = json.Unmarshal(raw.Direction, &dir); err != nil {
		return
	}
	switch d := dir.(type) {
	case bool:
		if d {
			md.Direction = "y"
		}
	case string:
		md.Direction = d
		if d == "true" {
			md.Direction = "y"
		}
	default:
		err = fmt.Errorf("mesh direction %s is not a name: %w", raw.Direction, types.ErrConfiguration)
	}
	return
}

type SubDomain struct {
	End          float64 `json:"end"`
	Cells        int     `json:"cells"`
	StretchRatio float64 `json:"stretchRatio"` // Ratio of consecutive cell widths, 1 is uniform
}

type Flow struct {
	Nu                 float64   `json:"nu"`
	InitialVelocity    []float64 `json:"initialVelocity"`
	BoundaryConditions []BCEntry `json:"boundaryConditions"`
}

// BCEntry sets the treatment of every velocity component on one domain face
type BCEntry struct {
	Location string   `json:"location"`
	U        *FieldBC `json:"u,omitempty"`
	V        *FieldBC `json:"v,omitempty"`
	W        *FieldBC `json:"w,omitempty"`
}

// FieldBC is a boundary treatment, for CONVECTIVE the value is the convection speed
type FieldBC struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

type Parameters struct {
	Dt             float64          `json:"dt"`
	Nt             int              `json:"nt"`
	NSave          int              `json:"nsave"`
	NRestart       int              `json:"nrestart"`
	StartStep      int              `json:"startStep"`
	Solver         string           `json:"solver"`
	Convection     string           `json:"convection"`
	Diffusion      string           `json:"diffusion"`
	VelocitySolver linsolver.Config `json:"velocitySolver"`
	PoissonSolver  linsolver.Config `json:"poissonSolver"`
	ForcesSolver   linsolver.Config `json:"forcesSolver"`
}

type BodyEntry struct {
	Name string `json:"name"`
	File string `json:"file"`
}

func (ip *InputParameters) Parse(data []byte) (err error) {
	if err = yaml.Unmarshal(data, ip); err != nil {
		return fmt.Errorf("parsing case file: %v: %w", err, types.ErrConfiguration)
	}
	ip.setDefaults()
	return ip.Validate()
}

func (ip *InputParameters) setDefaults() {
	p := &ip.Parameters
	if p.Solver == "" {
		p.Solver = "NAVIERSTOKES"
		if len(ip.Bodies) != 0 {
			p.Solver = "IBPM"
		}
	}
	if p.Convection == "" {
		p.Convection = "ADAMS_BASHFORTH_2"
	}
	if p.Diffusion == "" {
		p.Diffusion = "CRANK_NICOLSON"
	}
	if p.NSave == 0 {
		p.NSave = p.Nt
	}
	for _, cfg := range []*linsolver.Config{&p.VelocitySolver, &p.PoissonSolver, &p.ForcesSolver} {
		if cfg.Type == "" {
			cfg.Type = linsolver.DefaultConfig().Type
			if cfg.Preconditioner == "" {
				cfg.Preconditioner = linsolver.DefaultConfig().Preconditioner
			}
		}
	}
	for _, sd := range ip.Mesh {
		for i := range sd.SubDomains {
			if sd.SubDomains[i].StretchRatio == 0 {
				sd.SubDomains[i].StretchRatio = 1
			}
		}
	}
}

// Dim is the number of spatial dimensions given by the mesh section
func (ip *InputParameters) Dim() int { return len(ip.Mesh) }

func (ip *InputParameters) Validate() (err error) {
	var (
		p   = ip.Parameters
		dim = ip.Dim()
	)
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), types.ErrConfiguration)
	}
	if dim != 2 && dim != 3 {
		return bad("mesh has %d directions, need 2 or 3", dim)
	}
	for d, md := range ip.Mesh {
		if expected := string(rune('x' + d)); strings.ToLower(md.Direction) != expected {
			return bad("mesh direction %d is %q, expected %q", d, md.Direction, expected)
		}
		if len(md.SubDomains) == 0 {
			return bad("mesh direction %q has no sub-domains", md.Direction)
		}
		start := md.Start
		for _, sd := range md.SubDomains {
			if sd.End <= start || sd.Cells < 1 || sd.StretchRatio <= 0 {
				return bad("invalid sub-domain %+v in direction %q", sd, md.Direction)
			}
			start = sd.End
		}
	}
	if p.Dt <= 0 {
		return bad("time step %g must be positive", p.Dt)
	}
	if p.Nt < 0 || p.NSave < 0 || p.NRestart < 0 || p.StartStep < 0 {
		return bad("negative step counts")
	}
	if ip.Flow.Nu < 0 {
		return bad("viscosity %g is negative", ip.Flow.Nu)
	}
	if n := len(ip.Flow.InitialVelocity); n != 0 && n != dim {
		return bad("initial velocity has %d components in %d dimensions", n, dim)
	}
	if _, err = types.NewSolverType(p.Solver); err != nil {
		return
	}
	if _, err = types.NewStepScheme(p.Convection); err != nil {
		return
	}
	if _, err = types.NewStepScheme(p.Diffusion); err != nil {
		return
	}
	for _, b := range ip.Bodies {
		if b.File == "" {
			return bad("body %q has no file", b.Name)
		}
	}
	return
}

// FieldBCs returns the treatment of field f on every face; faces missing from the case are
// left nil
func (ip *InputParameters) FieldBCs() (bcs map[types.BCLoc][]*FieldBC, err error) {
	bcs = make(map[types.BCLoc][]*FieldBC)
	for _, entry := range ip.Flow.BoundaryConditions {
		var loc types.BCLoc
		if loc, err = types.NewBCLoc(entry.Location); err != nil {
			return
		}
		if _, dup := bcs[loc]; dup {
			err = fmt.Errorf("boundary %s given twice: %w", loc, types.ErrConfiguration)
			return
		}
		bcs[loc] = []*FieldBC{entry.U, entry.V, entry.W}
	}
	return
}

func (ip *InputParameters) Print() {
	p := ip.Parameters
	fmt.Printf("\"%s\"\t\t= Title\n", ip.Title)
	fmt.Printf("%d\t\t\t= Dimensions\n", ip.Dim())
	for _, md := range ip.Mesh {
		var cells int
		for _, sd := range md.SubDomains {
			cells += sd.Cells
		}
		fmt.Printf("[%s] start %8.5f, %d sub-domains, %d cells\n", md.Direction, md.Start,
			len(md.SubDomains), cells)
	}
	fmt.Printf("%8.5f\t\t= Nu\n", ip.Flow.Nu)
	fmt.Printf("%8.5f\t\t= Dt\n", p.Dt)
	fmt.Printf("%d\t\t\t= Time steps (starting at %d)\n", p.Nt, p.StartStep)
	fmt.Printf("[%s]\t\t\t= Solver\n", p.Solver)
	fmt.Printf("[%s]\t= Convection\n", p.Convection)
	fmt.Printf("[%s]\t= Diffusion\n", p.Diffusion)
	fmt.Printf("Velocity solver: %s\n", p.VelocitySolver)
	fmt.Printf("Poisson solver: %s\n", p.PoissonSolver)
	fmt.Printf("Forces solver: %s\n", p.ForcesSolver)
	for _, entry := range ip.Flow.BoundaryConditions {
		fmt.Printf("BCs[%s] =", entry.Location)
		for f, fbc := range []*FieldBC{entry.U, entry.V, entry.W} {
			if fbc != nil {
				fmt.Printf(" %c: %s(%g)", 'u'+f, fbc.Type, fbc.Value)
			}
		}
		fmt.Printf("\n")
	}
	for _, b := range ip.Bodies {
		fmt.Printf("Body[%s] = %s\n", b.Name, b.File)
	}
}
