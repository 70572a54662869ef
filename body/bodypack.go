package body

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/notargets/goibm/InputParameters"
	"github.com/notargets/goibm/mesh"
	"github.com/notargets/goibm/types"
	"github.com/notargets/goibm/utils"
)

// BodyPack groups the bodies of a case; the force unknowns of the pack are the unknowns of each
// body in order
type BodyPack struct {
	comm            *utils.Comm
	Dim             int
	NBodies         int
	Bodies          []*SingleBody
	NPts            int   // Total markers
	NLclPts         int   // Locally owned markers
	NLclAllProcs    []int // Unknowns owned by each rank, all bodies
	OffsetsAllProcs []int
	Layout          *utils.Layout // One block per body
	info            string
}

// NewBodyPack reads every body of the case, relative file names are resolved from dir
func NewBodyPack(comm *utils.Comm, m *mesh.CartesianMesh, entries []InputParameters.BodyEntry,
	dir string) (bp *BodyPack, err error) {
	bodies := make([]*SingleBody, len(entries))
	for i, entry := range entries {
		file := entry.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(dir, file)
		}
		name := entry.Name
		if name == "" {
			name = fmt.Sprintf("body%d", i)
		}
		if bodies[i], err = NewSingleBody(comm, m.Dim, name, file); err != nil {
			return
		}
	}
	if bp, err = NewBodyPackFromBodies(comm, m.Dim, bodies); err != nil {
		return
	}
	err = bp.UpdateMeshIdx(m)
	return
}

func NewBodyPackFromBodies(comm *utils.Comm, dim int, bodies []*SingleBody) (bp *BodyPack, err error) {
	if len(bodies) == 0 {
		err = fmt.Errorf("body pack needs at least one body: %w", types.ErrConfiguration)
		return
	}
	bp = &BodyPack{
		comm:         comm,
		Dim:          dim,
		NBodies:      len(bodies),
		Bodies:       bodies,
		NLclAllProcs: make([]int, comm.Size()),
	}
	layouts := make([]*utils.Layout, len(bodies))
	for i, b := range bodies {
		if b.Dim != dim {
			err = fmt.Errorf("body %q is %dD in a %dD pack: %w", b.Name, b.Dim, dim, types.ErrConfiguration)
			return
		}
		bp.NPts += b.NPts
		bp.NLclPts += b.NLclPts
		for r, n := range b.NLclAllProcs {
			bp.NLclAllProcs[r] += n
		}
		layouts[i] = b.Layout
	}
	bp.OffsetsAllProcs = make([]int, comm.Size())
	for r := 1; r < comm.Size(); r++ {
		bp.OffsetsAllProcs[r] = bp.OffsetsAllProcs[r-1] + bp.NLclAllProcs[r-1]
	}
	bp.Layout = utils.Concat(layouts...)
	bp.createInfoString()
	return
}

func (bp *BodyPack) createInfoString() {
	var sb strings.Builder
	sb.WriteString(strings.Repeat("=", 80) + "\n")
	fmt.Fprintf(&sb, "Body Pack:\n")
	sb.WriteString(strings.Repeat("=", 80) + "\n")
	fmt.Fprintf(&sb, "\tDimension: %d\n\n", bp.Dim)
	fmt.Fprintf(&sb, "\tNumber of bodies: %d\n\n", bp.NBodies)
	fmt.Fprintf(&sb, "\tName of bodies:\n")
	for _, b := range bp.Bodies {
		fmt.Fprintf(&sb, "\t\t%s\n", b.Name)
	}
	sb.WriteString("\n")
	for _, b := range bp.Bodies {
		sb.WriteString(b.Info())
	}
	bp.info = sb.String()
}

func (bp *BodyPack) Info() string { return bp.info }

func (bp *BodyPack) UpdateMeshIdx(m *mesh.CartesianMesh) (err error) {
	for _, b := range bp.Bodies {
		if err = b.UpdateMeshIdx(m); err != nil {
			return
		}
	}
	return
}

// GlobalIndex numbers unknown dof of marker i of body bIdx within the whole pack
func (bp *BodyPack) GlobalIndex(bIdx, i, dof int) (idx int, err error) {
	if bIdx < 0 || bIdx >= bp.NBodies {
		err = fmt.Errorf("body %d not in [0, %d): %w", bIdx, bp.NBodies, types.ErrIndexRange)
		return
	}
	if idx, err = bp.Bodies[bIdx].GlobalIndex(i, dof); err != nil {
		return
	}
	idx += bp.Layout.Blocks[bIdx].Offset
	return
}

func (bp *BodyPack) FindProc(bIdx, i int) (p int, err error) {
	if bIdx < 0 || bIdx >= bp.NBodies {
		err = fmt.Errorf("body %d not in [0, %d): %w", bIdx, bp.NBodies, types.ErrIndexRange)
		return
	}
	return bp.Bodies[bIdx].FindProc(i)
}

// CalculateAvgForces integrates the force on every body (collective); f is the local piece of
// the pack's force vector
func (bp *BodyPack) CalculateAvgForces(f []float64) (fAvg [][]float64, err error) {
	if len(f) != bp.Layout.NLocal {
		return nil, fmt.Errorf("force vector has %d local entries, pack owns %d: %w",
			len(f), bp.Layout.NLocal, types.ErrIndexRange)
	}
	fAvg = make([][]float64, bp.NBodies)
	for b, body := range bp.Bodies {
		start, end := bp.Layout.BlockRange(b)
		if fAvg[b], err = body.CalculateAvgForces(f[start:end]); err != nil {
			return
		}
	}
	return
}
