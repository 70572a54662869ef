package body

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/notargets/goibm/mesh"
	"github.com/notargets/goibm/types"
	"github.com/notargets/goibm/utils"
)

/*
	A SingleBody is a set of Lagrangian markers. The markers are split contiguously over the ranks
	and every marker carries Dim force unknowns, so the body's global unknowns are numbered
	i*Dim+dof and a rank owns the unknowns of its markers.
*/
type SingleBody struct {
	comm            *utils.Comm
	Dim             int
	Name, File      string
	NPts            int
	Coords, Coords0 [][]float64 // All markers, held by every rank
	NLclPts         int
	BgPt, EdPt      int   // Locally owned markers are [BgPt, EdPt)
	NLclAllProcs    []int // Number of unknowns owned by each rank
	OffsetsAllProcs []int // First unknown owned by each rank
	MeshIdx         [][]int
	Layout          *utils.Layout
	info            string
}

func NewSingleBody(comm *utils.Comm, dim int, name, file string) (b *SingleBody, err error) {
	var (
		fp     *os.File
		coords [][]float64
	)
	if fp, err = os.Open(file); err != nil {
		return
	}
	defer fp.Close()
	if coords, err = ReadBody(fp); err != nil {
		err = fmt.Errorf("body %q from %s: %w", name, file, err)
		return
	}
	return newSingleBody(comm, dim, name, file, coords)
}

func NewSingleBodyFromCoords(comm *utils.Comm, dim int, name string, coords [][]float64) (b *SingleBody, err error) {
	return newSingleBody(comm, dim, name, "", coords)
}

func newSingleBody(comm *utils.Comm, dim int, name, file string, coords [][]float64) (b *SingleBody, err error) {
	if len(coords) == 0 {
		err = fmt.Errorf("body %q has no markers: %w", name, types.ErrFileFormat)
		return
	}
	for i, c := range coords {
		if len(c) != dim {
			err = fmt.Errorf("body %q marker %d has %d coordinates, the mesh is %dD: %w",
				name, i, len(c), dim, types.ErrFileFormat)
			return
		}
	}
	b = &SingleBody{
		comm:    comm,
		Dim:     dim,
		Name:    name,
		File:    file,
		NPts:    len(coords),
		Coords:  coords,
		Coords0: make([][]float64, len(coords)),
	}
	for i, c := range coords {
		b.Coords0[i] = append([]float64{}, c...)
	}
	b.createDistribution()
	b.MeshIdx = make([][]int, b.NLclPts)
	for i := range b.MeshIdx {
		b.MeshIdx[i] = make([]int, dim)
	}
	b.createInfoString()
	return
}

func (b *SingleBody) createDistribution() {
	var (
		NP   = b.comm.Size()
		rank = b.comm.Rank()
		pm   = utils.NewScaledPartitionMap(NP, b.NPts, b.Dim)
	)
	b.BgPt, b.EdPt = utils.NewPartitionMap(NP, b.NPts).GetBucketRange(rank)
	b.NLclPts = b.EdPt - b.BgPt
	b.NLclAllProcs = b.comm.AllGatherInt(b.NLclPts)
	for r := range b.NLclAllProcs {
		b.NLclAllProcs[r] *= b.Dim
	}
	b.OffsetsAllProcs = make([]int, NP)
	for r := 1; r < NP; r++ {
		b.OffsetsAllProcs[r] = b.OffsetsAllProcs[r-1] + b.NLclAllProcs[r-1]
	}
	b.Layout = utils.NewLayout(rank, []*utils.PartitionMap{pm}, b.Name)
}

func (b *SingleBody) createInfoString() {
	var sb strings.Builder
	if b.comm.Rank() == 0 {
		sb.WriteString(strings.Repeat("=", 80) + "\n")
		fmt.Fprintf(&sb, "Body %s:\n", b.Name)
		sb.WriteString(strings.Repeat("=", 80) + "\n")
		if b.File != "" {
			fmt.Fprintf(&sb, "\tInput mesh file: %s\n\n", b.File)
		}
		fmt.Fprintf(&sb, "\tDimension: %d\n\n", b.Dim)
		fmt.Fprintf(&sb, "\tTotal number of Lagrangian points: %d\n\n", b.NPts)
		fmt.Fprintf(&sb, "\tBody is distributed to %d processes\n\n", b.comm.Size())
		fmt.Fprintf(&sb, "\tDistribution of Lagrangian points:\n\n")
	}
	fmt.Fprintf(&sb, "\t\tRank %d:\n", b.comm.Rank())
	fmt.Fprintf(&sb, "\t\t\tNumber of points: %d\n", b.NLclPts)
	fmt.Fprintf(&sb, "\t\t\tRange of points: [%d, %d)\n", b.BgPt, b.EdPt)
	b.info = strings.Join(utils.AllGather(b.comm, sb.String()), "")
}

// Info describes the body and its distribution, identical on every rank
func (b *SingleBody) Info() string { return b.info }

// UpdateMeshIdx locates every locally owned marker on the mesh
func (b *SingleBody) UpdateMeshIdx(m *mesh.CartesianMesh) (err error) {
	for i := b.BgPt; i < b.EdPt; i++ {
		for d := 0; d < b.Dim; d++ {
			if b.MeshIdx[i-b.BgPt][d], err = m.PressureIndex(d, b.Coords[i][d]); err != nil {
				return fmt.Errorf("body %q marker %d: %w", b.Name, i, err)
			}
		}
	}
	return
}

func (b *SingleBody) GlobalIndex(i, dof int) (idx int, err error) {
	if i < 0 || i >= b.NPts {
		err = fmt.Errorf("marker %d of body %q not in [0, %d): %w", i, b.Name, b.NPts, types.ErrIndexRange)
		return
	}
	if dof < 0 || dof >= b.Dim {
		err = fmt.Errorf("dof %d of body %q not in [0, %d): %w", dof, b.Name, b.Dim, types.ErrIndexRange)
		return
	}
	idx = i*b.Dim + dof
	return
}

// FindProc returns the rank owning the first unknown of marker i
func (b *SingleBody) FindProc(i int) (p int, err error) {
	if i < 0 || i >= b.NPts {
		err = fmt.Errorf("marker %d of body %q not in [0, %d): %w", i, b.Name, b.NPts, types.ErrIndexRange)
		return
	}
	target := i * b.Dim
	p = sort.Search(len(b.OffsetsAllProcs), func(r int) bool { return b.OffsetsAllProcs[r] > target }) - 1
	return
}

// CalculateAvgForces sums the locally owned forces over all ranks (collective). The force
// vector holds the force applied to the fluid, the body feels its negative.
func (b *SingleBody) CalculateAvgForces(f []float64) (fAvg []float64, err error) {
	if len(f) != b.NLclPts*b.Dim {
		return nil, fmt.Errorf("body %q owns %d unknowns, force vector has %d: %w",
			b.Name, b.NLclPts*b.Dim, len(f), types.ErrIndexRange)
	}
	local := make([]float64, b.Dim)
	for c := 0; c < b.NLclPts; c++ {
		for dof := 0; dof < b.Dim; dof++ {
			local[dof] -= f[c*b.Dim+dof]
		}
	}
	fAvg = b.comm.AllReduceSum(local)
	return
}

// WriteBody writes the current marker coordinates, rank 0 writes for everybody (collective)
func (b *SingleBody) WriteBody(file string) (err error) {
	if b.comm.Rank() == 0 {
		var fp *os.File
		if fp, err = os.Create(file); err == nil {
			err = WriteBody(fp, b.Coords)
			if cerr := fp.Close(); err == nil {
				err = cerr
			}
		}
	}
	// Every rank returns rank 0's outcome
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if msg = utils.Bcast(b.comm, msg, 0); msg != "" && err == nil {
		err = fmt.Errorf("writing body %q on rank 0: %s", b.Name, msg)
	}
	return
}
