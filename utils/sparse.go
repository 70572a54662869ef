package utils

import (
	"fmt"

	"github.com/james-bowman/sparse"
	"github.com/james-bowman/sparse/blas"
)

type Triplet struct {
	Row, Col int // Global indices
	Val      float64
}

// DOK assembles the locally owned rows of a distributed operator; entries added to the same
// position accumulate
type DOK struct {
	M         *sparse.DOK
	RowLayout *Layout
	ColLayout *Layout
	readOnly  bool
	name      string
}

func NewDOK(rows, cols *Layout, name string) (R DOK) {
	R = DOK{
		RowLayout: rows,
		ColLayout: cols,
		name:      name,
	}
	if rows.NLocal != 0 && cols.N != 0 {
		R.M = sparse.NewDOK(rows.NLocal, cols.N)
	}
	return
}

// Add accumulates into a locally owned row (local position) and a global column
func (m DOK) Add(localRow, globalCol int, val float64) {
	m.checkWritable()
	if localRow < 0 || localRow >= m.RowLayout.NLocal || globalCol < 0 || globalCol >= m.ColLayout.N {
		panic(fmt.Errorf("entry (%d, %d) outside of operator %q with %d local rows and %d columns",
			localRow, globalCol, m.name, m.RowLayout.NLocal, m.ColLayout.N))
	}
	if val == 0 {
		return
	}
	m.M.Set(localRow, globalCol, m.M.At(localRow, globalCol)+val)
}

// AddGlobal accumulates using global indices, the row must be owned by this rank
func (m DOK) AddGlobal(globalRow, globalCol int, val float64) {
	localRow := m.RowLayout.Local(globalRow)
	if localRow < 0 {
		panic(fmt.Errorf("row %d of operator %q is not owned by rank %d", globalRow, m.name, m.RowLayout.Rank))
	}
	m.Add(localRow, globalCol, val)
}

func (m DOK) checkWritable() {
	if m.readOnly {
		err := fmt.Errorf("attempt to write to a read only matrix named: \"%v\"", m.name)
		panic(err)
	}
}

func (m DOK) ToCSR() DistCSR {
	R := DistCSR{
		RowLayout: m.RowLayout,
		ColLayout: m.ColLayout,
		name:      m.name,
	}
	if m.M != nil {
		R.M = m.M.ToCSR()
	}
	return R
}

// DistCSR holds the locally owned rows of a distributed sparse operator, columns are global
type DistCSR struct {
	M         *sparse.CSR // nil when the rank owns no rows
	RowLayout *Layout
	ColLayout *Layout
	name      string
}

func (m DistCSR) Name() string { return m.name }

// Dims are the local row count and the global column count
func (m DistCSR) Dims() (r, c int) { return m.RowLayout.NLocal, m.ColLayout.N }

func (m DistCSR) RawMatrix() *blas.SparseMatrix {
	if m.M == nil {
		return &blas.SparseMatrix{Indptr: make([]int, m.RowLayout.NLocal+1)}
	}
	return m.M.RawMatrix()
}

func (m DistCSR) Data() []float64 {
	return m.RawMatrix().Data
}

// DoRow calls fn for every stored entry of a local row
func (m DistCSR) DoRow(localRow int, fn func(globalCol int, val float64)) {
	if m.M == nil {
		return
	}
	raw := m.M.RawMatrix()
	for p := raw.Indptr[localRow]; p < raw.Indptr[localRow+1]; p++ {
		fn(raw.Ind[p], raw.Data[p])
	}
}

// NNZ is the number of locally stored entries
func (m DistCSR) NNZ() int {
	return len(m.Data())
}

// MulGlobalVecTo sets dst = M * x, where x is already gathered to its global length
func (m DistCSR) MulGlobalVecTo(dst, xGlobal []float64) {
	var nr, nc = m.Dims()
	if len(dst) != nr || len(xGlobal) != nc {
		panic(fmt.Errorf("dimension mismatch in %q: %dx%d times %d into %d", m.name, nr, nc, len(xGlobal), len(dst)))
	}
	for i := range dst {
		dst[i] = 0
	}
	if m.M == nil {
		return
	}
	raw := m.M.RawMatrix()
	for i := 0; i < nr; i++ {
		var sum float64
		for p := raw.Indptr[i]; p < raw.Indptr[i+1]; p++ {
			sum += raw.Data[p] * xGlobal[raw.Ind[p]]
		}
		dst[i] = sum
	}
}

// MulVecTo sets dst = M * x for distributed x (collective)
func (m DistCSR) MulVecTo(comm *Comm, dst, x []float64) {
	m.MulGlobalVecTo(dst, m.ColLayout.Gather(comm, x))
}

// MulVec allocates the result of M * x (collective)
func (m DistCSR) MulVec(comm *Comm, x []float64) (y []float64) {
	y = m.RowLayout.NewVector()
	m.MulVecTo(comm, y, x)
	return
}

// Diagonal returns the local part of the diagonal of a square operator
func (m DistCSR) Diagonal() (diag []float64) {
	if m.RowLayout.N != m.ColLayout.N {
		panic(fmt.Errorf("diagonal of non square operator %q", m.name))
	}
	diag = m.RowLayout.NewVector()
	m.RowLayout.ForEachOwned(func(i, g int) {
		m.DoRow(i, func(j int, v float64) {
			if j == g {
				diag[i] += v
			}
		})
	})
	return
}

// Triplets lists the local entries with global indices
func (m DistCSR) Triplets() (ts []Triplet) {
	ts = make([]Triplet, 0, m.NNZ())
	m.RowLayout.ForEachOwned(func(i, g int) {
		m.DoRow(i, func(j int, v float64) {
			ts = append(ts, Triplet{Row: g, Col: j, Val: v})
		})
	})
	return
}

// GatherTriplets collects every entry of the operator on every rank (collective)
func (m DistCSR) GatherTriplets(comm *Comm) (ts []Triplet) {
	for _, part := range AllGather(comm, m.Triplets()) {
		ts = append(ts, part...)
	}
	return
}

// Gather assembles the whole operator on every rank (collective)
func (m DistCSR) Gather(comm *Comm) (full *sparse.CSR) {
	var (
		nr, nc = m.RowLayout.N, m.ColLayout.N
		ts     = m.GatherTriplets(comm)
	)
	if nr == 0 || nc == 0 {
		return nil
	}
	dok := sparse.NewDOK(nr, nc)
	for _, t := range ts {
		dok.Set(t.Row, t.Col, dok.At(t.Row, t.Col)+t.Val)
	}
	return dok.ToCSR()
}

// FromTriplets builds an operator from entries whose rows are owned by this rank
func FromTriplets(rows, cols *Layout, name string, ts []Triplet) DistCSR {
	dok := NewDOK(rows, cols, name)
	for _, t := range ts {
		dok.AddGlobal(t.Row, t.Col, t.Val)
	}
	return dok.ToCSR()
}

// Scale multiplies every entry by s in place
func (m DistCSR) Scale(s float64) DistCSR {
	data := m.Data()
	for i := range data {
		data[i] *= s
	}
	return m
}

// ShiftDiagonal returns alpha*M + beta*I as a new operator
func (m DistCSR) ShiftDiagonal(alpha, beta float64, name string) DistCSR {
	dok := NewDOK(m.RowLayout, m.ColLayout, name)
	m.RowLayout.ForEachOwned(func(i, g int) {
		m.DoRow(i, func(j int, v float64) {
			dok.Add(i, j, alpha*v)
		})
		dok.Add(i, g, beta)
	})
	return dok.ToCSR()
}

// PinRow replaces a global row by the identity row, the rank not owning it copies the operator
func (m DistCSR) PinRow(globalRow int, name string) DistCSR {
	dok := NewDOK(m.RowLayout, m.ColLayout, name)
	m.RowLayout.ForEachOwned(func(i, g int) {
		if g == globalRow {
			dok.Add(i, g, 1)
			return
		}
		m.DoRow(i, func(j int, v float64) {
			dok.Add(i, j, v)
		})
	})
	return dok.ToCSR()
}

// Mul forms A*B with the rows of A kept local and B gathered on every rank (collective)
func Mul(comm *Comm, A, B DistCSR, name string) DistCSR {
	if A.ColLayout.N != B.RowLayout.N {
		panic(fmt.Errorf("dimension mismatch multiplying %q and %q: %d != %d",
			A.name, B.name, A.ColLayout.N, B.RowLayout.N))
	}
	var (
		bFull = B.Gather(comm)
		dok   = NewDOK(A.RowLayout, B.ColLayout, name)
	)
	if bFull == nil {
		return dok.ToCSR()
	}
	bRaw := bFull.RawMatrix()
	A.RowLayout.ForEachOwned(func(i, _ int) {
		A.DoRow(i, func(k int, a float64) {
			for p := bRaw.Indptr[k]; p < bRaw.Indptr[k+1]; p++ {
				dok.Add(i, bRaw.Ind[p], a*bRaw.Data[p])
			}
		})
	})
	return dok.ToCSR()
}

// TransposeScatter forms diag(rowScale) * M^T; each entry is mailed to the owner of its new row
// (collective). rows and cols describe the result.
func TransposeScatter(comm *Comm, m DistCSR, rows, cols *Layout, rowScale func(globalRow int) float64,
	name string) DistCSR {
	if rows.N != m.ColLayout.N || cols.N != m.RowLayout.N {
		panic(fmt.Errorf("layouts do not describe the transpose of %q", m.name))
	}
	var (
		mb     = NewMailBox[Triplet](comm)
		myRank = comm.Rank()
	)
	for _, t := range m.Triplets() {
		target, _ := rows.Owner(t.Col)
		mb.PostMessage(myRank, target, Triplet{Row: t.Col, Col: t.Row, Val: t.Val * rowScale(t.Col)})
	}
	return FromTriplets(rows, cols, name, mb.Exchange(comm))
}

// Block is an operator scaled by Alpha when stacked
type Block struct {
	M     DistCSR
	Alpha float64
}

// VStack piles operators sharing a column layout; rows must be the Concat of the blocks' row
// layouts in the same order
func VStack(rows *Layout, name string, blocks ...Block) DistCSR {
	var (
		cols   = blocks[0].M.ColLayout
		dok    = NewDOK(rows, cols, name)
		offset int
	)
	for _, blk := range blocks {
		if blk.M.ColLayout.N != cols.N {
			panic(fmt.Errorf("stacking %q with %d columns onto %d columns", blk.M.name, blk.M.ColLayout.N, cols.N))
		}
		nr := blk.M.RowLayout.NLocal
		for i := 0; i < nr; i++ {
			blk.M.DoRow(i, func(j int, v float64) {
				dok.Add(offset+i, j, blk.Alpha*v)
			})
		}
		offset += nr
	}
	if offset != rows.NLocal {
		panic(fmt.Errorf("stacked %d local rows into a layout of %d", offset, rows.NLocal))
	}
	return dok.ToCSR()
}

// HStack joins operators sharing a row layout; cols must be the Concat of the blocks' column
// layouts in the same order
func HStack(cols *Layout, name string, blocks ...Block) DistCSR {
	var (
		rows   = blocks[0].M.RowLayout
		dok    = NewDOK(rows, cols, name)
		offset int
	)
	for _, blk := range blocks {
		if blk.M.RowLayout.NLocal != rows.NLocal {
			panic(fmt.Errorf("joining %q with %d local rows to %d rows", blk.M.name, blk.M.RowLayout.NLocal, rows.NLocal))
		}
		for i := 0; i < rows.NLocal; i++ {
			blk.M.DoRow(i, func(j int, v float64) {
				dok.Add(i, offset+j, blk.Alpha*v)
			})
		}
		offset += blk.M.ColLayout.N
	}
	if offset != cols.N {
		panic(fmt.Errorf("joined %d columns into a layout of %d", offset, cols.N))
	}
	return dok.ToCSR()
}

// Identity returns alpha*I on a layout
func Identity(l *Layout, alpha float64, name string) DistCSR {
	dok := NewDOK(l, l, name)
	l.ForEachOwned(func(i, g int) {
		dok.Add(i, g, alpha)
	})
	return dok.ToCSR()
}
