package utils

import "fmt"

/*
	A Layout describes how a global vector is spread over the ranks of a world. The global vector
	is an ordered list of blocks (for example pressure followed by the forces of each body); each
	block is split over the ranks by a PartitionMap. A rank's local vector is the concatenation of
	its piece of every block, in block order, so the local positions of a block are an index set
	into the local vector.
*/
type LayoutBlock struct {
	Name   string
	Offset int // Global offset of the block
	PM     *PartitionMap
}

type Layout struct {
	Rank, NP   int
	Blocks     []LayoutBlock
	N          int   // Global length
	NLocal     int   // Length of this rank's piece
	localStart []int // Start of each block within the local vector
}

func NewLayout(rank int, pms []*PartitionMap, names ...string) (l *Layout) {
	if len(pms) == 0 {
		panic("layout needs at least one block")
	}
	l = &Layout{
		Rank:       rank,
		NP:         pms[0].ParallelDegree,
		Blocks:     make([]LayoutBlock, len(pms)),
		localStart: make([]int, len(pms)),
	}
	for b, pm := range pms {
		if pm.ParallelDegree != l.NP {
			panic(fmt.Errorf("block %d partitioned over %d ranks, layout has %d", b, pm.ParallelDegree, l.NP))
		}
		name := fmt.Sprintf("block%d", b)
		if b < len(names) {
			name = names[b]
		}
		l.Blocks[b] = LayoutBlock{Name: name, Offset: l.N, PM: pm}
		l.localStart[b] = l.NLocal
		l.N += pm.MaxIndex
		l.NLocal += pm.GetBucketDimension(rank)
	}
	return
}

// NewBlockLayout splits each block evenly over the ranks of comm
func NewBlockLayout(comm *Comm, sizes []int, names ...string) *Layout {
	pms := make([]*PartitionMap, len(sizes))
	for b, size := range sizes {
		pms[b] = NewPartitionMap(comm.Size(), size)
	}
	return NewLayout(comm.Rank(), pms, names...)
}

// Concat joins layouts into one composite layout, blocks keep their partitions
func Concat(layouts ...*Layout) *Layout {
	var (
		pms   []*PartitionMap
		names []string
	)
	for _, l := range layouts {
		for _, b := range l.Blocks {
			pms = append(pms, b.PM)
			names = append(names, b.Name)
		}
	}
	return NewLayout(layouts[0].Rank, pms, names...)
}

// BlockRange is the index set of block b inside this rank's local vector
func (l *Layout) BlockRange(b int) (start, end int) {
	start = l.localStart[b]
	end = start + l.Blocks[b].PM.GetBucketDimension(l.Rank)
	return
}

// OwnedRange is the global index range of block b owned by this rank
func (l *Layout) OwnedRange(b int) (gMin, gMax int) {
	kMin, kMax := l.Blocks[b].PM.GetBucketRange(l.Rank)
	return l.Blocks[b].Offset + kMin, l.Blocks[b].Offset + kMax
}

// Global converts a local position into the global index
func (l *Layout) Global(local int) int {
	for b := range l.Blocks {
		start, end := l.BlockRange(b)
		if local >= start && local < end {
			gMin, _ := l.OwnedRange(b)
			return gMin + local - start
		}
	}
	panic(fmt.Errorf("local index %d out of range [0, %d)", local, l.NLocal))
}

func (l *Layout) block(global int) (b int) {
	for b = len(l.Blocks) - 1; b >= 0; b-- {
		if global >= l.Blocks[b].Offset {
			return
		}
	}
	return -1
}

// Owner returns the rank owning a global index and its position in that rank's local vector
func (l *Layout) Owner(global int) (rank, local int) {
	if global < 0 || global >= l.N {
		return -1, -1
	}
	b := l.block(global)
	blk := l.Blocks[b]
	bn, kMin, _ := blk.PM.GetBucket(global - blk.Offset)
	local = global - blk.Offset - kMin
	for bb := 0; bb < b; bb++ {
		local += l.Blocks[bb].PM.GetBucketDimension(bn)
	}
	return bn, local
}

// Local returns the local position of a global index owned by this rank, or -1
func (l *Layout) Local(global int) int {
	rank, local := l.Owner(global)
	if rank != l.Rank {
		return -1
	}
	return local
}

// ForEachOwned calls fn for every locally owned entry, in local order
func (l *Layout) ForEachOwned(fn func(local, global int)) {
	for b := range l.Blocks {
		start, end := l.BlockRange(b)
		gMin, _ := l.OwnedRange(b)
		for i := start; i < end; i++ {
			fn(i, gMin+i-start)
		}
	}
}

// Gather assembles the global vector on every rank (collective)
func (l *Layout) Gather(comm *Comm, local []float64) (global []float64) {
	if len(local) != l.NLocal {
		panic(fmt.Errorf("local vector length %d, layout expects %d", len(local), l.NLocal))
	}
	parts := AllGather(comm, local)
	global = make([]float64, l.N)
	for rank, part := range parts {
		var pos int
		for _, blk := range l.Blocks {
			kMin, kMax := blk.PM.GetBucketRange(rank)
			copy(global[blk.Offset+kMin:blk.Offset+kMax], part[pos:pos+kMax-kMin])
			pos += kMax - kMin
		}
	}
	return
}

// Scatter extracts this rank's piece of a global vector
func (l *Layout) Scatter(global []float64) (local []float64) {
	local = make([]float64, l.NLocal)
	l.ForEachOwned(func(i, g int) {
		local[i] = global[g]
	})
	return
}

func (l *Layout) NewVector() []float64 {
	return make([]float64, l.NLocal)
}
