package utils

import (
	"errors"
	"fmt"
	"sync"
)

/*
	A World is a group of ranks executing the same program (SPMD), one go routine per rank.
	Every collective below is barrier equivalent: all ranks must reach the same call before any
	of them proceeds. When a rank fails, the world is aborted and every rank blocked in a
	collective unwinds, so RunSPMD can report the first error instead of deadlocking.
*/
type World struct {
	size    int
	mu      sync.Mutex
	cond    *sync.Cond
	count   int
	gen     int
	slots   []any
	aborted error
}

type Comm struct {
	world *World
	rank  int
}

type abortSignal struct{}

var ErrAborted = errors.New("world aborted by another rank")

func NewWorld(size int) (w *World) {
	if size < 1 {
		panic(fmt.Errorf("world size must be positive, have %d", size))
	}
	w = &World{
		size:  size,
		slots: make([]any, size),
	}
	w.cond = sync.NewCond(&w.mu)
	return
}

func (w *World) Comm(rank int) *Comm {
	if rank < 0 || rank >= w.size {
		panic(fmt.Errorf("rank %d out of range [0, %d)", rank, w.size))
	}
	return &Comm{world: w, rank: rank}
}

func (w *World) Abort(err error) {
	w.mu.Lock()
	if w.aborted == nil {
		w.aborted = err
	}
	w.cond.Broadcast()
	w.mu.Unlock()
}

// NewSerialComm is a world of one rank, collectives return immediately
func NewSerialComm() *Comm {
	return NewWorld(1).Comm(0)
}

// RunSPMD executes fn on NP ranks in parallel and returns the first error encountered
func RunSPMD(NP int, fn func(comm *Comm) error) (err error) {
	var (
		w    = NewWorld(NP)
		wg   = sync.WaitGroup{}
		errs = make([]error, NP)
	)
	for np := 0; np < NP; np++ {
		wg.Add(1)
		go func(np int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					if _, ok := r.(abortSignal); ok {
						errs[np] = ErrAborted
						return
					}
					errs[np] = fmt.Errorf("rank %d: panic: %v", np, r)
					w.Abort(errs[np])
				}
			}()
			if errs[np] = fn(w.Comm(np)); errs[np] != nil {
				w.Abort(errs[np])
			}
		}(np)
	}
	wg.Wait()
	if w.aborted != nil {
		return w.aborted
	}
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return
}

func (c *Comm) Rank() int { return c.rank }
func (c *Comm) Size() int { return c.world.size }

// Barrier blocks until every rank of the world has called it
func (c *Comm) Barrier() {
	w := c.world
	if w.size == 1 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.aborted != nil {
		panic(abortSignal{})
	}
	gen := w.gen
	w.count++
	if w.count == w.size {
		w.count = 0
		w.gen++
		w.cond.Broadcast()
		return
	}
	for gen == w.gen && w.aborted == nil {
		w.cond.Wait()
	}
	if gen == w.gen {
		panic(abortSignal{})
	}
}

// exchange deposits v and returns what every rank deposited, indexed by rank
func (c *Comm) exchange(v any) (all []any) {
	w := c.world
	if w.size == 1 {
		return []any{v}
	}
	w.mu.Lock()
	w.slots[c.rank] = v
	w.mu.Unlock()
	c.Barrier()
	w.mu.Lock()
	all = make([]any, w.size)
	copy(all, w.slots)
	w.mu.Unlock()
	c.Barrier() // Nobody refills the slots before all ranks copied them
	return
}

// AllGather returns the value contributed by each rank, indexed by rank
func AllGather[T any](c *Comm, v T) (all []T) {
	raw := c.exchange(v)
	all = make([]T, len(raw))
	for np, r := range raw {
		all[np] = r.(T)
	}
	return
}

func (c *Comm) AllGatherInt(v int) []int { return AllGather(c, v) }

// AllGatherV concatenates the local slices of every rank in rank order
func (c *Comm) AllGatherV(local []float64) (global []float64) {
	parts := AllGather(c, local)
	var n int
	for _, p := range parts {
		n += len(p)
	}
	global = make([]float64, 0, n)
	for _, p := range parts {
		global = append(global, p...)
	}
	return
}

// AllReduceSum returns the element wise sum of v over ranks; the sum is formed in rank order
// so every rank sees bitwise identical results
func (c *Comm) AllReduceSum(v []float64) (sum []float64) {
	parts := AllGather(c, v)
	sum = make([]float64, len(v))
	for _, p := range parts {
		if len(p) != len(sum) {
			panic(fmt.Errorf("mismatched reduction lengths %d and %d", len(p), len(sum)))
		}
		for i, val := range p {
			sum[i] += val
		}
	}
	return
}

func (c *Comm) AllReduceSumScalar(v float64) float64 {
	return c.AllReduceSum([]float64{v})[0]
}

func (c *Comm) AllReduceMax(v float64) (m float64) {
	parts := AllGather(c, v)
	m = parts[0]
	for _, p := range parts[1:] {
		if p > m {
			m = p
		}
	}
	return
}

// Bcast returns root's value on every rank
func Bcast[T any](c *Comm, v T, root int) T {
	return AllGather(c, v)[root]
}
