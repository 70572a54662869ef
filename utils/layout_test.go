package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout(t *testing.T) {
	{ // Single rank, two blocks
		comm := NewSerialComm()
		l := NewBlockLayout(comm, []int{5, 3}, "p", "f")
		assert.Equal(t, 8, l.N)
		assert.Equal(t, 8, l.NLocal)
		s, e := l.BlockRange(1)
		assert.Equal(t, [2]int{5, 8}, [2]int{s, e})
		assert.Equal(t, 6, l.Global(6))
		assert.Equal(t, 7, l.Local(7))
		assert.Equal(t, -1, l.Local(8))
	}
	{ // Composite layout over three ranks
		NP := 3
		err := RunSPMD(NP, func(comm *Comm) error {
			var (
				p = NewBlockLayout(comm, []int{7}, "p")
				f = NewBlockLayout(comm, []int{4}, "f")
				P = Concat(p, f)
				r = comm.Rank()
			)
			require.Equal(t, 11, P.N)
			assert.Equal(t, p.NLocal+f.NLocal, P.NLocal)
			// Global order is the block order, local order is my piece of each block
			x := P.NewVector()
			P.ForEachOwned(func(i, g int) {
				x[i] = float64(g)
				assert.Equal(t, g, P.Global(i))
				rank, local := P.Owner(g)
				assert.Equal(t, r, rank)
				assert.Equal(t, i, local)
			})
			global := P.Gather(comm, x)
			for g := range global {
				assert.Equal(t, float64(g), global[g])
			}
			assert.Equal(t, x, P.Scatter(global))
			// Every index has exactly one owner
			counts := comm.AllReduceSum(func() (c []float64) {
				c = make([]float64, P.N)
				for g := 0; g < P.N; g++ {
					if P.Local(g) >= 0 {
						c[g] = 1
					}
				}
				return
			}())
			for _, c := range counts {
				assert.Equal(t, 1., c)
			}
			// Force block starts after my pressure piece
			s, e := P.BlockRange(1)
			assert.Equal(t, p.NLocal, s)
			assert.Equal(t, P.NLocal, e)
			return nil
		})
		require.NoError(t, err)
	}
}
