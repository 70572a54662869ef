package utils

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionMap(t *testing.T) {
	{ // Test PartitionMap
		getHisto := func(K, Np int) (histo map[int]int) {
			pm := NewPartitionMap(Np, K)
			histo = make(map[int]int)
			for np := 0; np < pm.ParallelDegree; np++ {
				maxK := pm.GetBucketDimension(np)
				histo[maxK]++
			}
			return
		}
		getTotal := func(histo map[int]int) (total int) {
			for key, count := range histo {
				total += key * count
			}
			return
		}
		assert.Equal(t, map[int]int{0: 30, 1: 2}, getHisto(2, 32))
		assert.Equal(t, map[int]int{1: 32}, getHisto(32, 32))
		assert.Equal(t, map[int]int{8: 32}, getHisto(256, 32))
		assert.Equal(t, map[int]int{8: 1, 9: 31}, getHisto(287, 32))
		assert.Equal(t, 287, getTotal(getHisto(287, 32)))
		for n := 64; n < 10000; n++ {
			var (
				keys   [2]float64
				keyNum int
			)
			histo := getHisto(n, 32)
			for key := range histo {
				keys[keyNum] = float64(key)
				keyNum++
			}
			if keyNum == 2 {
				assert.Equal(t, 1., math.Abs(keys[0]-keys[1])) // Maximum imbalance of 1
			}
			assert.Equal(t, n, getTotal(histo))
		}
	}
	{ // Test inverted bucket lookup - find bucket that contains index (efficiently)
		for maxIndex := 10; maxIndex < 1000; maxIndex++ {
			pm := NewPartitionMap(5, maxIndex)
			for k := 0; k < maxIndex; k++ {
				tryCount, bn, min, max := pm.getBucketWithTryCount(k)
				mmin, mmax := pm.GetBucketRange(bn)
				assert.True(t, k >= min && k < max && min == mmin && max == mmax && tryCount <= 1)
			}
		}
		pm := NewPartitionMap(4, 10)
		bn, _, _ := pm.GetBucket(10)
		assert.Equal(t, -1, bn)
		bn, _, _ = pm.GetBucket(-1)
		assert.Equal(t, -1, bn)
	}
	{ // More ranks than items leaves empty buckets that are never searched
		pm := NewPartitionMap(8, 3)
		for k := 0; k < 3; k++ {
			bn, min, max := pm.GetBucket(k)
			assert.True(t, bn >= 0 && k >= min && k < max)
		}
	}
}

func TestScaledPartitionMap(t *testing.T) {
	pm := NewScaledPartitionMap(3, 7, 2)
	assert.Equal(t, 14, pm.MaxIndex)
	assert.Equal(t, [][2]int{{0, 6}, {6, 10}, {10, 14}}, pm.Partitions)
	for k := 0; k < 14; k++ {
		bn, min, max := pm.GetBucket(k)
		assert.True(t, k >= min && k < max)
		switch {
		case k < 6:
			assert.Equal(t, 0, bn)
		case k < 10:
			assert.Equal(t, 1, bn)
		default:
			assert.Equal(t, 2, bn)
		}
	}
}

func TestMailBox(t *testing.T) {
	NP := 4
	err := RunSPMD(NP, func(comm *Comm) error {
		mb := NewMailBox[int](comm)
		myRank := comm.Rank()
		// Two rounds to make sure outboxes are reusable
		for round := 0; round < 2; round++ {
			for target := 0; target < NP; target++ {
				mb.PostMessage(myRank, target, 100*round+10*myRank+target)
			}
			got := mb.Exchange(comm)
			sort.Ints(got)
			var expected []int
			for from := 0; from < NP; from++ {
				expected = append(expected, 100*round+10*from+myRank)
			}
			if !assert.Equal(t, expected, got) {
				t.Errorf("rank %d round %d", myRank, round)
			}
		}
		// Nothing posted, nothing received
		assert.Empty(t, mb.Exchange(comm))
		return nil
	})
	require.NoError(t, err)
}

func TestDynBuffer(t *testing.T) {
	db := NewDynBuffer[float64](2)
	for i := 0; i < 5; i++ {
		db.Add(float64(i))
	}
	assert.Equal(t, 5, db.Len())
	c := db.Copy()
	db.Reset()
	assert.Equal(t, 0, db.Len())
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, c)
}
