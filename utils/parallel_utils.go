package utils

import "fmt"

type DynBuffer[T any] struct {
	cells []T
}

func NewDynBuffer[T any](capacity int) *DynBuffer[T] {
	return &DynBuffer[T]{cells: make([]T, 0, capacity)}
}

func (db *DynBuffer[T]) Add(v T)    { db.cells = append(db.cells, v) }
func (db *DynBuffer[T]) Cells() []T { return db.cells }
func (db *DynBuffer[T]) Len() int   { return len(db.cells) }
func (db *DynBuffer[T]) Reset()     { db.cells = db.cells[:0] }
func (db *DynBuffer[T]) Copy() (c []T) {
	c = make([]T, len(db.cells))
	copy(c, db.cells)
	return
}

// MailBox carries point to point messages between the ranks of a world. It is shared by all
// ranks: create it collectively with NewMailBox, which hands rank 0's instance to everybody.
type MailBox[T any] struct {
	NP           int
	MessageChans []chan *DynBuffer[T]    // One for each rank
	PostMsgQs    []map[int]*DynBuffer[T] // One for each rank, key is target rank
	ReceiveMsgQs []*DynBuffer[T]         // One for each rank
	MailFlag     []bool                  // Rank has messages in its outbox
}

func NewMailBox[T any](comm *Comm) *MailBox[T] {
	var mb *MailBox[T]
	if comm.Rank() == 0 {
		NP := comm.Size()
		mb = &MailBox[T]{
			NP:           NP,
			MessageChans: make([]chan *DynBuffer[T], NP),
			PostMsgQs:    make([]map[int]*DynBuffer[T], NP),
			ReceiveMsgQs: make([]*DynBuffer[T], NP),
			MailFlag:     make([]bool, NP),
		}
		for n := 0; n < NP; n++ {
			mb.MessageChans[n] = make(chan *DynBuffer[T], NP) // Worst case is all-to-all
			mb.PostMsgQs[n] = make(map[int]*DynBuffer[T])
			mb.ReceiveMsgQs[n] = NewDynBuffer[T](0)
		}
	}
	return Bcast(comm, mb, 0)
}

func (mb *MailBox[T]) PostMessage(myRank, targetRank int, msg T) {
	if targetRank < 0 || targetRank > mb.NP-1 {
		panic(fmt.Sprintf("Target rank %d out of bounds", targetRank))
	}
	tgt, exists := mb.PostMsgQs[myRank][targetRank]
	if !exists {
		tgt = NewDynBuffer[T](0)
		mb.PostMsgQs[myRank][targetRank] = tgt
	}
	tgt.Add(msg)
	mb.MailFlag[myRank] = true
}

func (mb *MailBox[T]) DeliverMyMessages(myRank int) {
	if mb.MailFlag[myRank] {
		for targetRank, msgBuffer := range mb.PostMsgQs[myRank] {
			if msgBuffer.Len() != 0 {
				mb.MessageChans[targetRank] <- msgBuffer
			}
		}
		mb.MailFlag[myRank] = false
	}
}

func (mb *MailBox[T]) ReceiveMyMessages(myRank int) {
	for {
		select {
		case msgBuffer := <-mb.MessageChans[myRank]:
			for _, msg := range msgBuffer.Cells() {
				mb.ReceiveMsgQs[myRank].Add(msg)
			}
		default:
			return
		}
	}
}

// Exchange delivers everything posted by this rank and returns what others posted to it.
// It is collective: the pattern is for range messages {Post}; Exchange.
func (mb *MailBox[T]) Exchange(comm *Comm) (received []T) {
	var myRank = comm.Rank()
	mb.DeliverMyMessages(myRank)
	comm.Barrier()
	mb.ReceiveMyMessages(myRank)
	received = mb.ReceiveMsgQs[myRank].Copy()
	mb.ReceiveMsgQs[myRank].Reset()
	comm.Barrier() // Senders may reuse their outboxes only after all receivers drained them
	for _, buf := range mb.PostMsgQs[myRank] {
		buf.Reset()
	}
	return
}

type PartitionMap struct {
	MaxIndex       int // MaxIndex is partitioned into ParallelDegree partitions
	ParallelDegree int
	Partitions     [][2]int // Beginning and end index of partitions
}

func NewPartitionMap(ParallelDegree, maxIndex int) (pm *PartitionMap) {
	pm = &PartitionMap{
		MaxIndex:       maxIndex,
		ParallelDegree: ParallelDegree,
		Partitions:     make([][2]int, ParallelDegree),
	}
	for n := 0; n < ParallelDegree; n++ {
		pm.Partitions[n] = pm.Split1D(n)
	}
	return
}

// NewScaledPartitionMap partitions maxIndex items that each carry scale consecutive entries;
// no item is split between two partitions
func NewScaledPartitionMap(ParallelDegree, maxIndex, scale int) (pm *PartitionMap) {
	items := NewPartitionMap(ParallelDegree, maxIndex)
	pm = &PartitionMap{
		MaxIndex:       maxIndex * scale,
		ParallelDegree: ParallelDegree,
		Partitions:     make([][2]int, ParallelDegree),
	}
	for n, part := range items.Partitions {
		pm.Partitions[n] = [2]int{part[0] * scale, part[1] * scale}
	}
	return
}

func (pm *PartitionMap) GetBucket(k int) (bucketNum, min, max int) {
	_, bucketNum, min, max = pm.getBucketWithTryCount(k)
	return
}

func (pm *PartitionMap) getBucketWithTryCount(k int) (tryCount, bucketNum, min, max int) {
	if k < 0 || k >= pm.MaxIndex {
		return 0, -1, 0, 0
	}
	// Initial guess
	bucketNum = int(float64(pm.ParallelDegree*k) / float64(pm.MaxIndex))
	for !(pm.Partitions[bucketNum][0] <= k && pm.Partitions[bucketNum][1] > k) {
		if pm.Partitions[bucketNum][0] > k {
			bucketNum--
		} else {
			bucketNum++
		}
		if bucketNum == -1 || bucketNum == pm.ParallelDegree {
			return 0, -1, 0, 0
		}
		tryCount++
	}
	min, max = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetBucketRange(bucketNum int) (kMin, kMax int) {
	kMin, kMax = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetBucketDimension(bn int) (kMax int) {
	if bn == -1 {
		kMax = pm.MaxIndex
		return
	}
	var (
		k1, k2 = pm.GetBucketRange(bn)
	)
	kMax = k2 - k1
	return
}

func (pm *PartitionMap) Split1D(threadNum int) (bucket [2]int) {
	// This routine splits one dimension into ParallelDegree pieces, with a maximum imbalance of one item
	var (
		Npart            = pm.MaxIndex / (pm.ParallelDegree)
		startAdd, endAdd int
		remainder        int
	)
	remainder = pm.MaxIndex % pm.ParallelDegree
	if remainder != 0 { // spread the remainder over the first chunks evenly
		if threadNum+1 > remainder {
			startAdd = remainder
			endAdd = 0
		} else {
			startAdd = threadNum
			endAdd = 1
		}
	}
	bucket[0] = threadNum*Npart + startAdd
	bucket[1] = bucket[0] + Npart + endAdd
	return
}
