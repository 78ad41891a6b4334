package coordinator

import (
	"container/heap"

	"p9candles/pkg/candle"
)

// uint64Heap is a min-heap of pending batch start sequences, used to keep
// out-of-order backfilled batches ordered until they can be applied.
type uint64Heap []uint64

func (h uint64Heap) Len() int           { return len(h) }
func (h uint64Heap) Less(i, j int) bool { return h[i] < h[j] }
func (h uint64Heap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *uint64Heap) Push(x any)        { *h = append(*h, x.(uint64)) }
func (h *uint64Heap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// orderedBuffer holds out-of-order candle batches keyed by start sequence,
// functionally equivalent to the original's BTreeMap<u64, Vec<Candle>>.
// Re-inserting an existing key replaces its candles, matching
// BTreeMap::insert's replace-on-collision semantics (needed for S5,
// duplicate-batch redelivery).
type orderedBuffer struct {
	keys uint64Heap
	data map[uint64][]candle.Candle
}

func newOrderedBuffer() *orderedBuffer {
	return &orderedBuffer{data: make(map[uint64][]candle.Candle)}
}

func (b *orderedBuffer) insert(start uint64, candles []candle.Candle) {
	if _, exists := b.data[start]; !exists {
		heap.Push(&b.keys, start)
	}
	b.data[start] = candles
}

// peekMin returns the lowest pending key, popping and skipping any heap
// entry whose key is no longer present in data.
func (b *orderedBuffer) peekMin() (uint64, bool) {
	for len(b.keys) > 0 {
		k := b.keys[0]
		if _, ok := b.data[k]; ok {
			return k, true
		}
		heap.Pop(&b.keys)
	}
	return 0, false
}

func (b *orderedBuffer) peekMinCandles() ([]candle.Candle, bool) {
	k, ok := b.peekMin()
	if !ok {
		return nil, false
	}
	return b.data[k], true
}

func (b *orderedBuffer) removeMin() (uint64, []candle.Candle, bool) {
	k, ok := b.peekMin()
	if !ok {
		return 0, nil, false
	}
	heap.Pop(&b.keys)
	candles := b.data[k]
	delete(b.data, k)
	return k, candles, true
}
