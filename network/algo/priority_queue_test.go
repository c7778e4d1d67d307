package algo_test

import (
	"container/heap"
	"testing"

	"git.fiblab.net/sim/ptal/network/algo"
	"github.com/stretchr/testify/assert"
)

func newQueue(priorities ...float64) algo.PriorityQueue {
	pq := make(algo.PriorityQueue, 0, len(priorities))
	for _, p := range priorities {
		pq.Push(&algo.Item{Value: int(p), Priority: p})
	}
	heap.Init(&pq)
	return pq
}

func TestPriorityQueue(t *testing.T) {
	pq := newQueue(4, 2, 1, 3)

	for _, want := range []int{1, 2, 3, 4} {
		item := heap.Pop(&pq).(*algo.Item)
		assert.Equal(t, want, item.Value)
		assert.Equal(t, float64(want), item.Priority)
		assert.Equal(t, -1, item.Index)
	}
	assert.Equal(t, 0, pq.Len())
}

func TestPriorityQueueChangePriority(t *testing.T) {
	pq := newQueue(4, 2, 1, 3)

	// 将Value==3的优先级改为0
	for _, item := range pq {
		if item.Value == 3 {
			item.Priority = 0
			heap.Fix(&pq, item.Index)
		}
	}
	heap.Push(&pq, &algo.Item{Value: 5, Priority: 1.5})

	got := make([]int, 0, 5)
	for pq.Len() > 0 {
		got = append(got, heap.Pop(&pq).(*algo.Item).Value)
	}
	assert.Equal(t, []int{3, 1, 5, 2, 4}, got)
}
