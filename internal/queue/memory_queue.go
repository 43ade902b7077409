package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue implementation for tests and
// single-instance demos. It is not durable — jobs are lost on process
// restart — which is acceptable only outside production (spec.md §4.6
// notes the equivalent caveat for per-process rate-limit counters).
type MemoryQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	entries entryHeap
}

type entry struct {
	job DeliveryJob
	eta time.Time
}

type entryHeap []entry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].eta.Before(h[j].eta) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(entry)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// NewMemoryQueue constructs an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	q := &MemoryQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job DeliveryJob, eta time.Time) error {
	if eta.IsZero() {
		eta = time.Now()
	}
	q.mu.Lock()
	heap.Push(&q.entries, entry{job: job, eta: eta})
	q.mu.Unlock()
	q.cond.Broadcast()
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (DeliveryJob, bool, error) {
	for {
		q.mu.Lock()
		if len(q.entries) > 0 && !q.entries[0].eta.After(time.Now()) {
			e := heap.Pop(&q.entries).(entry)
			q.mu.Unlock()
			return e.job, true, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return DeliveryJob{}, false, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

var _ Queue = (*MemoryQueue)(nil)
