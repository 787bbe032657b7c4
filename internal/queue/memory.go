package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jordanhubbard/relay/pkg/models"
)

// ErrQueueClosed is returned by Enqueue and Dequeue after Close.
var ErrQueueClosed = errors.New("queue is closed")

// taskHeap orders by priority ascending, then enqueue sequence ascending.
// The sequence number, not CreatedAt, breaks ties so that two tasks created
// in the same nanosecond still dequeue in arrival order.
type taskHeap []*heapEntry

type heapEntry struct {
	task *models.QueuedTask
	seq  uint64
}

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority < h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x interface{}) { *h = append(*h, x.(*heapEntry)) }

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// MemoryQueue is an in-process TaskQueue. It serves the default zero-infra
// configuration and every test that doesn't need Redis.
type MemoryQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	heap   taskHeap
	seq    uint64
	closed bool
}

// NewMemoryQueue returns an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	q := &MemoryQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds a task and wakes one blocked consumer.
func (q *MemoryQueue) Enqueue(ctx context.Context, task *models.QueuedTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	q.seq++
	heap.Push(&q.heap, &heapEntry{task: task, seq: q.seq})
	q.cond.Signal()
	return nil
}

// Dequeue blocks until a task is available, timeout elapses (nil, nil), the
// context is cancelled, or the queue is closed.
func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.QueuedTask, error) {
	deadline := time.Now().Add(timeout)

	// A ticker bounds how long we sit on the condition variable so that
	// timeout and context cancellation are honored even with no producers.
	wakeup := time.AfterFunc(timeout, func() {
		q.cond.Broadcast()
	})
	defer wakeup.Stop()

	stop := context.AfterFunc(ctx, func() {
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.closed {
			return nil, ErrQueueClosed
		}
		if q.heap.Len() > 0 {
			e := heap.Pop(&q.heap).(*heapEntry)
			return e.task, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, nil
		}
		q.cond.Wait()
	}
}

// Size reports the number of waiting tasks.
func (q *MemoryQueue) Size(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len(), nil
}

// Close marks the queue closed and wakes all blocked consumers.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
	return nil
}
