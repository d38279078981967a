package scheduler

import (
	"sync/atomic"
)

// Queue is a fixed capacity work stealing deque. The owning worker pushes
// and pops at the bottom end which gives it LIFO locality. Any other worker
// steals from the top end which gives thieves FIFO fairness.
//
// Push and Pop must only be called by the owning worker. Steal is safe to
// call from any number of goroutines concurrently with the owner.
type Queue struct {
	top    atomic.Int64
	bottom atomic.Int64
	mask   int64
	buffer []atomic.Pointer[Task]
}

// NewQueue constructs a queue that can hold at least capacity tasks. The
// capacity is rounded up to a power of two.
func NewQueue(capacity int) *Queue {
	size := 2
	for size < capacity {
		size <<= 1
	}

	return &Queue{
		mask:   int64(size - 1),
		buffer: make([]atomic.Pointer[Task], size),
	}
}

// Push adds the task to the bottom of the queue. It returns false if the
// queue is full.
func (q *Queue) Push(t *Task) bool {
	b := q.bottom.Load()
	top := q.top.Load()

	if b-top >= int64(len(q.buffer)) {
		return false
	}

	q.buffer[b&q.mask].Store(t)
	q.bottom.Store(b + 1)

	return true
}

// Pop removes the task at the bottom of the queue. It returns nil when the
// queue is empty.
func (q *Queue) Pop() *Task {
	b := q.bottom.Load() - 1
	q.bottom.Store(b)
	top := q.top.Load()

	if top > b {
		q.bottom.Store(b + 1)
		return nil
	}

	t := q.buffer[b&q.mask].Load()

	// When this is the last element a thief may be racing for it. The same
	// compare-and-swap on top decides the winner. Losing means the queue is
	// empty for the owner too.
	if top == b {
		if !q.top.CompareAndSwap(top, top+1) {
			t = nil
		}
		q.bottom.Store(b + 1)
	}

	return t
}

// Steal removes the task at the top of the queue. It returns nil when the
// queue is empty or another goroutine won the race for the task.
func (q *Queue) Steal() *Task {
	top := q.top.Load()
	b := q.bottom.Load()

	if top >= b {
		return nil
	}

	t := q.buffer[top&q.mask].Load()
	if !q.top.CompareAndSwap(top, top+1) {
		return nil
	}

	return t
}

// Size returns the number of tasks in the queue.
func (q *Queue) Size() int {
	n := q.bottom.Load() - q.top.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Capacity returns the maximum number of tasks the queue can hold.
func (q *Queue) Capacity() int {
	return len(q.buffer)
}
