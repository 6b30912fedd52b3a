// Package queue provides a growable FIFO ring buffer.
//
// Queue keeps items in a circular buffer addressed by head and tail indices.
// When a Push finds the buffer full, the capacity is multiplied by
// GrowthFactor and any wrapped segment is moved behind the old capacity, so
// dequeue order always equals enqueue order.
//
// # Basic Usage
//
//	q := queue.New[int](queue.DefaultConfig())
//	_ = q.Push(1)
//	_ = q.Push(2)
//	v, _ := q.Pop() // 1
//
// # Bounded Growth
//
// MaxCapacity caps growth. A Push that would need more room fails with
// ErrAllocation and leaves the queue untouched.
//
// Queue does no locking; callers serialize access.
package queue
