package bufpool

import "sync"

// BoundedQueue is a thread-safe FIFO with an optional cap on item count
// and an optional cap on total memory bytes, tracked via a per-item
// MemoryCalculator. Ports original_source/include/BoundedQueue.h's
// tryPush/tryPop contract: both operations are non-blocking and report
// failure via their bool return instead of waiting, so a producer or
// consumer that hits a full/empty queue can decide for itself whether to
// spin, drop, or back off. Used directly by pipeline's ChunkQueue.
type BoundedQueue[T any] struct {
	mu                sync.Mutex
	items             []T
	maxItems          int   // 0 = unlimited
	maxMemoryBytes    int64 // 0 = unlimited
	currentMemoryBytes int64
	memoryCalculator  func(T) int64
}

// NewBoundedQueue constructs a queue with the given limits (0 disables a
// limit) and memory calculator. A nil calculator treats every item as
// contributing zero bytes, disabling memory accounting entirely.
func NewBoundedQueue[T any](maxItems int, maxMemoryBytes int64, memoryCalculator func(T) int64) *BoundedQueue[T] {
	if memoryCalculator == nil {
		memoryCalculator = func(T) int64 { return 0 }
	}
	return &BoundedQueue[T]{
		maxItems:         maxItems,
		maxMemoryBytes:   maxMemoryBytes,
		memoryCalculator: memoryCalculator,
	}
}

// TryPush appends item unless the queue is at its item-count or
// memory-byte limit, in which case it returns false without blocking.
func (q *BoundedQueue[T]) TryPush(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	itemBytes := q.memoryCalculator(item)
	if q.maxItems > 0 && len(q.items) >= q.maxItems {
		return false
	}
	if q.maxMemoryBytes > 0 && q.currentMemoryBytes+itemBytes > q.maxMemoryBytes {
		return false
	}
	q.items = append(q.items, item)
	q.currentMemoryBytes += itemBytes
	return true
}

// TryPop removes and returns the oldest item, or reports false if the
// queue is empty.
func (q *BoundedQueue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	itemBytes := q.memoryCalculator(item)
	q.currentMemoryBytes -= itemBytes
	if q.currentMemoryBytes < 0 {
		q.currentMemoryBytes = 0
	}
	return item, true
}

func (q *BoundedQueue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *BoundedQueue[T]) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

func (q *BoundedQueue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.currentMemoryBytes = 0
}

func (q *BoundedQueue[T]) MemoryUsage() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.currentMemoryBytes
}

func (q *BoundedQueue[T]) SetMaxItems(maxItems int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maxItems = maxItems
}

func (q *BoundedQueue[T]) SetMaxMemoryBytes(maxMemoryBytes int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maxMemoryBytes = maxMemoryBytes
}
