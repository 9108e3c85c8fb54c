package journal

import "sync"

// growThreshold is the occupancy percentage at which the ring doubles.
const growThreshold = 70

// buffer is a growable ring queue between event producers and the
// batch writer. Send never blocks: when occupancy crosses the grow
// threshold the ring doubles instead of applying backpressure, so a
// slow database cannot stall connection callbacks.
type buffer[T any] struct {
	mu sync.Mutex

	slots []T
	head  int // index of the oldest queued item
	size  int

	closed bool
}

func newBuffer[T any](capacity int) *buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &buffer[T]{slots: make([]T, capacity)}
}

// Send enqueues item. It returns false once the buffer is closed.
func (b *buffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}
	threshold := len(b.slots) * growThreshold / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.size+1 >= threshold {
		b.grow()
	}
	b.slots[(b.head+b.size)%len(b.slots)] = item
	b.size++
	return true
}

// TryReceive dequeues the oldest item without blocking.
func (b *buffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	if b.size == 0 {
		return zero, false
	}
	item := b.slots[b.head]
	b.slots[b.head] = zero // release for GC
	b.head = (b.head + 1) % len(b.slots)
	b.size--
	return item, true
}

// DrainTo removes up to max items, oldest first. max <= 0 drains
// everything. Used for the final flush on shutdown.
func (b *buffer[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.size
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	var zero T
	out := make([]T, n)
	for i := 0; i < n; i++ {
		idx := (b.head + i) % len(b.slots)
		out[i] = b.slots[idx]
		b.slots[idx] = zero
	}
	b.head = (b.head + n) % len(b.slots)
	b.size -= n
	return out
}

// Close stops further sends. Queued items stay readable.
func (b *buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

func (b *buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *buffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.slots)
}

// grow doubles the ring, unwrapping queued items to the front.
// Caller must hold mu.
func (b *buffer[T]) grow() {
	next := make([]T, len(b.slots)*2)
	for i := 0; i < b.size; i++ {
		next[i] = b.slots[(b.head+i)%len(b.slots)]
	}
	b.slots = next
	b.head = 0
}
