package recovery

// ring is a bounded FIFO queue. When full, pushing evicts the oldest
// entry rather than rejecting the new one: data loss under sustained
// outage is an accepted, logged degradation.
type ring[T any] struct {
	items    []T
	capacity int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{capacity: capacity}
}

// push appends v, evicting the oldest entry if the queue is full.
// Returns true when an eviction happened.
func (r *ring[T]) push(v T) bool {
	evicted := false
	if len(r.items) >= r.capacity {
		copy(r.items, r.items[1:])
		r.items = r.items[:len(r.items)-1]
		evicted = true
	}
	r.items = append(r.items, v)
	return evicted
}

// drain returns all queued entries in FIFO order and clears the queue.
func (r *ring[T]) drain() []T {
	out := r.items
	r.items = nil
	return out
}

func (r *ring[T]) len() int {
	return len(r.items)
}
