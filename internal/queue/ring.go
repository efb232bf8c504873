package queue

// Ring is a fixed-capacity FIFO that evicts its oldest item on overflow.
// It is not safe for concurrent use.
type Ring[T any] struct {
	items []T
	head  int
	size  int
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v and reports whether the oldest item was evicted.
func (r *Ring[T]) Push(v T) (evicted bool) {
	capacity := len(r.items)
	if r.size == capacity {
		r.items[r.head] = v
		r.head = (r.head + 1) % capacity
		return true
	}
	r.items[(r.head+r.size)%capacity] = v
	r.size++
	return false
}

// Values returns the contents oldest first.
func (r *Ring[T]) Values() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.head+i)%len(r.items)]
	}
	return out
}

func (r *Ring[T]) Len() int {
	return r.size
}

func (r *Ring[T]) Cap() int {
	return len(r.items)
}

func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0
}
