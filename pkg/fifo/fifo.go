// Package fifo provides a bounded first-in first-out queue.
package fifo

// Queue is a bounded first-in first-out queue with a fixed capacity.
// It models a synchronous hardware FIFO: a writer checks CanWrite before Push,
// a reader checks CanRead before Pop. Entries are never dropped.
//
// Queue is not safe for concurrent use; it belongs to exactly one clock domain.
type Queue[T any] struct {
	buf  []T
	head int // index of the oldest entry
	n    int // number of entries
}

// New creates a queue holding at most depth entries.
func New[T any](depth int) *Queue[T] {
	if depth <= 0 {
		depth = 1
	}
	return &Queue[T]{buf: make([]T, depth)}
}

// Cap returns the configured depth.
func (q *Queue[T]) Cap() int { return len(q.buf) }

// Len returns the number of queued entries.
func (q *Queue[T]) Len() int { return q.n }

// CanWrite reports whether Push would succeed (w_rdy).
func (q *Queue[T]) CanWrite() bool { return q.n < len(q.buf) }

// CanRead reports whether Pop would succeed (r_rdy).
func (q *Queue[T]) CanRead() bool { return q.n > 0 }

// Push appends v. It returns false and leaves the queue unchanged when full.
func (q *Queue[T]) Push(v T) bool {
	if q.n == len(q.buf) {
		return false
	}
	q.buf[(q.head+q.n)%len(q.buf)] = v
	q.n++
	return true
}

// Peek returns the oldest entry without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	var zero T
	if q.n == 0 {
		return zero, false
	}
	return q.buf[q.head], true
}

// Pop removes and returns the oldest entry.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T
	if q.n == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return v, true
}

// Drain moves up to len(dst) entries into dst and returns how many were copied.
func (q *Queue[T]) Drain(dst []T) int {
	i := 0
	for ; i < len(dst); i++ {
		v, ok := q.Pop()
		if !ok {
			break
		}
		dst[i] = v
	}
	return i
}

// Reset discards all entries.
func (q *Queue[T]) Reset() {
	var zero T
	for i := range q.buf {
		q.buf[i] = zero
	}
	q.head = 0
	q.n = 0
}
