// Package queue implements the FIFO container used for ready and blocked
// threads.
package queue

import "errors"

var (
	ErrNilQueue  = errors.New("queue: nil queue")
	ErrNilItem   = errors.New("queue: nil item")
	ErrNilFunc   = errors.New("queue: nil visitor")
	ErrNotFound  = errors.New("queue: item not found")
	ErrNotEmpty  = errors.New("queue: destroying a non-empty queue")
	ErrDestroyed = errors.New("queue: queue was destroyed")
)

type node[T comparable] struct {
	next *node[T]
	data T
}

// Queue is a FIFO container of items.
// Items are compared with ==, so a queue of pointers deletes by identity.
type Queue[T comparable] struct {
	head, tail *node[T]
	length     int
	destroyed  bool
}

// New returns an empty queue.
func New[T comparable]() *Queue[T] {
	return &Queue[T]{}
}

// Len returns the number of items in the queue, or -1 for a nil queue.
func (q *Queue[T]) Len() int {
	if q == nil {
		return -1
	}
	return q.length
}

// Enqueue pushes v onto the tail of the queue. The zero value of T counts as
// an absent item and is rejected.
func (q *Queue[T]) Enqueue(v T) error {
	if q == nil {
		return ErrNilQueue
	}
	if q.destroyed {
		return ErrDestroyed
	}
	var zero T
	if v == zero {
		return ErrNilItem
	}
	n := &node[T]{data: v}
	if q.tail != nil {
		q.tail.next = n
	}
	q.tail = n
	if q.head == nil {
		q.head = n
	}
	q.length++
	return nil
}

// Dequeue pops the head of the queue. It reports false if the queue is nil or
// empty.
func (q *Queue[T]) Dequeue() (T, bool) {
	var zero T
	if q == nil || q.head == nil {
		return zero, false
	}
	n := q.head
	q.head = n.next
	if q.tail == n {
		q.tail = nil
	}
	n.next = nil
	q.length--
	return n.data, true
}

// Peek returns the head of the queue without removing it.
func (q *Queue[T]) Peek() (T, bool) {
	var zero T
	if q == nil || q.head == nil {
		return zero, false
	}
	return q.head.data, true
}

// Contains reports whether v is in the queue.
func (q *Queue[T]) Contains(v T) bool {
	if q == nil {
		return false
	}
	for n := q.head; n != nil; n = n.next {
		if n.data == v {
			return true
		}
	}
	return false
}

// Delete removes the first item equal to v.
func (q *Queue[T]) Delete(v T) error {
	var zero T
	if q != nil && v == zero {
		return ErrNilItem
	}
	return q.DeleteFunc(func(item T) bool { return item == v })
}

// DeleteFunc removes the first item for which match returns true.
func (q *Queue[T]) DeleteFunc(match func(T) bool) error {
	if q == nil {
		return ErrNilQueue
	}
	if match == nil {
		return ErrNilFunc
	}
	var prev *node[T]
	for n := q.head; n != nil; prev, n = n, n.next {
		if !match(n.data) {
			continue
		}
		if prev == nil {
			q.head = n.next
		} else {
			prev.next = n.next
		}
		if q.tail == n {
			q.tail = prev
		}
		// Leave n.next alone: an Iterate that is currently visiting n still
		// needs it to reach the rest of the queue.
		q.length--
		return nil
	}
	return ErrNotFound
}

// Iterate calls visit on every item from head to tail. The visitor may delete
// the item it is called with; this neither skips nor revisits other items.
func (q *Queue[T]) Iterate(visit func(q *Queue[T], v T)) error {
	if q == nil {
		return ErrNilQueue
	}
	if visit == nil {
		return ErrNilFunc
	}
	for n := q.head; n != nil; {
		next := n.next
		visit(q, n.data)
		n = next
	}
	return nil
}

// Destroy releases an empty queue. A non-empty queue is left untouched.
func (q *Queue[T]) Destroy() error {
	if q == nil {
		return ErrNilQueue
	}
	if q.head != nil {
		return ErrNotEmpty
	}
	q.destroyed = true
	return nil
}
