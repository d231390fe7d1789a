package resolver

import "container/list"

// queue is a FIFO with O(1) push and pop.
type queue[T any] struct {
	l *list.List
}

func newQueue[T any](items ...T) *queue[T] {
	q := &queue[T]{l: list.New()}
	for _, it := range items {
		q.push(it)
	}
	return q
}

func (q *queue[T]) push(v T) {
	q.l.PushBack(v)
}

func (q *queue[T]) pop() (T, bool) {
	front := q.l.Front()
	if front == nil {
		var zero T
		return zero, false
	}
	return q.l.Remove(front).(T), true
}

func (q *queue[T]) len() int {
	return q.l.Len()
}
