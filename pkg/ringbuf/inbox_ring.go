// Package ringbuf provides a fixed-capacity, concurrency-safe ring buffer.
package ringbuf

import "sync"

// Buffer keeps the most recent Cap() items; older items are overwritten.
type Buffer[T any] struct {
	mu    sync.RWMutex
	items []T
	next  int
	size  int
}

// New returns a buffer holding at most capacity items. capacity < 1 is treated as 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

func (b *Buffer[T]) Push(item T) {
	b.mu.Lock()
	b.items[b.next] = item
	b.next = (b.next + 1) % len(b.items)
	if b.size < len(b.items) {
		b.size++
	}
	b.mu.Unlock()
}

// Last returns up to n items, newest first. n <= 0 returns everything held.
func (b *Buffer[T]) Last(n int) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || n > b.size {
		n = b.size
	}
	out := make([]T, 0, n)
	idx := b.next
	for i := 0; i < n; i++ {
		idx = (idx - 1 + len(b.items)) % len(b.items)
		out = append(out, b.items[idx])
	}
	return out
}

func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

func (b *Buffer[T]) Cap() int {
	return len(b.items)
}
