// Package reorder provides an in-order release buffer: values arrive
// keyed by a monotonically increasing index in any order and are
// released strictly sequentially once every predecessor is present.
package reorder

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicate reports a second value for an index already
	// buffered.
	ErrDuplicate = errors.New("duplicate index")

	// ErrStale reports a value for an index already released.
	ErrStale = errors.New("stale index")
)

// Buffer holds out-of-order values until their turn. Not safe for
// concurrent use.
type Buffer[T any] struct {
	next    int64
	entries map[int64]T
}

// New creates a buffer releasing from the given start index.
func New[T any](start int64) *Buffer[T] {
	return &Buffer[T]{next: start, entries: make(map[int64]T)}
}

// Put stores a value under its index.
func (b *Buffer[T]) Put(index int64, v T) error {
	if index < b.next {
		return fmt.Errorf("%w: %d already released (next is %d)", ErrStale, index, b.next)
	}
	if _, ok := b.entries[index]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicate, index)
	}
	b.entries[index] = v
	return nil
}

// Release pops the contiguous run of values starting at the next
// expected index, in order. It returns nil when that value has not
// arrived yet.
func (b *Buffer[T]) Release() []T {
	var out []T
	for {
		v, ok := b.entries[b.next]
		if !ok {
			return out
		}
		delete(b.entries, b.next)
		b.next++
		out = append(out, v)
	}
}

// Next returns the index the buffer is waiting for.
func (b *Buffer[T]) Next() int64 { return b.next }

// Pending returns how many values are buffered out of order.
func (b *Buffer[T]) Pending() int { return len(b.entries) }
