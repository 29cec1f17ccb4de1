package main

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

var ErrAllocatorLimit = errors.New("allocator limit exceeded")

type allocatorLimitError struct {
	limit, allocated, requested int64
}

func (e *allocatorLimitError) Error() string {
	return fmt.Sprintf("%v: limit=%v allocated=%v requested=%v", ErrAllocatorLimit, e.limit, e.allocated, e.requested)
}

func (e *allocatorLimitError) Unwrap() error { return ErrAllocatorLimit }

// BoundedAllocator is an arrow allocator with a ceiling.
//
// A strict allocator (NewBoundedAllocator) panics with *allocatorLimitError
// when the ceiling is crossed, since arrow builders cannot return allocation
// errors; recoverAllocatorLimit turns it back into an error. It must only be
// used by code that allocates on the goroutine that recovers.
//
// A metered allocator (NewMeteredAllocator) never panics. It records the peak
// and Exceeded reports a crossing after the fact, so it is safe to hand to
// drivers that decode batches on their own goroutines.
type BoundedAllocator struct {
	checked *memory.CheckedAllocator
	limit   int64
	strict  bool
	peak    atomic.Int64
	closed  bool
}

func NewBoundedAllocator(limit int64) *BoundedAllocator {
	return &BoundedAllocator{
		checked: memory.NewCheckedAllocator(memory.NewGoAllocator()),
		limit:   limit,
		strict:  true,
	}
}

func NewMeteredAllocator(limit int64) *BoundedAllocator {
	return &BoundedAllocator{
		checked: memory.NewCheckedAllocator(memory.NewGoAllocator()),
		limit:   limit,
	}
}

func (a *BoundedAllocator) Allocate(size int) []byte {
	a.reserve(int64(size))
	b := a.checked.Allocate(size)
	a.track()
	return b
}

func (a *BoundedAllocator) Reallocate(size int, b []byte) []byte {
	a.reserve(int64(size - len(b)))
	b = a.checked.Reallocate(size, b)
	a.track()
	return b
}

func (a *BoundedAllocator) Free(b []byte) { a.checked.Free(b) }

func (a *BoundedAllocator) Allocated() int64 { return int64(a.checked.CurrentAlloc()) }

func (a *BoundedAllocator) Limit() int64 { return a.limit }

// Close reports memory still held by unreleased arrays.
func (a *BoundedAllocator) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	if leaked := a.Allocated(); leaked != 0 {
		return fmt.Errorf("allocator closed with %v bytes still allocated", leaked)
	}
	return nil
}

// Peak is the highest allocation seen so far.
func (a *BoundedAllocator) Peak() int64 { return a.peak.Load() }

// Exceeded returns an error wrapping ErrAllocatorLimit once the peak has gone
// over the ceiling.
func (a *BoundedAllocator) Exceeded() error {
	if peak := a.Peak(); peak > a.limit {
		return &allocatorLimitError{limit: a.limit, allocated: peak}
	}
	return nil
}

func (a *BoundedAllocator) track() {
	current := a.Allocated()
	for {
		peak := a.peak.Load()
		if current <= peak || a.peak.CompareAndSwap(peak, current) {
			return
		}
	}
}

func (a *BoundedAllocator) reserve(delta int64) {
	if !a.strict || delta <= 0 {
		return
	}
	allocated := a.Allocated()
	if allocated+delta > a.limit {
		panic(&allocatorLimitError{limit: a.limit, allocated: allocated, requested: delta})
	}
}

func recoverAllocatorLimit(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if limitErr, ok := r.(*allocatorLimitError); ok {
		*err = ExecutionError(limitErr, "resource exhaustion")
		return
	}
	panic(r)
}
