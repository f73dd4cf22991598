package task

import (
	"errors"
	"fmt"

	"github.com/inhies/go-bytesize"
)

var (
	ErrStackExhausted = errors.New("task: stack budget exhausted")
	ErrStackNotLive   = errors.New("task: stack is not allocated")
)

// Stack is a stack region handed out by a StackAllocator.
// The zero value is "no stack".
type Stack struct {
	ID   uint64
	Size bytesize.ByteSize
}

// StackAllocator hands out fixed-size stacks against a total byte budget.
//
// Goroutine stacks are grown by the Go runtime, so the allocator does not
// back a Stack with memory of its own. It accounts for them, so that thread
// creation fails cleanly once the configured budget is used up instead of
// growing without bound.
type StackAllocator struct {
	size   bytesize.ByteSize
	budget bytesize.ByteSize // zero means unlimited
	inUse  bytesize.ByteSize
	nextID uint64
	live   map[uint64]struct{}
}

// NewStackAllocator returns an allocator handing out stacks of the given
// size. A zero budget never runs out.
func NewStackAllocator(size, budget bytesize.ByteSize) *StackAllocator {
	return &StackAllocator{
		size:   size,
		budget: budget,
		live:   make(map[uint64]struct{}),
	}
}

// Alloc reserves a new stack.
func (a *StackAllocator) Alloc() (Stack, error) {
	if a.budget != 0 && a.inUse+a.size > a.budget {
		return Stack{}, fmt.Errorf("%w: %s in use, budget %s", ErrStackExhausted, a.inUse, a.budget)
	}
	a.nextID++
	a.inUse += a.size
	a.live[a.nextID] = struct{}{}
	return Stack{ID: a.nextID, Size: a.size}, nil
}

// Free releases a stack. Freeing a stack twice is an error.
func (a *StackAllocator) Free(s Stack) error {
	if _, ok := a.live[s.ID]; !ok {
		return fmt.Errorf("%w: id %d", ErrStackNotLive, s.ID)
	}
	delete(a.live, s.ID)
	a.inUse -= s.Size
	return nil
}

// InUse returns the number of bytes currently handed out.
func (a *StackAllocator) InUse() bytesize.ByteSize {
	return a.inUse
}

// Live returns the number of stacks currently handed out.
func (a *StackAllocator) Live() int {
	return len(a.live)
}
