package core

// HandleAllocator hands out unique handles. Each component that needs
// identity owns its own allocator, so lifetime and reset semantics stay
// local instead of living in a process-global counter.
//
// The zero value is ready to use.
type HandleAllocator struct {
	next Handle
}

// Next returns a handle that has not been returned by this allocator
// before. Handles start at 1; 0 is never allocated and can act as a
// "no handle" sentinel.
func (a *HandleAllocator) Next() Handle {
	a.next++
	return a.next
}

// Reset makes the allocator start over. Only valid once every handle it
// produced has been released by its owner.
func (a *HandleAllocator) Reset() {
	a.next = 0
}
