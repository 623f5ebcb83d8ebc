package cachectl

import "sync/atomic"

// Line is the "shared, cache-maintained storage" abstraction the design
// notes call for: a value that multiple goroutines (standing in for
// cores) read and write the way the firmware reads and writes state with
// caches on and off. CleanInvalidate is the write-then-publish operation;
// Invalidate is the invalidate-then-read operation. Both exist as named,
// separate calls — rather than folding them into plain field access — so
// every call site in pwrdomain/coordinate/psci visibly performs the
// maintenance the spec requires before another core may observe it.
type Line[T any] struct {
	v atomic.Pointer[T]
}

// NewLine creates a Line already holding val.
func NewLine[T any](val T) *Line[T] {
	l := &Line[T]{}
	l.v.Store(&val)

	return l
}

// CleanInvalidate stores val and makes it visible to any core that next
// invalidates and reads this line.
func (l *Line[T]) CleanInvalidate(val T) {
	FenceRWRW()
	l.v.Store(&val)
	FenceI()
}

// Invalidate discards any stale cached copy and returns the current value.
func (l *Line[T]) Invalidate() T {
	FenceRWRW()
	p := l.v.Load()
	FenceI()

	return *p
}

// Peek reads the current value without issuing fences, for use by the
// owning core when it knows no cross-core invalidation is needed (e.g.
// re-reading a value it just wrote itself, same goroutine).
func (l *Line[T]) Peek() T {
	return *l.v.Load()
}
