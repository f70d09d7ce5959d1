package sharedptr

// WeakPtr observes a pointee without keeping it alive. The zero value is
// empty and behaves as expired.
type WeakPtr[T any] struct {
	cb  *controlBlock
	val *T
}

// NewWeak returns a weak handle observing p's pointee. An empty p yields an
// empty WeakPtr.
func NewWeak[T any](p *Ptr[T]) WeakPtr[T] {
	if p.cb == nil {
		return WeakPtr[T]{}
	}
	p.cb.acquireWeak()
	return WeakPtr[T]{cb: p.cb, val: p.val}
}

// Clone returns another weak handle observing the same pointee.
func (w *WeakPtr[T]) Clone() WeakPtr[T] {
	if w.cb == nil {
		return WeakPtr[T]{}
	}
	w.cb.acquireWeak()
	return WeakPtr[T]{cb: w.cb, val: w.val}
}

// Assign makes w observe what src observes.
func (w *WeakPtr[T]) Assign(src *WeakPtr[T]) {
	w.set(src.cb, src.val)
}

// Observe makes w observe p's pointee.
func (w *WeakPtr[T]) Observe(p *Ptr[T]) {
	w.set(p.cb, p.val)
}

func (w *WeakPtr[T]) set(cb *controlBlock, val *T) {
	if cb != nil {
		cb.acquireWeak()
	}
	old := w.cb
	w.cb, w.val = cb, val
	if old != nil {
		old.releaseWeak()
	}
}

// Move transfers the weak reference out of w. w is left empty.
func (w *WeakPtr[T]) Move() WeakPtr[T] {
	moved := WeakPtr[T]{cb: w.cb, val: w.val}
	w.cb, w.val = nil, nil
	return moved
}

// MoveFrom transfers src's weak reference into w. src is left empty.
func (w *WeakPtr[T]) MoveFrom(src *WeakPtr[T]) {
	if w == src {
		return
	}
	old := w.cb
	w.cb, w.val = src.cb, src.val
	src.cb, src.val = nil, nil
	if old != nil {
		old.releaseWeak()
	}
}

// Reset drops the weak reference.
func (w *WeakPtr[T]) Reset() {
	old := w.cb
	w.cb, w.val = nil, nil
	if old != nil {
		old.releaseWeak()
	}
}

// Expired reports whether the pointee is gone (or w is empty).
func (w WeakPtr[T]) Expired() bool {
	return w.cb == nil || w.cb.strongCount() == 0
}

// UseCount returns the number of strong handles to the pointee, 0 if expired.
func (w WeakPtr[T]) UseCount() int {
	if w.cb == nil {
		return 0
	}
	return w.cb.strongCount()
}

// Lock returns a strong handle to the pointee, or an empty Ptr if it has
// already been released.
func (w WeakPtr[T]) Lock() Ptr[T] {
	if w.cb == nil || !w.cb.tryAcquireStrong() {
		return Ptr[T]{}
	}
	return Ptr[T]{cb: w.cb, val: w.val}
}
