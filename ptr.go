package sharedptr

import (
	"cmp"
	"unsafe"
)

// Ptr is an owning reference-counted handle. The zero value is empty.
//
// A Ptr may view the pointee through a different type than the one it was
// created with (see Upcast); every view shares the same control block.
type Ptr[T any] struct {
	cb  *controlBlock
	val *T
}

// New takes ownership of obj. When the last strong handle is released, obj's
// Destroy method runs if it has one. New(nil) returns an empty Ptr.
func New[T any](obj *T) Ptr[T] {
	if obj == nil {
		return Ptr[T]{}
	}
	return Ptr[T]{cb: newHeapBlock(obj), val: obj}
}

// Clone returns a new handle sharing ownership with p.
func (p *Ptr[T]) Clone() Ptr[T] {
	if p.cb == nil {
		return Ptr[T]{}
	}
	p.cb.acquireStrong()
	return Ptr[T]{cb: p.cb, val: p.val}
}

// Assign makes p share ownership with src, releasing whatever p held before.
func (p *Ptr[T]) Assign(src *Ptr[T]) {
	if src.cb != nil {
		src.cb.acquireStrong()
	}
	old := p.cb
	p.cb, p.val = src.cb, src.val
	if old != nil {
		old.releaseStrong()
	}
}

// Move transfers ownership out of p into the returned handle. p is left empty.
func (p *Ptr[T]) Move() Ptr[T] {
	moved := Ptr[T]{cb: p.cb, val: p.val}
	p.cb, p.val = nil, nil
	return moved
}

// MoveFrom transfers ownership from src into p, releasing whatever p held
// before. src is left empty. Moving a handle into itself is a no-op.
func (p *Ptr[T]) MoveFrom(src *Ptr[T]) {
	if p == src {
		return
	}
	old := p.cb
	p.cb, p.val = src.cb, src.val
	src.cb, src.val = nil, nil
	if old != nil {
		old.releaseStrong()
	}
}

// Reset releases ownership and leaves p empty.
func (p *Ptr[T]) Reset() {
	old := p.cb
	p.cb, p.val = nil, nil
	if old != nil {
		old.releaseStrong()
	}
}

// ResetTo releases ownership, then takes ownership of obj as New does.
func (p *Ptr[T]) ResetTo(obj *T) {
	p.Reset()
	*p = New(obj)
}

// Get returns the pointee, or nil when p is empty. It never panics and does
// not transfer ownership.
func (p Ptr[T]) Get() *T {
	return p.val
}

// Deref returns the pointee. Dereferencing an empty Ptr is a programming
// error and panics with ErrNilDereference.
func (p Ptr[T]) Deref() *T {
	if p.cb == nil {
		panic(ErrNilDereference)
	}
	return p.val
}

// UseCount returns the number of strong handles sharing the pointee, or 0
// when p is empty.
func (p Ptr[T]) UseCount() int {
	if p.cb == nil {
		return 0
	}
	return p.cb.strongCount()
}

// Valid reports whether p owns a pointee.
func (p Ptr[T]) Valid() bool {
	return p.cb != nil
}

// IsNil reports whether p is empty.
func (p Ptr[T]) IsNil() bool {
	return p.cb == nil
}

// Equal reports whether p and o point at the same object.
func (p Ptr[T]) Equal(o *Ptr[T]) bool {
	return p.val == o.val
}

// Compare orders handles by pointee address. Empty handles sort first.
func (p Ptr[T]) Compare(o *Ptr[T]) int {
	return cmp.Compare(uintptr(unsafe.Pointer(p.val)), uintptr(unsafe.Pointer(o.val)))
}

// Weak returns a weak handle observing p's pointee.
func (p *Ptr[T]) Weak() WeakPtr[T] {
	return NewWeak(p)
}

// String renders the pointee, or NilString when p is empty.
func (p Ptr[T]) String() string {
	if p.cb == nil {
		return NilString
	}
	return describe(p.val)
}

// Upcast returns a handle that shares ownership with src but views the
// pointee through view. view is usually a method value or a closure that
// returns an embedded base, e.g.
//
//	base := sharedptr.Upcast(&derived, func(d *Derived) *Base { return &d.Base })
//
// view must return a pointer into *D itself (the object or one of its
// embedded fields). The compiler only checks the types, so a view returning
// some unrelated object is accepted, but the result would then point at
// memory the handle does not own. There is no downcast. The pointee's
// Destroy still runs on the original object.
func Upcast[B, D any](src *Ptr[D], view func(*D) *B) Ptr[B] {
	if src.cb == nil {
		return Ptr[B]{}
	}
	src.cb.acquireStrong()
	return Ptr[B]{cb: src.cb, val: view(src.val)}
}

// UpcastMove is Upcast with move semantics: ownership is transferred and src
// is left empty.
func UpcastMove[B, D any](src *Ptr[D], view func(*D) *B) Ptr[B] {
	if src.cb == nil {
		return Ptr[B]{}
	}
	up := Ptr[B]{cb: src.cb, val: view(src.val)}
	src.cb, src.val = nil, nil
	return up
}
