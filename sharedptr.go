// Package sharedptr provides single-threaded reference-counted handles
// (strong Ptr and weak WeakPtr) backed either by the Go heap or by a
// fixed-capacity slab Pool that recycles object storage.
//
// The pool is meant for simulation-style workloads that create and drop
// huge numbers of short-lived objects of one type. Objects are constructed in
// place inside a pre-allocated slab; when the last strong handle goes away
// the slot is returned to the free list instead of being left to the GC.
//
// Basic usage:
//
//	pool, err := sharedptr.NewPool[Instruction](11000, 10000)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	inst, err := sharedptr.AllocateShared(pool, func(i *Instruction) {
//		i.Opcode = 0x13
//	})
//	if err != nil {
//		// errors.Is(err, sharedptr.ErrCapacityExceeded)
//	}
//	defer inst.Reset()
//
//	other := inst.Clone() // inst.UseCount() == 2
//	defer other.Reset()
//
// Handles are plain values. Copying one with the assignment operator does not
// touch the reference count; use Clone, Assign, Move and MoveFrom instead.
// Nothing in this package is safe for concurrent use.
package sharedptr

import (
	"errors"
	"fmt"
)

// NilString is how an empty handle renders.
const NilString = "<nullptr>"

var (
	ErrCapacityExceeded   = errors.New("sharedptr: pool capacity exceeded")
	ErrInvalidCapacity    = errors.New("sharedptr: capacity must be positive and fit in int32")
	ErrInvalidWatermark   = errors.New("sharedptr: watermark must be between 0 and capacity")
	ErrPoolClosed         = errors.New("sharedptr: pool is closed")
	ErrOutstandingObjects = errors.New("sharedptr: pool closed with outstanding objects")

	// Fatal precondition violations, raised with panic.
	ErrNilDereference   = errors.New("sharedptr: dereference of empty pointer")
	ErrDoubleRelease    = errors.New("sharedptr: slot released twice")
	ErrNegativeRefCount = errors.New("sharedptr: reference count dropped below zero")
)

// Destroyer is implemented by types that need to run teardown when the last
// strong reference to them is released. Destroy is called exactly once per
// object, for heap-backed and pool-backed objects alike.
//
// Handles are not released automatically when the object holding them goes
// away. A pointee that holds Ptr or WeakPtr fields must Reset them in
// Destroy; otherwise the counts they hold are never dropped and, in a pool,
// zeroing the slot leaks whatever they referred to.
type Destroyer interface {
	Destroy()
}

// describe renders v for diagnostics.
func describe[T any](v *T) string {
	if v == nil {
		return NilString
	}
	if s, ok := any(v).(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(*v)
}

func destroy(obj any) {
	if d, ok := obj.(Destroyer); ok {
		d.Destroy()
	}
}
