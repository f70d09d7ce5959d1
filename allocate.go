package sharedptr

import "fmt"

// AllocateShared constructs an object in a free slot of pool and returns a
// strong handle owning it. init runs on the slot before the handle is
// returned. Slots are zeroed on release unless the pool was built with
// WithZeroOnRelease(false); a nil init leaves the slot as it is.
//
// When every slot is in use the error wraps ErrCapacityExceeded and the
// pool's counts are left unchanged. If the allocation brings the pool to its
// watermark, the registered callback runs before AllocateShared returns.
func AllocateShared[T any](pool *Pool[T], init func(*T)) (Ptr[T], error) {
	slot, err := pool.allocate(init)
	if err != nil {
		return Ptr[T]{}, err
	}
	return Ptr[T]{cb: pool.newBlock(slot), val: &pool.slots[slot]}, nil
}

// AllocateSharedValue is AllocateShared with the slot initialized to a copy
// of v.
func AllocateSharedValue[T any](pool *Pool[T], v T) (Ptr[T], error) {
	return AllocateShared(pool, func(obj *T) {
		*obj = v
	})
}

// MustAllocateShared allocates or panics. Use it only where pool exhaustion
// is fatal.
func MustAllocateShared[T any](pool *Pool[T], init func(*T)) Ptr[T] {
	p, err := AllocateShared(pool, init)
	if err != nil {
		panic(fmt.Sprintf("sharedptr: critical allocation failure: %v", err))
	}
	return p
}
