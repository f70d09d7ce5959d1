package sharedptr

type releaseStrategy uint8

const (
	// destroyOnRelease runs Destroy on the heap object and drops it.
	destroyOnRelease releaseStrategy = iota
	// returnToPool hands the slot back to the owning pool.
	returnToPool
)

func (s releaseStrategy) String() string {
	switch s {
	case destroyOnRelease:
		return "destroy"
	case returnToPool:
		return "pool"
	default:
		return "unknown"
	}
}

// slotOwner is the part of a Pool a control block needs. It is not generic so
// that handles of different view types can share one block.
type slotOwner interface {
	releaseSlot(slot int32)
	recycleBlock(cb *controlBlock)
}

// controlBlock is shared by every handle that refers to one pointee.
// The pointee is alive iff strong > 0. The block itself lives until both
// counts are zero.
type controlBlock struct {
	strong   uint32
	weak     uint32
	strategy releaseStrategy
	// set while the pointee is being released so that weak handles dropped
	// by Destroy do not tear the block down underneath us
	releasing bool

	// destroyOnRelease
	obj any

	// returnToPool
	slot  int32
	owner slotOwner
}

func newHeapBlock(obj any) *controlBlock {
	return &controlBlock{
		strong:   1,
		strategy: destroyOnRelease,
		obj:      obj,
		slot:     -1,
	}
}

func (cb *controlBlock) acquireStrong() {
	cb.strong++
}

// tryAcquireStrong takes a strong reference only while the pointee is alive.
func (cb *controlBlock) tryAcquireStrong() bool {
	if cb.strong == 0 {
		return false
	}
	cb.strong++
	return true
}

func (cb *controlBlock) releaseStrong() {
	if cb.strong == 0 {
		panic(ErrNegativeRefCount)
	}
	cb.strong--
	if cb.strong > 0 {
		return
	}

	// The owner pointer must be read before teardown may recycle the block.
	owner := cb.owner
	cb.releasing = true
	switch cb.strategy {
	case destroyOnRelease:
		obj := cb.obj
		cb.obj = nil
		destroy(obj)
	case returnToPool:
		owner.releaseSlot(cb.slot)
	}

	cb.releasing = false

	// Destroy may have released weak handles that pointed back at us.
	if cb.weak == 0 && cb.strong == 0 {
		cb.teardown(owner)
	}
}

func (cb *controlBlock) acquireWeak() {
	cb.weak++
}

func (cb *controlBlock) releaseWeak() {
	if cb.weak == 0 {
		panic(ErrNegativeRefCount)
	}
	cb.weak--
	if cb.weak == 0 && cb.strong == 0 && !cb.releasing {
		cb.teardown(cb.owner)
	}
}

func (cb *controlBlock) strongCount() int {
	return int(cb.strong)
}

func (cb *controlBlock) weakCount() int {
	return int(cb.weak)
}

func (cb *controlBlock) teardown(owner slotOwner) {
	if cb.strategy == returnToPool && owner != nil {
		owner.recycleBlock(cb)
	}
}
