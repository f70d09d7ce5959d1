package sharedptr

import (
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"slices"

	"github.com/hashicorp/go-multierror"
)

// PoolStats is a snapshot of a pool's usage.
type PoolStats struct {
	Name               string `json:"name"`
	Capacity           int    `json:"capacity"`
	Watermark          int    `json:"watermark"`
	Allocated          int    `json:"allocated"`
	Free               int    `json:"free"`
	PeakAllocated      int    `json:"peak_allocated"`
	TotalAllocations   uint64 `json:"total_allocations"`
	TotalReleases      uint64 `json:"total_releases"`
	CapacityErrors     uint64 `json:"capacity_errors"`
	WatermarkCrossings uint64 `json:"watermark_crossings"`
	LiveControlBlocks  int    `json:"live_control_blocks"`
	SpareControlBlocks int    `json:"spare_control_blocks"`
}

// Pool is a fixed-capacity slab of T values handed out through
// AllocateShared. Slots are recycled when the last strong handle to their
// object is released.
//
// A Pool should be created once by the code that owns the workload and
// passed to every allocation site. Closing or dropping a pool while handles
// to its objects are still alive is a caller error.
type Pool[T any] struct {
	slots []T

	// LIFO stack of free slot indices
	free []int32

	// dense set of handed-out slots; index[slot] is the slot's position in
	// outstanding, or -1 while it is free
	outstanding []int32
	index       []int32

	capacity  int
	watermark int
	armed     bool
	callback  func(*Pool[T])

	// recycled control blocks for pool-backed handles
	spare      []*controlBlock
	liveBlocks int

	stacks []string
	closed bool

	peak               int
	totalAllocations   uint64
	totalReleases      uint64
	capacityErrors     uint64
	watermarkCrossings uint64

	config poolConfig
	logger *slog.Logger
}

// NewPool creates a pool able to hold capacity simultaneously live objects.
// The watermark callback fires when the number of live objects climbs to
// watermark.
func NewPool[T any](capacity, watermark int, options ...PoolOption) (*Pool[T], error) {
	if capacity <= 0 || capacity > math.MaxInt32 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	if watermark < 0 || watermark > capacity {
		return nil, fmt.Errorf("%w: got %d with capacity %d", ErrInvalidWatermark, watermark, capacity)
	}

	config := defaultPoolConfig()
	for _, opt := range options {
		opt(&config)
	}

	p := &Pool[T]{
		slots:       make([]T, capacity),
		free:        make([]int32, capacity),
		outstanding: make([]int32, 0, capacity),
		index:       make([]int32, capacity),
		capacity:    capacity,
		watermark:   watermark,
		armed:       true,
		config:      config,
		logger:      config.logger,
	}

	// Slot 0 ends up on top of the stack.
	for i := range p.free {
		p.free[i] = int32(capacity - 1 - i)
		p.index[i] = -1
	}

	if config.enableDebug {
		p.stacks = make([]string, capacity)
	}

	return p, nil
}

// RegisterWatermarkCallback replaces the watermark callback. fn runs
// synchronously inside the allocation that crossed the watermark, after the
// new object has been constructed. A nil fn removes the callback.
func (p *Pool[T]) RegisterWatermarkCallback(fn func(*Pool[T])) {
	p.callback = fn
}

// Name returns the pool's configured name.
func (p *Pool[T]) Name() string {
	return p.config.name
}

// Capacity returns the maximum number of simultaneously live objects.
func (p *Pool[T]) Capacity() int {
	return p.capacity
}

// Watermark returns the watermark threshold.
func (p *Pool[T]) Watermark() int {
	return p.watermark
}

// NumFree returns the number of unused slots.
func (p *Pool[T]) NumFree() int {
	return len(p.free)
}

// NumAllocated returns the number of live objects.
func (p *Pool[T]) NumAllocated() int {
	return len(p.outstanding)
}

// HasOutstandingObjects reports whether any object is live.
func (p *Pool[T]) HasOutstandingObjects() bool {
	return len(p.outstanding) != 0
}

// OutstandingObjects returns the live objects in slot order. The slice is a
// snapshot for diagnostics; the pointers are only valid while the objects
// are still held by some handle.
func (p *Pool[T]) OutstandingObjects() []*T {
	slots := slices.Clone(p.outstanding)
	slices.Sort(slots)

	objects := make([]*T, len(slots))
	for i, slot := range slots {
		objects[i] = &p.slots[slot]
	}
	return objects
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool[T]) Stats() *PoolStats {
	return &PoolStats{
		Name:               p.config.name,
		Capacity:           p.capacity,
		Watermark:          p.watermark,
		Allocated:          len(p.outstanding),
		Free:               len(p.free),
		PeakAllocated:      p.peak,
		TotalAllocations:   p.totalAllocations,
		TotalReleases:      p.totalReleases,
		CapacityErrors:     p.capacityErrors,
		WatermarkCrossings: p.watermarkCrossings,
		LiveControlBlocks:  p.liveBlocks,
		SpareControlBlocks: len(p.spare),
	}
}

// Close marks the pool closed. Further allocations fail with ErrPoolClosed.
// If objects are still outstanding they are logged and reported in an error
// wrapping ErrOutstandingObjects; the objects themselves are left untouched.
func (p *Pool[T]) Close() error {
	p.closed = true
	if len(p.outstanding) == 0 {
		return nil
	}

	slots := slices.Clone(p.outstanding)
	slices.Sort(slots)

	var leaks *multierror.Error
	for _, slot := range slots {
		leaks = multierror.Append(leaks, fmt.Errorf("slot %d: %s", slot, describe(&p.slots[slot])))
		if p.logger != nil {
			attrs := []any{
				slog.String("pool", p.config.name),
				slog.Int("slot", int(slot)),
				slog.String("object", describe(&p.slots[slot])),
			}
			if p.stacks != nil {
				attrs = append(attrs, slog.String("allocation_stack", p.stacks[slot]))
			}
			p.logger.Error("sharedptr: object outstanding at pool close", attrs...)
		}
	}

	return fmt.Errorf("%w: pool %q has %d live objects: %w",
		ErrOutstandingObjects, p.config.name, len(slots), leaks.ErrorOrNil())
}

// allocate constructs an object in a free slot and returns the slot.
func (p *Pool[T]) allocate(init func(*T)) (int32, error) {
	if p.closed {
		return -1, fmt.Errorf("%w: %q", ErrPoolClosed, p.config.name)
	}
	if len(p.free) == 0 {
		p.capacityErrors++
		if p.logger != nil {
			p.logger.Warn("sharedptr: pool capacity exceeded",
				slog.String("pool", p.config.name),
				slog.Int("capacity", p.capacity),
				slog.Int("allocated", len(p.outstanding)))
		}
		return -1, fmt.Errorf("%w: pool %q has all %d objects outstanding",
			ErrCapacityExceeded, p.config.name, p.capacity)
	}

	// Construct before popping so a panicking initializer leaves the slot free.
	slot := p.free[len(p.free)-1]
	if init != nil {
		init(&p.slots[slot])
	}
	p.free = p.free[:len(p.free)-1]

	p.index[slot] = int32(len(p.outstanding))
	p.outstanding = append(p.outstanding, slot)

	if p.stacks != nil {
		p.recordAllocationStack(slot)
	}

	p.totalAllocations++
	if n := len(p.outstanding); n > p.peak {
		p.peak = n
	}

	p.checkWatermark()
	return slot, nil
}

// release destroys the object in slot and returns the slot to the free list.
// Releasing a slot that is not outstanding panics with ErrDoubleRelease.
func (p *Pool[T]) release(slot int32) {
	if slot < 0 || int(slot) >= p.capacity || p.index[slot] < 0 {
		panic(fmt.Errorf("%w: pool %q slot %d", ErrDoubleRelease, p.config.name, slot))
	}

	obj := &p.slots[slot]
	destroy(obj)
	if p.config.zeroOnRelease {
		var zero T
		*obj = zero
	}

	// Swap-remove from the outstanding set.
	pos := p.index[slot]
	last := p.outstanding[len(p.outstanding)-1]
	p.outstanding[pos] = last
	p.index[last] = pos
	p.outstanding = p.outstanding[:len(p.outstanding)-1]
	p.index[slot] = -1

	if p.stacks != nil {
		p.stacks[slot] = ""
	}

	p.free = append(p.free, slot)
	p.totalReleases++

	if len(p.outstanding) < p.watermark {
		p.armed = true
	}
}

func (p *Pool[T]) checkWatermark() {
	if !p.armed || len(p.outstanding) < p.watermark {
		return
	}
	p.armed = false
	p.watermarkCrossings++

	if p.callback != nil {
		p.callback(p)
		return
	}
	if p.logger != nil {
		p.logger.Warn("sharedptr: pool watermark reached",
			slog.String("pool", p.config.name),
			slog.Int("watermark", p.watermark),
			slog.Int("capacity", p.capacity),
			slog.Int("allocated", len(p.outstanding)))
	}
}

func (p *Pool[T]) recordAllocationStack(slot int32) {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	p.stacks[slot] = string(buf[:n])
}

// newBlock returns a control block owning slot with one strong reference.
func (p *Pool[T]) newBlock(slot int32) *controlBlock {
	var cb *controlBlock
	if n := len(p.spare); n > 0 {
		cb = p.spare[n-1]
		p.spare[n-1] = nil
		p.spare = p.spare[:n-1]
	} else {
		cb = &controlBlock{}
	}
	*cb = controlBlock{
		strong:   1,
		strategy: returnToPool,
		slot:     slot,
		owner:    p,
	}
	p.liveBlocks++
	return cb
}

func (p *Pool[T]) releaseSlot(slot int32) {
	p.release(slot)
}

func (p *Pool[T]) recycleBlock(cb *controlBlock) {
	*cb = controlBlock{slot: -1}
	p.liveBlocks--
	p.spare = append(p.spare, cb)
}
