package sharedptr

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

const (
	numStrong = 6
	numWeak   = 4
)

// handleSet is a bag of strong and weak handles to one heap object. Actions
// shuffle ownership around; the check verifies the counts against a recount
// of the bag.
type handleSet struct {
	strong    [numStrong]Ptr[myType]
	weak      [numWeak]WeakPtr[myType]
	block     *controlBlock
	destroyed int
}

func (h *handleSet) live() int {
	n := 0
	for i := range h.strong {
		if h.strong[i].Valid() {
			n++
		}
	}
	return n
}

func (h *handleSet) observers() int {
	n := 0
	for i := range h.weak {
		if h.weak[i].cb != nil {
			n++
		}
	}
	return n
}

func (h *handleSet) check(t *rapid.T) {
	live := h.live()

	if live == 0 && h.destroyed != 1 {
		t.Fatalf("no strong handles left but destroyed %d times", h.destroyed)
	}
	if live > 0 && h.destroyed != 0 {
		t.Fatalf("%d strong handles left but object destroyed", live)
	}
	if got := h.block.strongCount(); got != live {
		t.Fatalf("strong count %d, expected %d", got, live)
	}
	if got := h.block.weakCount(); got != h.observers() {
		t.Fatalf("weak count %d, expected %d", got, h.observers())
	}

	for i := range h.strong {
		if h.strong[i].Valid() && h.strong[i].UseCount() != live {
			t.Fatalf("strong[%d].UseCount() = %d, expected %d", i, h.strong[i].UseCount(), live)
		}
		if !h.strong[i].Valid() && h.strong[i].Get() != nil {
			t.Fatalf("empty strong[%d] still points somewhere", i)
		}
	}
	for i := range h.weak {
		w := h.weak[i]
		if w.cb == nil {
			continue
		}
		if w.Expired() != (live == 0) {
			t.Fatalf("weak[%d].Expired() = %v with %d strong handles", i, w.Expired(), live)
		}
		if w.UseCount() != live {
			t.Fatalf("weak[%d].UseCount() = %d, expected %d", i, w.UseCount(), live)
		}
	}
}

func TestHandleCountingProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := &handleSet{}
		h.strong[0] = New(&myType{a: 1, deleted: &h.destroyed})
		h.block = h.strong[0].cb

		strongIdx := rapid.IntRange(0, numStrong-1)
		weakIdx := rapid.IntRange(0, numWeak-1)

		t.Repeat(map[string]func(*rapid.T){
			"clone": func(t *rapid.T) {
				i, j := strongIdx.Draw(t, "from"), strongIdx.Draw(t, "to")
				c := h.strong[i].Clone()
				h.strong[j].MoveFrom(&c)
			},
			"assign": func(t *rapid.T) {
				i, j := strongIdx.Draw(t, "from"), strongIdx.Draw(t, "to")
				h.strong[j].Assign(&h.strong[i])
			},
			"move": func(t *rapid.T) {
				i, j := strongIdx.Draw(t, "from"), strongIdx.Draw(t, "to")
				h.strong[j].MoveFrom(&h.strong[i])
			},
			"moveOut": func(t *rapid.T) {
				i, j := strongIdx.Draw(t, "from"), strongIdx.Draw(t, "to")
				tmp := h.strong[i].Move()
				h.strong[j].MoveFrom(&tmp)
			},
			"reset": func(t *rapid.T) {
				h.strong[strongIdx.Draw(t, "i")].Reset()
			},
			"observe": func(t *rapid.T) {
				i, k := strongIdx.Draw(t, "strong"), weakIdx.Draw(t, "weak")
				h.weak[k].Observe(&h.strong[i])
			},
			"cloneWeak": func(t *rapid.T) {
				k, l := weakIdx.Draw(t, "from"), weakIdx.Draw(t, "to")
				h.weak[l].Assign(&h.weak[k])
			},
			"lock": func(t *rapid.T) {
				k, j := weakIdx.Draw(t, "weak"), strongIdx.Draw(t, "to")
				locked := h.weak[k].Lock()
				if h.destroyed > 0 && locked.Valid() {
					t.Fatalf("locked an expired handle")
				}
				h.strong[j].MoveFrom(&locked)
			},
			"dropWeak": func(t *rapid.T) {
				h.weak[weakIdx.Draw(t, "k")].Reset()
			},
			"": h.check,
		})

		for i := range h.strong {
			h.strong[i].Reset()
		}
		for i := range h.weak {
			h.weak[i].Reset()
		}
		if h.destroyed != 1 {
			t.Fatalf("destroyed %d times", h.destroyed)
		}
	})
}

// poolModel tracks what a pool should report and how often its watermark
// callback should have fired.
type poolModel struct {
	pool     *Pool[myType]
	held     []Ptr[myType]
	armed    bool
	expected int
	fired    int
}

func (m *poolModel) check(t *rapid.T) {
	n := len(m.held)
	if m.pool.NumAllocated() != n {
		t.Fatalf("NumAllocated() = %d, expected %d", m.pool.NumAllocated(), n)
	}
	if m.pool.NumFree() != m.pool.Capacity()-n {
		t.Fatalf("NumFree() = %d, expected %d", m.pool.NumFree(), m.pool.Capacity()-n)
	}
	if len(m.pool.OutstandingObjects()) != n {
		t.Fatalf("OutstandingObjects() has %d entries, expected %d", len(m.pool.OutstandingObjects()), n)
	}
	if m.fired != m.expected {
		t.Fatalf("watermark fired %d times, expected %d", m.fired, m.expected)
	}
}

func TestPoolWatermarkProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 16).Draw(t, "capacity")
		watermark := rapid.IntRange(0, capacity).Draw(t, "watermark")

		pool, err := NewPool[myType](capacity, watermark)
		if err != nil {
			t.Fatalf("NewPool: %v", err)
		}
		m := &poolModel{pool: pool, armed: true}
		pool.RegisterWatermarkCallback(func(*Pool[myType]) { m.fired++ })

		t.Repeat(map[string]func(*rapid.T){
			"allocate": func(t *rapid.T) {
				p, err := AllocateShared(pool, nil)
				if len(m.held) == capacity {
					if !errors.Is(err, ErrCapacityExceeded) {
						t.Fatalf("expected ErrCapacityExceeded, got %v", err)
					}
					return
				}
				if err != nil {
					t.Fatalf("allocate: %v", err)
				}
				m.held = append(m.held, p)
				if m.armed && len(m.held) >= watermark {
					m.armed = false
					m.expected++
				}
			},
			"release": func(t *rapid.T) {
				if len(m.held) == 0 {
					t.Skip("nothing to release")
				}
				i := rapid.IntRange(0, len(m.held)-1).Draw(t, "i")
				m.held[i].Reset()
				m.held = append(m.held[:i], m.held[i+1:]...)
				if len(m.held) < watermark {
					m.armed = true
				}
			},
			"": m.check,
		})

		for i := range m.held {
			m.held[i].Reset()
		}
		if pool.HasOutstandingObjects() {
			t.Fatalf("objects left after releasing every handle")
		}
		if err := pool.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})
}
