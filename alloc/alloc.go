package alloc

import (
	"go.uber.org/atomic"

	"github.com/wippyai/refcount/errors"
)

// Heap never refuses a reservation.
type Heap struct{}

// Reserve always succeeds.
func (Heap) Reserve(uintptr) error { return nil }

// Unreserve does nothing.
func (Heap) Unreserve(uintptr) {}

// Tracker counts live reservations.
type Tracker struct {
	live  atomic.Int64
	bytes atomic.Int64
	total atomic.Int64
}

// NewTracker creates a tracker with no reservations.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Reserve records a reservation of size bytes. It never fails.
func (t *Tracker) Reserve(size uintptr) error {
	t.record(size)
	return nil
}

func (t *Tracker) record(size uintptr) {
	t.live.Inc()
	t.total.Inc()
	t.bytes.Add(int64(size))
}

// Unreserve records the end of a reservation of size bytes.
func (t *Tracker) Unreserve(size uintptr) {
	t.live.Dec()
	t.bytes.Sub(int64(size))
}

// Live returns the number of outstanding reservations.
func (t *Tracker) Live() int64 {
	return t.live.Load()
}

// Bytes returns the number of outstanding reserved bytes.
func (t *Tracker) Bytes() int64 {
	return t.bytes.Load()
}

// Total returns the number of reservations ever granted.
func (t *Tracker) Total() int64 {
	return t.total.Load()
}

// Limit is a Tracker that refuses reservations over a byte budget or past a
// number of grants.
type Limit struct {
	Tracker
	max uintptr
	// grants left; negative means unlimited
	remaining atomic.Int64
}

// NewLimit creates an allocator that keeps at most budget bytes reserved.
func NewLimit(budget uintptr) *Limit {
	l := &Limit{max: budget}
	l.remaining.Store(-1)
	return l
}

// FailAfter creates an allocator that grants the first n reservations and
// refuses every later one, whatever its size.
func FailAfter(n int) *Limit {
	l := &Limit{max: ^uintptr(0) >> 1}
	l.remaining.Store(int64(n))
	return l
}

// Reserve grants size bytes if the budget allows it.
func (l *Limit) Reserve(size uintptr) error {
	if !l.takeGrant() {
		return errors.New(errors.PhaseAllocate, errors.KindAllocation).
			Value(size).
			Detail("no reservations left").
			Build()
	}

	for {
		cur := l.bytes.Load()
		if uintptr(cur)+size > l.max {
			l.returnGrant()
			return errors.AllocationFailed(errors.PhaseAllocate, size, l.max)
		}
		if l.bytes.CompareAndSwap(cur, cur+int64(size)) {
			break
		}
	}
	l.live.Inc()
	l.total.Inc()
	return nil
}

func (l *Limit) takeGrant() bool {
	for {
		n := l.remaining.Load()
		if n < 0 {
			return true
		}
		if n == 0 {
			return false
		}
		if l.remaining.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

func (l *Limit) returnGrant() {
	if l.remaining.Load() >= 0 {
		l.remaining.Inc()
	}
}

// Max returns the byte budget.
func (l *Limit) Max() uintptr {
	return l.max
}
