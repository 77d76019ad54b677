package coreio

import (
	"container/heap"
	"time"
)

// Deadline is the minimal collaborator surface a timer layer needs to
// expose to the executor: when the next wake is due, and a way
// to fire everything due by a given instant. Named as an out-of-scope
// collaborator in spec.md §1; timerQueue below is the concrete
// implementation this module carries so Sleep and timer_test.go are
// self-contained without a separate timer-wheel module.
type Deadline interface {
	NextDeadline() (time.Time, bool)
	AdvanceTo(now time.Time)
}

type timerEntry struct {
	at    time.Time
	waker *Waker
	index int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// timerQueue is a heap-based Deadline used when WithTimerEnabled is set.
// Grounded on the teacher's timerHeap/runTimers/ScheduleTimer (loop.go).
type timerQueue struct {
	h timerHeap
}

func newTimerQueue() *timerQueue { return &timerQueue{} }

// schedule arranges for w to be woken no earlier than at.
func (tq *timerQueue) schedule(at time.Time, w *Waker) {
	heap.Push(&tq.h, &timerEntry{at: at, waker: w})
}

func (tq *timerQueue) NextDeadline() (time.Time, bool) {
	if len(tq.h) == 0 {
		return time.Time{}, false
	}
	return tq.h[0].at, true
}

// AdvanceTo wakes every timer entry due at or before now.
func (tq *timerQueue) AdvanceTo(now time.Time) {
	for len(tq.h) > 0 && !tq.h[0].at.After(now) {
		e := heap.Pop(&tq.h).(*timerEntry)
		e.waker.Wake()
	}
}

// Sleep returns a Future that completes once d has elapsed, driven by the
// current Runtime's installed timer queue. Returns ErrTimerDisabled if the
// Runtime was not constructed with WithTimerEnabled(true).
func Sleep(d time.Duration) Future {
	var (
		deadline time.Time
		started  bool
	)
	return FutureFunc(func(w *Waker) Poll {
		tc := CurrentContext()
		if tc.timers == nil {
			return Done(nil, ErrTimerDisabled)
		}
		if !started {
			started = true
			deadline = time.Now().Add(d)
			tc.timers.schedule(deadline, w)
			return Pending()
		}
		if time.Now().Before(deadline) {
			return Pending()
		}
		return Done(nil, nil)
	})
}
