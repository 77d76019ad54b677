package coreio

import "sync/atomic"

// taskState mirrors the teacher's FastState CAS-only machine (state.go),
// trimmed to the four states a single task actually needs; naming follows
// the Go runtime's own g states (idiom only — runtime2.go is not a
// dependency of this module).
type taskState int32

const (
	taskIdle      taskState = iota // not scheduled; waiting on an external wake
	taskScheduled                  // queued, waiting for its turn in the run queue
	taskRunning                    // currently inside Future.Poll
	taskCompleted                  // produced a final value; output cell is valid
)

// Poll is the result of polling a Future: either Pending (not ready, with
// the Future responsible for arranging a later Wake) or a completed
// value/error pair.
type Poll struct {
	Ready bool
	Value any
	Err   error
}

// Pending reports that a Future has not completed.
func Pending() Poll { return Poll{} }

// Done reports that a Future has produced its final value.
func Done(value any, err error) Poll {
	return Poll{Ready: true, Value: value, Err: err}
}

// Future is the hand-rolled substitute for a compiler-generated coroutine
// state machine (spec.md §9: "implementations in languages without
// first-class coroutine types should expect to hand-roll a state-machine
// transformer"). Poll is called by the owning task's run loop; on Pending,
// the Future is responsible for arranging for w to be woken once further
// progress is possible — via the slot table, a timer, or a nested Future.
type Future interface {
	Poll(w *Waker) Poll
}

// FutureFunc adapts a plain function to the Future interface.
type FutureFunc func(w *Waker) Poll

func (f FutureFunc) Poll(w *Waker) Poll { return f(w) }

// thenFuture backs Then. It is a struct rather than a closure so Cancel can
// forward to whichever of the two composed futures is currently active —
// a closure over local variables has no way to expose that state to a
// Canceler type assertion from outside.
type thenFuture struct {
	f       Future
	cont    func(value any, err error) Future
	next    Future
	started bool
}

// Then sequences two futures: once f completes, cont is invoked with its
// result to produce the next Future to drive to completion. This is the
// composition primitive task bodies use in place of an await expression.
func Then(f Future, cont func(value any, err error) Future) Future {
	return &thenFuture{f: f, cont: cont}
}

func (t *thenFuture) Poll(w *Waker) Poll {
	if !t.started {
		p := t.f.Poll(w)
		if !p.Ready {
			return Pending()
		}
		t.started = true
		t.next = t.cont(p.Value, p.Err)
	}
	return t.next.Poll(w)
}

// Cancel forwards to whichever composed future is currently in flight, if
// it implements Canceler: f before the sequence point, next after it.
func (t *thenFuture) Cancel() {
	active := t.f
	if t.started {
		active = t.next
	}
	if c, ok := active.(Canceler); ok {
		c.Cancel()
	}
}

// taskHeader is the single allocation backing a spawned task: state,
// refcount, the erased Future, an output cell, and the joiner waiting on
// the result.
type taskHeader struct {
	state        atomic.Int32
	rewake       atomic.Bool
	refcount     atomic.Int32
	future       Future
	waker        *Waker
	originThread uint64
	joiner       atomic.Pointer[Waker]
	value        any
	err          error
}

func newTaskHeader(originThread uint64, fut Future) *taskHeader {
	t := &taskHeader{future: fut, originThread: originThread}
	t.refcount.Store(1)
	t.waker = newWaker(t)
	t.state.Store(int32(taskScheduled))
	return t
}

func (t *taskHeader) loadState() taskState { return taskState(t.state.Load()) }

func (t *taskHeader) retain() { t.refcount.Add(1) }

func (t *taskHeader) release() {
	if t.refcount.Add(-1) == 0 {
		t.future = nil
	}
}

// run polls the task exactly once. It is only ever called by the thread
// that owns this task's run queue. A self-wake observed during its own
// Poll call (the rewake flag) reschedules the task immediately instead of
// being lost, without double-queueing it mid-poll.
func (t *taskHeader) run() {
	if !t.state.CompareAndSwap(int32(taskScheduled), int32(taskRunning)) {
		return
	}
	p := t.future.Poll(t.waker)
	if p.Ready {
		t.value, t.err = p.Value, p.Err
		t.state.Store(int32(taskCompleted))
		if j := t.joiner.Swap(nil); j != nil {
			j.Wake()
		}
		return
	}
	t.state.Store(int32(taskIdle))
	if t.rewake.CompareAndSwap(true, false) {
		t.waker.Wake()
	}
}
