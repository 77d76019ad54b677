package coreio

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
)

// runtimeState mirrors the teacher's FastState CAS-only machine (state.go),
// trimmed to the two states BlockOn's reentrancy guard actually needs.
type runtimeState int32

const (
	runtimeIdle runtimeState = iota
	runtimeRunning
)

// Runtime is a thread-per-core executor: one OS thread for the duration of
// each BlockOn call, one local run queue, one installed Driver. Spawn and a
// Waker's Wake method are the only operations safe to call from outside the
// goroutine currently inside BlockOn.
type Runtime struct {
	id      uint64
	opts    options
	queue   *runQueue
	driver  ioDriver
	kind    DriverKind
	timers  *timerQueue
	metrics *Metrics
	logger  Logger

	state  atomic.Int32
	closed atomic.Bool
	tc     *threadContext
}

// New constructs a Runtime per the four functional options of SPEC_FULL.md
// §6. The I/O driver is selected once, here: the completion driver is
// attempted first when WithUringCapability(true) (the default) and
// available on the current platform/kernel; otherwise the readiness driver
// is installed.
func New(opts ...Option) (*Runtime, error) {
	o := resolveOptions(opts)
	rt := &Runtime{
		id:      o.threadID,
		opts:    o,
		queue:   newRunQueue(),
		metrics: newMetrics(),
		logger:  getGlobalLogger(),
	}
	if o.timerEnabled {
		rt.timers = newTimerQueue()
	}
	driver, kind, err := selectDriver(o, rt.metrics)
	if err != nil {
		return nil, fmt.Errorf("coreio: selecting driver: %w", err)
	}
	rt.driver, rt.kind = driver, kind
	rt.logger.Log(LevelInfo, "coreio: runtime initialized", "thread", rt.id, "driver", kind.String())
	return rt, nil
}

// DriverKind reports which Driver implementation this Runtime selected.
func (rt *Runtime) DriverKind() DriverKind { return rt.kind }

// Metrics returns the runtime's counters.
func (rt *Runtime) Metrics() *Metrics { return rt.metrics }

// Spawn wraps fut in a task and enqueues it onto the runtime's local run
// queue, returning a JoinHandle. Safe to call from any goroutine: when
// called before the runtime's first BlockOn call (single-threaded setup),
// the task is pushed directly; once running, a Spawn from another
// goroutine is routed exactly like a cross-thread Wake.
func (rt *Runtime) Spawn(fut Future) *JoinHandle {
	t := newTaskHeader(rt.id, fut)
	if globalPeers.lookup(rt.id) == nil {
		rt.queue.push(t)
	} else {
		scheduleTask(t)
	}
	return &JoinHandle{task: t}
}

// nextTimeout returns the duration until the next timer deadline, or nil
// if no timer layer is installed or none is pending (park indefinitely).
func (rt *Runtime) nextTimeout() *time.Duration {
	if rt.timers == nil {
		return nil
	}
	at, ok := rt.timers.NextDeadline()
	if !ok {
		return nil
	}
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	return &d
}

// BlockOn installs this runtime as active for the calling goroutine, locks
// the goroutine to its OS thread for the duration (matching the teacher's
// own run(), which defers LockOSThread until the poller is actually used),
// and drives root to completion, parking on the installed Driver whenever
// the run queue empties. Re-entering BlockOn on a goroutine that is already
// inside a BlockOn call is a programming error, detected before any state
// is mutated (spec.md §4.G, §8 Invariant 3) — the guard is keyed on the
// calling goroutine's identity via the same contexts map CurrentContext
// consults, not solely on this Runtime's own state, since a task running
// under one Runtime's BlockOn calling a second, distinct Runtime's BlockOn
// on the same goroutine is just as much a violation of the per-thread
// singleton as calling back into the same Runtime would be.
func (rt *Runtime) BlockOn(ctx context.Context, root *JoinHandle) (any, error) {
	if goroutineHasActiveContext() {
		return nil, ErrRuntimeReentrant
	}
	if !rt.state.CompareAndSwap(int32(runtimeIdle), int32(runtimeRunning)) {
		return nil, ErrRuntimeReentrant
	}
	defer rt.state.Store(int32(runtimeIdle))

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	tc := &threadContext{id: rt.id, queue: rt.queue, driver: rt.driver, timers: rt.timers, rt: rt}
	rt.tc = tc
	globalPeers.register(tc)
	setCurrentContext(tc)
	defer func() {
		clearCurrentContext()
		globalPeers.unregister(rt.id)
		rt.tc = nil
	}()

	for {
		if rt.closed.Load() {
			return nil, ErrRuntimeClosed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		tc.foreign.drain(rt.queue)

		roundsLeft := 2 * rt.queue.Len()
		for {
			task, ok := rt.queue.pop()
			if !ok {
				break
			}
			task.run()
			rt.metrics.tasksRun.Add(1)
			if roundsLeft == 0 {
				break
			}
			roundsLeft--
		}

		if root.task.loadState() == taskCompleted {
			return root.task.value, root.task.err
		}

		if err := rt.driver.Submit(); err != nil {
			rt.logger.Log(LevelWarn, "coreio: submit failed", "err", err)
		} else {
			rt.metrics.submissions.Add(1)
		}

		if rt.queue.Len() == 0 {
			timeout := rt.nextTimeout()
			if err := rt.driver.Park(timeout); err != nil {
				rt.logger.Log(LevelWarn, "coreio: park failed", "err", err)
			} else {
				rt.metrics.parks.Add(1)
			}
			if rt.timers != nil {
				rt.timers.AdvanceTo(time.Now())
			}
		}
	}
}

// Close releases the installed driver's resources. A Runtime must not be
// used again after Close; any BlockOn call in progress observes
// ErrRuntimeClosed on its next outer-loop iteration.
func (rt *Runtime) Close() error {
	if !rt.closed.CompareAndSwap(false, true) {
		return nil
	}
	rt.driver.CancelAll()
	return rt.driver.Close()
}
