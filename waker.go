package coreio

// Waker is the handle a suspended Future uses to signal that its owning
// task should be polled again. It is safe to call Wake from any goroutine,
// including one with no relationship to the runtime that owns the task —
// the local-vs-foreign decision happens inside Wake.
//
// Grounded on the teacher's doWakeup/submitWakeup dual-path wakeup
// (loop.go): a wake for a task on the calling goroutine's own thread is a
// direct run-queue push; a wake for a task elsewhere is routed through the
// peer registry and an UnparkHandle.
type Waker struct {
	task *taskHeader
}

func newWaker(t *taskHeader) *Waker { return &Waker{task: t} }

// Wake schedules the owning task for another poll. Redundant wakes before
// the task is next polled collapse into a single scheduling; a wake that
// arrives while the task's Future is still executing its current Poll call
// is latched and honored immediately after that Poll returns, rather than
// being dropped.
func (w *Waker) Wake() {
	t := w.task
	for {
		switch taskState(t.state.Load()) {
		case taskIdle:
			if t.state.CompareAndSwap(int32(taskIdle), int32(taskScheduled)) {
				scheduleTask(t)
				return
			}
		case taskRunning:
			t.rewake.Store(true)
			return
		default:
			// already scheduled or completed: wake collapses.
			return
		}
	}
}
