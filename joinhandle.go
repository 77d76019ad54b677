package coreio

// JoinHandle is returned by Runtime.Spawn. It implements Future itself, so
// a spawned task's result can be composed into another Future via Then, or
// driven directly by Runtime.BlockOn as the root task.
type JoinHandle struct {
	task *taskHeader
}

// Poll reports the spawned task's completion. A JoinHandle must only be
// polled from one place at a time — composing the same handle into two
// different parent futures is a programming error, matching spec.md's
// single-joiner task model.
func (h *JoinHandle) Poll(w *Waker) Poll {
	if h.task.loadState() == taskCompleted {
		return Done(h.task.value, h.task.err)
	}
	h.task.joiner.Store(w)
	// A completion may have raced in between the check above and the store;
	// re-check once before yielding control back to the caller.
	if h.task.loadState() == taskCompleted {
		h.task.joiner.CompareAndSwap(w, nil)
		return Done(h.task.value, h.task.err)
	}
	return Pending()
}

// Abort drops the runtime's reference to the task's Future. If the Future
// holds an in-flight I/O operation (it implements Canceler), that operation
// is canceled first — the driver orphans its slot so a pinned buffer isn't
// kept alive waiting on a completion nothing will ever observe again.
func (h *JoinHandle) Abort() {
	if c, ok := h.task.future.(Canceler); ok {
		c.Cancel()
	}
	h.task.release()
}
