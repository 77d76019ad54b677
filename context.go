package coreio

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// threadContext is the per-OS-thread state established for the duration of
// a BlockOn call. Exactly one is active per Runtime while it is running;
// CurrentContext panics outside of BlockOn.
type threadContext struct {
	id      uint64
	queue   *runQueue
	driver  Driver
	timers  *timerQueue
	rt      *Runtime
	foreign foreignInbox
}

// peerRegistry is a lock-guarded map of live thread contexts, consulted by
// scheduleTask on every Wake (and every Spawn while the runtime is
// running) to find the task's originating thread. Grounded on the teacher's registry.go
// map-keyed design, repurposed from promise-id tracking to thread-context
// tracking: entries are removed outright on Runtime.BlockOn return rather
// than scavenged, since there is no weak-reference GC angle here.
type peerRegistry struct {
	mu   sync.RWMutex
	data map[uint64]*threadContext
}

var globalPeers = &peerRegistry{data: make(map[uint64]*threadContext)}

func (r *peerRegistry) register(tc *threadContext) {
	r.mu.Lock()
	r.data[tc.id] = tc
	r.mu.Unlock()
}

func (r *peerRegistry) unregister(id uint64) {
	r.mu.Lock()
	delete(r.data, id)
	r.mu.Unlock()
}

func (r *peerRegistry) lookup(id uint64) *threadContext {
	r.mu.RLock()
	tc := r.data[id]
	r.mu.RUnlock()
	return tc
}

// foreignInbox collects tasks woken from a thread other than the one that
// owns them; it is drained into the owning run queue at the top of every
// outer loop iteration, before a Park.
type foreignInbox struct {
	mu    sync.Mutex
	tasks []*taskHeader
}

func (f *foreignInbox) push(t *taskHeader) {
	f.mu.Lock()
	f.tasks = append(f.tasks, t)
	f.mu.Unlock()
}

func (f *foreignInbox) drain(into *runQueue) {
	f.mu.Lock()
	tasks := f.tasks
	f.tasks = nil
	f.mu.Unlock()
	for _, t := range tasks {
		into.push(t)
	}
}

// scheduleTask routes a task that has just become runnable (a fresh Spawn,
// or a Wake) to its originating thread: a direct run-queue push if the
// calling goroutine is itself inside that thread's BlockOn call, otherwise
// through the foreign inbox plus an Unpark, matching the teacher's
// doWakeup/submitWakeup split (loop.go).
func scheduleTask(t *taskHeader) {
	tc := globalPeers.lookup(t.originThread)
	if tc == nil {
		wakeToUnknownThread(t.originThread)
		return
	}
	if isCurrentThread(tc.id) {
		tc.queue.push(t)
		return
	}
	tc.foreign.push(t)
	if h := tc.driver.UnparkHandle(); h != nil {
		_ = h.Unpark()
	}
}

// Goroutine-local context tracking. Go has no stable OS-thread handle for
// goroutines, so this is approximated — exactly as the teacher's own
// getGoroutineID does — by parsing the calling goroutine's id out of
// runtime.Stack and keying a small map on it. Reads and writes are rare
// (once per BlockOn call plus once per CurrentContext lookup from task
// code), so a plain mutex is adequate.
var (
	contextsMu sync.RWMutex
	contexts   = make(map[int64]*threadContext)
)

func setCurrentContext(tc *threadContext) {
	id := getGoroutineID()
	contextsMu.Lock()
	contexts[id] = tc
	contextsMu.Unlock()
}

func clearCurrentContext() {
	id := getGoroutineID()
	contextsMu.Lock()
	delete(contexts, id)
	contextsMu.Unlock()
}

// goroutineHasActiveContext reports whether the calling goroutine already
// has a threadContext installed, regardless of which Runtime owns it. Used
// by Runtime.BlockOn to detect reentrancy across distinct Runtimes: the
// per-Runtime state CAS alone only catches a goroutine calling back into
// the same Runtime, not a second Runtime's BlockOn nested on top of it.
func goroutineHasActiveContext() bool {
	contextsMu.RLock()
	_, ok := contexts[getGoroutineID()]
	contextsMu.RUnlock()
	return ok
}

// CurrentContext returns the context of the Runtime whose BlockOn call is
// active on the calling goroutine. It panics if called outside BlockOn.
func CurrentContext() *threadContext {
	contextsMu.RLock()
	tc := contexts[getGoroutineID()]
	contextsMu.RUnlock()
	if tc == nil {
		panic("coreio: CurrentContext called outside Runtime.BlockOn")
	}
	return tc
}

// isCurrentThread reports whether the calling goroutine is the one
// currently inside BlockOn for the thread context with the given id.
func isCurrentThread(id uint64) bool {
	contextsMu.RLock()
	tc := contexts[getGoroutineID()]
	contextsMu.RUnlock()
	return tc != nil && tc.id == id
}

// getGoroutineID parses the calling goroutine's id out of its own stack
// trace. Grounded on the teacher's own getGoroutineID (loop.go) — Go
// deliberately exposes no public API for this, so both reach for the same
// runtime.Stack-parsing workaround.
func getGoroutineID() int64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	// Stack traces start with "goroutine 123 [running]:".
	fields := bytes.Fields(buf)
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
