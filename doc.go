// Package coreio provides a thread-per-core asynchronous I/O runtime core:
// a task system, a single-threaded executor, and a pluggable I/O driver
// abstraction with completion-based (io_uring) and readiness-based
// (epoll/kqueue) implementations.
//
// # Architecture
//
// A [Runtime] runs on one OS thread, locked for the duration of each
// [Runtime.BlockOn] call. [Runtime.Spawn]
// wraps a [Future] in a task and enqueues it onto the runtime's local run
// queue, returning a [JoinHandle]; [Runtime.BlockOn] drains that queue,
// polls the root task, and parks on the I/O driver when there is nothing
// left to run. Buffers passed to an I/O operation ([Read], [Write], [Readv],
// [Writev]) are consumed by value and returned by value together with the
// operation's result — callers never hold a buffer and the kernel
// simultaneously.
//
// # Platform support
//
// The completion driver ([CompletionDriver]) targets Linux only, built
// directly on the io_uring submission/completion ring ABI. The readiness
// driver ([ReadinessDriver]) falls back to epoll on Linux and kqueue on
// Darwin, and is always available.
//
// # Thread safety
//
// [Runtime.Spawn] and a [Waker]'s Wake method are safe to call from any
// goroutine. The run queue and the task headers are thread-local to the
// goroutine currently inside [Runtime.BlockOn] and take no locks; the
// completion driver's slot table is mutex-guarded. Cross-thread wakes are routed through a
// per-thread peer registry and delivered via an [UnparkHandle].
//
// # Execution model
//
// Each pass of the executor loop:
//  1. drains the run queue for at most 2·N+1 task runs, where N is the queue
//     length observed at the start of the batch (fairness against a task
//     that re-enqueues itself forever);
//  2. returns the root task's result if it has completed (the root is an
//     ordinary spawned task, run from the queue whenever it is woken);
//  3. flushes pending submissions and parks on the driver if the queue is
//     empty, bounded by the next timer deadline.
//
// # Usage
//
//	rt, err := coreio.New(coreio.WithTimerEnabled(true))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	buf := coreio.NewFixedBuffer(1024)
//	handle := rt.Spawn(coreio.Read(fd, buf))
//
//	result, err := rt.BlockOn(context.Background(), handle)
//	n := result.(coreio.ReadResult).N
package coreio
