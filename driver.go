package coreio

import "time"

// Driver is the pluggable I/O backend a Runtime parks on between run-queue
// drains. CompletionDriver (io_uring) and ReadinessDriver (epoll/kqueue)
// are the two implementations spec.md names.
type Driver interface {
	// Submit flushes any queued I/O submissions to the kernel without
	// blocking for completions.
	Submit() error
	// Park blocks until at least one completion or readiness event is
	// available, an UnparkHandle fires, or timeout elapses. A nil timeout
	// means block indefinitely.
	Park(timeout *time.Duration) error
	// UnparkHandle returns the handle a foreign thread uses to interrupt a
	// Park call in progress.
	UnparkHandle() UnparkHandle
	// CancelAll releases any kernel-pinned resources still held by
	// in-flight operations, for a Runtime that is being torn down before
	// every spawned task finished on its own. Called once, by Close,
	// before the driver itself is closed.
	CancelAll()
	Close() error
}

// UnparkHandle lets a foreign thread interrupt a Driver's Park call.
type UnparkHandle interface {
	Unpark() error
}

// DriverKind identifies which Driver implementation a Runtime selected.
type DriverKind int

const (
	DriverKindCompletion DriverKind = iota
	DriverKindReadiness
)

func (k DriverKind) String() string {
	switch k {
	case DriverKindCompletion:
		return "completion"
	case DriverKindReadiness:
		return "readiness"
	default:
		return "unknown"
	}
}

// ioOp is the driver-agnostic handle an in-flight read/write exposes to
// ops.go. poll reports (result, err, ready); cancel marks the operation
// orphaned if the owning task is dropped before completion.
type ioOp interface {
	poll() (int, error, bool)
	cancel()
}

// Canceler is implemented by Futures that hold an in-flight ioOp.
// JoinHandle.Abort uses it to reach past the Future/Poll surface and release the
// kernel-pinned resources held by whatever operation was last started,
// rather than leaving them dangling until a completion that may never be
// delivered.
type Canceler interface {
	Cancel()
}

// ioDriver is the subset of driver behavior ops.go needs to start a
// read/write, kept separate from Driver so Submit/Park/Close stay the only
// methods the executor loop itself depends on.
type ioDriver interface {
	Driver
	startRead(fd int, buf ReadTarget, w *Waker) (ioOp, error)
	startWrite(fd int, buf WriteSource, w *Waker) (ioOp, error)
	startReadv(fd int, buf VectoredReadTarget, w *Waker) (ioOp, error)
	startWritev(fd int, buf VectoredWriteSource, w *Waker) (ioOp, error)
}

// selectDriver picks the completion driver when allowed and available,
// falling back to the readiness driver otherwise. Selection happens once,
// here, at Runtime construction — it is never re-evaluated mid-run.
func selectDriver(o options, m *Metrics) (ioDriver, DriverKind, error) {
	if o.uringCapable {
		if d, err := newCompletionDriver(o.entries, m); err == nil {
			return d, DriverKindCompletion, nil
		}
	}
	d, err := newReadinessDriver(m)
	if err != nil {
		return nil, 0, err
	}
	return d, DriverKindReadiness, nil
}
