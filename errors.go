package coreio

import "errors"

// Sentinel errors returned across the runtime's public surface. Grounded on
// the teacher's errors.go/loop.go sentinel var block, trimmed to the errors
// this runtime's operations actually produce (the JS PanicError/
// AggregateError cause-chain machinery belongs to the promise domain this
// runtime does not implement).
var (
	// ErrIOFailure names a failed read/write/syscall result. The drivers do
	// not wrap their errors in it: a failed operation reports the raw
	// unix.Errno from the kernel or the syscall as its error.
	ErrIOFailure = errors.New("coreio: io operation failed")

	// ErrSubmissionOverflow never reaches the caller of Read/Write/Readv/
	// Writev: the completion driver returns it when its submission ring is
	// full, the op future treats it as Pending, and the driver wakes the
	// task to retry once the next Submit frees ring capacity.
	ErrSubmissionOverflow = errors.New("coreio: submission ring full")

	// ErrParkFailed names a failed driver Park call. BlockOn logs the
	// driver's own Park error via the installed Logger rather than
	// propagating it, matching the teacher's handlePollError pattern; it
	// does not return or log this sentinel.
	ErrParkFailed = errors.New("coreio: park failed")

	// ErrRuntimeReentrant is returned by BlockOn when called on a goroutine
	// already inside a BlockOn call (of this or any other Runtime), or while
	// this Runtime's BlockOn is already running.
	ErrRuntimeReentrant = errors.New("coreio: block_on called reentrantly")

	// ErrRuntimeClosed is returned by BlockOn once Close has been
	// called.
	ErrRuntimeClosed = errors.New("coreio: runtime is closed")

	// ErrTimerDisabled is returned by Sleep when the owning Runtime was not
	// constructed with WithTimerEnabled(true).
	ErrTimerDisabled = errors.New("coreio: timer layer not enabled")
)

// OpError annotates a low-level failure with the operation name that
// produced it (e.g. "read", "write", "io_uring_enter").
type OpError struct {
	Op  string
	Err error
}

func (e *OpError) Error() string {
	return "coreio: " + e.Op + ": " + e.Err.Error()
}

func (e *OpError) Unwrap() error { return e.Err }
