//go:build !linux

package coreio

// newCompletionDriver is only implemented on Linux, where io_uring exists;
// everywhere else Runtime construction falls back to the readiness driver.
func newCompletionDriver(entries uint32, m *Metrics) (ioDriver, error) {
	return nil, ErrCompletionDriverUnsupported
}
