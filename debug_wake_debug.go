//go:build coreio_debug

package coreio

import "fmt"

// wakeToUnknownThread panics in debug builds (-tags coreio_debug) instead
// of silently dropping the wake, to surface programming errors like waking
// a task after its runtime has shut down during development.
func wakeToUnknownThread(id uint64) {
	panic(fmt.Sprintf("coreio: wake for unregistered thread %d", id))
}
