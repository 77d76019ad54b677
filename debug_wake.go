//go:build !coreio_debug

package coreio

// wakeToUnknownThread handles a Wake (or Spawn) addressed to a thread id
// with no registered context — typically a runtime that has already
// returned from BlockOn. Release builds log and drop it, matching the
// teacher's own handlePollError pattern of logging a diagnostic without a
// hard failure.
func wakeToUnknownThread(id uint64) {
	getGlobalLogger().Log(LevelWarn, "coreio: wake for unregistered thread", "thread", id)
}
