package coreio

import "sync/atomic"

// Metrics holds lightweight atomic counters for tasks run, submissions,
// completions, and parks, trimmed from the teacher's own inline loop.go counters
// (fastPathEntries, fastPathSubmits). The teacher's percentile-estimator
// machinery (psquare.go) measured JS promise resolution latency; nothing in
// this runtime's domain needs a percentile estimate, so it is not carried —
// see DESIGN.md.
type Metrics struct {
	tasksRun    atomic.Int64
	parks       atomic.Int64
	submissions atomic.Int64
	completions atomic.Int64
}

func newMetrics() *Metrics { return &Metrics{} }

// TasksRun returns the total number of task poll invocations so far.
func (m *Metrics) TasksRun() int64 { return m.tasksRun.Load() }

// Parks returns the total number of times the runtime parked on its
// driver with Park returning no error.
func (m *Metrics) Parks() int64 { return m.parks.Load() }

// Submissions returns the total number of driver Submit calls that
// returned no error.
func (m *Metrics) Submissions() int64 { return m.submissions.Load() }

// Completions returns the total number of I/O operations the slot table
// (or the readiness driver's direct syscall path) has delivered.
func (m *Metrics) Completions() int64 { return m.completions.Load() }
