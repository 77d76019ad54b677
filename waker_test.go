package coreio

import "testing"

func TestWaker_WakeFromIdleSchedules(t *testing.T) {
	task := newTaskHeader(1, FutureFunc(func(w *Waker) Poll { return Pending() }))
	task.state.Store(int32(taskIdle))
	task.waker.Wake()
	if task.loadState() != taskScheduled {
		t.Fatalf("state = %v, want taskScheduled", task.loadState())
	}
}

func TestWaker_WakeFromRunningLatchesRewake(t *testing.T) {
	task := newTaskHeader(1, nil)
	task.state.Store(int32(taskRunning))
	task.waker.Wake()
	if task.loadState() != taskRunning {
		t.Fatalf("state changed to %v, want taskRunning unchanged", task.loadState())
	}
	if !task.rewake.Load() {
		t.Fatal("rewake flag not set for a wake observed during taskRunning")
	}
}

func TestWaker_WakeFromScheduledOrCompletedCollapses(t *testing.T) {
	for _, st := range []taskState{taskScheduled, taskCompleted} {
		task := newTaskHeader(1, nil)
		task.state.Store(int32(st))
		task.waker.Wake()
		if task.loadState() != st {
			t.Fatalf("state changed from %v to %v; a redundant wake should collapse to a no-op", st, task.loadState())
		}
	}
}

func TestWaker_RedundantIdleWakesCollapseToOneSchedule(t *testing.T) {
	task := newTaskHeader(1, nil)
	task.state.Store(int32(taskIdle))
	task.waker.Wake()
	task.waker.Wake()
	task.waker.Wake()
	if task.loadState() != taskScheduled {
		t.Fatalf("state = %v, want taskScheduled", task.loadState())
	}
}
