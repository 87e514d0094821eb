package netreactor

import "testing"

func TestMetricsSnapshot(t *testing.T) {
	m := &Metrics{}
	m.recordSelect(0)
	m.recordSelect(3)
	m.recordRebuild()
	m.recordCancelledKey()
	m.recordTaskExecuted()
	m.recordTimerFired()
	m.updateTaskQueueDepth(7)

	snap := m.Snapshot()
	if snap.SelectCalls != 2 {
		t.Errorf("SelectCalls = %d, want 2", snap.SelectCalls)
	}
	if snap.EmptySelects != 1 {
		t.Errorf("EmptySelects = %d, want 1", snap.EmptySelects)
	}
	if snap.SelectorRebuilds != 1 {
		t.Errorf("SelectorRebuilds = %d, want 1", snap.SelectorRebuilds)
	}
	if snap.CancelledKeys != 1 {
		t.Errorf("CancelledKeys = %d, want 1", snap.CancelledKeys)
	}
	if snap.TasksExecuted != 1 {
		t.Errorf("TasksExecuted = %d, want 1", snap.TasksExecuted)
	}
	if snap.TimersFired != 1 {
		t.Errorf("TimersFired = %d, want 1", snap.TimersFired)
	}
	if snap.TaskQueueDepth != 7 {
		t.Errorf("TaskQueueDepth = %d, want 7", snap.TaskQueueDepth)
	}
}
