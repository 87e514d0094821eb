package netreactor

import "sync/atomic"

// Metrics tracks runtime counters for a Reactor. All fields are safe for
// concurrent access; Snapshot returns a point-in-time copy.
//
// Unlike a latency-percentile dashboard, these counters track
// reactor-specific conditions directly: selector busy-spin recovery,
// cancelled-key pressure, and queue depths, rather than generic
// task-timing statistics.
type Metrics struct {
	selectCalls    atomic.Int64
	emptySelects   atomic.Int64
	selectorRebuilds atomic.Int64
	cancelledKeys  atomic.Int64
	tasksExecuted  atomic.Int64
	timersFired    atomic.Int64
	taskQueueDepth atomic.Int64
}

// Snapshot is a point-in-time copy of Metrics' counters.
type Snapshot struct {
	SelectCalls      int64
	EmptySelects     int64
	SelectorRebuilds int64
	CancelledKeys    int64
	TasksExecuted    int64
	TimersFired      int64
	TaskQueueDepth   int64
}

func (m *Metrics) recordSelect(readyCount int) {
	m.selectCalls.Add(1)
	if readyCount == 0 {
		m.emptySelects.Add(1)
	}
}

func (m *Metrics) recordRebuild() {
	m.selectorRebuilds.Add(1)
}

func (m *Metrics) recordCancelledKey() {
	m.cancelledKeys.Add(1)
}

func (m *Metrics) recordTaskExecuted() {
	m.tasksExecuted.Add(1)
}

func (m *Metrics) recordTimerFired() {
	m.timersFired.Add(1)
}

func (m *Metrics) updateTaskQueueDepth(depth int) {
	m.taskQueueDepth.Store(int64(depth))
}

// Snapshot returns a copy of the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		SelectCalls:      m.selectCalls.Load(),
		EmptySelects:     m.emptySelects.Load(),
		SelectorRebuilds: m.selectorRebuilds.Load(),
		CancelledKeys:    m.cancelledKeys.Load(),
		TasksExecuted:    m.tasksExecuted.Load(),
		TimersFired:      m.timersFired.Load(),
		TaskQueueDepth:   m.taskQueueDepth.Load(),
	}
}
