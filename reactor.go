package netreactor

import (
	"container/heap"
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// InterestOps is the bitmask of readiness conditions a channel can be
// registered for: READ, WRITE, CONNECT, ACCEPT.
type InterestOps uint32

const (
	OpRead InterestOps = 1 << iota
	OpWrite
	OpConnect
	OpAccept
)

// ReadyCallback is invoked with the subset of a channel's interest ops
// that became ready, in CONNECT → WRITE → READ/ACCEPT order across
// successive calls within a single dispatch.
type ReadyCallback func(ready InterestOps)

type registeredKey struct {
	fd          int
	interestOps InterestOps
	callback    ReadyCallback
	cancelled   bool
}

type timerEntry struct {
	deadline time.Time
	task     Task
}

type timerHeap []timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)         { *h = append(*h, x.(timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

var reactorIDCounter atomic.Uint64

// Reactor is a single-threaded event loop multiplexing file descriptor
// readiness (via Selector), a multi-producer single-consumer task queue,
// and a scheduled-task min-heap, with I/O-ratio fairness scheduling and
// busy-spin recovery.
type Reactor struct {
	id    int64
	state *FastState

	selector *Selector

	keysMu sync.RWMutex
	keys   map[int]*registeredKey

	cancelledKeys atomic.Int64
	needsReselect atomic.Bool

	tasksMu sync.Mutex
	tasks   *TaskQueue

	// timers is only touched from the loop goroutine.
	timers timerHeap

	wakeupPending  atomic.Bool
	wakeFd         int
	wakeWriteFd    int
	forceTerminate atomic.Bool

	selectCount              atomic.Int64
	ioRatio                  int
	selectorRebuildThreshold int

	loopGoroutineID atomic.Uint64
	loopDone        chan struct{}
	stopOnce        sync.Once
	closeOnce       sync.Once

	logger  Logger
	metrics *Metrics

	opts *reactorOptions
}

// New creates a Reactor configured by opts.
func New(opts ...Option) (*Reactor, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	wakeFd, wakeWriteFd, err := createWakeFd(0, EFD_CLOEXEC|EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}

	r := &Reactor{
		id:                       int64(reactorIDCounter.Add(1)),
		state:                    NewFastState(),
		selector:                 &Selector{},
		keys:                     make(map[int]*registeredKey),
		tasks:                    NewTaskQueue(),
		wakeFd:                   wakeFd,
		wakeWriteFd:              wakeWriteFd,
		ioRatio:                  cfg.ioRatio,
		selectorRebuildThreshold: cfg.selectorRebuildThreshold,
		loopDone:                 make(chan struct{}),
		logger:                   cfg.logger,
		opts:                     cfg,
	}
	if cfg.metricsEnabled {
		r.metrics = &Metrics{}
	}

	if err := r.selector.Init(); err != nil {
		_ = closeWakeFd(wakeFd, wakeWriteFd)
		return nil, err
	}

	if isWakeFdSupported() && wakeFd >= 0 {
		if err := r.selector.RegisterFD(wakeFd, EventRead, func(IOEvents) {
			_ = drainWakeUpPipe(wakeFd)
			r.wakeupPending.Store(false)
		}); err != nil {
			_ = r.selector.Close()
			_ = closeWakeFd(wakeFd, wakeWriteFd)
			return nil, err
		}
	}

	return r, nil
}

// RegisterChannel registers fd for the given interest ops. callback is
// invoked inline from the reactor's own goroutine whenever fd's readiness
// matches (a subset of) ops.
func (r *Reactor) RegisterChannel(fd int, ops InterestOps, callback ReadyCallback) error {
	events := interestToEvents(ops)

	r.keysMu.Lock()
	r.keys[fd] = &registeredKey{fd: fd, interestOps: ops, callback: callback}
	r.keysMu.Unlock()

	if err := r.selector.RegisterFD(fd, events, func(ev IOEvents) {
		r.dispatchReady(fd, ev)
	}); err != nil {
		r.keysMu.Lock()
		delete(r.keys, fd)
		r.keysMu.Unlock()
		return err
	}
	return nil
}

// ModifyInterestOps updates fd's registered interest ops.
func (r *Reactor) ModifyInterestOps(fd int, ops InterestOps) error {
	r.keysMu.Lock()
	k, ok := r.keys[fd]
	if ok {
		k.interestOps = ops
	}
	r.keysMu.Unlock()
	if !ok {
		return ErrFDNotRegistered
	}
	return r.selector.ModifyFD(fd, interestToEvents(ops))
}

// CancelChannel unregisters fd. Cancellation increments a counter that,
// once it reaches 256, requests a non-blocking reselect on the next loop
// iteration to prune stale readiness state.
func (r *Reactor) CancelChannel(fd int) error {
	r.keysMu.Lock()
	k, ok := r.keys[fd]
	if ok {
		k.cancelled = true
		delete(r.keys, fd)
	}
	r.keysMu.Unlock()
	if !ok {
		return ErrFDNotRegistered
	}

	if err := r.selector.UnregisterFD(fd); err != nil {
		return err
	}

	if r.cancelledKeys.Add(1) >= 256 {
		r.needsReselect.Store(true)
	}
	if r.metrics != nil {
		r.metrics.recordCancelledKey()
	}
	return nil
}

// dispatchReady translates raw IOEvents to InterestOps using the key's
// registered interest and invokes the callback in CONNECT → WRITE →
// READ/ACCEPT order.
func (r *Reactor) dispatchReady(fd int, ev IOEvents) {
	r.keysMu.RLock()
	k := r.keys[fd]
	r.keysMu.RUnlock()
	if k == nil || k.cancelled {
		return
	}

	var ready InterestOps
	if ev&EventWrite != 0 {
		if k.interestOps&OpConnect != 0 {
			ready |= OpConnect
		}
		if k.interestOps&OpWrite != 0 {
			ready |= OpWrite
		}
	}
	if ev&(EventRead|EventHangup|EventError) != 0 {
		if k.interestOps&OpAccept != 0 {
			ready |= OpAccept
		}
		if k.interestOps&OpRead != 0 {
			ready |= OpRead
		}
	}
	if ready == 0 {
		return
	}

	if ready&OpConnect != 0 {
		k.interestOps &^= OpConnect
		_ = r.selector.ModifyFD(fd, interestToEvents(k.interestOps))
		k.callback(OpConnect)
	}
	if ready&OpWrite != 0 {
		k.callback(OpWrite)
	}
	if ready&(OpRead|OpAccept) != 0 {
		k.callback(ready & (OpRead | OpAccept))
	}
}

func interestToEvents(ops InterestOps) IOEvents {
	var e IOEvents
	if ops&(OpRead|OpAccept) != 0 {
		e |= EventRead
	}
	if ops&(OpWrite|OpConnect) != 0 {
		e |= EventWrite
	}
	return e
}

// Submit enqueues task for execution on the reactor's goroutine. Safe to
// call from any goroutine.
func (r *Reactor) Submit(task Task) error {
	if r.state.Load() == StateTerminated {
		return ErrReactorTerminated
	}

	r.tasksMu.Lock()
	r.tasks.Push(task)
	depth := r.tasks.Length()
	r.tasksMu.Unlock()

	if r.metrics != nil {
		r.metrics.updateTaskQueueDepth(depth)
	}

	r.wakeup()
	return nil
}

// ScheduleTimer schedules fn to run after delay has elapsed, measured from
// when the reactor observes the request.
func (r *Reactor) ScheduleTimer(delay time.Duration, fn func()) error {
	return r.Submit(func() {
		heap.Push(&r.timers, timerEntry{deadline: time.Now().Add(delay), task: fn})
	})
}

// wakeup signals the loop if it might be blocked in a selector wait.
// External submitters CAS wakeup_pending false→true and, on success,
// write to the wake fd; a call from the loop's own goroutine is a no-op
// since the loop can't be blocked on itself.
func (r *Reactor) wakeup() {
	if r.isLoopThread() {
		return
	}
	if r.wakeupPending.CompareAndSwap(false, true) {
		r.doWakeup()
	}
}

func (r *Reactor) doWakeup() {
	if r.wakeFd >= 0 {
		_ = submitGenericWakeup(uintptr(r.wakeWriteFd))
	}
}

func (r *Reactor) isLoopThread() bool {
	id := r.loopGoroutineID.Load()
	return id != 0 && getGoroutineID() == id
}

func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

// Run runs the reactor and blocks until it terminates via Shutdown, Close,
// or ctx cancellation.
func (r *Reactor) Run(ctx context.Context) error {
	if r.isLoopThread() {
		return ErrReentrantRun
	}
	if !r.state.TryTransition(StateAwake, StateRunning) {
		if r.state.Load() == StateTerminated {
			return ErrReactorTerminated
		}
		return ErrReactorAlreadyRunning
	}

	defer close(r.loopDone)

	r.loopGoroutineID.Store(getGoroutineID())
	defer r.loopGoroutineID.Store(0)

	ctxDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.initiateShutdown()
		case <-ctxDone:
		}
	}()
	defer close(ctxDone)

	for {
		state := r.state.Load()
		if state == StateTerminating || state == StateTerminated {
			r.drainOnShutdown(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}

		r.tick()
	}
}

func (r *Reactor) initiateShutdown() {
	for {
		current := r.state.Load()
		if current == StateTerminating || current == StateTerminated {
			return
		}
		if r.state.TryTransition(current, StateTerminating) {
			r.doWakeup()
			return
		}
	}
}

// tick runs one loop iteration: due timers, a selector poll, ready-key
// dispatch (performed inline by the selector's callbacks), and task
// draining budgeted by io_ratio.
func (r *Reactor) tick() {
	r.runDueTimers()

	ioStart := time.Now()
	readyCount := r.poll()
	ioTime := time.Since(ioStart)

	if r.metrics != nil {
		r.metrics.recordSelect(readyCount)
	}

	if r.needsReselect.CompareAndSwap(true, false) {
		_, _ = r.selector.PollIO(0)
	}

	if r.ioRatio >= 100 {
		r.drainAllTasks()
		return
	}

	budget := time.Duration(int64(ioTime) * int64(100-r.ioRatio) / int64(r.ioRatio))
	r.drainTasksWithBudget(budget)
}

// poll blocks for up to the next timer deadline, capped at 10 seconds (the
// cap also applies when no timer is pending), and dispatches ready keys inline via the selector's
// callbacks. Implements the wakeup_pending reset-before-block /
// re-wakeup-if-still-pending race repair discipline.
func (r *Reactor) poll() int {
	r.tasksMu.Lock()
	pending := r.tasks.Length()
	r.tasksMu.Unlock()

	timeoutMs := 0
	if pending == 0 {
		timeoutMs = r.calculateTimeout()
	}

	r.wakeupPending.Store(false)

	r.state.TryTransition(StateRunning, StateSleeping)

	pollStart := time.Now()
	n, err := r.selector.PollIO(timeoutMs)

	r.state.TryTransition(StateSleeping, StateRunning)

	if err != nil {
		LogPollError(r.logger, r.id, err, true)
		r.attemptSelectorRebuild()
		return 0
	}

	if r.wakeupPending.Load() {
		r.doWakeup()
	}

	if n == 0 {
		// Only a blocking select that returned before its timeout elapsed
		// counts towards busy-spin detection.
		premature := timeoutMs > 0 && time.Since(pollStart) < time.Duration(timeoutMs)*time.Millisecond
		if !premature {
			r.selectCount.Store(0)
		} else if r.selectCount.Add(1) >= int64(r.selectorRebuildThreshold) && r.selectorRebuildThreshold > 0 {
			r.rebuildSelector()
		}
	} else {
		r.selectCount.Store(0)
	}

	return n
}

func (r *Reactor) attemptSelectorRebuild() {
	if r.selectorRebuildThreshold <= 0 {
		return
	}
	r.rebuildSelector()
}

// rebuildSelector opens a fresh selector and re-registers every live key,
// preserving interest ops and the wake fd, then swaps it in. This is the
// busy-spin recovery path: a selector that repeatedly returns zero
// readiness before its computed timeout elapses is presumed broken and is
// replaced wholesale.
func (r *Reactor) rebuildSelector() {
	fresh := &Selector{}
	if err := fresh.Init(); err != nil {
		LogSelectorRebuild(r.logger, r.id, r.selectCount.Load(), &RebuildSelectorError{Cause: err})
		return
	}

	r.keysMu.RLock()
	keysSnapshot := make([]*registeredKey, 0, len(r.keys))
	for _, k := range r.keys {
		keysSnapshot = append(keysSnapshot, k)
	}
	r.keysMu.RUnlock()

	for _, k := range keysSnapshot {
		fd := k.fd
		if err := fresh.RegisterFD(fd, interestToEvents(k.interestOps), func(ev IOEvents) {
			r.dispatchReady(fd, ev)
		}); err != nil {
			LogSelectorRebuild(r.logger, r.id, r.selectCount.Load(), &RebuildSelectorError{Cause: err})
		}
	}

	if isWakeFdSupported() && r.wakeFd >= 0 {
		_ = fresh.RegisterFD(r.wakeFd, EventRead, func(IOEvents) {
			_ = drainWakeUpPipe(r.wakeFd)
			r.wakeupPending.Store(false)
		})
	}

	old := r.selector
	r.selector = fresh
	_ = old.Close()

	r.selectCount.Store(0)
	if r.metrics != nil {
		r.metrics.recordRebuild()
	}
	LogSelectorRebuild(r.logger, r.id, 0, nil)
}

func (r *Reactor) calculateTimeout() int {
	maxDelay := 10 * time.Second
	if len(r.timers) > 0 {
		delay := r.timers[0].deadline.Sub(time.Now())
		if delay < 0 {
			delay = 0
		}
		if delay < maxDelay {
			maxDelay = delay
		}
	}
	if maxDelay > 0 && maxDelay < time.Millisecond {
		return 1
	}
	return int(maxDelay.Milliseconds())
}

func (r *Reactor) runDueTimers() {
	now := time.Now()
	for len(r.timers) > 0 {
		if r.timers[0].deadline.After(now) {
			break
		}
		t := heap.Pop(&r.timers).(timerEntry)
		r.safeExecute(t.task)
		if r.metrics != nil {
			r.metrics.recordTimerFired()
		}
	}
}

func (r *Reactor) drainAllTasks() {
	for {
		r.tasksMu.Lock()
		task, ok := r.tasks.Pop()
		depth := r.tasks.Length()
		r.tasksMu.Unlock()
		if !ok {
			return
		}
		if r.metrics != nil {
			r.metrics.updateTaskQueueDepth(depth)
		}
		r.safeExecute(task)
	}
}

func (r *Reactor) drainTasksWithBudget(budget time.Duration) {
	deadline := time.Now().Add(budget)
	for budget <= 0 || time.Now().Before(deadline) {
		r.tasksMu.Lock()
		task, ok := r.tasks.Pop()
		depth := r.tasks.Length()
		r.tasksMu.Unlock()
		if !ok {
			return
		}
		if r.metrics != nil {
			r.metrics.updateTaskQueueDepth(depth)
		}
		r.safeExecute(task)
	}
}

func (r *Reactor) safeExecute(t Task) {
	if t == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			LogTaskPanicked(r.logger, r.id, rec)
		}
	}()
	t()
	if r.metrics != nil {
		r.metrics.recordTaskExecuted()
	}
}

// drainOnShutdown runs once StateTerminating is observed. It keeps
// draining queued tasks and polling the selector so in-flight channels get
// a chance to finish and deregister themselves, only moving to
// StateTerminated and closing the selector once the registered-channel set
// is empty, ctx is done, or Close requested an immediate (non-graceful)
// stop.
func (r *Reactor) drainOnShutdown(ctx context.Context) {
	r.drainPendingTasks()

	for !r.forceTerminate.Load() && r.registeredChannelCount() > 0 && ctx.Err() == nil {
		if _, err := r.selector.PollIO(100); err != nil {
			break
		}
		r.drainPendingTasks()
	}

	for len(r.timers) > 0 {
		t := heap.Pop(&r.timers).(timerEntry)
		r.safeExecute(t.task)
	}
	r.state.Store(StateTerminated)
	r.closeFDs()
}

func (r *Reactor) drainPendingTasks() {
	for {
		r.tasksMu.Lock()
		task, ok := r.tasks.Pop()
		r.tasksMu.Unlock()
		if !ok {
			return
		}
		r.safeExecute(task)
	}
}

func (r *Reactor) registeredChannelCount() int {
	r.keysMu.RLock()
	defer r.keysMu.RUnlock()
	return len(r.keys)
}

// Shutdown gracefully stops the reactor, draining queued tasks and running
// every still-pending timer immediately (whether or not its deadline has
// passed), and blocks until termination completes or ctx expires.
func (r *Reactor) Shutdown(ctx context.Context) error {
	r.stopOnce.Do(func() {
		r.initiateShutdown()
	})
	select {
	case <-r.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close immediately terminates the reactor without waiting for a graceful
// drain to complete.
func (r *Reactor) Close() error {
	for {
		current := r.state.Load()
		if current == StateTerminated {
			return ErrReactorTerminated
		}
		if r.state.TryTransition(current, StateTerminating) {
			if current == StateAwake {
				r.state.Store(StateTerminated)
				r.closeFDs()
				return nil
			}
			r.forceTerminate.Store(true)
			r.doWakeup()
			return nil
		}
	}
}

func (r *Reactor) closeFDs() {
	r.closeOnce.Do(func() {
		_ = r.selector.Close()
		_ = closeWakeFd(r.wakeFd, r.wakeWriteFd)
	})
}

// State returns the reactor's current lifecycle state.
func (r *Reactor) State() LoopState {
	return r.state.Load()
}

// ID returns the reactor's identifier, as attached to its own log entries.
func (r *Reactor) ID() int64 {
	return r.id
}

// Logger returns the Logger this reactor was configured with (WithStructuredLogger),
// or else the package-level logger set by SetStructuredLogger when New ran
// (a no-op Logger if neither was set), so components built on top of a Reactor
// (e.g. netconn) can log through the same sink.
func (r *Reactor) Logger() Logger {
	return r.logger
}

// Metrics returns a snapshot of the reactor's runtime counters, or the
// zero Snapshot if metrics were not enabled via WithMetrics.
func (r *Reactor) Metrics() Snapshot {
	if r.metrics == nil {
		return Snapshot{}
	}
	return r.metrics.Snapshot()
}
