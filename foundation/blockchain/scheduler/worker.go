package scheduler

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
)

// idleBackoff is how long an idle worker parks before it tries to steal
// again. New work in the worker's inbox wakes it immediately.
const idleBackoff = 2 * time.Millisecond

// State represents the lifecycle stage of a worker.
type State int32

// Set of worker states.
const (
	StateStarting State = iota
	StateIdle
	StateRunning
	StateStopping
	StateStopped
)

// Live reports whether a worker in this state still takes work.
func (s State) Live() bool {
	return s == StateIdle || s == StateRunning
}

// String implements the fmt.Stringer interface.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Stats represents the counters a worker keeps about the tasks it ran.
type Stats struct {
	ID        int             `json:"id"`
	State     string          `json:"state"`
	Queued    int             `json:"queued"`
	Runs      uint64          `json:"runs"`
	Discarded uint64          `json:"discarded"`
	Steals    uint64          `json:"steals"`
	Latency   LatencySnapshot `json:"latency"`
}

// =============================================================================

// Worker owns a work stealing queue and a goroutine locked to an OS thread.
// Tasks forked by a running task land in the queue of the worker running it.
// Tasks submitted from outside the engine land in the worker's inbox.
type Worker struct {
	id        int
	engine    *Engine
	queue     *Queue
	inbox     chan *Task
	state     atomic.Int32
	runs      atomic.Uint64
	discarded atomic.Uint64
	steals    atomic.Uint64
	latency   *Histogram
}

func newWorker(id int, engine *Engine, capacity int) *Worker {
	w := Worker{
		id:      id,
		engine:  engine,
		queue:   NewQueue(capacity),
		inbox:   make(chan *Task, capacity),
		latency: newHistogram(),
	}
	w.state.Store(int32(StateStarting))

	return &w
}

// ID returns the index of the worker inside its engine.
func (w *Worker) ID() int {
	return w.id
}

// State returns the current lifecycle state of the worker.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Schedule pushes the task onto this worker's own queue. It must only be
// called from a task running on this worker, which is how forked children
// stay local to their parent.
func (w *Worker) Schedule(t *Task) error {
	return w.engine.Schedule(w, t)
}

// Stats returns a snapshot of the worker counters.
func (w *Worker) Stats() Stats {
	return Stats{
		ID:        w.id,
		State:     w.State().String(),
		Queued:    w.queue.Size() + len(w.inbox),
		Runs:      w.runs.Load(),
		Discarded: w.discarded.Load(),
		Steals:    w.steals.Load(),
		Latency:   w.latency.Snapshot(),
	}
}

// =============================================================================

// run is the worker loop. It prefers local work, then external work, then
// work stolen from a random peer. With nothing to do it parks until new
// work arrives or the backoff elapses.
func (w *Worker) run(shut <-chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer w.state.Store(int32(StateStopped))

	timer := time.NewTimer(idleBackoff)
	defer timer.Stop()

	for {
		if w.State() == StateStopping {
			return
		}

		if t := w.next(); t != nil {
			w.execute(t)
			continue
		}

		w.setState(StateIdle)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(idleBackoff)

		select {
		case <-shut:
			return
		case t := <-w.inbox:
			w.execute(t)
		case <-timer.C:
		}
	}
}

// next returns the next task this worker should run or nil.
func (w *Worker) next() *Task {
	if t := w.queue.Pop(); t != nil {
		return t
	}

	select {
	case t := <-w.inbox:
		return t
	default:
	}

	victim := w.engine.randomPeer(w)
	if victim == nil {
		return nil
	}

	if t := victim.queue.Steal(); t != nil {
		w.steals.Add(1)
		return t
	}

	select {
	case t := <-victim.inbox:
		w.steals.Add(1)
		return t
	default:
	}

	return nil
}

// execute runs the task and records its latency and outcome.
func (w *Worker) execute(t *Task) {
	w.setState(StateRunning)

	start := time.Now()
	err := t.run(w)
	w.latency.Record(time.Since(start))

	if err != nil {
		w.discarded.Add(1)
		w.engine.evHandler("scheduler: worker[%d]: task %s: ERROR: %s", w.id, t.Name(), err)
		return
	}

	w.runs.Add(1)
}

// drain fails every task left in the queue and the inbox. It must only be
// called once the worker loop has exited.
func (w *Worker) drain() int {
	var n int
	for t := w.queue.Pop(); t != nil; t = w.queue.Pop() {
		t.Fail(ErrEngineStopped)
		n++
	}

	for {
		select {
		case t := <-w.inbox:
			t.Fail(ErrEngineStopped)
			n++
		default:
			return n
		}
	}
}

// setState moves the worker to the new state unless a stop was requested.
func (w *Worker) setState(s State) {
	for {
		cur := w.state.Load()
		if State(cur) == StateStopping || State(cur) == StateStopped {
			return
		}
		if w.state.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}
