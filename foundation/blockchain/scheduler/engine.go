// Package scheduler implements a work stealing task engine. A fixed set of
// workers each own a double ended queue of fork-join tasks. Idle workers
// steal from random peers so forked work spreads across the pool.
package scheduler

import (
	"errors"
	"math/rand/v2"
	"sync"
)

// Set of errors the engine returns.
var (
	ErrQueueFull     = errors.New("scheduler: queue full")
	ErrEngineStopped = errors.New("scheduler: engine stopped")
)

// EventHandler defines a function that is called when events occur in the
// processing of tasks.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to start the engine.
type Config struct {
	Workers       int
	QueueCapacity int
	EvHandler     EventHandler
}

// Engine manages the set of workers.
type Engine struct {
	workers   []*Worker
	evHandler EventHandler
	mu        sync.RWMutex
	stopped   bool
	shut      chan struct{}
	wg        sync.WaitGroup
}

// New constructs an engine and starts every worker. It doesn't return until
// all the workers report they are running.
func New(cfg Config) (*Engine, error) {
	if cfg.Workers <= 0 {
		return nil, errors.New("scheduler: at least one worker is required")
	}

	if cfg.QueueCapacity <= 0 {
		return nil, errors.New("scheduler: queue capacity must be positive")
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	e := Engine{
		workers:   make([]*Worker, cfg.Workers),
		evHandler: ev,
		shut:      make(chan struct{}),
	}

	for i := range e.workers {
		e.workers[i] = newWorker(i, &e, cfg.QueueCapacity)
	}

	e.wg.Add(len(e.workers))

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	for _, w := range e.workers {
		go func(w *Worker) {
			defer e.wg.Done()
			w.setState(StateIdle)
			hasStarted <- true
			w.run(e.shut)
		}(w)
	}

	for range e.workers {
		<-hasStarted
	}

	ev("scheduler: New: started %d workers, queue capacity %d", len(e.workers), e.workers[0].queue.Capacity())

	return &e, nil
}

// Schedule queues the task for execution. When from is a worker of this
// engine the task is pushed onto that worker's own queue, which must only
// happen from a task running on that worker. Otherwise the task goes to the
// inbox of a random worker.
func (e *Engine) Schedule(from *Worker, t *Task) error {

	// Shutdown can't mark the engine stopped while a push is in flight, so
	// every accepted task is either run or drained.
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.stopped {
		return ErrEngineStopped
	}

	if from != nil && from.engine == e {
		if !from.queue.Push(t) {
			return ErrQueueFull
		}
		return nil
	}

	w := e.RandomWorker()
	if w == nil {
		return ErrEngineStopped
	}

	select {
	case w.inbox <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

// Submit queues a root task from outside the engine.
func (e *Engine) Submit(t *Task) error {
	return e.Schedule(nil, t)
}

// RandomWorker returns a uniformly random worker among the ones still
// running. It returns nil once every worker is stopping or stopped.
func (e *Engine) RandomWorker() *Worker {
	return e.pick(nil)
}

// Workers returns the number of workers in the engine.
func (e *Engine) Workers() int {
	return len(e.workers)
}

// Stats returns a snapshot of the counters of every worker.
func (e *Engine) Stats() []Stats {
	stats := make([]Stats, len(e.workers))
	for i, w := range e.workers {
		stats[i] = w.Stats()
	}

	return stats
}

// Shutdown asks every worker to stop and waits for them to exit. Tasks still
// queued are dropped: each one fails with ErrEngineStopped so anyone waiting
// on it wakes up.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	e.evHandler("scheduler: shutdown: started")
	defer e.evHandler("scheduler: shutdown: completed")

	for _, w := range e.workers {
		w.state.Store(int32(StateStopping))
	}

	close(e.shut)
	e.wg.Wait()

	var dropped int
	for _, w := range e.workers {
		dropped += w.drain()
	}

	if dropped > 0 {
		e.evHandler("scheduler: shutdown: dropped %d queued tasks", dropped)
	}
}

// =============================================================================

// randomPeer returns a random running worker other than w, nil when there
// is none.
func (e *Engine) randomPeer(w *Worker) *Worker {
	return e.pick(w)
}

// pick selects uniformly among the running workers, skipping the excluded
// one, in a single pass.
func (e *Engine) pick(exclude *Worker) *Worker {
	var chosen *Worker
	var seen int

	for _, w := range e.workers {
		if w == exclude || !w.State().Live() {
			continue
		}

		seen++
		if rand.IntN(seen) == 0 {
			chosen = w
		}
	}

	return chosen
}
