package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Func is the work a task performs. It receives the worker running the task
// and the task itself so children can be forked from it.
type Func func(w *Worker, self *Task) error

// Task is a unit of work in a fork-join tree. A task is finished only when
// its own work and the work of every descendant has completed.
type Task struct {
	name       string
	parent     *Task
	fn         Func
	unfinished atomic.Int32
	err        atomic.Pointer[error]
	done       chan struct{}
}

// NewTask constructs a task. When a parent is provided the fork is recorded
// by incrementing the parent's unfinished count, so the parent can't finish
// before this task does.
func NewTask(name string, parent *Task, fn Func) *Task {
	t := Task{
		name:   name,
		parent: parent,
		fn:     fn,
		done:   make(chan struct{}),
	}
	t.unfinished.Store(1)

	if parent != nil {
		parent.unfinished.Add(1)
	}

	return &t
}

// Name returns the name of the task.
func (t *Task) Name() string {
	return t.name
}

// Parent returns the task that forked this task, nil for a root task.
func (t *Task) Parent() *Task {
	return t.parent
}

// Finished reports whether the task and all of its descendants completed.
func (t *Task) Finished() bool {
	return t.unfinished.Load() == 0
}

// Done returns a channel that is closed once the task is finished. Writes
// made by the task tree before finishing are visible to a receiver.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the first error reported by the task or any descendant.
func (t *Task) Err() error {
	if p := t.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Wait blocks until the task tree is finished or the context is cancelled.
// It returns the error of the task tree.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fail records the error and finishes a task that will never run. This is
// used when a forked task could not be scheduled so its parent still
// completes.
func (t *Task) Fail(err error) {
	t.setErr(err)
	t.finish()
}

// String implements the fmt.Stringer interface for logging.
func (t *Task) String() string {
	return fmt.Sprintf("%s[%d]", t.name, t.unfinished.Load())
}

// =============================================================================

// run executes the work function and then finishes the task. A panic in the
// work function is converted into an error.
func (t *Task) run(w *Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s: panic: %v", t.name, r)
		}

		if err != nil {
			t.setErr(err)
		}

		t.finish()
	}()

	if t.fn == nil {
		return nil
	}

	return t.fn(w, t)
}

// finish decrements the unfinished count. The last decrement closes the
// done channel and joins into the parent.
func (t *Task) finish() {
	if t.unfinished.Add(-1) != 0 {
		return
	}

	if t.parent != nil {
		if err := t.Err(); err != nil {
			t.parent.setErr(err)
		}
	}

	close(t.done)

	if t.parent != nil {
		t.parent.finish()
	}
}

// setErr keeps the first error reported.
func (t *Task) setErr(err error) {
	t.err.CompareAndSwap(nil, &err)
}
