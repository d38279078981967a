package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quorumchain/node/foundation/blockchain/scheduler"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func Test_EngineForkJoin(t *testing.T) {
	t.Log("Given the need to run a forked task tree across workers.")
	{
		const children = 200

		e, err := scheduler.New(scheduler.Config{Workers: 4, QueueCapacity: 512})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to start the engine: %v", failed, err)
		}
		defer e.Shutdown()
		t.Logf("\t%s\tShould be able to start the engine.", success)

		var ran atomic.Int64
		root := scheduler.NewTask("root", nil, func(w *scheduler.Worker, self *scheduler.Task) error {
			for range children {
				child := scheduler.NewTask("child", self, func(w *scheduler.Worker, self *scheduler.Task) error {
					ran.Add(1)
					return nil
				})
				if err := w.Schedule(child); err != nil {
					child.Fail(err)
				}
			}
			return nil
		})

		if err := e.Submit(root); err != nil {
			t.Fatalf("\t%s\tShould be able to submit the root: %v", failed, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := root.Wait(ctx); err != nil {
			t.Fatalf("\t%s\tShould complete the tree: %v", failed, err)
		}
		t.Logf("\t%s\tShould complete the tree.", success)

		if got := ran.Load(); got != children {
			t.Fatalf("\t%s\tShould run every child once, got %d.", failed, got)
		}
		t.Logf("\t%s\tShould run every child once.", success)

		deadline := time.Now().Add(2 * time.Second)
		for {
			var runs uint64
			for _, s := range e.Stats() {
				runs += s.Runs
			}
			if runs == children+1 {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("\t%s\tShould count every run in the stats, got %d.", failed, runs)
			}
			time.Sleep(time.Millisecond)
		}
		t.Logf("\t%s\tShould count every run in the stats.", success)
	}
}

func Test_EngineQueueFull(t *testing.T) {
	t.Log("Given the need to report a full queue as a scheduling failure.")
	{
		e, err := scheduler.New(scheduler.Config{Workers: 1, QueueCapacity: 2})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to start the engine: %v", failed, err)
		}
		defer e.Shutdown()

		var failures atomic.Int64
		root := scheduler.NewTask("root", nil, func(w *scheduler.Worker, self *scheduler.Task) error {
			for range 3 {
				child := scheduler.NewTask("child", self, nil)
				if err := w.Schedule(child); err != nil {
					failures.Add(1)
					child.Fail(err)
				}
			}
			return nil
		})

		if err := e.Submit(root); err != nil {
			t.Fatalf("\t%s\tShould be able to submit the root: %v", failed, err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err = root.Wait(ctx)
		if !errors.Is(err, scheduler.ErrQueueFull) {
			t.Fatalf("\t%s\tShould fail the tree with a full queue, got %v.", failed, err)
		}
		t.Logf("\t%s\tShould fail the tree with a full queue.", success)

		if failures.Load() != 1 {
			t.Fatalf("\t%s\tShould fail only the child that didn't fit, got %d.", failed, failures.Load())
		}
		t.Logf("\t%s\tShould fail only the child that didn't fit.", success)
	}
}

func Test_EngineShutdown(t *testing.T) {
	t.Log("Given the need to stop the engine cooperatively.")
	{
		e, err := scheduler.New(scheduler.Config{Workers: 2, QueueCapacity: 8})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to start the engine: %v", failed, err)
		}

		e.Shutdown()

		for _, s := range e.Stats() {
			if s.State != scheduler.StateStopped.String() {
				t.Fatalf("\t%s\tShould stop every worker, got %s.", failed, s.State)
			}
		}
		t.Logf("\t%s\tShould stop every worker.", success)

		if err := e.Submit(scheduler.NewTask("late", nil, nil)); !errors.Is(err, scheduler.ErrEngineStopped) {
			t.Fatalf("\t%s\tShould reject work after shutdown, got %v.", failed, err)
		}
		t.Logf("\t%s\tShould reject work after shutdown.", success)

		e.Shutdown()
		t.Logf("\t%s\tShould tolerate a second shutdown.", success)
	}
}

func Test_EngineShutdownDropsQueued(t *testing.T) {
	t.Log("Given the need to wake waiters of tasks dropped at shutdown.")
	{
		e, err := scheduler.New(scheduler.Config{Workers: 1, QueueCapacity: 8})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to start the engine: %v", failed, err)
		}

		running := make(chan struct{})
		release := make(chan struct{})
		blocker := scheduler.NewTask("blocker", nil, func(w *scheduler.Worker, self *scheduler.Task) error {
			close(running)
			<-release
			return nil
		})
		if err := e.Submit(blocker); err != nil {
			t.Fatalf("\t%s\tShould be able to submit the blocker: %v", failed, err)
		}
		<-running

		queued := scheduler.NewTask("queued", nil, nil)
		if err := e.Submit(queued); err != nil {
			t.Fatalf("\t%s\tShould be able to queue a task: %v", failed, err)
		}

		done := make(chan struct{})
		go func() {
			e.Shutdown()
			close(done)
		}()

		for e.Stats()[0].State != scheduler.StateStopping.String() {
			time.Sleep(time.Millisecond)
		}
		close(release)
		<-done

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := queued.Wait(ctx); !errors.Is(err, scheduler.ErrEngineStopped) {
			t.Fatalf("\t%s\tShould fail the queued task, got %v.", failed, err)
		}
		t.Logf("\t%s\tShould fail the queued task.", success)

		if err := blocker.Wait(ctx); err != nil {
			t.Fatalf("\t%s\tShould let the running task finish: %v", failed, err)
		}
		t.Logf("\t%s\tShould let the running task finish.", success)
	}
}

func Test_EngineShutdownRace(t *testing.T) {
	t.Log("Given the need to settle every accepted task while shutting down.")
	{
		e, err := scheduler.New(scheduler.Config{Workers: 2, QueueCapacity: 4096})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to start the engine: %v", failed, err)
		}

		var mu sync.Mutex
		var accepted []*scheduler.Task

		var wg sync.WaitGroup
		wg.Add(4)
		for range 4 {
			go func() {
				defer wg.Done()
				for {
					task := scheduler.NewTask("racer", nil, nil)
					if err := e.Submit(task); err != nil {
						if errors.Is(err, scheduler.ErrEngineStopped) {
							return
						}
						continue
					}

					mu.Lock()
					accepted = append(accepted, task)
					mu.Unlock()
				}
			}()
		}

		time.Sleep(10 * time.Millisecond)
		e.Shutdown()
		wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		for i, task := range accepted {
			err := task.Wait(ctx)
			if err != nil && !errors.Is(err, scheduler.ErrEngineStopped) {
				t.Fatalf("\t%s\tShould settle accepted task %d of %d, got %v.", failed, i, len(accepted), err)
			}
		}
		t.Logf("\t%s\tShould run or fail each of the %d accepted tasks.", success, len(accepted))
	}
}

func Test_EngineRandomWorker(t *testing.T) {
	t.Log("Given the need to hand work only to running workers.")
	{
		e, err := scheduler.New(scheduler.Config{Workers: 4, QueueCapacity: 64})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to start the engine: %v", failed, err)
		}

		e.StopWorker(2)
		for range 400 {
			w := e.RandomWorker()
			if w == nil || w.ID() == 2 {
				t.Fatalf("\t%s\tShould never pick the stopped worker, got %v.", failed, w)
			}
		}
		t.Logf("\t%s\tShould never pick the stopped worker.", success)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		for i := range 50 {
			task := scheduler.NewTask("task", nil, nil)
			if err := e.Submit(task); err != nil {
				t.Fatalf("\t%s\tShould be able to submit task %d: %v", failed, i, err)
			}
			if err := task.Wait(ctx); err != nil {
				t.Fatalf("\t%s\tShould run task %d on a running worker: %v", failed, i, err)
			}
		}
		t.Logf("\t%s\tShould run every submitted task on a running worker.", success)

		e.Shutdown()
		if w := e.RandomWorker(); w != nil {
			t.Fatalf("\t%s\tShould not pick a worker after shutdown, got %d.", failed, w.ID())
		}
		t.Logf("\t%s\tShould not pick a worker after shutdown.", success)
	}
}

func Test_EngineConfig(t *testing.T) {
	t.Log("Given the need to validate the engine configuration.")
	{
		if _, err := scheduler.New(scheduler.Config{Workers: 0, QueueCapacity: 8}); err == nil {
			t.Fatalf("\t%s\tShould reject zero workers.", failed)
		}
		t.Logf("\t%s\tShould reject zero workers.", success)

		if _, err := scheduler.New(scheduler.Config{Workers: 1}); err == nil {
			t.Fatalf("\t%s\tShould reject a zero queue capacity.", failed)
		}
		t.Logf("\t%s\tShould reject a zero queue capacity.", success)
	}
}
