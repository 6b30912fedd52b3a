package worker

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"thpool/internal/events"
	"thpool/internal/metrics"
)

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// waitAsync runs pool.Wait in a goroutine and returns its result channel
func waitAsync(p *Pool) <-chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- p.Wait()
	}()
	return ch
}

func TestNewPool(t *testing.T) {
	pool := NewPool(PoolConfig{})

	if pool.State() != StateUninitialized {
		t.Errorf("expected Uninitialized, got %s", pool.State())
	}
	if pool.Name() != "default" {
		t.Errorf("expected default name, got %s", pool.Name())
	}
	if pool.NumWorkers() != 0 || pool.QueueCap() != 0 {
		t.Errorf("expected empty pool, got %+v", pool.Stats())
	}
}

func TestPoolInitShutdown(t *testing.T) {
	pool := NewPool(DefaultPoolConfig())

	if err := pool.Init(4); err != nil {
		t.Fatalf("failed to init: %v", err)
	}
	if pool.State() != StateRunning {
		t.Errorf("expected Running, got %s", pool.State())
	}
	if pool.NumWorkers() != 4 {
		t.Errorf("expected 4 workers, got %d", pool.NumWorkers())
	}
	waitFor(t, "4 alive workers", func() bool { return pool.Alive() == 4 })

	pool.Shutdown()

	if pool.State() != StateStopped {
		t.Errorf("expected Stopped, got %s", pool.State())
	}
	if pool.Alive() != 0 {
		t.Errorf("expected 0 alive workers, got %d", pool.Alive())
	}
	if pool.Executing() != 0 {
		t.Errorf("expected 0 executing workers, got %d", pool.Executing())
	}
	if pool.QueueCap() != 0 {
		t.Errorf("expected queue storage released, got capacity %d", pool.QueueCap())
	}
}

func TestPoolInitTwice(t *testing.T) {
	pool := NewPool(DefaultPoolConfig())
	if err := pool.Init(2); err != nil {
		t.Fatalf("failed to init: %v", err)
	}
	defer pool.Shutdown()

	if err := pool.Init(2); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
	if pool.NumWorkers() != 2 {
		t.Errorf("expected 2 workers, got %d", pool.NumWorkers())
	}
}

func TestPoolInitAfterShutdown(t *testing.T) {
	pool := NewPool(DefaultPoolConfig())
	if err := pool.Init(1); err != nil {
		t.Fatalf("failed to init: %v", err)
	}
	pool.Shutdown()

	if err := pool.Init(1); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if pool.State() != StateStopped {
		t.Errorf("expected Stopped, got %s", pool.State())
	}
}

func TestPoolInitNegativeWorkers(t *testing.T) {
	pool := NewPool(DefaultPoolConfig())

	if err := pool.Init(-1); !errors.Is(err, ErrInvalidWorkerCount) {
		t.Errorf("expected ErrInvalidWorkerCount, got %v", err)
	}
	if pool.State() != StateUninitialized {
		t.Errorf("expected Uninitialized, got %s", pool.State())
	}
}

func TestPoolZeroWorkers(t *testing.T) {
	pool := NewPool(DefaultPoolConfig())
	if err := pool.Init(0); err != nil {
		t.Fatalf("failed to init: %v", err)
	}

	// Empty queue: Wait returns immediately
	if err := pool.Wait(); err != nil {
		t.Fatalf("expected Wait to return on empty queue, got %v", err)
	}

	var ran atomic.Bool
	if err := pool.SubmitFunc(func() { ran.Store(true) }); err != nil {
		t.Fatalf("failed to submit: %v", err)
	}

	done := waitAsync(pool)
	select {
	case err := <-done:
		t.Fatalf("Wait returned with a queued job and no workers: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	pool.Shutdown()

	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed after shutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after shutdown")
	}
	if ran.Load() {
		t.Error("job should never run without workers")
	}
}

func TestPoolEndToEnd(t *testing.T) {
	m := metrics.New()
	config := DefaultPoolConfig()
	config.Metrics = m
	pool := NewPool(config)

	if err := pool.Init(4); err != nil {
		t.Fatalf("failed to init: %v", err)
	}

	for i := 0; i < 12; i++ {
		if err := pool.SubmitFunc(func() {}); err != nil {
			t.Fatalf("failed to submit job %d: %v", i, err)
		}
	}

	if err := pool.Wait(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if m.Completed() != 12 {
		t.Errorf("expected 12 completed jobs, got %d", m.Completed())
	}

	pool.Shutdown()

	if pool.Alive() != 0 {
		t.Errorf("expected no alive workers, got %d", pool.Alive())
	}
	if pool.QueueCap() != 0 {
		t.Errorf("expected queue storage released, got %d", pool.QueueCap())
	}
}

func TestPoolConcurrentSubmit(t *testing.T) {
	pool := NewPool(DefaultPoolConfig())
	if err := pool.Init(4); err != nil {
		t.Fatalf("failed to init: %v", err)
	}
	defer pool.Shutdown()

	var counter atomic.Int32
	const numProducers = 10
	const jobsPerProducer = 100

	var wg sync.WaitGroup
	for range make([]struct{}, numProducers) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range make([]struct{}, jobsPerProducer) {
				if err := pool.SubmitFunc(func() { counter.Add(1) }); err != nil {
					t.Errorf("failed to submit: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if err := pool.Wait(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	expected := int32(numProducers * jobsPerProducer)
	if counter.Load() != expected {
		t.Errorf("expected %d jobs completed, got %d", expected, counter.Load())
	}
}

func TestPoolWaitBlocksWhileExecuting(t *testing.T) {
	pool := NewPool(DefaultPoolConfig())
	if err := pool.Init(2); err != nil {
		t.Fatalf("failed to init: %v", err)
	}
	defer pool.Shutdown()

	blocker := make(chan struct{})
	var finished atomic.Int32
	for range make([]struct{}, 4) {
		_ = pool.SubmitFunc(func() {
			<-blocker
			finished.Add(1)
		})
	}

	// Both workers hold a job; two more wait in the queue
	waitFor(t, "2 executing workers", func() bool { return pool.Executing() == 2 })

	done := waitAsync(pool)
	select {
	case err := <-done:
		t.Fatalf("Wait returned while jobs were executing: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(blocker)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after jobs finished")
	}

	if finished.Load() != 4 {
		t.Errorf("expected 4 finished jobs when Wait returned, got %d", finished.Load())
	}
	if pool.Executing() != 0 || pool.QueueLen() != 0 {
		t.Errorf("expected drained pool, got %+v", pool.Stats())
	}
}

func TestPoolDequeueOrderAcrossGrowth(t *testing.T) {
	pool := NewPool(DefaultPoolConfig())
	if err := pool.Init(1); err != nil {
		t.Fatalf("failed to init: %v", err)
	}
	defer pool.Shutdown()

	// Hold the only worker so the queue fills past its initial capacity
	blocker := make(chan struct{})
	_ = pool.SubmitFunc(func() { <-blocker })
	waitFor(t, "blocker to start", func() bool { return pool.Executing() == 1 })

	var mu sync.Mutex
	var order []int
	for i := 0; i < 300; i++ {
		i := i // per-iteration copy (Go 1.21 loop-variable semantics)
		job := Job{
			Fn: func(arg any) {
				mu.Lock()
				order = append(order, *arg.(*int))
				mu.Unlock()
			},
			Arg: &i,
		}
		if err := pool.Submit(job); err != nil {
			t.Fatalf("failed to submit job %d: %v", i, err)
		}
	}

	if grows := pool.Stats().QueueGrows; grows == 0 {
		t.Error("expected the queue to grow")
	}

	close(blocker)
	if err := pool.Wait(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	if len(order) != 300 {
		t.Fatalf("expected 300 jobs, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("job %d ran at position %d", v, i)
		}
	}
}

func TestPoolSubmitErrors(t *testing.T) {
	m := metrics.New()
	config := DefaultPoolConfig()
	config.Metrics = m
	pool := NewPool(config)

	if err := pool.SubmitFunc(func() {}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning before Init, got %v", err)
	}

	if err := pool.Init(1); err != nil {
		t.Fatalf("failed to init: %v", err)
	}
	if err := pool.Submit(Job{}); !errors.Is(err, ErrNilJob) {
		t.Errorf("expected ErrNilJob, got %v", err)
	}
	if err := pool.SubmitFunc(nil); !errors.Is(err, ErrNilJob) {
		t.Errorf("expected ErrNilJob for nil func, got %v", err)
	}

	pool.Shutdown()

	if err := pool.SubmitFunc(func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after Shutdown, got %v", err)
	}
	if m.Rejected() != 4 {
		t.Errorf("expected 4 rejected jobs, got %d", m.Rejected())
	}
	if m.Submitted() != 0 {
		t.Errorf("expected 0 submitted jobs, got %d", m.Submitted())
	}
}

func TestPoolSubmitAllocationFailure(t *testing.T) {
	config := DefaultPoolConfig()
	config.QueueCapacity = 4
	config.MaxQueueCapacity = 4
	pool := NewPool(config)
	if err := pool.Init(1); err != nil {
		t.Fatalf("failed to init: %v", err)
	}
	defer pool.Shutdown()

	blocker := make(chan struct{})
	_ = pool.SubmitFunc(func() { <-blocker })
	waitFor(t, "blocker to start", func() bool { return pool.Executing() == 1 })

	var counter atomic.Int32
	for i := 0; i < 4; i++ {
		if err := pool.SubmitFunc(func() { counter.Add(1) }); err != nil {
			t.Fatalf("failed to submit job %d: %v", i, err)
		}
	}

	err := pool.SubmitFunc(func() { counter.Add(100) })
	if !errors.Is(err, ErrAllocation) {
		t.Fatalf("expected ErrAllocation, got %v", err)
	}
	if pool.QueueLen() != 4 {
		t.Errorf("expected queue unchanged at 4, got %d", pool.QueueLen())
	}

	close(blocker)
	if err := pool.Wait(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if counter.Load() != 4 {
		t.Errorf("expected only the 4 accepted jobs to run, got %d", counter.Load())
	}
}

func TestPoolSpawnFailureRollback(t *testing.T) {
	pool := NewPool(DefaultPoolConfig())

	var started atomic.Int32
	pool.spawn = func(fn func()) error {
		if started.Load() == 3 {
			return errors.New("resource exhausted")
		}
		started.Add(1)
		go fn()
		return nil
	}

	err := pool.Init(5)
	if !errors.Is(err, ErrThreadStart) {
		t.Fatalf("expected ErrThreadStart, got %v", err)
	}

	if pool.State() != StateUninitialized {
		t.Errorf("expected Uninitialized after rollback, got %s", pool.State())
	}
	if pool.Alive() != 0 {
		t.Errorf("expected started workers to be joined, got %d alive", pool.Alive())
	}
	if pool.QueueCap() != 0 {
		t.Errorf("expected queue storage released, got %d", pool.QueueCap())
	}
	if err := pool.SubmitFunc(func() {}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning after rollback, got %v", err)
	}

	// The pool may be retried after a failed Init
	pool.spawn = goSpawn
	if err := pool.Init(2); err != nil {
		t.Fatalf("retry failed: %v", err)
	}

	var counter atomic.Int32
	_ = pool.SubmitFunc(func() { counter.Add(1) })
	if err := pool.Wait(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if counter.Load() != 1 {
		t.Errorf("expected 1 job after retry, got %d", counter.Load())
	}
	pool.Shutdown()
}

func TestPoolJobPanic(t *testing.T) {
	m := metrics.New()
	bus := events.NewBus()
	ch := bus.Subscribe()

	config := DefaultPoolConfig()
	config.Metrics = m
	config.Events = bus
	pool := NewPool(config)
	if err := pool.Init(1); err != nil {
		t.Fatalf("failed to init: %v", err)
	}
	defer pool.Shutdown()

	var ran atomic.Bool
	_ = pool.SubmitFunc(func() { panic("boom") })
	_ = pool.SubmitFunc(func() { ran.Store(true) })

	if err := pool.Wait(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	if !ran.Load() {
		t.Error("worker should survive a panicking job")
	}
	if m.Panicked() != 1 || m.Completed() != 1 {
		t.Errorf("expected 1 panicked and 1 completed, got %d and %d", m.Panicked(), m.Completed())
	}
	if pool.Alive() != 1 {
		t.Errorf("expected worker to stay alive, got %d", pool.Alive())
	}

	found := false
	for !found {
		select {
		case ev := <-ch:
			if ev.Type == events.EventJobPanicked {
				found = true
				if ev.Data.Error != "boom" {
					t.Errorf("expected error 'boom', got %q", ev.Data.Error)
				}
			}
		case <-time.After(time.Second):
			t.Fatal("no job_panicked event")
		}
	}
}

func TestPoolShutdownDiscardsQueuedJobs(t *testing.T) {
	bus := events.NewBus()
	ch := bus.Subscribe()

	config := DefaultPoolConfig()
	config.Events = bus
	pool := NewPool(config)
	if err := pool.Init(1); err != nil {
		t.Fatalf("failed to init: %v", err)
	}

	blocker := make(chan struct{})
	var finished atomic.Int32
	_ = pool.SubmitFunc(func() {
		<-blocker
		finished.Add(1)
	})
	waitFor(t, "blocker to start", func() bool { return pool.Executing() == 1 })

	for range make([]struct{}, 5) {
		_ = pool.SubmitFunc(func() { finished.Add(1) })
	}

	stopped := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(stopped)
	}()

	waitFor(t, "pool to start stopping", func() bool { return pool.State() == StateStopping })

	// Shutdown waits for the in-flight job
	select {
	case <-stopped:
		t.Fatal("Shutdown returned while a job was executing")
	case <-time.After(50 * time.Millisecond):
	}

	close(blocker)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not return")
	}

	if finished.Load() != 1 {
		t.Errorf("expected only the in-flight job to finish, got %d", finished.Load())
	}

	for {
		select {
		case ev := <-ch:
			if ev.Type != events.EventPoolStopped {
				continue
			}
			if ev.Data.Discarded != 5 {
				t.Errorf("expected 5 discarded jobs, got %d", ev.Data.Discarded)
			}
			return
		case <-time.After(time.Second):
			t.Fatal("no pool_stopped event")
		}
	}
}

func TestPoolShutdownTwice(t *testing.T) {
	pool := NewPool(DefaultPoolConfig())
	if err := pool.Init(2); err != nil {
		t.Fatalf("failed to init: %v", err)
	}

	pool.Shutdown()
	// Second call is a no-op
	pool.Shutdown()

	if pool.State() != StateStopped {
		t.Errorf("expected Stopped, got %s", pool.State())
	}
}

func TestPoolShutdownUninitialized(t *testing.T) {
	pool := NewPool(DefaultPoolConfig())
	pool.Shutdown()

	if pool.State() != StateUninitialized {
		t.Errorf("expected Uninitialized, got %s", pool.State())
	}
}

func TestPoolWaitNotRunning(t *testing.T) {
	pool := NewPool(DefaultPoolConfig())

	if err := pool.Wait(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestPoolWaitAfterShutdown(t *testing.T) {
	pool := NewPool(DefaultPoolConfig())
	if err := pool.Init(1); err != nil {
		t.Fatalf("failed to init: %v", err)
	}
	pool.Shutdown()

	if err := pool.Wait(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestPoolJobArgument(t *testing.T) {
	pool := NewPool(DefaultPoolConfig())
	if err := pool.Init(2); err != nil {
		t.Fatalf("failed to init: %v", err)
	}
	defer pool.Shutdown()

	values := make([]int, 8)
	for i := range values {
		job := Job{
			Fn: func(arg any) {
				p := arg.(*int)
				*p = *p*10 + 1
			},
			Arg: &values[i],
		}
		if err := pool.Submit(job); err != nil {
			t.Fatalf("failed to submit: %v", err)
		}
	}

	if err := pool.Wait(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	for i, v := range values {
		if v != 1 {
			t.Errorf("values[%d] = %d, want 1", i, v)
		}
	}
}

func TestPoolEvents(t *testing.T) {
	bus := events.NewBus()
	ch := bus.Subscribe()

	config := DefaultPoolConfig()
	config.Name = "evt"
	config.QueueCapacity = 2
	config.Events = bus
	pool := NewPool(config)

	if err := pool.Init(2); err != nil {
		t.Fatalf("failed to init: %v", err)
	}

	blocker := make(chan struct{})
	_ = pool.SubmitFunc(func() { <-blocker })
	_ = pool.SubmitFunc(func() { <-blocker })
	waitFor(t, "2 executing workers", func() bool { return pool.Executing() == 2 })
	for range make([]struct{}, 3) {
		_ = pool.SubmitFunc(func() {})
	}
	close(blocker)

	if err := pool.Wait(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	pool.Shutdown()

	counts := make(map[events.EventType]int)
	for counts[events.EventPoolStopped] == 0 {
		select {
		case ev := <-ch:
			if ev.Pool != "evt" {
				t.Errorf("expected pool 'evt', got %s", ev.Pool)
			}
			counts[ev.Type]++
		case <-time.After(time.Second):
			t.Fatalf("timeout collecting events: %v", counts)
		}
	}

	if counts[events.EventPoolStarted] != 1 {
		t.Errorf("expected 1 pool_started, got %d", counts[events.EventPoolStarted])
	}
	if counts[events.EventWorkerStarted] != 2 {
		t.Errorf("expected 2 worker_started, got %d", counts[events.EventWorkerStarted])
	}
	if counts[events.EventWorkerExited] != 2 {
		t.Errorf("expected 2 worker_exited, got %d", counts[events.EventWorkerExited])
	}
	if counts[events.EventQueueGrown] == 0 {
		t.Error("expected at least one queue_grown event")
	}
	if counts[events.EventDrained] == 0 {
		t.Error("expected at least one drained event")
	}
}

func TestPoolStats(t *testing.T) {
	config := DefaultPoolConfig()
	config.Name = "stats"
	pool := NewPool(config)
	if err := pool.Init(3); err != nil {
		t.Fatalf("failed to init: %v", err)
	}
	defer pool.Shutdown()

	waitFor(t, "3 alive workers", func() bool { return pool.Alive() == 3 })

	stats := pool.Stats()
	if stats.Name != "stats" || stats.State != "Running" {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.Workers != 3 || stats.Alive != 3 {
		t.Errorf("expected 3 workers alive, got %+v", stats)
	}
	if stats.QueueCap != 256 {
		t.Errorf("expected queue capacity 256, got %d", stats.QueueCap)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateUninitialized, "Uninitialized"},
		{StateRunning, "Running"},
		{StateStopping, "Stopping"},
		{StateStopped, "Stopped"},
		{State(99), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.expected)
		}
	}
}
