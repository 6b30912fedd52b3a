// Package worker provides a fixed-size pool of worker goroutines fed by a
// growable FIFO job queue.
//
// # Basic Usage
//
//	pool := worker.NewPool(worker.DefaultPoolConfig())
//	if err := pool.Init(4); err != nil {
//	    return err
//	}
//	defer pool.Shutdown()
//
//	for i := 0; i < 100; i++ {
//	    pool.SubmitFunc(func() {
//	        // do work
//	    })
//	}
//	pool.Wait() // queue empty and no job executing
//
// Jobs carrying an argument use Job directly:
//
//	pool.Submit(worker.Job{Fn: handle, Arg: req})
//
// # Lifecycle
//
// A pool moves through Uninitialized, Running, Stopping and Stopped.
// Init may be retried after a failure; once stopped the pool cannot be
// restarted. Init(0) is accepted: jobs are queued but never run, and Wait
// blocks until Shutdown.
//
// # Shutdown
//
// Shutdown wakes every idle worker, waits for in-flight jobs to finish,
// joins all workers and releases the queue. Jobs still queued are discarded
// and their count is logged and published as a pool_stopped event.
//
// # Panics
//
// A panicking job is recovered by its worker. The panic is logged with its
// stack, counted in metrics and published as a job_panicked event; the
// worker keeps serving the queue.
package worker
