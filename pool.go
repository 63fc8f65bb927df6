package swirl

import (
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
)

// workerPool is a fixed-size pool of OS threads that run blocking
// worker tasks. It exposes exactly the surface the orchestrator needs:
// execute, activeCount, maxCount, panicCount and join.
//
// ants.Pool gives us execute/activeCount/maxCount directly (Submit,
// Running, Cap). It has no notion of a panic counter or of joining on
// previously submitted work, so those are layered on top with a
// WaitGroup and an atomic counter that each submitted task bumps from
// its own recover before it marks itself done.
type workerPool struct {
	pool       *ants.Pool
	wg         sync.WaitGroup
	panicCount atomic.Int64
}

// newWorkerPool creates a pool with room for exactly size concurrently
// running tasks.
func newWorkerPool(size int) (*workerPool, error) {
	wp := &workerPool{}
	p, err := ants.NewPool(size,
		ants.WithPanicHandler(func(recovered any) {
			wp.panicCount.Add(1)
		}),
	)
	if err != nil {
		return nil, err
	}
	wp.pool = p
	return wp, nil
}

// execute queues task to run once a thread is idle. Like an
// unbounded-queue, N-worker threadpool, execute itself never blocks
// the caller waiting for capacity (only actually running a task waits
// for a free slot). A blocking ants.Pool.Submit would otherwise
// deadlock the drain loop, which deliberately queues one extra task
// even when it believes the pool is saturated (see runner.go's
// RunAllPendingJobs). The submit call therefore happens on its own
// goroutine; ants.Pool's internal semaphore still caps how many tasks
// run concurrently.
func (wp *workerPool) execute(task func()) {
	wp.wg.Add(1)
	go func() {
		if err := wp.pool.Submit(func() {
			defer wp.wg.Done()
			// Counted here, before wg.Done runs, so that a join which
			// returns has always observed the panic.
			defer func() {
				if r := recover(); r != nil {
					wp.panicCount.Add(1)
				}
			}()
			task()
		}); err != nil {
			wp.wg.Done()
			wp.panicCount.Add(1)
		}
	}()
}

// activeCount returns the number of tasks currently running.
func (wp *workerPool) activeCount() int {
	return wp.pool.Running()
}

// maxCount returns the pool's fixed capacity.
func (wp *workerPool) maxCount() int {
	return wp.pool.Cap()
}

// getPanicCount returns the number of tasks that have panicked over
// the lifetime of the pool.
func (wp *workerPool) getPanicCount() int64 {
	return wp.panicCount.Load()
}

// join blocks until every task submitted via execute has returned.
func (wp *workerPool) join() {
	wp.wg.Wait()
}

// release tears down the underlying pool. Safe to call after join.
func (wp *workerPool) release() {
	wp.pool.Release()
}
