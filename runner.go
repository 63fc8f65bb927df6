package swirl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultThreadCount     = 5
	defaultJobStartTimeout = 10 * time.Second
)

// Builder configures and constructs a Runner. The zero value is not
// usable; obtain one from NewBuilder.
type Builder struct {
	environment     any
	registry        *Registry
	databaseURL     string
	threadCount     int
	connectionCount int32
	jobStartTimeout time.Duration
	logger          *slog.Logger
}

// NewBuilder starts a Builder for a job runner backed by registry and
// exposing environment to every performer. environment and registry
// are shared, read-only, across every worker goroutine.
func NewBuilder(environment any, registry *Registry) *Builder {
	return &Builder{
		environment:     environment,
		registry:        registry,
		threadCount:     defaultThreadCount,
		jobStartTimeout: defaultJobStartTimeout,
	}
}

// ThreadCount sets the number of worker threads. Defaults to 5.
func (b *Builder) ThreadCount(n int) *Builder {
	b.threadCount = n
	return b
}

// ConnectionCount sets the maximum size of the database connection
// pool. Defaults to 2x ThreadCount.
func (b *Builder) ConnectionCount(n int32) *Builder {
	b.connectionCount = n
	return b
}

// JobStartTimeout sets how long RunAllPendingJobs waits for any one
// worker event before giving up. Defaults to 10 seconds.
func (b *Builder) JobStartTimeout(d time.Duration) *Builder {
	b.jobStartTimeout = d
	return b
}

// DatabaseURL sets the Postgres connection string the runner will
// build its own pool from; Build always opens a new pool from it.
func (b *Builder) DatabaseURL(url string) *Builder {
	b.databaseURL = url
	return b
}

// Logger overrides the runner's diagnostic logger. Defaults to a
// tint-backed slog.Logger writing to stderr (see log.go).
func (b *Builder) Logger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// Build constructs the Runner, opening its connection pool and thread
// pool. ctx is only used for the initial pool connection attempt.
func (b *Builder) Build(ctx context.Context) (*Runner, error) {
	threadCount := b.threadCount
	if threadCount <= 0 {
		threadCount = defaultThreadCount
	}
	connectionCount := b.connectionCount
	if connectionCount <= 0 {
		connectionCount = int32(threadCount * 2)
	}

	pool, err := newConnectionPool(ctx, b.databaseURL, connectionCount)
	if err != nil {
		return nil, err
	}

	wp, err := newWorkerPool(threadCount)
	if err != nil {
		pool.Close()
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = newDiagnosticLogger()
	}

	return &Runner{
		connectionPool:  pool,
		threadPool:      wp,
		environment:     b.environment,
		registry:        b.registry,
		jobStartTimeout: b.jobStartTimeout,
		logger:          logger,
	}, nil
}

// Runner owns the connection pool and thread pool used to claim and
// run jobs. Obtain one with NewBuilder(...).Build(ctx).
type Runner struct {
	connectionPool  *pgxpool.Pool
	threadPool      *workerPool
	environment     any
	registry        *Registry
	jobStartTimeout time.Duration
	logger          *slog.Logger
}

// ConnectionPool returns the runner's underlying connection pool, for
// use in integration tests that need to inspect or seed the database
// directly.
func (r *Runner) ConnectionPool() *pgxpool.Pool {
	return r.connectionPool
}

// Close releases the runner's thread pool and connection pool. It
// does not wait for in-flight jobs; call CheckForFailedJobs or
// otherwise join the thread pool first if that matters.
func (r *Runner) Close() {
	r.threadPool.release()
	r.connectionPool.Close()
}

// RunAllPendingJobs dispatches worker tasks until the queue is
// observed empty.
//
// This function returns as soon as one worker reports that it found no
// eligible job. It does not wait for the jobs already claimed to
// finish, nor for other dispatched workers to report in; call
// CheckForFailedJobs to join the pool.
func (r *Runner) RunAllPendingJobs(ctx context.Context) error {
	maxThreads := r.threadPool.maxCount()
	events, sender := newEventChannel(maxThreads)
	pendingMessages := 0

	for {
		availableThreads := maxThreads - r.threadPool.activeCount()

		var jobsToQueue int
		if pendingMessages == 0 {
			// No worker is currently talking to us, and there may be
			// no available threads either; queue at least one job or
			// we will never receive a message to wake us up.
			jobsToQueue = availableThreads
			if jobsToQueue < 1 {
				jobsToQueue = 1
			}
		} else {
			jobsToQueue = availableThreads
		}

		for i := 0; i < jobsToQueue; i++ {
			r.runSingleJob(ctx, sender)
		}
		pendingMessages += jobsToQueue

		select {
		case ev := <-events:
			switch ev.kind {
			case eventWorking:
				pendingMessages--
			case eventNoJobAvailable:
				return nil
			case eventErrorLoadingJob:
				return newFailedLoadingJobError(ev.err)
			case eventFailedToAcquireConnection:
				return newNoDatabaseConnectionError(ev.err)
			}
		case <-time.After(r.jobStartTimeout):
			return newNoMessageReceivedError()
		}
	}
}

// runSingleJob submits one claim-and-run task to the thread pool.
func (r *Runner) runSingleJob(ctx context.Context, sender eventSender) {
	r.threadPool.execute(func() {
		runSingleJob(ctx, r.connectionPool, r.registry, r.environment, r.logger, sender)
	})
}

// CheckForFailedJobs joins the thread pool, then reports on the
// outcome of every job it ran. It is intended for use in tests.
func (r *Runner) CheckForFailedJobs(ctx context.Context) error {
	r.threadPool.join()

	if panics := r.threadPool.getPanicCount(); panics > 0 {
		return newUnknownFailedJobsError(fmt.Errorf("%d worker threads panicked", panics))
	}

	count, err := failedJobCount(ctx, r.connectionPool)
	if err != nil {
		return newUnknownFailedJobsError(err)
	}
	if count == 0 {
		return nil
	}
	return JobsFailed(count)
}
