package swirl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// runSingleJob is the body of one worker task: acquire a connection,
// open a transaction, atomically claim the next eligible job, run its
// performer under panic isolation, and finalize (delete or retry)
// inside the same transaction that holds the row lock.
//
// It never returns an error; every outcome is reported to sender.
// An unexpected transaction failure during finalization is escalated
// as a panic from this function, which the caller's worker pool turns
// into a panic-count increment (see pool.go).
func runSingleJob(ctx context.Context, pool *pgxpool.Pool, registry *Registry, environment any, logger *slog.Logger, sender eventSender) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		sender.send(event{kind: eventFailedToAcquireConnection, err: err})
		return
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		sender.send(event{kind: eventFailedToAcquireConnection, err: err})
		return
	}

	job, err := findNextUnlockedJob(ctx, tx)
	switch {
	case err != nil:
		sender.send(event{kind: eventErrorLoadingJob, err: err})
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			panic(fmt.Sprintf("failed to roll back after claim error: %v", rbErr))
		}
		return
	case job == nil:
		sender.send(event{kind: eventNoJobAvailable})
		if err := tx.Commit(ctx); err != nil {
			panic(fmt.Sprintf("failed to commit empty transaction: %v", err))
		}
		return
	}

	sender.send(event{kind: eventWorking})

	perr := performWithPanicIsolation(ctx, registry, environment, pool, job)

	var finalizeErr error
	if perr == nil {
		finalizeErr = deleteSuccessfulJob(ctx, tx, job.ID)
	} else {
		logger.Error("job failed to run",
			slog.Int64("job_id", job.ID),
			slog.String("job_type", job.JobType),
			slog.Any("error", perr),
		)
		finalizeErr = updateFailedJob(ctx, tx, job.ID)
	}
	if finalizeErr != nil {
		panic(fmt.Sprintf("failed to finalize job %d: %v", job.ID, finalizeErr))
	}

	if err := tx.Commit(ctx); err != nil {
		panic(fmt.Sprintf("failed to commit job %d: %v", job.ID, err))
	}
}

// performWithPanicIsolation looks up and invokes the performer for
// job.JobType, converting both an unknown job type and a recovered
// panic into a *PerformError so the caller's finalize logic never has
// to distinguish between them.
func performWithPanicIsolation(ctx context.Context, registry *Registry, environment any, pool *pgxpool.Pool, job *BackgroundJob) (result error) {
	performer, ok := registry.Get(job.JobType)
	if !ok {
		return NewPerformError(fmt.Sprintf("unknown job type: %q", job.JobType), nil)
	}

	defer func() {
		if r := recover(); r != nil {
			result = NewPerformError(stringifyPanic(r), nil)
		}
	}()

	return performer(ctx, job.Data, environment, pool)
}

// stringifyPanic best-effort converts a recovered panic value into a
// human-readable message, probing the carrier shapes a panic()
// commonly uses, and appends a captured stack trace so operators can
// see where it occurred even though the trace is never persisted to
// the job row.
func stringifyPanic(r any) string {
	var msg string
	switch v := r.(type) {
	case string:
		msg = v
	case error:
		msg = v.Error()
	case fmt.Stringer:
		msg = v.String()
	default:
		msg = fmt.Sprintf("%v", v)
	}
	return fmt.Sprintf("job panicked: %s\n%s", msg, debug.Stack())
}
