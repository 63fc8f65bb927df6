package swirl

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// queryable is satisfied by anything that can run a query: a pgx.Tx,
// a *pgx.Conn, or a *pgxpool.Pool.
type queryable interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	sqlClaimJob = `
SELECT id, job_type, data, retries, last_retry_at, created_at
FROM background_jobs
WHERE retries < $1
  AND last_retry_at + (power(2, retries) * interval '1 minute') <= now()
ORDER BY id ASC
FOR UPDATE SKIP LOCKED
LIMIT 1`

	sqlInsertJob = `INSERT INTO background_jobs (job_type, data) VALUES ($1, $2)`

	sqlDeleteJob = `DELETE FROM background_jobs WHERE id = $1`

	sqlUpdateFailedJob = `
UPDATE background_jobs
SET retries = retries + 1, last_retry_at = now()
WHERE id = $1`

	sqlCountFailedJobs = `SELECT count(*) FROM background_jobs WHERE retries >= $1`
)

// preparedStatements names every statement storage.go issues, so a
// connection pool can prepare them once per connection (see
// connstring.go's AfterConnect hook) instead of re-planning on every
// call.
var preparedStatements = map[string]string{
	"claim_job":         sqlClaimJob,
	"insert_job":        sqlInsertJob,
	"delete_job":        sqlDeleteJob,
	"update_failed_job": sqlUpdateFailedJob,
	"count_failed_jobs": sqlCountFailedJobs,
}

// insertJob appends a new row to background_jobs. data must already be
// valid JSON; see Client.Enqueue for the caller-facing marshaling step.
func insertJob(ctx context.Context, txn queryable, jobType string, data []byte) error {
	_, err := txn.Exec(ctx, "insert_job", jobType, data)
	return err
}

// findNextUnlockedJob returns the next eligible, unlocked job,
// acquiring an exclusive row lock on it for the remainder of tx. It
// returns (nil, nil) when no eligible row exists.
func findNextUnlockedJob(ctx context.Context, tx queryable) (*BackgroundJob, error) {
	var j BackgroundJob
	err := tx.QueryRow(ctx, "claim_job", MaxRetries).Scan(
		&j.ID, &j.JobType, &j.Data, &j.Retries, &j.LastRetryAt, &j.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// deleteSuccessfulJob removes the row for id. It returns an error if
// the row was already gone.
func deleteSuccessfulJob(ctx context.Context, tx queryable, id int64) error {
	tag, err := tx.Exec(ctx, "delete_job", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no background job with id %d to delete", id)
	}
	return nil
}

// updateFailedJob increments retries and resets last_retry_at to now
// for id. Must run inside the same transaction that holds the row's
// lock, so the lock release and the counter update commit together.
func updateFailedJob(ctx context.Context, tx queryable, id int64) error {
	_, err := tx.Exec(ctx, "update_failed_job", id)
	return err
}

// failedJobCount returns the number of rows at or beyond MaxRetries.
func failedJobCount(ctx context.Context, q queryable) (int64, error) {
	var count int64
	err := q.QueryRow(ctx, "count_failed_jobs", MaxRetries).Scan(&count)
	return count, err
}
