package swirl

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDatabaseURLEnvVar gates every test in this file on a live
// Postgres instance; tests skip themselves when it isn't set.
const testDatabaseURLEnvVar = "SWIRL_TEST_DATABASE_URL"

// dbTestGuard serializes every test in this file, since they share one
// background_jobs table and assert on exact row counts/locks.
// Mirrors original_source/integration_tests/tests/test_guard.rs's
// mutex-guarded TestGuard.
var dbTestGuard sync.Mutex

const createTableSQL = `
CREATE TABLE IF NOT EXISTS background_jobs (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	job_type TEXT NOT NULL,
	data JSONB NOT NULL,
	retries INTEGER NOT NULL DEFAULT 0,
	last_retry_at TIMESTAMPTZ NOT NULL DEFAULT (now() - interval '1 year'),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRunner(t *testing.T, registry *Registry, threadCount int) *Runner {
	t.Helper()
	dbURL, ok := os.LookupEnv(testDatabaseURLEnvVar)
	if !ok {
		t.Skipf("%s not set, skipping integration test", testDatabaseURLEnvVar)
	}

	dbTestGuard.Lock()
	t.Cleanup(dbTestGuard.Unlock)

	ctx := context.Background()
	r, err := NewBuilder(nil, registry).
		DatabaseURL(dbURL).
		ThreadCount(threadCount).
		JobStartTimeout(2 * time.Second).
		Logger(newDiscardLogger()).
		Build(ctx)
	require.NoError(t, err)

	_, err = r.ConnectionPool().Exec(ctx, createTableSQL)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = r.ConnectionPool().Exec(context.Background(), "TRUNCATE TABLE background_jobs")
		r.Close()
	})

	return r
}

// createDummyJob inserts a row whose JSON payload is {"id": <its own
// id>}, so a performer that only receives (data, env, pool) can still
// report which job it was handed back to the test.
func createDummyJob(t *testing.T, pool *pgxpool.Pool) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(),
		`INSERT INTO background_jobs (job_type, data) VALUES ($1, '{}') RETURNING id`,
		"TestJob",
	).Scan(&id)
	require.NoError(t, err)

	_, err = pool.Exec(context.Background(),
		`UPDATE background_jobs SET data = $2 WHERE id = $1`,
		id, []byte(`{"id":`+strconv.FormatInt(id, 10)+`}`),
	)
	require.NoError(t, err)
	return id
}

// twoPartyBarrier is a one-shot rendezvous point for exactly two
// goroutines, the Go analogue of std::sync::Barrier used by swirl's
// own Rust test suite (original_source/swirl/src/runner.rs, tests
// module) to pin down the moment a worker has claimed its row.
type twoPartyBarrier struct {
	count atomic.Int32
	ch    chan struct{}
}

func newTwoPartyBarrier() *twoPartyBarrier {
	return &twoPartyBarrier{ch: make(chan struct{})}
}

func (b *twoPartyBarrier) wait() {
	if b.count.Add(1) == 2 {
		close(b.ch)
	}
	<-b.ch
}

func TestJobsAreLockedWhenFetched(t *testing.T) {
	fetchBarrier := newTwoPartyBarrier()
	returnBarrier := newTwoPartyBarrier()

	var sawFirst, sawSecond int64

	recordingPerformer := func(dst *int64, gate func()) Performer {
		return func(ctx context.Context, data []byte, env any, pool *pgxpool.Pool) error {
			var payload struct {
				ID int64 `json:"id"`
			}
			if err := json.Unmarshal(data, &payload); err != nil {
				return err
			}
			atomic.StoreInt64(dst, payload.ID)
			gate()
			return nil
		}
	}

	firstRegistry := NewRegistry()
	require.NoError(t, firstRegistry.Register("TestJob", recordingPerformer(&sawFirst, func() {
		fetchBarrier.wait() // tell the other worker it can lock its job
		returnBarrier.wait()
	})))
	secondRegistry := NewRegistry()
	require.NoError(t, secondRegistry.Register("TestJob", recordingPerformer(&sawSecond, func() {
		returnBarrier.wait() // let the first worker unlock its job
	})))

	r := testRunner(t, firstRegistry, 2)
	ctx := context.Background()

	firstID := createDummyJob(t, r.ConnectionPool())
	secondID := createDummyJob(t, r.ConnectionPool())

	logger := newDiscardLogger()

	r.threadPool.execute(func() {
		runSingleJob(ctx, r.ConnectionPool(), firstRegistry, nil, logger, dummySender{})
	})
	r.threadPool.execute(func() {
		fetchBarrier.wait() // wait until the first worker locks its job
		runSingleJob(ctx, r.ConnectionPool(), secondRegistry, nil, logger, dummySender{})
	})

	r.threadPool.join()

	assert.Equal(t, firstID, atomic.LoadInt64(&sawFirst))
	assert.Equal(t, secondID, atomic.LoadInt64(&sawSecond))
	assert.NotEqual(t, sawFirst, sawSecond)
}

func TestJobsAreDeletedWhenSuccessfullyRun(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register("TestJob", noopPerformer))
	r := testRunner(t, registry, 2)
	ctx := context.Background()

	createDummyJob(t, r.ConnectionPool())

	r.runSingleJob(ctx, dummySender{})
	r.threadPool.join()

	var count int64
	err := r.ConnectionPool().QueryRow(ctx, "SELECT count(*) FROM background_jobs").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestFailedJobsDoNotReleaseLockBeforeUpdatingRetryTime(t *testing.T) {
	registry := NewRegistry()
	barrier := newTwoPartyBarrier()
	require.NoError(t, registry.Register("TestJob", func(ctx context.Context, data []byte, env any, pool *pgxpool.Pool) error {
		barrier.wait()
		return NewPerformError("nope", nil)
	}))
	r := testRunner(t, registry, 2)
	ctx := context.Background()

	createDummyJob(t, r.ConnectionPool())

	r.runSingleJob(ctx, dummySender{})

	barrier.wait() // wait for the worker to acquire its row lock

	// No SKIP LOCKED here on purpose: this blocks until the worker's
	// transaction commits and releases the row lock.
	conn, err := r.ConnectionPool().Acquire(ctx)
	require.NoError(t, err)
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, "SELECT id FROM background_jobs WHERE retries = 0 FOR UPDATE")
	require.NoError(t, err)
	var availableIDs []int64
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		availableIDs = append(availableIDs, id)
	}
	rows.Close()
	assert.Empty(t, availableIDs, "the row must not appear available until retries was incremented")

	totalRows, err := tx.Query(ctx, "SELECT id FROM background_jobs FOR UPDATE")
	require.NoError(t, err)
	var totalIDs []int64
	for totalRows.Next() {
		var id int64
		require.NoError(t, totalRows.Scan(&id))
		totalIDs = append(totalIDs, id)
	}
	totalRows.Close()
	assert.Len(t, totalIDs, 1, "the job must still be present, just retried")

	require.NoError(t, tx.Commit(ctx))
	r.threadPool.join()
}

func TestPanickingInJobUpdatesRetryCounter(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register("TestJob", func(ctx context.Context, data []byte, env any, pool *pgxpool.Pool) error {
		panic("boom")
	}))
	r := testRunner(t, registry, 2)
	ctx := context.Background()

	jobID := createDummyJob(t, r.ConnectionPool())

	r.runSingleJob(ctx, dummySender{})
	r.threadPool.join()

	assert.Equal(t, int64(0), r.threadPool.getPanicCount(), "a performer panic must not count against the pool")

	var retries int32
	err := r.ConnectionPool().QueryRow(ctx, "SELECT retries FROM background_jobs WHERE id = $1", jobID).Scan(&retries)
	require.NoError(t, err)
	assert.Equal(t, int32(1), retries)
}

func TestUnknownJobTypeIsTreatedAsFailure(t *testing.T) {
	r := testRunner(t, NewRegistry(), 2)
	ctx := context.Background()

	jobID := createDummyJob(t, r.ConnectionPool())

	r.runSingleJob(ctx, dummySender{})
	r.threadPool.join()

	var retries int32
	err := r.ConnectionPool().QueryRow(ctx, "SELECT retries FROM background_jobs WHERE id = $1", jobID).Scan(&retries)
	require.NoError(t, err)
	assert.Equal(t, int32(1), retries)
}

func TestDrainOnEmptyQueue(t *testing.T) {
	r := testRunner(t, NewRegistry(), 1)
	ctx := context.Background()

	err := r.RunAllPendingJobs(ctx)
	require.NoError(t, err)

	r.threadPool.join()
	assert.Equal(t, int64(0), r.threadPool.getPanicCount())
}
