package swirl

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Client is the producer-side handle for adding jobs to the queue. It
// is deliberately separate from Runner: a process that only enqueues
// jobs (an HTTP handler, say) has no reason to hold a thread pool.
type Client struct {
	pool *pgxpool.Pool
}

// NewClient wraps pool in a Client. pool should be the same
// *pgxpool.Pool a Runner was built against, or one sharing its
// AfterConnect-prepared statements (see connstring.go).
func NewClient(pool *pgxpool.Pool) *Client {
	return &Client{pool: pool}
}

// Enqueue inserts a new job of the given type, encoding payload as
// JSON. It commits immediately; use EnqueueInTx to make the insert
// part of a larger transaction.
func (c *Client) Enqueue(ctx context.Context, jobType string, payload any) error {
	return c.enqueue(ctx, c.pool, jobType, payload)
}

// EnqueueInTx inserts a new job using tx instead of the client's own
// pool, so the row only becomes visible if the caller's transaction
// commits. The caller remains responsible for committing or rolling
// back tx.
func (c *Client) EnqueueInTx(ctx context.Context, tx queryable, jobType string, payload any) error {
	return c.enqueue(ctx, tx, jobType, payload)
}

func (c *Client) enqueue(ctx context.Context, q queryable, jobType string, payload any) error {
	if jobType == "" {
		return newSerializationError(errEmptyJobType)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return newSerializationError(err)
	}

	if err := insertJob(ctx, q, jobType, data); err != nil {
		return newDatabaseEnqueueError(err)
	}
	return nil
}
