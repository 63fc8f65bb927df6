package swirl

import (
	"encoding/json"
	"math"
	"time"
)

// MaxRetries is the number of failed attempts after which a job is
// considered permanently failed. It is used both as the eligibility
// cutoff for claiming a job and as the predicate for failedJobCount.
const MaxRetries = 5

// BackgroundJob is a single row of the background_jobs table.
type BackgroundJob struct {
	ID          int64
	JobType     string
	Data        json.RawMessage
	Retries     int32
	LastRetryAt time.Time
	CreatedAt   time.Time
}

// backoff returns how long a job must wait after its last retry before
// it becomes eligible again, as a function of how many times it has
// already been retried. It grows exponentially: 2^retries minutes.
func backoff(retries int32) time.Duration {
	minutes := math.Pow(2, float64(retries))
	return time.Duration(minutes * float64(time.Minute))
}
