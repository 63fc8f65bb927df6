package swirl

import (
	"errors"
	"fmt"
)

// EnqueueError is returned by producers when a job could not be added
// to the queue.
type EnqueueError struct {
	// Serialization is set when the payload failed to encode.
	Serialization bool
	cause         error
}

var errEmptyJobType = errors.New("job type must not be empty")

func newSerializationError(cause error) *EnqueueError {
	return &EnqueueError{Serialization: true, cause: cause}
}

func newDatabaseEnqueueError(cause error) *EnqueueError {
	return &EnqueueError{cause: cause}
}

func (e *EnqueueError) Error() string {
	if e.Serialization {
		return fmt.Sprintf("failed to serialize job payload: %v", e.cause)
	}
	return fmt.Sprintf("failed to insert job: %v", e.cause)
}

func (e *EnqueueError) Unwrap() error { return e.cause }

// PerformError is the opaque failure returned by a Performer, or
// synthesized when a performer panics or its job type is unknown to
// the registry.
type PerformError struct {
	msg   string
	cause error
}

// NewPerformError wraps cause in an opaque PerformError with the given
// message.
func NewPerformError(msg string, cause error) *PerformError {
	return &PerformError{msg: msg, cause: cause}
}

func (e *PerformError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *PerformError) Unwrap() error { return e.cause }

// FetchError is returned by RunAllPendingJobs when the drain loop
// could not proceed.
type FetchError struct {
	kind  fetchErrorKind
	cause error
}

type fetchErrorKind int

const (
	fetchErrNoDatabaseConnection fetchErrorKind = iota
	fetchErrFailedLoadingJob
	fetchErrNoMessageReceived
)

func newNoDatabaseConnectionError(cause error) *FetchError {
	return &FetchError{kind: fetchErrNoDatabaseConnection, cause: cause}
}

func newFailedLoadingJobError(cause error) *FetchError {
	return &FetchError{kind: fetchErrFailedLoadingJob, cause: cause}
}

// ErrNoMessageReceived is returned (wrapped in a *FetchError) when the
// drain loop's channel deadline elapses without any worker reporting
// in.
var ErrNoMessageReceived = errors.New("no message received from worker pool before job_start_timeout elapsed")

func newNoMessageReceivedError() *FetchError {
	return &FetchError{kind: fetchErrNoMessageReceived, cause: ErrNoMessageReceived}
}

func (e *FetchError) Error() string {
	switch e.kind {
	case fetchErrNoDatabaseConnection:
		return fmt.Sprintf("timed out acquiring a database connection, try increasing the connection pool size: %v", e.cause)
	case fetchErrFailedLoadingJob:
		return fmt.Sprintf("error loading a job from the database: %v", e.cause)
	default:
		return fmt.Sprintf("%v, try increasing the thread count or job_start_timeout", e.cause)
	}
}

func (e *FetchError) Unwrap() error { return e.cause }

// IsNoDatabaseConnection reports whether err is a FetchError caused by
// an exhausted or unreachable connection pool.
func IsNoDatabaseConnection(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.kind == fetchErrNoDatabaseConnection
}

// IsFailedLoadingJob reports whether err is a FetchError caused by a
// SQL failure during the claim query.
func IsFailedLoadingJob(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.kind == fetchErrFailedLoadingJob
}

// IsNoMessageReceived reports whether err is a FetchError caused by
// the drain loop's deadline elapsing.
func IsNoMessageReceived(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.kind == fetchErrNoMessageReceived
}

// FailedJobsError is returned by CheckForFailedJobs. Only used in
// tests.
type FailedJobsError struct {
	// Count is the number of rows at MaxRetries. Zero unless the
	// failure is JobsFailed.
	Count int64
	cause error
}

// JobsFailed constructs a FailedJobsError reporting that count jobs
// reached MaxRetries.
func JobsFailed(count int64) *FailedJobsError {
	return &FailedJobsError{Count: count}
}

func newUnknownFailedJobsError(cause error) *FailedJobsError {
	return &FailedJobsError{cause: cause}
}

func (e *FailedJobsError) Error() string {
	if e.cause != nil {
		return e.cause.Error()
	}
	return fmt.Sprintf("%d jobs failed", e.Count)
}

func (e *FailedJobsError) Unwrap() error { return e.cause }

// IsJobsFailed reports whether err is a FailedJobsError describing a
// nonzero number of permanently failed jobs, as opposed to an
// unexpected underlying failure (a panicked worker or a failed count
// query).
func IsJobsFailed(err error) bool {
	var fe *FailedJobsError
	return errors.As(err, &fe) && fe.cause == nil
}
