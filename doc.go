// Package swirl is a durable, Postgres-backed background job runner.
// Jobs are rows in a background_jobs table; a fixed-size worker pool
// claims them with FOR UPDATE SKIP LOCKED, runs a registered Performer
// inside the same transaction that holds the row lock, and deletes or
// retries the row depending on the outcome.
package swirl
