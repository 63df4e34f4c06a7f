// Package tasks implements the submission engine: batching of eligible
// listens, the per-service submission loops with reconciliation and rate
// limiting, the paginated history import, and the legacy play log pairer.
//
// Execution is strictly sequential: one network call in flight at a time,
// batches in ascending listen id order. The only suspension points are
// network waits and the explicit rate-limit sleep. There is no cancellation
// beyond context; a run either completes or aborts fatally, and a rerun is
// safe for any listen whose marker was not committed.
package tasks
