// Package repositories implements SQLite persistence for the listen store
// and the history import staging area.
//
// Key implementations:
//   - [Listens] : the engine's narrow read/write contract over the listens
//     table: a lazy cursor of eligible listens, the idempotent scrobble
//     marker, and inserts for listens reconstructed from a play log
//   - [Imports] : insert-or-ignore staging of remote listen history with
//     convergence counts, plus import run bookkeeping
//
// All writes that must be atomic (marking a batch, staging one page) happen
// inside a single transaction; transactions never span network calls.
package repositories
