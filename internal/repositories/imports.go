package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/scrobble/internal/models"
	"github.com/desertthunder/scrobble/internal/shared"
)

// Imports manages the staging area for remote listen history.
type Imports struct {
	db *sql.DB
}

// NewImports creates a new Imports repository with the given database connection
func NewImports(db *sql.DB) *Imports {
	return &Imports{db: db}
}

// UpsertPage stages one page of remote history rows in a single transaction
// with insert-or-ignore semantics on (listened_at, track, artist), and
// returns how many rows were actually new. Pages may overlap between fetches
// or between runs; overlapping rows are no-ops.
//
// An error rolls the whole page back, so a retried page starts clean.
func (r *Imports) UpsertPage(rows []models.ImportedListen) (int64, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO lastfm_imports (listened_at, track, artist, album)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare staging insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		result, err := stmt.Exec(row.ListenedAt, row.Track, row.Artist, row.Album)
		if err != nil {
			return 0, fmt.Errorf("failed to stage imported listen: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get affected rows: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit staging transaction: %w", err)
	}

	return inserted, nil
}

// CountSince returns how many staged rows are newer than the given lower
// bound (seconds since epoch). A bound of zero counts everything.
func (r *Imports) CountSince(lowerBound int64) (int64, error) {
	var count int64
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM lastfm_imports WHERE listened_at > ?`,
		lowerBound,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count staged listens: %w", err)
	}
	return count, nil
}

// NewestListenedAt returns the most recent staged timestamp, or zero when the
// staging area is empty. Incremental imports use it to narrow their window.
func (r *Imports) NewestListenedAt() (int64, error) {
	var newest int64
	err := r.db.QueryRow(`SELECT COALESCE(MAX(listened_at), 0) FROM lastfm_imports`).Scan(&newest)
	if err != nil {
		return 0, fmt.Errorf("failed to get newest staged listen: %w", err)
	}
	return newest, nil
}

// CreateRun records the start of a history import and returns the run.
func (r *Imports) CreateRun(mode string, now time.Time) (*models.ImportRun, error) {
	run := &models.ImportRun{
		ID:        shared.GenerateID(),
		Mode:      mode,
		StartedAt: models.FormatTime(now),
	}

	_, err := r.db.Exec(
		`INSERT INTO import_runs (id, mode, started_at) VALUES (?, ?, ?)`,
		run.ID, run.Mode, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create import run: %w", err)
	}

	return run, nil
}

// UpdateRun persists a run's progress counters and completion flag.
func (r *Imports) UpdateRun(run *models.ImportRun) error {
	result, err := r.db.Exec(
		`UPDATE import_runs SET pages = ?, rows_inserted = ?, completed = ? WHERE id = ?`,
		run.Pages, run.RowsInserted, run.Completed, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update import run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("import run not found: %s", run.ID)
	}

	return nil
}

// LastRun returns the most recently started import run, or nil when no import
// has happened yet.
func (r *Imports) LastRun() (*models.ImportRun, error) {
	var run models.ImportRun
	err := r.db.QueryRow(`
		SELECT id, mode, started_at, pages, rows_inserted, completed
		FROM import_runs
		ORDER BY started_at DESC
		LIMIT 1
	`).Scan(&run.ID, &run.Mode, &run.StartedAt, &run.Pages, &run.RowsInserted, &run.Completed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last import run: %w", err)
	}
	return &run, nil
}

// StagedCount returns the total number of staged history rows.
func (r *Imports) StagedCount() (int64, error) {
	return r.CountSince(0)
}
