package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/scrobble/internal/models"
)

// Listen sources recorded in the listens table. Only listens we produced
// ourselves are eligible for submission.
const (
	SourceLocal   = "local"
	SourcePlaylog = "playlog"
)

// minPlaySeconds is the service minimum: only listens that played for more
// than 30 seconds may be scrobbled.
const minPlaySeconds = 30

// Listens provides the engine's read/write contract over the listens table.
type Listens struct {
	db *sql.DB
}

// NewListens creates a new Listens repository with the given database connection
func NewListens(db *sql.DB) *Listens {
	return &Listens{db: db}
}

const eligibleColumns = `
	id,
	started_at,
	completed_at,
	track_title,
	album_title,
	track_artist,
	album_artist,
	duration_seconds,
	track_number,
	disc_number
`

// Eligible returns a lazy, forward-only cursor over listens that still need
// to be submitted, in ascending id order.
//
// A listen is eligible when it has not been marked submitted, originates from
// self-recorded playback, and played for more than 30 seconds. When since is
// non-nil only listens started after that instant are selected; Last.fm does
// not accept scrobbles backdated further than its submission window.
func (r *Listens) Eligible(since *time.Time) (*ListenCursor, error) {
	query := `
		SELECT ` + eligibleColumns + `
		FROM listens
		WHERE scrobbled_at IS NULL
		  AND source IN (?, ?)
		  AND completed_at IS NOT NULL
		  AND CAST(strftime('%s', completed_at) AS INTEGER) -
		      CAST(strftime('%s', started_at) AS INTEGER) > ?
	`
	args := []any{SourceLocal, SourcePlaylog, minPlaySeconds}

	if since != nil {
		// The unique seconds-since-epoch index covers this expression.
		query += ` AND CAST(strftime('%s', started_at) AS INTEGER) > ?`
		args = append(args, since.Unix())
	}

	query += ` ORDER BY id ASC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible listens: %w", err)
	}

	return &ListenCursor{rows: rows}, nil
}

// MarkScrobbled sets scrobbled_at for exactly the given ids in one committed
// transaction. Ids whose marker is already set are left untouched, so
// re-invoking with the same set is a no-op in effect.
func (r *Listens) MarkScrobbled(ids []int64, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		UPDATE listens SET scrobbled_at = ?
		WHERE id = ? AND scrobbled_at IS NULL
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare marker update: %w", err)
	}
	defer stmt.Close()

	nowStr := models.FormatTime(now)
	for _, id := range ids {
		if _, err := stmt.Exec(nowStr, id); err != nil {
			return fmt.Errorf("failed to mark listen %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit marker transaction: %w", err)
	}

	return nil
}

// Insert persists a listen with the given source tag and returns its id, or
// zero when a listen with the same truncated start timestamp already exists
// (the unique seconds index absorbs the duplicate). Used by the play log
// converter; the player writes its own listens.
func (r *Listens) Insert(l models.Listen, source string) (int64, error) {
	if err := l.Validate(); err != nil {
		return 0, fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT OR IGNORE INTO listens (
			started_at, completed_at, track_title, album_title,
			track_artist, album_artist, duration_seconds,
			track_number, disc_number, source
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Exec(query,
		models.FormatTime(l.StartedAt),
		models.FormatTime(l.CompletedAt),
		l.TrackTitle,
		l.AlbumTitle,
		l.TrackArtist,
		l.AlbumArtist,
		l.DurationSeconds,
		nullableInt(l.TrackNumber),
		nullableInt(l.DiscNumber),
		source,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert listen: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return 0, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get inserted listen id: %w", err)
	}

	return id, nil
}

// Counts returns how many listens are still pending submission and how many
// have been submitted already.
func (r *Listens) Counts() (pending, submitted int64, err error) {
	err = r.db.QueryRow(`
		SELECT
			COUNT(*) FILTER (WHERE scrobbled_at IS NULL),
			COUNT(*) FILTER (WHERE scrobbled_at IS NOT NULL)
		FROM listens
	`).Scan(&pending, &submitted)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count listens: %w", err)
	}
	return pending, submitted, nil
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

// ListenCursor is a pull-based, non-restartable sequence of listens backed by
// an open result set. Exhaustion is terminal; Close releases the underlying
// rows.
type ListenCursor struct {
	rows *sql.Rows
	cur  models.Listen
	err  error
	done bool
}

// Scan advances the cursor to the next listen. It returns false when the
// sequence is exhausted or a scan error occurred; check Err afterwards.
func (c *ListenCursor) Scan() bool {
	if c.done || c.err != nil {
		return false
	}

	if !c.rows.Next() {
		c.done = true
		c.err = c.rows.Err()
		return false
	}

	var (
		startedAt   string
		completedAt string
		trackNumber sql.NullInt64
		discNumber  sql.NullInt64
		l           models.Listen
	)

	err := c.rows.Scan(
		&l.ID,
		&startedAt,
		&completedAt,
		&l.TrackTitle,
		&l.AlbumTitle,
		&l.TrackArtist,
		&l.AlbumArtist,
		&l.DurationSeconds,
		&trackNumber,
		&discNumber,
	)
	if err != nil {
		c.err = fmt.Errorf("failed to scan listen: %w", err)
		return false
	}

	if l.StartedAt, err = models.ParseTime(startedAt); err != nil {
		c.err = err
		return false
	}
	if l.CompletedAt, err = models.ParseTime(completedAt); err != nil {
		c.err = err
		return false
	}
	l.TrackNumber = int(trackNumber.Int64)
	l.DiscNumber = int(discNumber.Int64)

	c.cur = l
	return true
}

// Listen returns the listen the cursor currently points at.
func (c *ListenCursor) Listen() models.Listen {
	return c.cur
}

// Err returns the first error encountered while scanning.
func (c *ListenCursor) Err() error {
	return c.err
}

// Close releases the cursor's result set.
func (c *ListenCursor) Close() error {
	return c.rows.Close()
}
