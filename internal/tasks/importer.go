package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/scrobble/internal/models"
	"github.com/desertthunder/scrobble/internal/repositories"
	"github.com/desertthunder/scrobble/internal/services"
	"github.com/desertthunder/scrobble/internal/shared"
	"golang.org/x/time/rate"
)

const (
	// importMaxConsecutiveErrors is how many times the same page may fail
	// before the import aborts as unrecoverable.
	importMaxConsecutiveErrors = 10

	// importBackoff is the fixed sleep between retries of a failing page.
	importBackoff = 5 * time.Second

	// incrementalWindow bounds an incremental import. The lower bound narrows
	// further to the newest locally staged timestamp when that is more recent.
	incrementalWindow = 30 * 24 * time.Hour

	// importRequestsPerSecond paces page fetches below Last.fm's client
	// guideline of five requests per second.
	importRequestsPerSecond = 4
)

// Importer reconciles the local staging area against a user's remote listen
// history, page by page, newest first.
type Importer struct {
	imports *repositories.Imports
	lastfm  *services.LastFM
	user    string
	logger  *log.Logger
	limiter *rate.Limiter
	now     func() time.Time
	sleep   func(time.Duration)
	backoff time.Duration
}

// ImporterOpts contains the collaborators of an Importer. Limiter, Now,
// Sleep, and Backoff have production defaults and are injectable for tests.
type ImporterOpts struct {
	Imports *repositories.Imports
	LastFM  *services.LastFM
	User    string
	Logger  *log.Logger
	Limiter *rate.Limiter
	Now     func() time.Time
	Sleep   func(time.Duration)
	Backoff time.Duration
}

// NewImporter creates an Importer for one user's history.
func NewImporter(opts ImporterOpts) *Importer {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.NewLimiter(rate.Limit(importRequestsPerSecond), 1)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if opts.Backoff <= 0 {
		opts.Backoff = importBackoff
	}

	return &Importer{
		imports: opts.Imports,
		lastfm:  opts.LastFM,
		user:    opts.User,
		logger:  opts.Logger,
		limiter: opts.Limiter,
		now:     opts.Now,
		sleep:   opts.Sleep,
		backoff: opts.Backoff,
	}
}

// Run imports the user's history into staging. Full mode walks the entire
// history; incremental mode bounds the walk to a recent window, narrowed to
// the newest staged timestamp when that is more recent than the window start.
//
// After each page the staged count above the lower bound is compared against
// the service-reported total; the import completes when the counts match or
// when the last reported page has been processed, whichever happens first.
// The two can disagree by small amounts for reasons outside this system, so
// neither condition alone would terminate reliably.
func (im *Importer) Run(ctx context.Context, full bool) (*models.ImportRun, error) {
	if im.user == "" {
		return nil, fmt.Errorf("%w: no Last.fm user configured", shared.ErrMissingCredentials)
	}

	now := im.now()
	mode := models.ImportModeIncremental

	var lowerBound int64
	if full {
		mode = models.ImportModeFull
	} else {
		lowerBound = now.Add(-incrementalWindow).Unix()
		newest, err := im.imports.NewestListenedAt()
		if err != nil {
			return nil, err
		}
		if newest > lowerBound {
			lowerBound = newest
		}
	}

	run, err := im.imports.CreateRun(mode, now)
	if err != nil {
		return nil, err
	}

	page := 1
	totalPages := 1
	consecutiveErrors := 0

	for page <= totalPages {
		if err := im.limiter.Wait(ctx); err != nil {
			return run, err
		}

		resp, err := im.lastfm.RecentTracks(ctx, im.user, page, lowerBound)
		if err == nil {
			var inserted int64
			inserted, err = im.imports.UpsertPage(stagingRows(resp.Tracks))
			if err == nil {
				consecutiveErrors = 0
				run.Pages++
				run.RowsInserted += inserted
				if resp.TotalPages > 0 {
					totalPages = resp.TotalPages
				}

				local, err := im.imports.CountSince(lowerBound)
				if err != nil {
					return run, err
				}

				im.logger.Info("imported history page",
					"page", page, "pages", totalPages,
					"new", inserted, "local", local, "remote", resp.Total,
				)

				if local >= int64(resp.Total) {
					break
				}
				page++
				continue
			}
		}

		// The failed page's writes were rolled back; retry the same page.
		consecutiveErrors++
		if consecutiveErrors >= importMaxConsecutiveErrors {
			return run, fmt.Errorf("%w: page %d failed %d times in a row: %v",
				shared.ErrImportFailed, page, consecutiveErrors, err)
		}
		im.logger.Warn("history page failed, retrying",
			"page", page, "attempt", consecutiveErrors, "error", err)
		im.sleep(im.backoff)
	}

	run.Completed = true
	if err := im.imports.UpdateRun(run); err != nil {
		return run, err
	}

	return run, nil
}

// stagingRows converts one response page into staging rows, dropping the
// now-playing pseudo-row and repairing double-encoded text fields.
func stagingRows(tracks []services.RecentTrack) []models.ImportedListen {
	rows := make([]models.ImportedListen, 0, len(tracks))
	for _, t := range tracks {
		if t.NowPlaying() {
			continue
		}
		rows = append(rows, models.ImportedListen{
			ListenedAt: int64(t.Date.UTS),
			Track:      RepairDoubleEncoded(t.Name),
			Artist:     RepairDoubleEncoded(t.Artist.Text),
			Album:      RepairDoubleEncoded(t.Album.Text),
		})
	}
	return rows
}

// RepairDoubleEncoded undoes the mojibake that some history rows arrive
// with: UTF-8 text that was decoded as Latin-1 and re-encoded, so "é"
// becomes "Ã©". The corruption signature is a 'Ã' rune whose surrounding
// text forms a valid UTF-8 byte sequence when read back as Latin-1; any
// string not matching exactly that is returned untouched.
func RepairDoubleEncoded(s string) string {
	if !strings.ContainsRune(s, 'Ã') {
		return s
	}

	bytes := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			// Not a Latin-1 image of anything; leave it alone.
			return s
		}
		bytes = append(bytes, byte(r))
	}

	if !utf8.Valid(bytes) {
		return s
	}

	return string(bytes)
}
