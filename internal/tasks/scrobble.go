package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/scrobble/internal/models"
	"github.com/desertthunder/scrobble/internal/repositories"
	"github.com/desertthunder/scrobble/internal/services"
	"github.com/desertthunder/scrobble/internal/shared"
)

// LastFMBackdateWindow is how far back Last.fm accepts scrobbles. Submitting
// anything older is pointless, so eligibility is bounded to this window.
const LastFMBackdateWindow = 14 * 24 * time.Hour

// Engine drives the submission pipelines for both services.
//
// Delivery is at-least-once: if the process crashes after a batch was
// accepted remotely but before the local marker committed, a rerun submits
// that batch again. Neither service offers an idempotency key to close the
// gap; the unique truncated-timestamp index on the listens table only stops
// a re-imported duplicate from becoming a second local row.
type Engine struct {
	listens *repositories.Listens
	lastfm  *services.LastFM
	lbz     *services.ListenBrainz
	logger  *log.Logger
	now     func() time.Time
	sleep   func(time.Duration)
}

// EngineOpts contains the collaborators of an Engine. Now and Sleep default
// to the real clock and are injectable for tests.
type EngineOpts struct {
	Listens      *repositories.Listens
	LastFM       *services.LastFM
	ListenBrainz *services.ListenBrainz
	Logger       *log.Logger
	Now          func() time.Time
	Sleep        func(time.Duration)
}

// NewEngine creates an Engine with the provided collaborators.
func NewEngine(opts EngineOpts) *Engine {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}

	return &Engine{
		listens: opts.Listens,
		lastfm:  opts.LastFM,
		lbz:     opts.ListenBrainz,
		logger:  opts.Logger,
		now:     opts.Now,
		sleep:   opts.Sleep,
	}
}

// ScrobbleLastFM submits all eligible listens from the backdating window to
// Last.fm in batches of at most 50, reconciles per-item acceptance, and marks
// accepted listens as submitted. Returns how many listens were marked.
//
// A disagreement between the per-item accepted sum and the batch-level
// accepted count is an invariant violation: the run aborts and nothing from
// the offending batch is marked.
func (e *Engine) ScrobbleLastFM(ctx context.Context) (int, error) {
	now := e.now()
	since := now.Add(-LastFMBackdateWindow)

	cur, err := e.listens.Eligible(&since)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	total := 0
	for {
		batch, err := NextChunk(cur, services.MaxBatchCount)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}

		result, err := e.lastfm.Scrobble(ctx, batch)
		if err != nil {
			return total, err
		}

		accepted, err := e.reconcile(batch, result)
		if err != nil {
			return total, err
		}

		if err := e.listens.MarkScrobbled(accepted, now); err != nil {
			return total, err
		}

		total += len(accepted)
		e.logger.Info("scrobbled listens", "accepted", result.Accepted, "batch", len(batch))
	}
}

// reconcile pairs submitted listens with per-item results in original order
// and returns the accepted ids, after checking the batch-level invariant.
func (e *Engine) reconcile(batch []models.Listen, result *services.ScrobbleResult) ([]int64, error) {
	pairs := len(batch)
	if len(result.Items) < pairs {
		pairs = len(result.Items)
	}

	var accepted []int64
	for i := 0; i < pairs; i++ {
		if result.Items[i].Accepted() {
			accepted = append(accepted, batch[i].ID)
			continue
		}

		// The raw per-item response goes to the log; the rejection codes are
		// too unreliable to interpret further.
		raw, _ := json.Marshal(result.Items[i])
		e.logger.Error("Last.fm rejected scrobble",
			"listen", batch[i].ID,
			"track", batch[i].TrackTitle,
			"artist", batch[i].TrackArtist,
			"response", string(raw),
		)
	}

	if len(accepted) != result.Accepted {
		return nil, fmt.Errorf("%w: %d per-item accepted, batch-level count %d, response: %s",
			shared.ErrAcceptedMismatch, len(accepted), result.Accepted, result.Body)
	}

	return accepted, nil
}

// SubmitListenBrainz submits all eligible listens to ListenBrainz in
// adaptively sized batches bounded by the request body budget, marking each
// batch after its whole-request acceptance and obeying the advertised rate
// limit between calls. Returns how many listens were marked.
func (e *Engine) SubmitListenBrainz(ctx context.Context) (int, error) {
	now := e.now()

	cur, err := e.listens.Eligible(nil)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	batcher := NewAdaptiveBatcher(cur, services.EncodeSubmission, services.MaxBodyBytes, services.AssumedListenBytes)

	total := 0
	for {
		batch, err := batcher.Next()
		if err != nil {
			return total, err
		}
		if batch == nil {
			return total, nil
		}

		rate, err := e.lbz.SubmitListens(ctx, batch.Body)
		if err != nil {
			return total, err
		}

		ids := make([]int64, len(batch.Listens))
		for i, l := range batch.Listens {
			ids[i] = l.ID
		}
		if err := e.listens.MarkScrobbled(ids, now); err != nil {
			return total, err
		}

		total += len(ids)
		e.logger.Info("submitted listens", "count", len(ids), "bytes", len(batch.Body))

		if d := rate.Wait(); d > 0 {
			e.logger.Debug("rate limit nearly exhausted, sleeping", "seconds", d.Seconds())
			e.sleep(d)
		}
	}
}
