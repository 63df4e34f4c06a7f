package tasks

import (
	"bufio"
	"bytes"
	"io"
	"time"

	"github.com/desertthunder/scrobble/internal/models"
	"github.com/desertthunder/scrobble/internal/repositories"
)

const (
	// pairingTolerance is how far actual elapsed time may deviate from the
	// declared track duration for a started/completed pair to count as one
	// uninterrupted playback.
	pairingTolerance = 10 * time.Second

	// minPairDuration mirrors the service minimum: only tracks longer than
	// 30 seconds produce a qualifying listen.
	minPairDuration = 30 * time.Second
)

// EventSource is a pull-based, non-restartable sequence of playback events.
type EventSource interface {
	Scan() bool
	Event() models.PlaybackEvent
	Err() error
}

// EventScanner streams playback events from a JSON-lines play log. Blank
// lines are skipped; a malformed line is a terminal error.
type EventScanner struct {
	scanner *bufio.Scanner
	cur     models.PlaybackEvent
	err     error
	done    bool
}

// NewEventScanner creates an EventScanner over the given reader.
func NewEventScanner(r io.Reader) *EventScanner {
	return &EventScanner{scanner: bufio.NewScanner(r)}
}

// Scan advances to the next event. It returns false at end of input or on a
// malformed line; check Err afterwards.
func (s *EventScanner) Scan() bool {
	if s.done || s.err != nil {
		return false
	}

	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		ev, err := models.DecodePlaybackEvent(line)
		if err != nil {
			s.err = err
			return false
		}

		s.cur = ev
		return true
	}

	s.done = true
	s.err = s.scanner.Err()
	return false
}

// Event returns the event the scanner currently points at.
func (s *EventScanner) Event() models.PlaybackEvent {
	return s.cur
}

// Err returns the first error encountered while scanning.
func (s *EventScanner) Err() error {
	return s.err
}

// Pairer reconstructs qualifying listens from an ordered stream of playback
// events. It holds a single previous-event register: when the register holds
// a started event and the current event is the matching completed event, a
// listen is emitted; either way the register is replaced by the current
// event. Unmatched started events (interrupted playback) produce nothing.
//
// Pairer satisfies [ListenSource], so reconstructed listens can feed the
// batchers directly as an alternate upstream.
type Pairer struct {
	src  EventSource
	prev *models.PlaybackEvent
	cur  models.Listen
	err  error
}

// NewPairer creates a Pairer over the given event source.
func NewPairer(src EventSource) *Pairer {
	return &Pairer{src: src}
}

// Scan advances to the next qualifying listen. An empty or exhausted event
// stream yields nothing.
func (p *Pairer) Scan() bool {
	if p.err != nil {
		return false
	}

	for p.src.Scan() {
		ev := p.src.Event()
		prev := p.prev
		p.prev = &ev

		if prev != nil && pairQualifies(*prev, ev) {
			p.cur = listenFromPair(*prev, ev)
			return true
		}
	}

	p.err = p.src.Err()
	return false
}

// Listen returns the listen the pairer currently points at.
func (p *Pairer) Listen() models.Listen {
	return p.cur
}

// Err returns the first error encountered in the underlying event stream.
func (p *Pairer) Err() error {
	return p.err
}

// pairQualifies reports whether prev and cur form one qualifying playback:
// a started/completed pair for the same queue entry and track, whose actual
// elapsed time is within tolerance of the declared duration, for a track
// longer than the service minimum.
func pairQualifies(prev, cur models.PlaybackEvent) bool {
	if prev.Type != models.EventStarted || cur.Type != models.EventCompleted {
		return false
	}
	if prev.QueueID != cur.QueueID || prev.TrackID != cur.TrackID {
		return false
	}

	declared := time.Duration(prev.DurationSeconds) * time.Second
	if declared <= minPairDuration {
		return false
	}

	delta := cur.Time.Sub(prev.Time) - declared
	if delta < 0 {
		delta = -delta
	}
	return delta <= pairingTolerance
}

// listenFromPair derives a listen from the started event's data; submission
// needs the start time, the completed event only contributes the end.
func listenFromPair(started, completed models.PlaybackEvent) models.Listen {
	return models.Listen{
		StartedAt:       started.Time,
		CompletedAt:     completed.Time,
		TrackTitle:      started.TrackTitle,
		AlbumTitle:      started.AlbumTitle,
		TrackArtist:     started.TrackArtist,
		AlbumArtist:     started.AlbumArtist,
		DurationSeconds: started.DurationSeconds,
		TrackNumber:     started.TrackNumber,
		DiscNumber:      started.DiscNumber,
	}
}

// ConvertPlayLog streams a legacy play log, pairs it into listens, and
// persists them with the playlog source tag. Listens whose truncated start
// timestamp already exists in the store are skipped, so re-running the
// conversion is harmless. Returns how many listens were inserted and how
// many were skipped as duplicates.
func (e *Engine) ConvertPlayLog(r io.Reader) (inserted, skipped int, err error) {
	pairer := NewPairer(NewEventScanner(r))

	for pairer.Scan() {
		id, err := e.listens.Insert(pairer.Listen(), repositories.SourcePlaylog)
		if err != nil {
			return inserted, skipped, err
		}
		if id == 0 {
			skipped++
			continue
		}
		inserted++
	}
	if err := pairer.Err(); err != nil {
		return inserted, skipped, err
	}

	e.logger.Info("converted play log", "inserted", inserted, "skipped", skipped)
	return inserted, skipped, nil
}
