package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types found in the legacy play log.
const (
	EventStarted   = "started"
	EventCompleted = "completed"
)

// PlaybackEvent is one line of the legacy play log: the player appended a
// "started" event when playback of a queue entry began and a "completed"
// event when it ran to the end.
// The time field decodes as RFC 3339, which always carries an explicit
// offset, so every event satisfies the same timezone invariant as a Listen.
type PlaybackEvent struct {
	Type            string    `json:"event"`
	Time            time.Time `json:"time"`
	QueueID         string    `json:"queue_id"`
	TrackID         string    `json:"track_id"`
	AlbumID         string    `json:"album_id,omitempty"`
	TrackTitle      string    `json:"title"`
	AlbumTitle      string    `json:"album"`
	TrackArtist     string    `json:"artist"`
	AlbumArtist     string    `json:"album_artist"`
	DurationSeconds int       `json:"duration_seconds"`
	TrackNumber     int       `json:"track_number,omitempty"`
	DiscNumber      int       `json:"disc_number,omitempty"`
}

// DecodePlaybackEvent decodes one play log line.
func DecodePlaybackEvent(line []byte) (PlaybackEvent, error) {
	var ev PlaybackEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return PlaybackEvent{}, fmt.Errorf("malformed play log line: %w", err)
	}
	if ev.Type != EventStarted && ev.Type != EventCompleted {
		return PlaybackEvent{}, fmt.Errorf("unknown play log event type %q", ev.Type)
	}
	return ev, nil
}

// ImportedListen is one staged row of a remote service's own listen history.
// Rows are deduplicated on (ListenedAt, Track, Artist).
type ImportedListen struct {
	ListenedAt int64
	Track      string
	Artist     string
	Album      string
}

// Import run modes.
const (
	ImportModeFull        = "full"
	ImportModeIncremental = "incremental"
)

// ImportRun records one history import for progress reporting.
type ImportRun struct {
	ID           string
	Mode         string
	StartedAt    string
	Pages        int
	RowsInserted int64
	Completed    bool
}
