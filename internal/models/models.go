// package models defines the data model for the listen submission engine
package models

import (
	"fmt"
	"strconv"
	"time"
)

// Listen is one completed playback of a track, as recorded in the listens table.
//
// Both timestamps must carry an explicit UTC offset; [ParseTime] rejects
// values without one, so a Listen scanned from the store or decoded from a
// play log always satisfies the invariant.
type Listen struct {
	ID              int64
	StartedAt       time.Time
	CompletedAt     time.Time
	TrackTitle      string
	AlbumTitle      string
	TrackArtist     string
	AlbumArtist     string
	DurationSeconds int
	TrackNumber     int
	DiscNumber      int

	// RecordingMBID is the MusicBrainz recording id, when known. Optional.
	RecordingMBID string
}

// Validate checks the Listen invariants that the store's CHECK constraints also enforce.
func (l Listen) Validate() error {
	if l.StartedAt.IsZero() || l.CompletedAt.IsZero() {
		return fmt.Errorf("listen timestamps must be set")
	}
	if !l.CompletedAt.After(l.StartedAt) {
		return fmt.Errorf("completed_at %v is not after started_at %v", l.CompletedAt, l.StartedAt)
	}
	if l.TrackTitle == "" || l.TrackArtist == "" {
		return fmt.Errorf("listen must carry track title and artist")
	}
	return nil
}

// PlayedFor returns how long the track actually played.
func (l Listen) PlayedFor() time.Duration {
	return l.CompletedAt.Sub(l.StartedAt)
}

// LastFMParams formats the listen as indexed form parameters for one entry of
// a track.scrobble batch request.
func (l Listen) LastFMParams(index int) map[string]string {
	indexed := func(key string) string {
		return fmt.Sprintf("%s[%d]", key, index)
	}

	return map[string]string{
		indexed("artist"):      l.TrackArtist,
		indexed("track"):       l.TrackTitle,
		indexed("timestamp"):   strconv.FormatInt(l.StartedAt.Unix(), 10),
		indexed("album"):       l.AlbumTitle,
		indexed("trackNumber"): strconv.Itoa(l.TrackNumber),
		indexed("duration"):    strconv.Itoa(l.DurationSeconds),
		// Last.fm says "The album artist - if this differs from the track
		// artist." But if we don't include it, it echoes back an empty string
		// in the response.
		indexed("albumArtist"): l.AlbumArtist,
	}
}

// LBAdditionalInfo carries the optional per-listen metadata of a ListenBrainz submission.
type LBAdditionalInfo struct {
	ListeningFrom string `json:"listening_from"`
	TrackNumber   int    `json:"tracknumber"`

	RecordingMBID string `json:"recording_mbid,omitempty"`
}

// LBTrackMetadata is the track_metadata object of a ListenBrainz submission.
type LBTrackMetadata struct {
	AdditionalInfo LBAdditionalInfo `json:"additional_info"`
	ArtistName     string           `json:"artist_name"`
	TrackName      string           `json:"track_name"`
	ReleaseName    string           `json:"release_name"`
}

// LBListen is one payload entry of a ListenBrainz submit-listens request.
// See https://listenbrainz.readthedocs.io/en/production/dev/json/#json-doc.
type LBListen struct {
	ListenedAt    int64           `json:"listened_at"`
	TrackMetadata LBTrackMetadata `json:"track_metadata"`
}

// ListenBrainzListen formats the listen as a submit-listens payload entry.
func (l Listen) ListenBrainzListen() LBListen {
	return LBListen{
		ListenedAt: l.StartedAt.Unix(),
		TrackMetadata: LBTrackMetadata{
			AdditionalInfo: LBAdditionalInfo{
				ListeningFrom: "scrobble",
				TrackNumber:   l.TrackNumber,
				RecordingMBID: l.RecordingMBID,
			},
			ArtistName:  l.TrackArtist,
			TrackName:   l.TrackTitle,
			ReleaseName: l.AlbumTitle,
		},
	}
}

// ParseTime parses an ISO-8601 timestamp from the store or a play log.
// The value must carry an explicit UTC offset ("Z" or "+hh:mm"); RFC 3339
// admits nothing else, so parsing doubles as the timezone-awareness check.
func ParseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %q is not RFC 3339 with explicit offset: %w", value, err)
	}
	return t, nil
}

// FormatTime renders a timestamp the way the store and the play log expect it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
