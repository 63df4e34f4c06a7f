package tasks

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func playLogLine(event, ts, queue, track, title string, duration int) string {
	return `{"event":"` + event + `","time":"` + ts + `","queue_id":"` + queue +
		`","track_id":"` + track + `","title":"` + title +
		`","album":"Frengers","artist":"Mew","album_artist":"Mew","duration_seconds":` +
		strconv.Itoa(duration) + `}`
}

func TestEventScanner(t *testing.T) {
	t.Run("SkipsBlankLines", func(t *testing.T) {
		input := playLogLine("started", "2021-01-01T00:00:00Z", "q1", "t1", "Comforting Sounds", 180) +
			"\n\n  \n" +
			playLogLine("completed", "2021-01-01T00:03:00Z", "q1", "t1", "Comforting Sounds", 180) + "\n"

		s := NewEventScanner(strings.NewReader(input))
		count := 0
		for s.Scan() {
			count++
		}
		if err := s.Err(); err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 events, got %d", count)
		}
	})

	t.Run("MalformedLineIsTerminal", func(t *testing.T) {
		s := NewEventScanner(strings.NewReader("{not json\n"))
		if s.Scan() {
			t.Fatal("expected scan to stop at malformed line")
		}
		if s.Err() == nil {
			t.Fatal("expected a decode error")
		}
	})

	t.Run("UnknownEventTypeIsTerminal", func(t *testing.T) {
		s := NewEventScanner(strings.NewReader(`{"event":"paused","time":"2021-01-01T00:00:00Z"}` + "\n"))
		if s.Scan() {
			t.Fatal("expected scan to stop at unknown event type")
		}
		if s.Err() == nil {
			t.Fatal("expected a decode error")
		}
	})
}

func TestPairer(t *testing.T) {
	t.Run("PairsUninterruptedPlayback", func(t *testing.T) {
		lines := []string{
			// Qualifying pair: elapsed time matches the declared duration.
			playLogLine("started", "2021-01-01T00:00:00Z", "q1", "t1", "Comforting Sounds", 180),
			playLogLine("completed", "2021-01-01T00:03:00Z", "q1", "t1", "Comforting Sounds", 180),
			// Interrupted: a second started replaces the register.
			playLogLine("started", "2021-01-01T00:05:00Z", "q2", "t2", "Am I Wry? No", 200),
			playLogLine("started", "2021-01-01T00:06:00Z", "q3", "t3", "156", 190),
			// Elapsed deviates a full minute from the declared duration.
			playLogLine("completed", "2021-01-01T00:10:00Z", "q3", "t3", "156", 190),
			// Too short to ever qualify.
			playLogLine("started", "2021-01-01T00:15:00Z", "q4", "t4", "Intro", 20),
			playLogLine("completed", "2021-01-01T00:15:20Z", "q4", "t4", "Intro", 20),
			// Within tolerance: 8 seconds over the declared duration.
			playLogLine("started", "2021-01-01T00:20:00Z", "q5", "t5", "Snow Brigade", 180),
			playLogLine("completed", "2021-01-01T00:23:08Z", "q5", "t5", "Snow Brigade", 180),
		}

		p := NewPairer(NewEventScanner(strings.NewReader(strings.Join(lines, "\n"))))

		var titles []string
		for p.Scan() {
			titles = append(titles, p.Listen().TrackTitle)
		}
		if err := p.Err(); err != nil {
			t.Fatalf("pairing failed: %v", err)
		}

		want := []string{"Comforting Sounds", "Snow Brigade"}
		if len(titles) != len(want) {
			t.Fatalf("got listens %v, want %v", titles, want)
		}
		for i := range want {
			if titles[i] != want[i] {
				t.Errorf("listen %d is %q, want %q", i, titles[i], want[i])
			}
		}
	})

	t.Run("ListenCarriesStartedEventData", func(t *testing.T) {
		lines := playLogLine("started", "2021-01-01T00:00:00Z", "q1", "t1", "Comforting Sounds", 180) + "\n" +
			playLogLine("completed", "2021-01-01T00:03:00Z", "q1", "t1", "Comforting Sounds", 180)

		p := NewPairer(NewEventScanner(strings.NewReader(lines)))
		if !p.Scan() {
			t.Fatalf("expected one listen, got none: %v", p.Err())
		}

		l := p.Listen()
		if !l.StartedAt.Equal(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("started at %v, want midnight", l.StartedAt)
		}
		if l.PlayedFor() != 3*time.Minute {
			t.Errorf("played for %v, want 3m", l.PlayedFor())
		}
		if l.TrackArtist != "Mew" || l.DurationSeconds != 180 {
			t.Errorf("unexpected listen data: %+v", l)
		}
	})

	t.Run("MismatchedQueueNeverPairs", func(t *testing.T) {
		lines := playLogLine("started", "2021-01-01T00:00:00Z", "q1", "t1", "Comforting Sounds", 180) + "\n" +
			playLogLine("completed", "2021-01-01T00:03:00Z", "q2", "t1", "Comforting Sounds", 180)

		p := NewPairer(NewEventScanner(strings.NewReader(lines)))
		if p.Scan() {
			t.Fatal("events from different queue entries must not pair")
		}
		if err := p.Err(); err != nil {
			t.Fatalf("pairing failed: %v", err)
		}
	})

	t.Run("EmptyInputYieldsNothing", func(t *testing.T) {
		p := NewPairer(NewEventScanner(strings.NewReader("")))
		if p.Scan() {
			t.Fatal("expected no listens from empty input")
		}
		if err := p.Err(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
