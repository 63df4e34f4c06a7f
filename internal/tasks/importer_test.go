package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/desertthunder/scrobble/internal/repositories"
	"github.com/desertthunder/scrobble/internal/services"
	"github.com/desertthunder/scrobble/internal/shared"
	"golang.org/x/time/rate"
)

func historyPage(total, totalPages, page int, uts ...int64) string {
	tracks := ""
	for i, ts := range uts {
		if i > 0 {
			tracks += ","
		}
		tracks += fmt.Sprintf(
			`{"name":"Track %d","artist":{"#text":"Mew"},"album":{"#text":"Frengers"},"date":{"uts":"%d"}}`,
			i+1, ts)
	}
	return fmt.Sprintf(`{"recenttracks":{"@attr":{"page":"%d","totalPages":"%d","total":"%d"},"track":[%s]}}`,
		page, totalPages, total, tracks)
}

func newTestImporter(t *testing.T, serverURL string, sleep func(time.Duration)) (*Importer, *repositories.Imports) {
	t.Helper()

	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	imports := repositories.NewImports(db)
	if sleep == nil {
		sleep = func(time.Duration) {}
	}

	im := NewImporter(ImporterOpts{
		Imports: imports,
		LastFM:  services.NewLastFM(shared.LastFMConfig{APIKey: "key", Secret: "sec"}, serverURL, nil),
		User:    "listener",
		Limiter: rate.NewLimiter(rate.Inf, 1),
		Sleep:   sleep,
		Backoff: time.Millisecond,
	})
	return im, imports
}

func TestImporterRun(t *testing.T) {
	t.Run("StopsWhenCountsConverge", func(t *testing.T) {
		now := time.Now().Unix()
		requests := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			// The reported page count is far larger than the two rows the
			// first page already covers.
			fmt.Fprint(w, historyPage(2, 10, 1, now-1000, now-2000))
		}))
		defer server.Close()

		im, imports := newTestImporter(t, server.URL, nil)

		run, err := im.Run(context.Background(), false)
		if err != nil {
			t.Fatalf("import failed: %v", err)
		}

		if requests != 1 {
			t.Errorf("made %d requests, want 1", requests)
		}
		if !run.Completed || run.Pages != 1 || run.RowsInserted != 2 {
			t.Errorf("run = %+v, want 1 completed page with 2 rows", run)
		}

		staged, err := imports.StagedCount()
		if err != nil {
			t.Fatalf("staged count failed: %v", err)
		}
		if staged != 2 {
			t.Errorf("staged %d rows, want 2", staged)
		}
	})

	t.Run("RerunStagesNothingNew", func(t *testing.T) {
		now := time.Now().Unix()
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, historyPage(2, 1, 1, now-1000, now-2000))
		}))
		defer server.Close()

		im, _ := newTestImporter(t, server.URL, nil)

		if _, err := im.Run(context.Background(), false); err != nil {
			t.Fatalf("first import failed: %v", err)
		}
		run, err := im.Run(context.Background(), false)
		if err != nil {
			t.Fatalf("second import failed: %v", err)
		}
		if run.RowsInserted != 0 {
			t.Errorf("second run inserted %d rows, want 0", run.RowsInserted)
		}
	})

	t.Run("RetriesFailingPage", func(t *testing.T) {
		now := time.Now().Unix()
		requests := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			if requests <= 2 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, historyPage(1, 1, 1, now-1000))
		}))
		defer server.Close()

		var slept []time.Duration
		im, _ := newTestImporter(t, server.URL, func(d time.Duration) { slept = append(slept, d) })

		run, err := im.Run(context.Background(), false)
		if err != nil {
			t.Fatalf("import failed: %v", err)
		}
		if !run.Completed || run.RowsInserted != 1 {
			t.Errorf("run = %+v, want 1 completed row", run)
		}
		if len(slept) != 2 {
			t.Errorf("slept %d times, want 2", len(slept))
		}
	})

	t.Run("AbortsAfterConsecutiveFailures", func(t *testing.T) {
		requests := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		im, _ := newTestImporter(t, server.URL, nil)

		_, err := im.Run(context.Background(), false)
		if !errors.Is(err, shared.ErrImportFailed) {
			t.Fatalf("expected import failure, got %v", err)
		}
		if requests != 10 {
			t.Errorf("made %d attempts, want 10", requests)
		}
	})

	t.Run("FullModeWalksFromTheBeginning", func(t *testing.T) {
		now := time.Now().Unix()
		var from string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			from = r.URL.Query().Get("from")
			fmt.Fprint(w, historyPage(1, 1, 1, now-1000))
		}))
		defer server.Close()

		im, _ := newTestImporter(t, server.URL, nil)

		run, err := im.Run(context.Background(), true)
		if err != nil {
			t.Fatalf("import failed: %v", err)
		}
		if from != "" {
			t.Errorf("full import sent from=%q, want no lower bound", from)
		}
		if run.Mode != "full" {
			t.Errorf("mode = %q, want full", run.Mode)
		}
	})

	t.Run("IncrementalModeBoundsTheWalk", func(t *testing.T) {
		now := time.Now().Unix()
		var from string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			from = r.URL.Query().Get("from")
			fmt.Fprint(w, historyPage(1, 1, 1, now-1000))
		}))
		defer server.Close()

		im, _ := newTestImporter(t, server.URL, nil)

		if _, err := im.Run(context.Background(), false); err != nil {
			t.Fatalf("import failed: %v", err)
		}
		if from == "" {
			t.Error("incremental import should send a lower bound")
		}
	})

	t.Run("MissingUserIsConfigurationError", func(t *testing.T) {
		db := setupTestDB(t)
		defer db.Close()

		im := NewImporter(ImporterOpts{
			Imports: repositories.NewImports(db),
			LastFM:  services.NewLastFM(shared.LastFMConfig{}, "", nil),
		})

		_, err := im.Run(context.Background(), false)
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Fatalf("expected missing credentials, got %v", err)
		}
	})
}

func TestRepairDoubleEncoded(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"RepairsMojibake", "CafÃ© del Mar", "Café del Mar"},
		{"LeavesCleanTextAlone", "Café del Mar", "Café del Mar"},
		{"LeavesASCIIAlone", "Comforting Sounds", "Comforting Sounds"},
		{"InvalidByteImageUntouched", "Ã", "Ã"},
		{"WideRunesUntouched", "Ãと日本語", "Ãと日本語"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := RepairDoubleEncoded(c.in); got != c.want {
				t.Errorf("RepairDoubleEncoded(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}
