package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/desertthunder/scrobble/internal/models"
	"github.com/desertthunder/scrobble/internal/shared"
)

func TestEncodeSubmission(t *testing.T) {
	body, err := EncodeSubmission([]models.Listen{testListen(time.Unix(1609459200, 0))})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	var decoded struct {
		ListenType string `json:"listen_type"`
		Payload    []struct {
			ListenedAt    int64 `json:"listened_at"`
			TrackMetadata struct {
				ArtistName     string `json:"artist_name"`
				TrackName      string `json:"track_name"`
				AdditionalInfo struct {
					ListeningFrom string `json:"listening_from"`
					TrackNumber   int    `json:"tracknumber"`
				} `json:"additional_info"`
			} `json:"track_metadata"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}

	if decoded.ListenType != "import" {
		t.Errorf("listen_type = %q, want import", decoded.ListenType)
	}
	if len(decoded.Payload) != 1 {
		t.Fatalf("expected 1 payload entry, got %d", len(decoded.Payload))
	}
	entry := decoded.Payload[0]
	if entry.ListenedAt != 1609459200 {
		t.Errorf("listened_at = %d, want 1609459200", entry.ListenedAt)
	}
	if entry.TrackMetadata.ArtistName != "Mew" || entry.TrackMetadata.TrackName != "Comforting Sounds" {
		t.Errorf("unexpected metadata: %+v", entry.TrackMetadata)
	}
	if entry.TrackMetadata.AdditionalInfo.ListeningFrom != "scrobble" {
		t.Errorf("listening_from = %q, want scrobble", entry.TrackMetadata.AdditionalInfo.ListeningFrom)
	}
}

func TestRateInfo(t *testing.T) {
	t.Run("ParsesHeaders", func(t *testing.T) {
		h := http.Header{}
		h.Set("X-RateLimit-Remaining", "3")
		h.Set("X-RateLimit-Reset-In", "2.5")

		info := rateInfoFromHeaders(h)
		if info.Remaining != 3 {
			t.Errorf("remaining = %d, want 3", info.Remaining)
		}
		if info.ResetIn != 2500*time.Millisecond {
			t.Errorf("reset = %v, want 2.5s", info.ResetIn)
		}
	})

	t.Run("DefaultsWhenAbsent", func(t *testing.T) {
		info := rateInfoFromHeaders(http.Header{})
		if info.Remaining != 10 || info.ResetIn != time.Second {
			t.Errorf("defaults = %d/%v, want 10/1s", info.Remaining, info.ResetIn)
		}
	})

	t.Run("WaitOnlyWhenNearlyExhausted", func(t *testing.T) {
		almost := RateInfo{Remaining: 1, ResetIn: 4 * time.Second}
		if got := almost.Wait(); got != 4*time.Second {
			t.Errorf("wait = %v, want 4s", got)
		}

		plenty := RateInfo{Remaining: 5, ResetIn: 4 * time.Second}
		if got := plenty.Wait(); got != 0 {
			t.Errorf("wait = %v, want 0", got)
		}
	})
}

func TestSubmitListens(t *testing.T) {
	t.Run("AcceptedBatchReturnsRateInfo", func(t *testing.T) {
		var auth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			w.Header().Set("X-RateLimit-Remaining", "7")
			w.Header().Set("X-RateLimit-Reset-In", "3")
			w.Write([]byte(`{"status":"ok"}`))
		}))
		defer server.Close()

		s := NewListenBrainz(shared.ListenBrainzConfig{Token: "tok"}, server.URL, server.Client())
		body, _ := EncodeSubmission([]models.Listen{testListen(time.Unix(1609459200, 0))})

		info, err := s.SubmitListens(context.Background(), body)
		if err != nil {
			t.Fatalf("submit failed: %v", err)
		}

		if auth != "Token tok" {
			t.Errorf("authorization = %q, want Token tok", auth)
		}
		if info.Remaining != 7 || info.ResetIn != 3*time.Second {
			t.Errorf("rate info = %+v, want remaining 7, reset 3s", info)
		}
	})

	t.Run("RejectedBatchCarriesBody", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"code":400,"error":"Listen timestamp invalid."}`))
		}))
		defer server.Close()

		s := NewListenBrainz(shared.ListenBrainzConfig{Token: "tok"}, server.URL, server.Client())
		_, err := s.SubmitListens(context.Background(), []byte(`{}`))
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Fatalf("expected service error, got %v", err)
		}
	})

	t.Run("OversizedBodyNeverSent", func(t *testing.T) {
		requests := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requests++
		}))
		defer server.Close()

		s := NewListenBrainz(shared.ListenBrainzConfig{Token: "tok"}, server.URL, server.Client())
		_, err := s.SubmitListens(context.Background(), make([]byte, MaxBodyBytes+1))
		if !errors.Is(err, shared.ErrBatchTooLarge) {
			t.Fatalf("expected batch too large, got %v", err)
		}
		if requests != 0 {
			t.Errorf("expected no request, got %d", requests)
		}
	})
}

func TestValidateToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"message":"Token valid.","valid":true,"user_name":"listener"}`))
	}))
	defer server.Close()

	s := NewListenBrainz(shared.ListenBrainzConfig{Token: "tok"}, server.URL, server.Client())
	valid, err := s.ValidateToken(context.Background())
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !valid {
		t.Error("expected token to be valid")
	}
}
