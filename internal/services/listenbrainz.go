// ListenBrainz API client for submit-listens.
//
// See https://listenbrainz.readthedocs.io/en/production/dev/api/ for the wire
// contract, including MAX_LISTEN_SIZE and the rate-limit headers.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/desertthunder/scrobble/internal/models"
	"github.com/desertthunder/scrobble/internal/shared"
)

const (
	listenbrainzAPIURL = "https://api.listenbrainz.org"

	// MaxBodyBytes is ListenBrainz's enforced maximum request body size.
	MaxBodyBytes = 10240

	// AssumedListenBytes seeds the adaptive batcher. Serialized listens run
	// around 190-240 bytes while they carry no MusicBrainz identifiers.
	AssumedListenBytes = 215
)

// ListenBrainz is a client for the ListenBrainz web service.
type ListenBrainz struct {
	cfg        shared.ListenBrainzConfig
	baseURL    string
	httpClient *http.Client
}

// NewListenBrainz creates a ListenBrainz client. baseURL defaults to the
// production API root and is overridable for tests; client defaults to
// [http.DefaultClient].
func NewListenBrainz(cfg shared.ListenBrainzConfig, baseURL string, client *http.Client) *ListenBrainz {
	if baseURL == "" {
		baseURL = listenbrainzAPIURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &ListenBrainz{cfg: cfg, baseURL: baseURL, httpClient: client}
}

// EncodeSubmission serializes a batch of listens as a submit-listens request
// body. The caller is responsible for keeping the result within
// [MaxBodyBytes]; the adaptive batcher uses this as its serialization probe.
func EncodeSubmission(listens []models.Listen) ([]byte, error) {
	payload := make([]models.LBListen, len(listens))
	for i, l := range listens {
		payload[i] = l.ListenBrainzListen()
	}

	body, err := json.Marshal(struct {
		ListenType string            `json:"listen_type"`
		Payload    []models.LBListen `json:"payload"`
	}{
		ListenType: "import",
		Payload:    payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode submission: %w", err)
	}

	return body, nil
}

// RateInfo is the remote-advertised quota carried on a successful response.
type RateInfo struct {
	Remaining int
	ResetIn   time.Duration
}

// Wait returns how long to sleep before the next call: the advertised reset
// delay when the remaining quota is nearly exhausted, zero otherwise. Never
// letting the remaining count reach 0 avoids a hard 429 on the next request.
func (r RateInfo) Wait() time.Duration {
	if r.Remaining <= 1 {
		return r.ResetIn
	}
	return 0
}

// rateInfoFromHeaders reads the quota headers, defaulting to remaining=10 and
// reset=1s when a header is absent or malformed.
func rateInfoFromHeaders(h http.Header) RateInfo {
	info := RateInfo{Remaining: 10, ResetIn: time.Second}

	if v := h.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			info.Remaining = n
		}
	}
	if v := h.Get("X-RateLimit-Reset-In"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			info.ResetIn = time.Duration(secs * float64(time.Second))
		}
	}

	return info
}

// SubmitListens posts one encoded submission body with bearer-token
// authorization. Acceptance is binary: HTTP 200 means the whole batch was
// accepted; anything else returns an error carrying the raw response body for
// diagnosis, and nothing from the batch may be marked.
func (s *ListenBrainz) SubmitListens(ctx context.Context, body []byte) (*RateInfo, error) {
	if len(body) > MaxBodyBytes {
		return nil, fmt.Errorf("%w: %d bytes over a %d byte budget", shared.ErrBatchTooLarge, len(body), MaxBodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/1/submit-listens", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+s.cfg.Token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", shared.ErrServiceUnavailable, resp.StatusCode, respBody)
	}

	info := rateInfoFromHeaders(resp.Header)
	return &info, nil
}

// ValidateToken checks the configured user token against the service.
func (s *ListenBrainz) ValidateToken(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/1/validate-token", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+s.cfg.Token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: status %d: %s", shared.ErrServiceUnavailable, resp.StatusCode, body)
	}

	var decoded struct {
		Valid bool `json:"valid"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return false, fmt.Errorf("failed to decode validation response: %w", err)
	}

	return decoded.Valid, nil
}
