// Last.fm API client: signed scrobble submission, the session-key
// authorization flow, and the recent-tracks history listing.
//
// See https://www.last.fm/api/scrobbling for the wire contract.
package services

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/desertthunder/scrobble/internal/models"
	"github.com/desertthunder/scrobble/internal/shared"
)

const (
	lastfmAPIURL  = "https://ws.audioscrobbler.com/2.0/"
	lastfmAuthURL = "https://www.last.fm/api/auth/"

	// MaxBatchCount is the Last.fm limit of 50 scrobbles per batch request.
	MaxBatchCount = 50

	// HistoryPageSize is the maximum page size of user.getRecentTracks.
	HistoryPageSize = 200
)

// LastFM is a client for the Last.fm web service.
type LastFM struct {
	cfg        shared.LastFMConfig
	baseURL    string
	httpClient *http.Client
}

// NewLastFM creates a Last.fm client. baseURL defaults to the production API
// root and is overridable for tests; client defaults to [http.DefaultClient].
func NewLastFM(cfg shared.LastFMConfig, baseURL string, client *http.Client) *LastFM {
	if baseURL == "" {
		baseURL = lastfmAPIURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &LastFM{cfg: cfg, baseURL: baseURL, httpClient: client}
}

// percentEncode escapes a single key or value the way the Last.fm protocol
// expects: no character is treated as safe (the slash included) and a space
// becomes %20, never '+'.
func percentEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// signedQuery merges the caller's parameters with the API key, signs the
// result, and encodes everything as a form/query string.
//
// The signature input is the key-concatenated-with-value of every parameter
// in lexicographic key order, with the shared secret appended, digested with
// MD5 as the protocol mandates. The format parameter is added after signing;
// it is not part of the signing contract.
func (s *LastFM) signedQuery(data map[string]string) string {
	params := make(map[string]string, len(data)+1)
	for k, v := range data {
		params[k] = v
	}
	params["api_key"] = s.cfg.APIKey

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var signInput strings.Builder
	for _, k := range keys {
		signInput.WriteString(k)
		signInput.WriteString(params[k])
	}
	signInput.WriteString(s.cfg.Secret)

	params["api_sig"] = fmt.Sprintf("%x", md5.Sum([]byte(signInput.String())))
	params["format"] = "json"

	return encodeQuery(params)
}

// encodeQuery renders key=value pairs separated by ampersands, in sorted key
// order, with both sides percent-encoded per [percentEncode].
func encodeQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(percentEncode(k))
		b.WriteByte('=')
		b.WriteString(percentEncode(params[k]))
	}
	return b.String()
}

// call performs one API request and returns the raw response body.
// Signed requests go in the POST body; unsigned lookups use the query string.
func (s *LastFM) call(ctx context.Context, method string, query string) ([]byte, error) {
	var req *http.Request
	var err error

	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, s.baseURL, strings.NewReader(query))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, s.baseURL+"?"+query, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", shared.ErrServiceUnavailable, resp.StatusCode, body)
	}

	return body, nil
}

// corrected is Last.fm's echo of a submitted field, possibly spelling-corrected.
type corrected struct {
	Corrected string `json:"corrected"`
	Text      string `json:"#text"`
}

// ScrobbleItem is the per-scrobble entry of a track.scrobble response.
type ScrobbleItem struct {
	Track          corrected `json:"track"`
	Artist         corrected `json:"artist"`
	IgnoredMessage struct {
		Code string `json:"code"`
		Text string `json:"#text"`
	} `json:"ignoredMessage"`
}

// Accepted reports whether Last.fm accepted this scrobble. The rejection code
// is the literal string "0" on acceptance; in theory a nonzero code says why
// the scrobble was rejected, in practice the codes are too buggy to act on.
// See https://support.last.fm/t/all-scrobbles-ignored-with-code-1-artist-ignored-why/6754
func (it ScrobbleItem) Accepted() bool {
	return it.IgnoredMessage.Code == "0"
}

// ScrobbleResult is a decoded track.scrobble response with the per-item list
// already normalized. Items are in submission order.
type ScrobbleResult struct {
	Accepted int
	Ignored  int
	Items    []ScrobbleItem
	Body     []byte
}

// Scrobble submits one batch of at most [MaxBatchCount] listens as a signed
// form-encoded POST and decodes the response.
func (s *LastFM) Scrobble(ctx context.Context, batch []models.Listen) (*ScrobbleResult, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("%w: empty scrobble batch", shared.ErrInvalidInput)
	}
	if len(batch) > MaxBatchCount {
		return nil, fmt.Errorf("%w: %d scrobbles in one batch, limit is %d", shared.ErrInvalidInput, len(batch), MaxBatchCount)
	}

	params := map[string]string{
		"method": "track.scrobble",
		"sk":     s.cfg.SessionKey,
	}
	for i, listen := range batch {
		for k, v := range listen.LastFMParams(i) {
			params[k] = v
		}
	}

	body, err := s.call(ctx, http.MethodPost, s.signedQuery(params))
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Scrobbles struct {
			Attr struct {
				Accepted flexInt `json:"accepted"`
				Ignored  flexInt `json:"ignored"`
			} `json:"@attr"`
			Scrobble json.RawMessage `json:"scrobble"`
		} `json:"scrobbles"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode scrobble response: %w: %s", err, body)
	}

	items, err := decodeObjectOrList[ScrobbleItem](decoded.Scrobbles.Scrobble)
	if err != nil {
		return nil, fmt.Errorf("failed to decode scrobble items: %w: %s", err, body)
	}

	return &ScrobbleResult{
		Accepted: int(decoded.Scrobbles.Attr.Accepted),
		Ignored:  int(decoded.Scrobbles.Attr.Ignored),
		Items:    items,
		Body:     body,
	}, nil
}

// GetToken requests an unauthorized request token for the auth flow.
func (s *LastFM) GetToken(ctx context.Context) (string, error) {
	body, err := s.call(ctx, http.MethodGet, s.signedQuery(map[string]string{
		"method": "auth.getToken",
	}))
	if err != nil {
		return "", err
	}

	var decoded struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w: %s", err, body)
	}
	if decoded.Token == "" {
		return "", fmt.Errorf("%w: no token in response: %s", shared.ErrAPIRequest, body)
	}

	return decoded.Token, nil
}

// AuthorizeURL returns the page where the user grants the application access
// to their account for the given request token.
func (s *LastFM) AuthorizeURL(token string) string {
	return fmt.Sprintf("%s?api_key=%s&token=%s", lastfmAuthURL, url.QueryEscape(s.cfg.APIKey), url.QueryEscape(token))
}

// GetSession exchanges an authorized request token for a session key.
func (s *LastFM) GetSession(ctx context.Context, token string) (user, key string, err error) {
	body, err := s.call(ctx, http.MethodGet, s.signedQuery(map[string]string{
		"method": "auth.getSession",
		"token":  token,
	}))
	if err != nil {
		return "", "", err
	}

	var decoded struct {
		Session struct {
			Name string `json:"name"`
			Key  string `json:"key"`
		} `json:"session"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", "", fmt.Errorf("failed to decode session response: %w: %s", err, body)
	}
	if decoded.Session.Key == "" {
		return "", "", fmt.Errorf("%w: no session key in response: %s", shared.ErrAPIRequest, body)
	}

	return decoded.Session.Name, decoded.Session.Key, nil
}

// RecentTrack is one row of a user.getRecentTracks page.
type RecentTrack struct {
	Name   string `json:"name"`
	Artist struct {
		Text string `json:"#text"`
	} `json:"artist"`
	Album struct {
		Text string `json:"#text"`
	} `json:"album"`
	Date struct {
		UTS flexInt `json:"uts"`
	} `json:"date"`
	Attr struct {
		NowPlaying string `json:"nowplaying"`
	} `json:"@attr"`
}

// NowPlaying reports whether this row is the currently playing track rather
// than a historical listen. Such rows carry no date and are not importable.
func (t RecentTrack) NowPlaying() bool {
	return t.Attr.NowPlaying == "true"
}

// RecentTracksPage is one decoded page of a user's listen history, newest first.
type RecentTracksPage struct {
	Page       int
	TotalPages int
	Total      int
	Tracks     []RecentTrack
	Body       []byte
}

// RecentTracks fetches one page of the user's listen history. Pages are in
// service-native order, most recent first. When from is nonzero only listens
// after that instant (seconds since epoch) are listed.
func (s *LastFM) RecentTracks(ctx context.Context, user string, page int, from int64) (*RecentTracksPage, error) {
	params := map[string]string{
		"method":  "user.getrecenttracks",
		"user":    user,
		"limit":   strconv.Itoa(HistoryPageSize),
		"page":    strconv.Itoa(page),
		"api_key": s.cfg.APIKey,
		"format":  "json",
	}
	if from > 0 {
		params["from"] = strconv.FormatInt(from, 10)
	}

	body, err := s.call(ctx, http.MethodGet, encodeQuery(params))
	if err != nil {
		return nil, err
	}

	var decoded struct {
		RecentTracks struct {
			Attr struct {
				Page       flexInt `json:"page"`
				TotalPages flexInt `json:"totalPages"`
				Total      flexInt `json:"total"`
			} `json:"@attr"`
			Track json.RawMessage `json:"track"`
		} `json:"recenttracks"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode recent tracks response: %w: %s", err, body)
	}

	tracks, err := decodeObjectOrList[RecentTrack](decoded.RecentTracks.Track)
	if err != nil {
		return nil, fmt.Errorf("failed to decode recent track rows: %w: %s", err, body)
	}

	return &RecentTracksPage{
		Page:       int(decoded.RecentTracks.Attr.Page),
		TotalPages: int(decoded.RecentTracks.Attr.TotalPages),
		Total:      int(decoded.RecentTracks.Attr.Total),
		Tracks:     tracks,
		Body:       body,
	}, nil
}
