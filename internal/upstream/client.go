package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
)

const userAgent = "go/quantum-conundrum-leaderboards"

// RemoteError reports a non-2xx response from the upstream API.
type RemoteError struct {
	Status  int
	Request string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("upstream returned status %d for %q", e.Status, e.Request)
}

// TransportError reports a network-level failure, including timeouts.
type TransportError struct {
	Request string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream request %q failed: %v", e.Request, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Client is a read-only adapter for the speedrun.com leaderboard API. It
// performs no retries; retry policy belongs to the caller.
type Client struct {
	http    *http.Client
	baseURL string
	gameID  string
}

// NewClient creates an upstream client. Each request is bounded by timeout;
// a timed-out request fails with a TransportError.
func NewClient(baseURL, gameID string, timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: baseURL,
		gameID:  gameID,
	}
}

// FetchLevels fetches all levels of the game.
func (c *Client) FetchLevels(ctx context.Context) ([]Level, error) {
	var envelope struct {
		Data []Level `json:"data"`
	}
	if err := c.get(ctx, "games/"+c.gameID+"/levels", nil, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

// FetchVerifiedRuns fetches the currently verified runs for one level.
func (c *Client) FetchVerifiedRuns(ctx context.Context, levelID string) ([]RawRun, error) {
	params := url.Values{}
	params.Set("level", levelID)
	params.Set("status", "verified")
	params.Set("max", "200")

	var envelope struct {
		Data []RawRun `json:"data"`
	}
	if err := c.get(ctx, "runs", params, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

// FetchUser fetches a single user profile.
func (c *Client) FetchUser(ctx context.Context, userID string) (RawUser, error) {
	var envelope struct {
		Data RawUser `json:"data"`
	}
	if err := c.get(ctx, "users/"+userID, nil, &envelope); err != nil {
		return RawUser{}, err
	}
	return envelope.Data, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	request := path
	if len(params) > 0 {
		request += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+request, nil)
	if err != nil {
		return fmt.Errorf("building request %q: %w", request, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Request: request, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &RemoteError{Status: resp.StatusCode, Request: request}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response for %q: %w", request, err)
	}
	return nil
}
