// Package cloudapi implements shadow.CloudClient against an HTTP shadow
// data plane: one GET/PUT/DELETE triple per shadow document, authenticated
// via OAuth2 client-credentials (device-to-cloud, not a user login flow).
package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/tonimelisma/shadowsync/internal/shadow"
)

const userAgent = "shadowsyncd/0.1"

// Client is an HTTP client for the cloud shadow data plane.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a Client that authenticates every request through ts.
// httpClient's Timeout should already reflect the configured data_timeout;
// NewClient does not set one itself. A nil httpClient uses http.DefaultClient.
func NewClient(baseURL string, httpClient *http.Client, ts oauth2.TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	oauthClient := &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: httpClient.Transport},
		Timeout:   httpClient.Timeout,
	}

	return &Client{baseURL: baseURL, httpClient: oauthClient, logger: logger}
}

// NewTokenSource builds a client-credentials TokenSource so callers don't
// each repeat the clientcredentials boilerplate.
func NewTokenSource(ctx context.Context, clientID, clientSecret, tokenURL string) oauth2.TokenSource {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}

	return cfg.TokenSource(ctx)
}

// wireEnvelope is the over-the-wire shape for a shadow document: the
// caller's opaque body nested under "document", with the version carried
// alongside it rather than inferred from the body's own contents.
type wireEnvelope struct {
	Document json.RawMessage `json:"document"`
	Version  uint64          `json:"version"`
}

func (c *Client) shadowURL(key shadow.Key) string {
	return fmt.Sprintf("%s/things/%s/shadows/%s", c.baseURL, url.PathEscape(key.Thing), url.PathEscape(shadowName(key)))
}

func shadowName(key shadow.Key) string {
	if key.Name == "" {
		return "classic"
	}

	return key.Name
}

// newRequest builds a request carrying the standard headers. Each request
// gets its own request ID so a log line on the server side can be matched
// back to the client-side shadow.Error it produced, the same correlation
// role a cycle or conflict ID plays in the local reconciler.
func newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-Id", uuid.New().String())

	return req, nil
}

// GetThingShadow fetches the current document. A 404 is not an error: it
// means the shadow does not exist yet on the cloud side.
func (c *Client) GetThingShadow(ctx context.Context, key shadow.Key) (*shadow.Document, error) {
	req, err := newRequest(ctx, http.MethodGet, c.shadowURL(key), nil)
	if err != nil {
		return nil, shadow.Retryable(key, "cloudapi.get", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, shadow.Retryable(key, "cloudapi.get", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, shadow.Retryable(key, "cloudapi.get", fmt.Errorf("throttled: %s", resp.Status))
	case resp.StatusCode >= 500:
		return nil, shadow.Retryable(key, "cloudapi.get", fmt.Errorf("server error: %s", resp.Status))
	case resp.StatusCode >= 400:
		return nil, shadow.Skip(key, "cloudapi.get", fmt.Errorf("client error: %s", resp.Status))
	}

	var env wireEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, shadow.Skip(key, "cloudapi.get", fmt.Errorf("decode response: %w", err))
	}

	return &shadow.Document{Body: []byte(env.Document), Version: env.Version}, nil
}

// UpdateThingShadow PUTs body with an If-Match precondition on
// expectedVersion. A precondition failure (412/409) is the cloud version
// conflict the core's three-way merge restarts on.
func (c *Client) UpdateThingShadow(ctx context.Context, key shadow.Key, body []byte, expectedVersion uint64) (uint64, error) {
	payload, err := json.Marshal(wireEnvelope{Document: body})
	if err != nil {
		return 0, shadow.Skip(key, "cloudapi.update", fmt.Errorf("encode request: %w", err))
	}

	req, err := newRequest(ctx, http.MethodPut, c.shadowURL(key), bytes.NewReader(payload))
	if err != nil {
		return 0, shadow.Retryable(key, "cloudapi.update", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("If-Match", fmt.Sprintf("%d", expectedVersion))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, shadow.Retryable(key, "cloudapi.update", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPreconditionFailed || resp.StatusCode == http.StatusConflict:
		return 0, &shadow.Error{Key: key, Op: "cloudapi.update", Err: errors.Join(shadow.ErrConflict, fmt.Errorf("version precondition failed: %s", resp.Status))}
	case resp.StatusCode == http.StatusTooManyRequests:
		return 0, shadow.Retryable(key, "cloudapi.update", fmt.Errorf("throttled: %s", resp.Status))
	case resp.StatusCode >= 500:
		return 0, shadow.Retryable(key, "cloudapi.update", fmt.Errorf("server error: %s", resp.Status))
	case resp.StatusCode >= 400:
		return 0, shadow.Skip(key, "cloudapi.update", fmt.Errorf("client error: %s", resp.Status))
	}

	var env wireEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		// A backend that echoes no body on success still leaves us certain
		// of the new version: we just pushed expectedVersion+1.
		return expectedVersion + 1, nil
	}

	if env.Version == 0 {
		return expectedVersion + 1, nil
	}

	return env.Version, nil
}

// DeleteThingShadow DELETEs the document with an If-Match precondition. A
// 404 is treated as success: the desired end state (absent) already holds.
func (c *Client) DeleteThingShadow(ctx context.Context, key shadow.Key, expectedVersion uint64) error {
	req, err := newRequest(ctx, http.MethodDelete, c.shadowURL(key), nil)
	if err != nil {
		return shadow.Retryable(key, "cloudapi.delete", err)
	}

	req.Header.Set("If-Match", fmt.Sprintf("%d", expectedVersion))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return shadow.Retryable(key, "cloudapi.delete", err)
	}
	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil
	case resp.StatusCode == http.StatusPreconditionFailed || resp.StatusCode == http.StatusConflict:
		return &shadow.Error{Key: key, Op: "cloudapi.delete", Err: errors.Join(shadow.ErrConflict, fmt.Errorf("version precondition failed: %s", resp.Status))}
	case resp.StatusCode == http.StatusTooManyRequests:
		return shadow.Retryable(key, "cloudapi.delete", fmt.Errorf("throttled: %s", resp.Status))
	case resp.StatusCode >= 500:
		return shadow.Retryable(key, "cloudapi.delete", fmt.Errorf("server error: %s", resp.Status))
	case resp.StatusCode >= 400:
		return shadow.Skip(key, "cloudapi.delete", fmt.Errorf("client error: %s", resp.Status))
	}

	return nil
}

var _ shadow.CloudClient = (*Client)(nil)
