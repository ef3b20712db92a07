// Package orgclient is the HTTP client for the Organization Store API:
// the once-per-session document fetch and the debounced full-document
// sync push.
package orgclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"turnhub/api/internal/orgdoc"
)

// Client talks to one turnhub API server.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.Mutex
	token string
}

// New creates a client for the given base URL. The timeout bounds each
// request; there is no per-push cancellation beyond it.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetToken sets the bearer token sent on subsequent requests. Safe to
// call while a push or fetch is in flight: login/logout runs on the
// control surface's goroutines, requests on the orchestrator's.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

type errorPayload struct {
	Error string `json:"error"`
}

// fetchResponse overlays the error payload shape on the document shape:
// the endpoint returns one or the other on a 200.
type fetchResponse struct {
	orgdoc.Document
	Error string `json:"error"`
}

// FetchOrganization retrieves the full Organization Document for id.
// Any field may be absent on legacy documents; the result is normalized
// so every collection is present.
func (c *Client) FetchOrganization(ctx context.Context, id string) (*orgdoc.Document, error) {
	endpoint := c.baseURL + "/api/organization/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch organization %s: %w", id, err)
	}
	defer resp.Body.Close()

	var body fetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode organization %s: %w", id, err)
	}
	if body.Error != "" {
		return nil, fmt.Errorf("fetch organization %s: server error: %s", id, body.Error)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch organization %s: status %d", id, resp.StatusCode)
	}

	doc := body.Document
	doc.Normalize()
	return &doc, nil
}

type syncRequest struct {
	OrgID string           `json:"orgId"`
	Data  *orgdoc.Document `json:"data"`
}

// PushSync overwrites the stored document for orgID with doc. The
// server performs a blind full-document overwrite; only the status is
// checked, the response body is ignored.
func (c *Client) PushSync(ctx context.Context, orgID string, doc *orgdoc.Document) error {
	payload, err := json.Marshal(syncRequest{OrgID: orgID, Data: doc})
	if err != nil {
		return fmt.Errorf("marshal sync payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/sync", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("push sync for %s: %w", orgID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body errorPayload
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error != "" {
			return fmt.Errorf("push sync for %s: %s", orgID, body.Error)
		}
		return fmt.Errorf("push sync for %s: status %d", orgID, resp.StatusCode)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
