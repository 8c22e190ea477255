// Package octopus fetches researcher publications from the Octopus API and
// normalizes its response shapes.
package octopus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultAPIURL is the production Octopus API base URL.
	DefaultAPIURL = "https://prod.api.octopus.ac/v1"

	// DefaultWebURL is the public Octopus site used for canonical links.
	DefaultWebURL = "https://www.octopus.ac"

	// DefaultTimeout bounds a single API call.
	DefaultTimeout = 30 * time.Second

	// RateLimit keeps a full sync polite towards the public API.
	RateLimit = 5.0
)

// Client is a rate-limited HTTP client for the Octopus API.
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	apiURL      string
	webURL      string
	accessToken string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAccessToken sets a bearer token for authenticated requests.
func WithAccessToken(token string) ClientOption {
	return func(c *Client) {
		c.accessToken = token
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit overrides the request rate (requests per second).
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewClient creates a new Octopus API client. Empty URLs fall back to the
// production defaults.
func NewClient(apiURL, webURL string, opts ...ClientOption) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if webURL == "" {
		webURL = DefaultWebURL
	}
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		apiURL:     strings.TrimRight(apiURL, "/"),
		webURL:     strings.TrimRight(webURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// get performs a GET against the API and decodes the JSON body into v.
func (c *Client) get(ctx context.Context, path string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Path: path}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidResponse, path, err)
	}
	return nil
}

// ListPublications fetches all publications owned by an Octopus user.
// userID is the internal Octopus id, not the ORCID.
// The endpoint answers either with a bare array or with {"data": [...]};
// any other shape is treated as an empty list.
func (c *Client) ListPublications(ctx context.Context, userID string) ([]RawPublication, error) {
	var body any
	if err := c.get(ctx, "/users/"+url.PathEscape(userID)+"/publications", &body); err != nil {
		return nil, err
	}
	return publicationList(body), nil
}

// publicationList unwraps the list response, dropping entries that are not objects.
func publicationList(body any) []RawPublication {
	var items []any
	switch v := body.(type) {
	case []any:
		items = v
	case map[string]any:
		if data, ok := v["data"].([]any); ok {
			items = data
		}
	}

	pubs := make([]RawPublication, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			pubs = append(pubs, RawPublication(m))
		}
	}
	return pubs
}

// FetchPublication fetches a publication with all of its versions.
// The per-version endpoint is forbidden in production, so this is the only
// way to obtain version body content.
func (c *Client) FetchPublication(ctx context.Context, publicationID string) (RawPublication, error) {
	var body map[string]any
	if err := c.get(ctx, "/publications/"+url.PathEscape(publicationID), &body); err != nil {
		return nil, err
	}
	return RawPublication(body), nil
}

// FetchVersion fetches a single publication version.
// Production answers 403 for this endpoint; it is kept for diagnostics.
func (c *Client) FetchVersion(ctx context.Context, versionID string) (map[string]any, error) {
	var body map[string]any
	if err := c.get(ctx, "/publication-versions/"+url.PathEscape(versionID), &body); err != nil {
		return nil, err
	}
	return body, nil
}

// PublicationURL returns the canonical web URL for a publication version.
func (c *Client) PublicationURL(publicationID, versionID string) string {
	return fmt.Sprintf("%s/publications/%s/versions/%s", c.webURL, publicationID, versionID)
}

// authorURLPattern matches author profile URLs like
// https://www.octopus.ac/authors/cl5smny4a000009ieqml45bhz.
var authorURLPattern = regexp.MustCompile(`^https?://[^/\s]+/authors/([A-Za-z0-9_-]+)/?(?:[?#].*)?$`)

// ExtractUserIDFromURL returns the internal user id from an Octopus author
// profile URL. It reports false for anything that is not such a URL.
func ExtractUserIDFromURL(profileURL string) (string, bool) {
	matches := authorURLPattern.FindStringSubmatch(strings.TrimSpace(profileURL))
	if matches == nil {
		return "", false
	}
	return matches[1], true
}
