// Package atproto is a minimal XRPC client for writing bridged records into
// a researcher's AT Protocol repository.
package atproto

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
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultPDS is used whenever a handle's own PDS cannot be resolved.
	DefaultPDS = "https://bsky.social"

	// DefaultTimeout bounds a single XRPC call.
	DefaultTimeout = 30 * time.Second

	// RateLimit stays well under PDS write limits during bulk syncs.
	RateLimit = 10.0

	// MaxPageSize is the largest listRecords page a PDS serves.
	MaxPageSize = 100
)

// Session is an authenticated AT Protocol session.
type Session struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	AccessJWT   string `json:"accessJwt"`
	RefreshJWT  string `json:"refreshJwt"`
	PDSEndpoint string `json:"-"`
}

// CreateRecordResult identifies a written record.
type CreateRecordResult struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// Record is one entry of a listRecords response.
type Record struct {
	URI   string          `json:"uri"`
	CID   string          `json:"cid"`
	Value json.RawMessage `json:"value"`
}

// Decode unmarshals the record value into v.
func (r Record) Decode(v any) error {
	return json.Unmarshal(r.Value, v)
}

// Client talks to AT Protocol PDS instances.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	defaultPDS string
	resolver   *Resolver
	plcURL     string
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPLCDirectory sets the PLC directory used for did:plc resolution.
func WithPLCDirectory(u string) ClientOption {
	return func(c *Client) {
		c.plcURL = u
	}
}

// WithLogger sets the logger used for resolution fallbacks and skipped records.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithRateLimit overrides the request rate (requests per second).
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewClient creates a client that falls back to defaultPDS when identity
// resolution fails. An empty defaultPDS means DefaultPDS.
func NewClient(defaultPDS string, opts ...ClientOption) *Client {
	if defaultPDS == "" {
		defaultPDS = DefaultPDS
	}
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(RateLimit), 1),
		defaultPDS: strings.TrimRight(defaultPDS, "/"),
		plcURL:     DefaultPLCDirectory,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resolver = NewResolver(c.httpClient, c.defaultPDS, c.plcURL)
	return c
}

// DefaultPDS returns the fallback PDS endpoint.
func (c *Client) DefaultPDS() string {
	return c.defaultPDS
}

// ResolveHandle returns the DID for handle. DIDs are returned unchanged.
func (c *Client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	return c.resolver.ResolveHandle(ctx, handle)
}

// ResolvePDS finds the PDS hosting handle (or DID). Any resolution failure
// yields the default PDS; a partial directory outage must not block a sync
// against a reachable default.
func (c *Client) ResolvePDS(ctx context.Context, handleOrDID string) string {
	did, err := c.resolver.ResolveHandle(ctx, handleOrDID)
	if err != nil {
		c.logger.Debug("handle resolution failed, using default PDS",
			"handle", handleOrDID, "pds", c.defaultPDS, "error", err)
		return c.defaultPDS
	}
	endpoint, err := c.resolver.ResolvePDS(ctx, did)
	if err != nil {
		c.logger.Debug("DID resolution failed, using default PDS",
			"did", did, "pds", c.defaultPDS, "error", err)
		return c.defaultPDS
	}
	return endpoint
}

// Authenticate creates a session for handle using an app password on the
// handle's own PDS.
func (c *Client) Authenticate(ctx context.Context, handle, appPassword string) (*Session, error) {
	endpoint := c.ResolvePDS(ctx, handle)

	var sess Session
	err := c.xrpc(ctx, http.MethodPost, endpoint, "com.atproto.server.createSession", "", nil,
		map[string]string{"identifier": handle, "password": appPassword}, &sess)
	if err != nil {
		var xerr *XRPCError
		if errors.As(err, &xerr) && isCredentialRejection(xerr) {
			return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}
		return nil, err
	}
	if sess.DID == "" || sess.AccessJWT == "" {
		return nil, fmt.Errorf("%w: createSession returned no session", ErrRemoteFailure)
	}
	sess.PDSEndpoint = endpoint
	return &sess, nil
}

func isCredentialRejection(e *XRPCError) bool {
	switch e.Name {
	case "AuthenticationRequired", "AuthFactorTokenRequired", "InvalidPassword", "AccountTakedown":
		return true
	}
	return e.StatusCode == http.StatusUnauthorized
}

// PutRecord writes record under collection/rkey in the session's repository.
// Writing the same rkey again replaces the record instead of adding a second one.
func (c *Client) PutRecord(ctx context.Context, sess *Session, collection, rkey string, record any) (*CreateRecordResult, error) {
	body := map[string]any{
		"repo":       sess.DID,
		"collection": collection,
		"rkey":       rkey,
		"record":     record,
	}
	var out CreateRecordResult
	if err := c.xrpc(ctx, http.MethodPost, sess.PDSEndpoint, "com.atproto.repo.putRecord", sess.AccessJWT, nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRecord deletes exactly the record named by uri.
func (c *Client) DeleteRecord(ctx context.Context, sess *Session, uri string) error {
	ref, err := ParseURI(uri)
	if err != nil {
		return err
	}
	body := map[string]string{
		"repo":       ref.Repo,
		"collection": ref.Collection,
		"rkey":       ref.RKey,
	}
	return c.xrpc(ctx, http.MethodPost, sess.PDSEndpoint, "com.atproto.repo.deleteRecord", sess.AccessJWT, nil, body, nil)
}

// ListRecords lists up to limit records of collection in the session's own
// repository. limit <= 0 lists everything.
func (c *Client) ListRecords(ctx context.Context, sess *Session, collection string, limit int) ([]Record, error) {
	return c.listRecords(ctx, sess.PDSEndpoint, sess.AccessJWT, sess.DID, collection, limit)
}

// ListRecordsPublic lists records of any repository without authentication.
func (c *Client) ListRecordsPublic(ctx context.Context, did, collection string, limit int) ([]Record, error) {
	return c.listRecords(ctx, c.ResolvePDS(ctx, did), "", did, collection, limit)
}

func (c *Client) listRecords(ctx context.Context, endpoint, token, repo, collection string, limit int) ([]Record, error) {
	var records []Record
	cursor := ""
	for {
		pageSize := MaxPageSize
		if limit > 0 && limit-len(records) < pageSize {
			pageSize = limit - len(records)
		}

		query := url.Values{}
		query.Set("repo", repo)
		query.Set("collection", collection)
		query.Set("limit", strconv.Itoa(pageSize))
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var page struct {
			Records []json.RawMessage `json:"records"`
			Cursor  string            `json:"cursor"`
		}
		if err := c.xrpc(ctx, http.MethodGet, endpoint, "com.atproto.repo.listRecords", token, query, nil, &page); err != nil {
			return nil, err
		}

		for _, raw := range page.Records {
			var rec Record
			if err := json.Unmarshal(raw, &rec); err != nil || rec.URI == "" {
				c.logger.Warn("skipping unparseable record", "repo", repo, "collection", collection, "error", err)
				continue
			}
			records = append(records, rec)
		}

		if page.Cursor == "" || len(page.Records) == 0 || (limit > 0 && len(records) >= limit) {
			return records, nil
		}
		cursor = page.Cursor
	}
}

// xrpc performs one XRPC call against endpoint. in is JSON-encoded as the
// request body when non-nil; out receives the decoded response when non-nil.
func (c *Client) xrpc(ctx context.Context, method, endpoint, nsid, token string, query url.Values, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	target := endpoint + "/xrpc/" + nsid
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling %s request: %w", nsid, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", nsid, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w: %s: %v", ErrServiceUnreachable, ErrRemoteFailure, nsid, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		xerr := &XRPCError{StatusCode: resp.StatusCode, Method: nsid}
		var payload struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); json.Unmarshal(data, &payload) == nil {
			xerr.Name = payload.Error
			xerr.Message = payload.Message
		}
		return xerr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", ErrRemoteFailure, nsid, err)
	}
	return nil
}
