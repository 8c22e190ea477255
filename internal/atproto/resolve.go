package atproto

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	// DefaultPLCDirectory resolves did:plc identifiers.
	DefaultPLCDirectory = "https://plc.directory"

	pdsServiceID   = "#atproto_pds"
	pdsServiceType = "AtprotoPersonalDataServer"
)

// Resolver resolves handles to DIDs and DIDs to PDS endpoints.
type Resolver struct {
	httpClient *http.Client
	plcURL     string
	// handleService answers com.atproto.identity.resolveHandle.
	handleService string
}

// NewResolver creates a resolver that asks handleService to resolve handles
// and plcURL to resolve did:plc documents.
func NewResolver(hc *http.Client, handleService, plcURL string) *Resolver {
	if plcURL == "" {
		plcURL = DefaultPLCDirectory
	}
	return &Resolver{
		httpClient:    hc,
		plcURL:        strings.TrimRight(plcURL, "/"),
		handleService: strings.TrimRight(handleService, "/"),
	}
}

// ResolveHandle returns the DID for a handle. DIDs are returned unchanged.
// The handle service is asked first, then https://<handle>/.well-known/atproto-did.
func (r *Resolver) ResolveHandle(ctx context.Context, handle string) (string, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if strings.HasPrefix(handle, "did:") {
		return handle, nil
	}
	if handle == "" {
		return "", fmt.Errorf("%w: empty handle", ErrResolution)
	}

	if r.handleService != "" {
		var out struct {
			DID string `json:"did"`
		}
		endpoint := r.handleService + "/xrpc/com.atproto.identity.resolveHandle?handle=" + url.QueryEscape(handle)
		if err := r.getJSON(ctx, endpoint, &out); err == nil && strings.HasPrefix(out.DID, "did:") {
			return out.DID, nil
		}
	}

	body, err := r.get(ctx, "https://"+handle+"/.well-known/atproto-did")
	if err != nil {
		return "", err
	}
	did := strings.TrimSpace(string(body))
	if !strings.HasPrefix(did, "did:") {
		return "", fmt.Errorf("%w: %s: no DID published", ErrResolution, handle)
	}
	return did, nil
}

// didDocument is the subset of a DID document needed to find the PDS.
type didDocument struct {
	ID      string `json:"id"`
	Service []struct {
		ID              string `json:"id"`
		Type            string `json:"type"`
		ServiceEndpoint any    `json:"serviceEndpoint"`
	} `json:"service"`
}

// ResolvePDS returns the PDS service endpoint declared in a DID's document.
func (r *Resolver) ResolvePDS(ctx context.Context, did string) (string, error) {
	var docURL string
	switch {
	case strings.HasPrefix(did, "did:plc:"):
		docURL = r.plcURL + "/" + did
	case strings.HasPrefix(did, "did:web:"):
		host, err := url.PathUnescape(strings.TrimPrefix(did, "did:web:"))
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrResolution, did, err)
		}
		docURL = "https://" + host + "/.well-known/did.json"
	default:
		return "", fmt.Errorf("%w: unsupported DID method: %s", ErrResolution, did)
	}

	var doc didDocument
	if err := r.getJSON(ctx, docURL, &doc); err != nil {
		return "", err
	}
	for _, svc := range doc.Service {
		if !strings.HasSuffix(svc.ID, pdsServiceID) && svc.Type != pdsServiceType {
			continue
		}
		if endpoint, ok := svc.ServiceEndpoint.(string); ok && endpoint != "" {
			return strings.TrimRight(endpoint, "/"), nil
		}
	}
	return "", fmt.Errorf("%w: %s: no PDS service in DID document", ErrResolution, did)
}

func (r *Resolver) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolution, err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolution, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: status %d", ErrResolution, endpoint, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

func (r *Resolver) getJSON(ctx context.Context, endpoint string, v any) error {
	body, err := r.get(ctx, endpoint)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrResolution, endpoint, err)
	}
	return nil
}
